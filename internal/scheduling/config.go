// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scheduling

import (
	"fmt"
	"time"
)

// Urgency levels understood by the scheduler. They decide how far ahead
// slots are searched.
const (
	UrgencyUrgent  = "urgent"
	UrgencySoon    = "soon"
	UrgencyRoutine = "routine"
)

// Config controls the slot search.
type Config struct {
	// Location is the practice's time zone. Business hours are local to it.
	Location *time.Location

	// DayStartHour and DayEndHour bound bookable time, e.g. 9 and 17.
	// A slot must end at or before DayEndHour.
	DayStartHour int
	DayEndHour   int

	// SlotLength is both the appointment duration and the grid step.
	SlotLength time.Duration

	// HorizonDays maps urgency to the number of days searched.
	HorizonDays map[string]int

	// SkipWeekends excludes Saturdays and Sundays.
	SkipWeekends bool

	// MaxProposals caps the number of free slots returned.
	MaxProposals int

	// LeadTime is the minimum notice between now and a proposed slot.
	LeadTime time.Duration

	// Lookback widens each calendar query so events that started before a
	// candidate slot (and may run into it) are returned. It should be at
	// least the longest event duration on the calendar.
	Lookback time.Duration

	// Defaults applied when a request leaves them empty.
	ProviderGUID  string
	FacilityGUID  string
	EventTypeGUID string
}

// DefaultConfig returns weekday 9:00 to 17:00 hourly slots in UTC.
func DefaultConfig() Config {
	return Config{
		Location:     time.UTC,
		DayStartHour: 9,
		DayEndHour:   17,
		SlotLength:   time.Hour,
		HorizonDays: map[string]int{
			UrgencyUrgent:  3,
			UrgencySoon:    7,
			UrgencyRoutine: 14,
		},
		SkipWeekends: true,
		MaxProposals: 3,
		LeadTime:     time.Hour,
		Lookback:     4 * time.Hour,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Location == nil {
		return fmt.Errorf("scheduling: location is required")
	}
	if c.DayStartHour < 0 || c.DayEndHour > 24 || c.DayStartHour >= c.DayEndHour {
		return fmt.Errorf("scheduling: business hours %d-%d are invalid", c.DayStartHour, c.DayEndHour)
	}
	if c.SlotLength <= 0 || c.SlotLength > time.Duration(c.DayEndHour-c.DayStartHour)*time.Hour {
		return fmt.Errorf("scheduling: slot length %v does not fit business hours", c.SlotLength)
	}
	if c.MaxProposals < 1 {
		return fmt.Errorf("scheduling: max proposals must be >= 1")
	}
	if _, ok := c.HorizonDays[UrgencyRoutine]; !ok {
		return fmt.Errorf("scheduling: horizon for %q urgency is required", UrgencyRoutine)
	}
	for k, v := range c.HorizonDays {
		if v < 1 {
			return fmt.Errorf("scheduling: horizon for %q must be >= 1 day", k)
		}
	}
	if c.Lookback < 0 || c.LeadTime < 0 {
		return fmt.Errorf("scheduling: lookback and lead time must not be negative")
	}
	return nil
}

// horizon returns the search window in days for urgency, falling back to
// the routine window.
func (c Config) horizon(urgency string) int {
	if d, ok := c.HorizonDays[urgency]; ok {
		return d
	}
	return c.HorizonDays[UrgencyRoutine]
}
