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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/referral-agent/internal/ehr"
	apperrors "github.com/tombee/referral-agent/pkg/errors"
)

type fakeCalendar struct {
	events  []ehr.Event
	queries []ehr.EventQuery
	created []ehr.NewEvent
	err     error
}

func (f *fakeCalendar) QueryEvents(_ context.Context, q ehr.EventQuery) ([]ehr.Event, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	var out []ehr.Event
	for _, ev := range f.events {
		if q.ProviderGUID != "" && ev.EhrUserGUID != q.ProviderGUID {
			continue
		}
		if ev.StartDateTimeUtc.Before(q.From) || ev.StartDateTimeUtc.After(q.To) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, e ehr.NewEvent) (*ehr.Event, error) {
	f.created = append(f.created, e)
	ev := ehr.Event{
		EventID:             "evt-1",
		EhrUserGUID:         e.EhrUserGUID,
		PatientPracticeGUID: e.PatientPracticeGUID,
		StartDateTimeUtc:    e.StartDateTimeUtc,
		DurationMinutes:     e.DurationMinutes,
		AppointmentStatus:   e.AppointmentStatus,
	}
	f.events = append(f.events, ev)
	return &ev, nil
}

// at builds a UTC time in March 2026. The 2nd is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, time.UTC)
}

func event(start time.Time, minutes int, status string) ehr.Event {
	return ehr.Event{EhrUserGUID: "dr-reed", StartDateTimeUtc: start, DurationMinutes: minutes, AppointmentStatus: status}
}

// bookedSolid fills every business hour from day first to day last.
func bookedSolid(first, last int) []ehr.Event {
	var events []ehr.Event
	for day := first; day <= last; day++ {
		for hour := 9; hour < 17; hour++ {
			events = append(events, event(at(day, hour, 0), 60, ehr.StatusConfirmed))
		}
	}
	return events
}

func newTestScheduler(t *testing.T, cal Calendar, now time.Time, mutate func(*Config)) *Scheduler {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ProviderGUID = "dr-reed"
	cfg.FacilityGUID = "heart-center"
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cal, cfg, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return s
}

func starts(slots []Slot) []time.Time {
	out := make([]time.Time, len(slots))
	for i, s := range slots {
		out[i] = s.Start.UTC()
	}
	return out
}

func TestProposeSlots_EmptyCalendar(t *testing.T) {
	cal := &fakeCalendar{}
	s := newTestScheduler(t, cal, at(2, 8, 0), nil)

	slots, err := s.ProposeSlots(context.Background(), SlotRequest{Urgency: UrgencyRoutine})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(3, 9, 0), at(3, 10, 0), at(3, 11, 0)}, starts(slots))
	assert.Len(t, cal.queries, 3, "one calendar query per candidate")
	assert.Equal(t, "dr-reed", slots[0].ProviderGUID)
	assert.Equal(t, "heart-center", slots[0].FacilityGUID)
	assert.Equal(t, at(3, 10, 0), slots[0].End)
	assert.Equal(t, "Tuesday, Mar 3 at 9:00 AM", slots[0].Display())
}

func TestProposeSlots_SkipsConflicts(t *testing.T) {
	cal := &fakeCalendar{events: []ehr.Event{
		event(at(3, 9, 0), 60, ehr.StatusConfirmed),
		event(at(3, 10, 30), 60, ehr.StatusPending),
		event(at(3, 13, 0), 60, ehr.StatusCancelled),
		{EhrUserGUID: "someone-else", StartDateTimeUtc: at(3, 12, 0), DurationMinutes: 60},
	}}
	s := newTestScheduler(t, cal, at(2, 8, 0), nil)

	slots, err := s.ProposeSlots(context.Background(), SlotRequest{})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(3, 12, 0), at(3, 13, 0), at(3, 14, 0)}, starts(slots))
	assert.Len(t, cal.queries, 6)
}

func TestProposeSlots_LookbackCatchesLongEvents(t *testing.T) {
	cal := &fakeCalendar{events: []ehr.Event{event(at(3, 7, 0), 180, "")}}
	s := newTestScheduler(t, cal, at(2, 6, 0), nil)

	slots, err := s.ProposeSlots(context.Background(), SlotRequest{MaxProposals: 1})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(3, 10, 0)}, starts(slots))
	assert.Equal(t, at(3, 5, 0), cal.queries[0].From)
	assert.Equal(t, at(3, 10, 0), cal.queries[0].To)
}

func TestProposeSlots_SkipsWeekendAndLeadTime(t *testing.T) {
	cal := &fakeCalendar{}
	friday := at(6, 16, 30)
	s := newTestScheduler(t, cal, friday, nil)

	slots, err := s.ProposeSlots(context.Background(), SlotRequest{})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(9, 9, 0), at(9, 10, 0), at(9, 11, 0)}, starts(slots))
}

func TestProposeSlots_EarliestRespected(t *testing.T) {
	s := newTestScheduler(t, &fakeCalendar{}, at(2, 8, 0), nil)

	slots, err := s.ProposeSlots(context.Background(), SlotRequest{Earliest: at(4, 15, 0)})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(4, 15, 0), at(4, 16, 0), at(5, 9, 0)}, starts(slots))
}

func TestProposeSlots_HorizonBoundsSearch(t *testing.T) {
	cal := &fakeCalendar{events: bookedSolid(2, 6)}
	s := newTestScheduler(t, cal, at(2, 8, 0), nil)

	slots, err := s.ProposeSlots(context.Background(), SlotRequest{Urgency: UrgencyUrgent})
	require.NoError(t, err)
	assert.Empty(t, slots)
	// Tuesday through Thursday, eight hourly candidates each.
	assert.Len(t, cal.queries, 24)
}

func TestProposeSlots_WindowStartsNextBusinessDay(t *testing.T) {
	tests := []struct {
		name        string
		now         time.Time
		urgency     string
		first, last time.Time
		count       int
	}{
		{"urgent from monday", at(2, 8, 0), UrgencyUrgent, at(3, 9, 0), at(5, 16, 0), 24},
		{"urgent from thursday skips the weekend", at(5, 8, 0), UrgencyUrgent, at(6, 9, 0), at(10, 16, 0), 24},
		{"soon from monday", at(2, 8, 0), UrgencySoon, at(3, 9, 0), at(11, 16, 0), 56},
		{"urgent from friday evening", at(6, 18, 0), UrgencyUrgent, at(9, 9, 0), at(11, 16, 0), 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScheduler(t, &fakeCalendar{}, tt.now, nil)

			slots, err := s.ProposeSlots(context.Background(), SlotRequest{Urgency: tt.urgency, MaxProposals: 100})
			require.NoError(t, err)
			require.Len(t, slots, tt.count)
			assert.Equal(t, tt.first, slots[0].Start.UTC())
			assert.Equal(t, tt.last, slots[len(slots)-1].Start.UTC())
		})
	}
}

func TestProposeSlots_NoSameDaySlots(t *testing.T) {
	cal := &fakeCalendar{}
	s := newTestScheduler(t, cal, at(2, 8, 0), func(c *Config) { c.LeadTime = 0 })

	slots, err := s.ProposeSlots(context.Background(), SlotRequest{MaxProposals: 1})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(3, 9, 0)}, starts(slots))
}

func TestProposeSlots_TimeZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	s := newTestScheduler(t, &fakeCalendar{}, at(2, 12, 0), func(c *Config) { c.Location = ny })

	slots, err := s.ProposeSlots(context.Background(), SlotRequest{MaxProposals: 1})
	require.NoError(t, err)
	// 12:00 UTC is 07:00 EST on Monday, so the first slot is Tuesday
	// 09:00 EST = 14:00 UTC.
	assert.Equal(t, []time.Time{at(3, 14, 0)}, starts(slots))
	assert.Equal(t, 9, slots[0].Start.Hour())
}

func TestProposeSlots_CalendarError(t *testing.T) {
	boom := &apperrors.UpstreamError{Service: "ehr", StatusCode: 503, Message: "EHR API error: 503"}
	cal := &fakeCalendar{err: boom}
	s := newTestScheduler(t, cal, at(2, 8, 0), nil)

	_, err := s.ProposeSlots(context.Background(), SlotRequest{})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, cal.queries, 1)
}

func TestProposeSlots_RequiresProvider(t *testing.T) {
	s := newTestScheduler(t, &fakeCalendar{}, at(2, 8, 0), func(c *Config) { c.ProviderGUID = "" })
	_, err := s.ProposeSlots(context.Background(), SlotRequest{})
	var ve *apperrors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestBook(t *testing.T) {
	cal := &fakeCalendar{events: []ehr.Event{event(at(3, 10, 0), 60, ehr.StatusConfirmed)}}
	s := newTestScheduler(t, cal, at(2, 8, 0), func(c *Config) { c.EventTypeGUID = "new-patient" })

	booking, err := s.Book(context.Background(), BookingRequest{
		PatientGUID: "patient-1",
		Start:       at(3, 11, 0),
		Reason:      "exertional chest pain",
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", booking.EventID)
	assert.Equal(t, ehr.StatusPending, booking.Status)

	require.Len(t, cal.created, 1)
	created := cal.created[0]
	assert.Equal(t, "dr-reed", created.EhrUserGUID)
	assert.Equal(t, "heart-center", created.FacilityGUID)
	assert.Equal(t, "new-patient", created.EventTypeGUID)
	assert.Equal(t, 60, created.DurationMinutes)
	assert.Equal(t, "exertional chest pain", created.ChiefComplaint)
	assert.Equal(t, time.UTC, created.StartDateTimeUtc.Location())

	_, err = s.Book(context.Background(), BookingRequest{PatientGUID: "patient-2", Start: at(3, 10, 0)})
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBook_Validation(t *testing.T) {
	s := newTestScheduler(t, &fakeCalendar{}, at(2, 8, 0), nil)

	tests := []struct {
		name  string
		req   BookingRequest
		field string
	}{
		{"no patient", BookingRequest{Start: at(3, 9, 0)}, "patient_guid"},
		{"in the past", BookingRequest{PatientGUID: "p", Start: at(2, 7, 0)}, "start"},
		{"weekend", BookingRequest{PatientGUID: "p", Start: at(7, 10, 0)}, "start"},
		{"before opening", BookingRequest{PatientGUID: "p", Start: at(3, 8, 0)}, "start"},
		{"runs past closing", BookingRequest{PatientGUID: "p", Start: at(3, 16, 30)}, "start"},
		{"off grid", BookingRequest{PatientGUID: "p", Start: at(3, 10, 15)}, "start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Book(context.Background(), tt.req)
			var ve *apperrors.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestBookFirstAvailable(t *testing.T) {
	cal := &fakeCalendar{events: []ehr.Event{event(at(3, 9, 0), 60, ehr.StatusConfirmed)}}
	s := newTestScheduler(t, cal, at(2, 8, 0), nil)

	booking, err := s.Book(context.Background(), BookingRequest{PatientGUID: "patient-1", Urgency: UrgencyUrgent})
	require.NoError(t, err)
	assert.Equal(t, at(3, 10, 0), booking.Slot.Start.UTC())
}

func TestBookFirstAvailable_NoneFree(t *testing.T) {
	cal := &fakeCalendar{events: bookedSolid(2, 20)}
	s := newTestScheduler(t, cal, at(2, 8, 0), nil)

	_, err := s.BookFirstAvailable(context.Background(), BookingRequest{PatientGUID: "p"})
	var nf *apperrors.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.Location = nil },
		func(c *Config) { c.DayStartHour = 17 },
		func(c *Config) { c.SlotLength = 0 },
		func(c *Config) { c.SlotLength = 9 * time.Hour },
		func(c *Config) { c.MaxProposals = 0 },
		func(c *Config) { c.HorizonDays = map[string]int{UrgencyUrgent: 2} },
		func(c *Config) { c.HorizonDays[UrgencySoon] = 0 },
		func(c *Config) { c.Lookback = -time.Hour },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
}

func TestOverlaps(t *testing.T) {
	assert.True(t, overlaps(at(2, 9, 0), at(2, 10, 0), at(2, 9, 30), at(2, 10, 30)))
	assert.False(t, overlaps(at(2, 9, 0), at(2, 10, 0), at(2, 10, 0), at(2, 11, 0)), "touching intervals do not overlap")
	assert.True(t, overlaps(at(2, 8, 0), at(2, 12, 0), at(2, 9, 0), at(2, 10, 0)))
}
