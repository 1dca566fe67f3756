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

package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tombee/referral-agent/internal/scheduling"
	apperrors "github.com/tombee/referral-agent/pkg/errors"
	"github.com/tombee/referral-agent/pkg/tools"
)

const (
	msgEmergent  = "Emergent presentations must be directed to emergency care (call 911 or go to the nearest emergency department) and cannot be scheduled"
	msgNoSlots   = "No available appointment slots were found in the scheduling window for this urgency"
	msgSlotTaken = "That slot is no longer available. Offer the patient another time"
)

// FindSlotsTool proposes free appointment slots.
type FindSlotsTool struct {
	scheduler SlotBooker
	loc       *time.Location
}

type findSlotsInput struct {
	Urgency      string `json:"urgency,omitempty" validate:"omitempty,oneof=emergent urgent soon routine"`
	ProviderGUID string `json:"provider_guid,omitempty"`
	FacilityGUID string `json:"facility_guid,omitempty"`
	EarliestDate string `json:"earliest_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	MaxResults   int    `json:"max_results,omitempty" validate:"omitempty,min=1,max=10"`
}

// Name returns the tool identifier.
func (t *FindSlotsTool) Name() string { return ToolFindSlots }

// Description returns a human-readable description.
func (t *FindSlotsTool) Description() string {
	return "Find open appointment slots with the cardiologist. The search window depends on urgency " +
		"(urgent: 3 days, soon: 7 days, routine: 14 days). Offer the returned slots to the user before booking."
}

// Schema returns the tool's input schema.
func (t *FindSlotsTool) Schema() *tools.Schema {
	return &tools.Schema{
		Inputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"urgency": {
					Type:        "string",
					Description: "Urgency from validate_clinical_criteria",
					Enum:        []interface{}{"urgent", "soon", "routine"},
					Default:     "routine",
				},
				"provider_guid": {Type: "string", Description: "Cardiologist's EHR user GUID (optional, defaults to the practice cardiologist)"},
				"facility_guid": {Type: "string", Description: "Facility GUID (optional)"},
				"earliest_date": {Type: "string", Description: "Earliest acceptable date (optional)", Format: "date"},
				"max_results":   {Type: "integer", Description: "Number of slots to propose (default 3)"},
			},
		},
	}
}

// Metadata implements tools.MetadataProvider.
func (t *FindSlotsTool) Metadata() map[string]interface{} {
	return metadata("Appointment slot search against the EHR calendar", "api.practicefusion.com", true)
}

// Execute searches for slots.
func (t *FindSlotsTool) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	var in findSlotsInput
	if err := tools.Decode(inputs, &in); err != nil {
		return tools.Failure(err), nil
	}
	if in.Urgency == "emergent" {
		return tools.Failuref("%s", msgEmergent), nil
	}
	if in.Urgency == "" {
		in.Urgency = scheduling.UrgencyRoutine
	}

	req := scheduling.SlotRequest{
		ProviderGUID: in.ProviderGUID,
		FacilityGUID: in.FacilityGUID,
		Urgency:      in.Urgency,
		MaxProposals: in.MaxResults,
	}
	if in.EarliestDate != "" {
		d, err := time.ParseInLocation("2006-01-02", in.EarliestDate, t.loc)
		if err != nil {
			return tools.Failuref("earliest_date must be a date in 2006-01-02 format"), nil
		}
		req.Earliest = d
	}

	slots, err := t.scheduler.ProposeSlots(ctx, req)
	if err != nil {
		return tools.Failure(err), nil
	}
	if len(slots) == 0 {
		return tools.Failuref("%s", msgNoSlots), nil
	}

	out := make([]map[string]interface{}, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotMap(s))
	}
	return tools.Success(map[string]interface{}{
		"urgency": in.Urgency,
		"slots":   out,
	}), nil
}

// ScheduleTool books an appointment.
type ScheduleTool struct {
	scheduler SlotBooker
	loc       *time.Location
}

type scheduleInput struct {
	PatientGUID  string `json:"patient_guid" validate:"required"`
	Start        string `json:"start,omitempty"`
	ProviderGUID string `json:"provider_guid,omitempty"`
	FacilityGUID string `json:"facility_guid,omitempty"`
	Urgency      string `json:"urgency,omitempty" validate:"omitempty,oneof=emergent urgent soon routine"`
	Reason       string `json:"reason,omitempty" validate:"max=500"`
}

// Name returns the tool identifier.
func (t *ScheduleTool) Name() string { return ToolScheduleAppointment }

// Description returns a human-readable description.
func (t *ScheduleTool) Description() string {
	return "Book a cardiology appointment for a patient chart. Pass the start time of a slot returned by " +
		"find_appointment_slots, or omit start to book the first available slot for the urgency."
}

// Schema returns the tool's input schema.
func (t *ScheduleTool) Schema() *tools.Schema {
	return &tools.Schema{
		Inputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"patient_guid":  {Type: "string", Description: "patient_guid returned by create_ehr_patient"},
				"start":         {Type: "string", Description: "Slot start time (optional)", Format: "date-time"},
				"provider_guid": {Type: "string", Description: "Cardiologist's EHR user GUID (optional)"},
				"facility_guid": {Type: "string", Description: "Facility GUID (optional)"},
				"urgency": {
					Type:        "string",
					Description: "Urgency, used when start is omitted",
					Enum:        []interface{}{"urgent", "soon", "routine"},
				},
				"reason": {Type: "string", Description: "Chief complaint for the visit"},
			},
			Required: []string{"patient_guid"},
		},
	}
}

// Metadata implements tools.MetadataProvider.
func (t *ScheduleTool) Metadata() map[string]interface{} {
	return metadata("Appointment booking in the EHR calendar", "api.practicefusion.com", true)
}

// Execute books the slot.
func (t *ScheduleTool) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	var in scheduleInput
	if err := tools.Decode(inputs, &in); err != nil {
		return tools.Failure(err), nil
	}
	if in.Urgency == "emergent" {
		return tools.Failuref("%s", msgEmergent), nil
	}
	if in.Urgency == "" {
		in.Urgency = scheduling.UrgencyRoutine
	}

	req := scheduling.BookingRequest{
		PatientGUID:  in.PatientGUID,
		ProviderGUID: in.ProviderGUID,
		FacilityGUID: in.FacilityGUID,
		Urgency:      in.Urgency,
		Reason:       in.Reason,
	}
	if in.Start != "" {
		start, err := parseStart(in.Start, t.loc)
		if err != nil {
			return tools.Failure(err), nil
		}
		req.Start = start
	}

	booking, err := t.scheduler.Book(ctx, req)
	if err != nil {
		var nf *apperrors.NotFoundError
		switch {
		case errors.Is(err, scheduling.ErrSlotTaken):
			return tools.Failuref("%s", msgSlotTaken), nil
		case errors.As(err, &nf):
			return tools.Failuref("%s", msgNoSlots), nil
		}
		return tools.Failure(err), nil
	}

	out := slotMap(booking.Slot)
	out["event_id"] = booking.EventID
	out["status"] = booking.Status
	out["patient_guid"] = in.PatientGUID
	return tools.Success(out), nil
}

func slotMap(s scheduling.Slot) map[string]interface{} {
	return map[string]interface{}{
		"start":         s.Start.Format(time.RFC3339),
		"end":           s.End.Format(time.RFC3339),
		"display":       s.Display(),
		"provider_guid": s.ProviderGUID,
		"facility_guid": s.FacilityGUID,
	}
}

var startLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseStart accepts RFC 3339 or a local date and time in loc.
func parseStart(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range startLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &apperrors.ValidationError{
		Field:   "start",
		Message: fmt.Sprintf("start %q must be a date-time such as 2025-03-04T10:00", s),
	}
}
