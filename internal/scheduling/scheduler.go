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

// Package scheduling proposes appointment slots from a provider's calendar
// and books them. Candidate slots are walked in order on a fixed grid and
// each one is checked for overlap with a calendar query.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tombee/referral-agent/internal/ehr"
	apperrors "github.com/tombee/referral-agent/pkg/errors"
)

// ErrSlotTaken is returned by Book when the slot became busy.
var ErrSlotTaken = errors.New("slot is no longer available")

// Calendar is the part of the EHR the scheduler needs.
type Calendar interface {
	QueryEvents(ctx context.Context, q ehr.EventQuery) ([]ehr.Event, error)
	CreateEvent(ctx context.Context, e ehr.NewEvent) (*ehr.Event, error)
}

// Slot is a bookable interval for a provider.
type Slot struct {
	Start        time.Time
	End          time.Time
	ProviderGUID string
	FacilityGUID string
}

// SlotRequest asks for free slots.
type SlotRequest struct {
	ProviderGUID string
	FacilityGUID string
	Urgency      string
	// Earliest is the first acceptable start. Zero means the next business day.
	Earliest time.Time
	// MaxProposals overrides the configured cap when > 0.
	MaxProposals int
}

// BookingRequest books a specific slot, or the first free one when Start
// is zero.
type BookingRequest struct {
	PatientGUID  string
	ProviderGUID string
	FacilityGUID string
	Start        time.Time
	Urgency      string
	Reason       string
}

// Display renders the slot as "Monday, Jan 2 at 3:04 PM".
func (s Slot) Display() string {
	return s.Start.Format("Monday, Jan 2") + " at " + s.Start.Format("3:04 PM")
}

// Booking is a confirmed calendar entry.
type Booking struct {
	EventID string
	Slot    Slot
	Status  string
}

// Scheduler finds and books slots.
type Scheduler struct {
	calendar Calendar
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a Scheduler.
func New(calendar Calendar, cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		calendar: calendar,
		cfg:      cfg,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduling")
	return s, nil
}

var tracer = otel.Tracer("github.com/tombee/referral-agent/internal/scheduling")

// ProposeSlots walks the slot grid from the next business day (or the
// requested earliest start, if later) across the urgency horizon and returns
// up to MaxProposals free slots in chronological order. The horizon is a
// count of searched days, so skipped weekends do not consume it. Each
// candidate costs one calendar query and queries are issued one at a time.
func (s *Scheduler) ProposeSlots(ctx context.Context, req SlotRequest) ([]Slot, error) {
	provider, facility, err := s.resolve(req.ProviderGUID, req.FacilityGUID)
	if err != nil {
		return nil, err
	}

	limit := s.cfg.MaxProposals
	if req.MaxProposals > 0 {
		limit = req.MaxProposals
	}

	loc := s.cfg.Location
	now := s.now().In(loc)
	earliest := now.Add(s.cfg.LeadTime)
	if req.Earliest.After(earliest) {
		earliest = req.Earliest.In(loc)
	}
	firstDay := s.nextBusinessDay(startOfDay(now))
	if d := startOfDay(earliest); d.After(firstDay) {
		firstDay = d
	}
	horizon := s.cfg.horizon(req.Urgency)

	ctx, span := tracer.Start(ctx, "scheduling.ProposeSlots")
	defer span.End()

	var (
		proposals []Slot
		checked   int
	)
	for day, searched := firstDay, 0; searched < horizon; day = day.AddDate(0, 0, 1) {
		if s.cfg.SkipWeekends && isWeekend(day) {
			continue
		}
		searched++
		open, closing := businessHours(day, s.cfg)

		for start := open; !start.Add(s.cfg.SlotLength).After(closing); start = start.Add(s.cfg.SlotLength) {
			if start.Before(earliest) {
				continue
			}
			slot := Slot{Start: start, End: start.Add(s.cfg.SlotLength), ProviderGUID: provider, FacilityGUID: facility}

			checked++
			busy, err := s.conflicts(ctx, slot)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "calendar query failed")
				return nil, fmt.Errorf("checking %s: %w", start.Format(time.RFC3339), err)
			}
			if busy {
				continue
			}

			proposals = append(proposals, slot)
			if len(proposals) == limit {
				span.SetAttributes(attribute.Int("slots.checked", checked), attribute.Int("slots.found", len(proposals)))
				return proposals, nil
			}
		}
	}

	span.SetAttributes(attribute.Int("slots.checked", checked), attribute.Int("slots.found", len(proposals)))
	s.logger.InfoContext(ctx, "slot search finished", "checked", checked, "found", len(proposals), "urgency", req.Urgency)
	return proposals, nil
}

// Book validates the requested slot, re-checks it against the calendar and
// creates the appointment.
func (s *Scheduler) Book(ctx context.Context, req BookingRequest) (*Booking, error) {
	if req.PatientGUID == "" {
		return nil, &apperrors.ValidationError{Field: "patient_guid", Message: "a patient chart is required before booking"}
	}
	if req.Start.IsZero() {
		return s.BookFirstAvailable(ctx, req)
	}

	provider, facility, err := s.resolve(req.ProviderGUID, req.FacilityGUID)
	if err != nil {
		return nil, err
	}

	start := req.Start.In(s.cfg.Location)
	if err := s.checkGrid(start); err != nil {
		return nil, err
	}
	slot := Slot{Start: start, End: start.Add(s.cfg.SlotLength), ProviderGUID: provider, FacilityGUID: facility}

	ctx, span := tracer.Start(ctx, "scheduling.Book")
	defer span.End()

	busy, err := s.conflicts(ctx, slot)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("re-checking slot: %w", err)
	}
	if busy {
		return nil, ErrSlotTaken
	}

	ev, err := s.calendar.CreateEvent(ctx, ehr.NewEvent{
		EventTypeGUID:       s.cfg.EventTypeGUID,
		EhrUserGUID:         provider,
		FacilityGUID:        facility,
		PatientPracticeGUID: req.PatientGUID,
		StartDateTimeUtc:    slot.Start.UTC(),
		DurationMinutes:     int(s.cfg.SlotLength / time.Minute),
		AppointmentStatus:   ehr.StatusPending,
		ChiefComplaint:      req.Reason,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create event failed")
		return nil, err
	}

	status := ev.AppointmentStatus
	if status == "" {
		status = ehr.StatusPending
	}
	return &Booking{EventID: ev.EventID, Slot: slot, Status: status}, nil
}

// BookFirstAvailable books the earliest free slot.
func (s *Scheduler) BookFirstAvailable(ctx context.Context, req BookingRequest) (*Booking, error) {
	slots, err := s.ProposeSlots(ctx, SlotRequest{
		ProviderGUID: req.ProviderGUID,
		FacilityGUID: req.FacilityGUID,
		Urgency:      req.Urgency,
		MaxProposals: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, &apperrors.NotFoundError{Resource: "available slot", ID: req.Urgency}
	}
	req.Start = slots[0].Start
	return s.Book(ctx, req)
}

// conflicts reports whether any blocking event overlaps slot.
func (s *Scheduler) conflicts(ctx context.Context, slot Slot) (bool, error) {
	events, err := s.calendar.QueryEvents(ctx, ehr.EventQuery{
		ProviderGUID: slot.ProviderGUID,
		From:         slot.Start.Add(-s.cfg.Lookback),
		To:           slot.End,
	})
	if err != nil {
		return false, err
	}
	for _, ev := range events {
		if ev.Blocks() && overlaps(ev.StartDateTimeUtc, ev.End(), slot.Start, slot.End) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Scheduler) resolve(provider, facility string) (string, string, error) {
	if provider == "" {
		provider = s.cfg.ProviderGUID
	}
	if facility == "" {
		facility = s.cfg.FacilityGUID
	}
	if provider == "" {
		return "", "", &apperrors.ValidationError{
			Field:      "provider_guid",
			Message:    "no provider specified and no default provider configured",
			Suggestion: "set scheduling.provider_guid in the config file",
		}
	}
	return provider, facility, nil
}

// checkGrid rejects starts that are in the past, off the slot grid or
// outside business days and hours.
func (s *Scheduler) checkGrid(start time.Time) error {
	if start.Before(s.now()) {
		return &apperrors.ValidationError{Field: "start", Message: "appointment time is in the past"}
	}
	if s.cfg.SkipWeekends && isWeekend(start) {
		return &apperrors.ValidationError{Field: "start", Message: "appointments are only available on weekdays"}
	}
	open, closing := businessHours(start, s.cfg)
	if start.Before(open) || start.Add(s.cfg.SlotLength).After(closing) {
		return &apperrors.ValidationError{
			Field:   "start",
			Message: fmt.Sprintf("appointments run between %02d:00 and %02d:00", s.cfg.DayStartHour, s.cfg.DayEndHour),
		}
	}
	if start.Sub(open)%s.cfg.SlotLength != 0 {
		return &apperrors.ValidationError{Field: "start", Message: fmt.Sprintf("appointments start on %v boundaries", s.cfg.SlotLength)}
	}
	return nil
}

// overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// businessHours returns the opening and closing instants on t's date,
// computed from wall clock hours so DST transitions are respected.
func businessHours(t time.Time, cfg Config) (time.Time, time.Time) {
	y, m, d := t.Date()
	return time.Date(y, m, d, cfg.DayStartHour, 0, 0, 0, t.Location()),
		time.Date(y, m, d, cfg.DayEndHour, 0, 0, 0, t.Location())
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// nextBusinessDay returns the first day after day that the practice is open.
func (s *Scheduler) nextBusinessDay(day time.Time) time.Time {
	next := day.AddDate(0, 0, 1)
	for s.cfg.SkipWeekends && isWeekend(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
