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

package ehr

import (
	"strings"
	"time"
)

// DateLayout is the calendar date format used for birth dates.
const DateLayout = "2006-01-02"

// Patient is a patient chart in the practice.
type Patient struct {
	PatientPracticeGUID string    `json:"patientPracticeGuid,omitempty"`
	PatientRecordNumber string    `json:"patientRecordNumber,omitempty"`
	FirstName           string    `json:"firstName"`
	MiddleName          string    `json:"middleName,omitempty"`
	LastName            string    `json:"lastName"`
	BirthDate           string    `json:"birthDate"`
	Sex                 string    `json:"sex"`
	EmailAddress        string    `json:"emailAddress,omitempty"`
	MobilePhone         string    `json:"mobilePhone,omitempty"`
	HomePhone           string    `json:"homePhone,omitempty"`
	Address             *Address  `json:"address,omitempty"`
	IsActive            bool      `json:"isActive"`
	CreatedDateTimeUtc  time.Time `json:"createdDateTimeUtc,omitzero"`
}

// Address is a postal address.
type Address struct {
	StreetAddress1 string `json:"streetAddress1,omitempty"`
	StreetAddress2 string `json:"streetAddress2,omitempty"`
	City           string `json:"city,omitempty"`
	State          string `json:"state,omitempty"`
	PostalCode     string `json:"postalCode,omitempty"`
}

// NewPatient is the payload for creating a chart.
type NewPatient struct {
	FirstName       string   `json:"firstName" validate:"required,max=35"`
	MiddleName      string   `json:"middleName,omitempty" validate:"max=35"`
	LastName        string   `json:"lastName" validate:"required,max=35"`
	BirthDate       string   `json:"birthDate" validate:"required,datetime=2006-01-02"`
	Sex             string   `json:"sex" validate:"required,oneof=Male Female Unknown"`
	EmailAddress    string   `json:"emailAddress,omitempty" validate:"omitempty,email"`
	MobilePhone     string   `json:"mobilePhone,omitempty" validate:"omitempty,min=7,max=20"`
	Address         *Address `json:"address,omitempty"`
	IsActive        bool     `json:"isActive"`
}

// PatientQuery filters a patient search. At least one field is required.
type PatientQuery struct {
	FirstName string
	LastName  string
	BirthDate string
}

// User is a member of the practice. Providers have IsProvider set.
type User struct {
	EhrUserGUID string `json:"ehrUserGuid"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Credential  string `json:"credential,omitempty"`
	NPI         string `json:"npi,omitempty"`
	Specialty   string `json:"specialty,omitempty"`
	IsProvider  bool   `json:"isProvider"`
	IsActive    bool   `json:"isActive"`
}

// DisplayName renders "First Last, Credential".
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if u.Credential != "" {
		name += ", " + u.Credential
	}
	return name
}

// Facility is a practice location.
type Facility struct {
	FacilityGUID string `json:"facilityGuid"`
	Name         string `json:"name"`
	TimeZone     string `json:"timeZone,omitempty"`
	IsActive     bool   `json:"isActive"`
}

// Appointment statuses that matter for conflict detection.
const (
	StatusPending   = "Pending"
	StatusConfirmed = "Confirmed"
	StatusCancelled = "Cancelled"
	StatusNoShow    = "NoShow"
)

// Event is a calendar entry for a provider. Appointments carry a patient.
type Event struct {
	EventID             string    `json:"eventId,omitempty"`
	EventTypeGUID       string    `json:"eventTypeGuid,omitempty"`
	EventTypeName       string    `json:"eventTypeName,omitempty"`
	EhrUserGUID         string    `json:"ehrUserGuid"`
	FacilityGUID        string    `json:"facilityGuid"`
	PatientPracticeGUID string    `json:"patientPracticeGuid,omitempty"`
	StartDateTimeUtc    time.Time `json:"startDateTimeUtc"`
	DurationMinutes     int       `json:"duration"`
	AppointmentStatus   string    `json:"appointmentStatus,omitempty"`
	ChiefComplaint      string    `json:"chiefComplaint,omitempty"`
	Note                string    `json:"note,omitempty"`
}

// End returns the end of the event.
func (e Event) End() time.Time {
	return e.StartDateTimeUtc.Add(time.Duration(e.DurationMinutes) * time.Minute)
}

// Blocks reports whether the event occupies the provider's calendar.
// Cancelled and no-show appointments free the slot.
func (e Event) Blocks() bool {
	switch e.AppointmentStatus {
	case StatusCancelled, StatusNoShow:
		return false
	}
	return true
}

// EventQuery selects events by start time and owner. Both bounds are
// inclusive and compared against event start times.
type EventQuery struct {
	ProviderGUID string
	FacilityGUID string
	From         time.Time
	To           time.Time
}

// NewEvent is the payload for booking an appointment.
type NewEvent struct {
	EventTypeGUID       string    `json:"eventTypeGuid,omitempty"`
	EhrUserGUID         string    `json:"ehrUserGuid"`
	FacilityGUID        string    `json:"facilityGuid"`
	PatientPracticeGUID string    `json:"patientPracticeGuid"`
	StartDateTimeUtc    time.Time `json:"startDateTimeUtc"`
	DurationMinutes     int       `json:"duration"`
	AppointmentStatus   string    `json:"appointmentStatus"`
	ChiefComplaint      string    `json:"chiefComplaint,omitempty"`
	Note                string    `json:"note,omitempty"`
}
