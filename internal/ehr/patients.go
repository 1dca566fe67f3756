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
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/tombee/referral-agent/pkg/errors"
)

const patientsPath = "/ehr/v1/patients"

var validate = validator.New(validator.WithRequiredStructEnabled())

// SearchPatients finds charts matching every supplied field.
func (c *Client) SearchPatients(ctx context.Context, q PatientQuery) ([]Patient, error) {
	params := url.Values{}
	if v := strings.TrimSpace(q.FirstName); v != "" {
		params.Set("FirstName", v)
	}
	if v := strings.TrimSpace(q.LastName); v != "" {
		params.Set("LastName", v)
	}
	if v := strings.TrimSpace(q.BirthDate); v != "" {
		params.Set("BirthDate", v)
	}
	if len(params) == 0 {
		return nil, &apperrors.ValidationError{Message: "patient search needs at least one of first name, last name or birth date"}
	}

	var out struct {
		Patients []Patient `json:"patients"`
	}
	if err := c.do(ctx, http.MethodGet, patientsPath, params, nil, &out); err != nil {
		return nil, err
	}
	return out.Patients, nil
}

// CreatePatient creates a new chart.
func (c *Client) CreatePatient(ctx context.Context, p NewPatient) (*Patient, error) {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Sex = NormalizeSex(p.Sex)
	p.IsActive = true

	if err := validate.Struct(p); err != nil {
		return nil, validationError(err)
	}

	var created Patient
	if err := c.do(ctx, http.MethodPost, patientsPath, nil, p, &created); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "created patient chart", "patient_guid", created.PatientPracticeGUID)
	return &created, nil
}

// FindOrCreatePatient reuses a chart with the same name and birth date,
// creating one otherwise. The bool result is true when a chart was created.
func (c *Client) FindOrCreatePatient(ctx context.Context, p NewPatient) (*Patient, bool, error) {
	existing, err := c.SearchPatients(ctx, PatientQuery{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		BirthDate: p.BirthDate,
	})
	if err != nil {
		return nil, false, fmt.Errorf("searching for existing chart: %w", err)
	}
	for i := range existing {
		if samePerson(existing[i], p) {
			c.logger.InfoContext(ctx, "reusing existing patient chart", "patient_guid", existing[i].PatientPracticeGUID)
			return &existing[i], false, nil
		}
	}

	created, err := c.CreatePatient(ctx, p)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func samePerson(existing Patient, p NewPatient) bool {
	return strings.EqualFold(strings.TrimSpace(existing.FirstName), strings.TrimSpace(p.FirstName)) &&
		strings.EqualFold(strings.TrimSpace(existing.LastName), strings.TrimSpace(p.LastName)) &&
		existing.BirthDate == p.BirthDate
}

// NormalizeSex maps free-text answers onto the values the EHR accepts.
func NormalizeSex(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male", "man":
		return "Male"
	case "f", "female", "woman":
		return "Female"
	case "u", "unknown", "other", "x", "":
		return "Unknown"
	}
	return s
}

func validationError(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return &apperrors.ValidationError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("failed %q check", fe.Tag()),
		}
	}
	return &apperrors.ValidationError{Message: err.Error()}
}
