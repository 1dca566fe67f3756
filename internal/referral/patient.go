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
	"strings"

	"github.com/tombee/referral-agent/internal/ehr"
	"github.com/tombee/referral-agent/pkg/tools"
)

// PatientTool creates (or reuses) the patient's chart in the EHR.
type PatientTool struct {
	store PatientStore
}

type patientInput struct {
	FirstName  string `json:"first_name" validate:"required,max=35"`
	LastName   string `json:"last_name" validate:"required,max=35"`
	BirthDate  string `json:"birth_date" validate:"required,datetime=2006-01-02"`
	Sex        string `json:"sex" validate:"required"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,min=7,max=20"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Street     string `json:"street_address,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty" validate:"omitempty,alpha,len=2"`
	PostalCode string `json:"postal_code,omitempty"`
}

// Name returns the tool identifier.
func (t *PatientTool) Name() string { return ToolCreatePatient }

// Description returns a human-readable description.
func (t *PatientTool) Description() string {
	return "Create the patient's chart in the Practice Fusion EHR, or reuse an existing chart with the same " +
		"name and date of birth. Returns the patient_guid needed to schedule an appointment."
}

// Schema returns the tool's input schema.
func (t *PatientTool) Schema() *tools.Schema {
	return &tools.Schema{
		Inputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"first_name":     {Type: "string", Description: "Patient's first name"},
				"last_name":      {Type: "string", Description: "Patient's last name"},
				"birth_date":     {Type: "string", Description: "Date of birth", Format: "date"},
				"sex":            {Type: "string", Description: "Male, Female or Unknown"},
				"phone":          {Type: "string", Description: "Mobile phone number (optional)"},
				"email":          {Type: "string", Description: "Email address (optional)", Format: "email"},
				"street_address": {Type: "string", Description: "Street address (optional)"},
				"city":           {Type: "string", Description: "City (optional)"},
				"state":          {Type: "string", Description: "Two-letter state abbreviation (optional)"},
				"postal_code":    {Type: "string", Description: "ZIP code (optional)"},
			},
			Required: []string{"first_name", "last_name", "birth_date", "sex"},
		},
	}
}

// Metadata implements tools.MetadataProvider.
func (t *PatientTool) Metadata() map[string]interface{} {
	return metadata("Patient chart creation in the practice EHR", "api.practicefusion.com", true)
}

// Execute creates or finds the chart.
func (t *PatientTool) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	var in patientInput
	if err := tools.Decode(inputs, &in); err != nil {
		return tools.Failure(err), nil
	}

	sex := ehr.NormalizeSex(in.Sex)
	switch sex {
	case "Male", "Female", "Unknown":
	default:
		return tools.Failuref("sex must be one of: Male, Female, Unknown"), nil
	}

	np := ehr.NewPatient{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		BirthDate:    in.BirthDate,
		Sex:          sex,
		EmailAddress: in.Email,
		MobilePhone:  in.Phone,
	}
	if in.Street != "" || in.City != "" || in.State != "" || in.PostalCode != "" {
		np.Address = &ehr.Address{
			StreetAddress1: in.Street,
			City:           in.City,
			State:          strings.ToUpper(in.State),
			PostalCode:     in.PostalCode,
		}
	}

	patient, created, err := t.store.FindOrCreatePatient(ctx, np)
	if err != nil {
		return tools.Failure(err), nil
	}

	return tools.Success(map[string]interface{}{
		"patient_guid":  patient.PatientPracticeGUID,
		"record_number": patient.PatientRecordNumber,
		"display_name":  strings.TrimSpace(patient.FirstName + " " + patient.LastName),
		"birth_date":    patient.BirthDate,
		"created":       created,
	}), nil
}
