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

// Package referral implements the tools the referral agent calls: provider
// identity lookup, insurance and clinical criteria checks, EHR chart
// creation and appointment scheduling.
//
// Every tool reports domain failures to the model as
// {"success": false, "error": "..."} and only returns a Go error when the
// call itself could not be handled.
package referral

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tombee/referral-agent/internal/criteria"
	"github.com/tombee/referral-agent/internal/ehr"
	"github.com/tombee/referral-agent/internal/insurance"
	"github.com/tombee/referral-agent/internal/nppes"
	"github.com/tombee/referral-agent/internal/scheduling"
	"github.com/tombee/referral-agent/pkg/tools"
)

// Tool names as the model sees them.
const (
	ToolProviderIdentity    = "get_referring_provider_identity"
	ToolProviderByNPI       = "lookup_provider_by_npi"
	ToolCheckInsurance      = "check_insurance"
	ToolClinicalCriteria    = "validate_clinical_criteria"
	ToolCreatePatient       = "create_ehr_patient"
	ToolFindSlots           = "find_appointment_slots"
	ToolScheduleAppointment = "schedule_appointment"
)

// ProviderVerifier looks up referring providers.
type ProviderVerifier interface {
	Verify(ctx context.Context, req nppes.VerifyRequest) nppes.VerifyResult
	VerifyNPI(ctx context.Context, npi string) nppes.VerifyResult
}

// CoverageChecker checks insurance acceptance.
type CoverageChecker interface {
	Check(ctx context.Context, req insurance.Request) (*insurance.Result, error)
	Payers() []string
}

// CriteriaValidator checks whether a referral meets clinical criteria.
type CriteriaValidator interface {
	Validate(ctx context.Context, a criteria.Assessment) (*criteria.Result, error)
}

// PatientStore creates patient charts.
type PatientStore interface {
	FindOrCreatePatient(ctx context.Context, p ehr.NewPatient) (*ehr.Patient, bool, error)
}

// SlotBooker proposes and books appointment slots.
type SlotBooker interface {
	ProposeSlots(ctx context.Context, req scheduling.SlotRequest) ([]scheduling.Slot, error)
	Book(ctx context.Context, req scheduling.BookingRequest) (*scheduling.Booking, error)
}

// Deps are the services behind the tools. Nil services leave their tools
// unregistered.
type Deps struct {
	Providers ProviderVerifier
	Insurance CoverageChecker
	Criteria  CriteriaValidator
	Patients  PatientStore
	Scheduler SlotBooker

	// Location interprets dates and times given without a zone.
	// Defaults to UTC.
	Location *time.Location

	Logger *slog.Logger
}

// RegisterAll registers every tool whose service is configured and returns
// the names registered.
func RegisterAll(reg *tools.Registry, deps Deps) ([]string, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}

	var all []tools.Tool
	if deps.Providers != nil {
		all = append(all,
			&ProviderIdentityTool{verifier: deps.Providers},
			&ProviderByNPITool{verifier: deps.Providers},
		)
	}
	if deps.Insurance != nil {
		all = append(all, &InsuranceTool{checker: deps.Insurance})
	}
	if deps.Criteria != nil {
		all = append(all, &CriteriaTool{validator: deps.Criteria})
	}
	if deps.Patients != nil {
		all = append(all, &PatientTool{store: deps.Patients})
	} else {
		logger.Info("EHR not configured, patient chart tool disabled")
	}
	if deps.Scheduler != nil {
		all = append(all,
			&FindSlotsTool{scheduler: deps.Scheduler, loc: loc},
			&ScheduleTool{scheduler: deps.Scheduler, loc: loc},
		)
	} else {
		logger.Info("EHR not configured, scheduling tools disabled")
	}

	names := make([]string, 0, len(all))
	for _, t := range all {
		if err := reg.Register(t); err != nil {
			return names, fmt.Errorf("registering %s: %w", t.Name(), err)
		}
		names = append(names, t.Name())
	}
	return names, nil
}

// metadata builds the introspection fields every tool publishes.
func metadata(description, apiDependency string, rateLimited bool) map[string]interface{} {
	m := map[string]interface{}{
		"category":     "healthcare",
		"description":  description,
		"rate_limited": rateLimited,
	}
	if apiDependency != "" {
		m["api_dependency"] = apiDependency
	}
	return m
}
