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

// Package criteria checks a patient's findings against cardiology referral
// criteria and derives how soon they should be seen.
package criteria

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tombee/referral-agent/internal/rules"
	apperrors "github.com/tombee/referral-agent/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var tracer = otel.Tracer("github.com/tombee/referral-agent/internal/criteria")

// Assessment holds the clinical findings supplied by the referring office.
// Pointer fields are optional.
type Assessment struct {
	Age              int      `json:"age" validate:"gte=0,lte=130"`
	Symptoms         []string `json:"symptoms,omitempty"`
	Conditions       []string `json:"conditions,omitempty"`
	SystolicBP       *int     `json:"systolic_bp,omitempty" validate:"omitnil,gte=40,lte=300"`
	HeartRate        *int     `json:"heart_rate,omitempty" validate:"omitnil,gte=20,lte=300"`
	ECGAbnormal      *bool    `json:"ecg_abnormal,omitempty"`
	TroponinElevated *bool    `json:"troponin_elevated,omitempty"`
	Reason           string   `json:"reason,omitempty"`
}

// Match is a rule that matched an assessment.
type Match struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Urgency     string `json:"urgency"`
}

// Result reports whether a cardiology referral is appropriate.
type Result struct {
	Appropriate    bool     `json:"appropriate"`
	Urgency        string   `json:"urgency,omitempty"`
	Met            []Match  `json:"met"`
	Missing        []string `json:"missing,omitempty"`
	Recommendation string   `json:"recommendation"`
}

// Validator evaluates assessments against a ruleset.
type Validator struct {
	rules  []Rule
	engine *rules.Engine
	logger *slog.Logger
}

// New compiles rs. An empty ruleset selects DefaultRules.
func New(rs []Rule, engine *rules.Engine, logger *slog.Logger) (*Validator, error) {
	if len(rs) == 0 {
		rs = DefaultRules()
	}
	if engine == nil {
		engine = rules.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	for i, r := range rs {
		if err := validate.Struct(r); err != nil {
			return nil, &apperrors.ConfigError{Key: fmt.Sprintf("criteria.rules[%d]", i), Reason: err.Error(), Cause: err}
		}
		if err := engine.Compile(r.When); err != nil {
			return nil, &apperrors.ConfigError{Key: fmt.Sprintf("criteria.rules[%s]", r.ID), Reason: err.Error(), Cause: err}
		}
	}
	return &Validator{rules: rs, engine: engine, logger: logger.With("component", "criteria")}, nil
}

// Validate evaluates every rule against a. An emergent match means the
// patient should go to emergency care, so the referral is not appropriate.
func (v *Validator) Validate(ctx context.Context, a Assessment) (*Result, error) {
	if err := validate.Struct(a); err != nil {
		return nil, assessmentError(err)
	}

	ctx, span := tracer.Start(ctx, "criteria.Validate")
	defer span.End()

	env := environment(a)
	res := &Result{Met: []Match{}}
	for _, r := range v.rules {
		ok, err := v.engine.Evaluate(r.When, env)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("criteria rule %s: %w", r.ID, err)
		}
		if !ok {
			continue
		}
		res.Met = append(res.Met, Match{ID: r.ID, Description: r.Description, Urgency: r.Urgency})
		if urgencyRank[r.Urgency] > urgencyRank[res.Urgency] {
			res.Urgency = r.Urgency
		}
	}

	switch {
	case res.Urgency == UrgencyEmergent:
		res.Recommendation = "These findings suggest a possible emergency. Direct the patient to the nearest emergency department or call 911 instead of scheduling an outpatient referral."
	case len(res.Met) > 0:
		res.Appropriate = true
		res.Recommendation = recommendationFor(res.Urgency)
	default:
		res.Missing = missingFields(a)
		res.Recommendation = "The findings provided do not meet cardiology referral criteria."
		if len(res.Missing) > 0 {
			res.Recommendation += " Ask the referring office for: " + strings.Join(res.Missing, ", ") + "."
		}
	}

	span.SetAttributes(
		attribute.String("criteria.urgency", res.Urgency),
		attribute.Int("criteria.matched", len(res.Met)),
	)
	v.logger.InfoContext(ctx, "clinical criteria evaluated",
		"appropriate", res.Appropriate, "urgency", res.Urgency, "matched", len(res.Met))
	return res, nil
}

func recommendationFor(urgency string) string {
	switch urgency {
	case UrgencyUrgent:
		return "Referral is appropriate. Offer the earliest available appointment, within 3 days."
	case UrgencySoon:
		return "Referral is appropriate. Schedule within one week."
	default:
		return "Referral is appropriate. Schedule a routine appointment."
	}
}

func environment(a Assessment) map[string]interface{} {
	env := map[string]interface{}{
		"age":        a.Age,
		"symptoms":   lower(a.Symptoms),
		"conditions": lower(a.Conditions),
		"reason":     strings.ToLower(a.Reason),
	}
	if a.SystolicBP != nil {
		env["systolic_bp"] = *a.SystolicBP
	}
	if a.HeartRate != nil {
		env["heart_rate"] = *a.HeartRate
	}
	if a.ECGAbnormal != nil {
		env["ecg_abnormal"] = *a.ECGAbnormal
	}
	if a.TroponinElevated != nil {
		env["troponin_elevated"] = *a.TroponinElevated
	}
	return env
}

func lower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}

func missingFields(a Assessment) []string {
	var missing []string
	if a.Age == 0 {
		missing = append(missing, "age")
	}
	if len(lower(a.Symptoms)) == 0 {
		missing = append(missing, "symptoms")
	}
	if len(lower(a.Conditions)) == 0 {
		missing = append(missing, "conditions")
	}
	if a.SystolicBP == nil {
		missing = append(missing, "systolic_bp")
	}
	if a.HeartRate == nil {
		missing = append(missing, "heart_rate")
	}
	if a.ECGAbnormal == nil {
		missing = append(missing, "ecg_abnormal")
	}
	if a.TroponinElevated == nil {
		missing = append(missing, "troponin_elevated")
	}
	return missing
}

func assessmentError(err error) error {
	var verrs validator.ValidationErrors
	if apperrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := map[string]string{
			"Age":        "age",
			"SystolicBP": "systolic_bp",
			"HeartRate":  "heart_rate",
		}[fe.Field()]
		if field == "" {
			field = fe.Field()
		}
		return &apperrors.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s value %v is out of range", field, fe.Value()),
		}
	}
	return &apperrors.ValidationError{Message: err.Error()}
}
