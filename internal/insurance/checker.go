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

// Package insurance decides whether a patient's coverage is accepted for a
// cardiology referral and what paperwork the plan needs.
package insurance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/tombee/referral-agent/internal/rules"
	apperrors "github.com/tombee/referral-agent/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Request describes the coverage to check.
type Request struct {
	PayerName      string `json:"payer" validate:"required"`
	PlanType       string `json:"plan_type" validate:"required"`
	MemberID       string `json:"member_id" validate:"required,alphanum,min=6,max=20"`
	HasPCPReferral bool   `json:"has_pcp_referral"`
}

// Result is the outcome of a coverage check.
type Result struct {
	Accepted          bool     `json:"accepted"`
	Payer             string   `json:"payer"`
	PlanType          string   `json:"plan_type"`
	RequiresReferral  bool     `json:"requires_referral"`
	RequiresPriorAuth bool     `json:"requires_prior_auth"`
	Notes             []string `json:"notes"`
}

// Checker evaluates coverage against the configured payers and rules.
type Checker struct {
	payers map[string]Payer
	rules  []Rule
	engine *rules.Engine
	logger *slog.Logger
}

// NewChecker validates cfg and compiles its rules.
func NewChecker(cfg Config, engine *rules.Engine, logger *slog.Logger) (*Checker, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, &apperrors.ConfigError{Key: "insurance", Reason: err.Error(), Cause: err}
	}
	if engine == nil {
		engine = rules.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Checker{
		payers: make(map[string]Payer),
		rules:  cfg.Rules,
		engine: engine,
		logger: logger.With("component", "insurance"),
	}
	for _, p := range cfg.Payers {
		c.payers[payerKey(p.Name)] = p
		for _, alias := range p.Aliases {
			c.payers[payerKey(alias)] = p
		}
	}
	for _, r := range cfg.Rules {
		if err := engine.Compile(r.When); err != nil {
			return nil, &apperrors.ConfigError{
				Key:    fmt.Sprintf("insurance.rules[%s]", r.ID),
				Reason: err.Error(),
				Cause:  err,
			}
		}
	}
	return c, nil
}

// Check returns whether the plan is accepted. Invalid requests return a
// ValidationError; an unknown payer or plan type is a normal, not-accepted
// result.
func (c *Checker) Check(ctx context.Context, req Request) (*Result, error) {
	req.PayerName = strings.TrimSpace(req.PayerName)
	req.MemberID = strings.TrimSpace(req.MemberID)
	req.PlanType = strings.ToUpper(strings.TrimSpace(req.PlanType))

	if err := validate.Struct(req); err != nil {
		return nil, requestError(err)
	}

	res := &Result{PlanType: req.PlanType, Notes: []string{}}

	payer, ok := c.payers[payerKey(req.PayerName)]
	if !ok {
		res.Payer = req.PayerName
		res.Notes = append(res.Notes, fmt.Sprintf("%s is not an accepted payer.", req.PayerName))
		c.logger.DebugContext(ctx, "unknown payer", "payer", req.PayerName)
		return res, nil
	}
	res.Payer = payer.Name

	if !acceptsPlan(payer, req.PlanType) {
		res.Notes = append(res.Notes, fmt.Sprintf("%s %s plans are not accepted. Accepted plan types: %s.",
			payer.Name, req.PlanType, strings.Join(payer.PlanTypes, ", ")))
		return res, nil
	}

	res.Accepted = true
	env := map[string]interface{}{
		"payer":            payer.Name,
		"plan_type":        req.PlanType,
		"member_id":        req.MemberID,
		"has_pcp_referral": req.HasPCPReferral,
	}
	for _, r := range c.rules {
		matched, err := c.engine.Evaluate(r.When, env)
		if err != nil {
			return nil, fmt.Errorf("insurance rule %s: %w", r.ID, err)
		}
		if !matched {
			continue
		}
		c.logger.DebugContext(ctx, "insurance rule matched", "rule", r.ID)
		if r.Deny {
			res.Accepted = false
		}
		res.RequiresReferral = res.RequiresReferral || r.RequiresReferral
		res.RequiresPriorAuth = res.RequiresPriorAuth || r.RequiresPriorAuth
		if r.Note != "" {
			res.Notes = append(res.Notes, r.Note)
		}
	}

	c.logger.InfoContext(ctx, "insurance checked",
		"payer", res.Payer, "plan_type", res.PlanType, "accepted", res.Accepted)
	return res, nil
}

// Payers returns the configured payer names, sorted.
func (c *Checker) Payers() []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range c.payers {
		if !seen[p.Name] {
			seen[p.Name] = true
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	return names
}

func acceptsPlan(p Payer, planType string) bool {
	for _, t := range p.PlanTypes {
		if strings.EqualFold(t, planType) {
			return true
		}
	}
	return false
}

// payerKey folds case and drops everything but letters and digits, so
// "Blue-Cross" and "blue cross" match.
func payerKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func requestError(err error) error {
	var verrs validator.ValidationErrors
	if apperrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		switch field {
		case "PayerName":
			field = "payer"
		case "PlanType":
			field = "plan_type"
		case "MemberID":
			field = "member_id"
		}
		msg := fmt.Sprintf("%s is required", field)
		if fe.Tag() != "required" {
			msg = fmt.Sprintf("%s must be 6 to 20 letters or digits", field)
		}
		return &apperrors.ValidationError{Field: field, Message: msg}
	}
	return &apperrors.ValidationError{Message: err.Error()}
}
