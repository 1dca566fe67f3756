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

package nppes

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	apperrors "github.com/tombee/referral-agent/pkg/errors"
)

const (
	msgNamesRequired = "Both first name and last name are required"
	msgUnexpected    = "An unexpected error occurred during provider verification"
)

// Searcher is the part of Client the Verifier needs.
type Searcher interface {
	SearchProviders(ctx context.Context, p SearchParams) (*SearchResponse, error)
}

// VerifyRequest identifies the referring provider as given by the user.
type VerifyRequest struct {
	FirstName string
	LastName  string
	City      string
	State     string
	NPI       string
}

// ProviderSummary is the per-provider view handed to the model.
type ProviderSummary struct {
	NPI             string
	FirstName       string
	MiddleName      string
	LastName        string
	Credential      string
	NamePrefix      string
	DisplayName     string
	Status          string
	EnumerationDate string
	City            string
	State           string
	Phone           string
	Specialty       string
	// MatchesNPI is nil when the request carried no NPI.
	MatchesNPI *bool
}

// VerifyResult is the outcome of a verification attempt. Failures are
// reported in Error with Success false, never as a Go error.
type VerifyResult struct {
	Success     bool
	Error       string
	ResultCount int
	Providers   []ProviderSummary
	Criteria    VerifyRequest
}

// Verifier looks up referring providers and summarises the matches.
type Verifier struct {
	search Searcher
	logger *slog.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(s Searcher, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{search: s, logger: logger.With("component", "provider_verification")}
}

// Verify searches the registry for the provider described by req.
func (v *Verifier) Verify(ctx context.Context, req VerifyRequest) VerifyResult {
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return VerifyResult{Success: false, Error: msgNamesRequired}
	}

	data, err := v.search.SearchProviders(ctx, SearchParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		City:      req.City,
		State:     req.State,
	})
	if err != nil {
		var up *apperrors.UpstreamError
		if errors.As(err, &up) {
			v.logger.ErrorContext(ctx, "provider verification failed", "error", err)
			return VerifyResult{Success: false, Error: up.Message}
		}
		v.logger.ErrorContext(ctx, "unexpected error in provider verification", "error", err)
		return VerifyResult{Success: false, Error: msgUnexpected}
	}

	wantNPI := strings.TrimSpace(req.NPI)
	providers := make([]ProviderSummary, 0, len(data.Results))
	for _, p := range data.Results {
		providers = append(providers, summarize(p, wantNPI, req.NPI != ""))
	}

	return VerifyResult{
		Success:     true,
		ResultCount: data.ResultCount,
		Providers:   providers,
		Criteria:    req,
	}
}

// NPILookup is implemented by searchers that can fetch a single NPI record.
type NPILookup interface {
	LookupNPI(ctx context.Context, npi string) (*Provider, error)
}

// VerifyNPI looks up a provider directly by NPI. Malformed numbers are
// rejected before any request is made.
func (v *Verifier) VerifyNPI(ctx context.Context, npi string) VerifyResult {
	lookup, ok := v.search.(NPILookup)
	if !ok {
		return VerifyResult{Success: false, Error: msgUnexpected}
	}

	p, err := lookup.LookupNPI(ctx, npi)
	if err != nil {
		var (
			ve *apperrors.ValidationError
			nf *apperrors.NotFoundError
			up *apperrors.UpstreamError
		)
		switch {
		case errors.As(err, &ve):
			return VerifyResult{Success: false, Error: ve.Message}
		case errors.As(err, &nf):
			return VerifyResult{Success: false, Error: "No provider found with NPI " + strings.TrimSpace(npi)}
		case errors.As(err, &up):
			v.logger.ErrorContext(ctx, "NPI lookup failed", "error", err)
			return VerifyResult{Success: false, Error: up.Message}
		}
		v.logger.ErrorContext(ctx, "unexpected error in NPI lookup", "error", err)
		return VerifyResult{Success: false, Error: msgUnexpected}
	}

	npi = strings.TrimSpace(npi)
	return VerifyResult{
		Success:     true,
		ResultCount: 1,
		Providers:   []ProviderSummary{summarize(*p, npi, true)},
		Criteria:    VerifyRequest{NPI: npi},
	}
}

func summarize(p Provider, wantNPI string, checkNPI bool) ProviderSummary {
	b := p.Basic
	s := ProviderSummary{
		NPI:             p.Number.String(),
		FirstName:       b.FirstName,
		MiddleName:      b.MiddleName,
		LastName:        b.LastName,
		Credential:      b.Credential,
		NamePrefix:      b.NamePrefix,
		DisplayName:     displayName(b),
		Status:          "Inactive",
		EnumerationDate: b.EnumerationDate,
	}
	if b.Status == "A" {
		s.Status = "Active"
	}
	if addr, ok := p.LocationAddress(); ok {
		s.City = addr.City
		s.State = addr.State
		s.Phone = addr.TelephoneNumber
	}
	if tax, ok := p.PrimaryTaxonomy(); ok {
		s.Specialty = tax.Desc
	}
	if checkNPI {
		match := s.NPI == wantNPI
		s.MatchesNPI = &match
	}
	return s
}

// displayName renders "Dr. Jane Q Doe, MD" from the registry's upper-case
// fields.
func displayName(b Basic) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{b.NamePrefix, b.FirstName, b.MiddleName, b.LastName} {
		if p = strings.TrimSpace(p); p != "" && p != "--" {
			parts = append(parts, p)
		}
	}
	name := cases.Title(language.English).String(strings.ToLower(strings.Join(parts, " ")))
	if cred := strings.TrimSpace(b.Credential); cred != "" {
		name += ", " + cred
	}
	return name
}

// Map renders the result in the shape returned to the model.
func (r VerifyResult) Map() map[string]interface{} {
	if !r.Success {
		return map[string]interface{}{
			"success": false,
			"error":   r.Error,
		}
	}

	providers := make([]interface{}, 0, len(r.Providers))
	for _, p := range r.Providers {
		m := map[string]interface{}{
			"npi":              p.NPI,
			"first_name":       p.FirstName,
			"middle_name":      p.MiddleName,
			"last_name":        p.LastName,
			"credential":       p.Credential,
			"name_prefix":      p.NamePrefix,
			"display_name":     p.DisplayName,
			"status":           p.Status,
			"enumeration_date": p.EnumerationDate,
			"city":             p.City,
			"state":            p.State,
			"matches_npi":      nil,
		}
		if p.Specialty != "" {
			m["specialty"] = p.Specialty
		}
		if p.Phone != "" {
			m["phone"] = p.Phone
		}
		if p.MatchesNPI != nil {
			m["matches_npi"] = *p.MatchesNPI
		}
		providers = append(providers, m)
	}

	return map[string]interface{}{
		"success":      true,
		"result_count": r.ResultCount,
		"providers":    providers,
		"search_criteria": map[string]interface{}{
			"first_name": r.Criteria.FirstName,
			"last_name":  r.Criteria.LastName,
			"city":       optional(r.Criteria.City),
			"state":      optional(r.Criteria.State),
			"npi":        optional(r.Criteria.NPI),
		},
	}
}

func optional(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
