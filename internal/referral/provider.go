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

	"github.com/tombee/referral-agent/internal/nppes"
	"github.com/tombee/referral-agent/pkg/tools"
)

// ProviderIdentityTool searches the NPPES registry for the referring
// provider.
type ProviderIdentityTool struct {
	verifier ProviderVerifier
}

type providerInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty" validate:"omitempty,alpha,len=2"`
	NPI       string `json:"npi,omitempty" validate:"omitempty,numeric,len=10"`
}

// Name returns the tool identifier.
func (t *ProviderIdentityTool) Name() string { return ToolProviderIdentity }

// Description returns a human-readable description.
func (t *ProviderIdentityTool) Description() string {
	return "Search for healthcare providers in the NPPES NPI Registry. " +
		"Use this tool to look up the referring provider's identity for referral verification. " +
		"The tool returns structured data: interpret the results and guide the conversation appropriately. " +
		"When several providers match, ask the user for the city, state or NPI to narrow the search."
}

// Schema returns the tool's input/output schema.
func (t *ProviderIdentityTool) Schema() *tools.Schema {
	return &tools.Schema{
		Inputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"first_name": {Type: "string", Description: "Provider's first name"},
				"last_name":  {Type: "string", Description: "Provider's last name"},
				"city":       {Type: "string", Description: "City to narrow the search (optional)"},
				"state":      {Type: "string", Description: "Two-letter state abbreviation to narrow the search (optional)"},
				"npi":        {Type: "string", Description: "NPI number to validate against the results (optional)"},
			},
			Required: []string{"first_name", "last_name"},
		},
		Outputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"success":         {Type: "boolean"},
				"result_count":    {Type: "integer"},
				"providers":       {Type: "array", Items: &tools.Property{Type: "object"}},
				"search_criteria": {Type: "object"},
				"error":           {Type: "string"},
			},
		},
	}
}

// Metadata implements tools.MetadataProvider.
func (t *ProviderIdentityTool) Metadata() map[string]interface{} {
	return metadata("Healthcare provider identity verification for cardiology referrals", "npiregistry.cms.hhs.gov", true)
}

// Execute runs the search.
func (t *ProviderIdentityTool) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	var in providerInput
	if err := tools.Decode(inputs, &in); err != nil {
		return tools.Failure(err), nil
	}

	res := t.verifier.Verify(ctx, nppes.VerifyRequest{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		City:      in.City,
		State:     in.State,
		NPI:       strings.TrimSpace(in.NPI),
	})
	return res.Map(), nil
}

// ProviderByNPITool validates an NPI and returns the registered provider.
type ProviderByNPITool struct {
	verifier ProviderVerifier
}

// Name returns the tool identifier.
func (t *ProviderByNPITool) Name() string { return ToolProviderByNPI }

// Description returns a human-readable description.
func (t *ProviderByNPITool) Description() string {
	return "Look up a healthcare provider by their 10-digit NPI number in the NPPES NPI Registry. " +
		"Use this when the user gives an NPI instead of, or in addition to, the provider's name."
}

// Schema returns the tool's input schema.
func (t *ProviderByNPITool) Schema() *tools.Schema {
	return &tools.Schema{
		Inputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"npi": {Type: "string", Description: "10-digit National Provider Identifier"},
			},
			Required: []string{"npi"},
		},
	}
}

// Metadata implements tools.MetadataProvider.
func (t *ProviderByNPITool) Metadata() map[string]interface{} {
	return metadata("Direct NPI validation against the NPPES registry", "npiregistry.cms.hhs.gov", true)
}

// Execute runs the lookup.
func (t *ProviderByNPITool) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	var in struct {
		NPI string `json:"npi" validate:"required"`
	}
	if err := tools.Decode(inputs, &in); err != nil {
		return tools.Failure(err), nil
	}
	return t.verifier.VerifyNPI(ctx, in.NPI).Map(), nil
}
