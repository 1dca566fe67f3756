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

	"github.com/tombee/referral-agent/internal/insurance"
	"github.com/tombee/referral-agent/pkg/tools"
)

// InsuranceTool checks whether the patient's coverage is accepted.
type InsuranceTool struct {
	checker CoverageChecker
}

// Name returns the tool identifier.
func (t *InsuranceTool) Name() string { return ToolCheckInsurance }

// Description returns a human-readable description.
func (t *InsuranceTool) Description() string {
	return "Check whether the cardiology practice accepts the patient's insurance plan, " +
		"and whether a PCP referral or prior authorization is needed."
}

// Schema returns the tool's input schema.
func (t *InsuranceTool) Schema() *tools.Schema {
	return &tools.Schema{
		Inputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"payer":            {Type: "string", Description: "Insurance company name, e.g. Aetna or Blue Cross Blue Shield"},
				"plan_type":        {Type: "string", Description: "Plan type, e.g. PPO, HMO, EPO, POS, Advantage"},
				"member_id":        {Type: "string", Description: "Member ID from the insurance card (6-20 letters or digits)"},
				"has_pcp_referral": {Type: "boolean", Description: "Whether the primary care provider has issued a referral", Default: false},
			},
			Required: []string{"payer", "plan_type", "member_id"},
		},
	}
}

// Metadata implements tools.MetadataProvider.
func (t *InsuranceTool) Metadata() map[string]interface{} {
	return metadata("Payer acceptance and referral requirements", "", false)
}

// Execute runs the check.
func (t *InsuranceTool) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	var req insurance.Request
	if err := tools.Decode(inputs, &req); err != nil {
		return tools.Failure(err), nil
	}

	res, err := t.checker.Check(ctx, req)
	if err != nil {
		return tools.Failure(err), nil
	}

	out := tools.Success(map[string]interface{}{
		"accepted":            res.Accepted,
		"payer":               res.Payer,
		"plan_type":           res.PlanType,
		"requires_referral":   res.RequiresReferral,
		"requires_prior_auth": res.RequiresPriorAuth,
		"notes":               res.Notes,
	})
	if !res.Accepted {
		out["accepted_payers"] = t.checker.Payers()
	}
	return out, nil
}
