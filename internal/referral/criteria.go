package referral

import (
	"context"

	"github.com/tombee/referral-agent/internal/criteria"
	"github.com/tombee/referral-agent/pkg/tools"
)

// CriteriaTool checks a referral against the clinical criteria.
type CriteriaTool struct {
	validator CriteriaValidator
}

// Name returns the tool identifier.
func (t *CriteriaTool) Name() string { return ToolClinicalCriteria }

// Description returns a human-readable description.
func (t *CriteriaTool) Description() string {
	return "Validate that a cardiology referral meets clinical criteria and determine its urgency " +
		"(emergent, urgent, soon or routine). An emergent result means the patient needs emergency care " +
		"now and must not be scheduled."
}

// Schema returns the tool's input schema.
func (t *CriteriaTool) Schema() *tools.Schema {
	return &tools.Schema{
		Inputs: &tools.ParameterSchema{
			Type: "object",
			Properties: map[string]*tools.Property{
				"age": {Type: "integer", Description: "Patient age in years"},
				"symptoms": {
					Type:        "array",
					Description: "Presenting symptoms, e.g. \"chest pain on exertion\", \"palpitations\", \"syncope\"",
					Items:       &tools.Property{Type: "string"},
				},
				"conditions": {
					Type:        "array",
					Description: "Relevant history, e.g. \"coronary artery disease\", \"heart murmur\"",
					Items:       &tools.Property{Type: "string"},
				},
				"systolic_bp":       {Type: "integer", Description: "Most recent systolic blood pressure (mmHg)"},
				"heart_rate":        {Type: "integer", Description: "Most recent resting heart rate (bpm)"},
				"ecg_abnormal":      {Type: "boolean", Description: "Whether a recent ECG was abnormal"},
				"troponin_elevated": {Type: "boolean", Description: "Whether troponin was elevated"},
				"reason":            {Type: "string", Description: "Reason for referral in the referring provider's words"},
			},
			Required: []string{"age", "symptoms"},
		},
	}
}

// Metadata implements tools.MetadataProvider.
func (t *CriteriaTool) Metadata() map[string]interface{} {
	return metadata("Cardiology referral appropriateness and urgency triage", "", false)
}

// Execute runs the validation.
func (t *CriteriaTool) Execute(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	var a criteria.Assessment
	if err := tools.Decode(inputs, &a); err != nil {
		return tools.Failure(err), nil
	}

	res, err := t.validator.Validate(ctx, a)
	if err != nil {
		return tools.Failure(err), nil
	}

	met := make([]map[string]interface{}, 0, len(res.Met))
	for _, m := range res.Met {
		met = append(met, map[string]interface{}{
			"id":          m.ID,
			"description": m.Description,
			"urgency":     m.Urgency,
		})
	}
	out := tools.Success(map[string]interface{}{
		"appropriate":    res.Appropriate,
		"urgency":        res.Urgency,
		"criteria_met":   met,
		"recommendation": res.Recommendation,
	})
	if len(res.Missing) > 0 {
		out["missing_information"] = res.Missing
	}
	return out, nil
}
