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

package criteria

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tombee/referral-agent/pkg/errors"
)

func intp(v int) *int    { return &v }
func boolp(v bool) *bool { return &v }

func matchIDs(ms []Match) []string {
	ids := make([]string, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestValidate(t *testing.T) {
	v, err := New(nil, nil, nil)
	require.NoError(t, err)

	tests := []struct {
		name        string
		in          Assessment
		appropriate bool
		urgency     string
		met         []string
	}{
		{
			name:        "exertional chest pain",
			in:          Assessment{Age: 58, Symptoms: []string{"Chest pain when climbing stairs"}},
			appropriate: true,
			urgency:     UrgencyUrgent,
			met:         []string{"exertional_chest_pain"},
		},
		{
			name:        "palpitations and abnormal ecg",
			in:          Assessment{Age: 44, Symptoms: []string{"Palpitations"}, ECGAbnormal: boolp(true)},
			appropriate: true,
			urgency:     UrgencySoon,
			met:         []string{"palpitations", "abnormal_ecg"},
		},
		{
			name:        "highest urgency wins",
			in:          Assessment{Age: 71, Symptoms: []string{"shortness of breath"}, Conditions: []string{"Prior MI"}, HeartRate: intp(130)},
			appropriate: true,
			urgency:     UrgencyUrgent,
			met:         []string{"abnormal_heart_rate", "dyspnea_on_exertion", "known_cad"},
		},
		{
			name:        "elevated troponin is emergent",
			in:          Assessment{Age: 63, Symptoms: []string{"fatigue"}, TroponinElevated: boolp(true)},
			appropriate: false,
			urgency:     UrgencyEmergent,
			met:         []string{"elevated_troponin"},
		},
		{
			name:        "hypertensive crisis",
			in:          Assessment{Age: 50, SystolicBP: intp(192)},
			appropriate: false,
			urgency:     UrgencyEmergent,
			met:         []string{"hypertensive_crisis"},
		},
		{
			name:        "uncontrolled hypertension",
			in:          Assessment{Age: 50, SystolicBP: intp(165)},
			appropriate: true,
			urgency:     UrgencySoon,
			met:         []string{"uncontrolled_hypertension"},
		},
		{
			name:        "normal findings",
			in:          Assessment{Age: 35, Symptoms: []string{"fatigue"}, SystolicBP: intp(118), HeartRate: intp(72), ECGAbnormal: boolp(false)},
			appropriate: false,
			met:         []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := v.Validate(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.appropriate, res.Appropriate)
			assert.Equal(t, tt.urgency, res.Urgency)
			assert.Equal(t, tt.met, matchIDs(res.Met))
			assert.NotEmpty(t, res.Recommendation)
		})
	}
}

func TestValidate_EmergentRecommendsEmergencyCare(t *testing.T) {
	v, err := New(nil, nil, nil)
	require.NoError(t, err)

	res, err := v.Validate(context.Background(), Assessment{Age: 66, Symptoms: []string{"crushing chest pain at rest"}})
	require.NoError(t, err)
	assert.False(t, res.Appropriate)
	assert.Equal(t, UrgencyEmergent, res.Urgency)
	assert.Contains(t, res.Recommendation, "emergency")
	assert.Contains(t, matchIDs(res.Met), "exertional_chest_pain")
}

func TestValidate_NegatedSymptomsDoNotMatch(t *testing.T) {
	v, err := New(nil, nil, nil)
	require.NoError(t, err)

	res, err := v.Validate(context.Background(), Assessment{
		Age:      61,
		Symptoms: []string{"exertional chest pain", "denies chest pain at rest", "no radiating pain"},
	})
	require.NoError(t, err)
	assert.True(t, res.Appropriate)
	assert.Equal(t, UrgencyUrgent, res.Urgency)
	assert.Equal(t, []string{"exertional_chest_pain"}, matchIDs(res.Met))
}

func TestValidate_ListsMissingFields(t *testing.T) {
	v, err := New(nil, nil, nil)
	require.NoError(t, err)

	res, err := v.Validate(context.Background(), Assessment{Age: 40, HeartRate: intp(80)})
	require.NoError(t, err)
	assert.False(t, res.Appropriate)
	assert.Equal(t, []string{"symptoms", "conditions", "systolic_bp", "ecg_abnormal", "troponin_elevated"}, res.Missing)
	assert.Contains(t, res.Recommendation, "symptoms, conditions")
}

func TestValidate_OutOfRange(t *testing.T) {
	v, err := New(nil, nil, nil)
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), Assessment{Age: 40, SystolicBP: intp(900)})
	var ve *apperrors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "systolic_bp", ve.Field)
}

func TestNew_InvalidRules(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"bad urgency", Rule{ID: "x", When: "true", Urgency: "whenever"}},
		{"bad expression", Rule{ID: "x", When: "age >", Urgency: UrgencySoon}},
		{"missing when", Rule{ID: "x", Urgency: UrgencySoon}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New([]Rule{tt.rule}, nil, nil)
			var ce *apperrors.ConfigError
			assert.True(t, errors.As(err, &ce), "got %v", err)
		})
	}
}

func TestDefaultRules(t *testing.T) {
	rs := DefaultRules()
	require.NotEmpty(t, rs)
	seen := map[string]bool{}
	for _, r := range rs {
		assert.False(t, seen[r.ID], "duplicate rule id %s", r.ID)
		seen[r.ID] = true
	}
	assert.True(t, seen["elevated_troponin"])
}
