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
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Urgency levels, most pressing first.
const (
	UrgencyEmergent = "emergent"
	UrgencyUrgent   = "urgent"
	UrgencySoon     = "soon"
	UrgencyRoutine  = "routine"
)

var urgencyRank = map[string]int{
	UrgencyRoutine:  1,
	UrgencySoon:     2,
	UrgencyUrgent:   3,
	UrgencyEmergent: 4,
}

//go:embed defaults.yaml
var defaultsYAML []byte

// Rule is a single referral criterion.
type Rule struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	Description string `yaml:"description" json:"description"`
	When        string `yaml:"when" json:"when" validate:"required"`
	Urgency     string `yaml:"urgency" json:"urgency" validate:"required,oneof=emergent urgent soon routine"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules returns the embedded cardiology ruleset.
func DefaultRules() []Rule {
	rs, err := ParseRules(defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("criteria: embedded defaults: %v", err))
	}
	return rs
}

// ParseRules decodes a YAML document with a top-level "rules" list.
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing criteria rules: %w", err)
	}
	return f.Rules, nil
}
