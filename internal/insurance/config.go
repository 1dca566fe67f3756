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

package insurance

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Payer is an insurer the practice is contracted with.
type Payer struct {
	Name      string   `yaml:"name" json:"name" validate:"required"`
	Aliases   []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	PlanTypes []string `yaml:"plan_types" json:"plan_types" validate:"min=1,dive,required"`
}

// Rule is an expr expression evaluated over the environment
// {payer, plan_type, member_id, has_pcp_referral}. When it matches, its note
// is added to the result and its flags are applied.
type Rule struct {
	ID                string `yaml:"id" json:"id" validate:"required"`
	Description       string `yaml:"description,omitempty" json:"description,omitempty"`
	When              string `yaml:"when" json:"when" validate:"required"`
	Note              string `yaml:"note,omitempty" json:"note,omitempty"`
	Deny              bool   `yaml:"deny,omitempty" json:"deny,omitempty"`
	RequiresReferral  bool   `yaml:"requires_referral,omitempty" json:"requires_referral,omitempty"`
	RequiresPriorAuth bool   `yaml:"requires_prior_auth,omitempty" json:"requires_prior_auth,omitempty"`
}

// Config lists the accepted payers and the rules applied to them.
type Config struct {
	Payers []Payer `yaml:"payers" json:"payers" validate:"min=1,dive"`
	Rules  []Rule  `yaml:"rules" json:"rules" validate:"dive"`
}

// DefaultConfig returns the built-in payer list and rules.
func DefaultConfig() Config {
	cfg, err := ParseConfig(defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("insurance: embedded defaults: %v", err))
	}
	return cfg
}

// ParseConfig decodes a payer and rule document.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing insurance config: %w", err)
	}
	return cfg, nil
}
