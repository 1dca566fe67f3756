package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	apperrors "github.com/tombee/referral-agent/pkg/errors"
	"github.com/tombee/referral-agent/pkg/agent"
)

//go:embed default_profile.yaml
var defaultProfileYAML []byte

// Defaults for agent_info fields a profile leaves out.
const (
	DefaultAgentName        = "Generic Agent"
	DefaultAgentDescription = "A configurable AI agent"
	DefaultAgentVersion     = "1.0.0"
)

// DefaultContentTypes are advertised when a profile lists none.
var DefaultContentTypes = []string{"text", "text/plain"}

// Profile is the agent's persona: the prompts the loop sends, the status
// messages shown while tools run and the agent card fields.
type Profile struct {
	AgentInfo         AgentInfo         `yaml:"agent_info"`
	SystemInstruction string            `yaml:"system_instruction" validate:"required"`
	FormatInstruction string            `yaml:"format_instruction" validate:"required"`
	StreamingMessages map[string]string `yaml:"streaming_messages,omitempty"`
}

// AgentInfo describes the agent in its card.
type AgentInfo struct {
	Name                  string   `yaml:"name"`
	Description           string   `yaml:"description"`
	Version               string   `yaml:"version"`
	SupportedContentTypes []string `yaml:"supported_content_types"`
	Skills                []Skill  `yaml:"skills,omitempty" validate:"dive"`
}

// Skill is one capability advertised in the agent card.
type Skill struct {
	ID          string   `yaml:"id" json:"id" validate:"required"`
	Name        string   `yaml:"name" json:"name" validate:"required"`
	Description string   `yaml:"description" json:"description"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Examples    []string `yaml:"examples,omitempty" json:"examples,omitempty"`
}

// DefaultProfile returns the embedded cardiology referral profile.
func DefaultProfile() *Profile {
	p, err := ParseProfile(defaultProfileYAML)
	if err != nil {
		panic(fmt.Sprintf("config: embedded profile: %v", err))
	}
	return p
}

// LoadProfile reads the profile at path. An empty path returns the
// embedded profile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &apperrors.ConfigError{Key: "profile_path", Reason: fmt.Sprintf("failed to read %s", path), Cause: err}
	}
	p, err := ParseProfile(data)
	if err != nil {
		return nil, &apperrors.ConfigError{Key: "profile_path", Reason: fmt.Sprintf("invalid profile %s: %v", path, err), Cause: err}
	}
	return p, nil
}

// ParseProfile decodes and validates a profile document, filling in
// agent_info defaults.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validate.Struct(&p); err != nil {
		var verrs validator.ValidationErrors
		if apperrors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("%s", fieldMessage(verrs[0]))
		}
		return nil, err
	}
	p.applyDefaults()
	return &p, nil
}

func (p *Profile) applyDefaults() {
	if p.AgentInfo.Name == "" {
		p.AgentInfo.Name = DefaultAgentName
	}
	if p.AgentInfo.Description == "" {
		p.AgentInfo.Description = DefaultAgentDescription
	}
	if p.AgentInfo.Version == "" {
		p.AgentInfo.Version = DefaultAgentVersion
	}
	if len(p.AgentInfo.SupportedContentTypes) == 0 {
		p.AgentInfo.SupportedContentTypes = append([]string(nil), DefaultContentTypes...)
	}
}

// Prompts converts the profile for the agent loop.
func (p *Profile) Prompts() agent.Prompts {
	msgs := make(map[string]string, len(p.StreamingMessages))
	for k, v := range p.StreamingMessages {
		msgs[k] = v
	}
	return agent.Prompts{
		SystemInstruction: p.SystemInstruction,
		FormatInstruction: p.FormatInstruction,
		StreamingMessages: msgs,
	}
}
