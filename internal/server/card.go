package server

import "github.com/tombee/referral-agent/internal/config"

// AgentCard is served at /.well-known/agent.json so clients can discover
// the agent.
type AgentCard struct {
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	URL                string         `json:"url"`
	Version            string         `json:"version"`
	DefaultInputModes  []string       `json:"default_input_modes"`
	DefaultOutputModes []string       `json:"default_output_modes"`
	Capabilities       Capabilities   `json:"capabilities"`
	Skills             []config.Skill `json:"skills"`
}

// Capabilities lists optional protocol features.
type Capabilities struct {
	Streaming bool `json:"streaming"`
}

// NewAgentCard builds the card for a profile's agent_info.
func NewAgentCard(info config.AgentInfo, url string) AgentCard {
	modes := append([]string(nil), info.SupportedContentTypes...)
	if len(modes) == 0 {
		modes = append(modes, config.DefaultContentTypes...)
	}
	skills := append([]config.Skill(nil), info.Skills...)
	if skills == nil {
		skills = []config.Skill{}
	}
	return AgentCard{
		Name:               info.Name,
		Description:        info.Description,
		URL:                url,
		Version:            info.Version,
		DefaultInputModes:  modes,
		DefaultOutputModes: modes,
		Capabilities:       Capabilities{Streaming: true},
		Skills:             skills,
	}
}
