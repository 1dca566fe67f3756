package agent

// Config configures agent execution limits and behavior.
type Config struct {
	// MaxIterations limits the number of ReAct loop iterations per turn.
	// Default: 10
	MaxIterations int

	// ContextTokens is the estimated token budget for the conversation
	// history sent with each LLM call. Older turns are pruned past 80% of it.
	// Default: 100000
	ContextTokens int

	// MaxToolResultTokens caps the size of a single tool result fed back to
	// the model.
	// Default: 4000
	MaxToolResultTokens int

	// Model overrides the provider's configured model when set.
	Model string

	// Temperature is sent with every request. Zero keeps the triage
	// conversation deterministic.
	Temperature float64

	// MaxTokens limits each response. Zero uses the provider default.
	MaxTokens int
}

// DefaultConfig returns the default agent configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:       10,
		ContextTokens:       100000,
		MaxToolResultTokens: 4000,
	}
}

// WithDefaults fills in missing config values with defaults.
func (c Config) WithDefaults() Config {
	result := c
	d := DefaultConfig()
	if result.MaxIterations <= 0 {
		result.MaxIterations = d.MaxIterations
	}
	if result.ContextTokens <= 0 {
		result.ContextTokens = d.ContextTokens
	}
	if result.MaxToolResultTokens <= 0 {
		result.MaxToolResultTokens = d.MaxToolResultTokens
	}
	return result
}

// defaultStatusMessage is shown while tools run when the profile has no
// message for the tool and no fallback.
const defaultStatusMessage = "Processing your request..."

// Prompts holds the parts of the agent profile the loop reads on every turn.
type Prompts struct {
	// SystemInstruction is sent as the system prompt on every loop call.
	SystemInstruction string

	// FormatInstruction drives the final structured-response call.
	FormatInstruction string

	// StreamingMessages maps tool names to the status text shown while the
	// tool runs. The "fallback" and "tool_processing" keys are special.
	StreamingMessages map[string]string
}

func (p Prompts) statusFor(tool string) string {
	if msg := p.StreamingMessages[tool]; msg != "" {
		return msg
	}
	if msg := p.StreamingMessages["fallback"]; msg != "" {
		return msg
	}
	return defaultStatusMessage
}

func (p Prompts) toolProcessing() string {
	if msg := p.StreamingMessages["tool_processing"]; msg != "" {
		return msg
	}
	return defaultStatusMessage
}
