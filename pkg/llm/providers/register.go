package providers

import "github.com/tombee/referral-agent/pkg/llm"

func init() {
	llm.RegisterFactory("anthropic", func(cfg llm.Config) (llm.Provider, error) {
		p, err := NewAnthropicProvider(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	llm.RegisterFactory("openai", func(cfg llm.Config) (llm.Provider, error) {
		p, err := NewOpenAIProvider(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}
