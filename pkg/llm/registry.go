package llm

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	pkgerrors "github.com/tombee/referral-agent/pkg/errors"
)

// ErrFactoryNotFound indicates no factory is registered for the provider.
var ErrFactoryNotFound = errors.New("provider factory not found")

// Config holds the settings a provider factory needs.
type Config struct {
	// Provider selects the factory, e.g. "anthropic" or "openai".
	Provider string

	// APIKey authenticates with the provider.
	APIKey string

	// BaseURL overrides the provider's API endpoint.
	BaseURL string

	// Model is the default model ID for requests that do not name one.
	Model string

	// MaxTokens is the default response limit.
	MaxTokens int

	// Timeout bounds a single request.
	Timeout time.Duration
}

// ProviderFactory creates a Provider from configuration.
type ProviderFactory func(cfg Config) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]ProviderFactory)
)

// RegisterFactory registers a provider factory function. It is called from
// init() in the providers package. Registering a name twice replaces the
// previous factory.
func RegisterFactory(name string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// ListFactories returns the registered provider names, sorted alphabetically.
func ListFactories() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New instantiates the provider named by cfg.Provider.
func New(cfg Config) (Provider, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.Provider]
	factoriesMu.RUnlock()

	if !ok {
		return nil, &pkgerrors.ConfigError{
			Key:    "llm.provider",
			Reason: fmt.Sprintf("unknown provider %q (available: %v)", cfg.Provider, ListFactories()),
			Cause:  ErrFactoryNotFound,
		}
	}
	p, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", cfg.Provider, err)
	}
	return p, nil
}
