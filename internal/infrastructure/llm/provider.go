package llm

import (
	"fmt"
	"sync"

	"github.com/nilcaream/bobai/internal/domain/service"
	"go.uber.org/zap"
)

// Provider is the infrastructure-layer LLM provider interface. Each
// provider implements service.LLMClient so the agent loop can stream
// through it.
type Provider interface {
	service.LLMClient

	// Name returns the provider identifier (e.g. "copilot", "openai").
	Name() string
}

// ProviderConfig holds configuration for an LLM provider.
type ProviderConfig struct {
	Name    string `json:"name"`
	Type    string `json:"type"` // "openai" (default)
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
}

// Built-in chat-completions endpoints for the known provider ids.
// Config base_urls entries override these.
var defaultBaseURLs = map[string]string{
	"copilot": "https://api.githubcopilot.com",
	"openai":  "https://api.openai.com/v1",
}

// DefaultBaseURL returns the built-in endpoint for a provider id, or ""
// when the provider needs an explicit base URL.
func DefaultBaseURL(name string) string {
	return defaultBaseURLs[name]
}

// --- Provider factory registry ---
// Providers register themselves via init() in their own package.
// Adding a new provider type = implement Provider + RegisterFactory.

// ProviderFactory creates a Provider from config.
type ProviderFactory func(cfg ProviderConfig, logger *zap.Logger) Provider

var (
	factoryMu sync.RWMutex
	factories = map[string]ProviderFactory{}
)

// RegisterFactory registers a provider factory for the given type name.
func RegisterFactory(typeName string, factory ProviderFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[typeName] = factory
}

// CreateProvider creates a Provider using the registered factory for
// cfg.Type. An empty Type defaults to "openai".
func CreateProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	t := cfg.Type
	if t == "" {
		t = "openai"
	}

	factoryMu.RLock()
	factory, ok := factories[t]
	factoryMu.RUnlock()

	if !ok {
		factoryMu.RLock()
		available := make([]string, 0, len(factories))
		for k := range factories {
			available = append(available, k)
		}
		factoryMu.RUnlock()
		return nil, fmt.Errorf("unknown provider type %q (available: %v)", t, available)
	}

	return factory(cfg, logger), nil
}
