package embedder

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Config selects and configures an embedding provider. It mirrors the
// embedding section of the faqgate config file.
type Config struct {
	// Provider is jina, openai, local, or empty/"auto" to detect from the
	// environment.
	Provider          string
	APIKey            string
	Endpoint          string
	Model             string
	Dimension         int
	CacheSize         int
	RequestsPerSecond float64
	Logger            *zap.Logger
}

// New builds the configured provider behind a fresh vector cache.
func New(cfg Config) (Embedder, error) {
	cache := NewCache(cfg.CacheSize)

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" || provider == "auto" {
		provider = DetectProvider()
	}

	remote := RemoteConfig{
		Name:              provider,
		APIKey:            cfg.APIKey,
		Endpoint:          cfg.Endpoint,
		Model:             cfg.Model,
		Dimension:         cfg.Dimension,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            cfg.Logger,
	}

	switch provider {
	case ProviderJina:
		fillRemoteDefaults(&remote, EnvJinaAPIKey, JinaEndpoint, DefaultJinaModel, JinaDimension)
	case ProviderOpenAI:
		fillRemoteDefaults(&remote, EnvOpenAIAPIKey, OpenAIEndpoint, DefaultOpenAIModel, OpenAIDimension)
	case ProviderLocal:
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}

	if remote.APIKey == "" {
		return nil, fmt.Errorf("%w: API key for %s not set", ErrNoProviderEnabled, provider)
	}
	return NewRemoteProvider(remote, cache)
}

// NewFromEnv builds the provider DetectProvider picks.
func NewFromEnv() (Embedder, error) {
	return New(Config{Provider: DetectProvider()})
}

// DetectProvider honours FAQGATE_EMBEDDING_PROVIDER, then picks the first
// remote provider with an API key in the environment, then falls back to
// local.
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}

func fillRemoteDefaults(cfg *RemoteConfig, keyEnv, endpoint, model string, dim int) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(keyEnv)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = endpoint
	}
	if cfg.Model == "" {
		cfg.Model = model
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = dim
	}
}
