package generator

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/faqgate/pkg/types"
)

// Config selects and configures a Generator.
type Config struct {
	Provider  string // anthropic, extractive, or "" / auto
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Logger    *zap.Logger
}

// New builds the configured generator. Auto selects Anthropic when an API
// key is available and the extractive generator otherwise.
func New(cfg Config) (Generator, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(EnvAnthropicAPIKey)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "auto":
		if cfg.APIKey == "" {
			return NewExtractive(0), nil
		}
		return newAnthropicFrom(cfg)
	case ProviderAnthropic:
		return newAnthropicFrom(cfg)
	case ProviderExtractive:
		return NewExtractive(0), nil
	default:
		return nil, fmt.Errorf("%w: unknown generator provider %q", types.ErrValidation, cfg.Provider)
	}
}

func newAnthropicFrom(cfg Config) (Generator, error) {
	return NewAnthropic(AnthropicConfig{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Logger:    cfg.Logger,
	})
}
