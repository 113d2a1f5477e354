package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/faqgate/internal/retry"
	"github.com/dshills/faqgate/pkg/types"
)

// Anthropic API defaults.
const (
	DefaultAnthropicURL   = "https://api.anthropic.com"
	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens      = 1000
	anthropicVersion      = "2023-06-01"
	EnvAnthropicAPIKey    = "ANTHROPIC_API_KEY"
)

// AnthropicConfig configures the Messages API client.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	// Retry covers rate limiting, overload and transport errors.
	Retry      retry.Policy
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Anthropic generates answers with the Anthropic Messages API.
type Anthropic struct {
	cfg    AnthropicConfig
	client *http.Client
	logger *zap.Logger
}

// NewAnthropic creates a Messages API generator.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic API key is required", types.ErrValidation)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAnthropicURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Anthropic{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("component", "generator"), zap.String("model", cfg.Model)),
	}, nil
}

func (a *Anthropic) Name() string { return ProviderAnthropic }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends the system prompt and rendered context as a single user
// turn and returns the first text block of the reply.
func (a *Anthropic) Generate(ctx context.Context, question string, results []types.SearchResult) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System:    SystemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: BuildUserPrompt(question, results)}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	out, err := retry.Do(ctx, a.cfg.Retry, func() (*anthropicResponse, error) {
		return a.send(ctx, body)
	})
	if err != nil {
		return "", err
	}

	a.logger.Debug("answer generated",
		zap.String("id", out.ID),
		zap.String("stop_reason", out.StopReason),
		zap.Int("input_tokens", out.Usage.InputTokens),
		zap.Int("output_tokens", out.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	for _, c := range out.Content {
		if c.Type == "text" && strings.TrimSpace(c.Text) != "" {
			return c.Text, nil
		}
	}
	return "", nil
}

// send performs one Messages API call. Failures that a retry cannot fix
// are marked permanent.
func (a *Anthropic) send(ctx context.Context, body []byte) (*anthropicResponse, error) {
	endpoint := strings.TrimRight(a.cfg.BaseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("x-api-key", a.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAPI, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrAPI, err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr anthropicError
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		err := fmt.Errorf("%w: status %d: %s", ErrAPI, resp.StatusCode, msg)
		if retry.RetryableStatus(resp.StatusCode) {
			return nil, err
		}
		return nil, retry.Permanent(err)
	}

	var out anthropicResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, retry.Permanent(fmt.Errorf("%w: decode response: %w", ErrAPI, err))
	}
	return &out, nil
}
