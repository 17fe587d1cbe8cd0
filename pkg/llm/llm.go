// Package llm calls hosted and local language models with a single prompt
// and returns the text reply. Providers: OpenAI, Anthropic and Ollama.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/papercomputeco/presence/pkg/credentials"
	"github.com/papercomputeco/presence/pkg/logger"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"

	// DefaultTimeout bounds every call when CallerConfig.Timeout is zero.
	DefaultTimeout = 60 * time.Second
)

// Request is one model call.
type Request struct {
	// System is an optional system prompt.
	System string

	// Prompt is the user message.
	Prompt string

	// MaxTokens caps the reply length. Zero uses the provider default.
	MaxTokens int

	// JSON asks the provider for a JSON object reply where supported.
	JSON bool
}

// CallFunc performs one blocking model call.
type CallFunc func(ctx context.Context, req Request) (string, error)

// StatusError is a non-200 reply from a provider.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.Code, e.Body)
}

// Retryable reports whether the status is worth trying again later.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// ErrEmptyReply is returned when a provider answers with no content.
var ErrEmptyReply = errors.New("model returned an empty reply")

// CallerConfig holds configuration for creating a caller.
type CallerConfig struct {
	Provider string               // "openai", "anthropic", or "ollama"
	Model    string               // e.g. "gpt-4o-mini", "claude-haiku-4-5-20251001"
	APIKey   string               // explicit API key (highest priority)
	BaseURL  string               // override base URL
	CredMgr  *credentials.Manager // credentials from presence auth
	Timeout  time.Duration        // per-call timeout

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// HasCredentials checks whether an API key can be resolved from the config
// without creating a caller.
func HasCredentials(cfg CallerConfig) bool {
	provider := strings.ToLower(cfg.Provider)
	if cfg.APIKey != "" || provider == ProviderOllama {
		return true
	}
	return resolveAPIKey(cfg, provider) != ""
}

// NewCaller creates a CallFunc based on the provided configuration.
// Resolution order for API key:
//  1. Explicit APIKey in config
//  2. credentials.Manager (from presence auth)
//  3. Environment variables (OPENAI_API_KEY / ANTHROPIC_API_KEY)
//
// Unlike hosted providers, Ollama needs no key.
func NewCaller(cfg CallerConfig) (CallFunc, error) {
	provider := strings.ToLower(cfg.Provider)
	model := cfg.Model

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = resolveAPIKey(cfg, provider)
	}

	c := &caller{
		client:  cfg.HTTPClient,
		timeout: cfg.Timeout,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  cfg.Logger,
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	if c.timeout == 0 {
		c.timeout = DefaultTimeout
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}

	switch provider {
	case ProviderOpenAI, "":
		if apiKey == "" {
			return nil, errors.New("no API key found for openai; run presence auth openai or set OPENAI_API_KEY")
		}
		if model == "" {
			model = "gpt-4o-mini"
		}
		if c.baseURL == "" {
			c.baseURL = "https://api.openai.com"
		}
		c.model = model
		return c.openai, nil

	case ProviderAnthropic:
		if apiKey == "" {
			return nil, errors.New("no API key found for anthropic; run presence auth anthropic or set ANTHROPIC_API_KEY")
		}
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		if c.baseURL == "" {
			c.baseURL = "https://api.anthropic.com"
		}
		c.model = model
		return c.anthropic, nil

	case ProviderOllama:
		if model == "" {
			model = "llama3.2"
		}
		if c.baseURL == "" {
			c.baseURL = "http://localhost:11434"
		}
		c.model = model
		return c.ollama, nil

	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func resolveAPIKey(cfg CallerConfig, provider string) string {
	if cfg.CredMgr != nil {
		if key, err := cfg.CredMgr.GetKey(provider); err == nil && key != "" {
			return key
		}
	}
	if env := credentials.EnvVarForProvider(provider); env != "" {
		return os.Getenv(env)
	}
	return ""
}
