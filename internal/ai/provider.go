package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Provider names
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderGemini     = "gemini"
)

// Default models and endpoints per provider
const (
	DefaultAnthropicModel  = "claude-sonnet-4-20250514"
	DefaultOpenAIModel     = "gpt-4o"
	DefaultOpenRouterModel = "anthropic/claude-sonnet-4-20250514"
	DefaultOllamaModel     = "llava"
	DefaultGeminiModel     = "gemini-2.0-flash"

	DefaultOpenAIBaseURL     = "https://api.openai.com/v1"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultOllamaBaseURL     = "http://localhost:11434"

	DefaultMaxTokens = 1024
)

// VisionProvider sends one image plus a prompt to a vision-capable model
// and returns the raw text reply.
type VisionProvider interface {
	Name() string
	Analyze(ctx context.Context, image []byte, mediaType, prompt string) (string, error)
}

// Config selects and configures a vision provider
type Config struct {
	Provider   string       // One of the Provider* names (default: anthropic)
	APIKey     string       // Credential for hosted providers
	Model      string       // Model id (default depends on provider)
	BaseURL    string       // Endpoint override
	MaxTokens  int          // Completion budget (default: 1024)
	HTTPClient *http.Client // Used by the net/http providers and the SDKs
}

// NewProvider builds the provider named in cfg
func NewProvider(ctx context.Context, cfg Config) (VisionProvider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = ProviderAnthropic
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	switch name {
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key (ANTHROPIC_API_KEY)")
		}
		return NewAnthropicProvider(cfg.APIKey, orDefault(cfg.Model, DefaultAnthropicModel), cfg.BaseURL, cfg.MaxTokens, httpClient), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key (OPENAI_API_KEY)")
		}
		return NewOpenAIProvider(ProviderOpenAI, orDefault(cfg.BaseURL, DefaultOpenAIBaseURL), cfg.APIKey,
			orDefault(cfg.Model, DefaultOpenAIModel), cfg.MaxTokens, httpClient), nil
	case ProviderOpenRouter:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openrouter provider requires an API key (OPENROUTER_API_KEY)")
		}
		return NewOpenAIProvider(ProviderOpenRouter, orDefault(cfg.BaseURL, DefaultOpenRouterBaseURL), cfg.APIKey,
			orDefault(cfg.Model, DefaultOpenRouterModel), cfg.MaxTokens, httpClient), nil
	case ProviderOllama:
		return NewOllamaProvider(orDefault(cfg.BaseURL, DefaultOllamaBaseURL), orDefault(cfg.Model, DefaultOllamaModel), httpClient), nil
	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key (GEMINI_API_KEY)")
		}
		return NewGeminiProvider(ctx, cfg.APIKey, orDefault(cfg.Model, DefaultGeminiModel), cfg.BaseURL, cfg.MaxTokens, httpClient)
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.Provider)
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
