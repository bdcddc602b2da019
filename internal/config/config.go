// Package config loads gallery daemon configuration from defaults, a YAML
// file, a .env file and GALLERY_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tracgallery/gallery/internal/logging"
	"github.com/tracgallery/gallery/internal/storage"
	"github.com/tracgallery/gallery/internal/storage/sqlite"
)

// DefaultConfigFile is read when no explicit config path is given and it exists
const DefaultConfigFile = "gallery.yaml"

// Provider names accepted by ai.provider
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
	ProviderGemini     = "gemini"
)

// Storage backends accepted by storage.backend
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config is the full daemon configuration
type Config struct {
	// Channel is the broadcast channel identity reported by status
	Channel string `yaml:"channel"`
	// DataDir holds the persisted store
	DataDir string `yaml:"data_dir"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	Storage   StorageConfig   `yaml:"storage"`
	AI        AIConfig        `yaml:"ai"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Server    ServerConfig    `yaml:"server"`
	Control   ControlConfig   `yaml:"control"`
	Log       logging.Config  `yaml:"log"`
}

// DiscoveryConfig controls the discovery loop and indexer clients
type DiscoveryConfig struct {
	Interval          time.Duration `yaml:"interval"`
	BatchSize         int           `yaml:"batch_size"`
	SecondaryLimit    int           `yaml:"secondary_limit"`
	HiroBaseURL       string        `yaml:"hiro_base_url"`
	HiroAPIKey        string        `yaml:"hiro_api_key"`
	PipeBaseURL       string        `yaml:"pipe_base_url"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
}

// StorageConfig selects the persistence backend and capacity
type StorageConfig struct {
	Backend  string `yaml:"backend"`
	MaxItems int    `yaml:"max_items"`
}

// ProviderConfig holds credentials and model selection for one vision back-end
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// AIConfig selects the vision provider and its resilience settings
type AIConfig struct {
	Provider      string         `yaml:"provider"`
	Anthropic     ProviderConfig `yaml:"anthropic"`
	OpenAI        ProviderConfig `yaml:"openai"`
	OpenRouter    ProviderConfig `yaml:"openrouter"`
	Ollama        ProviderConfig `yaml:"ollama"`
	Gemini        ProviderConfig `yaml:"gemini"`
	MaxTokens     int            `yaml:"max_tokens"`
	MaxRetries    int            `yaml:"max_retries"`
	MaxConcurrent int            `yaml:"max_concurrent"`
	Timeout       time.Duration  `yaml:"timeout"`
}

// Selected returns the settings of the configured provider
func (c AIConfig) Selected() ProviderConfig {
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAI
	case ProviderOpenRouter:
		return c.OpenRouter
	case ProviderOllama:
		return c.Ollama
	case ProviderGemini:
		return c.Gemini
	default:
		return c.Anthropic
	}
}

// RateLimitConfig is the per-requester cooldown for metered commands
type RateLimitConfig struct {
	Cooldown time.Duration `yaml:"cooldown"`
}

// ServerConfig is the websocket broadcast endpoint
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

// ControlConfig is the local unix control socket
type ControlConfig struct {
	Socket string `yaml:"socket"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Channel: "0000tracgallery",
		DataDir: ".gallery",
		Discovery: DiscoveryConfig{
			Interval:          15 * time.Minute,
			BatchSize:         20,
			SecondaryLimit:    5,
			HiroBaseURL:       "https://api.hiro.so/ordinals/v1",
			PipeBaseURL:       "https://pipe.trac.network/api/v1",
			RequestsPerSecond: 5,
			Burst:             5,
			MaxRetries:        3,
			RetryDelay:        time.Second,
		},
		Storage: StorageConfig{
			Backend:  BackendJSON,
			MaxItems: 1000,
		},
		AI: AIConfig{
			Provider:      ProviderAnthropic,
			Anthropic:     ProviderConfig{Model: "claude-sonnet-4-20250514"},
			OpenAI:        ProviderConfig{Model: "gpt-4o", BaseURL: "https://api.openai.com/v1"},
			OpenRouter:    ProviderConfig{Model: "anthropic/claude-sonnet-4-20250514", BaseURL: "https://openrouter.ai/api/v1"},
			Ollama:        ProviderConfig{Model: "llava", BaseURL: "http://localhost:11434"},
			Gemini:        ProviderConfig{Model: "gemini-2.0-flash"},
			MaxTokens:     1024,
			MaxRetries:    2,
			MaxConcurrent: 2,
			Timeout:       90 * time.Second,
		},
		RateLimit: RateLimitConfig{Cooldown: 10 * time.Minute},
		Server:    ServerConfig{Addr: "127.0.0.1:49222", Enabled: true},
		Control:   ControlConfig{Socket: filepath.Join(".gallery", "gallery.sock")},
		Log:       logging.DefaultConfig(),
	}
}

// Load builds the configuration. An explicit path must exist; the default
// gallery.yaml is optional. envFile, when non-empty, is loaded with godotenv
// without overriding variables already present in the environment.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if err := cfg.mergeFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto the configuration
//
// Environment variables:
//   - GALLERY_CHANNEL, GALLERY_DATA_DIR
//   - GALLERY_DISCOVERY_INTERVAL (duration), GALLERY_DISCOVERY_BATCH_SIZE
//   - HIRO_API_KEY
//   - GALLERY_STORAGE_BACKEND (json|sqlite), GALLERY_MAX_ITEMS
//   - GALLERY_AI_PROVIDER, ANTHROPIC_API_KEY, OPENAI_API_KEY,
//     OPENROUTER_API_KEY, GEMINI_API_KEY, OLLAMA_BASE_URL, GALLERY_AI_MODEL
//   - GALLERY_RATE_LIMIT_COOLDOWN (duration)
//   - GALLERY_SERVER_ADDR, GALLERY_CONTROL_SOCKET
//   - GALLERY_LOG_LEVEL, GALLERY_LOG_FORMAT
func (c *Config) ApplyEnv() error {
	parseEnvString("GALLERY_CHANNEL", &c.Channel)
	parseEnvString("GALLERY_DATA_DIR", &c.DataDir)
	if err := parseEnvDuration("GALLERY_DISCOVERY_INTERVAL", &c.Discovery.Interval); err != nil {
		return err
	}
	if err := parseEnvInt("GALLERY_DISCOVERY_BATCH_SIZE", &c.Discovery.BatchSize); err != nil {
		return err
	}
	parseEnvString("HIRO_API_KEY", &c.Discovery.HiroAPIKey)

	parseEnvString("GALLERY_STORAGE_BACKEND", &c.Storage.Backend)
	if err := parseEnvInt("GALLERY_MAX_ITEMS", &c.Storage.MaxItems); err != nil {
		return err
	}

	parseEnvString("GALLERY_AI_PROVIDER", &c.AI.Provider)
	parseEnvString("ANTHROPIC_API_KEY", &c.AI.Anthropic.APIKey)
	parseEnvString("OPENAI_API_KEY", &c.AI.OpenAI.APIKey)
	parseEnvString("OPENROUTER_API_KEY", &c.AI.OpenRouter.APIKey)
	parseEnvString("GEMINI_API_KEY", &c.AI.Gemini.APIKey)
	parseEnvString("OLLAMA_BASE_URL", &c.AI.Ollama.BaseURL)
	if model := os.Getenv("GALLERY_AI_MODEL"); model != "" {
		c.setSelectedModel(model)
	}

	if err := parseEnvDuration("GALLERY_RATE_LIMIT_COOLDOWN", &c.RateLimit.Cooldown); err != nil {
		return err
	}
	parseEnvString("GALLERY_SERVER_ADDR", &c.Server.Addr)
	parseEnvString("GALLERY_CONTROL_SOCKET", &c.Control.Socket)
	parseEnvString("GALLERY_LOG_LEVEL", &c.Log.Level)
	parseEnvString("GALLERY_LOG_FORMAT", &c.Log.Format)
	return nil
}

func (c *Config) setSelectedModel(model string) {
	switch c.AI.Provider {
	case ProviderOpenAI:
		c.AI.OpenAI.Model = model
	case ProviderOpenRouter:
		c.AI.OpenRouter.Model = model
	case ProviderOllama:
		c.AI.Ollama.Model = model
	case ProviderGemini:
		c.AI.Gemini.Model = model
	default:
		c.AI.Anthropic.Model = model
	}
}

// StorePath returns the location of the persisted collection for the configured backend
func (c *Config) StorePath() string {
	if c.Storage.Backend == BackendSQLite {
		return filepath.Join(c.DataDir, sqlite.FileName)
	}
	return filepath.Join(c.DataDir, storage.JSONFileName)
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Discovery.Interval < time.Second {
		return fmt.Errorf("discovery.interval must be at least 1s (got %v)", c.Discovery.Interval)
	}
	if c.Discovery.BatchSize < 1 || c.Discovery.BatchSize > 60 {
		return fmt.Errorf("discovery.batch_size must be between 1 and 60 (got %d)", c.Discovery.BatchSize)
	}
	if c.Discovery.SecondaryLimit < 1 {
		return fmt.Errorf("discovery.secondary_limit must be at least 1 (got %d)", c.Discovery.SecondaryLimit)
	}
	if c.Discovery.RequestsPerSecond <= 0 {
		return fmt.Errorf("discovery.requests_per_second must be positive (got %v)", c.Discovery.RequestsPerSecond)
	}
	if c.Discovery.MaxRetries < 0 || c.Discovery.MaxRetries > 10 {
		return fmt.Errorf("discovery.max_retries must be between 0 and 10 (got %d)", c.Discovery.MaxRetries)
	}
	if c.Storage.Backend != BackendJSON && c.Storage.Backend != BackendSQLite {
		return fmt.Errorf("storage.backend must be 'json' or 'sqlite' (got %q)", c.Storage.Backend)
	}
	if c.Storage.MaxItems < 1 {
		return fmt.Errorf("storage.max_items must be at least 1 (got %d)", c.Storage.MaxItems)
	}
	switch c.AI.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderOpenRouter, ProviderOllama, ProviderGemini:
	default:
		return fmt.Errorf("unknown ai.provider %q", c.AI.Provider)
	}
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("ai.max_retries cannot be negative (got %d)", c.AI.MaxRetries)
	}
	if c.AI.MaxConcurrent < 0 {
		return fmt.Errorf("ai.max_concurrent cannot be negative (got %d)", c.AI.MaxConcurrent)
	}
	if c.RateLimit.Cooldown <= 0 {
		return fmt.Errorf("rate_limit.cooldown must be positive (got %v)", c.RateLimit.Cooldown)
	}
	return nil
}

// String returns a human-readable summary without secrets
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Channel: %s, DataDir: %s, Interval: %v, Batch: %d, Backend: %s, MaxItems: %d, Provider: %s, Cooldown: %v}",
		c.Channel, c.DataDir, c.Discovery.Interval, c.Discovery.BatchSize,
		c.Storage.Backend, c.Storage.MaxItems, c.AI.Provider, c.RateLimit.Cooldown,
	)
}
