package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the answer engine.
type Config struct {
	General      GeneralConfig      `mapstructure:"general"`
	Server       ServerConfig       `mapstructure:"server"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Capabilities CapabilitiesConfig `mapstructure:"capabilities"`
	Rerank       RerankConfig       `mapstructure:"rerank"`
	Session      SessionConfig      `mapstructure:"session"`
	Stream       StreamConfig       `mapstructure:"stream"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug             bool          `mapstructure:"debug"`
	LogLevel          string        `mapstructure:"log_level"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
	MaxProcessingTime time.Duration `mapstructure:"max_processing_time"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address       string   `mapstructure:"address"`
	AllowOrigins  []string `mapstructure:"allow_origins"`
	StreamEnabled bool     `mapstructure:"stream_enabled"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai, anthropic, local, etc.
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string   `mapstructure:"name"`
	APIName         string   `mapstructure:"api_name"`
	MaxTokens       int      `mapstructure:"max_tokens"`
	Temperature     float64  `mapstructure:"temperature"`
	CostPer1K       float64  `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64  `mapstructure:"cost_per_1k_output"`
	Capabilities    []string `mapstructure:"capabilities"`
}

// LLMRoutingConfig defines which model to use for different pipeline stages.
// Light is used for cheap judgement calls (step conditions, classification
// adjudication); Fallback is used when a routed model is not configured.
type LLMRoutingConfig struct {
	Classify   string `mapstructure:"classify"`
	Rewrite    string `mapstructure:"rewrite"`
	Planning   string `mapstructure:"planning"`
	Synthesis  string `mapstructure:"synthesis"`
	Rerank     string `mapstructure:"rerank"`
	Critique   string `mapstructure:"critique"`
	Light      string `mapstructure:"light"`
	Embedding  string `mapstructure:"embedding"`
	Fallback   string `mapstructure:"fallback"`
}

// CapabilitiesConfig contains retrieval provider configurations.
type CapabilitiesConfig struct {
	SerpAPI     SerpAPIConfig   `mapstructure:"serpapi"`
	WebSearch   WebSearchConfig `mapstructure:"web_search"`
	WebFetch    WebFetchConfig  `mapstructure:"web_fetch"`
	StepTimeout time.Duration   `mapstructure:"step_timeout"`
	MaxResults  int             `mapstructure:"max_results"`
	// Precedence orders sources for merge; earlier sources win dedup
	// collisions field-by-field.
	Precedence []string `mapstructure:"precedence"`
}

// SerpAPIConfig contains SerpAPI settings shared by the vertical engines
// (google_shopping, google_hotels, google_flights).
type SerpAPIConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
	Country  string `mapstructure:"country"`
	Language string `mapstructure:"language"`
}

// WebSearchConfig contains web search settings
type WebSearchConfig struct {
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// WebFetchConfig bounds the readable-page fetch capability.
type WebFetchConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxBytes int64         `mapstructure:"max_bytes"`
	MaxPages int           `mapstructure:"max_pages"`
}

// RerankConfig tunes the reranking stage. Weights are configuration, not a
// contract; they are normalized before use.
type RerankConfig struct {
	SimilarityFloor float64 `mapstructure:"similarity_floor"`
	CosineWeight    float64 `mapstructure:"cosine_weight"`
	LexicalWeight   float64 `mapstructure:"lexical_weight"`
	LLMWeight       float64 `mapstructure:"llm_weight"`
	LLMBatchLimit   int     `mapstructure:"llm_batch_limit"`
	// Reranking is skipped for short, non-comparative queries with small
	// candidate sets.
	SkipMaxQueryWords int `mapstructure:"skip_max_query_words"`
	SkipMaxCandidates int `mapstructure:"skip_max_candidates"`
}

// SessionConfig configures the per-user session memory store.
type SessionConfig struct {
	Store string        `mapstructure:"store"` // inmemory | redis
	TTL   time.Duration `mapstructure:"ttl"`
	Redis RedisConfig   `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("session.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("session.redis.port required")
	}
	return nil
}

// StreamConfig bounds the streaming session cache.
type StreamConfig struct {
	Capacity   int           `mapstructure:"capacity"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	// SweepSpec is a cron expression controlling the staleness sweep cadence.
	SweepSpec string `mapstructure:"sweep_spec"`
}

func (s StreamConfig) Validate() error {
	if s.Capacity <= 0 {
		return fmt.Errorf("stream.capacity must be > 0")
	}
	if s.StaleAfter <= 0 {
		return fmt.Errorf("stream.stale_after must be > 0")
	}
	return nil
}

// RetryConfig bounds transient-failure retries for provider calls.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
}

// TelemetryConfig contains metrics and tracing settings
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// LoadConfig reads configuration from file and environment. It panics on a
// malformed file; missing files fall back to defaults so the CLI can run with
// env-only configuration.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	setDefaults()

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("ANSWERS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Stream.Validate(); err != nil {
		panic(err)
	}
	if config.Session.Store == "redis" {
		if err := config.Session.Redis.Validate(); err != nil {
			panic(err)
		}
	}
	return &config
}

func setDefaults() {
	viper.SetDefault("general.default_timeout", "30s")
	viper.SetDefault("general.max_processing_time", "2m")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.allow_origins", []string{"*"})
	viper.SetDefault("server.stream_enabled", true)
	viper.SetDefault("capabilities.serpapi.endpoint", "https://serpapi.com/search.json")
	viper.SetDefault("capabilities.serpapi.country", "us")
	viper.SetDefault("capabilities.serpapi.language", "en")
	viper.SetDefault("capabilities.step_timeout", "12s")
	viper.SetDefault("capabilities.max_results", 10)
	viper.SetDefault("capabilities.precedence", []string{"serpapi", "brave", "serper", "web_fetch"})
	viper.SetDefault("capabilities.web_search.max_results", 8)
	viper.SetDefault("capabilities.web_search.timeout", "10s")
	viper.SetDefault("capabilities.web_fetch.timeout", "8s")
	viper.SetDefault("capabilities.web_fetch.max_bytes", 1<<20)
	viper.SetDefault("capabilities.web_fetch.max_pages", 3)
	viper.SetDefault("rerank.similarity_floor", 0.3)
	viper.SetDefault("rerank.cosine_weight", 0.55)
	viper.SetDefault("rerank.lexical_weight", 0.2)
	viper.SetDefault("rerank.llm_weight", 0.25)
	viper.SetDefault("rerank.llm_batch_limit", 15)
	viper.SetDefault("rerank.skip_max_query_words", 3)
	viper.SetDefault("rerank.skip_max_candidates", 5)
	viper.SetDefault("session.store", "inmemory")
	viper.SetDefault("session.ttl", "30m")
	viper.SetDefault("stream.capacity", 50)
	viper.SetDefault("stream.stale_after", "10m")
	viper.SetDefault("stream.sweep_spec", "*/1 * * * *")
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_backoff", "300ms")
	viper.SetDefault("retry.max_backoff", "5s")
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.metrics_path", "/metrics")
}
