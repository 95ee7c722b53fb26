// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrValidation is returned when the loaded configuration is invalid.
var ErrValidation = errors.New("invalid configuration")

// Model providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Config holds all application configuration.
type Config struct {
	Port           string `mapstructure:"port"             validate:"required"`
	FrontendURL    string `mapstructure:"frontend_url"`
	DBPath         string `mapstructure:"db_path"          validate:"required"`
	GRPCHealthAddr string `mapstructure:"grpc_health_addr"`

	ModelProvider     string  `mapstructure:"model_provider"      validate:"oneof=openrouter gemini"`
	ModelName         string  `mapstructure:"model_name"          validate:"required"`
	OpenRouterAPIKey  string  `mapstructure:"openrouter_api_key"  validate:"required_if=ModelProvider openrouter"`
	OpenRouterBaseURL string  `mapstructure:"openrouter_base_url" validate:"omitempty,url"`
	GeminiAPIKey      string  `mapstructure:"gemini_api_key"      validate:"required_if=ModelProvider gemini"`
	Temperature       float32 `mapstructure:"temperature"         validate:"min=0,max=2"`
	MaxOutputTokens   int     `mapstructure:"max_output_tokens"   validate:"min=0"`
	RetryAttempts     uint    `mapstructure:"retry_attempts"      validate:"min=1,max=10"`

	MaxDuration        time.Duration `mapstructure:"max_duration"          validate:"min=1s"`
	MaxSteps           int           `mapstructure:"max_steps"             validate:"min=1,max=20"`
	MaxRequestBodySize int64         `mapstructure:"max_request_body_size" validate:"min=1024"`

	Session         SessionConfig         `mapstructure:"session"`
	RateLimit       RateLimitConfig       `mapstructure:"rate_limit"`
	Breaker         BreakerConfig         `mapstructure:"breaker"`
	Log             LogConfig             `mapstructure:"log"`
	ConversationLog ConversationLogConfig `mapstructure:"conversation_log"`
}

// SessionConfig controls idle session teardown.
type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"            validate:"min=1m"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"min=1s"`
}

// RateLimitConfig controls the per-user chat limiter.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests" validate:"min=1"`
	Window   time.Duration `mapstructure:"window"   validate:"min=1s"`
}

// BreakerConfig controls the model provider circuit breaker.
type BreakerConfig struct {
	MaxFailures   uint32        `mapstructure:"max_failures"   validate:"min=1"`
	ResetInterval time.Duration `mapstructure:"reset_interval" validate:"min=1s"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Dir           string `mapstructure:"dir"            validate:"required"`
	GlobalEnabled bool   `mapstructure:"global_enabled"`
	GlobalPath    string `mapstructure:"global_path"    validate:"required"`
	QueueSize     int    `mapstructure:"queue_size"     validate:"gt=0"`
}

var defaults = map[string]any{
	"port":             "8080",
	"frontend_url":     "",
	"db_path":          "./data/mailsmith.db",
	"grpc_health_addr": ":9090",

	"model_provider":      ProviderOpenRouter,
	"model_name":          "meta-llama/llama-3.3-8b-instruct:free",
	"openrouter_api_key":  "",
	"openrouter_base_url": "https://openrouter.ai/api/v1",
	"gemini_api_key":      "",
	"temperature":         0.7,
	"max_output_tokens":   0,
	"retry_attempts":      3,

	"max_duration":          "30s",
	"max_steps":             5,
	"max_request_body_size": 1 << 20,

	"session.ttl":            "60m",
	"session.sweep_interval": "1m",

	"rate_limit.requests": 10,
	"rate_limit.window":   "1m",

	"breaker.max_failures":   5,
	"breaker.reset_interval": "30s",

	"log.level":  "info",
	"log.format": "json",

	"conversation_log.enabled":        true,
	"conversation_log.dir":            "./data/logs/conversations",
	"conversation_log.global_enabled": false,
	"conversation_log.global_path":    "./data/logs/conversations/all.ndjson",
	"conversation_log.queue_size":     1000,
}

// Load reads configuration from environment variables. Nested keys map to
// underscored names, so session.ttl is read from SESSION_TTL.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrValidation, err)
	}
	cfg.ModelProvider = strings.ToLower(strings.TrimSpace(cfg.ModelProvider))
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct constraints.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// APIKey returns the credential of the selected provider.
func (c *Config) APIKey() string {
	if c.ModelProvider == ProviderGemini {
		return c.GeminiAPIKey
	}
	return c.OpenRouterAPIKey
}
