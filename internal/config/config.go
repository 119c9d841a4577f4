package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/orderparse/internal/cost"
	"github.com/sells-group/orderparse/internal/model"
	"github.com/sells-group/orderparse/internal/scoring"
)

// Config holds the full application configuration.
type Config struct {
	OpenAI     ProviderConfig   `yaml:"openai" mapstructure:"openai"`
	Anthropic  ProviderConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Routing    RoutingConfig    `yaml:"routing" mapstructure:"routing"`
	Scoring    scoring.Config   `yaml:"scoring" mapstructure:"scoring"`
	Preprocess PreprocessConfig `yaml:"preprocess" mapstructure:"preprocess"`
	Pricing    cost.Rates       `yaml:"pricing" mapstructure:"pricing"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" mapstructure:"telemetry"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ProviderConfig configures one extraction backend. A provider is enabled
// iff Key is set.
type ProviderConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	// CacheTTL is the prompt-cache lifetime ("5m" or "1h"). Anthropic only.
	CacheTTL string `yaml:"cache_ttl" mapstructure:"cache_ttl"`

	// Seed values for the rolling selection metrics.
	CostPerRequest          float64 `yaml:"cost_per_request" mapstructure:"cost_per_request"`
	InitialResponseTimeSecs float64 `yaml:"initial_response_time_secs" mapstructure:"initial_response_time_secs"`
	InitialQuality          float64 `yaml:"initial_quality" mapstructure:"initial_quality"`

	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// Enabled reports whether the provider has credentials.
func (p ProviderConfig) Enabled() bool { return p.Key != "" }

// RoutingConfig configures the provider manager and its circuit breakers.
type RoutingConfig struct {
	FailureThreshold    int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	RecoveryTimeoutSecs int     `yaml:"recovery_timeout_secs" mapstructure:"recovery_timeout_secs"`
	MaxAttempts         int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	ParseTimeoutSecs    int     `yaml:"parse_timeout_secs" mapstructure:"parse_timeout_secs"`
	HealthTimeoutSecs   int     `yaml:"health_timeout_secs" mapstructure:"health_timeout_secs"`
	MinSuccessRate      float64 `yaml:"min_success_rate" mapstructure:"min_success_rate"`
}

// PreprocessConfig configures document preprocessing.
type PreprocessConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MaxPages      int    `yaml:"max_pages" mapstructure:"max_pages"`
	MaxFileMB     int    `yaml:"max_file_mb" mapstructure:"max_file_mb"`
	MaxTextTokens int    `yaml:"max_text_tokens" mapstructure:"max_text_tokens"`
}

// StoreConfig configures the run audit log backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// DocumentRoot is the only directory POST /v1/parse may read by
	// reference. Empty accepts uploads only.
	DocumentRoot string `yaml:"document_root" mapstructure:"document_root"`
}

// MonitoringConfig configures background alert checks.
type MonitoringConfig struct {
	Enabled                   bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL                string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold      float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ManualReviewRateThreshold float64 `yaml:"manual_review_rate_threshold" mapstructure:"manual_review_rate_threshold"`
	CostThresholdUSD          float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	CheckIntervalSecs         int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours       int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ORDERPARSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Keys without a natural default are registered empty so
	// that environment overrides reach Unmarshal.
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.max_tokens", 2048)
	v.SetDefault("openai.cost_per_request", 0.08)
	v.SetDefault("openai.initial_response_time_secs", 30)
	v.SetDefault("openai.initial_quality", 0.9)
	v.SetDefault("openai.requests_per_second", 0)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.cache_ttl", "5m")
	v.SetDefault("anthropic.cost_per_request", 0.06)
	v.SetDefault("anthropic.initial_response_time_secs", 25)
	v.SetDefault("anthropic.initial_quality", 0.85)
	v.SetDefault("anthropic.requests_per_second", 0)
	v.SetDefault("routing.failure_threshold", 5)
	v.SetDefault("routing.recovery_timeout_secs", 60)
	v.SetDefault("routing.max_attempts", 3)
	v.SetDefault("routing.parse_timeout_secs", 120)
	v.SetDefault("routing.health_timeout_secs", 10)
	v.SetDefault("routing.min_success_rate", 0.5)
	v.SetDefault("scoring.critical_fields", model.DefaultCriticalFields())
	v.SetDefault("scoring.field_threshold", 0.85)
	v.SetDefault("scoring.overall_threshold", 0.80)
	v.SetDefault("scoring.price_min", 100)
	v.SetDefault("scoring.price_max", 50000)
	v.SetDefault("scoring.price_field", model.FieldClientOfferedPrice)
	v.SetDefault("scoring.vat_field", model.FieldClientVATNumber)
	v.SetDefault("preprocess.pdftotext_path", "pdftotext")
	v.SetDefault("preprocess.max_pages", 3)
	v.SetDefault("preprocess.max_file_mb", 50)
	v.SetDefault("preprocess.max_text_tokens", 1500)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "orderparse.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.document_root", "")
	v.SetDefault("batch.max_concurrent_documents", 5)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.manual_review_rate_threshold", 0.5)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "orderparse")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	rates := cost.DefaultRates()
	if cfg.Pricing.OpenAI == nil {
		cfg.Pricing.OpenAI = rates.OpenAI
	}
	if cfg.Pricing.Anthropic == nil {
		cfg.Pricing.Anthropic = rates.Anthropic
	}

	return &cfg, nil
}

// Validate checks the settings required by a command mode: "parse",
// "batch", "serve" or "providers". All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "parse", "batch", "serve", "providers":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if !c.OpenAI.Enabled() && !c.Anthropic.Enabled() {
		errs = append(errs, "openai.key or anthropic.key is required")
	}
	if !slices.Contains([]string{"sqlite", "postgres", "none"}, c.Store.Driver) {
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of sqlite, postgres, none", c.Store.Driver))
	} else if c.Store.Driver != "none" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	for _, t := range []struct {
		name  string
		value float64
	}{
		{"scoring.field_threshold", c.Scoring.FieldThreshold},
		{"scoring.overall_threshold", c.Scoring.OverallThreshold},
		{"routing.min_success_rate", c.Routing.MinSuccessRate},
	} {
		if t.value < 0 || t.value > 1 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 1", t.name))
		}
	}
	if c.Scoring.PriceMin > c.Scoring.PriceMax {
		errs = append(errs, "scoring.price_min must not exceed scoring.price_max")
	}

	switch mode {
	case "batch":
		if n := c.Batch.MaxConcurrentDocuments; n < 1 || n > 50 {
			errs = append(errs, "batch.max_concurrent_documents must be between 1 and 50")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
