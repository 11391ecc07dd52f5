package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is the prefix for environment overrides, e.g. VALIDATOR_STORE_DRIVER.
const EnvPrefix = "VALIDATOR"

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Freshness  FreshnessConfig  `yaml:"freshness" mapstructure:"freshness"`
	Verify     VerifyConfig     `yaml:"verify" mapstructure:"verify"`
	NPPES      NPPESConfig      `yaml:"nppes" mapstructure:"nppes"`
	LEIE       LEIEConfig       `yaml:"leie" mapstructure:"leie"`
	Licenses   LicensesConfig   `yaml:"licenses" mapstructure:"licenses"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Census     CensusConfig     `yaml:"census" mapstructure:"census"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Review     ReviewConfig     `yaml:"review" mapstructure:"review"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ShutdownTimeout int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// ScoringConfig selects the weight table and tier scheme.
type ScoringConfig struct {
	// WeightsFile is a YAML weight table; empty uses the built-in weights.
	WeightsFile string `yaml:"weights_file" mapstructure:"weights_file"`
	TierScheme  string `yaml:"tier_scheme" mapstructure:"tier_scheme"`
}

// FreshnessConfig holds the trust and decay tables. Empty maps use the
// built-in tables.
type FreshnessConfig struct {
	SourceTrust map[string]float64 `yaml:"source_trust" mapstructure:"source_trust"`
	DecayRates  map[string]float64 `yaml:"decay_rates" mapstructure:"decay_rates"`
}

// VerifyConfig controls verifier calls.
type VerifyConfig struct {
	TimeoutSecs      int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RetryAttempts    int           `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoff     time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	BreakerThreshold int           `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" mapstructure:"breaker_cooldown"`
}

// NPPESConfig configures the NPI registry client.
type NPPESConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// LEIEConfig configures the exclusion list.
type LEIEConfig struct {
	// File is a local copy of the list; when set it is loaded at startup.
	File string `yaml:"file" mapstructure:"file"`
	URL  string `yaml:"url" mapstructure:"url"`
}

// LicensesConfig maps a state (name or code) to a board roster CSV.
type LicensesConfig struct {
	Rosters map[string]string `yaml:"rosters" mapstructure:"rosters"`
}

// GoogleConfig configures the Places client.
type GoogleConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// CensusConfig configures the Census geocoder used for geo checks when no
// Places key is set.
type CensusConfig struct {
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// AnthropicConfig holds Anthropic API settings for reviewer summaries.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// BatchConfig configures batch validation.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ReviewConfig tunes QA checks and arbitration.
type ReviewConfig struct {
	NameSimilarityMin    int  `yaml:"name_similarity_min" mapstructure:"name_similarity_min"`
	AutoCorrectSpecialty bool `yaml:"auto_correct_specialty" mapstructure:"auto_correct_specialty"`
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	Enabled                    bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs          int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours        int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	PendingReviewThreshold     int     `yaml:"pending_review_threshold" mapstructure:"pending_review_threshold"`
	SourceFailureRateThreshold float64 `yaml:"source_failure_rate_threshold" mapstructure:"source_failure_rate_threshold"`
	ReviewShareThreshold       float64 `yaml:"review_share_threshold" mapstructure:"review_share_threshold"`
	WebhookURL                 string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// Validate checks the settings a command mode needs. Modes are
// "validate", "review", "serve" and "migrate". All problems are reported
// together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "validate", "review", "serve", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres", "sqlite":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}

	if mode == "validate" || mode == "serve" {
		if c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 50 {
			errs = append(errs, "batch.max_concurrent must be between 1 and 50")
		}
		if c.Review.NameSimilarityMin < 0 || c.Review.NameSimilarityMin > 100 {
			errs = append(errs, "review.name_similarity_min must be between 0 and 100")
		}
		for k, v := range c.Freshness.SourceTrust {
			if v <= 0 || v > 1 {
				errs = append(errs, fmt.Sprintf("freshness.source_trust.%s must be in (0, 1]", k))
			}
		}
		for k, v := range c.Freshness.DecayRates {
			if v < 0 {
				errs = append(errs, fmt.Sprintf("freshness.decay_rates.%s must be >= 0", k))
			}
		}
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}
	if c.Monitoring.Enabled {
		if r := c.Monitoring.SourceFailureRateThreshold; r < 0 || r > 1 {
			errs = append(errs, "monitoring.source_failure_rate_threshold must be between 0 and 1")
		}
		if r := c.Monitoring.ReviewShareThreshold; r < 0 || r > 1 {
			errs = append(errs, "monitoring.review_share_threshold must be between 0 and 1")
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, or config.yaml in the working
// directory when path is empty, then applies environment overrides.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment. AutomaticEnv only sees keys viper already knows, so every
	// field below carries a default.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "provider-validator.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_secs", 15)
	v.SetDefault("scoring.weights_file", "")
	v.SetDefault("scoring.tier_scheme", "default")
	v.SetDefault("freshness.source_trust", map[string]float64{})
	v.SetDefault("freshness.decay_rates", map[string]float64{})
	v.SetDefault("verify.timeout_secs", 15)
	v.SetDefault("verify.retry_attempts", 2)
	v.SetDefault("verify.retry_backoff", 250*time.Millisecond)
	v.SetDefault("verify.breaker_threshold", 5)
	v.SetDefault("verify.breaker_cooldown", 30*time.Second)
	v.SetDefault("nppes.base_url", "https://npiregistry.cms.hhs.gov/api/")
	v.SetDefault("nppes.rate_limit", 5.0)
	v.SetDefault("leie.file", "")
	v.SetDefault("leie.url", "https://oig.hhs.gov/exclusions/downloadables/UPDATED.csv")
	v.SetDefault("licenses.rosters", map[string]string{})
	v.SetDefault("google.key", "")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.rate_limit", 10.0)
	v.SetDefault("census.enabled", true)
	v.SetDefault("census.base_url", "https://geocoding.geo.census.gov/geocoder")
	v.SetDefault("census.rate_limit", 5.0)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 400)
	v.SetDefault("anthropic.timeout_secs", 20)
	v.SetDefault("batch.max_concurrent", 5)
	v.SetDefault("review.name_similarity_min", 80)
	v.SetDefault("review.auto_correct_specialty", false)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.pending_review_threshold", 200)
	v.SetDefault("monitoring.source_failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.review_share_threshold", 0.5)
	v.SetDefault("monitoring.webhook_url", "")

	// Read config file (optional unless named explicitly)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
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
