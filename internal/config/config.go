package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig      `yaml:"store" mapstructure:"store"`
	Adjudication Adjudication     `yaml:"adjudication" mapstructure:"adjudication"`
	Batch        BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server       ServerConfig     `yaml:"server" mapstructure:"server"`
	Pricelist    PricelistConfig  `yaml:"pricelist" mapstructure:"pricelist"`
	Monitoring   MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log          LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// Adjudication holds the rule-engine parameters. It is constructed once at
// startup and passed by reference into every pipeline call; nothing mutates
// it afterwards.
type Adjudication struct {
	// AdultAge is the age in whole years from which an insuree counts as
	// adult for patient-category masks and coverage terms.
	AdultAge int `yaml:"adult_age" mapstructure:"adult_age"`
	// EnforceCeilingOnSubmit applies category-maximum checks already at
	// claim submission rather than only at processing.
	EnforceCeilingOnSubmit bool `yaml:"enforce_ceiling_on_submit" mapstructure:"enforce_ceiling_on_submit"`
	// DefaultVisitType is assumed when a claim does not carry one.
	DefaultVisitType string `yaml:"default_visit_type" mapstructure:"default_visit_type"`
}

// BatchConfig configures batch claim runs.
type BatchConfig struct {
	// ClaimsPerSecond throttles store pressure during large batch runs.
	// Zero disables throttling.
	ClaimsPerSecond float64 `yaml:"claims_per_second" mapstructure:"claims_per_second"`
	Limit           int     `yaml:"limit" mapstructure:"limit"`
}

// ServerConfig configures the read-only status server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// PricelistConfig configures pricelist imports.
type PricelistConfig struct {
	// FTP drop facilities upload workbooks to; empty disables fetching.
	FTPAddr     string `yaml:"ftp_addr" mapstructure:"ftp_addr"`
	FTPUser     string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword string `yaml:"ftp_password" mapstructure:"ftp_password"`
	FTPDir      string `yaml:"ftp_dir" mapstructure:"ftp_dir"`
	LocalDir    string `yaml:"local_dir" mapstructure:"local_dir"`

	// Transfer retries for flaky facility FTP drops.
	FetchRetries   int `yaml:"fetch_retries" mapstructure:"fetch_retries"`
	FetchBackoffMs int `yaml:"fetch_backoff_ms" mapstructure:"fetch_backoff_ms"`
}

// MonitoringConfig configures the alert checker.
type MonitoringConfig struct {
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	RejectionRateThreshold float64 `yaml:"rejection_rate_threshold" mapstructure:"rejection_rate_threshold"`

	// Webhook circuit breaker; keeps a dead alert endpoint from being
	// hammered every check interval.
	WebhookFailureThreshold int `yaml:"webhook_failure_threshold" mapstructure:"webhook_failure_threshold"`
	WebhookResetTimeoutSecs int `yaml:"webhook_reset_timeout_secs" mapstructure:"webhook_reset_timeout_secs"`
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
	v.SetEnvPrefix("CLAIMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("adjudication.adult_age", 18)
	v.SetDefault("adjudication.enforce_ceiling_on_submit", false)
	v.SetDefault("adjudication.default_visit_type", "O")
	v.SetDefault("batch.claims_per_second", 20)
	v.SetDefault("batch.limit", 1000)
	v.SetDefault("pricelist.local_dir", "./pricelists")
	v.SetDefault("pricelist.ftp_dir", "/pricelists")
	v.SetDefault("pricelist.fetch_retries", 3)
	v.SetDefault("pricelist.fetch_backoff_ms", 500)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.rejection_rate_threshold", 0.5)
	v.SetDefault("monitoring.webhook_failure_threshold", 5)
	v.SetDefault("monitoring.webhook_reset_timeout_secs", 60)

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

	return &cfg, nil
}

// Validate checks the configuration needed for the given mode ("store",
// "serve" or "import") and reports every problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}

	if c.Batch.ClaimsPerSecond < 0 {
		problems = append(problems, "batch.claims_per_second must be >= 0")
	}
	if c.Adjudication.AdultAge <= 0 {
		problems = append(problems, "adjudication.adult_age must be > 0")
	}

	switch mode {
	case "store":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Monitoring.RejectionRateThreshold < 0 || c.Monitoring.RejectionRateThreshold > 1 {
			problems = append(problems, "monitoring.rejection_rate_threshold must be between 0 and 1")
		}
	case "import":
		if c.Pricelist.LocalDir == "" {
			problems = append(problems, "pricelist.local_dir is required")
		}
		if c.Pricelist.FetchRetries < 0 {
			problems = append(problems, "pricelist.fetch_retries must be >= 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
