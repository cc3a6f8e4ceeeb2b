package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all environment backed configuration for the gateway.
type Config struct {
	// Serving
	MetricsPort int `env:"METRICS_PORT" envDefault:"9091"`

	// Persistence (optional; everything runs in memory without a DSN)
	DatabaseURL      string `env:"DATABASE_URL"`
	CredentialSecret string `env:"CREDENTIAL_SECRET"`
	AutoMigrate      bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	// Connector behavior
	ConnectorTimeout time.Duration `env:"DEADLINE_DEFAULT" envDefault:"30s"`
	RetryMaxAttempts uint          `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseMS      int           `env:"RETRY_BASE_MS" envDefault:"500"`
	RetryJitterMS    int           `env:"RETRY_JITTER_MS" envDefault:"250"`

	// Lifetimes
	IdleHandleTTL          time.Duration `env:"IDLE_HANDLE_TTL" envDefault:"30m"`
	SweepInterval          time.Duration `env:"SWEEP_INTERVAL" envDefault:"10m"`
	ClassificationCacheTTL time.Duration `env:"CLASSIFICATION_CACHE_TTL" envDefault:"10m"`
	QuotaFlushInterval     time.Duration `env:"QUOTA_FLUSH_INTERVAL" envDefault:"5m"`
	HealthCoolOff          time.Duration `env:"HEALTH_COOL_OFF" envDefault:"2m"`

	// Quota
	ProviderDailyLimitDefault int `env:"PROVIDER_DAILY_LIMIT_DEFAULT" envDefault:"0"`

	// Shared credentials
	SharedCredentialUserIDs []string `env:"SHARED_CREDENTIAL_USER_IDS" envSeparator:","`

	// Analyzer LLM for the classification and web-search slow paths.
	// Empty provider id disables the slow paths; rules still apply.
	AnalyzerProviderID string `env:"ANALYZER_PROVIDER_ID"`
	AnalyzerModel      string `env:"ANALYZER_MODEL"`

	// Provider bootstrap
	ProviderConfigsEnabled bool                     `env:"PROVIDER_CONFIGS" envDefault:"false"`
	ProviderConfigSet      string                   `env:"PROVIDER_CONFIG_SET" envDefault:"default"`
	ProviderConfigFile     string                   `env:"PROVIDER_CONFIGS_FILE"`
	ProviderBootstrap      *ProviderBootstrapConfig `env:"-"`

	// Observability / Logging
	ServiceName string `env:"SERVICE_NAME" envDefault:"llm-gateway"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load parses environment variables into Config and performs minimal
// validation.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.ProviderConfigSet = strings.TrimSpace(cfg.ProviderConfigSet)
	if cfg.ProviderConfigSet == "" {
		cfg.ProviderConfigSet = "default"
	}

	if cfg.ProviderConfigsEnabled {
		configFile := strings.TrimSpace(cfg.ProviderConfigFile)
		if configFile == "" {
			configFile = DefaultProviderConfigFile
		}
		bootstrap, err := LoadProviderBootstrapConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("load provider configs: %w", err)
		}
		cfg.ProviderBootstrap = bootstrap
		if len(bootstrap.ProvidersForSet(cfg.ProviderConfigSet)) == 0 {
			return nil, fmt.Errorf("provider config set %q is missing or empty in %s", cfg.ProviderConfigSet, configFile)
		}
	}

	if cfg.DatabaseURL != "" && cfg.CredentialSecret == "" {
		return nil, fmt.Errorf("CREDENTIAL_SECRET is required when DATABASE_URL is set")
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = 1
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	return cfg, nil
}

// ProviderBootstrapEntries returns the configured provider definitions for
// the active set.
func (c *Config) ProviderBootstrapEntries() []ProviderBootstrapEntry {
	if c == nil || c.ProviderBootstrap == nil {
		return nil
	}
	return c.ProviderBootstrap.ProvidersForSet(c.ProviderConfigSet)
}

var Version = "dev"

func IsDev() bool {
	return strings.HasPrefix(Version, "dev")
}
