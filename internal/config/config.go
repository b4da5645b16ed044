package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	DefaultTenant  string        `mapstructure:"DEFAULT_TENANT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	// Instrument integration.
	InstrumentSendTimeout   time.Duration `mapstructure:"INSTRUMENT_SEND_TIMEOUT"`
	InstrumentHealthTimeout time.Duration `mapstructure:"INSTRUMENT_HEALTH_TIMEOUT"`

	// Background sweeps.
	PollInterval  time.Duration `mapstructure:"POLL_INTERVAL"`
	RetryInterval time.Duration `mapstructure:"RETRY_INTERVAL"`
	PollBatch     int           `mapstructure:"POLL_BATCH"`
	MaxRetries    int           `mapstructure:"MAX_RETRIES"`
	SweepTenants  string        `mapstructure:"SWEEP_TENANTS"`
}

// TenantList returns the tenants the background sweeps cover. Defaults to
// the single default tenant when SWEEP_TENANTS is unset.
func (c *Config) TenantList() []string {
	if strings.TrimSpace(c.SweepTenants) == "" {
		return []string{c.DefaultTenant}
	}
	var out []string
	for _, t := range strings.Split(c.SweepTenants, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("INSTRUMENT_SEND_TIMEOUT", "10s")
	v.SetDefault("INSTRUMENT_HEALTH_TIMEOUT", "5s")
	v.SetDefault("POLL_INTERVAL", "30s")
	v.SetDefault("RETRY_INTERVAL", "1m")
	v.SetDefault("POLL_BATCH", 50)
	v.SetDefault("MAX_RETRIES", 3)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("DEFAULT_TENANT")
	v.BindEnv("REQUEST_TIMEOUT")
	v.BindEnv("INSTRUMENT_SEND_TIMEOUT")
	v.BindEnv("INSTRUMENT_HEALTH_TIMEOUT")
	v.BindEnv("POLL_INTERVAL")
	v.BindEnv("RETRY_INTERVAL")
	v.BindEnv("POLL_BATCH")
	v.BindEnv("MAX_RETRIES")
	v.BindEnv("SWEEP_TENANTS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.PollBatch <= 0 {
		return fmt.Errorf("POLL_BATCH must be positive, got %d", c.PollBatch)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	if c.InstrumentSendTimeout <= 0 {
		return fmt.Errorf("INSTRUMENT_SEND_TIMEOUT must be positive, got %s", c.InstrumentSendTimeout)
	}
	if c.InstrumentHealthTimeout <= 0 {
		return fmt.Errorf("INSTRUMENT_HEALTH_TIMEOUT must be positive, got %s", c.InstrumentHealthTimeout)
	}
	return nil
}
