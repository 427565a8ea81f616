package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the fetcher.
type Config struct {
	DatabasePath   string  `mapstructure:"CIK_DATABASE"`
	OutputDir      string  `mapstructure:"OUTPUT_DIR"`
	Workers        int     `mapstructure:"FETCH_WORKERS"`
	RequestRate    float64 `mapstructure:"REQUEST_RATE"`
	MaxAttempts    int     `mapstructure:"MAX_ATTEMPTS"`
	RequestTimeout int     `mapstructure:"REQUEST_TIMEOUT"`
	BackoffBaseMS  int     `mapstructure:"BACKOFF_BASE_MS"`
	BackoffMaxMS   int     `mapstructure:"BACKOFF_MAX_MS"`
	BaseURL        string  `mapstructure:"SEC_BASE_URL"`
	UserAgent      string  `mapstructure:"SEC_USER_AGENT"`
	ServerPort     string  `mapstructure:"SERVER_PORT"`
	ProgressServer bool    `mapstructure:"PROGRESS_SERVER"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present.
	// This allows configuration purely through environment variables.
	_ = viper.ReadInConfig()

	viper.SetDefault("CIK_DATABASE", "data/cik_database/cik_database.json")
	viper.SetDefault("OUTPUT_DIR", "data/submissions")
	viper.SetDefault("FETCH_WORKERS", 10)
	// SEC fair-access guidance caps clients at 10 req/s; stay under it.
	viper.SetDefault("REQUEST_RATE", 8.0)
	viper.SetDefault("MAX_ATTEMPTS", 3)
	viper.SetDefault("REQUEST_TIMEOUT", 30) // in seconds
	viper.SetDefault("BACKOFF_BASE_MS", 2000)
	viper.SetDefault("BACKOFF_MAX_MS", 60000)
	viper.SetDefault("SEC_BASE_URL", "https://data.sec.gov/submissions")
	viper.SetDefault("SEC_USER_AGENT", "Edgar Insights Tool admin@example.com")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("PROGRESS_SERVER", false)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the pool cannot run with.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("FETCH_WORKERS must be >= 1, got %d", c.Workers)
	}
	if c.RequestRate <= 0 {
		return fmt.Errorf("REQUEST_RATE must be > 0, got %g", c.RequestRate)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be >= 1, got %d", c.MaxAttempts)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("SEC_USER_AGENT is required: the SEC rejects requests without a contact User-Agent")
	}
	return nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMS) * time.Millisecond
}

func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMS) * time.Millisecond
}
