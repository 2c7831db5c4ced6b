// Package config loads service configuration from a .env file and the
// process environment. Environment variables win over file values.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port      string `mapstructure:"PORT"`
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	// Delivery
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	MaxRetries     int           `mapstructure:"MAX_RETRIES"`
	RetryDelay     time.Duration `mapstructure:"RETRY_DELAY"`
	MaxAttempts    int           `mapstructure:"MAX_ATTEMPTS"`

	// Retry sweep
	SweepInterval  time.Duration `mapstructure:"SWEEP_INTERVAL"`
	SweepBatchSize int           `mapstructure:"SWEEP_BATCH_SIZE"`

	// Circuit breaker
	BreakerFailureThreshold uint32        `mapstructure:"BREAKER_FAILURE_THRESHOLD"`
	BreakerOpenFor          time.Duration `mapstructure:"BREAKER_OPEN_FOR"`

	// Inbound protection
	IdempotencyTTL        time.Duration `mapstructure:"IDEMPOTENCY_TTL"`
	RateLimit             int           `mapstructure:"RATE_LIMIT"`
	RateLimitWindow       time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
	RateLimitIdleEviction time.Duration `mapstructure:"RATE_LIMIT_IDLE_EVICTION"`
}

func setDefaults() {
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("RETRY_DELAY", 5*time.Second)
	viper.SetDefault("MAX_ATTEMPTS", 5)
	viper.SetDefault("SWEEP_INTERVAL", 5*time.Minute)
	viper.SetDefault("SWEEP_BATCH_SIZE", 100)
	viper.SetDefault("BREAKER_FAILURE_THRESHOLD", 5)
	viper.SetDefault("BREAKER_OPEN_FOR", 30*time.Second)
	viper.SetDefault("IDEMPOTENCY_TTL", 24*time.Hour)
	viper.SetDefault("RATE_LIMIT", 100)
	viper.SetDefault("RATE_LIMIT_WINDOW", time.Minute)
	viper.SetDefault("RATE_LIMIT_IDLE_EVICTION", 10*time.Minute)
}

// GetConfig reads .env from the working directory when present and falls
// back to defaults otherwise.
func GetConfig() (*Config, error) {
	setDefaults()
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	return &config, nil
}
