package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. DISPATCH_SERVER_PORT.
const EnvPrefix = "DISPATCH"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 12*60)
	v.SetDefault("auth.cookie_name", "dispatch_session")

	v.SetDefault("fleets.ids", []string{"crown", "electric"})

	v.SetDefault("broadcast.backend", "memory")
	v.SetDefault("broadcast.nats_url", "")
	v.SetDefault("broadcast.subject", "tasks.events")
	v.SetDefault("broadcast.buffer_size", 256)

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.rejected_interval", time.Hour)
	v.SetDefault("sweep.history_interval", 24*time.Hour)
	v.SetDefault("sweep.message_interval", time.Hour)
	v.SetDefault("sweep.message_retention", 14*24*time.Hour)
}

// Load reads configuration from defaults, an optional config.yaml in the
// working directory, and DISPATCH_* environment variables, in increasing
// order of precedence, then validates the result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
