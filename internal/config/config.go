package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Fleets    FleetsConfig    `mapstructure:"fleets" validate:"required"`
	Broadcast BroadcastConfig `mapstructure:"broadcast" validate:"required"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// AllowedOrigins lists browser origins accepted on the WebSocket
	// endpoint. Empty means same-origin only.
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// An empty URL runs the service on in-memory stores.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
}

// AuthConfig contains session verification settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	CookieName           string `mapstructure:"cookie_name" validate:"required"`
}

// FleetsConfig lists the fixed fleet identities tasks can be assigned to.
type FleetsConfig struct {
	IDs []string `mapstructure:"ids" validate:"required,min=1,unique,dive,required,alphanum"`
}

// BroadcastConfig selects the event backplane.
type BroadcastConfig struct {
	Backend    string `mapstructure:"backend" validate:"required,oneof=memory nats"`
	NATSURL    string `mapstructure:"nats_url" validate:"required_if=Backend nats"`
	Subject    string `mapstructure:"subject" validate:"required"`
	BufferSize int    `mapstructure:"buffer_size" validate:"gt=0"`
}

// SweepConfig controls the background retention sweeps.
type SweepConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	RejectedInterval time.Duration `mapstructure:"rejected_interval" validate:"gt=0"`
	HistoryInterval  time.Duration `mapstructure:"history_interval" validate:"gt=0"`
	MessageInterval  time.Duration `mapstructure:"message_interval" validate:"gt=0"`
	MessageRetention time.Duration `mapstructure:"message_retention" validate:"gt=0"`
}
