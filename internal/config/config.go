package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	JWTRequired bool          `mapstructure:"jwt_required" yaml:"jwt_required"`

	Relay  RelayConfig  `mapstructure:"relay" yaml:"relay"`
	Bridge BridgeConfig `mapstructure:"bridge" yaml:"bridge"`
}

// RelayConfig tunes the event hub.
type RelayConfig struct {
	// RoomPolicy is "open" or "strict".
	RoomPolicy         string `mapstructure:"room_policy" yaml:"room_policy"`
	ClientBuffer       int    `mapstructure:"client_buffer" yaml:"client_buffer"`
	TaskConcurrency    int    `mapstructure:"task_concurrency" yaml:"task_concurrency"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
}

// BridgeConfig enables cross-instance fan-out over NATS. Empty NATSURL disables it.
type BridgeConfig struct {
	NATSURL       string `mapstructure:"nats_url" yaml:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix" yaml:"subject_prefix"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "collab-relay.db",
		MaxMessageBytes:   1 << 20,
		JWTIssuer:         "collab-relay",
		JWTAudience:       "collab-relay-clients",
		JWTTTL:            24 * time.Hour,
		Relay: RelayConfig{
			RoomPolicy:      "open",
			ClientBuffer:    64,
			TaskConcurrency: 16,
		},
		Bridge: BridgeConfig{
			SubjectPrefix: "collab",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTRequired {
		c.JWTRequired = true
	}
	if other.Relay.RoomPolicy != "" {
		c.Relay.RoomPolicy = other.Relay.RoomPolicy
	}
	if other.Bridge.NATSURL != "" {
		c.Bridge.NATSURL = other.Bridge.NATSURL
	}
}
