// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Backend names accepted by STATE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Port           int           `mapstructure:"port"`
	LogLevel       string        `mapstructure:"log_level"`
	StateBackend   string        `mapstructure:"state_backend"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisDB        int           `mapstructure:"redis_db"`
	RedisKeyPrefix string        `mapstructure:"redis_key_prefix"`
	DatabaseURL    string        `mapstructure:"database_url"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	MessageRate    float64       `mapstructure:"message_rate"`
	MessageBurst   int           `mapstructure:"message_burst"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`

	// Used by cmd/archiver only.
	ArchiveInterval  time.Duration `mapstructure:"archive_interval"`
	ArchiveBatchSize int           `mapstructure:"archive_batch_size"`
}

var keys = []string{
	"port", "log_level", "state_backend", "redis_addr", "redis_db", "redis_key_prefix",
	"database_url", "write_timeout", "send_buffer", "message_rate", "message_burst", "allowed_origins",
	"archive_interval", "archive_batch_size",
}

// Load reads the environment (and a .env file, if present) into a Config.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("state_backend", BackendMemory)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("redis_key_prefix", "mindmeld:room:")
	v.SetDefault("database_url", "")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("message_rate", 20)
	v.SetDefault("message_burst", 40)
	v.SetDefault("allowed_origins", "*")
	v.SetDefault("archive_interval", "1m")
	v.SetDefault("archive_batch_size", 50)

	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.AllowedOrigins = splitList(v.GetString("allowed_origins"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values Load cannot default away.
func (c *Config) Validate() error {
	switch c.StateBackend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s backend", BackendPostgres)
		}
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q", c.StateBackend)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("SEND_BUFFER must be positive, got %d", c.SendBuffer)
	}
	if c.MessageRate <= 0 || c.MessageBurst <= 0 {
		return fmt.Errorf("MESSAGE_RATE and MESSAGE_BURST must be positive")
	}
	if c.ArchiveInterval <= 0 {
		return fmt.Errorf("ARCHIVE_INTERVAL must be positive, got %s", c.ArchiveInterval)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Level returns the parsed log level. Validate has already checked it.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
