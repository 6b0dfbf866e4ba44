package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the chat server's settings, read from CHAT_* environment
// variables.
type Config struct {
	Addr        string `envconfig:"ADDR" default:":8167"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9167"`

	// NATSURL links several chat servers through NATS when set.
	NATSURL    string `envconfig:"NATS_URL"`
	NATSPrefix string `envconfig:"NATS_PREFIX" default:"chat"`

	// Origins is a comma separated list of allowed origin patterns.
	Origins []string `envconfig:"ORIGINS" default:"*"`

	RateLimit float64 `envconfig:"RATE_LIMIT" default:"10"`
	RateBurst int     `envconfig:"RATE_BURST" default:"20"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("chat", &c); err != nil {
		return nil, err
	}
	if c.RateLimit <= 0 {
		return nil, fmt.Errorf("CHAT_RATE_LIMIT must be positive")
	}
	return &c, nil
}

func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
