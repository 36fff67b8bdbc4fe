// File: internal/config/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Environment configuration for the example binaries.
// Priority: environment variables > .env file > defaults.

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds server, executor, monitoring and logging settings.
type Config struct {
	// Listener
	Addr    string `env:"REACTOR_ADDR" envDefault:":9000"`
	NoDelay bool   `env:"REACTOR_TCP_NODELAY" envDefault:"true"`

	// Buffers
	BufferSize      int           `env:"REACTOR_BUFFER_SIZE" envDefault:"4096"`
	DirectBuffer    bool          `env:"REACTOR_DIRECT_BUFFER" envDefault:"true"`
	CoreBuffers     int           `env:"REACTOR_CORE_BUFFERS" envDefault:"64"`
	MaxBuffers      int           `env:"REACTOR_MAX_BUFFERS" envDefault:"256"`
	BufferKeepAlive time.Duration `env:"REACTOR_BUFFER_KEEPALIVE" envDefault:"60s"`

	// Selector spin detection
	SpinThreshold int           `env:"REACTOR_SPIN_THRESHOLD" envDefault:"512"`
	SpinWindow    time.Duration `env:"REACTOR_SPIN_WINDOW" envDefault:"1ms"`

	// Reactor goroutine OS thread affinity, -1 to disable
	ReactorCPU int `env:"REACTOR_CPU" envDefault:"-1"`

	// Accept admission, 0 disables
	AcceptRate  float64 `env:"REACTOR_ACCEPT_RATE" envDefault:"0"`
	AcceptBurst int     `env:"REACTOR_ACCEPT_BURST" envDefault:"100"`

	// Executor: "serial" keeps per-connection order, "pool" runs callbacks in parallel
	ExecutorMode  string `env:"REACTOR_EXECUTOR" envDefault:"serial"`
	Workers       int    `env:"REACTOR_WORKERS" envDefault:"0"`
	WorkQueueSize int    `env:"REACTOR_WORK_QUEUE" envDefault:"4096"`

	// Monitoring
	MetricsAddr     string        `env:"METRICS_ADDR" envDefault:":9090"`
	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads an optional .env file, then the environment, then validates.
// It reports whether a .env file was found.
func Load() (*Config, bool, error) {
	// .env is a development convenience; its absence is not an error
	dotenv := godotenv.Load() == nil

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, dotenv, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, dotenv, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, dotenv, nil
}

// Validate checks ranges and enums.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("REACTOR_ADDR is required")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("REACTOR_BUFFER_SIZE must be > 0, got %d", c.BufferSize)
	}
	if c.CoreBuffers < 1 {
		return fmt.Errorf("REACTOR_CORE_BUFFERS must be >= 1, got %d", c.CoreBuffers)
	}
	if c.MaxBuffers < c.CoreBuffers {
		return fmt.Errorf("REACTOR_MAX_BUFFERS (%d) must be >= REACTOR_CORE_BUFFERS (%d)",
			c.MaxBuffers, c.CoreBuffers)
	}
	if c.SpinThreshold < 1 {
		return fmt.Errorf("REACTOR_SPIN_THRESHOLD must be >= 1, got %d", c.SpinThreshold)
	}
	if c.SpinWindow <= 0 {
		return fmt.Errorf("REACTOR_SPIN_WINDOW must be > 0, got %s", c.SpinWindow)
	}
	if c.AcceptRate < 0 {
		return fmt.Errorf("REACTOR_ACCEPT_RATE must be >= 0, got %.2f", c.AcceptRate)
	}
	if c.AcceptRate > 0 && c.AcceptBurst < 1 {
		return fmt.Errorf("REACTOR_ACCEPT_BURST must be >= 1 when rate limiting, got %d", c.AcceptBurst)
	}

	validExecutors := map[string]bool{"serial": true, "pool": true}
	if !validExecutors[c.ExecutorMode] {
		return fmt.Errorf("REACTOR_EXECUTOR must be one of: serial, pool (got: %s)", c.ExecutorMode)
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}
	return nil
}
