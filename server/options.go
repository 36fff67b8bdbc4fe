// File: server/options.go
// Package server configuration.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/pool"
	"github.com/momentics/hioload-reactor/reactor"
)

// Config holds the reactor server settings.
type Config struct {
	// Addr is the TCP listen address, e.g. ":9000" or "127.0.0.1:0".
	Addr string
	// NoDelay sets TCP_NODELAY on accepted connections.
	NoDelay bool

	// Read buffer pool.
	BufferSize      int
	DirectBuffer    bool
	CoreBuffers     int
	MaxBuffers      int
	BufferKeepAlive time.Duration

	// Busy-spin detection of the selector.
	SpinThreshold int
	SpinWindow    time.Duration

	// ReactorCPU pins the reactor goroutine's OS thread. Negative disables pinning.
	ReactorCPU int

	// AcceptRate limits accepted connections per second; zero disables the limit.
	AcceptRate  float64
	AcceptBurst int

	// Logger defaults to a disabled logger when nil.
	Logger *zerolog.Logger
}

// DefaultConfig returns a Config listening on :9000 with a 4 KiB direct read buffer.
func DefaultConfig() Config {
	pc := pool.DefaultConfig()
	return Config{
		Addr:            ":9000",
		NoDelay:         true,
		BufferSize:      pc.BufferSize,
		DirectBuffer:    pc.Direct,
		CoreBuffers:     pc.CoreSize,
		MaxBuffers:      pc.MaxSize,
		BufferKeepAlive: pc.KeepAlive,
		SpinThreshold:   reactor.DefaultSpinThreshold,
		SpinWindow:      reactor.DefaultSpinWindow,
		ReactorCPU:      -1,
	}
}

func (c Config) poolConfig() pool.Config {
	return pool.Config{
		BufferSize: c.BufferSize,
		CoreSize:   c.CoreBuffers,
		MaxSize:    c.MaxBuffers,
		KeepAlive:  c.BufferKeepAlive,
		Direct:     c.DirectBuffer,
	}
}

// Validate checks the settings for obvious misconfiguration.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: empty listen address", api.ErrInvalidArgument)
	}
	if err := c.poolConfig().Validate(); err != nil {
		return err
	}
	if c.SpinThreshold < 0 || c.SpinWindow < 0 {
		return fmt.Errorf("%w: negative spin detection setting", api.ErrInvalidArgument)
	}
	if c.AcceptRate < 0 || c.AcceptBurst < 0 {
		return fmt.Errorf("%w: negative accept limit", api.ErrInvalidArgument)
	}
	return nil
}
