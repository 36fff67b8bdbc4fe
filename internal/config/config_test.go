package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.BufferSize != 4096 || cfg.ExecutorMode != "serial" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.SpinWindow != time.Millisecond || cfg.BufferKeepAlive != time.Minute {
		t.Errorf("durations: window=%s keepalive=%s", cfg.SpinWindow, cfg.BufferKeepAlive)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("REACTOR_ADDR", "127.0.0.1:0")
	t.Setenv("REACTOR_BUFFER_SIZE", "1024")
	t.Setenv("REACTOR_EXECUTOR", "pool")
	t.Setenv("REACTOR_SPIN_WINDOW", "5ms")

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:0" || cfg.BufferSize != 1024 || cfg.ExecutorMode != "pool" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.SpinWindow != 5*time.Millisecond {
		t.Errorf("SpinWindow = %s", cfg.SpinWindow)
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("REACTOR_MAX_BUFFERS", "8")
	t.Setenv("REACTOR_CORE_BUFFERS", "16")
	if _, _, err := Load(); err == nil || !strings.Contains(err.Error(), "REACTOR_MAX_BUFFERS") {
		t.Fatalf("Load = %v, want max buffers validation error", err)
	}
}

func TestValidate_Enums(t *testing.T) {
	base := func() *Config {
		return &Config{
			Addr: ":1", BufferSize: 1, CoreBuffers: 1, MaxBuffers: 1,
			SpinThreshold: 1, SpinWindow: time.Millisecond,
			ExecutorMode: "serial", LogLevel: "info", LogFormat: "json",
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}

	c := base()
	c.ExecutorMode = "fibers"
	if err := c.Validate(); err == nil {
		t.Error("unknown executor accepted")
	}
	c = base()
	c.LogFormat = "xml"
	if err := c.Validate(); err == nil {
		t.Error("unknown log format accepted")
	}
	c = base()
	c.AcceptRate = 10
	c.AcceptBurst = 0
	if err := c.Validate(); err == nil {
		t.Error("zero burst accepted with rate limiting")
	}
}
