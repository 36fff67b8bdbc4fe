//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd
// +build !linux,!darwin,!dragonfly,!freebsd,!netbsd,!openbsd

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for platforms without a readiness multiplexer.

package reactor

import "github.com/momentics/hioload-reactor/api"

func newPoller() (Poller, error) {
	return nil, api.ErrNotSupported
}
