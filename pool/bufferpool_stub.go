//go:build !linux
// +build !linux

// Package pool
// Author: momentics <momentics@gmail.com>
//
// Non-Linux platforms keep the core ring on the Go heap.

package pool

import "github.com/momentics/hioload-reactor/api"

func allocDirect(size int) ([]byte, error) {
	return nil, api.ErrNotSupported
}

func freeDirect(region []byte) error { return nil }
