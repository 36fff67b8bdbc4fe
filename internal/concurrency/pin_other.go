//go:build !linux
// +build !linux

// hioload-reactor/internal/concurrency/pin_other.go
// Author: momentics <momentics@gmail.com>

package concurrency

import "github.com/momentics/hioload-reactor/api"

func platformPinCurrentThread(cpuID int) error {
	return api.ErrNotSupported
}
