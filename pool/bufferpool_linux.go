//go:build linux
// +build linux

// Package pool
// Author: momentics <momentics@gmail.com>
//
// Linux off-heap memory for the core ring: anonymous private mappings.

package pool

import "golang.org/x/sys/unix"

func allocDirect(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func freeDirect(region []byte) error {
	return unix.Munmap(region)
}
