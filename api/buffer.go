// Package api
// Author: momentics <momentics@gmail.com>
//
// Pooled memory buffer contract.

package api

// Buffer is a pooled byte region handed out by a buffer pool.
type Buffer interface {
	// Bytes returns the filled part of the buffer.
	Bytes() []byte

	// Release returns the buffer to its pool. The buffer must not be used afterwards.
	// Releasing a buffer that is not tracked by any pool is a no-op.
	Release()
}
