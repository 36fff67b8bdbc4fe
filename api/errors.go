// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Common error values shared by the reactor, pool, executor and server packages.

package api

import "errors"

// Terminal and misuse errors. Callers compare with errors.Is.
var (
	// ErrSelectorClosed is the only expected failure of Selector.Next.
	ErrSelectorClosed = errors.New("selector closed")

	ErrAlreadyStarted = errors.New("server already started")
	ErrNotStarted     = errors.New("server not started")

	// ErrConnClosed is returned by writes on a connection after Close.
	ErrConnClosed = errors.New("connection closed")

	ErrExecutorClosed = errors.New("executor closed")
	ErrExecutorFull   = errors.New("executor queue full")

	ErrNotSupported    = errors.New("operation not supported on this platform")
	ErrInvalidArgument = errors.New("invalid argument")
)
