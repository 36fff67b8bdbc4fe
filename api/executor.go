// Package api
// Author: momentics
//
// Executor contract for dispatching application callbacks off the reactor goroutine.

package api

// Executor runs tasks submitted by the reactor.
//
// The reactor submits tasks in the order it observes events. Whether they also run
// in that order is up to the implementation: a single-goroutine executor preserves it,
// a worker pool does not.
type Executor interface {
	// Submit schedules task for execution. It must not block the caller for long.
	Submit(task func()) error
}
