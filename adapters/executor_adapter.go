// File: adapters/executor_adapter.go
// Package adapters exposes the internal executors as api.Executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The reactor only needs api.Executor; these wrappers add the lifecycle methods
// callers use to size and shut the executors down.

package adapters

import (
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/internal/concurrency"
)

// ExecutorAdapter runs callbacks on a fixed worker pool. Callbacks of one
// connection may execute concurrently and out of dispatch order.
type ExecutorAdapter struct {
	exec *concurrency.Executor
}

var _ api.Executor = (*ExecutorAdapter)(nil)

// NewExecutorAdapter starts workers goroutines with a queue of queueSize tasks.
// Non-positive values pick defaults derived from GOMAXPROCS.
func NewExecutorAdapter(workers, queueSize int, log zerolog.Logger) *ExecutorAdapter {
	return &ExecutorAdapter{exec: concurrency.NewExecutor(workers, queueSize, log)}
}

// Submit dispatches a task; fails with api.ErrExecutorFull or api.ErrExecutorClosed.
func (ea *ExecutorAdapter) Submit(task func()) error {
	return ea.exec.Submit(task)
}

// NumWorkers returns the size of the worker pool.
func (ea *ExecutorAdapter) NumWorkers() int { return ea.exec.NumWorkers() }

// Stats reports task counters: total, completed, pending, rejected and panics.
func (ea *ExecutorAdapter) Stats() map[string]int64 { return ea.exec.Stats() }

// Close waits for queued tasks to finish.
func (ea *ExecutorAdapter) Close() { ea.exec.Close() }

// SerialAdapter runs every callback on one goroutine in dispatch order, so a
// connection's callbacks also execute in the order the reactor observed its events.
type SerialAdapter struct {
	exec *concurrency.SerialExecutor
}

var _ api.Executor = (*SerialAdapter)(nil)

func NewSerialAdapter(log zerolog.Logger) *SerialAdapter {
	return &SerialAdapter{exec: concurrency.NewSerialExecutor(log)}
}

func (sa *SerialAdapter) Submit(task func()) error { return sa.exec.Submit(task) }

// Pending returns the number of callbacks waiting behind the running one.
func (sa *SerialAdapter) Pending() int { return sa.exec.Pending() }

// Close runs already queued tasks, then stops.
func (sa *SerialAdapter) Close() { sa.exec.Close() }
