// File: internal/concurrency/executor.go
// Package concurrency implements the worker-pool task executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks across worker goroutines through a bounded queue.
// Submit never blocks: a full queue is reported to the caller.

package concurrency

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-reactor/api"
)

// TaskFunc is a unit of work to execute.
type TaskFunc func()

// Executor manages a pool of worker goroutines.
type Executor struct {
	tasks      chan TaskFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex // guards closed against sends on a closed channel
	closed     bool
	numWorkers int
	log        zerolog.Logger

	// statistics
	totalTasks     atomic.Int64
	completedTasks atomic.Int64
	rejectedTasks  atomic.Int64
	panics         atomic.Int64
}

// NewExecutor starts numWorkers goroutines sharing a queue of queueSize tasks.
// If numWorkers <= 0, defaults to runtime.GOMAXPROCS(0); if queueSize <= 0, to
// numWorkers*64.
func NewExecutor(numWorkers, queueSize int, log zerolog.Logger) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	if queueSize <= 0 {
		queueSize = numWorkers * 64
	}
	e := &Executor{
		tasks:      make(chan TaskFunc, queueSize),
		numWorkers: numWorkers,
		log:        log.With().Str("component", "executor").Logger(),
	}
	e.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go e.worker()
	}
	return e
}

// Submit enqueues a task. It returns api.ErrExecutorClosed after Close and
// api.ErrExecutorFull when the queue has no room.
func (e *Executor) Submit(task func()) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return api.ErrExecutorClosed
	}
	select {
	case e.tasks <- task:
		e.totalTasks.Add(1)
		return nil
	default:
		e.rejectedTasks.Add(1)
		return api.ErrExecutorFull
	}
}

// NumWorkers returns the number of worker goroutines.
func (e *Executor) NumWorkers() int { return e.numWorkers }

// Close stops accepting tasks, lets workers drain the queue and waits for them.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.tasks)
	e.mu.Unlock()
	e.wg.Wait()
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	total, done := e.totalTasks.Load(), e.completedTasks.Load()
	return map[string]int64{
		"total_tasks":     total,
		"completed_tasks": done,
		"pending_tasks":   total - done,
		"rejected_tasks":  e.rejectedTasks.Load(),
		"panics":          e.panics.Load(),
		"num_workers":     int64(e.numWorkers),
	}
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for task := range e.tasks {
		if runTask(e.log, task) {
			e.panics.Add(1)
		}
		e.completedTasks.Add(1)
	}
}

// runTask runs task and recovers a panic so the worker survives. It reports
// whether the task panicked.
func runTask(log zerolog.Logger, task TaskFunc) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			log.Error().
				Err(fmt.Errorf("panic: %v", r)).
				Str("stack_trace", string(debug.Stack())).
				Msg("task panic recovered")
		}
	}()
	task()
	return false
}
