// File: internal/concurrency/serial.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SerialExecutor: one goroutine, unbounded FIFO, submission order preserved.

package concurrency

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-reactor/api"
)

// SerialExecutor runs tasks one at a time in the order they were submitted.
type SerialExecutor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	closed bool
	done   chan struct{}
	log    zerolog.Logger

	completed atomic.Int64
}

// NewSerialExecutor starts the executor goroutine.
func NewSerialExecutor(log zerolog.Logger) *SerialExecutor {
	s := &SerialExecutor{
		q:    queue.New(),
		done: make(chan struct{}),
		log:  log.With().Str("component", "serial_executor").Logger(),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// Submit appends task to the queue. It only fails after Close.
func (s *SerialExecutor) Submit(task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return api.ErrExecutorClosed
	}
	s.q.Add(TaskFunc(task))
	s.cond.Signal()
	return nil
}

// Pending returns the number of queued tasks.
func (s *SerialExecutor) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Length()
}

// Completed returns the number of tasks run so far.
func (s *SerialExecutor) Completed() int64 { return s.completed.Load() }

// Close rejects new tasks, runs everything already queued and waits for the
// goroutine to exit.
func (s *SerialExecutor) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.cond.Broadcast()
	}
	s.mu.Unlock()
	<-s.done
}

func (s *SerialExecutor) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for s.q.Length() == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.q.Length() == 0 {
			s.mu.Unlock()
			return
		}
		task := s.q.Remove().(TaskFunc)
		s.mu.Unlock()

		runTask(s.log, task)
		s.completed.Add(1)
	}
}
