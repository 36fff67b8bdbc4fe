// File: server/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reactor loop: selection, accept, read and callback dispatch.

package server

import (
	"errors"
	"time"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/internal/concurrency"
	"github.com/momentics/hioload-reactor/internal/monitoring"
	"github.com/momentics/hioload-reactor/reactor"
)

// maxAcceptsPerEvent bounds the accept burst so reads are not starved.
const maxAcceptsPerEvent = 64

func (s *Server) loop(run *runState) {
	defer close(run.done)

	if s.cfg.ReactorCPU >= 0 {
		if err := concurrency.PinCurrentThread(s.cfg.ReactorCPU); err != nil {
			s.log.Warn().Err(err).Int("cpu", s.cfg.ReactorCPU).Msg("reactor pinning failed")
		}
	}

	for {
		key, err := run.sel.Next()
		if err != nil {
			if !errors.Is(err, api.ErrSelectorClosed) {
				run.err = err
				s.log.Error().Err(err).Msg("selector failed, reactor exiting")
			}
			break
		}
		switch att := key.Attachment().(type) {
		case *listener:
			if key.IsAcceptable() {
				s.accept(run, att)
			}
		case *Conn:
			if key.IsReadable() {
				s.read(run, att)
			}
		}
	}

	_ = run.sel.Close()
	for _, c := range run.snapshotConns() {
		c.closeWith(monitoring.ReasonShutdown, nil)
	}
	if err := run.ln.close(); err != nil {
		s.log.Debug().Err(err).Msg("closing listener")
	}
}

// accept drains pending connections, registers each for reads and dispatches OnOpen.
func (s *Server) accept(run *runState, ln *listener) {
	for i := 0; i < maxAcceptsPerEvent; i++ {
		fd, remote, err := ln.accept()
		if err != nil {
			if wouldBlock(err) {
				return
			}
			ev := s.log.Warn().Err(err)
			if tooManyFiles(err) {
				ev = s.log.Error().Err(err)
			}
			ev.Msg("accept failed")
			return
		}
		if run.limiter != nil && !run.limiter.Allow() {
			_ = closeFD(fd)
			monitoring.ConnectionRejected()
			s.log.Debug().Str("remote", remote.String()).Msg("connection rejected by accept limit")
			continue
		}
		if s.cfg.NoDelay {
			if err := setNoDelay(fd); err != nil {
				s.log.Debug().Err(err).Msg("TCP_NODELAY")
			}
		}

		c := newConn(s, run, fd, remote)
		key, err := run.sel.Register(fd, reactor.OpRead, c)
		if err != nil {
			_ = closeFD(fd)
			if errors.Is(err, api.ErrSelectorClosed) {
				return
			}
			s.log.Warn().Err(err).Int("fd", fd).Msg("register connection")
			continue
		}
		c.key = key
		run.addConn(c)
		monitoring.ConnectionAccepted()
		s.log.Debug().Uint64("conn", c.id).Str("remote", remote.String()).Msg("connection accepted")

		// Set before dispatch: OnOpen may close the connection before Submit returns.
		c.opened.Store(true)
		if !s.dispatch(run, "open", func() { s.handler.OnOpen(c) }) {
			c.opened.Store(false)
		}
	}
}

// read performs one read into a pooled buffer. End of stream and read errors
// close the connection before returning.
//
// The fd lock is held from the read through the receive dispatch. closeWith takes
// it exclusively before dispatching OnClose, so no receive is dispatched after it.
func (s *Server) read(run *runState, c *Conn) {
	buf := run.pool.Get()

	c.fdMu.RLock()
	if c.closed.Load() {
		c.fdMu.RUnlock()
		buf.Release()
		return
	}
	n, err := readFD(c.fd, buf.Raw())
	if err == nil && n > 0 {
		buf.SetLen(n)
		monitoring.BytesRead(n)
		ok := s.dispatch(run, "receive", func() {
			defer buf.Release()
			s.handler.OnReceive(c, buf.Bytes())
		})
		c.fdMu.RUnlock()
		if !ok {
			buf.Release()
		}
		return
	}
	c.fdMu.RUnlock()
	buf.Release()

	switch {
	case err != nil && wouldBlock(err):
	case err != nil:
		s.log.Debug().Err(err).Uint64("conn", c.id).Msg("read failed")
		c.closeWith(monitoring.ReasonError, err)
	default:
		c.closeWith(monitoring.ReasonEOF, nil)
	}
}

// dispatch hands task to the executor. A rejected task is logged and counted,
// never retried.
func (s *Server) dispatch(run *runState, event string, task func()) bool {
	run.inflight.add()
	err := s.exec.Submit(func() {
		defer run.inflight.done()
		task()
	})
	if err != nil {
		run.inflight.done()
		monitoring.DispatchFailed(event)
		s.log.Warn().Err(err).Str("event", event).Msg("callback dropped")
		return false
	}
	return true
}

// closeRetryLimit bounds how long a close event waits for room in a full executor.
const closeRetryLimit = 250 * time.Millisecond

// dispatchClose delivers OnClose even when the executor refuses it. A full queue is
// retried so OnClose stays behind the connection's queued callbacks; once the
// executor is closed, or the retry limit passes, OnClose runs on the calling goroutine.
// Connections whose OnOpen was dropped get no OnClose.
func (s *Server) dispatchClose(run *runState, c *Conn) {
	if !c.opened.Load() {
		return
	}
	task := func() { s.handler.OnClose(c) }
	deadline := time.Now().Add(closeRetryLimit)
	pause := 50 * time.Microsecond
	for {
		run.inflight.add()
		err := s.exec.Submit(func() {
			defer run.inflight.done()
			task()
		})
		if err == nil {
			return
		}
		run.inflight.done()
		if !errors.Is(err, api.ErrExecutorFull) || time.Now().After(deadline) {
			monitoring.DispatchFailed("close")
			s.log.Warn().Err(err).Uint64("conn", c.id).Msg("executor refused OnClose, running inline")
			run.inflight.add()
			func() {
				defer run.inflight.done()
				defer func() {
					if r := recover(); r != nil {
						s.log.Error().Interface("panic", r).Uint64("conn", c.id).Msg("OnClose panic recovered")
					}
				}()
				task()
			}()
			return
		}
		time.Sleep(pause)
		if pause < 5*time.Millisecond {
			pause *= 2
		}
	}
}
