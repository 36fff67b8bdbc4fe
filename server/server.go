// File: server/server.go
// Package server implements the reactor-driven TCP server: one goroutine owns the
// selector, accepts connections, reads into pooled buffers and hands every
// callback to an api.Executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/internal/monitoring"
	"github.com/momentics/hioload-reactor/pool"
	"github.com/momentics/hioload-reactor/reactor"
)

// Server is a single-reactor TCP server. It can be started again after a stop.
type Server struct {
	cfg     Config
	exec    api.Executor
	handler api.ChannelHandler
	base    zerolog.Logger // handed to components that add their own fields
	log     zerolog.Logger

	mu   sync.Mutex
	run  *runState // live run, nil when stopped
	last *runState // most recent run, kept for Await after Stop

	nextID atomic.Uint64
}

// runState is everything owned by one start/stop cycle.
type runState struct {
	sel     *reactor.Selector
	ln      *listener
	pool    *pool.BufferPool
	limiter *rate.Limiter

	done chan struct{}
	err  error // set by the loop before done is closed

	connsMu sync.Mutex
	conns   map[uint64]*Conn

	inflight tracker
}

// New validates cfg and returns a stopped server.
func New(cfg Config, exec api.Executor, handler api.ChannelHandler) (*Server, error) {
	if exec == nil || handler == nil {
		return nil, fmt.Errorf("%w: executor and handler are required", api.ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	return &Server{
		cfg:     cfg,
		exec:    exec,
		handler: handler,
		base:    log,
		log:     log.With().Str("component", "server").Logger(),
	}, nil
}

// Start binds the listener and launches the reactor loop. It returns
// api.ErrAlreadyStarted if the server is running.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		return api.ErrAlreadyStarted
	}

	bp, err := pool.New(s.cfg.poolConfig())
	if err != nil {
		return fmt.Errorf("buffer pool: %w", err)
	}
	sel, err := reactor.Open(
		reactor.WithSpinThreshold(s.cfg.SpinThreshold),
		reactor.WithSpinWindow(s.cfg.SpinWindow),
		reactor.WithLogger(s.base),
		reactor.WithOnRebuild(monitoring.SelectorRebuilt),
	)
	if err != nil {
		_ = bp.Close()
		return err
	}
	ln, err := listenTCP(s.cfg.Addr)
	if err != nil {
		_ = sel.Close()
		_ = bp.Close()
		return err
	}
	if _, err := sel.Register(ln.fd, reactor.OpAccept, ln); err != nil {
		_ = ln.close()
		_ = sel.Close()
		_ = bp.Close()
		return fmt.Errorf("register listener: %w", err)
	}

	run := &runState{
		sel:   sel,
		ln:    ln,
		pool:  bp,
		done:  make(chan struct{}),
		conns: make(map[uint64]*Conn),
	}
	run.inflight.init()
	if s.cfg.AcceptRate > 0 {
		burst := s.cfg.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		run.limiter = rate.NewLimiter(rate.Limit(s.cfg.AcceptRate), burst)
	}
	s.run, s.last = run, run

	go s.loop(run)
	s.log.Info().Str("addr", ln.addr.String()).Msg("reactor started")
	return nil
}

// Stop closes the selector and waits for the loop to exit and for callbacks
// already handed to the executor to finish. Every open connection gets OnClose.
//
// Stop must not be called from a handler callback: it would wait for that
// callback to return. Use StopImmediately there, or call Stop from another goroutine.
func (s *Server) Stop() error { return s.stop(false) }

// StopImmediately closes the selector and returns once the loop has exited,
// without waiting for running callbacks. It is safe to call from a callback.
func (s *Server) StopImmediately() error { return s.stop(true) }

func (s *Server) stop(immediately bool) error {
	s.mu.Lock()
	run := s.run
	s.run = nil
	s.mu.Unlock()
	if run == nil {
		return api.ErrNotStarted
	}

	_ = run.sel.Close()
	<-run.done
	if !immediately {
		run.inflight.wait()
	}
	if err := run.pool.Close(); err != nil {
		// Regions are freed by the last release.
		s.log.Debug().Err(err).Msg("buffer pool closed with buffers in use")
	}
	s.log.Info().Bool("immediate", immediately).Msg("reactor stopped")
	return nil
}

// Await blocks until the reactor loop of the current or most recent run has
// exited and returns the loop's fatal error, if any.
func (s *Server) Await() error {
	s.mu.Lock()
	run := s.last
	s.mu.Unlock()
	if run == nil {
		return api.ErrNotStarted
	}
	<-run.done
	return run.err
}

// Addr returns the bound listen address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return nil
	}
	return s.run.ln.addr
}

// ActiveConnections returns the number of open connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	if run == nil {
		return 0
	}
	run.connsMu.Lock()
	defer run.connsMu.Unlock()
	return len(run.conns)
}

// PoolStats snapshots the read buffer pool of the running server.
func (s *Server) PoolStats() pool.Stats {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	if run == nil {
		return pool.Stats{}
	}
	return run.pool.Stats()
}

// Rebuilds returns how often the running selector replaced its poller.
func (s *Server) Rebuilds() uint64 {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()
	if run == nil {
		return 0
	}
	return run.sel.Rebuilds()
}

func (r *runState) addConn(c *Conn) {
	r.connsMu.Lock()
	r.conns[c.id] = c
	r.connsMu.Unlock()
}

func (r *runState) removeConn(c *Conn) {
	r.connsMu.Lock()
	delete(r.conns, c.id)
	r.connsMu.Unlock()
}

func (r *runState) snapshotConns() []*Conn {
	r.connsMu.Lock()
	defer r.connsMu.Unlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// tracker counts callbacks handed to the executor. Unlike sync.WaitGroup it
// tolerates increments racing with wait.
type tracker struct {
	mu   sync.Mutex
	cond *sync.Cond
	n    int
}

func (t *tracker) init() { t.cond = sync.NewCond(&t.mu) }

func (t *tracker) add() {
	t.mu.Lock()
	t.n++
	t.mu.Unlock()
}

func (t *tracker) done() {
	t.mu.Lock()
	t.n--
	if t.n == 0 {
		t.cond.Broadcast()
	}
	t.mu.Unlock()
}

func (t *tracker) wait() {
	t.mu.Lock()
	for t.n > 0 {
		t.cond.Wait()
	}
	t.mu.Unlock()
}
