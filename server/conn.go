// File: server/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/internal/monitoring"
	"github.com/momentics/hioload-reactor/reactor"
)

// Conn is the api.ConnectionContext of one accepted socket. Writes may come from
// any goroutine; they are serialized and block while the send buffer is full.
type Conn struct {
	id     uint64
	fd     int
	remote net.Addr
	key    *reactor.SelectionKey
	srv    *Server
	run    *runState

	// fdMu keeps fd alive across read/write syscalls; close takes it exclusively.
	fdMu   sync.RWMutex
	wmu    sync.Mutex
	closed atomic.Bool
	opened atomic.Bool // OnOpen was handed to the executor
}

var _ api.ConnectionContext = (*Conn)(nil)

func newConn(s *Server, run *runState, fd int, remote net.Addr) *Conn {
	return &Conn{
		id:     s.nextID.Add(1),
		fd:     fd,
		remote: remote,
		srv:    s,
		run:    run,
	}
}

func (c *Conn) ID() uint64           { return c.id }
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

// Closed reports whether the connection has been closed by either side.
func (c *Conn) Closed() bool { return c.closed.Load() }

// Write writes all of p. A failed write closes the connection.
func (c *Conn) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, api.ErrConnClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()

	c.fdMu.RLock()
	if c.closed.Load() {
		c.fdMu.RUnlock()
		return 0, api.ErrConnClosed
	}
	n, err := writeFD(c.fd, p)
	c.fdMu.RUnlock()

	if n > 0 {
		monitoring.BytesWritten(n)
	}
	if err != nil {
		if c.closed.Load() {
			return n, api.ErrConnClosed
		}
		c.closeWith(monitoring.ReasonError, err)
		return n, fmt.Errorf("write conn %d: %w", c.id, err)
	}
	// Resume read interest in case it was narrowed.
	if err := c.key.SetInterest(reactor.OpRead); err != nil && !c.closed.Load() && !errors.Is(err, api.ErrSelectorClosed) {
		c.srv.log.Debug().Err(err).Uint64("conn", c.id).Msg("restore read interest")
	}
	return n, nil
}

// WriteBuffer writes the readable bytes of b. The caller keeps ownership of b.
func (c *Conn) WriteBuffer(b api.Buffer) (int, error) {
	return c.Write(b.Bytes())
}

// ReadFrom copies r to the connection through a pooled buffer until EOF.
func (c *Conn) ReadFrom(r io.Reader) (int64, error) {
	buf := c.run.pool.Get()
	defer buf.Release()
	chunk := buf.Raw()

	var total int64
	for {
		n, rerr := r.Read(chunk)
		if n > 0 {
			w, werr := c.Write(chunk[:n])
			total += int64(w)
			if werr != nil {
				return total, werr
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

// Close closes the socket and dispatches OnClose. Closing twice is a no-op.
func (c *Conn) Close() error {
	c.closeWith(monitoring.ReasonLocal, nil)
	return nil
}

// closeWith runs the close sequence once: deregister, shut down to unblock
// writers, close the fd, then dispatch OnClose.
func (c *Conn) closeWith(reason string, cause error) bool {
	if !c.closed.CompareAndSwap(false, true) {
		return false
	}
	if c.key != nil {
		_ = c.key.Cancel()
	}
	_ = shutdownFD(c.fd)

	c.fdMu.Lock()
	err := closeFD(c.fd)
	c.fdMu.Unlock()

	c.run.removeConn(c)
	monitoring.ConnectionClosed(reason)

	ev := c.srv.log.Debug().Uint64("conn", c.id).Str("reason", reason)
	if cause != nil {
		ev = ev.AnErr("cause", cause)
	}
	if err != nil {
		ev = ev.AnErr("close_err", err)
	}
	ev.Msg("connection closed")

	c.srv.dispatchClose(c.run, c)
	return true
}
