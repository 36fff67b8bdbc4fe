// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral multiplexer interface. Platform pollers live in reactor_<os>.go.

package reactor

import (
	"strings"
	"time"
)

// Ops is a set of readiness operations.
type Ops uint32

const (
	OpRead Ops = 1 << iota
	OpWrite
	OpAccept
)

func (o Ops) String() string {
	if o == 0 {
		return "none"
	}
	var parts []string
	if o&OpAccept != 0 {
		parts = append(parts, "accept")
	}
	if o&OpRead != 0 {
		parts = append(parts, "read")
	}
	if o&OpWrite != 0 {
		parts = append(parts, "write")
	}
	return strings.Join(parts, "|")
}

// Event is one readiness notification from a Poller. Ops carries OpRead and/or
// OpWrite; hang-up and error conditions are reported as OpRead so the next read
// observes them.
type Event struct {
	FD  int
	Ops Ops
}

// Poller is an OS readiness multiplexer. Wait is only called from one goroutine at a
// time; the other methods may run concurrently with it.
type Poller interface {
	Add(fd int, ops Ops) error
	Modify(fd int, ops Ops) error
	Delete(fd int) error

	// Wait fills events and returns how many were written. A negative timeout blocks
	// until an event or a Wakeup. Interrupted waits are retried internally.
	Wait(events []Event, timeout time.Duration) (int, error)

	// Wakeup makes a blocked or the next Wait return.
	Wakeup() error

	Close() error
}

// PollerFactory creates a poller. The selector calls it again on every rebuild.
type PollerFactory func() (Poller, error)

// NewPoller opens the platform poller.
func NewPoller() (Poller, error) {
	return newPoller()
}

func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	return int(d / time.Millisecond)
}
