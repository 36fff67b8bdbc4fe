//go:build darwin || dragonfly || freebsd || netbsd || openbsd

// File: reactor/reactor_bsd.go
// Author: momentics <momentics@gmail.com>
//
// kqueue(2) poller for BSD and Darwin, with a self-pipe for wakeups.

package reactor

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	kq   int
	wr   [2]int // wake pipe: read end, write end
	raw  []unix.Kevent_t
	mu   sync.Mutex
	regs map[int]Ops // kqueue filters are per direction, so Modify needs the old set
}

func newPoller() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}
	unix.CloseOnExec(kq)

	p := &kqueuePoller{kq: kq, regs: make(map[int]Ops)}
	if err := unix.Pipe(p.wr[:]); err != nil {
		unix.Close(kq)
		return nil, fmt.Errorf("wake pipe: %w", err)
	}
	for _, fd := range p.wr {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			p.Close()
			return nil, fmt.Errorf("wake pipe nonblock: %w", err)
		}
	}
	var ch [1]unix.Kevent_t
	unix.SetKevent(&ch[0], p.wr[0], unix.EVFILT_READ, unix.EV_ADD)
	if _, err := unix.Kevent(kq, ch[:], nil, nil); err != nil {
		p.Close()
		return nil, fmt.Errorf("kevent add wake pipe: %w", err)
	}
	return p, nil
}

func (p *kqueuePoller) apply(fd int, old, ops Ops) error {
	var changes []unix.Kevent_t
	change := func(filter, flags int) {
		var ev unix.Kevent_t
		unix.SetKevent(&ev, fd, filter, flags)
		changes = append(changes, ev)
	}
	wantRead, hadRead := ops&(OpRead|OpAccept) != 0, old&(OpRead|OpAccept) != 0
	wantWrite, hadWrite := ops&OpWrite != 0, old&OpWrite != 0
	switch {
	case wantRead && !hadRead:
		change(unix.EVFILT_READ, unix.EV_ADD)
	case !wantRead && hadRead:
		change(unix.EVFILT_READ, unix.EV_DELETE)
	}
	switch {
	case wantWrite && !hadWrite:
		change(unix.EVFILT_WRITE, unix.EV_ADD)
	case !wantWrite && hadWrite:
		change(unix.EVFILT_WRITE, unix.EV_DELETE)
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	return err
}

func (p *kqueuePoller) Add(fd int, ops Ops) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.apply(fd, 0, ops); err != nil {
		return fmt.Errorf("kevent add: %w", err)
	}
	p.regs[fd] = ops
	return nil
}

func (p *kqueuePoller) Modify(fd int, ops Ops) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.apply(fd, p.regs[fd], ops); err != nil {
		return fmt.Errorf("kevent modify: %w", err)
	}
	p.regs[fd] = ops
	return nil
}

func (p *kqueuePoller) Delete(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	old, ok := p.regs[fd]
	if !ok {
		return nil
	}
	delete(p.regs, fd)
	if err := p.apply(fd, old, 0); err != nil {
		return fmt.Errorf("kevent delete: %w", err)
	}
	return nil
}

func (p *kqueuePoller) Wait(events []Event, timeout time.Duration) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	if cap(p.raw) < len(events) {
		p.raw = make([]unix.Kevent_t, len(events))
	}
	raw := p.raw[:len(events)]

	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}
	var n int
	var err error
	for {
		n, err = unix.Kevent(p.kq, nil, raw, ts)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return 0, fmt.Errorf("kevent wait: %w", err)
	}

	k := 0
	for i := 0; i < n; i++ {
		fd := int(raw[i].Ident)
		if fd == p.wr[0] {
			p.drainWakeup()
			continue
		}
		var ops Ops
		switch raw[i].Filter {
		case unix.EVFILT_READ:
			ops = OpRead
		case unix.EVFILT_WRITE:
			ops = OpWrite
		}
		if raw[i].Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
			ops |= OpRead
		}
		events[k] = Event{FD: fd, Ops: ops}
		k++
	}
	return k, nil
}

func (p *kqueuePoller) drainWakeup() {
	var buf [64]byte
	for {
		if _, err := unix.Read(p.wr[0], buf[:]); err != nil {
			return
		}
	}
}

func (p *kqueuePoller) Wakeup() error {
	if _, err := unix.Write(p.wr[1], []byte{1}); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("wake pipe write: %w", err)
	}
	return nil
}

func (p *kqueuePoller) Close() error {
	unix.Close(p.wr[0])
	unix.Close(p.wr[1])
	if err := unix.Close(p.kq); err != nil {
		return fmt.Errorf("kqueue close: %w", err)
	}
	return nil
}
