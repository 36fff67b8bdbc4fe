//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7) poller, level-triggered, with an eventfd for wakeups.

package reactor

import (
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

type epollPoller struct {
	epfd int
	wfd  int // eventfd
	raw  []unix.EpollEvent
}

func newPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wfd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wfd, &ev); err != nil {
		unix.Close(wfd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add eventfd: %w", err)
	}
	return &epollPoller{epfd: epfd, wfd: wfd}, nil
}

func epollEvents(ops Ops) uint32 {
	var ev uint32
	if ops&(OpRead|OpAccept) != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if ops&OpWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) ctl(op, fd int, ops Ops) error {
	ev := unix.EpollEvent{Events: epollEvents(ops), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, op, fd, &ev)
}

func (p *epollPoller) Add(fd int, ops Ops) error {
	if err := p.ctl(unix.EPOLL_CTL_ADD, fd, ops); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

func (p *epollPoller) Modify(fd int, ops Ops) error {
	if err := p.ctl(unix.EPOLL_CTL_MOD, fd, ops); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

func (p *epollPoller) Delete(fd int) error {
	// non-nil event for kernels before 2.6.9
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{}); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

func (p *epollPoller) Wait(events []Event, timeout time.Duration) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	if cap(p.raw) < len(events) {
		p.raw = make([]unix.EpollEvent, len(events))
	}
	raw := p.raw[:len(events)]

	var n int
	var err error
	for {
		n, err = unix.EpollWait(p.epfd, raw, timeoutMillis(timeout))
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	k := 0
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		if fd == p.wfd {
			p.drainWakeup()
			continue
		}
		var ops Ops
		if raw[i].Events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			ops |= OpRead
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			ops |= OpWrite
		}
		events[k] = Event{FD: fd, Ops: ops}
		k++
	}
	return k, nil
}

func (p *epollPoller) drainWakeup() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wfd, buf[:]); err != nil {
			return
		}
	}
}

func (p *epollPoller) Wakeup() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wfd, buf[:]); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (p *epollPoller) Close() error {
	werr := unix.Close(p.wfd)
	if err := unix.Close(p.epfd); err != nil {
		return fmt.Errorf("epoll close: %w", err)
	}
	return werr
}
