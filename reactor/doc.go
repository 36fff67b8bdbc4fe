// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness selector used by the server loop.
//
// A Selector wraps an OS readiness multiplexer (epoll on Linux, kqueue on BSD and
// Darwin) behind the Poller interface and hands out one ready SelectionKey per Next
// call. Repeated zero-result waits inside a short window are treated as the known
// busy-spin defect of readiness polling: the selector then builds a fresh poller and
// moves every live registration onto it.
//
// Next must only be called from one goroutine. Close, Register and SelectionKey
// methods may be called from any goroutine.
package reactor
