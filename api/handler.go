// File: api/handler.go
// Package api defines the connection callback contracts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import (
	"io"
	"net"
)

// ConnectionContext is the per-connection handle given to ChannelHandler callbacks.
type ConnectionContext interface {
	// ID is unique per server for the lifetime of the process.
	ID() uint64
	RemoteAddr() net.Addr

	// Write sends p synchronously. It fails with ErrConnClosed after Close.
	Write(p []byte) (int, error)
	// ReadFrom streams r to the connection in chunks of the server buffer size.
	ReadFrom(r io.Reader) (int64, error)
	// WriteBuffer sends b.Bytes(). The caller keeps ownership of b.
	WriteBuffer(b Buffer) (int, error)

	Close() error
}

// ChannelHandler receives connection events from the reactor via the Executor.
//
// For a given connection OnOpen is dispatched first and OnClose exactly once, last.
// data passed to OnReceive is only valid until the callback returns and must not be
// modified.
type ChannelHandler interface {
	OnOpen(ctx ConnectionContext)
	OnReceive(ctx ConnectionContext, data []byte)
	OnClose(ctx ConnectionContext)
}

// HandlerFuncs adapts plain functions to ChannelHandler. Nil fields are skipped.
type HandlerFuncs struct {
	Open    func(ctx ConnectionContext)
	Receive func(ctx ConnectionContext, data []byte)
	Close   func(ctx ConnectionContext)
}

func (h HandlerFuncs) OnOpen(ctx ConnectionContext) {
	if h.Open != nil {
		h.Open(ctx)
	}
}

func (h HandlerFuncs) OnReceive(ctx ConnectionContext, data []byte) {
	if h.Receive != nil {
		h.Receive(ctx, data)
	}
}

func (h HandlerFuncs) OnClose(ctx ConnectionContext) {
	if h.Close != nil {
		h.Close(ctx)
	}
}
