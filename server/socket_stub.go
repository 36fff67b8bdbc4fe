//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

// File: server/socket_stub.go
// Author: momentics <momentics@gmail.com>

package server

import (
	"net"

	"github.com/momentics/hioload-reactor/api"
)

type listener struct {
	fd   int
	addr *net.TCPAddr
}

func listenTCP(string) (*listener, error) { return nil, api.ErrNotSupported }
func (l *listener) close() error { return api.ErrNotSupported }
func (l *listener) accept() (int, *net.TCPAddr, error) { return -1, nil, api.ErrNotSupported }

func setNoDelay(int) error { return api.ErrNotSupported }
func readFD(int, []byte) (int, error) { return 0, api.ErrNotSupported }
func writeFD(int, []byte) (int, error) { return 0, api.ErrNotSupported }
func shutdownFD(int) error { return api.ErrNotSupported }
func closeFD(int) error { return api.ErrNotSupported }
func wouldBlock(error) bool { return false }
func tooManyFiles(error) bool { return false }
