//go:build !windows

package util

import (
	"io"
	"os"
	"syscall"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// GracefulSignal attempts graceful process termination.
func GracefulSignal(p *os.Process) error {
	return p.Signal(syscall.SIGINT)
}

// GracefulStop asks a capture process to exit. stdin is unused on Unix.
func GracefulStop(p *os.Process, _ io.WriteCloser) error {
	if p == nil {
		return nil
	}
	return GracefulSignal(p)
}
