//go:build windows

package util

import (
	"io"
	"os"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulSignal is a no-op on Windows; FFmpeg is stopped through stdin instead.
func GracefulSignal(p *os.Process) error {
	return nil
}

// GracefulStop sends 'q' to FFmpeg's stdin, which is the only clean way
// to stop it on Windows.
func GracefulStop(_ *os.Process, stdin io.WriteCloser) error {
	if stdin == nil {
		return nil
	}
	_, _ = stdin.Write([]byte("q"))
	return stdin.Close()
}
