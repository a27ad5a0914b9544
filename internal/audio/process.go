package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/types"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/util"
)

// ProcessSource captures audio by running a platform capture command
// (arecord or FFmpeg) that writes raw s16le mono PCM to stdout.
type ProcessSource struct {
	cfg SourceConfig

	mu       sync.Mutex
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	stdin    io.WriteCloser
	started  bool
	stopping bool
	err      error
	done     chan struct{}

	// stderr is written by the exec package until Wait returns.
	stderr bytes.Buffer
}

// NewProcessSource returns a capture source backed by a subprocess.
func NewProcessSource(cfg SourceConfig) *ProcessSource {
	return &ProcessSource{
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start launches the capture process and waits until the first frame
// arrives or the startup window elapses. A process that cannot be started,
// or exits inside the window, yields ErrDeviceUnavailable.
func (s *ProcessSource) Start(onFrame func(Frame)) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}

	cmdName, args, err := BuildCaptureCommand(s.cfg.Device, s.cfg.FFmpegPath, s.cfg.SampleRate)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	slog.Info("starting audio capture", "command", cmdName, "device", s.cfg.Device,
		"sample_rate", s.cfg.SampleRate, "frame", s.cfg.FrameDuration)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, cmdName, args...)
	cmd.Cancel = func() error {
		return util.GracefulSignal(cmd.Process)
	}
	cmd.WaitDelay = types.ShutdownTimeout
	cmd.Stderr = &s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, util.WrapError("create stdout pipe", err))
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, util.WrapError("create stdin pipe", err))
	}

	if err := cmd.Start(); err != nil {
		cancel()
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, util.WrapError("start "+cmdName, err))
	}

	s.cmd = cmd
	s.cancel = cancel
	s.stdin = stdin
	s.started = true
	s.mu.Unlock()

	firstFrame := make(chan struct{})
	clock := frameClock{start: time.Now(), frameDur: s.cfg.FrameDuration}
	go s.readLoop(stdout, clock, onFrame, firstFrame)

	select {
	case <-firstFrame:
		return nil
	case <-s.done:
		return s.Err()
	case <-time.After(types.StartupWindow):
		return nil
	}
}

// readLoop cuts stdout into frames until the process exits.
func (s *ProcessSource) readLoop(stdout io.Reader, clock frameClock, onFrame func(Frame), firstFrame chan struct{}) {
	buf := make([]byte, s.cfg.FrameSize()*types.BytesPerSample)
	var seq uint64
	var readErr error

	for {
		if _, readErr = io.ReadFull(stdout, buf); readErr != nil {
			break
		}
		if seq == 0 {
			close(firstFrame)
		}
		onFrame(FrameFromBytes(seq, clock.at(seq), s.cfg.SampleRate, buf))
		seq++
	}

	waitErr := s.cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
	if !s.stopping {
		detail := util.ExtractLastError(s.stderr.String())
		switch {
		case detail != "":
			s.err = fmt.Errorf("%w: %s", ErrDeviceUnavailable, detail)
		case waitErr != nil:
			s.err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, waitErr)
		case !errors.Is(readErr, io.EOF):
			s.err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, readErr)
		default:
			s.err = fmt.Errorf("%w: capture process exited", ErrDeviceUnavailable)
		}
		slog.Error("audio capture stopped unexpectedly", "error", s.err, "frames", seq)
	}
	close(s.done)
}

// Stop asks the capture process to exit and waits for it, killing it after
// the shutdown timeout.
func (s *ProcessSource) Stop() error {
	s.mu.Lock()
	if !s.started || s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	cmd := s.cmd
	stdin := s.stdin
	cancel := s.cancel
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	default:
	}

	if err := util.GracefulStop(cmd.Process, stdin); err != nil {
		slog.Debug("failed to signal capture process", "error", err)
	}

	select {
	case <-s.done:
		slog.Info("audio capture stopped gracefully")
		return nil
	case <-time.After(types.ShutdownTimeout):
		slog.Warn("audio capture did not stop in time, forcing kill")
		cancel()
		<-s.done
		return errors.New("capture shutdown timeout")
	}
}

// Done is closed when the capture process has exited.
func (s *ProcessSource) Done() <-chan struct{} {
	return s.done
}

// Err returns the device failure that ended capture, if any.
func (s *ProcessSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
