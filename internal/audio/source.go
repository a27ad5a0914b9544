package audio

import (
	"errors"
	"fmt"
	"time"
)

// ErrDeviceUnavailable is returned when the capture device cannot be opened
// or fails before delivering audio.
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// ErrNoAudioDevice is returned when no audio input device is available.
var ErrNoAudioDevice = errors.New("no audio input device found")

// Capture backends.
const (
	BackendProcess   = "process"
	BackendPortAudio = "portaudio"
)

// Source delivers fixed-size frames from a capture device.
//
// Start opens the device and begins calling onFrame from a capture
// goroutine; frames arrive in order with increasing Seq. Stop is idempotent.
// Done is closed when capture ends for any reason, after which Err reports
// a device failure (nil after a requested Stop).
type Source interface {
	Start(onFrame func(Frame)) error
	Stop() error
	Done() <-chan struct{}
	Err() error
}

// SourceConfig selects and parameterizes a capture backend.
type SourceConfig struct {
	Backend       string
	Device        string
	FFmpegPath    string
	SampleRate    int
	FrameDuration time.Duration
}

// FrameSize returns the number of samples per frame.
func (c *SourceConfig) FrameSize() int {
	return FrameSamples(c.SampleRate, c.FrameDuration)
}

// NewSource returns the capture backend named in cfg.
func NewSource(cfg SourceConfig) (Source, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSize() <= 0 {
		return nil, fmt.Errorf("invalid capture format: %d Hz, %s frames", cfg.SampleRate, cfg.FrameDuration)
	}
	switch cfg.Backend {
	case "", BackendProcess:
		return NewProcessSource(cfg), nil
	case BackendPortAudio:
		return newPortAudioSource(cfg)
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.Backend)
	}
}

// frameClock derives frame timestamps from the device clock: the stream
// start time plus the number of samples already delivered.
type frameClock struct {
	start    time.Time
	frameDur time.Duration
}

func (c frameClock) at(seq uint64) time.Time {
	return c.start.Add(time.Duration(seq) * c.frameDur) //nolint:gosec // seq fits comfortably in int64
}
