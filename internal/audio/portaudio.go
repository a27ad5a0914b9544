//go:build portaudio

package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// portAudioSource captures through a PortAudio callback stream.
type portAudioSource struct {
	cfg SourceConfig

	mu      sync.Mutex
	stream  *portaudio.Stream
	started bool
	stopped bool
	done    chan struct{}
}

func newPortAudioSource(cfg SourceConfig) (Source, error) {
	return &portAudioSource{cfg: cfg, done: make(chan struct{})}, nil
}

// Start opens the configured input device (or the default one) as a mono
// int16 stream with one frame per callback.
func (s *portAudioSource) Start(onFrame func(Frame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	dev, err := s.inputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(s.cfg.SampleRate)
	params.FramesPerBuffer = s.cfg.FrameSize()

	clock := frameClock{start: time.Now(), frameDur: s.cfg.FrameDuration}
	var seq uint64
	stream, err := portaudio.OpenStream(params, func(in []int16) {
		onFrame(NewFrame(seq, clock.at(seq), s.cfg.SampleRate, in))
		seq++
	})
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: open stream: %w", ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: start stream: %w", ErrDeviceUnavailable, err)
	}

	slog.Info("portaudio capture started", "device", dev.Name, "sample_rate", s.cfg.SampleRate)
	s.stream = stream
	s.started = true
	return nil
}

func (s *portAudioSource) inputDevice() (*portaudio.DeviceInfo, error) {
	if s.cfg.Device == "" {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == s.cfg.Device && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, ErrNoAudioDevice
}

func (s *portAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return nil
	}
	s.stopped = true
	defer close(s.done)

	return errors.Join(s.stream.Stop(), s.stream.Close(), portaudio.Terminate())
}

func (s *portAudioSource) Done() <-chan struct{} {
	return s.done
}

// Err is always nil; PortAudio reports stream failures through Stop.
func (s *portAudioSource) Err() error {
	return nil
}

func portAudioDevices() []Device {
	if err := portaudio.Initialize(); err != nil {
		slog.Error("failed to initialize portaudio", "error", err)
		return nil
	}
	defer portaudio.Terminate() //nolint:errcheck // Listing only

	infos, err := portaudio.Devices()
	if err != nil {
		slog.Error("failed to list portaudio devices", "error", err)
		return nil
	}
	var devices []Device
	for _, d := range infos {
		if d.MaxInputChannels > 0 {
			devices = append(devices, Device{ID: d.Name, Name: d.Name})
		}
	}
	return devices
}
