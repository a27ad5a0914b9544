//go:build !portaudio

package audio

import "fmt"

func newPortAudioSource(SourceConfig) (Source, error) {
	return nil, fmt.Errorf("%w: built without portaudio support (use -tags portaudio)", ErrDeviceUnavailable)
}

func portAudioDevices() []Device {
	return nil
}
