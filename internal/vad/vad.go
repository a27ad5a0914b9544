// Package vad classifies audio frames as speech or non-speech.
package vad

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/audio"
)

// ErrInvalidFrameDuration is returned for frames whose length is not 10, 20
// or 30 ms at a supported sample rate.
var ErrInvalidFrameDuration = errors.New("invalid frame duration")

// Classifier backends.
const (
	BackendWebRTC = "webrtc"
	BackendEnergy = "energy"
)

// MaxAggressiveness is the most aggressive filtering level.
const MaxAggressiveness = 3

// SupportedSampleRates lists the sample rates a classifier accepts.
var SupportedSampleRates = []int{8000, 16000, 32000, 48000}

// SupportedFrameDurations lists the frame durations a classifier accepts.
var SupportedFrameDurations = []time.Duration{
	10 * time.Millisecond,
	20 * time.Millisecond,
	30 * time.Millisecond,
}

// Classifier decides whether a frame contains speech.
type Classifier interface {
	Classify(f audio.Frame) (bool, error)
}

// New returns a classifier for the named backend. Aggressiveness ranges
// from 0 (least filtering) to 3 (most filtering).
func New(backend string, aggressiveness int) (Classifier, error) {
	if aggressiveness < 0 || aggressiveness > MaxAggressiveness {
		return nil, fmt.Errorf("aggressiveness %d out of range 0-%d", aggressiveness, MaxAggressiveness)
	}
	switch backend {
	case BackendEnergy:
		return NewEnergy(aggressiveness), nil
	case "", BackendWebRTC:
		return newWebRTC(aggressiveness)
	default:
		return nil, fmt.Errorf("unknown vad backend %q", backend)
	}
}

// ValidFormat reports whether frames of the given duration at the given
// rate can be classified.
func ValidFormat(sampleRate int, frameDuration time.Duration) bool {
	return slices.Contains(SupportedSampleRates, sampleRate) &&
		slices.Contains(SupportedFrameDurations, frameDuration)
}

// ValidateFrame checks the frame's sample rate and length.
func ValidateFrame(f audio.Frame) error {
	if !slices.Contains(SupportedSampleRates, f.SampleRate) {
		return fmt.Errorf("%w: unsupported sample rate %d Hz", ErrInvalidFrameDuration, f.SampleRate)
	}
	for _, d := range SupportedFrameDurations {
		if f.Len() == audio.FrameSamples(f.SampleRate, d) {
			return nil
		}
	}
	return fmt.Errorf("%w: %d samples at %d Hz", ErrInvalidFrameDuration, f.Len(), f.SampleRate)
}
