//go:build cgo

package vad

import (
	"fmt"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/audio"
)

// WebRTC wraps the WebRTC voice activity detector. Mode equals the
// aggressiveness level.
type WebRTC struct {
	mu  sync.Mutex
	vad *webrtcvad.VAD
}

func newWebRTC(aggressiveness int) (Classifier, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("create webrtc vad: %w", err)
	}
	if err := v.SetMode(aggressiveness); err != nil {
		return nil, fmt.Errorf("set webrtc vad mode: %w", err)
	}
	return &WebRTC{vad: v}, nil
}

// Classify implements Classifier.
func (w *WebRTC) Classify(f audio.Frame) (bool, error) {
	if err := ValidateFrame(f); err != nil {
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	speech, err := w.vad.Process(f.SampleRate, f.Bytes())
	if err != nil {
		return false, fmt.Errorf("webrtc vad: %w", err)
	}
	return speech, nil
}
