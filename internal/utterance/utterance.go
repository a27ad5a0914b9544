// Package utterance groups classified frames into utterances: contiguous
// runs of audio that start with speech and end after a stretch of silence.
package utterance

import (
	"time"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/audio"
)

// CloseReason records why an utterance was finalized.
type CloseReason string

const (
	// ReasonTimeout means the silence timeout elapsed after the last speech frame.
	ReasonTimeout CloseReason = "timeout"
	// ReasonForced means the session stopped while the utterance was open.
	ReasonForced CloseReason = "forced"
)

// Utterance is an ordered, contiguous run of frames.
type Utterance struct {
	ID         string
	SampleRate int
	Frames     []audio.Frame
	// FirstSpeech and LastSpeech are the timestamps of the first and last
	// frames classified as speech.
	FirstSpeech time.Time
	LastSpeech  time.Time
	Reason      CloseReason
}

// Len returns the number of frames.
func (u *Utterance) Len() int {
	return len(u.Frames)
}

// Start returns the timestamp of the first frame.
func (u *Utterance) Start() time.Time {
	if len(u.Frames) == 0 {
		return time.Time{}
	}
	return u.Frames[0].Timestamp
}

// Duration returns the total audio duration.
func (u *Utterance) Duration() time.Duration {
	var d time.Duration
	for _, f := range u.Frames {
		d += f.Duration()
	}
	return d
}

// Samples concatenates the frames into one PCM buffer.
func (u *Utterance) Samples() []int16 {
	n := 0
	for _, f := range u.Frames {
		n += f.Len()
	}
	out := make([]int16, 0, n)
	for _, f := range u.Frames {
		out = append(out, f.Samples()...)
	}
	return out
}
