// Package transcribe turns audio files into timed text segments through an
// external speech recognition engine.
package transcribe

import (
	"context"
	"strings"
)

// Segment is a span of recognized speech. Start and End are seconds from
// the beginning of the file.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the engine output for one file. Segments are in time order.
type Result struct {
	Language            string    `json:"language"`
	LanguageProbability float64   `json:"language_probability"`
	Segments            []Segment `json:"segments"`
}

// Text joins the segment texts with single spaces.
func (r *Result) Text() string {
	parts := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Engine transcribes an audio file.
type Engine interface {
	Transcribe(ctx context.Context, path string) (*Result, error)
}
