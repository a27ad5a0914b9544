package audio

import (
	"testing"
	"time"
)

func TestNewFrameCopiesSamples(t *testing.T) {
	buf := []int16{1, 2, 3}
	f := NewFrame(0, time.Time{}, 16000, buf)
	buf[0] = 99

	if got := f.Samples()[0]; got != 1 {
		t.Errorf("frame shares caller buffer: Samples()[0] = %d", got)
	}
}

func TestFrameBytesRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	f := NewFrame(3, time.Unix(10, 0), 16000, samples)

	back := FrameFromBytes(f.Seq, f.Timestamp, f.SampleRate, f.Bytes())
	if back.Len() != len(samples) {
		t.Fatalf("Len() = %d, want %d", back.Len(), len(samples))
	}
	for i, s := range samples {
		if back.Samples()[i] != s {
			t.Errorf("sample %d = %d, want %d", i, back.Samples()[i], s)
		}
	}
}

func TestFrameDuration(t *testing.T) {
	tests := []struct {
		rate    int
		samples int
		want    time.Duration
	}{
		{16000, 480, 30 * time.Millisecond},
		{16000, 160, 10 * time.Millisecond},
		{8000, 160, 20 * time.Millisecond},
		{48000, 1440, 30 * time.Millisecond},
		{0, 100, 0},
	}
	for _, tt := range tests {
		f := NewFrame(0, time.Time{}, tt.rate, make([]int16, tt.samples))
		if got := f.Duration(); got != tt.want {
			t.Errorf("Duration(%d samples @ %d Hz) = %s, want %s", tt.samples, tt.rate, got, tt.want)
		}
	}
}

func TestFrameSamples(t *testing.T) {
	if got := FrameSamples(16000, 30*time.Millisecond); got != 480 {
		t.Errorf("FrameSamples(16000, 30ms) = %d, want 480", got)
	}
	if got := FrameSamples(48000, 10*time.Millisecond); got != 480 {
		t.Errorf("FrameSamples(48000, 10ms) = %d, want 480", got)
	}
}

func TestFrameClock(t *testing.T) {
	start := time.Unix(100, 0)
	c := frameClock{start: start, frameDur: 30 * time.Millisecond}
	if got := c.at(10); !got.Equal(start.Add(300 * time.Millisecond)) {
		t.Errorf("at(10) = %v", got)
	}
}

func TestNewSourceRejectsBadFormat(t *testing.T) {
	if _, err := NewSource(SourceConfig{SampleRate: 16000}); err == nil {
		t.Error("expected error for zero frame duration")
	}
	if _, err := NewSource(SourceConfig{Backend: "tape", SampleRate: 16000, FrameDuration: 30 * time.Millisecond}); err == nil {
		t.Error("expected error for unknown backend")
	}
	src, err := NewSource(SourceConfig{SampleRate: 16000, FrameDuration: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if _, ok := src.(*ProcessSource); !ok {
		t.Errorf("default backend = %T, want *ProcessSource", src)
	}
}

func TestProcessSourceStopBeforeStart(t *testing.T) {
	src := NewProcessSource(SourceConfig{SampleRate: 16000, FrameDuration: 30 * time.Millisecond})
	if err := src.Stop(); err != nil {
		t.Errorf("Stop before Start = %v", err)
	}
	if err := src.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}
