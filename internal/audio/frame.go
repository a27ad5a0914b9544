package audio

import (
	"encoding/binary"
	"time"
)

// Frame is a fixed-duration block of mono signed 16-bit samples. Its sample
// slice is owned by the frame and must not be modified.
type Frame struct {
	// Seq is the zero-based position of the frame in the capture stream.
	Seq uint64
	// Timestamp is the device-clock time of the first sample.
	Timestamp time.Time
	// SampleRate is the sample rate in Hz.
	SampleRate int

	samples []int16
}

// NewFrame returns a frame holding a copy of samples.
func NewFrame(seq uint64, ts time.Time, sampleRate int, samples []int16) Frame {
	return Frame{
		Seq:        seq,
		Timestamp:  ts,
		SampleRate: sampleRate,
		samples:    append([]int16(nil), samples...),
	}
}

// FrameFromBytes decodes little-endian s16 PCM into a new frame.
func FrameFromBytes(seq uint64, ts time.Time, sampleRate int, pcm []byte) Frame {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:])) //nolint:gosec // Reinterpreting PCM bits
	}
	return Frame{Seq: seq, Timestamp: ts, SampleRate: sampleRate, samples: samples}
}

// Samples returns the frame's samples. The slice must not be modified.
func (f Frame) Samples() []int16 {
	return f.samples
}

// Len returns the number of samples in the frame.
func (f Frame) Len() int {
	return len(f.samples)
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.samples)) * time.Second / time.Duration(f.SampleRate)
}

// End returns the timestamp just past the last sample.
func (f Frame) End() time.Time {
	return f.Timestamp.Add(f.Duration())
}

// Bytes encodes the samples as little-endian s16 PCM.
func (f Frame) Bytes() []byte {
	out := make([]byte, len(f.samples)*2)
	for i, s := range f.samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s)) //nolint:gosec // Reinterpreting PCM bits
	}
	return out
}

// ClassifiedFrame is a frame with its speech decision attached.
type ClassifiedFrame struct {
	Frame
	IsSpeech bool
}

// FrameSamples returns the number of samples in a frame of the given duration.
func FrameSamples(sampleRate int, frameDuration time.Duration) int {
	return int(int64(sampleRate) * int64(frameDuration) / int64(time.Second))
}
