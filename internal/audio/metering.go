// Package audio provides capture sources, frame types, device discovery and
// level metering for mono 16-bit audio.
package audio

import (
	"math"
	"sync"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/types"
)

const (
	// MinDB is the minimum dB level (silence).
	MinDB = -60.0
	// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
	MaxSampleValue = 32768.0
	// ClipThreshold is slightly below max to catch near-clips.
	ClipThreshold int16 = 32760
)

// LevelData holds raw sample accumulator data for level calculation.
type LevelData struct {
	SumSquares  float64
	Peak        float64
	ClipCount   int
	SampleCount int
}

// Add accumulates samples.
func (d *LevelData) Add(samples []int16) {
	for _, s := range samples {
		v := float64(s)
		d.SumSquares += v * v
		if a := math.Abs(v); a > d.Peak {
			d.Peak = a
		}
		if s >= ClipThreshold || s <= -ClipThreshold {
			d.ClipCount++
		}
	}
	d.SampleCount += len(samples)
}

// Reset resets accumulators for the next measurement period.
func (d *LevelData) Reset() {
	*d = LevelData{}
}

// Levels contains calculated audio levels in dB.
type Levels struct {
	RMS  float64
	Peak float64
	Clip int
}

// CalculateLevels computes RMS and peak levels from accumulated sample data.
func CalculateLevels(data *LevelData) Levels {
	if data.SampleCount == 0 {
		return Levels{RMS: MinDB, Peak: MinDB}
	}

	rms := math.Sqrt(data.SumSquares / float64(data.SampleCount))

	return Levels{
		RMS:  max(toDB(rms), MinDB),
		Peak: max(toDB(data.Peak), MinDB),
		Clip: data.ClipCount,
	}
}

// RMSLevel returns the RMS level of samples in dBFS, floored at MinDB.
func RMSLevel(samples []int16) float64 {
	var d LevelData
	d.Add(samples)
	return CalculateLevels(&d).RMS
}

func toDB(v float64) float64 {
	// Reference is full scale for 16-bit audio.
	return 20 * math.Log10(v/MaxSampleValue)
}

// Meter turns a stream of classified frames into VU meter readings,
// publishing a new reading every window of samples. It is safe for
// concurrent use.
type Meter struct {
	window int
	peak   *PeakHolder

	mu     sync.Mutex
	data   LevelData
	levels types.AudioLevels
}

// NewMeter returns a meter that publishes every window samples.
func NewMeter(window int) *Meter {
	m := &Meter{
		window: max(window, 1),
		peak:   NewPeakHolder(),
	}
	m.Reset()
	return m
}

// Process accumulates a frame.
func (m *Meter) Process(f ClassifiedFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data.Add(f.Samples())
	m.levels.Speech = f.IsSpeech
	if m.data.SampleCount < m.window {
		return
	}

	l := CalculateLevels(&m.data)
	m.data.Reset()
	m.levels.RMS = l.RMS
	m.levels.Peak = m.peak.Update(l.Peak, f.Timestamp)
	m.levels.Clip = l.Clip
}

// Levels returns the most recent reading.
func (m *Meter) Levels() types.AudioLevels {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels
}

// Reset returns the meter to silence.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.Reset()
	m.peak.Reset()
	m.levels = types.AudioLevels{RMS: MinDB, Peak: MinDB}
}

// SilentLevels is the reading reported while no session is running.
func SilentLevels() types.AudioLevels {
	return types.AudioLevels{RMS: MinDB, Peak: MinDB}
}
