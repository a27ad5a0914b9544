package audio

import (
	"sync"
	"time"
)

// DefaultPeakHoldDuration is how long a peak is held before it may decay.
const DefaultPeakHoldDuration = 3000 * time.Millisecond

// PeakHolder tracks peak-hold state for a VU meter.
// It is safe for concurrent use.
type PeakHolder struct {
	mu           sync.Mutex
	held         float64
	heldAt       time.Time
	holdDuration time.Duration
}

// NewPeakHolder creates a peak holder initialized to the minimum level.
func NewPeakHolder() *PeakHolder {
	return &PeakHolder{
		held:         MinDB,
		holdDuration: DefaultPeakHoldDuration,
	}
}

// Update records a new peak and returns the held value.
func (p *PeakHolder) Update(peak float64, now time.Time) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if peak >= p.held || now.Sub(p.heldAt) > p.holdDuration {
		p.held = peak
		p.heldAt = now
	}
	return p.held
}

// SetHoldDuration updates the peak hold duration.
func (p *PeakHolder) SetHoldDuration(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holdDuration = d
}

// Reset clears the held peak.
func (p *PeakHolder) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held = MinDB
	p.heldAt = time.Time{}
}
