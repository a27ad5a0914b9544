package vad

import "github.com/oszuidwest/zwfm-vadrecorder/internal/audio"

// energyThresholds maps aggressiveness to the minimum RMS level, in dBFS,
// a frame needs to count as speech.
var energyThresholds = [MaxAggressiveness + 1]float64{-50, -45, -40, -35}

// Energy is a deterministic RMS gate. A frame is speech when its RMS level
// reaches the threshold for the configured aggressiveness.
type Energy struct {
	threshold float64
}

// NewEnergy returns an energy classifier. Out-of-range levels are clamped.
func NewEnergy(aggressiveness int) *Energy {
	aggressiveness = min(max(aggressiveness, 0), MaxAggressiveness)
	return &Energy{threshold: energyThresholds[aggressiveness]}
}

// Threshold returns the speech threshold in dBFS.
func (e *Energy) Threshold() float64 {
	return e.threshold
}

// Classify implements Classifier.
func (e *Energy) Classify(f audio.Frame) (bool, error) {
	if err := ValidateFrame(f); err != nil {
		return false, err
	}
	return audio.RMSLevel(f.Samples()) >= e.threshold, nil
}
