package audio

import (
	"math"
	"testing"
	"time"
)

func sine(n int, amplitude float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * math.Sin(2*math.Pi*float64(i)/32))
	}
	return out
}

func TestRMSLevel(t *testing.T) {
	if got := RMSLevel(make([]int16, 480)); got != MinDB {
		t.Errorf("silence RMS = %.1f, want %.1f", got, MinDB)
	}
	if got := RMSLevel(nil); got != MinDB {
		t.Errorf("empty RMS = %.1f, want %.1f", got, MinDB)
	}

	// A full-scale sine sits 3 dB below full scale.
	got := RMSLevel(sine(3200, 32767))
	if math.Abs(got-(-3.01)) > 0.1 {
		t.Errorf("full-scale sine RMS = %.2f dB, want about -3.01", got)
	}
}

func TestCalculateLevelsClip(t *testing.T) {
	var d LevelData
	d.Add([]int16{32767, -32768, 100, 0})
	l := CalculateLevels(&d)
	if l.Clip != 2 {
		t.Errorf("Clip = %d, want 2", l.Clip)
	}
	if l.Peak != 0 {
		t.Errorf("Peak = %.2f, want 0 dB", l.Peak)
	}

	d.Reset()
	if d.SampleCount != 0 || d.Peak != 0 {
		t.Errorf("Reset left data behind: %+v", d)
	}
}

func TestMeterPublishesPerWindow(t *testing.T) {
	m := NewMeter(960)
	loud := NewFrame(0, time.Unix(0, 0), 16000, sine(480, 16000))

	m.Process(ClassifiedFrame{Frame: loud, IsSpeech: true})
	if got := m.Levels(); got.RMS != MinDB || !got.Speech {
		t.Errorf("after half a window: %+v", got)
	}

	m.Process(ClassifiedFrame{Frame: loud, IsSpeech: true})
	if got := m.Levels(); got.RMS <= MinDB || got.Peak <= MinDB {
		t.Errorf("after full window levels not published: %+v", got)
	}

	m.Reset()
	if got := m.Levels(); got != SilentLevels() {
		t.Errorf("after Reset = %+v", got)
	}
}

func TestPeakHolder(t *testing.T) {
	p := NewPeakHolder()
	p.SetHoldDuration(time.Second)
	t0 := time.Unix(0, 0)

	if got := p.Update(-10, t0); got != -10 {
		t.Errorf("first update = %.1f", got)
	}
	if got := p.Update(-30, t0.Add(500*time.Millisecond)); got != -10 {
		t.Errorf("within hold = %.1f, want -10", got)
	}
	if got := p.Update(-30, t0.Add(1500*time.Millisecond)); got != -30 {
		t.Errorf("after hold = %.1f, want -30", got)
	}
}
