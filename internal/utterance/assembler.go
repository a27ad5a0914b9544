package utterance

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/audio"
)

// State is the assembler state.
type State int

const (
	// Idle means no utterance is in progress.
	Idle State = iota
	// Recording means an utterance is accumulating frames.
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// Assembler is the speech/silence state machine. Silence is discarded while
// Idle. Once speech opens an utterance every frame is kept until a
// non-speech frame arrives more than the silence timeout after the last
// speech frame; that frame is dropped and the trailing silence after the
// last speech frame is trimmed. It is safe for concurrent use.
type Assembler struct {
	timeout time.Duration
	newID   func() string

	mu            sync.Mutex
	state         State
	current       *Utterance
	lastSpeechIdx int
	opened        int64
	closed        int64
}

// NewAssembler returns an idle assembler.
func NewAssembler(silenceTimeout time.Duration) *Assembler {
	return &Assembler{
		timeout: silenceTimeout,
		newID:   uuid.NewString,
	}
}

// Push feeds one frame and returns the utterance it closed, if any.
func (a *Assembler) Push(f audio.ClassifiedFrame) *Utterance {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == Idle {
		if f.IsSpeech {
			a.openLocked(f)
		}
		return nil
	}

	if f.IsSpeech {
		a.appendLocked(f)
		return nil
	}

	if f.Timestamp.Sub(a.current.LastSpeech) > a.timeout {
		u := a.current
		u.Frames = u.Frames[:a.lastSpeechIdx+1]
		return a.closeLocked(ReasonTimeout)
	}

	a.appendLocked(f)
	return nil
}

// Flush force-closes the utterance in progress and returns it with every
// accumulated frame. It returns nil when idle or when nothing was captured.
func (a *Assembler) Flush() *Utterance {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == Idle {
		return nil
	}
	u := a.closeLocked(ReasonForced)
	if u.Len() == 0 {
		return nil
	}
	return u
}

// State returns the current state.
func (a *Assembler) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Transitions returns how many utterances have been opened and closed.
// The two are equal whenever the assembler is idle.
func (a *Assembler) Transitions() (opened, closed int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opened, a.closed
}

func (a *Assembler) openLocked(f audio.ClassifiedFrame) {
	a.state = Recording
	a.opened++
	a.current = &Utterance{
		ID:          a.newID(),
		SampleRate:  f.SampleRate,
		FirstSpeech: f.Timestamp,
	}
	a.appendLocked(f)
}

func (a *Assembler) appendLocked(f audio.ClassifiedFrame) {
	a.current.Frames = append(a.current.Frames, f.Frame)
	if f.IsSpeech {
		a.current.LastSpeech = f.Timestamp
		a.lastSpeechIdx = len(a.current.Frames) - 1
	}
}

func (a *Assembler) closeLocked(reason CloseReason) *Utterance {
	u := a.current
	u.Reason = reason
	a.current = nil
	a.lastSpeechIdx = 0
	a.state = Idle
	a.closed++
	return u
}
