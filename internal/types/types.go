// Package types provides shared type definitions used across the recorder.
package types

import "time"

// SessionState represents the current state of the recorder session.
type SessionState string

const (
	// StateStopped indicates no capture session is active.
	StateStopped SessionState = "stopped"
	// StateStarting indicates the capture device is being opened.
	StateStarting SessionState = "starting"
	// StateRunning indicates frames are being captured and processed.
	StateRunning SessionState = "running"
	// StateStopping indicates the session is draining and shutting down.
	StateStopping SessionState = "stopping"
)

// Audio format constants.
const (
	// DefaultSampleRate is the capture sample rate in Hz.
	DefaultSampleRate = 16000
	// Channels is the number of capture channels (mono).
	Channels = 1
	// BytesPerSample is the sample width of signed 16-bit PCM.
	BytesPerSample = 2
	// DefaultFrameMs is the default frame duration in milliseconds.
	DefaultFrameMs = 30
)

// Timing constants.
const (
	// ShutdownTimeout is the duration to wait for graceful shutdown.
	ShutdownTimeout = 3000 * time.Millisecond
	// PollInterval is the interval for polling process state.
	PollInterval = 50 * time.Millisecond
	// StartupWindow is how long a capture device must stay up before Start reports success.
	StartupWindow = 500 * time.Millisecond
	// DefaultSilenceTimeout closes an utterance this long after the last speech frame.
	DefaultSilenceTimeout = 1000 * time.Millisecond
	// DefaultDeliveryTimeout bounds a single webhook delivery.
	DefaultDeliveryTimeout = 30000 * time.Millisecond
)

// Codec is a lossy audio codec used for exported utterances.
type Codec string

// Supported codecs.
const (
	CodecMP3 Codec = "mp3"
	CodecOGG Codec = "ogg"
)

// codecInfo holds the container details for a codec.
type codecInfo struct {
	ext         string
	contentType string
	args        []string
}

var codecs = map[Codec]codecInfo{
	CodecMP3: {"mp3", "audio/mpeg", []string{"-c:a", "libmp3lame", "-b:a", "64k", "-f", "mp3"}},
	CodecOGG: {"ogg", "audio/ogg", []string{"-c:a", "libopus", "-b:a", "32k", "-f", "ogg"}},
}

// Extension returns the file extension for the codec without the dot.
func (c Codec) Extension() string {
	return codecs[c.orDefault()].ext
}

// ContentType returns the MIME type for the codec.
func (c Codec) ContentType() string {
	return codecs[c.orDefault()].contentType
}

// FFmpegArgs returns the FFmpeg output arguments for the codec.
func (c Codec) FFmpegArgs() []string {
	return append([]string(nil), codecs[c.orDefault()].args...)
}

// IsValid reports whether c names a supported codec.
func (c Codec) IsValid() bool {
	_, ok := codecs[c]
	return ok
}

func (c Codec) orDefault() Codec {
	if c.IsValid() {
		return c
	}
	return CodecMP3
}

// AudioLevels is the current mono input level measurement for VU meters.
type AudioLevels struct {
	// RMS is the RMS level in dB.
	RMS float64 `json:"rms"`
	// Peak is the held peak level in dB.
	Peak float64 `json:"peak"`
	// Clip is how many samples clipped during the last metering window.
	Clip int `json:"clip,omitzero"`
	// Speech reports whether the most recent frame was classified as speech.
	Speech bool `json:"speech"`
}

// SessionStatus is a point-in-time view of the recorder session.
type SessionStatus struct {
	State         SessionState `json:"state"`                    // Current session state
	Uptime        string       `json:"uptime,omitempty"`         // Time since the session started
	LastError     string       `json:"last_error,omitempty"`     // Most recent device or export error
	Recording     bool         `json:"recording"`                // An utterance is in progress
	QueueDepth    int          `json:"queue_depth"`              // Frames waiting for classification
	QueueHighMark int          `json:"queue_high_water"`         // Deepest the frame queue has been
	PendingExport int          `json:"pending_exports"`          // Utterances waiting for export
	Utterances    int64        `json:"utterances"`               // Utterances closed this session
	Exported      int64        `json:"exported"`                 // Utterances delivered this session
	Failed        int64        `json:"failed"`                   // Exports that failed this session
	LastUtterance string       `json:"last_utterance,omitempty"` // ID of the last delivered utterance
}
