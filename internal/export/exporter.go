// Package export turns finished utterances into delivered audio files:
// persist as WAV, encode to a lossy format, deliver to a sink, and remove
// every temporary file whatever the outcome.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/types"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/util"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/utterance"
)

// Export stage errors. Each is wrapped together with its cause so both can
// be matched with errors.Is.
var (
	ErrPersistFailed  = errors.New("persist failed")
	ErrEncodeFailed   = errors.New("encode failed")
	ErrDeliveryFailed = errors.New("delivery failed")
)

// Artifact is an encoded utterance ready for delivery.
type Artifact struct {
	UtteranceID string
	Path        string
	Filename    string
	ContentType string
	Size        int64
	StartedAt   time.Time
	Duration    time.Duration
	SampleRate  int
	Reason      utterance.CloseReason
}

// Sink delivers an artifact downstream. A nil error means the receiver
// accepted it.
type Sink interface {
	Deliver(ctx context.Context, a *Artifact) error
}

// Archiver stores a delivered artifact and returns where it was put.
type Archiver interface {
	Archive(ctx context.Context, a *Artifact) (string, error)
}

// Options configures an Exporter.
type Options struct {
	// TempDir holds intermediate files. Empty means os.TempDir().
	TempDir string
	// DeliveryTimeout bounds a single delivery attempt.
	DeliveryTimeout time.Duration
	// Archiver, when set, receives every delivered artifact.
	Archiver Archiver
}

// Result describes a completed export.
type Result struct {
	UtteranceID string
	Size        int64
	Duration    time.Duration
	Elapsed     time.Duration
	ArchivedAt  string
	ArchiveErr  error
	// Removed is the number of temporary files cleaned up.
	Removed int
}

// Exporter runs the persist, encode and deliver pipeline for one utterance
// at a time. It is safe for concurrent use.
type Exporter struct {
	enc  Encoder
	sink Sink
	opts Options
}

// New returns an exporter.
func New(enc Encoder, sink Sink, opts Options) *Exporter {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = types.DefaultDeliveryTimeout
	}
	return &Exporter{enc: enc, sink: sink, opts: opts}
}

// Export persists, encodes and delivers u. Files created along the way are
// removed before it returns, on success and on every failure path.
func (e *Exporter) Export(ctx context.Context, u *utterance.Utterance) (res *Result, err error) {
	start := time.Now()
	res = &Result{UtteranceID: u.ID, Duration: u.Duration()}

	var created []string
	defer func() {
		res.Removed = util.RemoveFiles(created...)
		res.Elapsed = time.Since(start)
	}()

	if u.Len() == 0 {
		return res, fmt.Errorf("%w: utterance %s has no frames", ErrPersistFailed, u.ID)
	}

	base := filepath.Join(e.opts.TempDir, "utterance-"+u.ID)

	wavPath := base + ".wav"
	created = append(created, wavPath)
	if err := WriteWAV(wavPath, u.Samples(), u.SampleRate); err != nil {
		return res, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	encPath := base + "." + e.enc.Extension()
	created = append(created, encPath)
	if err := e.enc.Encode(ctx, wavPath, encPath); err != nil {
		return res, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}

	info, err := os.Stat(encPath)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	res.Size = info.Size()

	artifact := &Artifact{
		UtteranceID: u.ID,
		Path:        encPath,
		Filename:    "audio." + e.enc.Extension(),
		ContentType: e.enc.ContentType(),
		Size:        info.Size(),
		StartedAt:   u.Start(),
		Duration:    res.Duration,
		SampleRate:  u.SampleRate,
		Reason:      u.Reason,
	}

	deliverCtx, cancel := context.WithTimeout(ctx, e.opts.DeliveryTimeout)
	defer cancel()
	if err := e.sink.Deliver(deliverCtx, artifact); err != nil {
		return res, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	if e.opts.Archiver != nil {
		loc, err := e.opts.Archiver.Archive(ctx, artifact)
		if err != nil {
			slog.Warn("failed to archive utterance", "id", u.ID, "error", err)
			res.ArchiveErr = err
		} else {
			res.ArchivedAt = loc
		}
	}

	return res, nil
}

// Stage names the pipeline step that produced err, for logs and metrics.
func Stage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPersistFailed):
		return "persist"
	case errors.Is(err, ErrEncodeFailed):
		return "encode"
	case errors.Is(err, ErrDeliveryFailed):
		return "deliver"
	default:
		return "unknown"
	}
}
