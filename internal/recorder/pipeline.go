package recorder

import (
	"context"
	"fmt"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/audio"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/config"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/export"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/sink"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/types"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/util"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/utterance"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/vad"
)

// Exporter hands a finished utterance downstream.
type Exporter interface {
	Export(ctx context.Context, u *utterance.Utterance) (*export.Result, error)
}

// Factories builds the per-session collaborators. Zero fields fall back to
// the production implementations.
type Factories struct {
	Source     func(cfg audio.SourceConfig) (audio.Source, error)
	Classifier func(backend string, aggressiveness int) (vad.Classifier, error)
	Exporter   func(s *config.Settings) (Exporter, error)
}

func (f *Factories) withDefaults() Factories {
	out := *f
	if out.Source == nil {
		out.Source = audio.NewSource
	}
	if out.Classifier == nil {
		out.Classifier = vad.New
	}
	if out.Exporter == nil {
		out.Exporter = NewExporter
	}
	return out
}

// NewExporter wires the FFmpeg encoder, the webhook sink and, when
// configured, the S3 archive into an export pipeline.
func NewExporter(s *config.Settings) (Exporter, error) {
	ffmpegPath := util.ResolveFFmpegPath(s.Export.FFmpegPath)
	if ffmpegPath == "" {
		return nil, ffmpeg.ErrNotFound
	}

	enc := export.NewFFmpegEncoder(ffmpegPath, types.Codec(s.Export.Codec), s.Export.VerifyTolerance)
	hook := sink.NewWebhook(s.Webhook.URL, sink.WebhookOptions{
		FieldName: s.Webhook.FieldName,
		Timeout:   s.DeliveryTimeout(),
		Headers:   s.Webhook.Headers,
	})

	opts := export.Options{
		TempDir:         s.Export.TempDir,
		DeliveryTimeout: s.DeliveryTimeout(),
	}
	if s.HasArchive() {
		archiver, err := sink.NewS3Archiver(sink.S3Config{
			Endpoint:        s.Archive.Endpoint,
			Region:          s.Archive.Region,
			Bucket:          s.Archive.Bucket,
			Prefix:          s.Archive.Prefix,
			AccessKeyID:     s.Archive.AccessKeyID,
			SecretAccessKey: s.Archive.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		opts.Archiver = archiver
	}

	if opts.TempDir != "" {
		if err := util.CheckPathWritable(opts.TempDir); err != nil {
			return nil, err
		}
	}

	return export.New(enc, hook, opts), nil
}
