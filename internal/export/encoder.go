package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/faiface/beep/mp3"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/types"
)

// minVerifySlack absorbs MP3 encoder delay and frame padding, which
// dominate the error on very short clips.
const minVerifySlack = 150 * time.Millisecond

// Encoder converts a persisted WAV file into the delivery format.
type Encoder interface {
	Encode(ctx context.Context, src, dst string) error
	Extension() string
	ContentType() string
}

// FFmpegEncoder encodes with an FFmpeg subprocess. For MP3 output the
// result is decoded again and its duration compared with the source.
type FFmpegEncoder struct {
	ffmpegPath string
	codec      types.Codec
	tolerance  float64
}

// NewFFmpegEncoder returns an encoder for codec. A tolerance of zero
// disables output verification; 0.05 allows a 5% duration mismatch.
func NewFFmpegEncoder(ffmpegPath string, codec types.Codec, tolerance float64) *FFmpegEncoder {
	return &FFmpegEncoder{ffmpegPath: ffmpegPath, codec: codec, tolerance: tolerance}
}

// Extension implements Encoder.
func (e *FFmpegEncoder) Extension() string { return e.codec.Extension() }

// ContentType implements Encoder.
func (e *FFmpegEncoder) ContentType() string { return e.codec.ContentType() }

// Encode implements Encoder.
func (e *FFmpegEncoder) Encode(ctx context.Context, src, dst string) error {
	if err := ffmpeg.Run(ctx, e.ffmpegPath, ffmpeg.TranscodeArgs(src, dst, e.codec)); err != nil {
		return err
	}

	info, err := os.Stat(dst)
	if err != nil {
		return fmt.Errorf("stat output: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("encoder produced an empty file")
	}

	if e.codec == types.CodecMP3 && e.tolerance > 0 {
		return verifyDuration(src, dst, e.tolerance)
	}
	return nil
}

// verifyDuration checks that the MP3 at dst plays for about as long as the WAV at src.
func verifyDuration(src, dst string, tolerance float64) error {
	want, err := WAVDuration(src)
	if err != nil {
		return fmt.Errorf("read source duration: %w", err)
	}
	got, err := MP3Duration(dst)
	if err != nil {
		return fmt.Errorf("decode output: %w", err)
	}

	slack := max(time.Duration(float64(want)*tolerance), minVerifySlack)
	if diff := (got - want).Abs(); diff > slack {
		return fmt.Errorf("encoded duration %s differs from source %s by more than %s", got, want, slack)
	}
	return nil
}

// MP3Duration decodes an MP3 file and returns its playback duration.
func MP3Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	streamer, format, err := mp3.Decode(f)
	if err != nil {
		_ = f.Close()
		return 0, err
	}
	defer streamer.Close() //nolint:errcheck // Closes f

	return format.SampleRate.D(streamer.Len()), nil
}
