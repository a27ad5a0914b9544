// Package ffmpeg runs FFmpeg as a one-shot transcoder.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/types"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/util"
)

// ErrNotFound is returned when no FFmpeg binary is configured.
var ErrNotFound = errors.New("ffmpeg not found")

// TranscodeArgs returns arguments that convert src into dst with the given codec.
func TranscodeArgs(src, dst string, codec types.Codec) []string {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", src,
		"-vn",
		"-ac", "1",
	}
	args = append(args, codec.FFmpegArgs()...)
	return append(args, dst)
}

// Run executes FFmpeg and waits for it to exit. On failure the last line of
// FFmpeg's stderr is included in the error.
func Run(ctx context.Context, ffmpegPath string, args []string) error {
	if ffmpegPath == "" {
		return ErrNotFound
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	cmd.WaitDelay = types.ShutdownTimeout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
		}
		if detail := util.ExtractLastError(stderr.String()); detail != "" {
			return fmt.Errorf("ffmpeg: %s: %w", detail, err)
		}
		return util.WrapError("run ffmpeg", err)
	}
	return nil
}
