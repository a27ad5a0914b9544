package export

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/types"
)

// wavFormatPCM is the RIFF format tag for integer PCM.
const wavFormatPCM = 1

// WriteWAV writes mono 16-bit PCM samples to path as a WAV file.
func WriteWAV(path string, samples []int16, sampleRate int) (err error) {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(f, sampleRate, types.BytesPerSample*8, types.Channels, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: types.Channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: types.BytesPerSample * 8,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize header: %w", err)
	}
	return nil
}

// ReadWAV reads a mono 16-bit WAV file.
func ReadWAV(path string) (samples []int16, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close() //nolint:errcheck // Read-only

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, 0, errors.New("not a valid wav file")
	}
	if d.NumChans != types.Channels || d.BitDepth != types.BytesPerSample*8 {
		return nil, 0, fmt.Errorf("unsupported wav format: %d channels, %d bits", d.NumChans, d.BitDepth)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode pcm: %w", err)
	}
	samples = make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v) //nolint:gosec // 16-bit source
	}
	return samples, int(d.SampleRate), nil
}

// WAVDuration returns the playback duration of a WAV file.
func WAVDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close() //nolint:errcheck // Read-only

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return 0, errors.New("not a valid wav file")
	}
	if err := d.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("find pcm chunk: %w", err)
	}
	frameSize := int64(d.NumChans) * int64(d.BitDepth) / 8
	if frameSize == 0 || d.SampleRate == 0 {
		return 0, fmt.Errorf("unsupported wav format: %d channels, %d bits, %d Hz", d.NumChans, d.BitDepth, d.SampleRate)
	}
	// The RIFF chunk size includes the header, so count the PCM payload only.
	frames := d.PCMLen() / frameSize
	return time.Duration(frames) * time.Second / time.Duration(d.SampleRate), nil
}
