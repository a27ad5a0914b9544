package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/audio"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/utterance"
)

// copyEncoder "encodes" by copying the WAV file.
type copyEncoder struct {
	err error
}

func (c *copyEncoder) Encode(_ context.Context, src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return err
	}
	return c.err
}

func (c *copyEncoder) Extension() string   { return "mp3" }
func (c *copyEncoder) ContentType() string { return "audio/mpeg" }

type recordingSink struct {
	mu        sync.Mutex
	artifacts []Artifact
	existed   []bool
	err       error
}

func (s *recordingSink) Deliver(_ context.Context, a *Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, statErr := os.Stat(a.Path)
	s.artifacts = append(s.artifacts, *a)
	s.existed = append(s.existed, statErr == nil)
	return s.err
}

type fakeArchiver struct {
	err error
	got []string
}

func (f *fakeArchiver) Archive(_ context.Context, a *Artifact) (string, error) {
	f.got = append(f.got, a.UtteranceID)
	if f.err != nil {
		return "", f.err
	}
	return "s3://bucket/" + a.UtteranceID, nil
}

func testUtterance(frames int) *utterance.Utterance {
	u := &utterance.Utterance{ID: "test-utt", SampleRate: 16000, Reason: utterance.ReasonTimeout}
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := range frames {
		samples := make([]int16, 480)
		for j := range samples {
			samples[j] = int16((i*480 + j) % 2000)
		}
		u.Frames = append(u.Frames, audio.NewFrame(uint64(i), start.Add(time.Duration(i)*30*time.Millisecond), 16000, samples))
	}
	return u
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		t.Errorf("temporary file left behind: %s", e.Name())
	}
}

func TestExportDelivers(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	arch := &fakeArchiver{}
	e := New(&copyEncoder{}, sink, Options{TempDir: dir, Archiver: arch})

	res, err := e.Export(context.Background(), testUtterance(10))
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if len(sink.artifacts) != 1 {
		t.Fatalf("sink received %d artifacts, want 1", len(sink.artifacts))
	}
	a := sink.artifacts[0]
	if !sink.existed[0] {
		t.Error("artifact file did not exist during delivery")
	}
	if a.Filename != "audio.mp3" || a.ContentType != "audio/mpeg" {
		t.Errorf("artifact = %q %q", a.Filename, a.ContentType)
	}
	if a.Duration != 300*time.Millisecond || a.SampleRate != 16000 {
		t.Errorf("artifact duration %s rate %d", a.Duration, a.SampleRate)
	}
	if a.Size <= 44 || res.Size != a.Size {
		t.Errorf("artifact size %d, result size %d", a.Size, res.Size)
	}
	if res.ArchivedAt != "s3://bucket/test-utt" {
		t.Errorf("ArchivedAt = %q", res.ArchivedAt)
	}
	if res.Removed != 2 {
		t.Errorf("Removed = %d, want 2", res.Removed)
	}
	assertEmptyDir(t, dir)
}

func TestExportCleansUpOnEveryPath(t *testing.T) {
	encodeErr := errors.New("lame exploded")
	sinkErr := errors.New("connection refused")

	tests := []struct {
		name      string
		frames    int
		enc       *copyEncoder
		sinkErr   error
		wantErr   error
		wantCause error
	}{
		{"empty utterance", 0, &copyEncoder{}, nil, ErrPersistFailed, nil},
		{"encode failure", 5, &copyEncoder{err: encodeErr}, nil, ErrEncodeFailed, encodeErr},
		{"delivery failure", 5, &copyEncoder{}, sinkErr, ErrDeliveryFailed, sinkErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			e := New(tt.enc, &recordingSink{err: tt.sinkErr}, Options{TempDir: dir})

			_, err := e.Export(context.Background(), testUtterance(tt.frames))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Export = %v, want %v", err, tt.wantErr)
			}
			if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
				t.Errorf("cause lost: %v", err)
			}
			assertEmptyDir(t, dir)
		})
	}
}

func TestExportPersistFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does", "not", "exist")
	sink := &recordingSink{}
	e := New(&copyEncoder{}, sink, Options{TempDir: missing})

	_, err := e.Export(context.Background(), testUtterance(3))
	if !errors.Is(err, ErrPersistFailed) {
		t.Fatalf("Export = %v, want ErrPersistFailed", err)
	}
	if Stage(err) != "persist" {
		t.Errorf("Stage = %q", Stage(err))
	}
	if len(sink.artifacts) != 0 {
		t.Error("sink called after persist failure")
	}
}

func TestExportArchiveFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	arch := &fakeArchiver{err: errors.New("bucket gone")}
	e := New(&copyEncoder{}, &recordingSink{}, Options{TempDir: dir, Archiver: arch})

	res, err := e.Export(context.Background(), testUtterance(2))
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.ArchiveErr == nil {
		t.Error("archive error not reported in result")
	}
	assertEmptyDir(t, dir)
}

func TestExportSkipsArchiveOnDeliveryFailure(t *testing.T) {
	arch := &fakeArchiver{}
	e := New(&copyEncoder{}, &recordingSink{err: errors.New("503")}, Options{TempDir: t.TempDir(), Archiver: arch})

	if _, err := e.Export(context.Background(), testUtterance(2)); err == nil {
		t.Fatal("expected delivery error")
	}
	if len(arch.got) != 0 {
		t.Error("archiver called for undelivered artifact")
	}
}

func TestStage(t *testing.T) {
	tests := map[error]string{
		nil:                            "",
		ErrEncodeFailed:                "encode",
		errors.New("something"):        "unknown",
		errors.Join(ErrDeliveryFailed): "deliver",
	}
	for err, want := range tests {
		if got := Stage(err); got != want {
			t.Errorf("Stage(%v) = %q, want %q", err, got, want)
		}
	}
}
