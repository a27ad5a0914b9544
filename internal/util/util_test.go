package util

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/types"
)

func TestWrapError(t *testing.T) {
	if WrapError("anything", nil) != nil {
		t.Fatal("WrapError(nil) should be nil")
	}

	base := errors.New("boom")
	err := WrapError("open device", base)
	if !errors.Is(err, base) {
		t.Fatalf("wrapped error lost its cause: %v", err)
	}
	if err.Error() != "failed to open device: boom" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestExtractLastError(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   string
	}{
		{"empty", "", ""},
		{"single line", "no such device", "no such device"},
		{"trailing blank lines", "first\nsecond\n\n  \n", "second"},
		{"truncated", strings.Repeat("x", 300), strings.Repeat("x", 200) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractLastError(tt.stderr); got != tt.want {
				t.Errorf("ExtractLastError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckPathWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	if err := CheckPathWritable(dir); err != nil {
		t.Fatalf("CheckPathWritable: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
}

func TestRemoveFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.wav")
	if err := os.WriteFile(a, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if n := RemoveFiles(a, filepath.Join(dir, "missing.mp3"), ""); n != 1 {
		t.Errorf("RemoveFiles removed %d files, want 1", n)
	}
	if _, err := os.Stat(a); !os.IsNotExist(err) {
		t.Errorf("file still exists: %v", err)
	}
}

func TestIsConfigured(t *testing.T) {
	if !IsConfigured("a", "b") {
		t.Error("all set should be configured")
	}
	if IsConfigured("a", "") {
		t.Error("empty value should not be configured")
	}
}

func TestValidateStruct(t *testing.T) {
	type inner struct {
		Level int `json:"level" validate:"gte=0,lte=3"`
	}
	type outer struct {
		URL   string `json:"url" validate:"required,url"`
		Inner inner  `json:"inner"`
	}

	if err := ValidateStruct(&outer{URL: "http://example.com", Inner: inner{Level: 2}}); err != nil {
		t.Fatalf("valid struct rejected: %v", err)
	}

	err := ValidateStruct(&outer{Inner: inner{Level: 7}})
	var verr *types.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %T, want *types.ValidationError", err)
	}
	fields := map[string]string{}
	for _, fe := range verr.Errors {
		fields[fe.Field] = fe.Message
	}
	if fields["url"] != "is required" {
		t.Errorf("url error = %q", fields["url"])
	}
	if fields["inner.level"] != "must be less than or equal to 3" {
		t.Errorf("inner.level error = %q", fields["inner.level"])
	}
}
