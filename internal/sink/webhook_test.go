package sink

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/export"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/utterance"
)

func testArtifact(t *testing.T, content string) *export.Artifact {
	t.Helper()
	p := filepath.Join(t.TempDir(), "utterance-abc.mp3")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return &export.Artifact{
		UtteranceID: "abc",
		Path:        p,
		Filename:    "audio.mp3",
		ContentType: "audio/mpeg",
		Size:        int64(len(content)),
		StartedAt:   time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Duration:    1500 * time.Millisecond,
		SampleRate:  16000,
		Reason:      utterance.ReasonTimeout,
	}
}

func TestWebhookDeliverMultipart(t *testing.T) {
	type received struct {
		fields      map[string]string
		filename    string
		contentType string
		data        string
		apiKey      string
	}
	got := make(chan received, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		rec := received{fields: map[string]string{}, apiKey: r.Header.Get("X-Api-Key")}
		for k, v := range r.MultipartForm.Value {
			rec.fields[k] = v[0]
		}
		file, hdr, err := r.FormFile("data")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		rec.filename = hdr.Filename
		rec.contentType = hdr.Header.Get("Content-Type")
		rec.data = string(data)
		got <- rec
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WebhookOptions{Headers: map[string]string{"X-Api-Key": "secret"}})
	if err := wh.Deliver(context.Background(), testArtifact(t, "ID3fake")); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	rec := <-got
	if rec.filename != "audio.mp3" || rec.contentType != "audio/mpeg" || rec.data != "ID3fake" {
		t.Errorf("file part = %q %q %q", rec.filename, rec.contentType, rec.data)
	}
	want := map[string]string{
		"utterance_id": "abc",
		"started_at":   "2026-03-01T09:30:00Z",
		"duration_ms":  "1500",
		"sample_rate":  "16000",
		"close_reason": "timeout",
	}
	for k, v := range want {
		if rec.fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, rec.fields[k], v)
		}
	}
	if rec.apiKey != "secret" {
		t.Errorf("custom header not sent")
	}
}

func TestWebhookCustomFieldName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("audio"); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WebhookOptions{FieldName: "audio"})
	if err := wh.Deliver(context.Background(), testArtifact(t, "x")); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
}

func TestWebhookStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, WebhookOptions{}).Deliver(context.Background(), testArtifact(t, "x"))
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Deliver = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusServiceUnavailable || se.Body != "queue full" {
		t.Errorf("StatusError = %+v", se)
	}
	if !strings.Contains(se.Error(), "503") {
		t.Errorf("Error() = %q", se.Error())
	}
}

func TestWebhookContextTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := NewWebhook(srv.URL, WebhookOptions{}).Deliver(ctx, testArtifact(t, "x"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Deliver = %v, want deadline exceeded", err)
	}
}

func TestWebhookNotConfigured(t *testing.T) {
	if err := NewWebhook("", WebhookOptions{}).Deliver(context.Background(), testArtifact(t, "x")); err == nil {
		t.Error("expected error for empty URL")
	}
}

func TestWebhookMissingFile(t *testing.T) {
	a := testArtifact(t, "x")
	a.Path = filepath.Join(t.TempDir(), "gone.mp3")
	if err := NewWebhook("http://127.0.0.1:1", WebhookOptions{}).Deliver(context.Background(), a); err == nil {
		t.Error("expected error for missing artifact")
	}
}
