// Package sink delivers exported utterances to their destinations.
package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/export"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/util"
)

// DefaultFieldName is the multipart field that carries the audio file.
const DefaultFieldName = "data"

// maxErrorBody is how much of a rejected response body is kept.
const maxErrorBody = 4096

// StatusError reports a non-2xx response from the receiver.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
}

// WebhookOptions configures a Webhook.
type WebhookOptions struct {
	// FieldName is the multipart field for the file. Defaults to "data".
	FieldName string
	// Timeout bounds each request. Zero leaves the caller's context in charge.
	Timeout time.Duration
	// Headers are added to every request.
	Headers map[string]string
}

// Webhook posts each artifact as multipart/form-data: one binary part plus
// descriptive text fields.
type Webhook struct {
	url    string
	opts   WebhookOptions
	client *http.Client
}

// NewWebhook returns a webhook sink for url.
func NewWebhook(url string, opts WebhookOptions) *Webhook {
	if opts.FieldName == "" {
		opts.FieldName = DefaultFieldName
	}
	return &Webhook{
		url:    url,
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

// Deliver implements export.Sink.
func (w *Webhook) Deliver(ctx context.Context, a *export.Artifact) error {
	if !util.IsConfigured(w.url) {
		return fmt.Errorf("webhook URL not configured")
	}

	body, contentType, err := w.buildForm(a)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, body)
	if err != nil {
		return util.WrapError("create webhook request", err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range w.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// buildForm encodes the artifact and its metadata as a multipart body.
func (w *Webhook) buildForm(a *export.Artifact) (io.Reader, string, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, "", util.WrapError("open artifact", err)
	}
	defer util.SafeCloseFunc(f, "artifact")()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"utterance_id", a.UtteranceID},
		{"started_at", a.StartedAt.UTC().Format(time.RFC3339Nano)},
		{"duration_ms", strconv.FormatInt(a.Duration.Milliseconds(), 10)},
		{"sample_rate", strconv.Itoa(a.SampleRate)},
		{"close_reason", string(a.Reason)},
	}
	for _, fld := range fields {
		if err := mw.WriteField(fld.name, fld.value); err != nil {
			return nil, "", util.WrapError("write form field", err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, w.opts.FieldName, a.Filename))
	h.Set("Content-Type", a.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", util.WrapError("create file part", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", util.WrapError("write file part", err)
	}

	if err := mw.Close(); err != nil {
		return nil, "", util.WrapError("close multipart writer", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
