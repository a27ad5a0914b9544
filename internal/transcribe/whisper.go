package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/util"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

// WhisperOptions configures a Whisper client.
type WhisperOptions struct {
	// Language is a hint such as "en"; "auto" or empty lets the server detect it.
	Language string
	// Timeout bounds each request. Defaults to two minutes.
	Timeout time.Duration
}

// Whisper talks to a whisper.cpp server (POST /inference).
type Whisper struct {
	serverURL string
	opts      WhisperOptions
	client    *http.Client
}

// NewWhisper returns a client for the whisper.cpp server at serverURL, for
// example "http://localhost:8081".
func NewWhisper(serverURL string, opts WhisperOptions) (*Whisper, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: server URL must not be empty")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Whisper{
		serverURL: strings.TrimRight(serverURL, "/"),
		opts:      opts,
		client:    &http.Client{Timeout: opts.Timeout},
	}, nil
}

// verboseResponse is the verbose_json body returned by whisper.cpp.
type verboseResponse struct {
	Language                    string    `json:"language"`
	DetectedLanguage            string    `json:"detected_language"`
	DetectedLanguageProbability float64   `json:"detected_language_probability"`
	Text                        string    `json:"text"`
	Segments                    []Segment `json:"segments"`
}

// Transcribe implements Engine.
func (w *Whisper) Transcribe(ctx context.Context, path string) (*Result, error) {
	body, contentType, err := w.buildForm(path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.serverURL+"/inference", body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer util.SafeCloseFunc(resp.Body, "whisper response body")()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var vr verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	res := &Result{
		Language:            vr.Language,
		LanguageProbability: vr.DetectedLanguageProbability,
		Segments:            vr.Segments,
	}
	if vr.DetectedLanguage != "" {
		res.Language = vr.DetectedLanguage
	}
	if len(res.Segments) == 0 && strings.TrimSpace(vr.Text) != "" {
		res.Segments = []Segment{{Text: strings.TrimSpace(vr.Text)}}
	}
	sort.SliceStable(res.Segments, func(i, j int) bool { return res.Segments[i].Start < res.Segments[j].Start })

	slog.Info("transcription finished", "file", filepath.Base(path), "language", res.Language,
		"probability", res.LanguageProbability, "segments", len(res.Segments), "elapsed", time.Since(start))
	for _, s := range res.Segments {
		slog.Debug("transcribed segment", "start", s.Start, "end", s.End, "text", s.Text)
	}
	return res, nil
}

func (w *Whisper) buildForm(path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: open audio: %w", err)
	}
	defer util.SafeCloseFunc(f, "audio file")()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", fmt.Errorf("whisper: write audio data: %w", err)
	}

	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, "", fmt.Errorf("whisper: write response_format field: %w", err)
	}
	if w.opts.Language != "" {
		if err := mw.WriteField("language", w.opts.Language); err != nil {
			return nil, "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}
