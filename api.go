package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/audio"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/config"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/eventlog"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/ffmpeg"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/server"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/transcribe"
)

const (
	// defaultEventLimit is the page size of /api/events without a limit parameter.
	defaultEventLimit = 50
	// maxUploadSize caps /api/transcribe request bodies.
	maxUploadSize = 100 << 20
	// transcribeField is the multipart field carrying the audio file.
	transcribeField = "audio_file"
)

// DevicesResponse is the response body for GET /api/devices.
type DevicesResponse struct {
	Backend string         `json:"backend"`
	Devices []audio.Device `json:"devices"`
}

// EventsResponse is the response body for GET /api/events.
type EventsResponse struct {
	Events  []eventlog.Event `json:"events"`
	HasMore bool             `json:"has_more"`
}

// TranscriptionResponse is the response body for POST /api/transcribe.
type TranscriptionResponse struct {
	Transcription       string               `json:"transcription"`
	Language            string               `json:"language"`
	LanguageProbability float64              `json:"language_probability"`
	Segments            []transcribe.Segment `json:"segments"`
}

// handleAPIStatus returns the session status.
// GET /api/status
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	server.WriteJSON(w, http.StatusOK, s.WSStatus())
}

// handleSessionStart starts a capture session.
// POST /api/session/start
func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if err := s.recorder.Start(); err != nil {
		server.WriteError(w, startErrorStatus(err), err)
		return
	}
	server.WriteJSON(w, http.StatusOK, s.recorder.Status())
}

// startErrorStatus maps a Start error to an HTTP status.
func startErrorStatus(err error) int {
	switch {
	case errors.Is(err, audio.ErrDeviceUnavailable),
		errors.Is(err, audio.ErrNoAudioDevice),
		errors.Is(err, ffmpeg.ErrNotFound):
		return http.StatusServiceUnavailable
	case config.IsValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleSessionStop stops the capture session, flushing any open utterance.
// POST /api/session/stop
func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if err := s.recorder.Stop(); err != nil {
		// The session is stopped either way; report what went wrong on the way.
		slog.Warn("session stopped with errors", "error", err)
		server.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, s.recorder.Status())
}

// handleAPIDevices lists capture devices for the configured backend.
// GET /api/devices
func (s *Server) handleAPIDevices(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Snapshot()
	devices := audio.DevicesFor(cfg.Audio.Backend)
	if devices == nil {
		devices = []audio.Device{}
	}
	server.WriteJSON(w, http.StatusOK, DevicesResponse{Backend: cfg.Audio.Backend, Devices: devices})
}

// handleGetSettings returns the active settings without secrets.
// GET /api/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Snapshot()
	server.WriteJSON(w, http.StatusOK, server.NewSettingsView(&cfg))
}

// handleUpdateSettings changes settings for the next session.
// PUT /api/settings
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req server.SettingsUpdateRequest
	if !server.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := s.config.Update(req.Apply); err != nil {
		server.WriteError(w, http.StatusBadRequest, err)
		return
	}

	slog.Info("settings updated", "running", s.recorder.IsRunning())
	cfg := s.config.Snapshot()
	server.WriteJSON(w, http.StatusOK, server.NewSettingsView(&cfg))
}

// handleAPIEvents returns event log entries, newest first.
// GET /api/events?limit=50&offset=0&type=session|utterance
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), defaultEventLimit)
	if err != nil || limit < 1 {
		server.WriteMessage(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		server.WriteMessage(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	filter := eventlog.TypeFilter(q.Get("type"))
	switch filter {
	case eventlog.FilterAll, eventlog.FilterSession, eventlog.FilterUtterance:
	default:
		server.WriteMessage(w, http.StatusBadRequest, "type must be session or utterance")
		return
	}

	path := s.events.Path()
	if path == "" {
		cfg := s.config.Snapshot()
		path = cfg.Log.EventLog
	}

	events, hasMore, err := eventlog.ReadLast(path, limit, offset, filter)
	if err != nil {
		slog.Error("failed to read event log", "path", path, "error", err)
		server.WriteMessage(w, http.StatusInternalServerError, "failed to read event log")
		return
	}
	server.WriteJSON(w, http.StatusOK, EventsResponse{Events: events, HasMore: hasMore})
}

// intParam parses a query parameter, returning def when it is empty.
func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// handleTranscribe transcribes an uploaded audio file. The file is sent as
// the multipart field audio_file or as the raw request body.
// POST /api/transcribe
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil {
		server.WriteMessage(w, http.StatusServiceUnavailable, "transcription is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	body, name, err := uploadedAudio(r)
	if err != nil {
		server.WriteError(w, http.StatusBadRequest, err)
		return
	}
	defer body.Close() //nolint:errcheck // Request body

	path, err := spoolUpload(body, filepath.Ext(name))
	if err != nil {
		slog.Error("failed to store upload", "error", err)
		server.WriteMessage(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove upload", "path", path, "error", err)
		}
	}()

	cfg := s.config.Snapshot()
	ctx, cancel := context.WithTimeout(r.Context(), cfg.TranscribeTimeout())
	defer cancel()

	start := time.Now()
	result, err := s.transcriber.Transcribe(ctx, path)
	s.metrics.RecordTranscription(err == nil, time.Since(start))
	if err != nil {
		slog.Error("transcription failed", "error", err)
		server.WriteError(w, http.StatusBadGateway, err)
		return
	}

	segments := result.Segments
	if segments == nil {
		segments = []transcribe.Segment{}
	}
	server.WriteJSON(w, http.StatusOK, TranscriptionResponse{
		Transcription:       result.Text(),
		Language:            result.Language,
		LanguageProbability: result.LanguageProbability,
		Segments:            segments,
	})
}

// uploadedAudio returns the audio payload of a transcription request and the
// client file name, if any.
func uploadedAudio(r *http.Request) (io.ReadCloser, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		file, header, err := r.FormFile(transcribeField)
		if err != nil {
			return nil, "", fmt.Errorf("missing %s field: %w", transcribeField, err)
		}
		return file, header.Filename, nil
	}

	if r.ContentLength == 0 {
		return nil, "", errors.New("empty request body")
	}
	return r.Body, "", nil
}

// spoolUpload copies src to a temporary file and returns its path. The file
// is removed again if copying fails.
func spoolUpload(src io.Reader, ext string) (string, error) {
	if ext == "" {
		ext = ".bin"
	}
	f, err := os.CreateTemp("", "vadrec-upload-*"+ext)
	if err != nil {
		return "", err
	}
	path := f.Name()

	_, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path) //nolint:errcheck // Best-effort cleanup
		return "", err
	}
	return path, nil
}
