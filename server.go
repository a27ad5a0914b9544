package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/config"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/eventlog"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/metrics"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/recorder"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/server"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/transcribe"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/types"
)

// Server is the HTTP control plane of the recorder.
type Server struct {
	config          *config.Config
	recorder        *recorder.Recorder
	transcriber     transcribe.Engine
	metrics         *metrics.Metrics
	events          *eventlog.Logger
	commands        *server.CommandHandler
	version         *VersionChecker
	ffmpegAvailable bool
}

// ServerOptions holds the optional collaborators of a Server.
type ServerOptions struct {
	Transcriber     transcribe.Engine
	Metrics         *metrics.Metrics
	Events          *eventlog.Logger
	Version         *VersionChecker
	FFmpegAvailable bool
}

// NewServer returns a new Server for the given config and recorder.
func NewServer(cfg *config.Config, rec *recorder.Recorder, opts ServerOptions) *Server {
	return &Server{
		config:          cfg,
		recorder:        rec,
		transcriber:     opts.Transcriber,
		metrics:         opts.Metrics,
		events:          opts.Events,
		commands:        server.NewCommandHandler(rec),
		version:         opts.Version,
		ffmpegAvailable: opts.FFmpegAvailable,
	}
}

// WSStatus returns the current WebSocket status response.
func (s *Server) WSStatus() types.WSStatusResponse {
	return types.WSStatusResponse{
		Type:            "status",
		FFmpegAvailable: s.ffmpegAvailable,
		Session:         s.recorder.Status(),
		Version:         s.version.Info(),
	}
}

// Levels returns the live meter levels.
func (s *Server) Levels() types.AudioLevels {
	return s.recorder.Levels()
}

// handleWebSocket streams live status and levels and accepts session commands.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	server.ServeLive(conn, s, s.commands)
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	auth := server.APIKeyAuth(s.config.APIKey)

	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, s.instrument(endpoint, auth(h)))
	}

	route("GET /api/status", "status", s.handleAPIStatus)
	route("POST /api/session/start", "session_start", s.handleSessionStart)
	route("POST /api/session/stop", "session_stop", s.handleSessionStop)
	route("GET /api/devices", "devices", s.handleAPIDevices)
	route("GET /api/settings", "settings", s.handleGetSettings)
	route("PUT /api/settings", "settings", s.handleUpdateSettings)
	route("GET /api/events", "events", s.handleAPIEvents)
	route("POST /api/transcribe", "transcribe", s.handleTranscribe)
	mux.HandleFunc("GET /ws", auth(s.handleWebSocket))

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return server.SecurityHeaders(mux)
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// instrument records request count and latency under endpoint.
func (s *Server) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	if s.metrics == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.metrics.RecordHTTPRequest(r.Method, endpoint, rec.status, time.Since(start))
	}
}

// Start begins serving on the configured port and returns the server so the
// caller can shut it down.
func (s *Server) Start() *http.Server {
	cfg := s.config.Snapshot()
	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("starting web server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("web server error", "error", err)
		}
	}()

	return httpServer
}
