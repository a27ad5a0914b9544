// Package main provides a live-microphone recorder that detects speech, cuts
// it into utterances and delivers each one to a webhook as a compressed
// audio file.
//
// Usage:
//
//	vadrecorder [-config path/to/config.yaml] [-device id] [-once]
//	vadrecorder -list-devices
//
// Settings come from built-in defaults, the optional config file and
// VADREC_* environment variables, in increasing precedence. Flags override
// all of them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/audio"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/config"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/eventlog"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/metrics"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/recorder"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/transcribe"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to a JSON or YAML config file")
	device := flag.String("device", "", "Capture device, overrides audio.device")
	listDevices := flag.Bool("list-devices", false, "Print available capture devices and exit")
	once := flag.Bool("once", false, "Stop after the first exported utterance, delivered or not")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	cfg, err := config.Load(*configPath)
	if cfg == nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	if *listDevices {
		printDevices(cfg.Snapshot().Audio.Backend)
		return
	}

	if err == nil && *device != "" {
		err = cfg.Update(func(s *config.Settings) { s.Audio.Device = *device })
	}
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	settings := cfg.Snapshot()
	slog.SetDefault(newLogger(&settings.Log))
	if cfg.Path() != "" {
		slog.Info("using config file", "path", cfg.Path())
	}

	ffmpegPath := util.ResolveFFmpegPath(settings.Export.FFmpegPath)
	ffmpegAvailable := ffmpegPath != ""
	if !ffmpegAvailable {
		slog.Warn("FFmpeg not found - sessions cannot start",
			"configured_path", settings.Export.FFmpegPath)
	} else {
		slog.Info("FFmpeg found", "path", ffmpegPath)
	}

	events, err := eventlog.NewLogger(settings.Log.EventLog)
	if err != nil {
		slog.Warn("event log disabled", "path", settings.Log.EventLog, "error", err)
	}
	defer func() {
		if err := events.Close(); err != nil {
			slog.Error("failed to close event log", "error", err)
		}
	}()

	m := metrics.New()
	rec := recorder.New(cfg, recorder.Options{
		Events:  events,
		Metrics: m,
		Once:    *once,
	})

	var engine transcribe.Engine
	if settings.HasTranscriber() {
		w, err := transcribe.NewWhisper(settings.Transcribe.URL, transcribe.WhisperOptions{
			Language: settings.Transcribe.Language,
			Timeout:  settings.TranscribeTimeout(),
		})
		if err != nil {
			slog.Error("failed to create transcriber", "error", err)
			os.Exit(1)
		}
		engine = w
		slog.Info("transcription enabled", "url", settings.Transcribe.URL)
	}

	var version *VersionChecker
	var srv *Server
	if settings.Server.Port != 0 {
		version = NewVersionChecker()
		srv = NewServer(cfg, rec, ServerOptions{
			Transcriber:     engine,
			Metrics:         m,
			Events:          events,
			Version:         version,
			FFmpegAvailable: ffmpegAvailable,
		})
	}

	if err := rec.Start(); err != nil {
		if srv == nil || *once {
			slog.Error("failed to start session", "error", err)
			os.Exit(1)
		}
		slog.Error("failed to start session, waiting for API start", "error", err)
	}

	var httpServer *http.Server
	if srv != nil {
		httpServer = srv.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)

	// Without -once the process outlives any single session: the API can
	// start a new one after a device failure.
	var finished <-chan struct{}
	if *once || srv == nil {
		finished = rec.Done()
	}

	select {
	case <-sigChan:
		slog.Info("shutting down")
	case <-finished:
		slog.Info("session finished")
	}

	if version != nil {
		version.Stop()
	}

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
		cancel()
	}

	if err := rec.Stop(); err != nil {
		slog.Error("error stopping session", "error", err)
	}

	slog.Info("shutdown complete")
}

// newLogger returns a slog logger for the configured level and format.
func newLogger(c *config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// printDevices writes the capture devices of backend to stdout.
func printDevices(backend string) {
	devices := audio.DevicesFor(backend)
	if len(devices) == 0 {
		fmt.Println("no capture devices found")
		return
	}
	for _, d := range devices {
		fmt.Printf("%s\t%s\n", d.ID, d.Name)
	}
}
