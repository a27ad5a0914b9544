// Package recorder runs recording sessions: capture feeds a frame queue, a
// processing worker classifies and assembles utterances, and an export
// worker delivers them in order.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/audio"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/config"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/eventlog"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/export"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/metrics"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/queue"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/types"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/utterance"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/vad"
	"golang.org/x/sync/errgroup"
)

// Queue names used in logs and metrics.
const (
	frameQueueName  = "frames"
	exportQueueName = "exports"
)

// meterWindow is the number of samples per published meter reading.
const meterWindow = types.DefaultSampleRate / 10

// Options configures a Recorder.
type Options struct {
	Factories Factories
	Events    *eventlog.Logger
	Metrics   *metrics.Metrics
	// Once stops the session after the first utterance has been exported,
	// whether or not its delivery succeeded.
	Once bool
	// ShutdownTimeout bounds how long Stop waits for in-flight exports
	// before cancelling them. Defaults to types.ShutdownTimeout.
	ShutdownTimeout time.Duration
}

// Recorder owns at most one session at a time. Start and Stop are
// serialized and idempotent. It is safe for concurrent use.
type Recorder struct {
	cfg       *config.Config
	factories Factories
	events    *eventlog.Logger
	metrics   *metrics.Metrics
	once      bool
	grace     time.Duration
	meter     *audio.Meter

	// ctl serializes Start and Stop.
	ctl sync.Mutex

	mu        sync.RWMutex
	state     types.SessionState
	sess      *session
	lastError string
}

// session holds everything that lives for one start/stop cycle.
type session struct {
	settings   config.Settings
	source     audio.Source
	classifier vad.Classifier
	assembler  *utterance.Assembler
	exporter   Exporter
	frames     *queue.Queue[audio.Frame]
	exports    *queue.Queue[*utterance.Utterance]
	workers    errgroup.Group

	exportCtx    context.Context
	cancelExport context.CancelFunc

	startTime time.Time
	stopping  chan struct{}
	finished  chan struct{}

	utterances atomic.Int64
	exported   atomic.Int64
	failed     atomic.Int64
	lastID     atomic.Value
}

// New returns a stopped recorder that reads its settings from cfg at every
// Start.
func New(cfg *config.Config, opts Options) *Recorder {
	grace := opts.ShutdownTimeout
	if grace <= 0 {
		grace = types.ShutdownTimeout
	}
	return &Recorder{
		cfg:       cfg,
		factories: opts.Factories.withDefaults(),
		events:    opts.Events,
		metrics:   opts.Metrics,
		once:      opts.Once,
		grace:     grace,
		meter:     audio.NewMeter(meterWindow),
		state:     types.StateStopped,
	}
}

// State returns the current session state.
func (r *Recorder) State() types.SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// IsRunning reports whether a session is capturing.
func (r *Recorder) IsRunning() bool {
	return r.State() == types.StateRunning
}

// Levels returns the current meter reading.
func (r *Recorder) Levels() types.AudioLevels {
	if !r.IsRunning() {
		return audio.SilentLevels()
	}
	return r.meter.Levels()
}

// Status returns a point-in-time view of the session.
func (r *Recorder) Status() types.SessionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := types.SessionStatus{
		State:     r.state,
		LastError: r.lastError,
	}
	s := r.sess
	if s == nil {
		return st
	}
	if r.state == types.StateRunning {
		st.Uptime = time.Since(s.startTime).Truncate(time.Second).String()
	}
	st.Recording = s.assembler.State() == utterance.Recording
	st.QueueDepth = s.frames.Len()
	st.QueueHighMark = s.frames.HighWater()
	st.PendingExport = s.exports.Len()
	st.Utterances = s.utterances.Load()
	st.Exported = s.exported.Load()
	st.Failed = s.failed.Load()
	if id, ok := s.lastID.Load().(string); ok {
		st.LastUtterance = id
	}
	return st
}

// Done returns a channel closed once the current session has fully
// stopped. Without a session the channel is already closed.
func (r *Recorder) Done() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.sess == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return r.sess.finished
}

// Start opens the capture device and launches the workers. It is a no-op
// while a session is starting or running. A device that cannot be opened
// yields an error matching audio.ErrDeviceUnavailable.
func (r *Recorder) Start() error {
	r.ctl.Lock()
	defer r.ctl.Unlock()

	r.mu.Lock()
	if r.state == types.StateRunning || r.state == types.StateStarting {
		r.mu.Unlock()
		return nil
	}
	r.state = types.StateStarting
	r.lastError = ""
	r.mu.Unlock()

	sess, err := r.newSession()
	if err != nil {
		r.fail(err)
		return err
	}

	sess.workers.Go(func() error { return r.processLoop(sess) })
	sess.workers.Go(func() error { return r.exportLoop(sess) })

	r.meter.Reset()
	r.mu.Lock()
	r.sess = sess
	r.mu.Unlock()

	if err := sess.source.Start(func(f audio.Frame) {
		if err := sess.frames.Push(f); err != nil {
			slog.Debug("dropping frame after queue close", "seq", f.Seq)
		}
	}); err != nil {
		sess.frames.Close()
		_ = sess.workers.Wait()
		sess.cancelExport()
		close(sess.finished)
		r.metrics.RecordDeviceError()
		_ = r.events.LogSession(eventlog.DeviceError, "capture failed to start", &eventlog.SessionDetails{
			Backend: sess.settings.Audio.Backend,
			Device:  sess.settings.Audio.Device,
			Error:   err.Error(),
		})
		r.fail(err)
		return err
	}

	r.mu.Lock()
	r.state = types.StateRunning
	r.mu.Unlock()

	r.metrics.SetSessionActive(true)
	slog.Info("recording session started",
		"backend", sess.settings.Audio.Backend,
		"device", sess.settings.Audio.Device,
		"vad", sess.settings.VAD.Backend,
		"aggressiveness", sess.settings.VAD.Aggressiveness,
		"silence_timeout", sess.settings.SilenceTimeout())
	_ = r.events.LogSession(eventlog.SessionStarted, "", &eventlog.SessionDetails{
		Backend:    sess.settings.Audio.Backend,
		Device:     sess.settings.Audio.Device,
		SampleRate: sess.settings.Audio.SampleRate,
		FrameMs:    int64(sess.settings.Audio.FrameMs),
	})

	go r.watchSource(sess)
	return nil
}

// newSession builds the collaborators for one session from a settings
// snapshot. Nothing is started.
func (r *Recorder) newSession() (*session, error) {
	s := r.cfg.Snapshot()

	frameDur := s.FrameDuration()
	if !vad.ValidFormat(s.Audio.SampleRate, frameDur) {
		return nil, fmt.Errorf("%w: %s frames at %d Hz", vad.ErrInvalidFrameDuration, frameDur, s.Audio.SampleRate)
	}

	classifier, err := r.factories.Classifier(s.VAD.Backend, s.VAD.Aggressiveness)
	if err != nil {
		return nil, fmt.Errorf("create classifier: %w", err)
	}

	exporter, err := r.factories.Exporter(&s)
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	source, err := r.factories.Source(audio.SourceConfig{
		Backend:       s.Audio.Backend,
		Device:        s.Audio.Device,
		FFmpegPath:    s.Export.FFmpegPath,
		SampleRate:    s.Audio.SampleRate,
		FrameDuration: frameDur,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", audio.ErrDeviceUnavailable, err)
	}

	exportCtx, cancel := context.WithCancel(context.Background())
	return &session{
		settings:   s,
		source:     source,
		classifier: classifier,
		assembler:  utterance.NewAssembler(s.SilenceTimeout()),
		exporter:   exporter,
		frames: queue.New[audio.Frame](frameQueueName, queue.Options{
			HighWaterMark: s.Queue.HighWater,
			OnDepth:       func(d int) { r.metrics.SetQueueDepth(frameQueueName, d) },
		}),
		exports: queue.New[*utterance.Utterance](exportQueueName, queue.Options{
			OnDepth: func(d int) { r.metrics.SetQueueDepth(exportQueueName, d) },
		}),
		exportCtx:    exportCtx,
		cancelExport: cancel,
		startTime:    time.Now(),
		stopping:     make(chan struct{}),
		finished:     make(chan struct{}),
	}, nil
}

// fail records a start failure and returns to stopped.
func (r *Recorder) fail(err error) {
	slog.Error("failed to start recording session", "error", err)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = types.StateStopped
	r.lastError = err.Error()
}

// Stop ends the session: the source stops, the frame queue drains, the
// utterance in progress is force-closed and every pending export runs.
// Exports still running after the shutdown timeout are cancelled. It is a
// no-op while stopping or stopped.
func (r *Recorder) Stop() error {
	return r.stopSession(nil, nil)
}

// stopSession stops target, or the current session when target is nil. It is
// a no-op when target is no longer the current session. A non-nil cause is
// recorded as the last error.
func (r *Recorder) stopSession(target *session, cause error) error {
	r.ctl.Lock()
	defer r.ctl.Unlock()

	r.mu.Lock()
	if r.state == types.StateStopped || r.state == types.StateStopping ||
		(target != nil && r.sess != target) {
		r.mu.Unlock()
		return nil
	}
	r.state = types.StateStopping
	if cause != nil {
		r.lastError = cause.Error()
	}
	sess := r.sess
	r.mu.Unlock()

	close(sess.stopping)

	var errs []error
	if err := sess.source.Stop(); err != nil {
		slog.Warn("failed to stop capture cleanly", "error", err)
		errs = append(errs, fmt.Errorf("stop source: %w", err))
	}

	sess.frames.Close()

	waited := make(chan error, 1)
	go func() { waited <- sess.workers.Wait() }()

	select {
	case err := <-waited:
		if err != nil {
			errs = append(errs, err)
		}
	case <-time.After(r.grace):
		slog.Warn("exports did not finish in time, cancelling", "pending", sess.exports.Len())
		sess.cancelExport()
		if err := <-waited; err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, errors.New("export shutdown timeout"))
	}
	sess.cancelExport()

	r.mu.Lock()
	r.state = types.StateStopped
	r.mu.Unlock()
	close(sess.finished)

	r.metrics.SetSessionActive(false)
	slog.Info("recording session stopped",
		"utterances", sess.utterances.Load(),
		"exported", sess.exported.Load(),
		"failed", sess.failed.Load())
	_ = r.events.LogSession(eventlog.SessionStopped, "", &eventlog.SessionDetails{
		Utterances: sess.utterances.Load(),
		Exported:   sess.exported.Load(),
		Failed:     sess.failed.Load(),
	})

	return errors.Join(errs...)
}

// watchSource tears the session down when the device fails.
func (r *Recorder) watchSource(sess *session) {
	select {
	case <-sess.stopping:
		return
	case <-sess.source.Done():
	}

	select {
	case <-sess.stopping:
		return
	default:
	}

	err := sess.source.Err()
	if err == nil {
		err = audio.ErrDeviceUnavailable
	}
	slog.Error("capture device failed, stopping session", "error", err)
	r.metrics.RecordDeviceError()
	_ = r.events.LogSession(eventlog.DeviceError, "capture device failed", &eventlog.SessionDetails{
		Backend: sess.settings.Audio.Backend,
		Device:  sess.settings.Audio.Device,
		Error:   err.Error(),
	})

	if err := r.stopSession(sess, err); err != nil {
		slog.Warn("session teardown after device failure reported errors", "error", err)
	}
}

// processLoop classifies frames and assembles utterances until the frame
// queue is closed and drained, then force-closes the utterance in progress.
func (r *Recorder) processLoop(sess *session) error {
	defer sess.exports.Close()

	for {
		f, err := sess.frames.Pop(context.Background())
		if err != nil {
			if u := sess.assembler.Flush(); u != nil {
				r.utteranceClosed(sess, u)
			}
			opened, closed := sess.assembler.Transitions()
			slog.Debug("processing worker finished", "opened", opened, "closed", closed)
			return nil
		}

		speech, err := sess.classifier.Classify(f)
		if err != nil {
			slog.Error("frame classification failed, treating as silence", "seq", f.Seq, "error", err)
			speech = false
		}

		cf := audio.ClassifiedFrame{Frame: f, IsSpeech: speech}
		r.metrics.RecordFrame(speech)
		r.meter.Process(cf)

		if u := sess.assembler.Push(cf); u != nil {
			r.utteranceClosed(sess, u)
		}
	}
}

func (r *Recorder) utteranceClosed(sess *session, u *utterance.Utterance) {
	sess.utterances.Add(1)
	r.metrics.RecordUtterance(string(u.Reason), u.Duration())
	slog.Info("utterance closed", "id", u.ID, "frames", u.Len(), "duration", u.Duration(), "reason", u.Reason)
	_ = r.events.LogUtterance(eventlog.UtteranceClosed, &eventlog.UtteranceDetails{
		UtteranceID: u.ID,
		Frames:      u.Len(),
		DurationMs:  u.Duration().Milliseconds(),
		Reason:      string(u.Reason),
	})

	if err := sess.exports.Push(u); err != nil {
		slog.Error("failed to queue utterance for export", "id", u.ID, "error", err)
	}
}

// exportLoop exports utterances one at a time in assembly order until the
// export queue is closed and drained.
func (r *Recorder) exportLoop(sess *session) error {
	for {
		u, err := sess.exports.Pop(context.Background())
		if err != nil {
			return nil
		}

		res, err := sess.exporter.Export(sess.exportCtx, u)
		if err != nil {
			r.exportFailed(sess, u, res, err)
		} else {
			r.exportCompleted(sess, res)
		}

		if r.once && sess.exported.Load()+sess.failed.Load() == 1 {
			slog.Info("first utterance exported, stopping session", "delivered", err == nil)
			go func() {
				if err := r.stopSession(sess, nil); err != nil {
					slog.Warn("session stop reported errors", "error", err)
				}
			}()
		}
	}
}

func (r *Recorder) exportCompleted(sess *session, res *export.Result) {
	sess.exported.Add(1)
	sess.lastID.Store(res.UtteranceID)
	r.metrics.RecordExportSuccess(res.Elapsed, res.Size)
	if sess.settings.HasArchive() {
		r.metrics.RecordArchive(res.ArchiveErr == nil)
	}

	slog.Info("utterance delivered", "id", res.UtteranceID, "size", res.Size, "elapsed", res.Elapsed)
	d := &eventlog.UtteranceDetails{
		UtteranceID: res.UtteranceID,
		DurationMs:  res.Duration.Milliseconds(),
		SizeBytes:   res.Size,
		ElapsedMs:   res.Elapsed.Milliseconds(),
		Archive:     res.ArchivedAt,
	}
	if res.ArchiveErr != nil {
		d.Error = res.ArchiveErr.Error()
	}
	_ = r.events.LogUtterance(eventlog.ExportCompleted, d)
}

func (r *Recorder) exportFailed(sess *session, u *utterance.Utterance, res *export.Result, err error) {
	sess.failed.Add(1)
	stage := export.Stage(err)

	var elapsed time.Duration
	if res != nil {
		elapsed = res.Elapsed
	}
	r.metrics.RecordExportFailure(stage, elapsed)

	slog.Error("utterance export failed", "id", u.ID, "stage", stage, "error", err)
	r.mu.Lock()
	r.lastError = err.Error()
	r.mu.Unlock()
	_ = r.events.LogUtterance(eventlog.ExportFailed, &eventlog.UtteranceDetails{
		UtteranceID: u.ID,
		DurationMs:  u.Duration().Milliseconds(),
		ElapsedMs:   elapsed.Milliseconds(),
		Stage:       stage,
		Error:       err.Error(),
	})
}
