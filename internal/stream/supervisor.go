package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Anantak/chip-voice-relay/internal/audio"
	"github.com/Anantak/chip-voice-relay/internal/metrics"
	"github.com/Anantak/chip-voice-relay/internal/recognizer"
)

// State is the supervisor lifecycle state
type State int

const (
	StateRunning State = iota
	StateStopped
)

// String returns a human-readable state name
func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "stopped"
}

// SourceFactory opens a fresh audio source for a supervision attempt
type SourceFactory func() (audio.Source, error)

// Config contains supervisor configuration
type Config struct {
	Budget         time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Streaming      recognizer.StreamingConfig
}

// Supervisor keeps the relay listening indefinitely. It runs consecutive
// sessions over one open audio source, replacing each session when its time
// budget expires. Chunks captured during the brief handoff stay queued in
// the source, so no audio is lost or duplicated across the boundary. On a
// recoverable error the source is released and recreated after a backoff.
type Supervisor struct {
	config    Config
	newSource SourceFactory
	rec       recognizer.Recognizer
	logger    *slog.Logger
	metrics   *metrics.Metrics

	events chan recognizer.Result

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	source audio.Source
	state  State

	// Statistics
	sessionsStarted   uint64
	restarts          uint64
	recoverableErrors uint64
}

// Stats represents supervisor statistics
type Stats struct {
	State             string `json:"state"`
	SessionsStarted   uint64 `json:"sessions_started"`
	Restarts          uint64 `json:"restarts"`
	RecoverableErrors uint64 `json:"recoverable_errors"`
}

// NewSupervisor creates a supervisor; call Start to begin listening
func NewSupervisor(config Config, newSource SourceFactory, rec recognizer.Recognizer,
	logger *slog.Logger, m *metrics.Metrics) *Supervisor {

	ctx, cancel := context.WithCancel(context.Background())

	return &Supervisor{
		config:    config,
		newSource: newSource,
		rec:       rec,
		logger:    logger,
		metrics:   m,
		events:    make(chan recognizer.Result, 16),
		ctx:       ctx,
		cancel:    cancel,
		state:     StateRunning,
	}
}

// Start launches the supervision loop
func (sv *Supervisor) Start() {
	sv.wg.Add(1)
	go sv.run()
}

// Events returns the transcript event stream. The channel is closed once
// supervision has stopped and all resources are released.
func (sv *Supervisor) Events() <-chan recognizer.Result {
	return sv.events
}

// Stop requests a terminal shutdown and waits for the loop to exit. The
// current audio source is closed immediately so a session blocked on a
// device read observes end-of-stream promptly. Safe to call more than once.
func (sv *Supervisor) Stop() {
	sv.cancel()

	sv.mu.Lock()
	if sv.source != nil {
		sv.source.Close()
	}
	sv.mu.Unlock()

	sv.wg.Wait()
}

// State returns the current lifecycle state
func (sv *Supervisor) State() State {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	return sv.state
}

// GetStats returns current supervisor statistics
func (sv *Supervisor) GetStats() Stats {
	sv.mu.RLock()
	defer sv.mu.RUnlock()

	return Stats{
		State:             sv.state.String(),
		SessionsStarted:   sv.sessionsStarted,
		Restarts:          sv.restarts,
		RecoverableErrors: sv.recoverableErrors,
	}
}

// run is the outer supervision loop: each iteration owns one open audio
// source and drives sessions over it until a terminal condition or a
// recoverable error forces the source to be recreated.
func (sv *Supervisor) run() {
	defer sv.wg.Done()
	defer close(sv.events)
	defer sv.setState(StateStopped)

	backoff := sv.config.InitialBackoff

	for sv.ctx.Err() == nil {
		source, err := sv.newSource()
		if err == nil {
			err = source.Open()
		}
		if err != nil {
			sv.recordError()
			sv.logger.Error("Failed to open audio source, retrying",
				slog.String("error", err.Error()),
				slog.Duration("backoff", backoff),
			)
			sv.sleep(&backoff)
			continue
		}

		sv.setSource(source)
		terminal := sv.runSessions(source, &backoff)
		sv.setSource(nil)

		if err := source.Close(); err != nil {
			sv.logger.Warn("Error closing audio source", slog.String("error", err.Error()))
		}

		if terminal {
			break
		}
	}

	sv.logger.Info("Supervisor stopped", slog.Uint64("sessions_started", sv.sessionCount()))
}

// runSessions drives consecutive sessions over one open source. It returns
// true when supervision should stop for good, false when the source must be
// recreated after a recoverable error.
func (sv *Supervisor) runSessions(source audio.Source, backoff *time.Duration) bool {
	for sv.ctx.Err() == nil {
		stream, err := sv.rec.OpenStream(sv.ctx, sv.config.Streaming)
		if err != nil {
			sv.recordError()
			sv.logger.Error("Failed to open recognition stream, retrying",
				slog.String("error", err.Error()),
				slog.Duration("backoff", *backoff),
			)
			sv.sleep(backoff)
			return false
		}

		session := NewSession(source, stream, sv.config.Budget, sv.logger, sv.metrics)

		sv.mu.Lock()
		sv.sessionsStarted++
		sv.mu.Unlock()

		outcome, err := session.Run(sv.ctx, sv.events)

		switch outcome {
		case OutcomeBudgetExpired:
			// Healthy session: reset the backoff and hand off to a fresh
			// session against the same source with a reset clock.
			*backoff = sv.config.InitialBackoff

			sv.mu.Lock()
			sv.restarts++
			sv.mu.Unlock()

			if sv.metrics != nil {
				sv.metrics.RecordSessionRestart()
			}

			sv.logger.Info("Streaming budget reached, starting fresh session",
				slog.String("session_id", session.ID()),
			)

		case OutcomeSourceClosed:
			sv.logger.Info("Audio source ended, stopping supervision",
				slog.String("session_id", session.ID()),
			)
			return true

		case OutcomeCanceled:
			return true

		default:
			sv.recordError()
			sv.logger.Error("Session ended with recoverable error, retrying",
				slog.String("session_id", session.ID()),
				slog.String("error", err.Error()),
				slog.Duration("backoff", *backoff),
			)
			sv.sleep(backoff)
			return false
		}
	}

	return true
}

// sleep waits for the current backoff, doubling it up to the ceiling.
// Context cancellation cuts the wait short.
func (sv *Supervisor) sleep(backoff *time.Duration) {
	d := *backoff

	*backoff *= 2
	if *backoff > sv.config.MaxBackoff {
		*backoff = sv.config.MaxBackoff
	}

	select {
	case <-time.After(d):
	case <-sv.ctx.Done():
	}
}

func (sv *Supervisor) setSource(source audio.Source) {
	sv.mu.Lock()
	sv.source = source
	sv.mu.Unlock()
}

func (sv *Supervisor) setState(state State) {
	sv.mu.Lock()
	sv.state = state
	sv.mu.Unlock()
}

func (sv *Supervisor) recordError() {
	sv.mu.Lock()
	sv.recoverableErrors++
	sv.mu.Unlock()

	if sv.metrics != nil {
		sv.metrics.RecordSessionError()
	}
}

func (sv *Supervisor) sessionCount() uint64 {
	sv.mu.RLock()
	defer sv.mu.RUnlock()
	return sv.sessionsStarted
}
