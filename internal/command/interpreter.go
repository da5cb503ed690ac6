package command

import (
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/Anantak/chip-voice-relay/internal/metrics"
	"github.com/Anantak/chip-voice-relay/internal/recognizer"
)

// repeatWindow is how long an identical continuous-motion command is
// considered a too-soon repeat of itself.
const repeatWindow = 2 * time.Second

// quitPattern detects the spoken shutdown request
var quitPattern = regexp.MustCompile(`(?i)\b(exit|quit)\b`)

// Publisher broadcasts command messages to subscribers, best effort
type Publisher interface {
	Publish(msg Message) error
}

// Interpreter converts transcript events into published command messages.
// It is a single long-lived instance: the repeat suppression state it owns
// persists across recognition sessions for the whole process lifetime.
type Interpreter struct {
	vocab   *Vocabulary
	pub     Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics

	now func() time.Time

	// Repeat suppression state, updated on every accepted emission.
	lastIndex int
	lastEmit  time.Time

	// Statistics
	eventsAccepted uint64
	published      uint64
	suppressed     uint64
	mu             sync.RWMutex
}

// InterpreterStats represents interpreter statistics
type InterpreterStats struct {
	EventsAccepted uint64 `json:"events_accepted"`
	Published      uint64 `json:"published"`
	Suppressed     uint64 `json:"suppressed"`
}

// NewInterpreter creates an interpreter over the given vocabulary
func NewInterpreter(vocab *Vocabulary, pub Publisher, logger *slog.Logger, m *metrics.Metrics) *Interpreter {
	return &Interpreter{
		vocab:     vocab,
		pub:       pub,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		lastIndex: -1,
	}
}

// Handle processes one transcript event and reports whether a shutdown was
// requested. Events are expected one at a time from a single goroutine.
func (in *Interpreter) Handle(ev recognizer.Result) (quit bool) {
	if in.metrics != nil {
		in.metrics.RecordTranscriptEvent(ev.IsFinal)
	}

	// Low-confidence interim partials are display-only.
	if !ev.IsFinal && ev.Stability <= 0 {
		if in.metrics != nil {
			in.metrics.RecordEventRejected()
		}
		in.logger.Debug("Interim transcript",
			slog.String("transcript", ev.Transcript),
			slog.Float64("stability", ev.Stability),
		)
		return false
	}

	in.mu.Lock()
	in.eventsAccepted++
	in.mu.Unlock()

	in.logger.Info("Transcript accepted",
		slog.String("transcript", ev.Transcript),
		slog.Float64("stability", ev.Stability),
		slog.Bool("is_final", ev.IsFinal),
	)

	if quitPattern.MatchString(ev.Transcript) {
		in.logger.Info("Shutdown phrase recognized", slog.String("transcript", ev.Transcript))
		return true
	}

	idx, ok := in.vocab.Match(ev.Transcript)
	if !ok {
		return false
	}

	entry, err := in.vocab.Entry(idx)
	if err != nil {
		in.logger.Error("Vocabulary lookup failed", slog.String("error", err.Error()))
		return false
	}

	if in.metrics != nil {
		in.metrics.RecordCommandMatched()
	}

	now := in.now()

	// A continuous-motion command repeating itself within the window is a
	// too-soon repeat. Stop/terminate commands always pass, and a different
	// command interrupts immediately.
	if IsContinuousMotion(idx) && idx == in.lastIndex && now.Sub(in.lastEmit) < repeatWindow {
		in.mu.Lock()
		in.suppressed++
		in.mu.Unlock()

		if in.metrics != nil {
			in.metrics.RecordCommandSuppressed()
		}

		in.logger.Info("Too soon to repeat command",
			slog.String("phrase", entry.Phrase),
			slog.Int("index", idx),
			slog.Duration("since_last", now.Sub(in.lastEmit)),
		)
		return false
	}

	msg := Message{Handheld: entry.Payload}
	if err := in.pub.Publish(msg); err != nil {
		in.logger.Error("Failed to publish command",
			slog.String("phrase", entry.Phrase),
			slog.String("error", err.Error()),
		)
		return false
	}

	in.lastIndex = idx
	in.lastEmit = now

	in.mu.Lock()
	in.published++
	in.mu.Unlock()

	if in.metrics != nil {
		in.metrics.RecordCommandPublished()
	}

	in.logger.Info("Command published",
		slog.String("phrase", entry.Phrase),
		slog.Int("index", idx),
	)

	return false
}

// GetStats returns current interpreter statistics
func (in *Interpreter) GetStats() InterpreterStats {
	in.mu.RLock()
	defer in.mu.RUnlock()

	return InterpreterStats{
		EventsAccepted: in.eventsAccepted,
		Published:      in.published,
		Suppressed:     in.suppressed,
	}
}
