package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Anantak/chip-voice-relay/internal/audio"
	"github.com/Anantak/chip-voice-relay/internal/metrics"
	"github.com/Anantak/chip-voice-relay/internal/recognizer"
)

// Outcome describes how a session ended
type Outcome int

const (
	// OutcomeBudgetExpired means the single-stream time budget elapsed;
	// the supervisor starts a fresh session with a reset clock.
	OutcomeBudgetExpired Outcome = iota

	// OutcomeSourceClosed means the audio source reached end-of-stream;
	// no further session is started.
	OutcomeSourceClosed

	// OutcomeStreamError means the recognition exchange failed; the
	// supervisor retries with a new session.
	OutcomeStreamError

	// OutcomeCanceled means the supervising context was canceled.
	OutcomeCanceled
)

// String returns a human-readable outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomeBudgetExpired:
		return "budget_expired"
	case OutcomeSourceClosed:
		return "source_closed"
	case OutcomeStreamError:
		return "stream_error"
	case OutcomeCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Session binds the audio source to one recognition stream for at most the
// configured time budget. At most one session is active at a time; the
// supervisor only constructs the next one after Run has returned.
type Session struct {
	id      string
	source  audio.Source
	stream  recognizer.Stream
	budget  time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	start time.Time
}

// NewSession creates a session over an already-open source and stream
func NewSession(source audio.Source, stream recognizer.Stream, budget time.Duration,
	logger *slog.Logger, m *metrics.Metrics) *Session {

	id := uuid.NewString()
	return &Session{
		id:      id,
		source:  source,
		stream:  stream,
		budget:  budget,
		logger:  logger.With(slog.String("session_id", id)),
		metrics: m,
	}
}

// sendResult carries the audio pump's exit condition
type sendResult struct {
	outcome Outcome
	err     error
}

// Run records the session start time, then pumps audio chunks into the
// recognition stream while re-emitting every transcript result on events in
// arrival order. It returns once either half of the exchange ends. The
// recognition stream is always closed before Run returns.
func (s *Session) Run(ctx context.Context, events chan<- recognizer.Result) (Outcome, error) {
	s.start = time.Now()

	if s.metrics != nil {
		s.metrics.RecordSessionStarted()
	}
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordSessionEnded(time.Since(s.start).Seconds())
		}
	}()

	s.logger.Info("Session started", slog.Duration("budget", s.budget))

	sendDone := make(chan sendResult, 1)
	stopSend := make(chan struct{})

	go func() {
		res := s.pumpAudio(ctx, stopSend)
		sendDone <- res
		// Closing the stream unblocks a Recv waiting on the service, so
		// the result pump always observes the end of the session.
		s.stream.Close()
	}()

	recvErr := s.pumpResults(ctx, events)

	// If the result pump failed first, tell the audio pump to stand down.
	close(stopSend)
	sent := <-sendDone

	outcome, err := s.resolve(ctx, sent, recvErr)

	s.logger.Info("Session ended",
		slog.String("outcome", outcome.String()),
		slog.Duration("duration", time.Since(s.start)),
	)

	return outcome, err
}

// pumpAudio forwards source chunks to the recognition stream. The budget is
// checked before pulling each new chunk, so no chunk is ever pulled for a
// session that will not send it.
func (s *Session) pumpAudio(ctx context.Context, stop <-chan struct{}) sendResult {
	for {
		select {
		case <-ctx.Done():
			return sendResult{outcome: OutcomeCanceled, err: ctx.Err()}
		case <-stop:
			return sendResult{outcome: OutcomeCanceled}
		default:
		}

		if time.Since(s.start) > s.budget {
			return sendResult{outcome: OutcomeBudgetExpired}
		}

		chunk, err := s.source.Read()
		if err == io.EOF {
			return sendResult{outcome: OutcomeSourceClosed}
		}
		if err != nil {
			return sendResult{outcome: OutcomeStreamError, err: fmt.Errorf("audio source read failed: %w", err)}
		}

		if err := s.stream.Send(chunk); err != nil {
			return sendResult{outcome: OutcomeStreamError, err: fmt.Errorf("audio forward failed: %w", err)}
		}

		if s.metrics != nil {
			s.metrics.RecordChunkForwarded()
		}
	}
}

// pumpResults re-emits transcript results in arrival order
func (s *Session) pumpResults(ctx context.Context, events chan<- recognizer.Result) error {
	for {
		result, err := s.stream.Recv()
		if err != nil {
			return err
		}

		select {
		case events <- result:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// resolve combines the two pump exit conditions into the session outcome.
// The audio pump's verdict wins when it ended the session; otherwise the
// result pump failed first and the session ends with a recoverable error.
func (s *Session) resolve(ctx context.Context, sent sendResult, recvErr error) (Outcome, error) {
	switch sent.outcome {
	case OutcomeBudgetExpired, OutcomeSourceClosed:
		return sent.outcome, nil
	case OutcomeStreamError:
		return OutcomeStreamError, sent.err
	}

	if ctx.Err() != nil {
		return OutcomeCanceled, ctx.Err()
	}

	if recvErr != nil && recvErr != io.EOF {
		return OutcomeStreamError, recvErr
	}

	// The service closed the stream cleanly mid-session; treat it like any
	// other recoverable stream end.
	return OutcomeStreamError, fmt.Errorf("recognition stream closed by service")
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}
