package recognizer

import "context"

// Result is a single incremental or final transcript event. Within one
// stream, interim results for an utterance may repeat with growing stability
// before a final result closes it.
type Result struct {
	Transcript string
	Stability  float64
	IsFinal    bool
}

// StreamingConfig is the recognition handshake sent before any audio
type StreamingConfig struct {
	SampleRate     int      `json:"sample_rate"`
	Encoding       string   `json:"encoding"`
	Language       string   `json:"language"`
	Model          string   `json:"model,omitempty"`
	PhraseHints    []string `json:"phrase_hints,omitempty"`
	InterimResults bool     `json:"interim_results"`
}

// Recognizer opens bidirectional recognition streams
type Recognizer interface {
	OpenStream(ctx context.Context, cfg StreamingConfig) (Stream, error)
}

// Stream is one bidirectional recognition exchange. Send and Recv may be
// called from different goroutines; Recv returns io.EOF when the service
// closes the stream cleanly.
type Stream interface {
	Send(audio []byte) error
	Recv() (Result, error)
	Close() error
}
