package recognizer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Config contains recognition client configuration
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration // websocket handshake timeout, 0 = dialer default
}

// Client provides websocket streaming access to the recognition service
type Client struct {
	config Config
	dialer *websocket.Dialer
	logger *slog.Logger

	// Statistics
	streamsOpened   uint64
	resultsReceived uint64
	malformedSkipped uint64
	streamErrors    uint64
	mu              sync.RWMutex
}

// ClientStats represents client statistics
type ClientStats struct {
	StreamsOpened    uint64 `json:"streams_opened"`
	ResultsReceived  uint64 `json:"results_received"`
	MalformedSkipped uint64 `json:"malformed_skipped"`
	StreamErrors     uint64 `json:"stream_errors"`
}

// NewClient creates a new recognition client. An empty endpoint or API key is
// an unrecoverable configuration error.
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 45 * time.Second,
	}
	if config.Timeout > 0 {
		dialer.HandshakeTimeout = config.Timeout
	}

	return &Client{
		config: config,
		dialer: dialer,
		logger: logger,
	}, nil
}

// OpenStream dials the service and performs the configuration handshake.
// Audio frames sent afterwards are transcribed until the stream is closed.
func (c *Client) OpenStream(ctx context.Context, cfg StreamingConfig) (Stream, error) {
	header := http.Header{
		"Authorization": {fmt.Sprintf("Bearer %s", c.config.APIKey)},
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.config.Endpoint, header)
	if err != nil {
		c.recordError()
		if resp != nil {
			return nil, fmt.Errorf("failed to dial recognition service (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial recognition service: %w", err)
	}

	handshake := configFrame{Config: cfg}
	if err := conn.WriteJSON(handshake); err != nil {
		conn.Close()
		c.recordError()
		return nil, fmt.Errorf("failed to send configuration handshake: %w", err)
	}

	c.mu.Lock()
	c.streamsOpened++
	c.mu.Unlock()

	c.logger.Debug("Recognition stream opened",
		slog.String("endpoint", c.config.Endpoint),
		slog.Int("sample_rate", cfg.SampleRate),
		slog.String("language", cfg.Language),
		slog.Bool("interim_results", cfg.InterimResults),
	)

	return &wsStream{conn: conn, client: c}, nil
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ClientStats{
		StreamsOpened:    c.streamsOpened,
		ResultsReceived:  c.resultsReceived,
		MalformedSkipped: c.malformedSkipped,
		StreamErrors:     c.streamErrors,
	}
}

func (c *Client) recordError() {
	c.mu.Lock()
	c.streamErrors++
	c.mu.Unlock()
}

// configFrame is the first message on every stream
type configFrame struct {
	Config StreamingConfig `json:"config"`
}

// resultFrame mirrors the service's streaming response. Only the first
// result and its top alternative are consulted.
type resultFrame struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
		Stability float64 `json:"stability"`
		IsFinal   bool    `json:"is_final"`
	} `json:"results"`
	Error string `json:"error,omitempty"`
}

// wsStream is one open recognition exchange over a websocket connection
type wsStream struct {
	conn   *websocket.Conn
	client *Client

	writeMu sync.Mutex
	closed  bool
}

// Send forwards one audio chunk as a binary frame
func (s *wsStream) Send(audio []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return fmt.Errorf("stream is closed")
	}

	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		s.client.recordError()
		return fmt.Errorf("failed to send audio frame: %w", err)
	}

	return nil
}

// Recv blocks for the next transcript result. Responses without results or
// alternatives are skipped here and never surface downstream. A clean close
// from the service is reported as io.EOF.
func (s *wsStream) Recv() (Result, error) {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Result{}, io.EOF
			}
			s.client.recordError()
			return Result{}, fmt.Errorf("failed to read recognition response: %w", err)
		}

		var frame resultFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			s.client.mu.Lock()
			s.client.malformedSkipped++
			s.client.mu.Unlock()

			s.client.logger.Warn("Skipping unparseable recognition response",
				slog.Int("size", len(message)),
				slog.String("error", err.Error()),
			)
			continue
		}

		if frame.Error != "" {
			s.client.recordError()
			return Result{}, fmt.Errorf("recognition service error: %s", frame.Error)
		}

		if len(frame.Results) == 0 || len(frame.Results[0].Alternatives) == 0 {
			s.client.mu.Lock()
			s.client.malformedSkipped++
			s.client.mu.Unlock()
			continue
		}

		result := frame.Results[0]

		s.client.mu.Lock()
		s.client.resultsReceived++
		s.client.mu.Unlock()

		return Result{
			Transcript: result.Alternatives[0].Transcript,
			Stability:  result.Stability,
			IsFinal:    result.IsFinal,
		}, nil
	}
}

// Close sends a close frame and tears down the connection, unblocking any
// concurrent Recv. Safe to call more than once.
func (s *wsStream) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// Best effort: the service may already be gone.
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))

	return s.conn.Close()
}
