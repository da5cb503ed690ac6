package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Anantak/chip-voice-relay/internal/command"
	"github.com/Anantak/chip-voice-relay/internal/config"
	"github.com/Anantak/chip-voice-relay/internal/metrics"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

// Hub broadcasts command messages to websocket subscribers. Delivery is best
// effort: publishing succeeds regardless of subscriber count, and a slow
// subscriber loses messages rather than slowing the relay down. Each
// subscriber keeps its own bounded send queue.
type Hub struct {
	logger       *slog.Logger
	metrics      *metrics.Metrics
	clientBuffer int
	path         string

	server   *http.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	// Statistics
	published      uint64
	dropped        uint64
	publishedBytes uint64

	// Extra stats sections exposed on /stats, registered before Start
	extra map[string]func() interface{}

	startTime time.Time
}

// Stats represents publish hub statistics
type Stats struct {
	Subscribers    int    `json:"subscribers"`
	Published      uint64 `json:"published"`
	Dropped        uint64 `json:"dropped"`
	PublishedBytes uint64 `json:"published_bytes"`
}

// client is one connected subscriber with its bounded send queue
type client struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	closeOnce sync.Once
}

// NewHub creates a publish hub serving the configured websocket endpoint
// plus health, stats and Prometheus metrics routes
func NewHub(cfg config.PublishConfig, logger *slog.Logger, m *metrics.Metrics) *Hub {
	h := &Hub{
		logger:       logger,
		metrics:      m,
		clientBuffer: cfg.ClientBuffer,
		path:         cfg.Path,
		clients:      make(map[*client]struct{}),
		extra:        make(map[string]func() interface{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Subscribers are robot-side tools on the local network, not
			// browsers with meaningful origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, h.handleSubscribe)
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/stats", h.handleStats)
	mux.Handle("/metrics", promhttp.Handler())

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// RegisterStats adds a named section to the /stats response. Must be called
// before Start.
func (h *Hub) RegisterStats(name string, fn func() interface{}) {
	h.extra[name] = fn
}

// Start begins accepting subscribers
func (h *Hub) Start() error {
	h.logger.Info("Starting publish hub",
		slog.String("address", h.server.Addr),
		slog.String("path", h.path),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("Publish hub server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop disconnects all subscribers and shuts the server down
func (h *Hub) Stop(ctx context.Context) error {
	h.logger.Info("Stopping publish hub...")

	h.mu.Lock()
	for c := range h.clients {
		c.shutdown()
		delete(h.clients, c)
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetSubscribers(0)
	}

	return h.server.Shutdown(ctx)
}

// Publish broadcasts one command message to every connected subscriber.
// Subscribers whose send queue is full lose the message. Publishing with no
// subscribers connected succeeds and the message is gone.
func (h *Hub) Publish(msg command.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode command message: %w", err)
	}

	h.mu.Lock()
	h.published++
	h.publishedBytes += uint64(len(data))

	subscribers := len(h.clients)
	dropped := 0
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped++
			dropped++
		}
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordPublishedBytes(len(data))
		for i := 0; i < dropped; i++ {
			h.metrics.RecordMessageDropped()
		}
	}

	h.logger.Debug("Command broadcast",
		slog.String("payload", string(data)),
		slog.Int("subscribers", subscribers),
		slog.Int("dropped", dropped),
	)

	return nil
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	return Stats{
		Subscribers:    len(h.clients),
		Published:      h.published,
		Dropped:        h.dropped,
		PublishedBytes: h.publishedBytes,
	}
}

// handleSubscribe upgrades the connection and registers the subscriber
func (h *Hub) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, h.clientBuffer),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetSubscribers(count)
	}

	h.logger.Info("Subscriber connected",
		slog.String("remote", r.RemoteAddr),
		slog.Int("subscribers", count),
	)

	go c.writePump()
	go c.readPump()
}

// remove unregisters a subscriber after its connection ended
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		c.shutdown()
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}

	if h.metrics != nil {
		h.metrics.SetSubscribers(count)
	}

	h.logger.Info("Subscriber disconnected", slog.Int("subscribers", count))
}

// shutdown closes the send queue exactly once. Callers must hold or have
// held the hub lock so no Publish races the close.
func (c *client) shutdown() {
	c.closeOnce.Do(func() { close(c.send) })
}

// writePump forwards queued messages to the peer and keeps the connection
// alive with pings
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames and detects the peer going away
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debug("Subscriber read error", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// handleHealth implements the /health endpoint
func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name": "chip-voice-relay",
		},
		"publish": map[string]interface{}{
			"subscribers": stats.Subscribers,
			"published":   stats.Published,
			"dropped":     stats.Dropped,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStats implements the /stats endpoint
func (h *Hub) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"publish":   h.GetStats(),
	}

	for name, fn := range h.extra {
		stats[name] = fn()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
