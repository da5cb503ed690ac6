package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/Anantak/chip-voice-relay/internal/metrics"
)

// Source produces a continuous stream of raw PCM chunks. Read blocks until
// audio is available and returns io.EOF after Close. A Source is
// non-restartable: once closed it stays closed.
type Source interface {
	Open() error
	Read() ([]byte, error)
	Close() error
}

// Config contains microphone capture parameters
type Config struct {
	SampleRate   int
	Channels     int
	ChunkSamples int // samples per capture chunk
	QueueDepth   int // capture queue capacity in chunks
	DeviceID     int // 0 = default input device
}

// Microphone is a portaudio-backed Source. The portaudio callback runs
// concurrently with the consumer and fills the queue regardless of whether
// anyone is reading, so the device buffer never overflows.
type Microphone struct {
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	queue  *Queue
	stream *portaudio.Stream

	mu     sync.Mutex
	opened bool
	closed bool
}

// NewMicrophone creates a microphone source with the given capture parameters
func NewMicrophone(config Config, logger *slog.Logger, m *metrics.Metrics) *Microphone {
	return &Microphone{
		config:  config,
		logger:  logger,
		metrics: m,
		queue:   NewQueue(config.QueueDepth),
	}
}

// Open acquires the input device and begins asynchronous capture
func (mic *Microphone) Open() error {
	mic.mu.Lock()
	defer mic.mu.Unlock()

	if mic.closed {
		return fmt.Errorf("microphone already closed")
	}
	if mic.opened {
		return fmt.Errorf("microphone already open")
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	stream, err := mic.openStream()
	if err != nil {
		portaudio.Terminate()
		return err
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start capture stream: %w", err)
	}

	mic.stream = stream
	mic.opened = true

	mic.logger.Info("Microphone capture started",
		slog.Int("sample_rate", mic.config.SampleRate),
		slog.Int("chunk_samples", mic.config.ChunkSamples),
		slog.Int("queue_depth", mic.config.QueueDepth),
	)

	return nil
}

// openStream opens either the default input device or the configured one
func (mic *Microphone) openStream() (*portaudio.Stream, error) {
	if mic.config.DeviceID == 0 {
		stream, err := portaudio.OpenDefaultStream(
			mic.config.Channels, 0, float64(mic.config.SampleRate),
			mic.config.ChunkSamples, mic.fillBuffer)
		if err != nil {
			return nil, fmt.Errorf("failed to open default input device: %w", err)
		}
		return stream, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate audio devices: %w", err)
	}

	if mic.config.DeviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device id %d (have %d devices)", mic.config.DeviceID, len(devices))
	}

	device := devices[mic.config.DeviceID]
	if device.MaxInputChannels == 0 {
		return nil, fmt.Errorf("device %d (%s) is not an input device", mic.config.DeviceID, device.Name)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: mic.config.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(mic.config.SampleRate),
		FramesPerBuffer: mic.config.ChunkSamples,
	}

	stream, err := portaudio.OpenStream(params, mic.fillBuffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open input device %d (%s): %w", mic.config.DeviceID, device.Name, err)
	}

	mic.logger.Info("Using audio input device",
		slog.Int("device_id", mic.config.DeviceID),
		slog.String("device_name", device.Name),
	)

	return stream, nil
}

// fillBuffer is the portaudio capture callback. It must never block.
func (mic *Microphone) fillBuffer(in []int16) {
	if len(in) == 0 {
		return
	}

	chunk := make([]byte, len(in)*2)
	for i, sample := range in {
		binary.LittleEndian.PutUint16(chunk[i*2:], uint16(sample))
	}

	evicted := mic.queue.Push(chunk)

	if mic.metrics != nil {
		mic.metrics.RecordChunkCaptured()
		if evicted {
			mic.metrics.RecordChunkDropped()
		}
		mic.metrics.SetQueueSize(mic.queue.Len())
	}
}

// Read returns the next captured chunk, coalescing any queued backlog.
// It blocks until audio arrives and returns io.EOF after Close.
func (mic *Microphone) Read() ([]byte, error) {
	return mic.queue.Read()
}

// Close stops capture, queues the end sentinel and releases the device.
// Safe to call more than once.
func (mic *Microphone) Close() error {
	mic.mu.Lock()
	defer mic.mu.Unlock()

	if mic.closed {
		return nil
	}
	mic.closed = true

	var firstErr error

	if mic.opened {
		if err := mic.stream.Stop(); err != nil {
			firstErr = fmt.Errorf("failed to stop capture stream: %w", err)
		}
		if err := mic.stream.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close capture stream: %w", err)
		}
	}

	// Sentinel goes in after the stream stopped so no capture callback can
	// queue audio behind it.
	mic.queue.CloseInput()

	if mic.opened {
		if err := portaudio.Terminate(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to terminate portaudio: %w", err)
		}
		mic.logger.Info("Microphone capture stopped")
	}

	return firstErr
}
