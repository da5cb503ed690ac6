package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete relay configuration
type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	Stream     StreamConfig     `yaml:"stream"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Publish    PublishConfig    `yaml:"publish"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// AudioConfig contains microphone capture parameters
type AudioConfig struct {
	SampleRate    int `yaml:"sample_rate"`
	Channels      int `yaml:"channels"`
	BitDepth      int `yaml:"bit_depth"`
	ChunkMillis   int `yaml:"chunk_millis"`    // duration of one capture chunk
	MaxReplaySecs int `yaml:"max_replay_secs"` // capture queue depth in seconds
	DeviceID      int `yaml:"device_id"`       // 0 = default input device
}

// StreamConfig contains resumable session parameters
type StreamConfig struct {
	BudgetMillis      int     `yaml:"budget_millis"`       // single-stream time budget
	RetryBackoff      float64 `yaml:"retry_backoff"`       // initial backoff, seconds
	MaxRetryBackoff   float64 `yaml:"max_retry_backoff"`   // backoff ceiling, seconds
}

// RecognizerConfig contains streaming recognition service configuration
type RecognizerConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Language       string `yaml:"language"`
	Model          string `yaml:"model"`
	InterimResults bool   `yaml:"interim_results"`
	Timeout        int    `yaml:"timeout"` // dial timeout, seconds
}

// PublishConfig contains command broadcast endpoint configuration
type PublishConfig struct {
	BindAddress  string `yaml:"bind_address"`
	Port         int    `yaml:"port"`
	Path         string `yaml:"path"`
	ClientBuffer int    `yaml:"client_buffer"` // per-subscriber queued messages
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// apiKeyEnv overrides recognizer.api_key when set, keeping the credential
// out of the config file.
const apiKeyEnv = "CHIP_RECOGNIZER_API_KEY"

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if key := os.Getenv(apiKeyEnv); key != "" {
		config.Recognizer.APIKey = key
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}

	if err := c.Recognizer.Validate(); err != nil {
		return fmt.Errorf("recognizer config: %w", err)
	}

	if err := c.Publish.Validate(); err != nil {
		return fmt.Errorf("publish config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio capture configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 8000 && a.SampleRate != 16000 && a.SampleRate != 44100 && a.SampleRate != 48000 {
		return fmt.Errorf("sample_rate must be one of [8000, 16000, 44100, 48000], got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.ChunkMillis < 10 || a.ChunkMillis > 1000 {
		return fmt.Errorf("chunk_millis must be between 10 and 1000, got %d", a.ChunkMillis)
	}

	if a.MaxReplaySecs < 1 {
		return fmt.Errorf("max_replay_secs must be at least 1, got %d", a.MaxReplaySecs)
	}

	if a.DeviceID < 0 {
		return fmt.Errorf("device_id cannot be negative, got %d", a.DeviceID)
	}

	return nil
}

// Validate validates stream session configuration
func (s *StreamConfig) Validate() error {
	if s.BudgetMillis < 1000 {
		return fmt.Errorf("budget_millis must be at least 1000, got %d", s.BudgetMillis)
	}

	if s.RetryBackoff <= 0 {
		return fmt.Errorf("retry_backoff must be positive, got %f", s.RetryBackoff)
	}

	if s.MaxRetryBackoff < s.RetryBackoff {
		return fmt.Errorf("max_retry_backoff (%f) must be at least retry_backoff (%f)",
			s.MaxRetryBackoff, s.RetryBackoff)
	}

	return nil
}

// Validate validates recognizer configuration
func (r *RecognizerConfig) Validate() error {
	if r.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if r.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set it in the config file or via %s)", apiKeyEnv)
	}

	if r.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}

	return nil
}

// Validate validates publish endpoint configuration
func (p *PublishConfig) Validate() error {
	if p.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", p.Port)
	}

	if p.Path == "" || p.Path[0] != '/' {
		return fmt.Errorf("path must start with '/', got '%s'", p.Path)
	}

	if p.ClientBuffer < 1 {
		return fmt.Errorf("client_buffer must be at least 1, got %d", p.ClientBuffer)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetChunkDuration returns the capture chunk duration as a time.Duration
func (a *AudioConfig) GetChunkDuration() time.Duration {
	return time.Duration(a.ChunkMillis) * time.Millisecond
}

// ChunkSamples returns the number of samples in one capture chunk
func (a *AudioConfig) ChunkSamples() int {
	return a.SampleRate * a.ChunkMillis / 1000
}

// QueueDepth returns the capture queue capacity in chunks, derived from the
// replay margin.
func (a *AudioConfig) QueueDepth() int {
	chunksPerSecond := 1000 / a.ChunkMillis
	if chunksPerSecond < 1 {
		chunksPerSecond = 1
	}
	return a.MaxReplaySecs * chunksPerSecond
}

// GetBudgetDuration returns the single-stream time budget as a time.Duration
func (s *StreamConfig) GetBudgetDuration() time.Duration {
	return time.Duration(s.BudgetMillis) * time.Millisecond
}

// GetRetryBackoff returns the initial retry backoff as a time.Duration
func (s *StreamConfig) GetRetryBackoff() time.Duration {
	return time.Duration(s.RetryBackoff * float64(time.Second))
}

// GetMaxRetryBackoff returns the retry backoff ceiling as a time.Duration
func (s *StreamConfig) GetMaxRetryBackoff() time.Duration {
	return time.Duration(s.MaxRetryBackoff * float64(time.Second))
}

// GetTimeoutDuration returns the recognizer dial timeout as a time.Duration
func (r *RecognizerConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}
