package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Audio: AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			BitDepth:      16,
			ChunkMillis:   100,
			MaxReplaySecs: 5,
		},
		Stream: StreamConfig{
			BudgetMillis:    55000,
			RetryBackoff:    1.0,
			MaxRetryBackoff: 30.0,
		},
		Recognizer: RecognizerConfig{
			Endpoint:       "wss://speech.example.com/v1/stream",
			APIKey:         "test-key",
			Language:       "en-US",
			Model:          "command_and_search",
			InterimResults: true,
			Timeout:        10,
		},
		Publish: PublishConfig{
			BindAddress:  "127.0.0.1",
			Port:         7781,
			Path:         "/commands",
			ClientBuffer: 8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name:        "invalid sample rate",
			mutate:      func(c *Config) { c.Audio.SampleRate = 22050 },
			expectError: true,
			errorMsg:    "sample_rate",
		},
		{
			name:        "stereo rejected",
			mutate:      func(c *Config) { c.Audio.Channels = 2 },
			expectError: true,
			errorMsg:    "channels",
		},
		{
			name:        "chunk too small",
			mutate:      func(c *Config) { c.Audio.ChunkMillis = 5 },
			expectError: true,
			errorMsg:    "chunk_millis",
		},
		{
			name:        "budget below one second",
			mutate:      func(c *Config) { c.Stream.BudgetMillis = 500 },
			expectError: true,
			errorMsg:    "budget_millis",
		},
		{
			name:        "backoff ceiling below initial",
			mutate:      func(c *Config) { c.Stream.MaxRetryBackoff = 0.5 },
			expectError: true,
			errorMsg:    "max_retry_backoff",
		},
		{
			name:        "missing recognizer endpoint",
			mutate:      func(c *Config) { c.Recognizer.Endpoint = "" },
			expectError: true,
			errorMsg:    "endpoint",
		},
		{
			name:        "missing api key",
			mutate:      func(c *Config) { c.Recognizer.APIKey = "" },
			expectError: true,
			errorMsg:    "api_key",
		},
		{
			name:        "invalid publish port",
			mutate:      func(c *Config) { c.Publish.Port = 0 },
			expectError: true,
			errorMsg:    "port",
		},
		{
			name:        "publish path without slash",
			mutate:      func(c *Config) { c.Publish.Path = "commands" },
			expectError: true,
			errorMsg:    "path",
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
			errorMsg:    "level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected validation error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected valid config, got error: %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	yamlContent := `
audio:
  sample_rate: 16000
  channels: 1
  bit_depth: 16
  chunk_millis: 100
  max_replay_secs: 5
stream:
  budget_millis: 55000
  retry_backoff: 1.0
  max_retry_backoff: 30.0
recognizer:
  endpoint: "wss://speech.example.com/v1/stream"
  api_key: "file-key"
  language: "en-US"
  model: "command_and_search"
  interim_results: true
  timeout: 10
publish:
  bind_address: "127.0.0.1"
  port: 7781
  path: "/commands"
  client_buffer: 8
logging:
  level: "info"
  format: "text"
  output: "stdout"
`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", cfg.Audio.SampleRate)
	}

	if cfg.Stream.BudgetMillis != 55000 {
		t.Errorf("Expected budget 55000, got %d", cfg.Stream.BudgetMillis)
	}

	if cfg.Recognizer.APIKey != "file-key" {
		t.Errorf("Expected api key from file, got %q", cfg.Recognizer.APIKey)
	}
}

func TestLoadAPIKeyFromEnvironment(t *testing.T) {
	yamlContent := `
audio:
  sample_rate: 16000
  channels: 1
  bit_depth: 16
  chunk_millis: 100
  max_replay_secs: 5
stream:
  budget_millis: 55000
  retry_backoff: 1.0
  max_retry_backoff: 30.0
recognizer:
  endpoint: "wss://speech.example.com/v1/stream"
  language: "en-US"
  timeout: 10
publish:
  bind_address: "127.0.0.1"
  port: 7781
  path: "/commands"
  client_buffer: 8
logging:
  level: "info"
  format: "text"
  output: "stdout"
`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	t.Setenv(apiKeyEnv, "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Recognizer.APIKey != "env-key" {
		t.Errorf("Expected api key from environment, got %q", cfg.Recognizer.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := validConfig()

	if got := cfg.Audio.GetChunkDuration(); got != 100*time.Millisecond {
		t.Errorf("Expected chunk duration 100ms, got %v", got)
	}

	if got := cfg.Audio.ChunkSamples(); got != 1600 {
		t.Errorf("Expected 1600 samples per chunk, got %d", got)
	}

	if got := cfg.Audio.QueueDepth(); got != 50 {
		t.Errorf("Expected queue depth 50, got %d", got)
	}

	if got := cfg.Stream.GetBudgetDuration(); got != 55*time.Second {
		t.Errorf("Expected budget 55s, got %v", got)
	}

	if got := cfg.Stream.GetRetryBackoff(); got != time.Second {
		t.Errorf("Expected retry backoff 1s, got %v", got)
	}

	if got := cfg.Recognizer.GetTimeoutDuration(); got != 10*time.Second {
		t.Errorf("Expected timeout 10s, got %v", got)
	}
}
