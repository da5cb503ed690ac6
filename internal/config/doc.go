// Package config provides configuration loading and validation for the voice command relay.
// It handles YAML-based configuration with per-section validation and supports
// overriding the recognizer credential from the environment.
package config
