// Package config provides configuration loading and validation for the
// offline transcription service. It handles YAML-based configuration with
// per-section struct validation.
package config
