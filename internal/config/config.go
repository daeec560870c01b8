// Package config provides the configuration structure for the render-service.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                     string `toml:"url"`
	RenderRequestedSubject  string `toml:"render_requested_subject"`
	RenderObjectStoreBucket string `toml:"render_object_store_bucket"`
}

// HTTPConfig holds the configuration for the HTTP API.
type HTTPConfig struct {
	Port int `toml:"port"`
}

// SynthesisConfig holds the configuration for the vocal synthesis engine.
type SynthesisConfig struct {
	Engine         string  `toml:"engine"`
	BinaryPath     string  `toml:"binary_path"`
	ModelPath      string  `toml:"model_path"`
	ServiceURL     string  `toml:"service_url"`
	Seed           int     `toml:"seed"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// EffectsConfig holds the configuration for the delegated effects service.
type EffectsConfig struct {
	DelegatedURL   string `toml:"delegated_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TranscriptionConfig holds the configuration for the transcription service
// used to recover lyrics from guide tracks.
type TranscriptionConfig struct {
	URL      string `toml:"url"`
	APIKey   string `toml:"api_key"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

// VoicesConfig holds the configuration for voice model resolution.
type VoicesConfig struct {
	ModelsDir string `toml:"models_dir"`
}

// GuideConfig holds the configuration for guide-track vocal isolation.
type GuideConfig struct {
	DemucsBinary string `toml:"demucs_binary"`
}

// RenderConfig holds the configuration for render runs on disk.
type RenderConfig struct {
	OutputDir           string `toml:"output_dir"`
	StageTimeoutSeconds int    `toml:"stage_timeout_seconds"`
	RetentionHours      int    `toml:"retention_hours"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS          NATSConfig          `toml:"nats"`
	HTTP          HTTPConfig          `toml:"http"`
	Synthesis     SynthesisConfig     `toml:"synthesis"`
	Effects       EffectsConfig       `toml:"effects"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Voices        VoicesConfig        `toml:"voices"`
	Guide         GuideConfig         `toml:"guide"`
	Render        RenderConfig        `toml:"render"`
	Paths         PathsConfig         `toml:"paths"`
}

// Load loads the configuration for the render-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return &cfg, nil
}
