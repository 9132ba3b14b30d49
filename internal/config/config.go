package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Capture       CaptureConfig       `yaml:"capture"`
	Audio         AudioConfig         `yaml:"audio"`
	Segmenter     SegmenterConfig     `yaml:"segmenter"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Translation   TranslationConfig   `yaml:"translation"`
	HTTP          HTTPConfig          `yaml:"http"`
	Sentry        SentryConfig        `yaml:"sentry"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// CaptureConfig contains audio input device configuration
type CaptureConfig struct {
	InputFormat string `yaml:"input_format"` // ffmpeg input format (alsa, pulse, avfoundation, ...)
	Device      string `yaml:"device"`       // device identifier, e.g. "hw:1" or an index
	QueueSize   int    `yaml:"queue_size"`   // bounded frame queue capacity
}

// AudioConfig contains the fixed PCM feed parameters
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	BitDepth   int `yaml:"bit_depth"`
}

// SegmenterConfig contains voice-activity segmentation parameters
type SegmenterConfig struct {
	SilenceThreshold  int     `yaml:"silence_threshold"`   // mean-abs amplitude
	SilenceDuration   float64 `yaml:"silence_duration"`    // seconds of silence closing an utterance
	MinSpeechDuration float64 `yaml:"min_speech_duration"` // seconds
	MaxSpeechDuration float64 `yaml:"max_speech_duration"` // seconds
	Carryover         float64 `yaml:"carryover"`           // seconds kept across utterance boundaries
	PollTimeoutMs     int     `yaml:"poll_timeout_ms"`     // frame queue poll timeout
}

// TranscriptionConfig contains speech recognition backend configuration
type TranscriptionConfig struct {
	Backend  string `yaml:"backend"` // "whisper" or "openai"
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// TranslationConfig contains the Ollama translation endpoint configuration
type TranslationConfig struct {
	Endpoint  string `yaml:"endpoint"` // base URL, e.g. http://localhost:11434
	Model     string `yaml:"model"`
	Timeout   int    `yaml:"timeout"`    // seconds per generate call
	QueueSize int    `yaml:"queue_size"` // bounded task queue capacity
}

// HTTPConfig contains the monitoring/display API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// SentryConfig contains optional error reporting configuration
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file, then applies environment
// overrides for credentials and endpoints.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyEnv overlays environment variables onto the parsed configuration.
// Secrets never live in the YAML file checked into deployments.
func (c *Config) applyEnv() {
	c.Transcription.APIKey = getenv("OPENAI_API_KEY", c.Transcription.APIKey)
	c.Transcription.Endpoint = getenv("TRANSCRIPTION_ENDPOINT", c.Transcription.Endpoint)
	c.Translation.Endpoint = getenv("OLLAMA_URL", c.Translation.Endpoint)
	c.Sentry.DSN = getenv("SENTRY_DSN", c.Sentry.DSN)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Translation.Validate(); err != nil {
		return fmt.Errorf("translation config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates capture configuration
func (cc *CaptureConfig) Validate() error {
	if cc.InputFormat == "" {
		return fmt.Errorf("input_format cannot be empty")
	}

	if cc.Device == "" {
		return fmt.Errorf("device cannot be empty")
	}

	if cc.QueueSize < 8 {
		return fmt.Errorf("queue_size must be at least 8 frames, got %d", cc.QueueSize)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	return nil
}

// Validate validates segmenter configuration
func (s *SegmenterConfig) Validate() error {
	if s.SilenceThreshold < 1 {
		return fmt.Errorf("silence_threshold must be positive, got %d", s.SilenceThreshold)
	}

	if s.SilenceDuration <= 0 {
		return fmt.Errorf("silence_duration must be positive, got %f", s.SilenceDuration)
	}

	if s.MinSpeechDuration <= 0 {
		return fmt.Errorf("min_speech_duration must be positive, got %f", s.MinSpeechDuration)
	}

	if s.MaxSpeechDuration <= s.MinSpeechDuration {
		return fmt.Errorf("max_speech_duration (%f) must be greater than min_speech_duration (%f)",
			s.MaxSpeechDuration, s.MinSpeechDuration)
	}

	if s.Carryover < 0 {
		return fmt.Errorf("carryover cannot be negative, got %f", s.Carryover)
	}

	if s.PollTimeoutMs < 10 {
		return fmt.Errorf("poll_timeout_ms must be at least 10, got %d", s.PollTimeoutMs)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	switch t.Backend {
	case "whisper", "openai":
	default:
		return fmt.Errorf("backend must be 'whisper' or 'openai', got '%s'", t.Backend)
	}

	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Backend == "openai" && t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty for the openai backend")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	return nil
}

// Validate validates translation configuration
func (t *TranslationConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", t.QueueSize)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
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

// GetSilenceDuration returns the silence closure threshold as a time.Duration
func (s *SegmenterConfig) GetSilenceDuration() time.Duration {
	return time.Duration(s.SilenceDuration * float64(time.Second))
}

// GetMinSpeechDuration returns the minimum speech duration as a time.Duration
func (s *SegmenterConfig) GetMinSpeechDuration() time.Duration {
	return time.Duration(s.MinSpeechDuration * float64(time.Second))
}

// GetMaxSpeechDuration returns the maximum speech duration as a time.Duration
func (s *SegmenterConfig) GetMaxSpeechDuration() time.Duration {
	return time.Duration(s.MaxSpeechDuration * float64(time.Second))
}

// GetCarryover returns the carryover context span as a time.Duration
func (s *SegmenterConfig) GetCarryover() time.Duration {
	return time.Duration(s.Carryover * float64(time.Second))
}

// GetPollTimeout returns the frame queue poll timeout as a time.Duration
func (s *SegmenterConfig) GetPollTimeout() time.Duration {
	return time.Duration(s.PollTimeoutMs) * time.Millisecond
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the translation timeout as a time.Duration
func (t *TranslationConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
