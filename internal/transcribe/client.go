package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/live-subtitle-service/internal/audio"
)

// ErrNoSpeech is returned when the backend produced no usable text for an
// utterance. Responses of one character or less count as no speech; they
// are recognizer noise, not phrases worth displaying.
var ErrNoSpeech = errors.New("no speech recognized")

// Result is the outcome of one recognition call.
type Result struct {
	Text     string
	Language string
	Elapsed  time.Duration
}

// Transcriber converts a raw PCM utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (*Result, error)
}

// Config contains recognition backend configuration
type Config struct {
	Backend  string // "whisper" or "openai"
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// New creates the Transcriber selected by config.Backend.
func New(config Config) (Transcriber, error) {
	switch config.Backend {
	case "whisper":
		return NewWhisperClient(config)
	case "openai":
		return NewOpenAIClient(config)
	default:
		return nil, fmt.Errorf("unknown transcription backend '%s'", config.Backend)
	}
}

// WhisperClient provides HTTP client functionality for a local
// whisper-server transcription endpoint.
type WhisperClient struct {
	config     Config
	httpClient *http.Client

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	noSpeechResults uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// whisperResponse represents the response from whisper-server
type whisperResponse struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// ClientStats represents recognition client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	NoSpeechResults uint64        `json:"no_speech_results"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// NewWhisperClient creates a new whisper-server HTTP client
func NewWhisperClient(config Config) (*WhisperClient, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &WhisperClient{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Transcribe sends one utterance for recognition. The PCM bytes are
// wrapped in a WAV container and posted as multipart form data.
func (c *WhisperClient) Transcribe(ctx context.Context, pcm []byte) (*Result, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("empty utterance")
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	body, contentType, err := c.createMultipartRequest(pcm)
	if err != nil {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint, body)
	if err != nil {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var wr whisperResponse
	if err := json.Unmarshal(respBody, &wr); err != nil {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	elapsed := time.Since(startTime)

	text := cleanText(wr.Text)
	if isNoSpeech(text) {
		c.incrementNoSpeechResults()
		return nil, ErrNoSpeech
	}

	c.incrementSuccessRequests()
	c.updateAvgResponseTime(elapsed)

	return &Result{
		Text:     text,
		Language: wr.Language,
		Elapsed:  elapsed,
	}, nil
}

// createMultipartRequest creates a multipart/form-data request body
func (c *WhisperClient) createMultipartRequest(pcm []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	filename := fmt.Sprintf("%s.wav", uuid.NewString())
	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	wav, err := audio.EncodeWAV(pcm, audio.SampleRate)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode WAV: %w", err)
	}

	if _, err := fileWriter.Write(wav); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"response_format": "json",
	}
	if c.config.Model != "" {
		fields["model"] = c.config.Model
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// Statistics methods
func (c *WhisperClient) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *WhisperClient) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *WhisperClient) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *WhisperClient) incrementNoSpeechResults() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noSpeechResults++
}

func (c *WhisperClient) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *WhisperClient) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		NoSpeechResults: c.noSpeechResults,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
	}
}
