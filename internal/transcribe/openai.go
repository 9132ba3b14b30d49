package transcribe

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/skypro1111/live-subtitle-service/internal/audio"
)

// OpenAIClient recognizes speech through the OpenAI audio transcription
// API. The utterance PCM is written to a temporary WAV file for the
// request and removed afterwards.
type OpenAIClient struct {
	config Config
	client *openai.Client

	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	noSpeechResults uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// NewOpenAIClient creates a new OpenAI transcription client
func NewOpenAIClient(config Config) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Model == "" {
		config.Model = openai.Whisper1
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.Endpoint != "" {
		clientConfig.BaseURL = config.Endpoint
	}

	return &OpenAIClient{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// Transcribe sends one utterance to the OpenAI transcription API.
func (c *OpenAIClient) Transcribe(ctx context.Context, pcm []byte) (*Result, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("empty utterance")
	}

	startTime := time.Now()
	c.incrementTotal()

	path, err := audio.WriteTempWAV(pcm, audio.SampleRate)
	if err != nil {
		c.incrementFailed()
		return nil, fmt.Errorf("failed to write temp WAV: %w", err)
	}
	defer os.Remove(path)

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.config.Model,
		FilePath: path,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		c.incrementFailed()
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}

	elapsed := time.Since(startTime)

	text := cleanText(resp.Text)
	if isNoSpeech(text) {
		c.incrementNoSpeech()
		return nil, ErrNoSpeech
	}

	c.incrementSuccess(elapsed)

	return &Result{
		Text:     text,
		Language: resp.Language,
		Elapsed:  elapsed,
	}, nil
}

func (c *OpenAIClient) incrementTotal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *OpenAIClient) incrementFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *OpenAIClient) incrementNoSpeech() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noSpeechResults++
}

func (c *OpenAIClient) incrementSuccess(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
	if c.avgResponseTime == 0 {
		c.avgResponseTime = elapsed
	} else {
		c.avgResponseTime = (c.avgResponseTime + elapsed) / 2
	}
}

// GetStats returns current client statistics
func (c *OpenAIClient) GetStats() ClientStats {
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
