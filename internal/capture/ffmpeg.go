package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/skypro1111/live-subtitle-service/internal/audio"
)

// FFmpegConfig contains device capture configuration
type FFmpegConfig struct {
	InputFormat string // ffmpeg input format: alsa, pulse, avfoundation, dshow
	Device      string // device identifier for the input format
	QueueSize   int    // bounded frame queue capacity
}

// FFmpegSource captures live audio by running ffmpeg against an input
// device and slicing its s16le stdout stream into fixed-size frames.
// The read loop never blocks on the frame queue; frames the consumer
// cannot keep up with are dropped at this edge, mirroring what the device
// driver would do anyway.
type FFmpegSource struct {
	config FFmpegConfig
	logger *slog.Logger

	cmd    *exec.Cmd
	stdout io.ReadCloser
	frames chan audio.Frame

	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool

	captured uint64
	dropped  uint64

	mu sync.RWMutex
}

// NewFFmpegSource creates a device-backed frame source.
func NewFFmpegSource(config FFmpegConfig, logger *slog.Logger) (*FFmpegSource, error) {
	if config.InputFormat == "" {
		return nil, fmt.Errorf("input format cannot be empty")
	}
	if config.Device == "" {
		return nil, fmt.Errorf("device cannot be empty")
	}
	if config.QueueSize < 1 {
		config.QueueSize = 64
	}

	return &FFmpegSource{
		config: config,
		logger: logger,
		frames: make(chan audio.Frame, config.QueueSize),
		done:   make(chan struct{}),
	}, nil
}

// Start launches ffmpeg and begins pushing frames onto the queue.
// A launch failure is fatal to the pipeline; there is no automatic retry.
func (s *FFmpegSource) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// ffmpeg -f alsa -i hw:1 -ac 1 -ar 16000 -f s16le -
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", s.config.InputFormat,
		"-i", s.config.Device,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", audio.SampleRate),
		"-f", "s16le",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to open capture pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start audio capture on %s (%s): %w",
			s.config.Device, s.config.InputFormat, err)
	}

	s.cmd = cmd
	s.stdout = stdout

	s.logger.Info("Audio capture started",
		slog.String("input_format", s.config.InputFormat),
		slog.String("device", s.config.Device),
		slog.Int("sample_rate", audio.SampleRate),
		slog.Int("frame_samples", audio.FrameSamples),
	)

	go s.readLoop()

	return nil
}

// readLoop slices the PCM stream into frames until the pipe closes.
func (s *FFmpegSource) readLoop() {
	defer close(s.done)
	defer close(s.frames)

	buf := make([]byte, audio.FrameBytes)
	var seq uint64

	for {
		if _, err := io.ReadFull(s.stdout, buf); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				s.logger.Warn("Capture read failed", slog.String("error", err.Error()))
			}
			return
		}

		frame, err := audio.NewFrame(seq, buf)
		if err != nil {
			s.logger.Warn("Dropping malformed frame", slog.String("error", err.Error()))
			continue
		}
		seq++

		select {
		case s.frames <- frame:
			s.mu.Lock()
			s.captured++
			s.mu.Unlock()
		default:
			s.mu.Lock()
			s.dropped++
			dropped := s.dropped
			s.mu.Unlock()

			if dropped%100 == 1 {
				s.logger.Warn("Frame queue full, dropping audio",
					slog.Uint64("dropped_total", dropped),
				)
			}
		}
	}
}

// Frames returns the bounded frame queue.
func (s *FFmpegSource) Frames() <-chan audio.Frame {
	return s.frames
}

// Stop terminates ffmpeg and waits for the read loop to exit.
func (s *FFmpegSource) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	if s.cmd != nil {
		// The context kill closes stdout, which unblocks the read loop.
		err := s.cmd.Wait()
		<-s.done

		s.logger.Info("Audio capture stopped",
			slog.Uint64("frames_captured", s.Stats().FramesCaptured),
			slog.Uint64("frames_dropped", s.Stats().FramesDropped),
		)

		if err != nil && err.Error() != "signal: killed" {
			return fmt.Errorf("capture process exited with error: %w", err)
		}
	}

	return nil
}

// Stats returns current capture counters.
func (s *FFmpegSource) Stats() SourceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SourceStats{
		FramesCaptured: s.captured,
		FramesDropped:  s.dropped,
		QueueSize:      len(s.frames),
		QueueCapacity:  cap(s.frames),
	}
}
