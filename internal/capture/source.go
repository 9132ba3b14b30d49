package capture

import (
	"context"
	"sync"

	"github.com/skypro1111/live-subtitle-service/internal/audio"
)

// Source produces fixed-size PCM frames from some audio input.
type Source interface {
	// Start begins producing frames. The context bounds the source's
	// lifetime; cancelling it stops production.
	Start(ctx context.Context) error

	// Frames returns the bounded frame queue. The channel is closed when
	// the source stops.
	Frames() <-chan audio.Frame

	// Stop releases the underlying device and waits for the producer to
	// exit. Safe to call more than once.
	Stop() error

	// Stats returns capture counters for monitoring.
	Stats() SourceStats
}

// SourceStats represents frame capture statistics
type SourceStats struct {
	FramesCaptured uint64 `json:"frames_captured"`
	FramesDropped  uint64 `json:"frames_dropped"`
	QueueSize      int    `json:"queue_size"`
	QueueCapacity  int    `json:"queue_capacity"`
}

// ReplaySource feeds a fixed PCM recording through the frame queue. Used
// for synthetic feeds and tests; partial trailing frames are discarded.
type ReplaySource struct {
	pcm    []byte
	frames chan audio.Frame

	captured uint64
	dropped  uint64

	mu sync.RWMutex
}

// NewReplaySource creates a source that replays the given PCM bytes.
func NewReplaySource(pcm []byte, queueSize int) *ReplaySource {
	if queueSize < 1 {
		queueSize = 64
	}
	return &ReplaySource{
		pcm:    pcm,
		frames: make(chan audio.Frame, queueSize),
	}
}

// Start slices the recording into frames and enqueues them. Frames that do
// not fit the queue are dropped, matching the live capture contract.
func (r *ReplaySource) Start(ctx context.Context) error {
	go func() {
		defer close(r.frames)

		var seq uint64
		for off := 0; off+audio.FrameBytes <= len(r.pcm); off += audio.FrameBytes {
			if ctx.Err() != nil {
				return
			}

			frame, err := audio.NewFrame(seq, r.pcm[off:off+audio.FrameBytes])
			if err != nil {
				return
			}
			seq++

			select {
			case r.frames <- frame:
				r.mu.Lock()
				r.captured++
				r.mu.Unlock()
			default:
				r.mu.Lock()
				r.dropped++
				r.mu.Unlock()
			}
		}
	}()

	return nil
}

// Frames returns the frame queue.
func (r *ReplaySource) Frames() <-chan audio.Frame {
	return r.frames
}

// Stop is a no-op for replay sources; the producer exits on its own.
func (r *ReplaySource) Stop() error {
	return nil
}

// Stats returns current capture counters.
func (r *ReplaySource) Stats() SourceStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return SourceStats{
		FramesCaptured: r.captured,
		FramesDropped:  r.dropped,
		QueueSize:      len(r.frames),
		QueueCapacity:  cap(r.frames),
	}
}
