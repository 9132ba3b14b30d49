package segment

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/live-subtitle-service/internal/audio"
)

// State represents the voice-activity state of the segmenter
type State int

const (
	StateIdle State = iota
	StateSpeaking
)

// CloseReason identifies which rule closed an utterance
type CloseReason int

const (
	// CloseSilence: enough accumulated silence after enough speech.
	CloseSilence CloseReason = iota
	// CloseMaxLength: buffered audio reached the length cap.
	CloseMaxLength
	// CloseShort: fast path for short phrases with a clearly quiet tail.
	CloseShort
	// CloseStall: no frame arrived within the poll timeout while speaking.
	CloseStall
)

// String returns the reason label used in logs and metrics.
func (r CloseReason) String() string {
	switch r {
	case CloseSilence:
		return "silence"
	case CloseMaxLength:
		return "max_length"
	case CloseShort:
		return "short_utterance"
	case CloseStall:
		return "stall"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Utterance is one contiguous detected speech segment, ready for
// transcription. Consumed exactly once and discarded afterwards.
type Utterance struct {
	ID       string
	PCM      []byte
	Duration time.Duration
	Reason   CloseReason
	StartSeq uint64
	EndSeq   uint64
}

// Config contains segmentation parameters. Durations are interpreted in
// whole frames, which makes closure decisions a pure function of the frame
// sequence rather than of wall-clock scheduling.
type Config struct {
	SilenceThreshold  int           // mean-abs amplitude separating speech from silence
	SilenceDuration   time.Duration // silence run closing an utterance
	MinSpeechDuration time.Duration // floor below which rules 1 and 3 never close
	MaxSpeechDuration time.Duration // hard length cap
	Carryover         time.Duration // trailing context retained across boundaries
}

// Fixed parameters of the short-utterance fast path.
const (
	shortMinBuffered = 1 * time.Second
	shortMinSilence  = 800 * time.Millisecond
)

// Segmenter consumes frames and emits utterances at detected boundaries.
// It is driven from a single goroutine; the mutex only guards the stats
// snapshot read from monitoring handlers.
type Segmenter struct {
	config Config

	state      State
	buffer     []audio.Frame
	carried    int // leading frames of buffer that are carryover context
	silenceRun int // consecutive sub-threshold frames while speaking

	// Statistics
	framesProcessed   uint64
	speechFrames      uint64
	utterancesEmitted uint64
	closuresByReason  map[CloseReason]uint64
	lastVolume        int

	mu sync.RWMutex
}

// Stats represents segmenter statistics
type Stats struct {
	State             string        `json:"state"`
	FramesProcessed   uint64        `json:"frames_processed"`
	SpeechFrames      uint64        `json:"speech_frames"`
	UtterancesEmitted uint64        `json:"utterances_emitted"`
	SilenceClosures   uint64        `json:"silence_closures"`
	MaxLengthClosures uint64        `json:"max_length_closures"`
	ShortClosures     uint64        `json:"short_closures"`
	StallClosures     uint64        `json:"stall_closures"`
	BufferedDuration  time.Duration `json:"buffered_duration"`
	LastVolume        int           `json:"last_volume"`
}

// New creates a segmenter.
func New(config Config) (*Segmenter, error) {
	if config.SilenceThreshold < 1 {
		return nil, fmt.Errorf("silence threshold must be positive, got %d", config.SilenceThreshold)
	}
	if config.SilenceDuration <= 0 {
		return nil, fmt.Errorf("silence duration must be positive, got %v", config.SilenceDuration)
	}
	if config.MinSpeechDuration <= 0 {
		return nil, fmt.Errorf("min speech duration must be positive, got %v", config.MinSpeechDuration)
	}
	if config.MaxSpeechDuration <= config.MinSpeechDuration {
		return nil, fmt.Errorf("max speech duration %v must exceed min %v",
			config.MaxSpeechDuration, config.MinSpeechDuration)
	}
	if config.Carryover < 0 {
		return nil, fmt.Errorf("carryover cannot be negative, got %v", config.Carryover)
	}

	return &Segmenter{
		config:           config,
		state:            StateIdle,
		closuresByReason: make(map[CloseReason]uint64),
	}, nil
}

// Feed runs one frame through the state machine. It returns the closed
// utterance when this frame completed a boundary, or nil, plus the frame's
// volume reading.
func (s *Segmenter) Feed(f audio.Frame) (*Utterance, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	volume := f.Volume()
	s.framesProcessed++
	s.lastVolume = volume

	if volume > s.config.SilenceThreshold {
		s.speechFrames++
		s.silenceRun = 0
		if s.state == StateIdle {
			// The buffer already holds the carryover tail of the
			// previous utterance, if any.
			s.state = StateSpeaking
		}
		s.buffer = append(s.buffer, f)
	} else {
		if s.state == StateSpeaking {
			// Silence frames inside an utterance are kept; they are
			// part of the phrase's natural pauses.
			s.silenceRun++
			s.buffer = append(s.buffer, f)
		}
		// Idle silence does no buffering beyond the retained carryover,
		// so continuous silence costs no memory.
	}

	if s.state != StateSpeaking {
		return nil, volume
	}

	buffered := frameSpan(len(s.buffer))
	silence := frameSpan(s.silenceRun)

	switch {
	case silence >= s.config.SilenceDuration && buffered >= s.config.MinSpeechDuration:
		return s.close(CloseSilence), volume
	case buffered >= s.config.MaxSpeechDuration:
		return s.close(CloseMaxLength), volume
	case buffered >= shortMinBuffered && silence >= shortMinSilence &&
		volume < s.config.SilenceThreshold*7/10:
		return s.close(CloseShort), volume
	}

	return nil, volume
}

// FeedIdle handles a poll timeout on the frame queue: an in-progress
// utterance is closed immediately so a device-level input gap cannot stall
// it indefinitely. Returns nil when there is nothing worth closing.
func (s *Segmenter) FeedIdle() *Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateSpeaking {
		return nil
	}
	if frameSpan(len(s.buffer)) < s.config.MinSpeechDuration {
		return nil
	}

	return s.close(CloseStall)
}

// Flush closes any in-progress utterance at shutdown. Buffers shorter than
// the minimum speech duration are abandoned.
func (s *Segmenter) Flush() *Utterance {
	u := s.FeedIdle()

	s.mu.Lock()
	s.state = StateIdle
	s.buffer = nil
	s.carried = 0
	s.silenceRun = 0
	s.mu.Unlock()

	return u
}

// close emits the buffered frames as an utterance and retains the trailing
// carryover context for the next buffer. Callers hold the mutex.
func (s *Segmenter) close(reason CloseReason) *Utterance {
	pcm := make([]byte, 0, len(s.buffer)*audio.FrameBytes)
	for _, f := range s.buffer {
		pcm = append(pcm, f.Data...)
	}

	u := &Utterance{
		ID:       uuid.NewString(),
		PCM:      pcm,
		Duration: frameSpan(len(s.buffer)),
		Reason:   reason,
		StartSeq: s.buffer[0].Seq,
		EndSeq:   s.buffer[len(s.buffer)-1].Seq,
	}

	keep := int(s.config.Carryover / audio.FrameDuration)
	if keep > len(s.buffer) {
		keep = len(s.buffer)
	}
	if keep > 0 {
		tail := make([]audio.Frame, keep)
		copy(tail, s.buffer[len(s.buffer)-keep:])
		s.buffer = tail
	} else {
		s.buffer = nil
	}
	s.carried = keep

	s.state = StateIdle
	s.silenceRun = 0
	s.utterancesEmitted++
	s.closuresByReason[reason]++

	return u
}

// State returns the current voice-activity state.
func (s *Segmenter) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// CarriedFrames returns how many leading frames of the current buffer are
// carryover context from the previous utterance.
func (s *Segmenter) CarriedFrames() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.carried
}

// GetStats returns a snapshot of segmenter statistics.
func (s *Segmenter) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stateStr := "idle"
	if s.state == StateSpeaking {
		stateStr = "speaking"
	}

	return Stats{
		State:             stateStr,
		FramesProcessed:   s.framesProcessed,
		SpeechFrames:      s.speechFrames,
		UtterancesEmitted: s.utterancesEmitted,
		SilenceClosures:   s.closuresByReason[CloseSilence],
		MaxLengthClosures: s.closuresByReason[CloseMaxLength],
		ShortClosures:     s.closuresByReason[CloseShort],
		StallClosures:     s.closuresByReason[CloseStall],
		BufferedDuration:  frameSpan(len(s.buffer)),
		LastVolume:        s.lastVolume,
	}
}

// frameSpan converts a frame count to its play time.
func frameSpan(frames int) time.Duration {
	return time.Duration(frames) * audio.FrameDuration
}
