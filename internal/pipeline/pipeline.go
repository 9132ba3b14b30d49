package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/live-subtitle-service/internal/audio"
	"github.com/skypro1111/live-subtitle-service/internal/capture"
	"github.com/skypro1111/live-subtitle-service/internal/metrics"
	"github.com/skypro1111/live-subtitle-service/internal/segment"
	"github.com/skypro1111/live-subtitle-service/internal/subtitle"
	"github.com/skypro1111/live-subtitle-service/internal/transcribe"
	"github.com/skypro1111/live-subtitle-service/internal/translate"
)

// Event types published on the pipeline event channel.
const (
	EventSubtitle = "subtitle"
	EventVolume   = "volume"
	EventStatus   = "status"
)

// Status strings published with EventStatus events.
const (
	StatusListening   = "listening"
	StatusRecognizing = "recognizing"
	StatusNoSpeech    = "no_speech"
	StatusRecognFail  = "recognition_failed"
	StatusTranslating = "translating"
)

// Event is one display-facing notification. Exactly one of the payload
// fields is meaningful depending on Type.
type Event struct {
	Type     string             `json:"type"`
	Snapshot *subtitle.Snapshot `json:"snapshot,omitempty"`
	Volume   int                `json:"volume,omitempty"`
	Status   string             `json:"status,omitempty"`
}

// Options configures a Pipeline.
type Options struct {
	Source      capture.Source
	Segmenter   *segment.Segmenter
	Transcriber transcribe.Transcriber
	Translator  translate.Generator

	Metrics *metrics.Metrics // optional

	PollTimeout          time.Duration
	TranscribeTimeout    time.Duration
	TranslateTimeout     time.Duration
	TranslationQueueSize int
	EventBuffer          int
}

// Stats aggregates the statistics of every pipeline stage
type Stats struct {
	Source     capture.SourceStats       `json:"source"`
	Segmenter  segment.Stats             `json:"segmenter"`
	Translator translate.DispatcherStats `json:"translator"`
	Subtitles  subtitle.Stats            `json:"subtitles"`

	DroppedEvents uint64 `json:"dropped_events"`
}

// Pipeline runs the full capture-to-subtitle flow.
type Pipeline struct {
	opts       Options
	tracker    *subtitle.Tracker
	dispatcher *translate.Dispatcher

	events chan Event

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex

	droppedEvents uint64
}

// New creates a pipeline. The subtitle tracker and translation dispatcher
// are built here so the translation callback can close over the tracker.
func New(opts Options) (*Pipeline, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if opts.Segmenter == nil {
		return nil, fmt.Errorf("segmenter cannot be nil")
	}
	if opts.Transcriber == nil {
		return nil, fmt.Errorf("transcriber cannot be nil")
	}
	if opts.Translator == nil {
		return nil, fmt.Errorf("translator cannot be nil")
	}

	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 100 * time.Millisecond
	}
	if opts.TranscribeTimeout <= 0 {
		opts.TranscribeTimeout = 30 * time.Second
	}
	if opts.TranslationQueueSize < 1 {
		opts.TranslationQueueSize = 16
	}
	if opts.EventBuffer < 1 {
		opts.EventBuffer = 64
	}

	p := &Pipeline{
		opts:    opts,
		tracker: subtitle.NewTracker(opts.EventBuffer),
		events:  make(chan Event, opts.EventBuffer),
	}

	dispatcher, err := translate.NewDispatcher(
		opts.Translator,
		opts.TranslationQueueSize,
		opts.TranslateTimeout,
		p.onTranslation,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	p.dispatcher = dispatcher

	return p, nil
}

// Start probes the translation endpoint, then launches the capture source
// and the processing goroutines. It fails fast when Ollama is not
// answering, matching the startup connection check of the display app.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("pipeline already started")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := p.opts.Translator.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("translation endpoint not ready: %w", err)
	}

	p.ctx, p.cancel = context.WithCancel(ctx)

	if err := p.opts.Source.Start(p.ctx); err != nil {
		p.cancel()
		return fmt.Errorf("failed to start capture source: %w", err)
	}

	p.dispatcher.Start()

	p.wg.Add(2)
	go p.run()
	go p.forwardSubtitles()

	p.started = true
	p.publish(Event{Type: EventStatus, Status: StatusListening})
	slog.Info("Pipeline started",
		"poll_timeout", p.opts.PollTimeout,
		"translation_queue", p.opts.TranslationQueueSize)

	return nil
}

// Stop shuts the pipeline down. The processing loop gets a bounded grace
// period so an in-flight recognition call cannot hold shutdown hostage.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	p.cancel()

	if err := p.opts.Source.Stop(); err != nil {
		slog.Warn("Capture source stop failed", "error", err)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		slog.Warn("Pipeline loops did not stop within grace period")
	}

	p.dispatcher.Stop()
	slog.Info("Pipeline stopped")
}

// Events returns the display-facing event channel.
func (p *Pipeline) Events() <-chan Event {
	return p.events
}

// Snapshot returns the current subtitle display state.
func (p *Pipeline) Snapshot() subtitle.Snapshot {
	return p.tracker.Snapshot()
}

// GetStats returns aggregated statistics from every stage
func (p *Pipeline) GetStats() Stats {
	p.mu.Lock()
	dropped := p.droppedEvents
	p.mu.Unlock()

	return Stats{
		Source:        p.opts.Source.Stats(),
		Segmenter:     p.opts.Segmenter.GetStats(),
		Translator:    p.dispatcher.GetStats(),
		Subtitles:     p.tracker.GetStats(),
		DroppedEvents: dropped,
	}
}

// run is the segmentation and recognition loop. A poll timeout on the
// frame channel drives the stall-closure rule; recognition runs inline so
// utterances are processed strictly in emission order.
func (p *Pipeline) run() {
	defer p.wg.Done()

	timer := time.NewTimer(p.opts.PollTimeout)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.opts.PollTimeout)

		select {
		case <-p.ctx.Done():
			p.flush()
			return

		case f, ok := <-p.opts.Source.Frames():
			if !ok {
				p.flush()
				return
			}
			p.handleFrame(f)

		case <-timer.C:
			if u := p.opts.Segmenter.FeedIdle(); u != nil {
				slog.Info("Utterance closed on input stall",
					"duration", u.Duration)
				p.processUtterance(p.ctx, u)
			}
		}
	}
}

func (p *Pipeline) handleFrame(f audio.Frame) {
	u, volume := p.opts.Segmenter.Feed(f)

	p.publish(Event{Type: EventVolume, Volume: volume})
	if m := p.opts.Metrics; m != nil {
		m.RecordFrameCaptured()
		m.SetCurrentVolume(volume)
	}

	if u != nil {
		slog.Info("Utterance closed",
			"reason", u.Reason.String(),
			"duration", u.Duration)
		p.processUtterance(p.ctx, u)
	}
}

// processUtterance recognizes one closed utterance and hands the text to
// the translation queue. Recognition failures only produce a status
// event; the loop keeps going.
func (p *Pipeline) processUtterance(parent context.Context, u *segment.Utterance) {
	if m := p.opts.Metrics; m != nil {
		m.RecordUtterance(u.Reason.String(), u.Duration.Seconds(), len(u.PCM))
		m.RecordTranscriptionRequest()
	}

	p.publish(Event{Type: EventStatus, Status: StatusRecognizing})

	ctx, cancel := context.WithTimeout(parent, p.opts.TranscribeTimeout)
	startTime := time.Now()
	result, err := p.opts.Transcriber.Transcribe(ctx, u.PCM)
	cancel()
	elapsed := time.Since(startTime)

	if err != nil {
		if errors.Is(err, transcribe.ErrNoSpeech) {
			if m := p.opts.Metrics; m != nil {
				m.RecordTranscriptionNoSpeech()
			}
			p.publish(Event{Type: EventStatus, Status: StatusNoSpeech})
			return
		}

		if m := p.opts.Metrics; m != nil {
			m.RecordTranscriptionFailure(elapsed.Seconds())
		}
		slog.Error("Recognition failed",
			"utterance_id", u.ID,
			"duration", u.Duration,
			"error", err)
		p.publish(Event{Type: EventStatus, Status: StatusRecognFail})
		return
	}

	if m := p.opts.Metrics; m != nil {
		m.RecordTranscriptionSuccess(elapsed.Seconds())
	}
	slog.Info("Utterance recognized",
		"language", result.Language,
		"text", result.Text,
		"elapsed", elapsed)

	p.tracker.OnRecognized(result.Text, result.Language)
	p.publish(Event{Type: EventStatus, Status: StatusTranslating})

	if p.dispatcher.Submit(result.Text, result.Language) {
		if m := p.opts.Metrics; m != nil {
			m.RecordTranslationTask()
		}
	} else if m := p.opts.Metrics; m != nil {
		m.RecordTranslationDropped()
	}
}

// onTranslation is the dispatcher callback. Stale results are counted and
// dropped by the tracker; failures show the failure marker instead.
func (p *Pipeline) onTranslation(r translate.Result) {
	m := p.opts.Metrics

	if r.Err != nil {
		if m != nil {
			m.RecordTranslationFailure(string(r.Kind), r.Elapsed.Seconds())
		}
		if !p.tracker.OnTranslationFailed(r.Original) {
			if m != nil {
				m.RecordStaleDiscard()
			}
		}
		return
	}

	if m != nil {
		m.RecordTranslationSuccess(r.Elapsed.Seconds())
	}
	if !p.tracker.OnTranslated(r.Original, r.Translated) {
		if m != nil {
			m.RecordStaleDiscard()
		}
	}
}

// forwardSubtitles republishes tracker snapshots as pipeline events.
func (p *Pipeline) forwardSubtitles() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case snap := <-p.tracker.Updates():
			p.publish(Event{Type: EventSubtitle, Snapshot: &snap})
		}
	}
}

// flush closes any in-progress utterance at shutdown and recognizes it if
// it is long enough to matter. The pipeline context is already cancelled
// here, so the final recognition gets its own deadline.
func (p *Pipeline) flush() {
	if u := p.opts.Segmenter.Flush(); u != nil {
		slog.Info("Flushing final utterance", "duration", u.Duration)
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.TranscribeTimeout)
		defer cancel()
		p.processUtterance(ctx, u)
	}
}

func (p *Pipeline) publish(e Event) {
	select {
	case p.events <- e:
	default:
		p.mu.Lock()
		p.droppedEvents++
		p.mu.Unlock()
	}
}
