package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skypro1111/live-subtitle-service/internal/audio"
	"github.com/skypro1111/live-subtitle-service/internal/capture"
	"github.com/skypro1111/live-subtitle-service/internal/segment"
	"github.com/skypro1111/live-subtitle-service/internal/subtitle"
	"github.com/skypro1111/live-subtitle-service/internal/transcribe"
)

// appendFrames appends n frames of constant amplitude to a PCM recording.
func appendFrames(pcm []byte, n int, amp int16) []byte {
	samples := make([]int16, audio.FrameSamples)
	for i := range samples {
		samples[i] = amp
	}
	frame := audio.Bytes(samples)
	for i := 0; i < n; i++ {
		pcm = append(pcm, frame...)
	}
	return pcm
}

// scriptTranscriber answers recognition calls from a fixed script.
type scriptTranscriber struct {
	mu    sync.Mutex
	texts []string
	idx   int
}

func (s *scriptTranscriber) Transcribe(ctx context.Context, pcm []byte) (*transcribe.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.texts) {
		return nil, transcribe.ErrNoSpeech
	}
	text := s.texts[s.idx]
	s.idx++
	return &transcribe.Result{Text: text, Language: "en"}, nil
}

// gateTranslator answers prompts by substring match and can hold a
// specific answer back until its gate is released.
type gateTranslator struct {
	answers map[string]string
	gates   map[string]chan struct{}
	fail    map[string]error
}

func (g *gateTranslator) Generate(ctx context.Context, prompt string) (string, error) {
	for key, err := range g.fail {
		if strings.Contains(prompt, key) {
			return "", err
		}
	}
	for key, answer := range g.answers {
		if !strings.Contains(prompt, key) {
			continue
		}
		if gate, ok := g.gates[key]; ok {
			select {
			case <-gate:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return answer, nil
	}
	return "", errors.New("no stub answer")
}

func (g *gateTranslator) Ping(ctx context.Context) error { return nil }

func testSegmenter(t *testing.T) *segment.Segmenter {
	t.Helper()
	s, err := segment.New(segment.Config{
		SilenceThreshold:  100,
		SilenceDuration:   1200 * time.Millisecond,
		MinSpeechDuration: 500 * time.Millisecond,
		MaxSpeechDuration: 8 * time.Second,
		Carryover:         300 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create segmenter: %v", err)
	}
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// speechThenSilence builds one utterance's worth of audio: speech frames
// followed by a sub-threshold tail loud enough to dodge the fast path.
func speechThenSilence(pcm []byte) []byte {
	pcm = appendFrames(pcm, 10, 500)
	return appendFrames(pcm, 25, 80)
}

func TestPipelineEndToEnd(t *testing.T) {
	pcm := speechThenSilence(nil)
	source := capture.NewReplaySource(pcm, len(pcm)/audio.FrameBytes+8)

	p, err := New(Options{
		Source:      source,
		Segmenter:   testSegmenter(t),
		Transcriber: &scriptTranscriber{texts: []string{"hello world"}},
		Translator: &gateTranslator{answers: map[string]string{
			"hello world": "你好世界",
		}},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	waitFor(t, "translated subtitle", func() bool {
		snap := p.Snapshot()
		return snap.Current.Original == "hello world" && snap.Current.Translation == "你好世界"
	})

	snap := p.Snapshot()
	if snap.Current.Language != "en" {
		t.Errorf("Expected language en, got %q", snap.Current.Language)
	}

	stats := p.GetStats()
	if stats.Segmenter.UtterancesEmitted != 1 {
		t.Errorf("Expected 1 utterance, got %d", stats.Segmenter.UtterancesEmitted)
	}
	if stats.Translator.TasksCompleted != 1 {
		t.Errorf("Expected 1 completed translation, got %d", stats.Translator.TasksCompleted)
	}
}

func TestPipelineStaleTranslationDiscarded(t *testing.T) {
	pcm := speechThenSilence(nil)
	pcm = speechThenSilence(pcm)
	source := capture.NewReplaySource(pcm, len(pcm)/audio.FrameBytes+8)

	firstGate := make(chan struct{})
	translator := &gateTranslator{
		answers: map[string]string{
			"first phrase":  "第一句",
			"second phrase": "第二句",
		},
		gates: map[string]chan struct{}{
			"first phrase": firstGate,
		},
	}

	p, err := New(Options{
		Source:      source,
		Segmenter:   testSegmenter(t),
		Transcriber: &scriptTranscriber{texts: []string{"first phrase", "second phrase"}},
		Translator:  translator,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	// Both utterances recognized while the first translation is held back
	waitFor(t, "second recognition", func() bool {
		snap := p.Snapshot()
		return snap.Current.Original == "second phrase" && snap.Previous.Original == "first phrase"
	})

	close(firstGate)

	waitFor(t, "fresh translation", func() bool {
		return p.Snapshot().Current.Translation == "第二句"
	})

	snap := p.Snapshot()
	if snap.Previous.Translation == "第一句" || snap.Current.Translation == "第一句" {
		t.Error("Stale translation appeared on the display")
	}
	if snap.Previous.Translation != subtitle.PendingMarker {
		t.Errorf("Demoted line should keep its pending marker, got %q", snap.Previous.Translation)
	}

	if stats := p.GetStats(); stats.Subtitles.StaleDiscards != 1 {
		t.Errorf("Expected 1 stale discard, got %d", stats.Subtitles.StaleDiscards)
	}
}

func TestPipelineTranslationFailureMarker(t *testing.T) {
	pcm := speechThenSilence(nil)
	source := capture.NewReplaySource(pcm, len(pcm)/audio.FrameBytes+8)

	p, err := New(Options{
		Source:      source,
		Segmenter:   testSegmenter(t),
		Transcriber: &scriptTranscriber{texts: []string{"hello world"}},
		Translator: &gateTranslator{fail: map[string]error{
			"hello world": errors.New("connection refused"),
		}},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	waitFor(t, "failure marker", func() bool {
		return p.Snapshot().Current.Translation == subtitle.FailedMarker
	})

	if stats := p.GetStats(); stats.Translator.TasksFailed != 1 {
		t.Errorf("Expected 1 failed task, got %d", stats.Translator.TasksFailed)
	}
}

func TestPipelineEmitsEvents(t *testing.T) {
	pcm := speechThenSilence(nil)
	source := capture.NewReplaySource(pcm, len(pcm)/audio.FrameBytes+8)

	p, err := New(Options{
		Source:      source,
		Segmenter:   testSegmenter(t),
		Transcriber: &scriptTranscriber{texts: []string{"hello world"}},
		Translator: &gateTranslator{answers: map[string]string{
			"hello world": "你好世界",
		}},
		EventBuffer: 256,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, "translated subtitle", func() bool {
		return p.Snapshot().Current.Translation == "你好世界"
	})
	p.Stop()

	seen := map[string]int{}
	for {
		select {
		case e := <-p.Events():
			seen[e.Type]++
		default:
			if seen[EventVolume] == 0 {
				t.Error("Expected volume events")
			}
			if seen[EventSubtitle] == 0 {
				t.Error("Expected subtitle events")
			}
			if seen[EventStatus] == 0 {
				t.Error("Expected status events")
			}
			return
		}
	}
}

func TestPipelineStartFailsWhenTranslatorDown(t *testing.T) {
	source := capture.NewReplaySource(nil, 8)

	p, err := New(Options{
		Source:      source,
		Segmenter:   testSegmenter(t),
		Transcriber: &scriptTranscriber{},
		Translator:  &downTranslator{},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := p.Start(context.Background()); err == nil {
		t.Fatal("Start should fail when the translation endpoint is down")
	}
}

type downTranslator struct{}

func (d *downTranslator) Generate(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("unreachable")
}

func (d *downTranslator) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}
