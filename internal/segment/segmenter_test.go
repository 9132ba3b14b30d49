package segment

import (
	"testing"
	"time"

	"github.com/skypro1111/live-subtitle-service/internal/audio"
)

func testConfig() Config {
	return Config{
		SilenceThreshold:  100,
		SilenceDuration:   1200 * time.Millisecond,
		MinSpeechDuration: 500 * time.Millisecond,
		MaxSpeechDuration: 8 * time.Second,
		Carryover:         300 * time.Millisecond,
	}
}

// frame builds one fixed-size frame where every sample has the given
// amplitude, so the frame's volume reading equals amp exactly.
func frame(seq uint64, amp int16) audio.Frame {
	samples := make([]int16, audio.FrameSamples)
	for i := range samples {
		samples[i] = amp
	}
	f, _ := audio.NewFrame(seq, audio.Bytes(samples))
	return f
}

// feed pushes n frames of the given amplitude and returns the first
// utterance emitted, if any, plus the next sequence number.
func feed(t *testing.T, s *Segmenter, seq uint64, n int, amp int16) (*Utterance, uint64) {
	t.Helper()
	for i := 0; i < n; i++ {
		u, _ := s.Feed(frame(seq, amp))
		seq++
		if u != nil {
			return u, seq
		}
	}
	return nil, seq
}

func framesFor(d time.Duration) int {
	return int(d / audio.FrameDuration)
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("Expected error for zero config")
	}

	cfg := testConfig()
	cfg.MaxSpeechDuration = cfg.MinSpeechDuration
	if _, err := New(cfg); err == nil {
		t.Error("Expected error when max does not exceed min")
	}
}

func TestPureSilenceNeverEmits(t *testing.T) {
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// 20 seconds of sub-threshold audio
	u, _ := feed(t, s, 0, framesFor(20*time.Second), 50)
	if u != nil {
		t.Fatal("Segmenter emitted an utterance from pure silence")
	}

	if got := s.State(); got != StateIdle {
		t.Errorf("Expected idle state, got %v", got)
	}

	stats := s.GetStats()
	if stats.UtterancesEmitted != 0 {
		t.Errorf("Expected 0 utterances, got %d", stats.UtterancesEmitted)
	}
	// Idle silence must not accumulate buffered audio
	if stats.BufferedDuration != 0 {
		t.Errorf("Idle silence buffered %v of audio", stats.BufferedDuration)
	}
}

func TestSilenceClosure(t *testing.T) {
	s, _ := New(testConfig())

	// 0.64s of speech, then a sub-threshold tail. Amplitude 80 keeps the
	// short-utterance fast path out of play (it needs volume below 70), so
	// only the silence rule can close this one.
	u, seq := feed(t, s, 0, 10, 500)
	if u != nil {
		t.Fatal("Utterance closed during speech")
	}

	u, _ = feed(t, s, seq, framesFor(2*time.Second), 80)
	if u == nil {
		t.Fatal("Expected silence closure, got none")
	}
	if u.Reason != CloseSilence {
		t.Errorf("Expected reason silence, got %s", u.Reason)
	}
	if u.StartSeq != 0 {
		t.Errorf("Expected utterance to start at seq 0, got %d", u.StartSeq)
	}

	// Buffer = 10 speech frames + silence frames up to the 1.2s run
	wantMin := 10*audio.FrameDuration + 1200*time.Millisecond
	if u.Duration < wantMin || u.Duration > wantMin+2*audio.FrameDuration {
		t.Errorf("Unexpected utterance duration %v, want about %v", u.Duration, wantMin)
	}
}

func TestBufferedDurationIncludesSilence(t *testing.T) {
	s, _ := New(testConfig())

	// Only 0.19s of actual speech, but silence frames inside an utterance
	// stay buffered, so the total buffer still grows past the rule gates
	// and the quiet tail closes it on the fast path.
	_, seq := feed(t, s, 0, 3, 500)

	u, _ := feed(t, s, seq, framesFor(5*time.Second), 10)
	if u == nil {
		t.Fatal("Expected closure once the buffer passed the fast-path gates")
	}
	if u.Reason != CloseShort {
		t.Errorf("Expected reason short_utterance, got %s", u.Reason)
	}
	if u.Duration < 1*time.Second {
		t.Errorf("Closed with buffered duration %v below the 1s gate", u.Duration)
	}
}

func TestMaxLengthClosure(t *testing.T) {
	s, _ := New(testConfig())

	// Continuous speech; the length cap must cut it regardless of silence
	u, _ := feed(t, s, 0, framesFor(10*time.Second), 800)
	if u == nil {
		t.Fatal("Expected max-length closure, got none")
	}
	if u.Reason != CloseMaxLength {
		t.Errorf("Expected reason max_length, got %s", u.Reason)
	}
	if u.Duration < 8*time.Second {
		t.Errorf("Length cap fired early at %v", u.Duration)
	}
	if u.Duration > 8*time.Second+audio.FrameDuration {
		t.Errorf("Length cap fired late at %v", u.Duration)
	}
}

func TestShortUtteranceFastPath(t *testing.T) {
	s, _ := New(testConfig())

	// 1.02s of speech, then a clearly quiet tail: the fast path must fire
	// at 0.8s of silence, well before the 1.2s silence threshold.
	_, seq := feed(t, s, 0, 16, 500)

	u, _ := feed(t, s, seq, framesFor(2*time.Second), 30)
	if u == nil {
		t.Fatal("Expected short-utterance closure, got none")
	}
	if u.Reason != CloseShort {
		t.Errorf("Expected reason short_utterance, got %s", u.Reason)
	}

	// Silence accumulated at closure must be under the full silence threshold
	silence := u.Duration - 16*audio.FrameDuration
	if silence >= 1200*time.Millisecond {
		t.Errorf("Fast path fired no earlier than the silence rule (%v of silence)", silence)
	}
	if silence < 800*time.Millisecond {
		t.Errorf("Fast path fired before 0.8s of silence (%v)", silence)
	}
}

func TestShortFastPathRequiresQuietTail(t *testing.T) {
	s, _ := New(testConfig())

	_, seq := feed(t, s, 0, 16, 500)

	// Tail volume 80 is sub-threshold (silence) but not below 0.7x the
	// threshold, so only the full silence rule may close the utterance.
	u, seq := feed(t, s, seq, framesFor(1*time.Second), 80)
	if u != nil {
		t.Fatalf("Closed by %s with a loud-ish tail before the silence threshold", u.Reason)
	}

	u, _ = feed(t, s, seq, framesFor(1*time.Second), 80)
	if u == nil {
		t.Fatal("Expected eventual silence closure")
	}
	if u.Reason != CloseSilence {
		t.Errorf("Expected reason silence, got %s", u.Reason)
	}
}

func TestStallClosure(t *testing.T) {
	s, _ := New(testConfig())

	_, _ = feed(t, s, 0, 10, 500)

	u := s.FeedIdle()
	if u == nil {
		t.Fatal("Expected stall closure for a speaking buffer past the minimum")
	}
	if u.Reason != CloseStall {
		t.Errorf("Expected reason stall, got %s", u.Reason)
	}

	if s.State() != StateIdle {
		t.Error("Segmenter should be idle after a stall closure")
	}
	if u2 := s.FeedIdle(); u2 != nil {
		t.Error("Repeated FeedIdle emitted a second utterance")
	}
}

func TestCarryoverAcrossBoundary(t *testing.T) {
	cfg := testConfig()
	s, _ := New(cfg)

	_, seq := feed(t, s, 0, 10, 500)
	u, seq := feed(t, s, seq, framesFor(2*time.Second), 10)
	if u == nil {
		t.Fatal("Expected first utterance")
	}

	carried := s.CarriedFrames()
	if carried == 0 {
		t.Fatal("Expected carryover frames after closure")
	}
	if d := time.Duration(carried) * audio.FrameDuration; d > cfg.Carryover {
		t.Errorf("Carryover %v exceeds the configured %v", d, cfg.Carryover)
	}

	// The next utterance must begin with the carried tail of the previous one
	carryStart := u.EndSeq - uint64(carried) + 1

	_, seq = feed(t, s, seq, 10, 500)
	u2, _ := feed(t, s, seq, framesFor(2*time.Second), 10)
	if u2 == nil {
		t.Fatal("Expected second utterance")
	}
	if u2.StartSeq != carryStart {
		t.Errorf("Second utterance starts at seq %d, want carryover start %d", u2.StartSeq, carryStart)
	}
}

func TestClosureResetsSilenceRun(t *testing.T) {
	s, _ := New(testConfig())

	_, seq := feed(t, s, 0, 10, 500)
	u, seq := feed(t, s, seq, framesFor(2*time.Second), 10)
	if u == nil {
		t.Fatal("Expected first utterance")
	}

	// New speech after the boundary: a single silence frame right after must
	// not close anything, which it would if the silence run had survived.
	_, seq = feed(t, s, seq, 10, 500)
	u2, _ := feed(t, s, seq, 1, 10)
	if u2 != nil {
		t.Error("Silence run survived the closure")
	}
}

func TestFlushAbandonsShortBuffer(t *testing.T) {
	s, _ := New(testConfig())

	_, _ = feed(t, s, 0, 3, 500) // below the minimum

	if u := s.Flush(); u != nil {
		t.Errorf("Flush emitted a %v utterance below the minimum", u.Duration)
	}
	if s.CarriedFrames() != 0 {
		t.Error("Flush left carryover frames behind")
	}
}

func TestFlushClosesLongBuffer(t *testing.T) {
	s, _ := New(testConfig())

	_, _ = feed(t, s, 0, 10, 500)

	u := s.Flush()
	if u == nil {
		t.Fatal("Flush dropped a closable buffer")
	}
	if u.Reason != CloseStall {
		t.Errorf("Expected reason stall, got %s", u.Reason)
	}
}

func TestStatsAccounting(t *testing.T) {
	s, _ := New(testConfig())

	_, seq := feed(t, s, 0, 10, 500)
	if u, _ := feed(t, s, seq, framesFor(2*time.Second), 80); u == nil {
		t.Fatal("Expected utterance")
	}

	stats := s.GetStats()
	if stats.UtterancesEmitted != 1 {
		t.Errorf("Expected 1 utterance, got %d", stats.UtterancesEmitted)
	}
	if stats.SilenceClosures != 1 {
		t.Errorf("Expected 1 silence closure, got %d", stats.SilenceClosures)
	}
	if stats.SpeechFrames != 10 {
		t.Errorf("Expected 10 speech frames, got %d", stats.SpeechFrames)
	}
	if stats.State != "idle" {
		t.Errorf("Expected state idle, got %s", stats.State)
	}
}
