package subtitle

import (
	"log/slog"
	"sync"
)

// Translation placeholders shown while a result is outstanding or after
// the call failed.
const (
	PendingMarker = "翻译中..."
	FailedMarker  = "翻译失败"
)

// Entry is one subtitle line pair.
type Entry struct {
	Original    string `json:"original"`
	Translation string `json:"translation"`
	Language    string `json:"language"`
}

// Snapshot is a consistent copy of both display lines.
type Snapshot struct {
	Previous Entry `json:"previous"`
	Current  Entry `json:"current"`
}

// Stats represents tracker statistics
type Stats struct {
	Recognized     uint64 `json:"recognized"`
	Translated     uint64 `json:"translated"`
	Failed         uint64 `json:"failed"`
	StaleDiscards  uint64 `json:"stale_discards"`
	DroppedUpdates uint64 `json:"dropped_updates"`
}

// Tracker holds the previous/current subtitle pair behind a mutex and
// publishes a snapshot on a bounded channel after every visible change.
// Publishing never blocks; a slow consumer just misses intermediate
// states and catches up on the next change.
type Tracker struct {
	mu       sync.RWMutex
	previous Entry
	current  Entry

	updates chan Snapshot

	recognized     uint64
	translated     uint64
	failed         uint64
	staleDiscards  uint64
	droppedUpdates uint64
}

// NewTracker creates a tracker whose update channel buffers up to
// bufferSize snapshots.
func NewTracker(bufferSize int) *Tracker {
	if bufferSize < 1 {
		bufferSize = 16
	}
	return &Tracker{
		updates: make(chan Snapshot, bufferSize),
	}
}

// OnRecognized installs a freshly recognized utterance as the current
// line. The old current line, if any, is demoted to previous with
// whatever translation state it reached.
func (t *Tracker) OnRecognized(text, language string) {
	t.mu.Lock()

	if t.current.Original != "" {
		t.previous = t.current
	}
	t.current = Entry{
		Original:    text,
		Translation: PendingMarker,
		Language:    language,
	}
	t.recognized++

	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.publish(snap)
}

// OnTranslated applies a finished translation. It is a no-op returning
// false when the current original no longer matches: a newer utterance
// replaced the line while the translation was in flight.
func (t *Tracker) OnTranslated(original, translated string) bool {
	t.mu.Lock()

	if t.current.Original != original {
		t.staleDiscards++
		t.mu.Unlock()
		slog.Debug("Discarding stale translation", "original", original)
		return false
	}

	t.current.Translation = translated
	t.translated++

	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.publish(snap)
	return true
}

// OnTranslationFailed puts the failure marker on the current line. Stale
// failures are discarded the same way stale translations are.
func (t *Tracker) OnTranslationFailed(original string) bool {
	t.mu.Lock()

	if t.current.Original != original {
		t.staleDiscards++
		t.mu.Unlock()
		return false
	}

	t.current.Translation = FailedMarker
	t.failed++

	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.publish(snap)
	return true
}

// Snapshot returns a consistent copy of both lines.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

// Updates returns the snapshot channel. One snapshot arrives per visible
// change, subject to the bounded buffer.
func (t *Tracker) Updates() <-chan Snapshot {
	return t.updates
}

// GetStats returns current tracker statistics
func (t *Tracker) GetStats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Stats{
		Recognized:     t.recognized,
		Translated:     t.translated,
		Failed:         t.failed,
		StaleDiscards:  t.staleDiscards,
		DroppedUpdates: t.droppedUpdates,
	}
}

func (t *Tracker) snapshotLocked() Snapshot {
	return Snapshot{Previous: t.previous, Current: t.current}
}

func (t *Tracker) publish(snap Snapshot) {
	select {
	case t.updates <- snap:
	default:
		t.mu.Lock()
		t.droppedUpdates++
		t.mu.Unlock()
	}
}

// LanguageName maps an ISO language code onto its display name. Unknown
// codes are shown as-is.
func LanguageName(code string) string {
	names := map[string]string{
		"en":      "English",
		"zh":      "中文",
		"ja":      "Japanese",
		"ko":      "Korean",
		"fr":      "French",
		"de":      "German",
		"es":      "Spanish",
		"ru":      "Russian",
		"unknown": "未知",
	}
	if name, ok := names[code]; ok {
		return name
	}
	return code
}
