package translate

import (
	"context"
	"strings"
	"testing"
	"time"
)

// stubGenerator answers prompts from a map and records nothing; failures
// are keyed by substring of the prompt.
type stubGenerator struct {
	answers map[string]string
	fail    map[string]error
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	for key, err := range s.fail {
		if strings.Contains(prompt, key) {
			return "", err
		}
	}
	for key, answer := range s.answers {
		if strings.Contains(prompt, key) {
			return answer, nil
		}
	}
	return "", &statusError{code: 500, body: "no stub answer"}
}

func (s *stubGenerator) Ping(ctx context.Context) error { return nil }

func collectResults(t *testing.T, results <-chan Result, n int) []Result {
	t.Helper()
	out := make([]Result, 0, n)
	for i := 0; i < n; i++ {
		select {
		case r := <-results:
			out = append(out, r)
		case <-time.After(5 * time.Second):
			t.Fatalf("Timed out waiting for result %d of %d", i+1, n)
		}
	}
	return out
}

func TestDispatcherFIFOOrder(t *testing.T) {
	gen := &stubGenerator{answers: map[string]string{
		"first":  "第一",
		"second": "第二",
		"third":  "第三",
	}}

	results := make(chan Result, 8)
	d, err := NewDispatcher(gen, 8, time.Second, func(r Result) { results <- r })
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}
	d.Start()
	defer d.Stop()

	for _, text := range []string{"first", "second", "third"} {
		if !d.Submit(text, "en") {
			t.Fatalf("Submit(%q) rejected", text)
		}
	}

	got := collectResults(t, results, 3)

	wantOriginals := []string{"first", "second", "third"}
	wantTranslations := []string{"第一", "第二", "第三"}
	for i := range got {
		if got[i].Original != wantOriginals[i] {
			t.Errorf("Result %d original = %q, want %q", i, got[i].Original, wantOriginals[i])
		}
		if got[i].Translated != wantTranslations[i] {
			t.Errorf("Result %d translated = %q, want %q", i, got[i].Translated, wantTranslations[i])
		}
		if got[i].Err != nil {
			t.Errorf("Result %d unexpected error: %v", i, got[i].Err)
		}
	}
}

func TestDispatcherSurvivesFailures(t *testing.T) {
	gen := &stubGenerator{
		answers: map[string]string{
			"before": "之前",
			"after":  "之后",
		},
		fail: map[string]error{
			"broken": &statusError{code: 500, body: "model crashed"},
		},
	}

	results := make(chan Result, 8)
	d, _ := NewDispatcher(gen, 8, time.Second, func(r Result) { results <- r })
	d.Start()
	defer d.Stop()

	d.Submit("before", "en")
	d.Submit("broken", "en")
	d.Submit("after", "en")

	got := collectResults(t, results, 3)

	if got[0].Err != nil || got[2].Err != nil {
		t.Error("Healthy tasks failed around a broken one")
	}
	if got[1].Err == nil {
		t.Fatal("Expected the broken task to fail")
	}
	if got[1].Kind != FailureStatus {
		t.Errorf("Expected status failure, got %s", got[1].Kind)
	}
	if got[1].Translated != "" {
		t.Errorf("Failed result must not carry translated text, got %q", got[1].Translated)
	}
	if got[1].Original != "broken" {
		t.Errorf("Failure must carry the original text, got %q", got[1].Original)
	}

	stats := d.GetStats()
	if stats.TasksCompleted != 2 || stats.TasksFailed != 1 {
		t.Errorf("Expected 2 completed and 1 failed, got %d and %d",
			stats.TasksCompleted, stats.TasksFailed)
	}
}

func TestDispatcherResultsAreCleaned(t *testing.T) {
	gen := &stubGenerator{answers: map[string]string{
		"hello": "Translation: 你好",
	}}

	results := make(chan Result, 1)
	d, _ := NewDispatcher(gen, 4, time.Second, func(r Result) { results <- r })
	d.Start()
	defer d.Stop()

	d.Submit("hello", "en")

	got := collectResults(t, results, 1)
	if got[0].Translated != "你好" {
		t.Errorf("Expected cleaned translation 你好, got %q", got[0].Translated)
	}
}

func TestDispatcherNonBlockingSubmit(t *testing.T) {
	gen := &stubGenerator{}

	// Worker never started, so the queue fills up
	d, _ := NewDispatcher(gen, 2, time.Second, func(Result) {})

	if !d.Submit("one", "en") || !d.Submit("two", "en") {
		t.Fatal("Submits within capacity were rejected")
	}
	if d.Submit("three", "en") {
		t.Error("Submit beyond capacity should be dropped")
	}

	stats := d.GetStats()
	if stats.TasksDropped != 1 {
		t.Errorf("Expected 1 dropped task, got %d", stats.TasksDropped)
	}
	if stats.TasksSubmitted != 2 {
		t.Errorf("Expected 2 submitted tasks, got %d", stats.TasksSubmitted)
	}
}

func TestDispatcherRejectsBlankText(t *testing.T) {
	d, _ := NewDispatcher(&stubGenerator{}, 4, time.Second, func(Result) {})

	if d.Submit("", "en") || d.Submit("   ", "zh") {
		t.Error("Blank text should never be queued")
	}
	if stats := d.GetStats(); stats.TasksSubmitted != 0 {
		t.Errorf("Expected 0 submitted tasks, got %d", stats.TasksSubmitted)
	}
}
