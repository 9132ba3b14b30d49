package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Generator is the translation backend the dispatcher drives. Satisfied
// by *Client; tests substitute stubs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Ping(ctx context.Context) error
}

// Task is one queued translation request.
type Task struct {
	Original       string
	SourceLanguage string
}

// Result reports the outcome of one translation task. Err is nil on
// success; on failure Translated is empty and Kind classifies the cause.
// Original always carries the recognized text the task was created from,
// which is what the display layer matches staleness against.
type Result struct {
	Original       string
	Translated     string
	SourceLanguage string
	Elapsed        time.Duration
	Err            error
	Kind           FailureKind
}

// Dispatcher feeds translation tasks to a single worker through a bounded
// FIFO queue. Submission never blocks: when the queue is full the task is
// dropped and counted, because a fresher phrase is already on its way.
type Dispatcher struct {
	client   Generator
	timeout  time.Duration
	callback func(Result)
	queue    chan Task

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Statistics
	tasksSubmitted uint64
	tasksDropped   uint64
	tasksCompleted uint64
	tasksFailed    uint64

	mu sync.RWMutex
}

// DispatcherStats represents dispatcher statistics
type DispatcherStats struct {
	TasksSubmitted uint64 `json:"tasks_submitted"`
	TasksDropped   uint64 `json:"tasks_dropped"`
	TasksCompleted uint64 `json:"tasks_completed"`
	TasksFailed    uint64 `json:"tasks_failed"`
	QueueSize      int    `json:"queue_size"`
	QueueCapacity  int    `json:"queue_capacity"`
}

// NewDispatcher creates a dispatcher. The callback is invoked from the
// worker goroutine for every processed task, success or failure.
func NewDispatcher(client Generator, queueSize int, timeout time.Duration, callback func(Result)) (*Dispatcher, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if queueSize < 1 {
		return nil, fmt.Errorf("queue size must be at least 1, got %d", queueSize)
	}
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		client:   client,
		timeout:  timeout,
		callback: callback,
		queue:    make(chan Task, queueSize),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start launches the worker goroutine.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.worker()
}

// Stop shuts the worker down. Queued tasks that have not started are
// abandoned; their translations would be stale by restart anyway.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

// Submit enqueues a translation task without blocking. Returns false when
// the text is blank or the queue is full.
func (d *Dispatcher) Submit(original, sourceLanguage string) bool {
	if strings.TrimSpace(original) == "" {
		return false
	}

	select {
	case d.queue <- Task{Original: original, SourceLanguage: sourceLanguage}:
		d.mu.Lock()
		d.tasksSubmitted++
		d.mu.Unlock()
		return true
	default:
		d.mu.Lock()
		d.tasksDropped++
		d.mu.Unlock()
		slog.Warn("Translation queue full, dropping task",
			"original", original,
			"capacity", cap(d.queue))
		return false
	}
}

// worker drains the queue strictly in order. A failed task is reported and
// forgotten; the loop never stops because of one bad call.
func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case task := <-d.queue:
			d.process(task)
		}
	}
}

func (d *Dispatcher) process(task Task) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	startTime := time.Now()
	raw, err := d.client.Generate(ctx, BuildPrompt(task.Original, task.SourceLanguage))
	elapsed := time.Since(startTime)

	result := Result{
		Original:       task.Original,
		SourceLanguage: task.SourceLanguage,
		Elapsed:        elapsed,
	}

	if err != nil {
		result.Err = err
		result.Kind = Classify(err)

		d.mu.Lock()
		d.tasksFailed++
		d.mu.Unlock()

		slog.Error("Translation failed",
			"original", task.Original,
			"kind", string(result.Kind),
			"elapsed", elapsed,
			"error", err)
	} else {
		result.Translated = CleanResponse(raw)

		d.mu.Lock()
		d.tasksCompleted++
		d.mu.Unlock()

		slog.Debug("Translation completed",
			"original", task.Original,
			"elapsed", elapsed)
	}

	d.callback(result)
}

// GetStats returns current dispatcher statistics
func (d *Dispatcher) GetStats() DispatcherStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return DispatcherStats{
		TasksSubmitted: d.tasksSubmitted,
		TasksDropped:   d.tasksDropped,
		TasksCompleted: d.tasksCompleted,
		TasksFailed:    d.tasksFailed,
		QueueSize:      len(d.queue),
		QueueCapacity:  cap(d.queue),
	}
}
