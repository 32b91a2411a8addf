package sdmhttp

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var errAlreadyRunning = errors.New("task already running")

// ErrorReporter is an optional extension of Reporter for terminal errors.
type ErrorReporter interface {
	OnError(taskID string, err error)
}

// Task owns one transfer: its destination file, its chunk ranges and its
// lifecycle. All exported methods are safe for concurrent use.
type Task struct {
	id       string
	url      string
	path     string
	client   Doer
	reporter Reporter
	cfg      Config
	log      zerolog.Logger

	// gate is only touched under mu and is shut exactly while the status
	// is Paused.
	mu          sync.Mutex
	gate        *gate
	status      Status
	totalSize   int64
	ranges      []ChunkRange
	written     []atomic.Int64
	retryCount  int
	scheduledAt time.Time
	startTime   time.Time
	lastErr     error
	cancelled   bool
	running     bool
	runCancel   context.CancelFunc
	runDone     chan struct{}

	downloaded atomic.Int64
	session    atomic.Int64
	speedBits  atomic.Uint64
}

type Snapshot struct {
	ID          string
	URL         string
	Path        string
	Status      Status
	TotalSize   int64
	Downloaded  int64
	Speed       float64
	TimeLeft    time.Duration
	RetryCount  int
	MaxRetries  int
	ScheduledAt time.Time
	Err         error
}

func (t *Task) ID() string   { return t.id }
func (t *Task) URL() string  { return t.url }
func (t *Task) Path() string { return t.path }

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Ranges returns the chunk layout of the current size, nil until probed.
func (t *Task) Ranges() []ChunkRange {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ChunkRange(nil), t.ranges...)
}

func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	downloaded := t.downloaded.Load()
	speed := t.speed()
	return Snapshot{
		ID:          t.id,
		URL:         t.url,
		Path:        t.path,
		Status:      t.status,
		TotalSize:   t.totalSize,
		Downloaded:  downloaded,
		Speed:       speed,
		TimeLeft:    timeLeft(t.totalSize, downloaded, speed),
		RetryCount:  t.retryCount,
		MaxRetries:  t.cfg.MaxRetries,
		ScheduledAt: t.scheduledAt,
		Err:         t.lastErr,
	}
}

// Schedule records the wall-clock time the task is due. The registry's
// scheduler performs the deferred start.
func (t *Task) Schedule(at time.Time) {
	t.mu.Lock()
	t.scheduledAt = at
	t.mu.Unlock()
	t.log.Info().Str("op", "http/task").Str("file", t.path).Time("at", at).Msg("download scheduled")
}

// Pause shuts the write gate of a downloading task. Streams stay open.
// Pausing a task that is not downloading does nothing.
func (t *Task) Pause() {
	t.mu.Lock()
	if t.status != StatusDownloading {
		t.mu.Unlock()
		return
	}
	t.gate.Close()
	t.status = StatusPaused
	t.mu.Unlock()
	t.log.Info().Str("op", "http/task").Str("file", t.path).Msg("download paused")
	t.reporter.OnStatusChange(t.id, StatusPaused)
}

// Resume reopens the write gate of a paused task.
func (t *Task) Resume() {
	t.mu.Lock()
	if t.status != StatusPaused {
		t.mu.Unlock()
		return
	}
	t.gate.Open()
	t.status = StatusDownloading
	t.mu.Unlock()
	t.log.Info().Str("op", "http/task").Str("file", t.path).Msg("download resumed")
	t.reporter.OnStatusChange(t.id, StatusDownloading)
}

// Cancel stops the task, waits for every chunk worker to exit, then deletes
// the partial file. It is a no-op on completed or cancelled tasks. A removal
// failure is returned as *PermissionError; the task is Cancelled either way.
func (t *Task) Cancel() error {
	t.mu.Lock()
	if t.status == StatusCompleted || t.status == StatusCancelled {
		t.mu.Unlock()
		return nil
	}
	t.cancelled = true
	running, stop, done := t.running, t.runCancel, t.runDone
	t.mu.Unlock()

	if running {
		stop()
		<-done
	}

	t.mu.Lock()
	if t.status == StatusCompleted {
		// finished before the cancel was observed
		t.mu.Unlock()
		return nil
	}
	t.status = StatusCancelled
	t.gate.Open()
	t.mu.Unlock()

	t.log.Info().Str("op", "http/task").Str("file", t.path).Msg("download cancelled")
	var cancelErr error
	if err := os.Remove(t.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		cancelErr = &PermissionError{Path: t.path, Err: err}
		t.log.Error().Str("op", "http/task").Err(err).Msg("error removing partial file")
		t.reportError(cancelErr)
	}
	t.reporter.OnStatusChange(t.id, StatusCancelled)
	return cancelErr
}

// setStatus records s, reopens the gate, and notifies the reporter. Retries
// re-enter Pending and must notify even when the status is unchanged.
func (t *Task) setStatus(s Status, force bool) {
	t.mu.Lock()
	changed := t.status != s
	t.status = s
	t.gate.Open()
	t.mu.Unlock()
	if changed || force {
		t.reporter.OnStatusChange(t.id, s)
	}
}

func (t *Task) reportError(err error) {
	if er, ok := t.reporter.(ErrorReporter); ok {
		er.OnError(t.id, err)
	}
}

func (t *Task) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *Task) speed() float64 {
	return math.Float64frombits(t.speedBits.Load())
}

func timeLeft(total, downloaded int64, speed float64) time.Duration {
	if speed <= 0 || total <= 0 {
		return UnknownTimeLeft
	}
	remaining := float64(max(0, total-downloaded))
	return time.Duration(remaining / speed * float64(time.Second))
}
