package sdmhttp

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Status int

const (
	StatusPending Status = iota
	StatusDownloading
	StatusPaused
	StatusCompleted
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDownloading:
		return "downloading"
	case StatusPaused:
		return "paused"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition happens without a restart.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// UnknownTimeLeft is reported until a non-zero speed has been measured.
const UnknownTimeLeft time.Duration = -1

// Reporter receives lifecycle events from tasks. Implementations must be
// safe for concurrent use; OnProgress is called from chunk workers.
type Reporter interface {
	OnProgress(taskID string, downloaded, total int64, speed float64, timeLeft time.Duration)
	OnStatusChange(taskID string, status Status)
	OnRemoved(taskID string)
}

type nopReporter struct{}

func (nopReporter) OnProgress(string, int64, int64, float64, time.Duration) {}
func (nopReporter) OnStatusChange(string, Status)                          {}
func (nopReporter) OnRemoved(string)                                       {}

// Doer is the transport used for probes and ranged requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ChunkRange is the half-open byte range [Start, End) fetched by one worker.
type ChunkRange struct {
	Index int
	Start int64
	End   int64
}

func (r ChunkRange) Len() int64 {
	return r.End - r.Start
}

// Header renders the inclusive HTTP Range header value.
func (r ChunkRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End-1)
}

// Partition splits [0, total) into workers contiguous ranges. The last range
// absorbs the remainder. When total is smaller than workers, only total
// single-byte ranges are produced so that no range is empty.
func Partition(total int64, workers int) []ChunkRange {
	if total <= 0 || workers <= 0 {
		return nil
	}
	if int64(workers) > total {
		workers = int(total)
	}
	size := total / int64(workers)
	ranges := make([]ChunkRange, workers)
	for i := range workers {
		start := int64(i) * size
		end := start + size
		if i == workers-1 {
			end = total
		}
		ranges[i] = ChunkRange{Index: i, Start: start, End: end}
	}
	return ranges
}

var (
	ErrInvalidURL  = errors.New("invalid url")
	ErrSizeUnknown = errors.New("remote size unknown")
	ErrCancelled   = errors.New("download cancelled")
)

// NetworkError wraps a transport failure or an unexpected response.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status code %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// PermissionError is returned by Cancel when the partial file cannot be removed.
type PermissionError struct {
	Path string
	Err  error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("remove %s: %v", e.Path, e.Err)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

type MaxRetriesExceededError struct {
	Retries int
	Last    error
}

func (e *MaxRetriesExceededError) Error() string {
	return fmt.Sprintf("download failed after %d retries: %v", e.Retries, e.Last)
}

func (e *MaxRetriesExceededError) Unwrap() error {
	return e.Last
}

// retryable reports whether an attempt error should be retried by the task.
// Validation failures and cancellation are final.
func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidURL), errors.Is(err, ErrSizeUnknown), errors.Is(err, ErrCancelled):
		return false
	}
	return true
}
