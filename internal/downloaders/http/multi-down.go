package sdmhttp

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// Start runs the task until it completes, fails for good, or is cancelled.
// Failed attempts are retried up to MaxRetries times, RetryInterval apart.
// Starting a failed task restarts it with a fresh retry budget.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	switch {
	case t.cancelled || t.status == StatusCancelled:
		t.mu.Unlock()
		return ErrCancelled
	case t.status == StatusCompleted:
		t.mu.Unlock()
		return nil
	case t.running:
		t.mu.Unlock()
		return errAlreadyRunning
	}
	restart := t.status == StatusFailed
	if restart {
		t.retryCount = 0
		t.lastErr = nil
	}
	runCtx, stop := context.WithCancel(ctx)
	t.running = true
	t.runCancel = stop
	t.runDone = make(chan struct{})
	done := t.runDone
	t.mu.Unlock()

	defer func() {
		stop()
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		close(done)
	}()
	if restart {
		t.setStatus(StatusPending, true)
	}
	t.log.Info().Str("op", "http/task").Str("url", t.url).Str("file", t.path).Msg("starting download")
	return t.run(runCtx)
}

func (t *Task) run(ctx context.Context) error {
	for {
		err := t.attempt(ctx)
		if err == nil {
			t.complete()
			return nil
		}
		if t.isCancelled() {
			return ErrCancelled
		}
		if ctx.Err() != nil {
			return t.fail(ctx.Err())
		}
		t.mu.Lock()
		t.lastErr = err
		retries := t.retryCount
		t.mu.Unlock()
		if !retryable(err) {
			return t.fail(err)
		}
		if retries >= t.cfg.MaxRetries {
			return t.fail(&MaxRetriesExceededError{Retries: retries, Last: err})
		}

		t.mu.Lock()
		t.retryCount++
		retries = t.retryCount
		t.mu.Unlock()
		t.log.Warn().Str("op", "http/task").Err(err).Str("file", t.path).
			Msgf("retrying download (attempt %d/%d) in %s", retries, t.cfg.MaxRetries, t.cfg.RetryInterval)
		t.setStatus(StatusPending, true)
		if err := sleepCtx(ctx, t.cfg.RetryInterval); err != nil {
			if t.isCancelled() {
				return ErrCancelled
			}
			return t.fail(err)
		}
	}
}

// attempt probes the size and fetches every unfinished range once.
func (t *Task) attempt(ctx context.Context) error {
	size, err := probeSize(ctx, t.client, t.url)
	if err != nil {
		return err
	}
	fresh := t.resetRanges(size, false)
	if !fresh {
		// progress is only trusted if the partial file is still intact
		if fi, err := os.Stat(t.path); err != nil || fi.Size() != size {
			fresh = t.resetRanges(size, true)
		}
	}
	t.log.Debug().Str("op", "http/task").Int64("size", size).Bool("fresh", fresh).Msg("probed remote size")

	if dir := filepath.Dir(t.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating destination directory: %w", err)
		}
	}
	flag := os.O_CREATE | os.O_WRONLY
	if fresh {
		flag |= os.O_TRUNC
	}
	file, err := os.OpenFile(t.path, flag, 0644)
	if err != nil {
		return fmt.Errorf("error opening destination file: %w", err)
	}
	defer file.Close()
	if fresh {
		if err := file.Truncate(size); err != nil {
			return fmt.Errorf("error allocating destination file: %w", err)
		}
	}

	t.mu.Lock()
	ranges := t.ranges
	written := t.written
	t.startTime = time.Now()
	t.mu.Unlock()
	t.session.Store(0)
	t.speedBits.Store(0)
	t.setStatus(StatusDownloading, false)

	fetcher := &ChunkFetcher{
		client:    t.client,
		url:       t.url,
		increment: t.cfg.ChunkIncrement,
		gate:      t.gate,
		limiter:   t.cfg.SharedLimiter,
		conns:     t.cfg.Connections,
		log:       t.log,
	}
	results := make([]FetchResult, len(ranges))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Workers)
	for i, rng := range ranges {
		g.Go(func() error {
			res, err := fetcher.Fetch(gctx, rng, written[i].Load(), file, func(n int64) {
				written[i].Add(n)
				t.recordProgress(gctx, n)
			})
			results[i] = res
			return err
		})
	}
	fetchErr := g.Wait()
	if err := file.Sync(); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("error syncing destination file: %w", err)
	}
	if fetchErr != nil {
		return fetchErr
	}
	for _, res := range results {
		if res.Cancelled {
			return ErrCancelled
		}
	}
	if got := t.downloaded.Load(); got < size {
		return &NetworkError{Op: "download", Err: fmt.Errorf("incomplete: %d of %d bytes", got, size)}
	}
	return nil
}

// recordProgress aggregates one increment, reports it, and applies the
// speed ceiling to the running average of this attempt.
func (t *Task) recordProgress(ctx context.Context, n int64) {
	downloaded := t.downloaded.Add(n)
	session := t.session.Add(n)
	t.mu.Lock()
	total := t.totalSize
	elapsed := time.Since(t.startTime)
	t.mu.Unlock()

	var speed float64
	if secs := elapsed.Seconds(); secs > 0 {
		speed = t.cfg.Throttle.Clip(float64(session) / secs)
	}
	t.speedBits.Store(math.Float64bits(speed))
	t.reporter.OnProgress(t.id, downloaded, total, speed, timeLeft(total, downloaded, speed))

	if delay := t.cfg.Throttle.Delay(session, elapsed); delay > 0 {
		_ = sleepCtx(ctx, delay)
	}
}

func (t *Task) complete() {
	t.setStatus(StatusCompleted, false)
	t.log.Info().Str("op", "http/task").Str("file", t.path).Int64("size", t.downloaded.Load()).Msg("download completed")
}

func (t *Task) fail(err error) error {
	t.mu.Lock()
	t.lastErr = err
	t.mu.Unlock()
	t.setStatus(StatusFailed, false)
	t.log.Error().Str("op", "http/task").Err(err).Str("file", t.path).Msg("download failed")
	t.reportError(err)
	return err
}

// Err returns the last attempt error, nil while healthy.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}
