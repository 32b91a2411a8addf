package sdmhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

var errOutsideRange = errors.New("write outside chunk range")

// FetchResult describes what one chunk worker wrote during an attempt.
type FetchResult struct {
	Index     int
	Written   int64
	Cancelled bool
}

// ChunkFetcher performs ranged GETs for a single task.
type ChunkFetcher struct {
	client    Doer
	url       string
	increment int
	gate      *gate
	limiter   *rate.Limiter
	conns     *semaphore.Weighted
	log       zerolog.Logger
}

// Fetch downloads rng from offset bytes into the range onwards and writes the
// body into dst at the matching file positions. Cancellation through ctx is
// reported as a Cancelled result, not as an error. onProgress is called after
// every increment written.
func (f *ChunkFetcher) Fetch(ctx context.Context, rng ChunkRange, offset int64, dst io.WriterAt, onProgress func(n int64)) (FetchResult, error) {
	result := FetchResult{Index: rng.Index}
	if offset >= rng.Len() {
		return result, nil
	}
	if f.conns != nil {
		if err := f.conns.Acquire(ctx, 1); err != nil {
			result.Cancelled = true
			return result, nil
		}
		defer f.conns.Release(1)
	}

	sub := ChunkRange{Index: rng.Index, Start: rng.Start + offset, End: rng.End}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return result, fmt.Errorf("error creating GET request: %w", err)
	}
	req.Header.Set("Range", sub.Header())
	req.Header.Set("Connection", "keep-alive")
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			result.Cancelled = true
			return result, nil
		}
		return result, &NetworkError{Op: fmt.Sprintf("chunk %d", rng.Index), Err: err}
	}
	defer resp.Body.Close()
	if !acceptableStatus(resp, sub) {
		return result, &NetworkError{Op: fmt.Sprintf("chunk %d", rng.Index), StatusCode: resp.StatusCode}
	}
	f.log.Debug().Str("op", "http/fetch").Int("chunk", rng.Index).Str("range", sub.Header()).Msg("chunk stream opened")

	w := &rangeWriter{dst: dst, pos: sub.Start, end: sub.End}
	buffer := make([]byte, min(int64(f.increment), sub.Len()))
	remaining := sub.Len()
	for remaining > 0 {
		n := min(int64(len(buffer)), remaining)
		bytesRead, readErr := io.ReadFull(resp.Body, buffer[:n])
		if bytesRead > 0 {
			if ctx.Err() != nil {
				result.Cancelled = true
				return result, nil
			}
			// paused: the stream stays open, only the write waits
			if err := f.gate.Wait(ctx); err != nil {
				result.Cancelled = true
				return result, nil
			}
			if err := f.waitBandwidth(ctx, bytesRead); err != nil {
				result.Cancelled = true
				return result, nil
			}
			if _, err := w.Write(buffer[:bytesRead]); err != nil {
				return result, fmt.Errorf("error writing chunk %d: %w", rng.Index, err)
			}
			result.Written += int64(bytesRead)
			remaining -= int64(bytesRead)
			onProgress(int64(bytesRead))
		}
		if readErr != nil && remaining > 0 {
			if ctx.Err() != nil {
				result.Cancelled = true
				return result, nil
			}
			return result, &NetworkError{Op: fmt.Sprintf("chunk %d", rng.Index), Err: readErr}
		}
	}
	return result, nil
}

// waitBandwidth blocks on the shared limiter, splitting n into burst-sized
// reservations since WaitN rejects requests larger than the burst.
func (f *ChunkFetcher) waitBandwidth(ctx context.Context, n int) error {
	if f.limiter == nil || f.limiter.Limit() == rate.Inf {
		return nil
	}
	burst := max(f.limiter.Burst(), 1)
	for n > 0 {
		take := min(n, burst)
		if err := f.limiter.WaitN(ctx, take); err != nil {
			return err
		}
		n -= take
	}
	return nil
}

// A 200 is only acceptable when the requested range is the whole resource.
func acceptableStatus(resp *http.Response, sub ChunkRange) bool {
	switch resp.StatusCode {
	case http.StatusPartialContent:
		return true
	case http.StatusOK:
		return sub.Start == 0 && resp.ContentLength == sub.Len()
	default:
		return false
	}
}

// rangeWriter writes sequentially into [pos, end) of dst and refuses
// anything past end.
type rangeWriter struct {
	dst io.WriterAt
	pos int64
	end int64
}

func (w *rangeWriter) Write(p []byte) (int, error) {
	if w.pos+int64(len(p)) > w.end {
		return 0, errOutsideRange
	}
	n, err := w.dst.WriteAt(p, w.pos)
	w.pos += int64(n)
	return n, err
}
