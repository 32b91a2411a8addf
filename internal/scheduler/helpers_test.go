package scheduler

import (
	"bytes"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	sdmhttp "github.com/tanq16/sdm/internal/downloaders/http"
)

// memDoer serves files from memory keyed by URL path, using ServeContent
// for HEAD and Range handling.
type memDoer struct {
	files  map[string][]byte
	status int
	heads  atomic.Int32
	// stall, when set, holds every GET body after half of it was sent
	// until the channel closes or the request is cancelled.
	stall chan struct{}
}

func (d *memDoer) Do(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	if req.Method == http.MethodHead {
		d.heads.Add(1)
	}
	if d.status != 0 {
		rec := httptest.NewRecorder()
		rec.WriteHeader(d.status)
		return rec.Result(), nil
	}
	data, ok := d.files[req.URL.Path]
	if !ok {
		rec := httptest.NewRecorder()
		http.NotFound(rec, req)
		return rec.Result(), nil
	}
	rec := httptest.NewRecorder()
	http.ServeContent(rec, req, "", time.Time{}, bytes.NewReader(data))
	resp := rec.Result()
	if d.stall == nil || req.Method != http.MethodGet {
		return resp, nil
	}
	body, _ := io.ReadAll(resp.Body)
	pr, pw := io.Pipe()
	go func() {
		half := len(body) / 2
		pw.Write(body[:half])
		select {
		case <-d.stall:
			pw.Write(body[half:])
			pw.Close()
		case <-req.Context().Done():
			pw.CloseWithError(req.Context().Err())
		}
	}()
	resp.Body = pr
	return resp, nil
}

type event struct {
	id     string
	status sdmhttp.Status
}

type recordingReporter struct {
	mu      sync.Mutex
	events  []event
	removed []string
	errs    map[string]error
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{errs: make(map[string]error)}
}

func (r *recordingReporter) OnProgress(string, int64, int64, float64, time.Duration) {}

func (r *recordingReporter) OnStatusChange(id string, s sdmhttp.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{id, s})
}

func (r *recordingReporter) OnRemoved(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
}

func (r *recordingReporter) OnError(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[id] = err
}

func (r *recordingReporter) has(id string, s sdmhttp.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.id == id && e.status == s {
			return true
		}
	}
	return false
}

func (r *recordingReporter) count(id string, s sdmhttp.Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.id == id && e.status == s {
			n++
		}
	}
	return n
}

func (r *recordingReporter) waitFor(id string, s sdmhttp.Status, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.has(id, s) {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func (r *recordingReporter) wasRemoved(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.removed {
		if v == id {
			return true
		}
	}
	return false
}

func randomData(n int) []byte {
	rng := rand.New(rand.NewPCG(7, uint64(n)))
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(rng.UintN(256))
	}
	return data
}

func testOptions(doer sdmhttp.Doer, reporter sdmhttp.Reporter) Options {
	cfg := sdmhttp.DefaultConfig()
	cfg.Workers = 2
	cfg.RetryInterval = time.Millisecond
	cfg.ChunkIncrement = 1024
	return Options{
		Task:          cfg,
		ParallelTasks: 4,
		Client:        doer,
		Reporter:      reporter,
		Logger:        zerolog.Nop(),
	}
}

func fileURL(name string) string {
	return fmt.Sprintf("https://example.com/%s", strings.TrimPrefix(name, "/"))
}
