package sdmhttp

import (
	"bytes"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// fakeTransport serves data from memory and honours Range headers.
type fakeTransport struct {
	data        []byte
	headStatus  int
	getStatus   int
	omitLength  bool
	ignoreRange bool

	mu     sync.Mutex
	ranges []string
	heads  atomic.Int32
	gets   atomic.Int32
	served atomic.Int64
}

func newFakeTransport(data []byte) *fakeTransport {
	return &fakeTransport{data: data}
}

func (f *fakeTransport) Do(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	header := make(http.Header)
	switch req.Method {
	case http.MethodHead:
		f.heads.Add(1)
		if f.headStatus != 0 {
			return response(req, f.headStatus, header, nil), nil
		}
		if !f.omitLength {
			header.Set("Content-Length", strconv.Itoa(len(f.data)))
		}
		header.Set("Accept-Ranges", "bytes")
		return response(req, http.StatusOK, header, nil), nil
	case http.MethodGet:
		f.gets.Add(1)
		if f.getStatus != 0 {
			return response(req, f.getStatus, header, []byte("server error")), nil
		}
		rangeHeader := req.Header.Get("Range")
		f.mu.Lock()
		f.ranges = append(f.ranges, rangeHeader)
		f.mu.Unlock()
		if rangeHeader == "" || f.ignoreRange {
			return f.body(req, http.StatusOK, header, f.data), nil
		}
		start, end, err := parseRange(rangeHeader)
		if err != nil {
			return nil, err
		}
		end = min(end, int64(len(f.data))-1)
		header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(f.data)))
		return f.body(req, http.StatusPartialContent, header, f.data[start:end+1]), nil
	}
	return response(req, http.StatusMethodNotAllowed, header, nil), nil
}

func (f *fakeTransport) body(req *http.Request, status int, header http.Header, payload []byte) *http.Response {
	resp := response(req, status, header, nil)
	resp.Body = &countingReader{r: bytes.NewReader(payload), n: &f.served}
	resp.ContentLength = int64(len(payload))
	return resp
}

func (f *fakeTransport) rangeHeaders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ranges...)
}

func response(req *http.Request, status int, header http.Header, payload []byte) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Status:        http.StatusText(status),
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(payload)),
		ContentLength: int64(len(payload)),
		Request:       req,
	}
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func (c *countingReader) Close() error { return nil }

func parseRange(h string) (int64, int64, error) {
	parts := strings.Split(strings.TrimPrefix(h, "bytes="), "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad range %q", h)
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	end, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// recordingReporter keeps every event it receives.
type recordingReporter struct {
	mu         sync.Mutex
	statuses   []Status
	removed    []string
	errs       []error
	progress   int
	lastDown   int64
	maxDown    int64
	decreased  bool
	onProgress func(downloaded, total int64)
}

func (r *recordingReporter) OnProgress(_ string, downloaded, total int64, _ float64, _ time.Duration) {
	r.mu.Lock()
	r.progress++
	if downloaded < r.maxDown {
		r.decreased = true
	}
	r.maxDown = max(r.maxDown, downloaded)
	r.lastDown = downloaded
	hook := r.onProgress
	r.mu.Unlock()
	if hook != nil {
		hook(downloaded, total)
	}
}

func (r *recordingReporter) OnStatusChange(_ string, s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recordingReporter) OnRemoved(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
}

func (r *recordingReporter) OnError(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func (r *recordingReporter) waitFor(s Status, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, got := range r.Statuses() {
			if got == s {
				return true
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func randomData(n int) []byte {
	rng := rand.New(rand.NewPCG(42, uint64(n)))
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(rng.UintN(256))
	}
	return data
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryInterval = time.Millisecond
	cfg.ChunkIncrement = 4 * 1024
	return cfg
}
