package sdmhttp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// NewTask validates rawURL and prepares a pending task writing to
// destDir/fileName. An empty fileName falls back to the URL's last path
// segment. No network access happens here.
func NewTask(rawURL, destDir, fileName string, client Doer, reporter Reporter, cfg Config) (*Task, error) {
	if !IsValidURL(rawURL) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	if fileName == "" {
		fileName = FileNameFromURL(rawURL)
	}
	cfg = cfg.withDefaults()
	id := uuid.NewString()
	return &Task{
		id:       id,
		url:      rawURL,
		path:     filepath.Join(destDir, fileName),
		client:   client,
		reporter: reporter,
		cfg:      cfg,
		log:      cfg.Logger.With().Str("task", id).Logger(),
		status:   StatusPending,
		gate:     newGate(),
	}, nil
}

// FileNameFromURL returns the unescaped last path segment of raw, or
// "download" when there is none.
func FileNameFromURL(raw string) string {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return "download"
	}
	name := path.Base(parsedURL.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return "download"
	}
	return name
}

// probeSize issues a HEAD request and reads Content-Length.
func probeSize(ctx context.Context, client Doer, link string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, &NetworkError{Op: "probe", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &NetworkError{Op: "probe", StatusCode: resp.StatusCode}
	}
	contentLength := resp.Header.Get("Content-Length")
	if contentLength == "" {
		return 0, fmt.Errorf("%w: server didn't provide Content-Length header", ErrSizeUnknown)
	}
	size, err := strconv.ParseInt(contentLength, 10, 64)
	if err != nil || size <= 0 {
		return 0, fmt.Errorf("%w: invalid Content-Length %q", ErrSizeUnknown, contentLength)
	}
	return size, nil
}

// resetRanges partitions a newly probed size. Progress from a previous
// attempt is kept only when the size is unchanged and force is unset.
func (t *Task) resetRanges(size int64, force bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !force && t.totalSize == size && t.ranges != nil {
		return false
	}
	t.totalSize = size
	t.ranges = Partition(size, t.cfg.Workers)
	t.written = make([]atomic.Int64, len(t.ranges))
	t.downloaded.Store(0)
	return true
}
