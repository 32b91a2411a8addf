package utils

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSDMHTTPClientAppliesHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer server.Close()

	client := NewSDMHTTPClient(HTTPClientConfig{
		Headers: ParseHeaderArgs([]string{"X-Token: abc"}),
	})
	client.SetHeader("X-Extra", "1")
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if got.Get("User-Agent") != ToolUserAgent {
		t.Errorf("expected default user agent, got %q", got.Get("User-Agent"))
	}
	if got.Get("X-Token") != "abc" || got.Get("X-Extra") != "1" {
		t.Errorf("custom headers missing: %v", got)
	}
}

func TestSDMHTTPClientRandomUserAgent(t *testing.T) {
	client := NewSDMHTTPClient(HTTPClientConfig{UserAgent: "randomize"})
	found := false
	for _, ua := range userAgents {
		if client.config.UserAgent == ua {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a user agent from the list, got %q", client.config.UserAgent)
	}
}

func TestSDMHTTPClientTimeoutSparesSlowBodies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "8")
		w.Write([]byte("abcd"))
		w.(http.Flusher).Flush()
		// a paused reader leaves the stream idle well past the timeout
		time.Sleep(600 * time.Millisecond)
		w.Write([]byte("efgh"))
	}))
	defer server.Close()

	client := NewSDMHTTPClient(HTTPClientConfig{Timeout: 200 * time.Millisecond})
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body failed: %v", err)
	}
	if string(body) != "abcdefgh" {
		t.Errorf("expected full body, got %q", body)
	}
}

func TestSDMHTTPClientTimeoutBoundsHeaders(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewSDMHTTPClient(HTTPClientConfig{Timeout: 100 * time.Millisecond})
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	start := time.Now()
	resp, err := client.Do(req)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected a response header timeout")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("expected a timeout error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took too long: %s", elapsed)
	}
}
