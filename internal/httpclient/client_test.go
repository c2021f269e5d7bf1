package httpclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHeadersCanonicalizes(t *testing.T) {
	h, err := Headers(map[string]string{" x-team ": "perf", "accept": ""})
	if err != nil {
		t.Fatalf("Headers() error = %v", err)
	}
	if got := h.Get("X-Team"); got != "perf" {
		t.Errorf("X-Team = %q, want perf", got)
	}
	if _, ok := h["Accept"]; !ok {
		t.Error("empty header value should be kept")
	}
}

func TestHeadersRejectsInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"empty key":        {"  ": "v"},
		"newline in key":   {"X-\nBad": "v"},
		"newline in value": {"X-Bad": "a\r\nb"},
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Headers(raw); err == nil {
				t.Fatalf("Headers(%q) error = nil, want error", raw)
			}
		})
	}
}

func TestNewRequestOverlaysHeaders(t *testing.T) {
	base := http.Header{"X-Team": {"perf"}, "Accept": {"text/html"}}
	extra := http.Header{"Accept": {"application/json"}}

	req, err := NewRequest(context.Background(), "post", "http://svc.local/items", base, extra, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if req.Method != http.MethodPost {
		t.Errorf("Method = %q, want POST", req.Method)
	}
	if got := req.Header.Values("Accept"); len(got) != 1 || got[0] != "application/json" {
		t.Errorf("Accept = %v, want overlay value only", got)
	}
	if req.Header.Get("X-Team") != "perf" {
		t.Errorf("X-Team lost")
	}
	if req.ContentLength != 7 {
		t.Errorf("ContentLength = %d, want 7", req.ContentLength)
	}
	body, _ := io.ReadAll(req.Body)
	if string(body) != `{"a":1}` {
		t.Errorf("body = %q", body)
	}
}

func TestNewClientTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(30*time.Millisecond, 10)
	defer client.CloseIdleConnections()

	resp, err := client.Get(srv.URL)
	if resp != nil {
		resp.Body.Close()
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("Get() error = %v, want timeout", err)
	}
}

func TestNewClientTransport(t *testing.T) {
	tests := []struct {
		concurrency int
		wantPerHost int
	}{
		{concurrency: 10, wantPerHost: 10},
		{concurrency: 0, wantPerHost: defaultIdlePerHost},
	}
	for _, tt := range tests {
		client := NewClient(-time.Second, tt.concurrency)
		if client.Timeout != 0 {
			t.Errorf("Timeout = %s, want 0 for a negative timeout", client.Timeout)
		}
		transport := client.Transport.(*http.Transport)
		if transport.MaxIdleConnsPerHost != tt.wantPerHost {
			t.Errorf("MaxIdleConnsPerHost = %d, want %d", transport.MaxIdleConnsPerHost, tt.wantPerHost)
		}
		if transport.MaxIdleConns != 2*tt.wantPerHost {
			t.Errorf("MaxIdleConns = %d, want %d", transport.MaxIdleConns, 2*tt.wantPerHost)
		}
	}
}
