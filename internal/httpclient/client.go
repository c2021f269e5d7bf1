package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultIdlePerHost = 32

// Headers validates and canonicalizes a header map.
func Headers(raw map[string]string) (http.Header, error) {
	headers := make(http.Header, len(raw))
	for key, value := range raw {
		name := http.CanonicalHeaderKey(strings.TrimSpace(key))
		switch {
		case name == "" || strings.ContainsAny(name, "\r\n"):
			return nil, fmt.Errorf("invalid header key %q", key)
		case strings.ContainsAny(value, "\r\n"):
			return nil, fmt.Errorf("invalid header value for %s", name)
		}
		headers.Set(name, value)
	}
	return headers, nil
}

// NewRequest builds a request carrying base headers overlaid with extra.
// A nil body sends no payload.
func NewRequest(ctx context.Context, method, target string, base, extra http.Header, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, reader)
	if err != nil {
		return nil, err
	}
	for key, values := range base {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	for key, values := range extra {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return req, nil
}

// NewClient returns a client tuned for many concurrent synthetic users
// hitting the same few hosts. Idle connections are kept for up to
// concurrency users per host so looping users reuse them.
func NewClient(timeout time.Duration, concurrency int) *http.Client {
	if concurrency <= 0 {
		concurrency = defaultIdlePerHost
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 2 * concurrency
	transport.MaxIdleConnsPerHost = concurrency
	transport.TLSHandshakeTimeout = 10 * time.Second

	return &http.Client{
		Timeout:   max(timeout, 0),
		Transport: transport,
	}
}
