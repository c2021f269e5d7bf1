package action

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/crowdbench/internal/httpclient"
	"github.com/torosent/crowdbench/internal/ledger"
	"github.com/torosent/crowdbench/internal/logging"
	"github.com/torosent/crowdbench/internal/metrics"
	"github.com/torosent/crowdbench/internal/tracing"
	"github.com/torosent/crowdbench/internal/users"
)

// Reasons recorded for requests that produced no HTTP status.
const (
	ReasonCancelled    = "Task cancelled by scheduler, exception suppressed"
	ReasonDisconnected = "Server disconnected, exception suppressed"
	ReasonTimeout      = "Request timed out, exception suppressed"
	ReasonNotFinished  = "Exception occurred but not caught"
)

// SessionConfig wires a Session to the process's shared resources. Only
// Action and Ledger are required.
type SessionConfig struct {
	Action    string
	Ledger    *ledger.Store
	Client    *http.Client
	Headers   http.Header
	Tracing   *tracing.Provider
	Collector *metrics.Collector
	Users     *users.Directory
	Logger    *zap.Logger
}

// Session executes the requests of one action process. It is safe for
// concurrent use by every user of the action.
type Session struct {
	action    string
	ledger    *ledger.Store
	client    *http.Client
	headers   http.Header
	tracing   *tracing.Provider
	collector *metrics.Collector
	users     *users.Directory
	logger    *zap.Logger

	warn rate.Sometimes
}

func NewSession(cfg SessionConfig) *Session {
	client := cfg.Client
	if client == nil {
		client = httpclient.NewClient(0, 0)
	}
	collector := cfg.Collector
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Session{
		action:    cfg.Action,
		ledger:    cfg.Ledger,
		client:    client,
		headers:   cfg.Headers,
		tracing:   cfg.Tracing,
		collector: collector,
		users:     cfg.Users,
		logger:    logging.OrNop(cfg.Logger).With(zap.String("action", cfg.Action)),
		warn:      rate.Sometimes{First: 3, Interval: 5 * time.Second},
	}
}

// Collector returns the session's metrics collector.
func (s *Session) Collector() *metrics.Collector { return s.collector }

// User returns the synthetic user with the given id.
func (s *Session) User(id int) User {
	return User{ID: id, Label: s.users.Label(id)}
}

// Get sends a GET request on behalf of u.
func (s *Session) Get(ctx context.Context, u User, target string, headers http.Header) (int, string, []byte) {
	return s.do(ctx, u, http.MethodGet, target, headers, nil)
}

// Post sends a POST request with body on behalf of u.
func (s *Session) Post(ctx context.Context, u User, target string, headers http.Header, body []byte) (int, string, []byte) {
	if body == nil {
		body = []byte{}
	}
	return s.do(ctx, u, http.MethodPost, target, headers, body)
}

// do performs one atomic request. Its ledger row is finalized on every exit
// path, panics included.
func (s *Session) do(ctx context.Context, u User, method, target string, headers http.Header, body []byte) (code int, reason string, respBody []byte) {
	started := time.Now()
	entry, err := s.ledger.Begin(ctx, s.action, u.Label, true)
	if err != nil {
		s.logger.Error("ledger insert failed", zap.Error(err))
	}

	code, reason = ledger.CodeUnclassified, ReasonNotFinished
	defer func() {
		r := recover()
		if r != nil {
			code, reason = ledger.CodeUnclassified, fmt.Sprintf("panic: %v", r)
		}
		s.finish(entry, started, code, reason)
		if r != nil {
			panic(r)
		}
	}()

	req, err := httpclient.NewRequest(ctx, method, target, s.headers, headers, body)
	if err != nil {
		code, reason = s.classify(ctx, err)
		return code, reason, nil
	}
	_, span := s.tracing.StartRequest(ctx, s.action, u.Label, req)
	defer func() { tracing.Finish(span, code, reason) }()

	resp, err := s.client.Do(req)
	if err != nil {
		code, reason = s.classify(ctx, err)
		return code, reason, nil
	}
	defer resp.Body.Close()

	respBody, err = io.ReadAll(resp.Body)
	if err != nil {
		code, reason = s.classify(ctx, err)
		return code, reason, nil
	}
	return resp.StatusCode, statusReason(resp), respBody
}

func (s *Session) finish(entry *ledger.Entry, started time.Time, code int, reason string) {
	if err := entry.Finish(code, reason); err != nil {
		s.logger.Error("ledger update failed", zap.Error(err))
	}
	s.collector.Record(time.Since(started), code, reason)
}

// classify maps a request error to a reserved code. Cancellation by the
// scheduler is expected and not logged; other failures are logged at a
// throttled rate.
func (s *Session) classify(ctx context.Context, err error) (int, string) {
	if ctx.Err() != nil {
		return ledger.CodeCancelled, ReasonCancelled
	}

	code, reason := Classify(err)
	s.warn.Do(func() {
		s.logger.Warn("request failed",
			zap.Int("code", code),
			zap.String("reason", reason),
			zap.Error(err),
		)
	})
	return code, reason
}

// Classify maps an error that occurred while the request context was still
// live to a reserved code and a stable reason.
func Classify(err error) (int, string) {
	inner := err
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		inner = urlErr.Err
	}

	switch {
	case errors.Is(inner, io.EOF),
		errors.Is(inner, io.ErrUnexpectedEOF),
		errors.Is(inner, syscall.ECONNRESET),
		errors.Is(inner, syscall.EPIPE):
		return ledger.CodeDisconnected, ReasonDisconnected
	}

	var netErr net.Error
	if errors.As(inner, &netErr) {
		if netErr.Timeout() {
			return ledger.CodeTransport, ReasonTimeout
		}
		return ledger.CodeTransport, metrics.ErrorLabel(inner) + ", exception suppressed"
	}
	if errors.Is(inner, context.DeadlineExceeded) {
		return ledger.CodeTransport, ReasonTimeout
	}
	return ledger.CodeUnclassified, metrics.ErrorLabel(inner)
}

func statusReason(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return reason
}

// Loop runs one iteration of act for user id inside a whole-action ledger
// entry. A panicking action is recorded as unclassified and does not
// propagate.
func (s *Session) Loop(ctx context.Context, act Action, id int) (code int, reason string) {
	u := s.User(id)
	entry, err := s.ledger.Begin(ctx, s.action, u.Label, false)
	if err != nil {
		s.logger.Error("ledger insert failed", zap.Error(err))
	}

	code, reason = ledger.CodeUnclassified, ReasonNotFinished
	defer func() {
		if r := recover(); r != nil {
			code, reason = ledger.CodeUnclassified, fmt.Sprintf("panic: %v", r)
			s.logger.Error("action panicked", zap.String("user", u.Label), zap.Any("panic", r))
		}
		if err := entry.Finish(code, reason); err != nil {
			s.logger.Error("ledger update failed", zap.Error(err))
		}
	}()

	return act.Perform(ctx, s, u)
}

// Iteration returns a function running one Loop of act, in the shape the
// crowd executor drives.
func (s *Session) Iteration(act Action) func(ctx context.Context, id int) {
	return func(ctx context.Context, id int) {
		s.Loop(ctx, act, id)
	}
}
