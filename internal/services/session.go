package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musixporter/internal/shared"
	"golang.org/x/time/rate"
)

// SessionOpts configures a [Session].
type SessionOpts struct {
	Service   string
	Policy    RetryPolicy
	Timeout   time.Duration // per attempt; overrides Policy.AttemptTimeout when set
	RateLimit rate.Limit // requests per second; zero means unlimited
	Burst     int
	Classify  Classifier
	Logger    *log.Logger
	Transport http.RoundTripper // base transport; defaults to a clone of http.DefaultTransport
	Sleep     func(ctx context.Context, d time.Duration) error
}

// Session owns the HTTP client, rate limiter and logger used to talk to one upstream
// service for the duration of a run. It is created explicitly and must be closed.
type Session struct {
	service string
	client  *http.Client
	base    http.RoundTripper
	logger  *log.Logger
	closed  *atomic.Bool
}

// NewSession builds a session whose client retries and rate-limits every request.
func NewSession(opts SessionOpts) *Session {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	if opts.Policy == (RetryPolicy{}) {
		opts.Policy = DefaultRetryPolicy()
	}
	if opts.Timeout > 0 {
		opts.Policy.AttemptTimeout = opts.Timeout
	}

	limit := opts.RateLimit
	if limit <= 0 {
		limit = rate.Inf
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}

	logger := opts.Logger.With("service", opts.Service)
	closed := &atomic.Bool{}
	transport := &RetryTransport{
		Base:     opts.Transport,
		Service:  opts.Service,
		Policy:   opts.Policy,
		Limiter:  rate.NewLimiter(limit, opts.Burst),
		Classify: opts.Classify,
		Logger:   logger,
		Sleep:    opts.Sleep,
		Closed:   closed,
	}

	return &Session{
		service: opts.Service,
		client:  &http.Client{Transport: transport},
		base:    opts.Transport,
		logger:  logger,
		closed:  closed,
	}
}

// OptsFromConfig fills session options from the shared HTTP retry settings.
func OptsFromConfig(service string, cfg *shared.Config, logger *log.Logger) SessionOpts {
	return SessionOpts{
		Service: service,
		Policy: RetryPolicy{
			MaxAttempts: cfg.HTTP.MaxAttempts,
			BaseDelay:   cfg.HTTP.BaseDelay,
			MaxDelay:    cfg.HTTP.MaxDelay,
		},
		Timeout: cfg.HTTP.Timeout,
		Logger:  logger,
	}
}

func (s *Session) Service() string { return s.service }

func (s *Session) Logger() *log.Logger { return s.logger }

// Client returns the retrying HTTP client. Requests through it fail once the session is closed.
func (s *Session) Client() *http.Client { return s.client }

// Do sends req through the session client.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	return s.client.Do(req)
}

// GetJSON issues a GET request and returns the response for status inspection.
// The caller owns the body.
func (s *Session) GetJSON(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	return s.Do(req)
}

// Close releases idle connections. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if t, ok := s.base.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}

// decodeJSON decodes the response body into out and closes it.
func decodeJSON(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// statusError maps a non-2xx response to a typed error. Returns nil for 2xx.
func statusError(service, resource, id string, resp *http.Response, detail string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return &shared.NotFoundError{Service: service, Resource: resource, ID: id}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &shared.PermissionError{Service: service, StatusCode: resp.StatusCode, Message: detail}
	default:
		if detail == "" {
			detail = snippet(resp)
		}
		return &shared.HTTPStatusError{StatusCode: resp.StatusCode, Body: detail}
	}
}
