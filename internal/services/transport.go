package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musixporter/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultMaxAttempts   = 3
	defaultBaseDelay     = 500 * time.Millisecond
	defaultMaxDelay      = 10 * time.Second
	defaultMaxRetryAfter = time.Minute
)

// RetryPolicy bounds the exponential backoff applied to transient failures.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxRetryAfter  time.Duration // ceiling for server Retry-After hints
	AttemptTimeout time.Duration // deadline for a single attempt; zero means none
}

// DefaultRetryPolicy is three attempts backing off 500ms, 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   defaultMaxAttempts,
		BaseDelay:     defaultBaseDelay,
		MaxDelay:      defaultMaxDelay,
		MaxRetryAfter: defaultMaxRetryAfter,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.MaxRetryAfter <= 0 {
		p.MaxRetryAfter = defaultMaxRetryAfter
	}
	return p
}

// Classifier inspects a successful-looking response and reports whether it is
// actually a transient failure (for APIs that signal quota errors in a 200 body).
type Classifier func(resp *http.Response) (retry bool, retryAfter time.Duration)

// RetryTransport is an [http.RoundTripper] that rate-limits requests and
// retries timeouts, network errors, 408, 429 and 5xx responses.
//
// Each attempt gets its own deadline (Policy.AttemptTimeout), so a hung attempt is
// retried like any other transient failure. When every attempt fails it returns a
// [shared.UpstreamUnavailableError].
type RetryTransport struct {
	Base     http.RoundTripper
	Service  string
	Policy   RetryPolicy
	Limiter  *rate.Limiter
	Classify Classifier
	Logger   *log.Logger
	Sleep    func(ctx context.Context, d time.Duration) error
	Closed   *atomic.Bool // set by the owning session; requests fail once true
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Closed != nil && t.Closed.Load() {
		return nil, fmt.Errorf("%w: %s session is closed", shared.ErrServiceUnavailable, t.Service)
	}

	ctx := req.Context()
	policy := t.Policy.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if t.Limiter != nil {
			if err := t.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		attemptReq, err := rewind(req, attempt)
		if err != nil {
			return nil, err
		}

		cancel := context.CancelFunc(func() {})
		if policy.AttemptTimeout > 0 {
			var attemptCtx context.Context
			attemptCtx, cancel = context.WithTimeout(ctx, policy.AttemptTimeout)
			attemptReq = attemptReq.WithContext(attemptCtx)
		}

		resp, err := t.base().RoundTrip(attemptReq)
		delay, retry := t.retryDelay(ctx, policy, resp, err, attempt)
		if !retry {
			if resp != nil && resp.Body != nil {
				resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
			} else {
				cancel()
			}
			return resp, err
		}

		lastErr = describeFailure(resp, err)
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		cancel()

		if attempt == policy.MaxAttempts {
			break
		}

		if t.Logger != nil {
			t.Logger.Debug("retrying request", "service", t.Service, "url", req.URL.Redacted(), "attempt", attempt, "delay", delay, "err", lastErr)
		}
		if err := t.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, &shared.UpstreamUnavailableError{Service: t.Service, Attempts: policy.MaxAttempts, Err: lastErr}
}

// cancelBody releases the attempt deadline once the caller is done with the body.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func (t *RetryTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *RetryTransport) retryDelay(ctx context.Context, policy RetryPolicy, resp *http.Response, err error, attempt int) (time.Duration, bool) {
	if ctx.Err() != nil {
		return 0, false
	}

	// The parent context is live here, so a deadline error came from the attempt timeout.
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, false
		}
		return backoffDelay(policy, attempt), true
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusServiceUnavailable:
		if after, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			return min(after, policy.MaxRetryAfter), true
		}
		return backoffDelay(policy, attempt), true
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode >= http.StatusInternalServerError:
		return backoffDelay(policy, attempt), true
	}

	if t.Classify != nil {
		if retry, after := t.Classify(resp); retry {
			if after > 0 {
				return min(after, policy.MaxRetryAfter), true
			}
			return backoffDelay(policy, attempt), true
		}
	}
	return 0, false
}

func (t *RetryTransport) sleep(ctx context.Context, delay time.Duration) error {
	if t.Sleep != nil {
		return t.Sleep(ctx, delay)
	}
	return sleep(ctx, delay)
}

// backoffDelay doubles from the base delay per attempt: base, base*2, base*4 ... capped at MaxDelay.
func backoffDelay(p RetryPolicy, attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if delay > p.MaxDelay/2 {
			return p.MaxDelay
		}
		delay *= 2
	}
	return min(delay, p.MaxDelay)
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, true
		}
		return delay, true
	}
	return 0, false
}

// rewind returns a request whose body can be sent again on a later attempt.
func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 1 || req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("cannot retry %s %s: request body is not replayable", req.Method, req.URL.Redacted())
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

func describeFailure(resp *http.Response, err error) error {
	if err != nil {
		return err
	}
	return &shared.HTTPStatusError{StatusCode: resp.StatusCode, Body: snippet(resp)}
}

// PeekBody reads the response body and replaces it so later readers still see it.
func PeekBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return data, err
}

func snippet(resp *http.Response) string {
	data, _ := PeekBody(resp)
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
