package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/musixporter/internal/shared"
)

// sleepRecorder replaces real backoff sleeps in tests.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func testSession(service string, classify Classifier) (*Session, *sleepRecorder) {
	rec := &sleepRecorder{}
	session := NewSession(SessionOpts{
		Service: service,
		Policy: RetryPolicy{
			MaxAttempts:   3,
			BaseDelay:     10 * time.Millisecond,
			MaxDelay:      time.Second,
			MaxRetryAfter: time.Minute,
		},
		Classify: classify,
		Logger:   shared.NewLogger(io.Discard),
		Sleep:    rec.sleep,
	})
	return session, rec
}

func TestRetryTransport(t *testing.T) {
	t.Run("retries 5xx until success", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		session, rec := testSession("test", nil)
		defer session.Close()

		resp, err := session.GetJSON(context.Background(), server.URL, nil)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
		if calls.Load() != 3 {
			t.Errorf("expected 3 calls, got %d", calls.Load())
		}

		delays := rec.recorded()
		want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
		if len(delays) != len(want) {
			t.Fatalf("expected %d sleeps, got %v", len(want), delays)
		}
		for i := range want {
			if delays[i] != want[i] {
				t.Errorf("sleep %d: expected %v, got %v", i, want[i], delays[i])
			}
		}
	})

	t.Run("honors Retry-After on 429", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.Header().Set("Retry-After", "2")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		session, rec := testSession("test", nil)
		resp, err := session.GetJSON(context.Background(), server.URL, nil)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		resp.Body.Close()

		if delays := rec.recorded(); len(delays) != 1 || delays[0] != 2*time.Second {
			t.Errorf("expected a single 2s sleep, got %v", delays)
		}
	})

	t.Run("caps Retry-After", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.Header().Set("Retry-After", "3600")
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		session, rec := testSession("test", nil)
		resp, err := session.GetJSON(context.Background(), server.URL, nil)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		resp.Body.Close()

		if delays := rec.recorded(); len(delays) != 1 || delays[0] != time.Minute {
			t.Errorf("expected Retry-After capped at 1m, got %v", delays)
		}
	})

	t.Run("exhausted retries are upstream unavailable", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		session, _ := testSession("deezer", nil)
		_, err := session.GetJSON(context.Background(), server.URL, nil)
		if err == nil {
			t.Fatal("expected error")
		}

		var upstream *shared.UpstreamUnavailableError
		if !errors.As(err, &upstream) {
			t.Fatalf("expected UpstreamUnavailableError, got %T: %v", err, err)
		}
		if upstream.Attempts != 3 || upstream.Service != "deezer" {
			t.Errorf("unexpected error fields: %+v", upstream)
		}
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Error("expected error to match ErrServiceUnavailable")
		}
		if calls.Load() != 3 {
			t.Errorf("expected 3 calls, got %d", calls.Load())
		}
	})

	t.Run("does not retry 4xx", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		session, rec := testSession("test", nil)
		resp, err := session.GetJSON(context.Background(), server.URL, nil)
		if err != nil {
			t.Fatalf("expected response, got %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
		if calls.Load() != 1 || len(rec.recorded()) != 0 {
			t.Errorf("expected a single attempt, got %d calls", calls.Load())
		}
	})

	t.Run("replays request bodies", func(t *testing.T) {
		var mu sync.Mutex
		var bodies []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, _ := io.ReadAll(r.Body)
			mu.Lock()
			bodies = append(bodies, string(data))
			n := len(bodies)
			mu.Unlock()
			if n == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		session, _ := testSession("test", nil)
		req, err := http.NewRequest(http.MethodPost, server.URL, bytes.NewReader([]byte("grant_type=client_credentials")))
		if err != nil {
			t.Fatal(err)
		}
		resp, err := session.Do(req)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		resp.Body.Close()

		if len(bodies) != 2 || bodies[0] != bodies[1] {
			t.Errorf("expected identical bodies on both attempts, got %q", bodies)
		}
	})

	t.Run("classifier retries 200 bodies", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.Write([]byte(`{"error":{"type":"Exception","message":"Quota limit exceeded","code":4}}`))
				return
			}
			w.Write([]byte(`{"id":1}`))
		}))
		defer server.Close()

		session, rec := testSession("deezer", classifyDeezer)
		resp, err := session.GetJSON(context.Background(), server.URL, nil)
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		defer resp.Body.Close()

		if calls.Load() != 2 {
			t.Errorf("expected 2 calls, got %d", calls.Load())
		}
		if delays := rec.recorded(); len(delays) != 1 || delays[0] != 5*time.Second {
			t.Errorf("expected a 5s quota backoff, got %v", delays)
		}
	})

	t.Run("cancelled context stops immediately", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		session, _ := testSession("test", nil)
		_, err := session.GetJSON(ctx, server.URL, nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if calls.Load() != 0 {
			t.Errorf("expected no calls, got %d", calls.Load())
		}
	})

	t.Run("closed session rejects requests", func(t *testing.T) {
		session, _ := testSession("test", nil)
		if err := session.Close(); err != nil {
			t.Fatal(err)
		}
		if err := session.Close(); err != nil {
			t.Errorf("second close should be a no-op, got %v", err)
		}

		req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
		if _, err := session.Do(req); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}

		if _, err := session.Client().Get("http://example.invalid"); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected direct client use to fail too, got %v", err)
		}
	})

	t.Run("retries an attempt that times out", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
				return
			}
			w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		rec := &sleepRecorder{}
		session := NewSession(SessionOpts{
			Service: "test",
			Policy:  RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second},
			Timeout: 100 * time.Millisecond,
			Logger:  shared.NewLogger(io.Discard),
			Sleep:   rec.sleep,
		})
		defer session.Close()

		resp, err := session.GetJSON(context.Background(), server.URL, nil)
		if err != nil {
			t.Fatalf("expected the second attempt to succeed, got %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if string(body) != `{"ok":true}` {
			t.Errorf("unexpected body %q", body)
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 calls, got %d", calls.Load())
		}
		if len(rec.recorded()) != 1 {
			t.Errorf("expected one backoff, got %v", rec.recorded())
		}
	})

	t.Run("attempts that always time out are upstream unavailable", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer server.Close()

		session := NewSession(SessionOpts{
			Service: "test",
			Policy:  RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second},
			Timeout: 50 * time.Millisecond,
			Logger:  shared.NewLogger(io.Discard),
			Sleep:   (&sleepRecorder{}).sleep,
		})
		defer session.Close()

		_, err := session.GetJSON(context.Background(), server.URL, nil)
		var upstream *shared.UpstreamUnavailableError
		if !errors.As(err, &upstream) {
			t.Fatalf("expected UpstreamUnavailableError, got %v", err)
		}
		if upstream.Attempts != 2 || calls.Load() != 2 {
			t.Errorf("expected 2 attempts, got %d (server saw %d)", upstream.Attempts, calls.Load())
		}
	})
}

func TestBackoffDelay(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 500 * time.Millisecond, MaxDelay: 3 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{4, 3 * time.Second},
		{10, 3 * time.Second},
	}

	for _, tc := range tests {
		if got := backoffDelay(policy, tc.attempt); got != tc.want {
			t.Errorf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
		ok    bool
	}{
		{"seconds", "7", 7 * time.Second, true},
		{"zero", "0", 0, true},
		{"negative", "-1", 0, false},
		{"empty", "", 0, false},
		{"garbage", "soon", 0, false},
		{"past date", "Wed, 21 Oct 2015 07:28:00 GMT", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseRetryAfter(tc.value)
			if ok != tc.ok || got != tc.want {
				t.Errorf("parseRetryAfter(%q) = %v, %v; expected %v, %v", tc.value, got, ok, tc.want, tc.ok)
			}
		})
	}
}
