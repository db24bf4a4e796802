package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/researchaccelerator-hub/youtube-trends/config"
	"github.com/researchaccelerator-hub/youtube-trends/quota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

type recordingUsage struct {
	mu    sync.Mutex
	units map[string]int
}

func newRecordingUsage() *recordingUsage {
	return &recordingUsage{units: make(map[string]int)}
}

func (r *recordingUsage) RecordUsage(id string, units int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[id] += units
}

func (r *recordingUsage) get(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.units[id]
}

func gErr(code int, reason string) error {
	e := &googleapi.Error{Code: code, Message: http.StatusText(code)}
	if reason != "" {
		e.Errors = []googleapi.ErrorItem{{Reason: reason, Message: reason}}
	}
	return e
}

func TestFetch_RetryCeiling(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		maxRetries   int
		wantAttempts int
		wantBilled   int
	}{
		{"server error retried", gErr(503, ""), 3, 4, 0},
		{"rate limited retried", gErr(429, ""), 2, 3, 0},
		{"network error retried", errors.New("connection reset by peer"), 1, 2, 0},
		{"no retries", gErr(500, ""), 0, 1, 0},
		{"bad request not retried", gErr(400, "badRequest"), 3, 1, 7},
		{"forbidden not retried", gErr(403, "quotaExceeded"), 3, 1, 7},
		{"not found not retried", gErr(404, "notFound"), 3, 1, 7},
		{"conflict not retried", gErr(409, ""), 3, 1, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usage := newRecordingUsage()
			f := NewFetcher(usage, config.RetryConfig{})

			attempts := 0
			_, err := Fetch(context.Background(), f, "k1",
				CallOptions{Op: OpVideos, Cost: 7, MaxRetries: tt.maxRetries, BaseDelay: time.Millisecond},
				func(ctx context.Context) (int, error) {
					attempts++
					return 0, tt.err
				})

			require.Error(t, err)
			assert.Equal(t, tt.wantAttempts, attempts)
			assert.Equal(t, tt.wantBilled, usage.get("k1"))

			var apiErr *APIError
			assert.True(t, errors.As(err, &apiErr))
		})
	}
}

func TestFetch_SuccessAfterTransient(t *testing.T) {
	usage := newRecordingUsage()
	f := NewFetcher(usage, config.RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond})

	attempts := 0
	out, err := Fetch(context.Background(), f, "k1", f.Options(OpSearch, 100), func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", gErr(502, "")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 100, usage.get("k1"))
}

func TestFetch_BackoffDoubles(t *testing.T) {
	f := NewFetcher(nil, config.RetryConfig{})

	var stamps []time.Time
	start := time.Now()
	_ = f.Do(context.Background(), "k", CallOptions{Op: OpVideos, MaxRetries: 2, BaseDelay: 20 * time.Millisecond},
		func(ctx context.Context) error {
			stamps = append(stamps, time.Now())
			return gErr(503, "")
		})

	require.Len(t, stamps, 3)
	// 20ms then 40ms
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 20*time.Millisecond)
	assert.GreaterOrEqual(t, stamps[2].Sub(stamps[1]), 40*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestFetch_HTTPClientTimeoutRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(200 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	httpClient := &http.Client{Timeout: 20 * time.Millisecond}
	usage := newRecordingUsage()
	f := NewFetcher(usage, config.RetryConfig{})

	attempts := 0
	err := f.Do(context.Background(), "k", CallOptions{Op: OpVideos, Cost: 1, MaxRetries: 2, BaseDelay: time.Millisecond},
		func(ctx context.Context) error {
			attempts++
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
			if err != nil {
				return err
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return err
			}
			return resp.Body.Close()
		})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsTransient())
	assert.Equal(t, 3, attempts)
	assert.Zero(t, usage.get("k"))
}

func TestFetch_CancelledIsNotAnError(t *testing.T) {
	f := NewFetcher(nil, config.RetryConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	done := make(chan struct{})
	var out string
	var err error
	go func() {
		defer close(done)
		out, err = Fetch(ctx, f, "k", CallOptions{Op: OpSearch, MaxRetries: 5, BaseDelay: time.Hour},
			func(ctx context.Context) (string, error) {
				attempts++
				return "partial", gErr(503, "")
			})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not stop after cancellation")
	}

	assert.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 1, attempts)
}

func TestFetch_AlreadyCancelled(t *testing.T) {
	f := NewFetcher(nil, config.RetryConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := f.Do(ctx, "k", f.Options(OpSearch, 100), func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		quota     bool
		auth      bool
		notFound  bool
		transient bool
	}{
		{"quota", gErr(403, "quotaExceeded"), true, false, false, false},
		{"daily limit", gErr(403, "dailyLimitExceeded"), true, false, false, false},
		{"key invalid", gErr(400, "keyInvalid"), false, true, false, false},
		{"unauthorized", gErr(401, ""), false, true, false, false},
		{"forbidden channel", gErr(403, "channelForbidden"), false, false, false, false},
		{"not found", gErr(404, "playlistNotFound"), false, false, true, false},
		{"too many requests", gErr(429, ""), false, false, false, true},
		{"gateway timeout", gErr(504, ""), false, false, false, true},
		{"network", errors.New("dial tcp: timeout"), false, false, false, true},
		{"generic forbidden", gErr(403, "forbidden"), false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var apiErr *APIError
			require.True(t, errors.As(Classify(context.Background(), tt.err), &apiErr))
			assert.Equal(t, tt.quota, apiErr.IsQuota())
			assert.Equal(t, tt.auth, apiErr.IsAuth())
			assert.Equal(t, tt.notFound, apiErr.IsNotFound())
			assert.Equal(t, tt.transient, apiErr.IsTransient())

			assert.Equal(t, tt.quota, errors.Is(apiErr, ErrQuotaExceeded))
			assert.Equal(t, tt.quota, errors.Is(apiErr, quota.ErrQuotaExceeded))
			assert.Equal(t, tt.auth, errors.Is(apiErr, quota.ErrInvalidCredential))
			assert.Equal(t, tt.notFound, errors.Is(apiErr, ErrNotFound))
		})
	}

	assert.NoError(t, Classify(context.Background(), nil))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Classify(cancelled, context.Canceled), context.Canceled)
	var apiErr *APIError
	assert.False(t, errors.As(Classify(cancelled, context.Canceled), &apiErr))

	// an HTTP client timeout on a live context is transient
	require.True(t, errors.As(Classify(context.Background(), context.DeadlineExceeded), &apiErr))
	assert.True(t, apiErr.IsTransient())
}

func TestPacer_SpacesCalls(t *testing.T) {
	p := NewPacer(config.DelayConfig{Videos: 30 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(ctx, OpVideos))
	}
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)

	// operations without a delay are not paced
	start = time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Wait(ctx, OpProbe))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
