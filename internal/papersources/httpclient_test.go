package papersources

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/domain"
)

// recordingRecorder captures RequestRecorder calls.
type recordingRecorder struct {
	mu          sync.Mutex
	requests    int
	failures    []string
	rateLimited int
}

func (r *recordingRecorder) RecordSourceRequest(_, _ string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests++
}

func (r *recordingRecorder) RecordSourceRequestFailed(_, _, errorType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, errorType)
}

func (r *recordingRecorder) RecordSourceRateLimited(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimited++
}

// scriptedUpstream answers the n-th request (1-based) with statuses[n-1],
// and with 200 once the script runs out.
func scriptedUpstream(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1))
		if n <= len(statuses) {
			if statuses[n-1] == http.StatusTooManyRequests {
				w.Header().Set("Retry-After", "0")
			}
			w.WriteHeader(statuses[n-1])
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func get(t *testing.T, ctx context.Context, target string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	require.NoError(t, err)
	return req
}

func fastRetries(source string, maxRetries int) HTTPClientConfig {
	return HTTPClientConfig{
		Source:     source,
		RateLimit:  100,
		BurstSize:  10,
		MaxRetries: maxRetries,
		RetryDelay: 10 * time.Millisecond,
	}
}

func TestNewHTTPClient_Defaults(t *testing.T) {
	c := NewHTTPClient(HTTPClientConfig{})

	assert.Equal(t, defaultHTTPTimeout, c.client.Timeout)
	assert.Equal(t, defaultUserAgent, c.config.UserAgent)
	assert.Equal(t, defaultMaxRetries, c.config.MaxRetries)
	assert.Equal(t, defaultRetryDelay, c.config.RetryDelay)
	assert.Equal(t, defaultBurst, c.limiter.Burst())

	custom := NewHTTPClient(HTTPClientConfig{Timeout: 15 * time.Second, BurstSize: 3, MaxRetries: 2, UserAgent: "ua/1"})
	assert.Equal(t, 15*time.Second, custom.client.Timeout)
	assert.Equal(t, 3, custom.limiter.Burst())
	assert.Equal(t, 2, custom.config.MaxRetries)
	assert.Equal(t, "ua/1", custom.config.UserAgent)
}

func TestHTTPClient_UserAgent(t *testing.T) {
	var seen atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	rec := &recordingRecorder{}
	c := NewHTTPClient(HTTPClientConfig{UserAgent: "PaperBot/2.0", RateLimit: 100, Recorder: rec})

	resp, err := c.Do(get(t, context.Background(), srv.URL))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, `{"status":"ok"}`, string(body))
	assert.Equal(t, "PaperBot/2.0", seen.Load())
	assert.Equal(t, 1, rec.requests)

	req := get(t, context.Background(), srv.URL)
	req.Header.Set("User-Agent", "caller/3.0")
	resp, err = c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "caller/3.0", seen.Load(), "an explicit header wins")
}

func TestHTTPClient_Proxy(t *testing.T) {
	t.Run("routes through the proxy", func(t *testing.T) {
		var host atomic.Value
		proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host.Store(r.URL.Host)
		}))
		defer proxy.Close()

		c := NewHTTPClient(HTTPClientConfig{RateLimit: 100})
		resp, err := c.DoWithProxy(get(t, context.Background(), "http://upstream.example/works"), proxy.URL)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, "upstream.example", host.Load())
	})

	t.Run("one client per proxy url", func(t *testing.T) {
		c := NewHTTPClient(HTTPClientConfig{})

		a1, err := c.clientFor("http://proxy-a:3128")
		require.NoError(t, err)
		a2, err := c.clientFor("http://proxy-a:3128")
		require.NoError(t, err)
		b, err := c.clientFor("http://proxy-b:3128")
		require.NoError(t, err)
		direct, err := c.clientFor("")
		require.NoError(t, err)

		assert.Same(t, a1, a2)
		assert.NotSame(t, a1, b)
		assert.Same(t, c.client, direct)
	})

	t.Run("malformed proxy url", func(t *testing.T) {
		c := NewHTTPClient(HTTPClientConfig{})
		_, err := c.DoWithProxy(get(t, context.Background(), "http://upstream.example"), "not a url")
		assert.ErrorContains(t, err, "invalid proxy url")
	})
}

func TestHTTPClient_Throttle(t *testing.T) {
	t.Run("requests beyond the burst wait for tokens", func(t *testing.T) {
		srv, hits := scriptedUpstream(t)
		c := NewHTTPClient(HTTPClientConfig{RateLimit: 10, BurstSize: 2})

		start := time.Now()
		for i := 0; i < 4; i++ {
			resp, err := c.Do(get(t, context.Background(), srv.URL))
			require.NoError(t, err)
			resp.Body.Close()
		}

		assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
		assert.Equal(t, int32(4), hits.Load())
	})

	t.Run("fractional rates allow one request and then hold", func(t *testing.T) {
		c := NewHTTPClient(HTTPClientConfig{RateLimit: 0.33, BurstSize: 1})
		assert.True(t, c.limiter.Allow())
		assert.False(t, c.limiter.Allow())
	})

	t.Run("gives up when the deadline is shorter than the wait", func(t *testing.T) {
		srv, hits := scriptedUpstream(t)
		c := NewHTTPClient(HTTPClientConfig{RateLimit: 0.1, BurstSize: 1})
		require.True(t, c.limiter.Allow())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := c.Do(get(t, ctx, srv.URL))
		assert.ErrorContains(t, err, "rate limiter wait")
		assert.Zero(t, hits.Load())
	})
}

func TestHTTPClient_Retries(t *testing.T) {
	t.Run("429 then success", func(t *testing.T) {
		srv, hits := scriptedUpstream(t, http.StatusTooManyRequests, http.StatusTooManyRequests)
		rec := &recordingRecorder{}
		cfg := fastRetries("openalex", 3)
		cfg.Recorder = rec

		resp, err := NewHTTPClient(cfg).Do(get(t, context.Background(), srv.URL))
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int32(3), hits.Load())
		assert.Equal(t, 2, rec.rateLimited)
		assert.Equal(t, 3, rec.requests)
	})

	for _, status := range []int{
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	} {
		t.Run(http.StatusText(status)+" then success", func(t *testing.T) {
			srv, hits := scriptedUpstream(t, status)
			rec := &recordingRecorder{}
			cfg := fastRetries("crossref", 3)
			cfg.Recorder = rec

			resp, err := NewHTTPClient(cfg).Do(get(t, context.Background(), srv.URL))
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, int32(2), hits.Load())
			assert.Equal(t, []string{"server_error"}, rec.failures)
		})
	}

	t.Run("4xx is handed back untouched", func(t *testing.T) {
		srv, hits := scriptedUpstream(t, http.StatusBadRequest)

		resp, err := NewHTTPClient(fastRetries("core", 3)).Do(get(t, context.Background(), srv.URL))
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("Retry-After seconds are honoured", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) == 1 {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
			}
		}))
		defer srv.Close()

		start := time.Now()
		resp, err := NewHTTPClient(fastRetries("arxiv", 3)).Do(get(t, context.Background(), srv.URL))
		require.NoError(t, err)
		resp.Body.Close()

		assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
	})

	t.Run("body is resent on retry", func(t *testing.T) {
		var hits atomic.Int32
		var last atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			last.Store(string(b))
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
			}
		}))
		defer srv.Close()

		const payload = `{"query":"graph neural networks"}`
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL, strings.NewReader(payload))
		require.NoError(t, err)
		req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(payload)), nil }

		resp, err := NewHTTPClient(fastRetries("core", 3)).Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, int32(2), hits.Load())
		assert.Equal(t, payload, last.Load())
	})
}

func TestHTTPClient_RetriesExhausted(t *testing.T) {
	t.Run("429 becomes a rate limit error", func(t *testing.T) {
		srv, hits := scriptedUpstream(t, 429, 429, 429, 429)

		resp, err := NewHTTPClient(fastRetries("arxiv", 2)).Do(get(t, context.Background(), srv.URL))
		require.Error(t, err)
		assert.Nil(t, resp)

		assert.Contains(t, err.Error(), "max retries exhausted after 3 attempts, last status: 429")
		assert.True(t, errors.Is(err, domain.ErrRateLimited))
		assert.Equal(t, domain.ErrorKindRateLimited, domain.ClassifyError(err))
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("5xx becomes an upstream error", func(t *testing.T) {
		srv, _ := scriptedUpstream(t, 503, 503, 503)

		_, err := NewHTTPClient(fastRetries("crossref", 1)).Do(get(t, context.Background(), srv.URL))
		require.Error(t, err)

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
		assert.Equal(t, "crossref", apiErr.Source)
		assert.Equal(t, domain.ErrorKindUpstreamUnavailable, domain.ClassifyError(err))
	})
}

func TestHTTPClient_Cancellation(t *testing.T) {
	t.Run("canceled before sending", func(t *testing.T) {
		srv, hits := scriptedUpstream(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		resp, err := NewHTTPClient(HTTPClientConfig{RateLimit: 100}).Do(get(t, ctx, srv.URL))
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, hits.Load())
	})

	t.Run("canceled while backing off", func(t *testing.T) {
		srv, hits := scriptedUpstream(t, 500, 500, 500, 500, 500, 500)
		c := NewHTTPClient(HTTPClientConfig{RateLimit: 100, MaxRetries: 5, RetryDelay: time.Second})

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(50*time.Millisecond, cancel)

		resp, err := c.Do(get(t, ctx, srv.URL))
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int32(1), hits.Load())
	})
}

func TestRetryAfter(t *testing.T) {
	const fallback = 500 * time.Millisecond

	cases := map[string]time.Duration{
		"":        fallback,
		"5":       5 * time.Second,
		"soon":    fallback,
		"0":       fallback,
		"-5":      fallback,
		time.Now().Add(-10 * time.Second).UTC().Format(http.TimeFormat): fallback,
	}
	for v, want := range cases {
		h := http.Header{}
		if v != "" {
			h.Set("Retry-After", v)
		}
		assert.Equal(t, want, retryAfter(h, fallback), "Retry-After %q", v)
	}

	h := http.Header{}
	h.Set("Retry-After", time.Now().Add(10*time.Second).UTC().Format(http.TimeFormat))
	d := retryAfter(h, fallback)
	assert.Greater(t, d, 8*time.Second)
	assert.LessOrEqual(t, d, 10*time.Second)
}

func TestRetryableStatus(t *testing.T) {
	for code, want := range map[int]bool{
		200: false, 400: false, 401: false, 404: false,
		429: true, 500: true, 502: true, 503: true, 504: true,
	} {
		assert.Equal(t, want, retryableStatus(code), "status %d", code)
	}
}
