package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/helixir/paper-search-service/internal/domain"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultRatePerSec  = 10
	defaultBurst       = 10
	defaultMaxRetries  = 3
	defaultRetryDelay  = time.Second
	defaultUserAgent   = "PaperSearchService/1.0"
)

// HTTPClientConfig tunes one upstream's HTTP client. Zero fields take defaults.
type HTTPClientConfig struct {
	// Source names the upstream in errors and metrics.
	Source string
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// RateLimit is the sustained requests per second; BurstSize the bucket depth.
	RateLimit float64
	BurstSize int
	// MaxRetries counts attempts after the first one.
	MaxRetries int
	// RetryDelay is used when the upstream gives no usable Retry-After.
	RetryDelay time.Duration
	UserAgent  string
	// Recorder is optional.
	Recorder RequestRecorder
}

// RequestRecorder receives per-request outcomes from the HTTP client.
// *observability.Metrics satisfies it.
type RequestRecorder interface {
	RecordSourceRequest(source, endpoint string, durationSeconds float64)
	RecordSourceRequestFailed(source, endpoint, errorType string)
	RecordSourceRateLimited(source string)
}

// HTTPClient is the shared transport for every source adapter: a token
// bucket in front of each attempt, retries on 429 and 5xx, and one cached
// http.Client per proxy URL. Safe for concurrent use.
type HTTPClient struct {
	client  *http.Client
	limiter *rate.Limiter
	config  HTTPClientConfig

	mu      sync.Mutex
	proxied map[string]*http.Client
}

// NewHTTPClient fills in defaults and builds the client.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRatePerSec
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = defaultBurst
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	return &HTTPClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.BurstSize),
		config:  cfg,
		proxied: make(map[string]*http.Client),
	}
}

// Do sends req without a proxy.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithProxy(req, "")
}

// DoWithProxy sends req, through proxyURL when it is non-empty. Responses
// other than 429 and 5xx are returned to the caller as they are, including
// other 4xx codes. A request with a body is only resent if GetBody is set.
func (c *HTTPClient) DoWithProxy(req *http.Request, proxyURL string) (*http.Response, error) {
	client, err := c.clientFor(proxyURL)
	if err != nil {
		return nil, err
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	ctx := req.Context()
	endpoint := req.URL.Path
	attempts := c.config.MaxRetries + 1

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		start := time.Now()
		resp, err := client.Do(req)
		c.recordRequest(endpoint, time.Since(start))

		var delay time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.recordFailure(endpoint, "canceled")
				return nil, err
			}
			c.recordFailure(endpoint, "network")
			if attempt == attempts {
				return nil, fmt.Errorf("request failed: %w", err)
			}
			delay = c.config.RetryDelay

		case retryableStatus(resp.StatusCode):
			delay = retryAfter(resp.Header, c.config.RetryDelay)
			drain(resp)
			if resp.StatusCode == http.StatusTooManyRequests {
				c.recordRateLimited()
			} else {
				c.recordFailure(endpoint, "server_error")
			}
			if attempt == attempts {
				return nil, c.exhausted(resp.StatusCode, delay)
			}

		default:
			return resp, nil
		}

		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
		if err := rewindBody(req); err != nil {
			return nil, fmt.Errorf("cannot retry request: %w", err)
		}
	}
}

func (c *HTTPClient) exhausted(status int, delay time.Duration) error {
	msg := fmt.Sprintf("max retries exhausted after %d attempts, last status: %d", c.config.MaxRetries+1, status)
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w", msg, domain.NewRateLimitError(c.config.Source, delay))
	}
	return domain.NewExternalAPIError(c.config.Source, status, msg, domain.ErrServiceUnavailable)
}

// clientFor returns the direct client for an empty proxyURL, otherwise a
// client bound to that proxy, built once and reused.
func (c *HTTPClient) clientFor(proxyURL string) (*http.Client, error) {
	if proxyURL == "" {
		return c.client, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if hc, ok := c.proxied[proxyURL]; ok {
		return hc, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy url %q", proxyURL)
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = http.ProxyURL(u)
	hc := &http.Client{Timeout: c.config.Timeout, Transport: tr}
	c.proxied[proxyURL] = hc
	return hc, nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// retryAfter reads Retry-After as delta-seconds or an HTTP date. Values that
// are missing, malformed or not in the future yield fallback.
func retryAfter(h http.Header, fallback time.Duration) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return fallback
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		if secs > 0 {
			return time.Duration(secs) * time.Second
		}
		return fallback
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return fallback
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func rewindBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("get body: %w", err)
	}
	req.Body = body
	return nil
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func (c *HTTPClient) recordRequest(endpoint string, d time.Duration) {
	if c.config.Recorder != nil {
		c.config.Recorder.RecordSourceRequest(c.config.Source, endpoint, d.Seconds())
	}
}

func (c *HTTPClient) recordFailure(endpoint, errorType string) {
	if c.config.Recorder != nil {
		c.config.Recorder.RecordSourceRequestFailed(c.config.Source, endpoint, errorType)
	}
}

func (c *HTTPClient) recordRateLimited() {
	if c.config.Recorder != nil {
		c.config.Recorder.RecordSourceRateLimited(c.config.Source)
	}
}
