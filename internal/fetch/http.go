package fetch

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/veldscape/landcover-cli/internal/resilience"
)

// Options tunes the HTTP fetcher.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// Rate and Burst seed the per-host limiters. The limiters then adapt:
	// +20% on success up to twice the seed, halved on 429 down to a
	// quarter of it.
	Rate  rate.Limit
	Burst int
}

func (o *Options) fill() {
	if o.UserAgent == "" {
		o.UserAgent = "landcover-cli/1.0"
	}
	if o.Timeout == 0 {
		o.Timeout = 5 * time.Minute // rasters run to gigabytes
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.Rate == 0 {
		o.Rate = 5
	}
	if o.Burst == 0 {
		o.Burst = 5
	}
}

// AdaptiveLimiter is a rate.Limiter that tunes itself to the server: it
// speeds up while requests succeed and backs off hard on 429.
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	current rate.Limit
	max     rate.Limit
	min     rate.Limit
}

// NewAdaptiveLimiter seeds a limiter at the given rate.
func NewAdaptiveLimiter(seed rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(seed, burst),
		current: seed,
		max:     seed * 2,
		min:     seed / 4,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 20%, capped at twice the seed.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.current * 1.2
	if next > a.max {
		next = a.max
	}
	a.current = next
	a.limiter.SetLimit(next)
}

// OnRateLimit halves the rate, floored at a quarter of the seed.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.current * 0.5
	if next < a.min {
		next = a.min
	}
	a.current = next
	a.limiter.SetLimit(next)
	zap.L().Warn("reducing request rate after 429",
		zap.Float64("rate", float64(next)),
	)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// HTTP downloads over HTTP(S) with retries and per-host adaptive rate
// limiting.
type HTTP struct {
	client *http.Client
	opts   Options

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTP builds an HTTP fetcher.
func NewHTTP(opts Options) *HTTP {
	opts.fill()
	return &HTTP{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

// limiter returns the host's limiter, creating it on first use.
func (f *HTTP) limiter(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(f.opts.Rate, f.opts.Burst)
		f.limiters[host] = lim
	}
	return lim
}

// doWithRetry sends the request, retrying 429s, transient 5xx responses,
// and transport errors with jittered exponential backoff. Any other
// response is returned to the caller, body open.
func (f *HTTP) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	lim := f.limiter(req.URL.Host)

	cfg := resilience.RetryConfig{
		MaxAttempts:    f.opts.MaxRetries,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.25,
		OnRetry: func(attempt int, err error) {
			zap.L().Warn("retrying download",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		},
	}

	var resp *http.Response
	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		if err := lim.Wait(ctx); err != nil {
			return eris.Wrap(err, "fetch: rate limiter wait")
		}

		r, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			return resilience.NewTransientError(err, 0)
		}

		switch {
		case r.StatusCode == http.StatusTooManyRequests:
			_ = r.Body.Close()
			lim.OnRateLimit()
			return resilience.NewTransientError(
				eris.Errorf("fetch: http 429 from %s", req.URL.String()), r.StatusCode)
		case resilience.IsTransientHTTPStatus(r.StatusCode):
			_ = r.Body.Close()
			return resilience.NewTransientError(
				eris.Errorf("fetch: http %d from %s", r.StatusCode, req.URL.String()), r.StatusCode)
		}

		lim.OnSuccess()
		resp = r
		return nil
	})
	if err != nil {
		if resilience.IsTransient(err) {
			return nil, eris.Wrap(err, "fetch: all retries exhausted")
		}
		return nil, err
	}
	return resp, nil
}

func (f *HTTP) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	return req, nil
}

// Download fetches the URL and returns the response body.
func (f *HTTP) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := f.newRequest(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, eris.Errorf("fetch: unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return resp.Body, nil
}

// DownloadToFile fetches the URL into a file and reports bytes written.
func (f *HTTP) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	return writeFile(path, body)
}

// Mirror downloads the URL into path unless the remote ETag matches the one
// recorded by the previous download. It reports bytes written and whether
// the local file changed. Servers without ETags are downloaded every time.
func (f *HTTP) Mirror(ctx context.Context, rawURL, path string) (int64, bool, error) {
	req, err := f.newRequest(ctx, rawURL)
	if err != nil {
		return 0, false, err
	}
	if etag := readETag(path); etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusNotModified:
		zap.L().Debug("remote unchanged, keeping local copy",
			zap.String("url", rawURL),
			zap.String("path", path),
		)
		return 0, false, nil
	case http.StatusOK:
	default:
		return 0, false, eris.Errorf("fetch: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	n, err := writeFile(path, resp.Body)
	if err != nil {
		return n, false, err
	}
	writeETag(path, resp.Header.Get("ETag"))
	return n, true, nil
}

// ETags live in a sidecar so the data file stays bytewise identical to the
// remote.
func sidecarPath(path string) string { return path + ".etag" }

func readETag(path string) string {
	if _, err := os.Stat(path); err != nil {
		return "" // data file gone, force a download
	}
	data, err := os.ReadFile(sidecarPath(path))
	if err != nil {
		return ""
	}
	return string(data)
}

func writeETag(path, etag string) {
	side := sidecarPath(path)
	if etag == "" {
		_ = os.Remove(side)
		return
	}
	if err := os.WriteFile(side, []byte(etag), 0o644); err != nil {
		zap.L().Warn("failed to record etag", zap.String("path", side), zap.Error(err))
	}
}
