// Package coastline retrieves coastline geometries, the seed of the
// coastal-strip mask that separates mangrove from inland forest.
package coastline

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/veldscape/landcover-cli/internal/resilience"
	"github.com/veldscape/landcover-cli/internal/store"
	"github.com/veldscape/landcover-cli/internal/vector"
)

// Provider yields a coastline layer for a region.
type Provider interface {
	Name() string
	Coastline(ctx context.Context, q Query) (*vector.Layer, error)
}

// Query selects the coastline extent and survey year.
type Query struct {
	MinX, MinY, MaxX, MaxY float64 // bounding box in the service CRS
	Year                   int     // survey year; 0 accepts any
}

// Validate rejects degenerate boxes.
func (q Query) Validate() error {
	if q.MinX >= q.MaxX || q.MinY >= q.MaxY {
		return eris.Errorf("coastline: degenerate bbox (%g,%g,%g,%g)", q.MinX, q.MinY, q.MaxX, q.MaxY)
	}
	return nil
}

func (q Query) bbox() string {
	parts := []string{
		strconv.FormatFloat(q.MinX, 'f', -1, 64),
		strconv.FormatFloat(q.MinY, 'f', -1, 64),
		strconv.FormatFloat(q.MaxX, 'f', -1, 64),
		strconv.FormatFloat(q.MaxY, 'f', -1, 64),
	}
	return strings.Join(parts, ",")
}

// Option configures the HTTP client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets the requests-per-second limit toward the service.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxRetries bounds retry attempts for transient failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithCache persists responses in the store's download cache so repeated
// runs over the same region skip the network.
func WithCache(st store.Store, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = st
		c.cacheTTL = ttl
	}
}

// WithCRS declares the CRS the service speaks. Returned layers carry it.
func WithCRS(crs string) Option {
	return func(c *Client) { c.crs = crs }
}

// Client fetches coastline GeoJSON over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	userAgent  string
	crs        string

	cache    store.Store
	cacheTTL time.Duration
}

// NewClient builds a coastline client for a service base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(2, 2),
		maxRetries: 3,
		userAgent:  "landcover-cli/1.0",
		crs:        "EPSG:4326",
		cacheTTL:   24 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Provider.
func (c *Client) Name() string { return "http" }

// Coastline implements Provider: GET the region's coastline, filtered to
// the query year.
func (c *Client) Coastline(ctx context.Context, q Query) (*vector.Layer, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	reqURL := c.requestURL(q)
	log := zap.L().With(
		zap.String("component", "coastline"),
		zap.String("url", reqURL),
	)

	if c.cache != nil {
		data, err := c.cache.GetCachedFetch(ctx, reqURL)
		switch {
		case err != nil:
			log.Warn("coastline cache lookup failed", zap.Error(err))
		case data != nil:
			log.Debug("coastline served from cache", zap.Int("bytes", len(data)))
			return c.decode(data, q, log)
		}
	}

	data, err := c.fetch(ctx, reqURL, log)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetCachedFetch(ctx, reqURL, data, c.cacheTTL); err != nil {
			log.Warn("coastline cache store failed", zap.Error(err))
		}
	}
	return c.decode(data, q, log)
}

func (c *Client) requestURL(q Query) string {
	params := url.Values{
		"bbox":   {q.bbox()},
		"format": {"geojson"},
	}
	if q.Year != 0 {
		params.Set("year", strconv.Itoa(q.Year))
	}
	// Geometries are requested in the working CRS so the rasterizer never
	// has to reproject them.
	if c.crs != "" {
		params.Set("crs", c.crs)
	}
	return c.baseURL + "/coastline?" + params.Encode()
}

// fetch GETs the URL, retrying 429s, transient 5xx responses, and transport
// errors with jittered exponential backoff.
func (c *Client) fetch(ctx context.Context, reqURL string, log *zap.Logger) ([]byte, error) {
	cfg := resilience.RetryConfig{
		MaxAttempts:    c.maxRetries,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		JitterFraction: 0.25,
		OnRetry: func(attempt int, err error) {
			log.Warn("coastline request failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		},
	}

	data, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "coastline: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "coastline: build request")
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/geo+json, application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(
				eris.Errorf("coastline: http %d from %s", resp.StatusCode, reqURL), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, eris.Errorf("coastline: unexpected status %d from %s", resp.StatusCode, reqURL)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "coastline: read response")
		}
		return data, nil
	})
	if err != nil {
		if resilience.IsTransient(err) {
			return nil, eris.Wrap(err, "coastline: all retries exhausted")
		}
		return nil, err
	}
	return data, nil
}

func (c *Client) decode(data []byte, q Query, log *zap.Logger) (*vector.Layer, error) {
	layer, skipped, err := vector.DecodeGeoJSON(data, c.crs)
	if err != nil {
		return nil, eris.Wrap(err, "coastline: decode response")
	}
	if skipped > 0 {
		log.Debug("coastline features skipped", zap.Int("count", skipped))
	}
	return FilterYear(layer, q.Year), nil
}

// FilterYear drops features whose "year" property is a different survey
// year. Features without the property, or with one that does not parse,
// are kept; services are inconsistent about carrying it.
func FilterYear(layer *vector.Layer, year int) *vector.Layer {
	if year == 0 {
		return layer
	}

	out := &vector.Layer{CRS: layer.CRS}
	for _, f := range layer.Features {
		v, ok := f.Attr("year")
		if ok {
			if y, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && y != year {
				continue
			}
		}
		out.Features = append(out.Features, f)
	}
	return out
}
