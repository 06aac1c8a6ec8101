// Package geocode resolves postal codes and free-text addresses to
// coordinates through external HTTP providers.
//
// Every client is rate limited, bounded by a per-call timeout and backed by
// an optional negative cache so that known misses are not re-queried.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/photodispatch/internal/domain/model"
	"github.com/okian/photodispatch/pkg/logger"
	"github.com/okian/photodispatch/pkg/metrics"
)

var (
	// ErrNoResult means the provider answered but knows no such place.
	ErrNoResult = errors.New("geocode: no result")
	// ErrDisabled means the client has no credentials configured.
	ErrDisabled = errors.New("geocode: provider disabled")
)

const (
	defaultTimeout  = 7 * time.Second
	errorBodyLimit  = 4 << 10
	resultOK        = "ok"
	resultMiss      = "miss"
	resultCached    = "cached_miss"
	resultError     = "error"
	resultDisabled  = "disabled"
	resultThrottled = "throttled"
)

// Result is a resolved place.
type Result struct {
	Point        model.Point
	Neighborhood string
	City         string
}

// PostalGeocoder resolves a normalized postal code.
type PostalGeocoder interface {
	LookupPostalCode(ctx context.Context, code string) (Result, error)
}

// AddressGeocoder resolves a free-text address.
type AddressGeocoder interface {
	GeocodeAddress(ctx context.Context, address string) (Result, error)
}

type options struct {
	httpClient *http.Client
	timeout    time.Duration
	rps        float64
	burst      int
	misses     MissCache
	logger     logger.Logger
}

// Option configures a geocoding client.
type Option func(*options)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRateLimit caps outbound requests. rps <= 0 disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.rps = rps
		o.burst = burst
	}
}

// WithMissCache remembers queries that produced no result.
func WithMissCache(c MissCache) Option {
	return func(o *options) {
		if c != nil {
			o.misses = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// client carries the transport concerns shared by every provider.
type client struct {
	provider string
	http     *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	misses   MissCache
	logger   logger.Logger
}

func newClient(provider string, opts []Option) client {
	o := options{
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		misses:     NopMissCache{},
		logger:     logger.Named("geocode"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	limit := rate.Inf
	if o.rps > 0 {
		limit = rate.Limit(o.rps)
	}
	burst := o.burst
	if burst <= 0 {
		burst = 1
	}
	return client{
		provider: provider,
		http:     o.httpClient,
		limiter:  rate.NewLimiter(limit, burst),
		timeout:  o.timeout,
		misses:   o.misses,
		logger:   o.logger,
	}
}

// fetch runs one provider round trip for key. build creates the request and
// decode turns a 2xx body into a Result or ErrNoResult.
func (c client) fetch(
	ctx context.Context,
	key string,
	build func(ctx context.Context) (*http.Request, error),
	decode func(body io.Reader) (Result, error),
) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.RecordGeocodeLatency(c.provider, float64(time.Since(start).Milliseconds()))
	}()

	missKey := c.provider + ":" + key
	if known, err := c.misses.IsMiss(ctx, missKey); err != nil {
		c.logger.Warn(ctx, "miss cache read failed", logger.String("provider", c.provider), logger.Error(err))
	} else if known {
		metrics.RecordGeocodeRequest(c.provider, resultCached)
		return Result{}, ErrNoResult
	}

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.RecordGeocodeRequest(c.provider, resultThrottled)
		return Result{}, fmt.Errorf("geocode %s: rate limit: %w", c.provider, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := build(ctx)
	if err != nil {
		metrics.RecordGeocodeRequest(c.provider, resultError)
		return Result{}, fmt.Errorf("geocode %s: build request: %w", c.provider, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordGeocodeRequest(c.provider, resultError)
		return Result{}, fmt.Errorf("geocode %s: do request: %w", c.provider, err)
	}
	defer resp.Body.Close()

	var res Result
	switch {
	case resp.StatusCode == http.StatusNotFound:
		err = ErrNoResult
	case resp.StatusCode >= http.StatusMultipleChoices:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		err = fmt.Errorf("geocode %s: http %s: %s", c.provider, resp.Status, strings.TrimSpace(string(b)))
	default:
		res, err = decode(resp.Body)
	}

	switch {
	case errors.Is(err, ErrNoResult):
		metrics.RecordGeocodeRequest(c.provider, resultMiss)
		if cacheErr := c.misses.RecordMiss(ctx, missKey); cacheErr != nil {
			c.logger.Warn(ctx, "miss cache write failed", logger.String("provider", c.provider), logger.Error(cacheErr))
		}
		return Result{}, ErrNoResult
	case err != nil:
		metrics.RecordGeocodeRequest(c.provider, resultError)
		return Result{}, err
	}
	metrics.RecordGeocodeRequest(c.provider, resultOK)
	return res, nil
}
