// Package intercept provides the fetch interceptor: an http.RoundTripper that
// routes same-origin traffic through the versioned cache partitions.
package intercept

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Sternrassler/paradigm-offline/pkg/cache"
	"github.com/Sternrassler/paradigm-offline/pkg/lifecycle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Prometheus metrics for interceptor operations.
var (
	paradigmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paradigm_intercept_requests_total",
		Help: "Total intercepted requests by route and outcome",
	}, []string{"route", "outcome"})

	paradigmRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paradigm_intercept_request_duration_seconds",
		Help:    "Intercepted request duration in seconds by route",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
	}, []string{"route"})

	paradigmNetworkErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paradigm_intercept_network_errors_total",
		Help: "Network outcomes of intercepted requests by error class",
	}, []string{"class"})

	paradigmStoreFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paradigm_intercept_store_failures_total",
		Help: "Swallowed partition store failures by operation",
	}, []string{"operation"})
)

// Request outcomes recorded in paradigm_intercept_requests_total.
const (
	outcomeNetwork  = "network"
	outcomeCache    = "cache"
	outcomeFallback = "fallback"
	outcomeError    = "error"
)

var tracer = otel.Tracer("github.com/Sternrassler/paradigm-offline/pkg/intercept")

// Gate supplies the partitions traffic is routed through (lifecycle.Controller).
// Routing is disabled while it reports false.
type Gate interface {
	Serving() (lifecycle.Partitions, bool)
}

// Observer receives network outcomes (connectivity.Tracker).
type Observer interface {
	ReportSuccess()
	ReportFailure(err error)
}

// Config holds the interceptor configuration.
type Config struct {
	// Origin is the application's own origin; other origins pass through
	Origin *url.URL

	// Network is the underlying transport (http.DefaultTransport when nil)
	Network http.RoundTripper

	// Store holds the partitions
	Store cache.Store

	// Partitions names the static and runtime partitions used when Gate is nil
	Partitions lifecycle.Partitions

	// Gate supplies the serving partitions per request (optional)
	Gate Gate

	// Observer is told about every network outcome (optional)
	Observer Observer
}

// Interceptor routes requests through the cache partitions.
//
// API requests (path contains "/api/") are network-first: any received
// response is returned and stored into the runtime partition; a transport
// error falls back to the stored copy. Everything else is cache-first:
// static, then runtime, then the network, storing only 200 same-origin
// responses. Stores run detached from the request and never fail it.
type Interceptor struct {
	origin     *url.URL
	network    http.RoundTripper
	store      cache.Store
	partitions lifecycle.Partitions
	gate       Gate
	observer   Observer
	logger     zerolog.Logger

	// pending tracks detached stores
	pending sync.WaitGroup
}

// New creates an interceptor.
func New(cfg Config, logger zerolog.Logger) (*Interceptor, error) {
	if cfg.Origin == nil || cfg.Origin.Scheme == "" || cfg.Origin.Host == "" {
		return nil, fmt.Errorf("origin must be an absolute URL")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if cfg.Gate == nil && (cfg.Partitions.Static == "" || cfg.Partitions.Runtime == "") {
		return nil, fmt.Errorf("static and runtime partition names are required")
	}

	network := cfg.Network
	if network == nil {
		network = http.DefaultTransport
	}

	return &Interceptor{
		origin:     cfg.Origin,
		network:    network,
		store:      cfg.Store,
		partitions: cfg.Partitions,
		gate:       cfg.Gate,
		observer:   cfg.Observer,
		logger:     logger.With().Str("component", "interceptor").Logger(),
	}, nil
}

// Decide returns the route a request would take.
func (i *Interceptor) Decide(req *http.Request) Route {
	route, _ := i.decide(req)
	return route
}

func (i *Interceptor) decide(req *http.Request) (Route, lifecycle.Partitions) {
	partitions := i.partitions
	if i.gate != nil {
		var ok bool
		if partitions, ok = i.gate.Serving(); !ok {
			return RoutePassthrough, partitions
		}
	}
	if req.URL == nil || IsExtensionScheme(req.URL.Scheme) || !SameOrigin(req.URL, i.origin) {
		return RoutePassthrough, partitions
	}
	if !cacheable(req.Method) {
		return RoutePassthrough, partitions
	}
	return Classify(req.URL), partitions
}

// RoundTrip implements http.RoundTripper.
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	route, partitions := i.decide(req)
	if route == RoutePassthrough {
		if req.URL != nil && SameOrigin(req.URL, i.origin) {
			return i.fetch(req)
		}
		return i.network.RoundTrip(req)
	}

	start := time.Now()
	defer func() {
		paradigmRequestDuration.WithLabelValues(string(route)).Observe(time.Since(start).Seconds())
	}()

	ctx, span := tracer.Start(req.Context(), "intercept "+string(route),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.URL.Path),
			attribute.String("paradigm.route", string(route)),
			attribute.String("paradigm.partition", partitions.Static),
		),
	)
	defer span.End()
	req = req.WithContext(ctx)

	var (
		resp    *http.Response
		outcome string
		err     error
	)
	switch route {
	case RouteNetworkFirst:
		resp, outcome, err = i.networkFirst(req, partitions)
	default:
		resp, outcome, err = i.cacheFirst(req, partitions)
	}

	paradigmRequestsTotal.WithLabelValues(string(route), outcome).Inc()
	span.SetAttributes(attribute.String("paradigm.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

// networkFirst is Strategy A. A body that fails to read after the headers
// arrived counts as a transport failure and falls back like one.
func (i *Interceptor) networkFirst(req *http.Request, p lifecycle.Partitions) (*http.Response, string, error) {
	ctx := req.Context()
	key := cache.KeyFor(req)

	resp, err := i.fetch(req)
	if err == nil {
		var entry *cache.Entry
		entry, err = cache.ResponseToEntry(resp, i.responseType(resp))
		if err == nil {
			if class := ClassifyError(resp, nil); class != ErrorClassNone {
				i.logger.Debug().
					Str("url", key.URL).
					Int("status", resp.StatusCode).
					Str("error_class", string(class)).
					Msg("API error response stored as network result")
			}
			i.storeDetached(ctx, p.Runtime, key, entry)
			return resp, outcomeNetwork, nil
		}
	}

	entry, ok := i.lookup(ctx, p.Runtime, key)
	if !ok {
		i.logger.Debug().Err(err).Str("url", key.URL).Msg("Network failed and no stored response")
		return nil, outcomeError, err
	}

	i.logger.Debug().
		Err(err).
		Str("url", key.URL).
		Dur("age", entry.Age()).
		Msg("Network failed - serving stored response")
	return cache.EntryToResponse(entry, req), outcomeFallback, nil
}

// cacheFirst is Strategy B.
func (i *Interceptor) cacheFirst(req *http.Request, p lifecycle.Partitions) (*http.Response, string, error) {
	ctx := req.Context()
	key := cache.KeyFor(req)

	for _, name := range []string{p.Static, p.Runtime} {
		if entry, ok := i.lookup(ctx, name, key); ok {
			i.logger.Debug().Str("url", key.URL).Str("partition", name).Msg("Cache hit")
			return cache.EntryToResponse(entry, req), outcomeCache, nil
		}
	}

	resp, err := i.fetch(req)
	if err != nil {
		return nil, outcomeError, err
	}

	typ := i.responseType(resp)
	if resp.StatusCode != http.StatusOK || typ != cache.TypeBasic {
		i.logger.Debug().
			Str("url", key.URL).
			Int("status", resp.StatusCode).
			Str("type", string(typ)).
			Msg("Response not eligible for runtime partition")
		return resp, outcomeNetwork, nil
	}

	entry, err := cache.ResponseToEntry(resp, typ)
	if err != nil {
		return nil, outcomeError, err
	}
	i.storeDetached(ctx, p.Runtime, key, entry)
	return resp, outcomeNetwork, nil
}

// fetch performs the network call and reports its outcome.
func (i *Interceptor) fetch(req *http.Request) (*http.Response, error) {
	resp, err := i.network.RoundTrip(req)

	class := ClassifyError(resp, err)
	if class != ErrorClassNone {
		paradigmNetworkErrorsTotal.WithLabelValues(string(class)).Inc()
	}

	if i.observer != nil {
		if err != nil {
			i.observer.ReportFailure(err)
		} else {
			i.observer.ReportSuccess()
		}
	}
	return resp, err
}

// lookup reads a partition. Storage faults are logged and treated as a miss.
func (i *Interceptor) lookup(ctx context.Context, name string, key cache.RequestKey) (*cache.Entry, bool) {
	partition, err := i.store.Open(ctx, name)
	if err != nil {
		paradigmStoreFailuresTotal.WithLabelValues("open").Inc()
		i.logger.Warn().Err(err).Str("partition", name).Msg("Failed to open partition")
		return nil, false
	}

	entry, err := partition.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			paradigmStoreFailuresTotal.WithLabelValues("get").Inc()
			i.logger.Warn().Err(err).Str("partition", name).Str("key", key.String()).Msg("Cache get error")
		}
		return nil, false
	}
	return entry, true
}

// storeDetached writes entry in the background. The write is not cancelled
// with the request and its failure is only logged.
func (i *Interceptor) storeDetached(ctx context.Context, name string, key cache.RequestKey, entry *cache.Entry) {
	ctx = context.WithoutCancel(ctx)

	i.pending.Add(1)
	go func() {
		defer i.pending.Done()

		partition, err := i.store.Open(ctx, name)
		if err == nil {
			err = partition.Put(ctx, key, entry)
		}
		if err != nil {
			paradigmStoreFailuresTotal.WithLabelValues("put").Inc()
			i.logger.Warn().Err(err).Str("partition", name).Str("key", key.String()).Msg("Failed to store response")
			return
		}

		i.logger.Debug().Str("partition", name).Str("key", key.String()).Msg("Stored response")
	}()
}

// Wait blocks until every dispatched store has finished.
func (i *Interceptor) Wait() {
	i.pending.Wait()
}

// responseType is basic when the final response URL is same-origin.
// responseType classifies resp by the URL it was finally served from.
// http.Transport never follows redirects, so for a plain network this is the
// request URL and the result is basic. Transports that follow redirects report
// the final request in resp.Request, and a cross-origin final URL is opaque.
func (i *Interceptor) responseType(resp *http.Response) cache.ResponseType {
	if resp.Request != nil && resp.Request.URL != nil && !SameOrigin(resp.Request.URL, i.origin) {
		return cache.TypeOpaque
	}
	return cache.TypeBasic
}
