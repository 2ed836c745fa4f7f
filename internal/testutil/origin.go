// Package testutil provides testing utilities for the offline layer.
package testutil

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// ErrOffline is returned by Network while it is switched offline.
var ErrOffline = errors.New("dial tcp: network is unreachable")

// OriginResponse defines the behavior for a mock origin path.
type OriginResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Origin is a configurable mock of the application origin (app shell,
// static assets and /api/ endpoints).
type Origin struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	requests map[string]int
	total    int
}

// NewOrigin creates a new mock origin server.
func NewOrigin() *Origin {
	origin := &Origin{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		requests: make(map[string]int),
	}

	origin.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin.mu.Lock()
		origin.requests[r.URL.Path]++
		origin.total++
		handler, exists := origin.handlers[r.URL.Path]
		origin.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		origin.defaultHandler(w, r)
	}))

	return origin
}

// URL returns the origin base URL.
func (o *Origin) URL() string {
	return o.server.URL
}

// ParsedURL returns the origin base URL parsed.
func (o *Origin) ParsedURL() *url.URL {
	u, _ := url.Parse(o.server.URL)
	return u
}

// Close shuts down the mock server.
func (o *Origin) Close() {
	o.server.Close()
}

// Reset clears all tracking counters.
func (o *Origin) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = make(map[string]int)
	o.total = 0
}

// SetHandler sets a custom handler for a specific path.
func (o *Origin) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (o *Origin) SetResponse(path string, resp OriginResponse) {
	o.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// RequestCount returns the number of requests served for path.
func (o *Origin) RequestCount(path string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.requests[path]
}

// TotalRequests returns the number of requests served for all paths.
func (o *Origin) TotalRequests() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.total
}

// Network returns a transport that reaches this origin and can be switched offline.
func (o *Origin) Network() *Network {
	return &Network{base: o.server.Client().Transport}
}

// defaultHandler serves every unknown path as a small static asset.
func (o *Origin) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "asset:%s", r.URL.Path)
}

// Network is an http.RoundTripper standing in for the device's network.
type Network struct {
	base    http.RoundTripper
	offline atomic.Bool
	calls   atomic.Int64
}

// NewNetwork wraps base (http.DefaultTransport when nil).
func NewNetwork(base http.RoundTripper) *Network {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Network{base: base}
}

// RoundTrip implements http.RoundTripper.
func (n *Network) RoundTrip(req *http.Request) (*http.Response, error) {
	n.calls.Add(1)
	if n.offline.Load() {
		return nil, &url.Error{Op: req.Method, URL: req.URL.String(), Err: ErrOffline}
	}
	return n.base.RoundTrip(req)
}

// SetOffline toggles transport failures.
func (n *Network) SetOffline(offline bool) {
	n.offline.Store(offline)
}

// Calls returns the number of RoundTrip invocations, offline ones included.
func (n *Network) Calls() int {
	return int(n.calls.Load())
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(data string) OriginResponse {
	return OriginResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewAssetResponse creates a 200 OK static asset response.
func NewAssetResponse(body, contentType string) OriginResponse {
	return OriginResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": contentType,
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() OriginResponse {
	return OriginResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() OriginResponse {
	return OriginResponse{
		StatusCode: http.StatusNotFound,
		Body:       "not found",
		Headers: map[string]string{
			"Content-Type": "text/plain; charset=utf-8",
		},
	}
}

// NewRedirectHandler redirects every request to target.
func NewRedirectHandler(target string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusFound)
	}
}
