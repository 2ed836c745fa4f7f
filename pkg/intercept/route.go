package intercept

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Route is the routing decision for one request.
type Route string

const (
	// RouteNetworkFirst tries the network and falls back to the runtime partition.
	RouteNetworkFirst Route = "network-first"

	// RouteCacheFirst serves static, then runtime, then the network.
	RouteCacheFirst Route = "cache-first"

	// RoutePassthrough sends the request to the network untouched.
	RoutePassthrough Route = "passthrough"
)

// extensionSchemes are browser-extension resources the interceptor never handles.
var extensionSchemes = map[string]bool{
	"chrome-extension":     true,
	"moz-extension":        true,
	"safari-web-extension": true,
	"ms-browser-extension": true,
}

// Classify picks the strategy for a same-origin URL by its shape.
// Any path containing "/api/" is treated as API traffic.
func Classify(u *url.URL) Route {
	if u != nil && strings.Contains(u.Path, "/api/") {
		return RouteNetworkFirst
	}
	return RouteCacheFirst
}

// IsExtensionScheme reports whether scheme denotes a browser-extension resource.
func IsExtensionScheme(scheme string) bool {
	return extensionSchemes[strings.ToLower(scheme)]
}

// SameOrigin compares scheme, host and port. Default ports are made explicit
// so https://app.example and https://app.example:443 match.
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return origin(a) == origin(b)
}

func origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return scheme + "://" + net.JoinHostPort(host, port)
}

// cacheable reports whether a request method may be served from or stored in a partition.
func cacheable(method string) bool {
	return method == "" || method == http.MethodGet
}
