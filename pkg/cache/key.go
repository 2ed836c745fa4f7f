package cache

import (
	"net/http"
	"net/url"
	"strings"
)

// RequestKey identifies a stored response: request method plus absolute URL.
type RequestKey struct {
	// Method is the upper-cased request method (GET when empty)
	Method string

	// URL is the absolute request URL without fragment
	URL string
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// KeyFor derives the normalized key of a request.
func KeyFor(req *http.Request) RequestKey {
	return NewKey(req.Method, req.URL)
}

// NewKey normalizes method and URL into a RequestKey.
// Scheme and host are lower-cased, a default port is dropped, the fragment is
// dropped and an empty path becomes "/".
func NewKey(method string, u *url.URL) RequestKey {
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}
	if u == nil {
		return RequestKey{Method: method}
	}

	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)
	if port := n.Port(); defaultPorts[n.Scheme] == port && port != "" {
		n.Host = strings.TrimSuffix(n.Host, ":"+port)
	}
	n.Fragment = ""
	n.RawFragment = ""
	n.User = nil
	if n.Path == "" && n.Opaque == "" {
		n.Path = "/"
	}

	return RequestKey{Method: method, URL: n.String()}
}

// String generates the deterministic storage key.
// Format: METHOD URL
//
// Example:
//
//	GET https://app.example/api/tasks?page=1
func (k RequestKey) String() string {
	return k.Method + " " + k.URL
}

// ParseKey is the inverse of RequestKey.String.
func ParseKey(s string) (RequestKey, bool) {
	method, rawURL, ok := strings.Cut(s, " ")
	if !ok || method == "" || rawURL == "" {
		return RequestKey{}, false
	}
	return RequestKey{Method: method, URL: rawURL}, true
}
