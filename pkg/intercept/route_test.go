package intercept

import (
	"errors"
	"net/http"
	"net/url"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		want Route
	}{
		{"https://app.example/api/tasks", RouteNetworkFirst},
		{"https://app.example/v2/api/tasks?page=2", RouteNetworkFirst},
		{"https://app.example/api/", RouteNetworkFirst},
		{"https://app.example/", RouteCacheFirst},
		{"https://app.example/index.html", RouteCacheFirst},
		{"https://app.example/api", RouteCacheFirst},
		{"https://app.example/apiary/logo.png", RouteCacheFirst},
		{"https://app.example/static/app.js?q=/api/", RouteCacheFirst},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := Classify(mustParse(t, tt.url)); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"https://app.example", "https://app.example/index.html", true},
		{"https://app.example", "https://APP.example:443/x", true},
		{"http://localhost:8080", "http://localhost:8080/api/tasks", true},
		{"https://app.example", "http://app.example/", false},
		{"https://app.example", "https://app.example:8443/", false},
		{"https://app.example", "https://cdn.app.example/", false},
		{"http://localhost:8080", "http://localhost/", false},
	}

	for _, tt := range tests {
		t.Run(tt.a+" vs "+tt.b, func(t *testing.T) {
			if got := SameOrigin(mustParse(t, tt.a), mustParse(t, tt.b)); got != tt.want {
				t.Errorf("SameOrigin() = %v, want %v", got, tt.want)
			}
		})
	}

	if SameOrigin(nil, mustParse(t, "https://app.example")) {
		t.Error("nil URL must never match")
	}
}

func TestIsExtensionScheme(t *testing.T) {
	for _, scheme := range []string{"chrome-extension", "moz-extension", "safari-web-extension", "Chrome-Extension"} {
		if !IsExtensionScheme(scheme) {
			t.Errorf("IsExtensionScheme(%q) = false", scheme)
		}
	}
	for _, scheme := range []string{"http", "https", "data", ""} {
		if IsExtensionScheme(scheme) {
			t.Errorf("IsExtensionScheme(%q) = true", scheme)
		}
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		resp *http.Response
		err  error
		want ErrorClass
	}{
		{name: "transport error", err: errors.New("connection reset"), want: ErrorClassNetwork},
		{name: "ok", resp: &http.Response{StatusCode: 200}, want: ErrorClassNone},
		{name: "redirect", resp: &http.Response{StatusCode: 302}, want: ErrorClassNone},
		{name: "not found", resp: &http.Response{StatusCode: 404}, want: ErrorClassClient},
		{name: "unavailable", resp: &http.Response{StatusCode: 503}, want: ErrorClassServer},
		{name: "nil response", want: ErrorClassNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.resp, tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %q, want %q", got, tt.want)
			}
		})
	}
}
