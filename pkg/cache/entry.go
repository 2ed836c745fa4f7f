package cache

import (
	"net/http"
	"time"
)

// ResponseType mirrors the fetch response types the routing policy cares about.
type ResponseType string

const (
	// TypeBasic is a same-origin response whose headers and body are fully visible.
	TypeBasic ResponseType = "basic"

	// TypeOpaque is a response whose final URL left the application origin.
	TypeOpaque ResponseType = "opaque"
)

// Entry is a stored response snapshot.
type Entry struct {
	// URL is the final URL the response was served from
	URL string `json:"url"`

	// StatusCode is the HTTP status code of the stored response
	StatusCode int `json:"status_code"`

	// Status is the status line text (e.g. "200 OK")
	Status string `json:"status"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// Data is the response body
	Data []byte `json:"data"`

	// Type is the response type at the time it was stored
	Type ResponseType `json:"type"`

	// CachedAt is when the snapshot was taken
	CachedAt time.Time `json:"cached_at"`
}

// Clone returns a deep copy, so callers never share buffers with a store.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Headers = e.Headers.Clone()
	if e.Data != nil {
		c.Data = append([]byte(nil), e.Data...)
	}
	return &c
}

// Age returns how long ago the entry was stored.
// Returns 0 when CachedAt is unset.
func (e *Entry) Age() time.Duration {
	if e.CachedAt.IsZero() {
		return 0
	}
	age := time.Since(e.CachedAt)
	if age < 0 {
		return 0
	}
	return age
}
