package intercept

import (
	"net/http"
)

// ErrorClass represents a classification of network outcomes.
type ErrorClass string

const (
	// ErrorClassNone is a response below 400.
	ErrorClassNone ErrorClass = ""

	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport errors (offline, DNS, reset, timeout).
	ErrorClassNetwork ErrorClass = "network"
)

// ClassifyError categorizes a network outcome for logs and metrics.
// Only ErrorClassNetwork counts as a failed fetch; 4xx/5xx responses are
// still responses.
func ClassifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}
	if resp == nil {
		return ErrorClassNone
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassNone
	}
}
