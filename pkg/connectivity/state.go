// Package connectivity derives online/offline state from network outcomes
// observed by the fetch interceptor and emits the connectivity-recovery
// signal when the device comes back online.
package connectivity

import (
	"time"
)

// Status is the observed network status.
type Status string

const (
	// StatusOnline means the last transport attempt succeeded (or none failed yet).
	StatusOnline Status = "online"

	// StatusOffline means FailureThreshold consecutive transport attempts failed.
	StatusOffline Status = "offline"
)

// DefaultFailureThreshold is the number of consecutive transport failures
// after which the device is considered offline.
const DefaultFailureThreshold = 2

// State represents the current connectivity state.
type State struct {
	// Status is online or offline.
	Status Status `json:"status"`

	// ConsecutiveFailures counts transport failures since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// Since is when Status last changed.
	Since time.Time `json:"since"`

	// LastUpdate is when any outcome was last reported.
	LastUpdate time.Time `json:"last_update"`
}

// IsOnline reports whether the device is considered online.
func (s State) IsOnline() bool {
	return s.Status != StatusOffline
}

// IsStale returns true if no outcome was reported within maxAge.
func (s State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// Downtime returns how long the device has been offline.
// Returns 0 while online.
func (s State) Downtime() time.Duration {
	if s.IsOnline() || s.Since.IsZero() {
		return 0
	}
	return time.Since(s.Since)
}

// ShouldGoOffline reports whether the failure count crossed threshold.
func (s State) ShouldGoOffline(threshold int) bool {
	return s.IsOnline() && s.ConsecutiveFailures >= threshold
}
