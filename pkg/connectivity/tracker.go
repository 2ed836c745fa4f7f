package connectivity

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for connectivity tracking.
var (
	paradigmOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paradigm_connectivity_online",
		Help: "1 when the device is considered online, 0 when offline",
	})

	paradigmRecoveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paradigm_connectivity_recoveries_total",
		Help: "Total number of offline to online transitions",
	})

	paradigmOutagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paradigm_connectivity_outages_total",
		Help: "Total number of online to offline transitions",
	})
)

// RecoverFunc is invoked whenever a success ends a run of transport
// failures, including every offline -> online transition.
// It runs on the reporting goroutine and must not block.
type RecoverFunc func()

// Tracker folds transport outcomes into a connectivity State.
// It is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	state     State
	threshold int
	listeners []RecoverFunc
	logger    zerolog.Logger
}

// NewTracker creates a tracker that starts online.
func NewTracker(threshold int, logger zerolog.Logger) *Tracker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	now := time.Now()
	paradigmOnline.Set(1)
	return &Tracker{
		state: State{
			Status:     StatusOnline,
			Since:      now,
			LastUpdate: now,
		},
		threshold: threshold,
		logger:    logger,
	}
}

// OnRecover registers fn for the connectivity-recovery signal.
func (t *Tracker) OnRecover(fn RecoverFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// State returns a snapshot of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ReportSuccess records that a response was received from the network.
// A success that ends a failure streak emits the recovery signal, whether
// or not the streak was long enough to report the device offline.
func (t *Tracker) ReportSuccess() {
	t.mu.Lock()
	now := time.Now()
	wasOffline := !t.state.IsOnline()
	downtime := t.state.Downtime()
	streak := t.state.ConsecutiveFailures

	t.state.ConsecutiveFailures = 0
	t.state.LastUpdate = now
	var listeners []RecoverFunc
	if streak > 0 || wasOffline {
		listeners = append(listeners, t.listeners...)
	}
	if wasOffline {
		t.state.Status = StatusOnline
		t.state.Since = now
	}
	t.mu.Unlock()

	if wasOffline {
		paradigmOnline.Set(1)
		paradigmRecoveriesTotal.Inc()
		t.logger.Info().
			Dur("downtime", downtime).
			Int("failures", streak).
			Int("listeners", len(listeners)).
			Msg("Connectivity restored")
	} else if streak > 0 {
		t.logger.Debug().Int("failures", streak).Msg("Transport recovered before going offline")
	}

	for _, fn := range listeners {
		fn()
	}
}

// ReportFailure records a transport-level failure.
func (t *Tracker) ReportFailure(err error) {
	t.mu.Lock()
	now := time.Now()
	t.state.ConsecutiveFailures++
	t.state.LastUpdate = now
	failures := t.state.ConsecutiveFailures

	wentOffline := t.state.ShouldGoOffline(t.threshold)
	if wentOffline {
		t.state.Status = StatusOffline
		t.state.Since = now
	}
	t.mu.Unlock()

	if !wentOffline {
		t.logger.Debug().Err(err).Int("consecutive_failures", failures).Msg("Transport failure")
		return
	}

	paradigmOnline.Set(0)
	paradigmOutagesTotal.Inc()
	t.logger.Warn().
		Err(err).
		Int("consecutive_failures", failures).
		Msg("Connectivity lost - serving from cache")
}
