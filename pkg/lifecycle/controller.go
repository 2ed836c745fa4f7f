// Package lifecycle implements the install/activate controller that
// prepares a new deployment's static partition and retires partitions of
// superseded versions.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/paradigm-offline/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for lifecycle events.
var (
	paradigmInstallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paradigm_lifecycle_installs_total",
		Help: "Total install attempts by outcome",
	}, []string{"outcome"})

	paradigmInstallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paradigm_lifecycle_install_duration_seconds",
		Help:    "Duration of precache installs in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	paradigmStalePartitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paradigm_lifecycle_stale_partitions_total",
		Help: "Stale partitions handled during activation by outcome",
	}, []string{"outcome"})
)

// Host is the runtime hosting the controller. SkipWaiting makes an installed
// version eligible to activate without waiting for old clients to close;
// Claim lets the active version control in-flight clients immediately.
type Host interface {
	SkipWaiting()
	Claim()
}

type noopHost struct{}

func (noopHost) SkipWaiting() {}
func (noopHost) Claim()       {}

// Config holds the controller configuration.
type Config struct {
	// Version is embedded in partition names ("v1" -> static-v1, runtime-v1)
	Version string

	// Manifest lists the assets precached at install
	Manifest Manifest
}

// Controller drives Unregistered -> Installing -> Installed -> Activating -> Active.
// Install and Activate are serialized, so a purge never overlaps a precache.
type Controller struct {
	store      cache.Store
	precacher  *Precacher
	host       Host
	partitions Partitions
	manifest   Manifest
	logger     zerolog.Logger

	// run serializes lifecycle events
	run sync.Mutex

	mu    sync.RWMutex
	state State

	// fallback is the previous version's partitions, served until this one is active
	fallback *Partitions
}

// NewController creates a controller in the Unregistered state.
func NewController(store cache.Store, precacher *Precacher, host Host, cfg Config, logger zerolog.Logger) (*Controller, error) {
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if precacher == nil {
		return nil, fmt.Errorf("precacher is required")
	}

	partitions, err := ForVersion(cfg.Version)
	if err != nil {
		return nil, err
	}

	if err := cfg.Manifest.Validate(); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	if host == nil {
		host = noopHost{}
	}

	return &Controller{
		store:      store,
		precacher:  precacher,
		host:       host,
		partitions: partitions,
		manifest:   cfg.Manifest.Normalize(),
		logger:     logger.With().Str("component", "lifecycle").Str("version", cfg.Version).Logger(),
		state:      StateUnregistered,
	}, nil
}

// Partitions returns the live partition names of this version.
func (c *Controller) Partitions() Partitions {
	return c.partitions
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Active reports whether this version may serve traffic.
func (c *Controller) Active() bool {
	return c.State().Serving()
}

// Serving returns the partitions traffic should be routed through: this
// version's once active, otherwise an adopted previous version's. ok is false
// when neither is available.
func (c *Controller) Serving() (p Partitions, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state.Serving() {
		return c.partitions, true
	}
	if c.fallback != nil {
		return *c.fallback, true
	}
	return Partitions{}, false
}

// AdoptPrevious looks for an earlier version's static partition in the store
// and serves it until this version activates. A failed install therefore
// leaves the previous deployment in place. It is a no-op once active.
func (c *Controller) AdoptPrevious(ctx context.Context) (Partitions, bool, error) {
	names, err := c.store.Names(ctx)
	if err != nil {
		return Partitions{}, false, fmt.Errorf("list partitions: %w", err)
	}
	prev, ok := c.partitions.Previous(names)
	if !ok {
		return Partitions{}, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Serving() {
		return Partitions{}, false, nil
	}
	c.fallback = &prev
	c.logger.Info().Str("partition", prev.Static).Msg("Serving previous version until activation")
	return prev, true, nil
}

func (c *Controller) transition(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !CanTransition(c.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, c.state, to)
	}
	c.logger.Debug().Str("from", string(c.state)).Str("to", string(to)).Msg("Lifecycle transition")
	c.state = to
	return nil
}

// Install precaches every manifest asset into the static partition.
// Assets are fetched first and only stored once all of them succeeded; any
// failure leaves the partition untouched and returns the controller to
// Unregistered. Re-running Install with the same manifest overwrites the
// same keys.
func (c *Controller) Install(ctx context.Context) error {
	c.run.Lock()
	defer c.run.Unlock()

	if err := c.transition(StateInstalling); err != nil {
		return err
	}

	start := time.Now()
	c.logger.Info().
		Str("partition", c.partitions.Static).
		Int("assets", len(c.manifest.Assets)).
		Msg("Installing - precaching static assets")

	if err := c.precache(ctx); err != nil {
		paradigmInstallsTotal.WithLabelValues("failed").Inc()
		c.logger.Error().Err(err).Msg("Install failed - previous version keeps serving")
		_ = c.transition(StateUnregistered)
		return err
	}

	paradigmInstallsTotal.WithLabelValues("ok").Inc()
	paradigmInstallDuration.Observe(time.Since(start).Seconds())

	if err := c.transition(StateInstalled); err != nil {
		return err
	}
	c.host.SkipWaiting()

	c.logger.Info().Dur("duration", time.Since(start)).Msg("Installed")
	return nil
}

func (c *Controller) precache(ctx context.Context) error {
	assets, err := c.precacher.FetchAll(ctx, c.manifest.Assets)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPrecache, err)
	}

	static, err := c.store.Open(ctx, c.partitions.Static)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrPrecache, c.partitions.Static, err)
	}

	for _, asset := range assets {
		if err := static.Put(ctx, asset.Key, asset.Entry); err != nil {
			return fmt.Errorf("%w: %w", ErrPrecache, &AssetError{Path: asset.Path, Err: fmt.Errorf("store: %w", err)})
		}
	}
	return nil
}

// Activate deletes every partition not owned by this version, then claims
// clients. Individual delete failures are logged and skipped; they never
// block activation. It returns the names that were purged.
func (c *Controller) Activate(ctx context.Context) ([]string, error) {
	c.run.Lock()
	defer c.run.Unlock()

	if err := c.transition(StateActivating); err != nil {
		return nil, err
	}

	// The purge below removes the previous version's partitions.
	c.mu.Lock()
	c.fallback = nil
	c.mu.Unlock()

	c.logger.Info().Msg("Activating - purging stale partitions")

	var purged []string
	names, err := c.store.Names(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to list partitions - skipping purge")
	}

	for _, name := range c.partitions.Stale(names) {
		if _, err := c.store.Delete(ctx, name); err != nil {
			paradigmStalePartitionsTotal.WithLabelValues("failed").Inc()
			c.logger.Warn().Err(err).Str("partition", name).Msg("Failed to delete stale partition")
			continue
		}
		paradigmStalePartitionsTotal.WithLabelValues("deleted").Inc()
		c.logger.Info().Str("partition", name).Msg("Deleted stale partition")
		purged = append(purged, name)
	}

	if err := c.transition(StateActive); err != nil {
		return purged, err
	}
	c.host.Claim()

	c.logger.Info().Strs("purged", purged).Msg("Active")
	return purged, nil
}
