// Package syncqueue implements the deferred sync queue: tags recorded while
// offline are dispatched to their synchronization routine when the host
// signals that connectivity returned.
//
// The queue never retries on its own. A failed routine leaves its tag
// pending and the next recovery signal runs it again.
package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// TagAttendance flushes attendance records captured offline.
const TagAttendance = "sync-attendance"

// ErrUnknownTag is returned by lookups for tags without a routine.
// Dispatch treats it as success.
var ErrUnknownTag = errors.New("unknown sync tag")

// Prometheus metrics for sync dispatch.
var (
	paradigmSyncRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paradigm_sync_requests_total",
		Help: "Total sync requests recorded by tag",
	}, []string{"tag"})

	paradigmSyncDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paradigm_sync_dispatch_total",
		Help: "Total sync dispatches by tag and outcome",
	}, []string{"tag", "outcome"})

	paradigmSyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paradigm_sync_duration_seconds",
		Help:    "Sync routine duration in seconds by tag",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"tag"})
)

// SyncFunc is a synchronization routine. Its error is the dispatch outcome.
type SyncFunc func(ctx context.Context) error

// Queue maps tags to routines and tracks pending tags.
type Queue struct {
	pending PendingStore
	logger  zerolog.Logger

	mu       sync.RWMutex
	routines map[string]SyncFunc

	// running serializes dispatches of the same tag
	runMu   sync.Mutex
	running map[string]*sync.Mutex
}

// New creates a queue backed by pending (in memory when nil).
func New(pending PendingStore, logger zerolog.Logger) *Queue {
	if pending == nil {
		pending = NewMemoryPending()
	}
	return &Queue{
		pending:  pending,
		logger:   logger.With().Str("component", "sync-queue").Logger(),
		routines: make(map[string]SyncFunc),
		running:  make(map[string]*sync.Mutex),
	}
}

// Register binds tag to fn. A tag can only be registered once.
func (q *Queue) Register(tag string, fn SyncFunc) error {
	if tag == "" {
		return fmt.Errorf("tag cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("sync routine for %q cannot be nil", tag)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.routines[tag]; exists {
		return fmt.Errorf("tag %q already registered", tag)
	}
	q.routines[tag] = fn
	return nil
}

// Tags returns the registered tags, sorted.
func (q *Queue) Tags() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	tags := make([]string, 0, len(q.routines))
	for tag := range q.routines {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// RequestSync remembers tag until a dispatch of it succeeds.
func (q *Queue) RequestSync(ctx context.Context, tag string) error {
	if tag == "" {
		return fmt.Errorf("tag cannot be empty")
	}
	if err := q.pending.Add(ctx, tag); err != nil {
		return fmt.Errorf("record pending %s: %w", tag, err)
	}

	paradigmSyncRequestsTotal.WithLabelValues(tag).Inc()
	q.logger.Debug().Str("tag", tag).Msg("Sync requested")
	return nil
}

// Pending returns the tags waiting for a recovery signal.
func (q *Queue) Pending(ctx context.Context) ([]string, error) {
	return q.pending.List(ctx)
}

func (q *Queue) lookup(tag string) (SyncFunc, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	fn, ok := q.routines[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
	return fn, nil
}

func (q *Queue) tagLock(tag string) *sync.Mutex {
	q.runMu.Lock()
	defer q.runMu.Unlock()

	l, ok := q.running[tag]
	if !ok {
		l = &sync.Mutex{}
		q.running[tag] = l
	}
	return l
}

// Dispatch handles a recovery signal for one tag. Unknown tags are ignored
// and return nil. A known tag runs its routine exactly once and returns
// exactly the routine's error; the pending mark is cleared only on success.
func (q *Queue) Dispatch(ctx context.Context, tag string) error {
	fn, err := q.lookup(tag)
	if err != nil {
		paradigmSyncDispatchTotal.WithLabelValues("unknown", "ignored").Inc()
		q.logger.Debug().Str("tag", tag).Msg("Ignoring sync for unknown tag")
		q.clear(ctx, tag)
		return nil
	}

	l := q.tagLock(tag)
	l.Lock()
	defer l.Unlock()

	start := time.Now()
	q.logger.Info().Str("tag", tag).Msg("Dispatching sync")

	err = fn(ctx)
	paradigmSyncDuration.WithLabelValues(tag).Observe(time.Since(start).Seconds())

	if err != nil {
		paradigmSyncDispatchTotal.WithLabelValues(tag, "failed").Inc()
		q.logger.Warn().Err(err).Str("tag", tag).Msg("Sync failed - stays pending")
		return err
	}

	paradigmSyncDispatchTotal.WithLabelValues(tag, "ok").Inc()
	q.logger.Info().Str("tag", tag).Dur("duration", time.Since(start)).Msg("Sync complete")
	q.clear(ctx, tag)
	return nil
}

// clear drops the pending mark. A failure only means the tag runs again.
func (q *Queue) clear(ctx context.Context, tag string) {
	if err := q.pending.Remove(ctx, tag); err != nil {
		q.logger.Warn().Err(err).Str("tag", tag).Msg("Failed to clear pending sync")
	}
}

// Recover dispatches every pending tag once, in order. It returns the
// joined errors of the routines that failed.
func (q *Queue) Recover(ctx context.Context) error {
	tags, err := q.pending.List(ctx)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	if len(tags) == 0 {
		return nil
	}

	q.logger.Info().Strs("tags", tags).Msg("Connectivity recovered - dispatching pending syncs")

	var errs []error
	for _, tag := range tags {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := q.Dispatch(ctx, tag); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tag, err))
		}
	}
	return errors.Join(errs...)
}
