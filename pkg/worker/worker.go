// Package worker hosts the offline layer's events: deployment (install then
// activate), fetches, sync signals, pushes and notification clicks.
//
// Every event is a blocking call whose returned error is its outcome. Work
// that outlives an event (detached cache writes, recovery-triggered syncs)
// is tracked and can be awaited with Wait.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/Sternrassler/paradigm-offline/pkg/connectivity"
	"github.com/Sternrassler/paradigm-offline/pkg/intercept"
	"github.com/Sternrassler/paradigm-offline/pkg/lifecycle"
	"github.com/Sternrassler/paradigm-offline/pkg/notify"
	"github.com/Sternrassler/paradigm-offline/pkg/syncqueue"
	"github.com/rs/zerolog"
)

// Deps are the components the worker drives.
type Deps struct {
	Controller  *lifecycle.Controller
	Interceptor *intercept.Interceptor
	Queue       *syncqueue.Queue
	Notifier    *notify.Handler

	// Tracker triggers Queue.Recover on offline -> online (optional)
	Tracker *connectivity.Tracker
}

// Config holds the worker configuration.
type Config struct {
	Retry RetryConfig
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{Retry: DefaultRetryConfig()}
}

// Worker is the event host.
type Worker struct {
	controller  *lifecycle.Controller
	interceptor *intercept.Interceptor
	queue       *syncqueue.Queue
	notifier    *notify.Handler
	config      Config
	logger      zerolog.Logger

	// background tracks work started by signals rather than callers
	background sync.WaitGroup
}

// New creates a worker and subscribes it to connectivity recovery.
func New(deps Deps, cfg Config, logger zerolog.Logger) (*Worker, error) {
	if deps.Controller == nil {
		return nil, fmt.Errorf("lifecycle controller is required")
	}
	if deps.Interceptor == nil {
		return nil, fmt.Errorf("interceptor is required")
	}
	if deps.Queue == nil {
		return nil, fmt.Errorf("sync queue is required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notification handler is required")
	}

	w := &Worker{
		controller:  deps.Controller,
		interceptor: deps.Interceptor,
		queue:       deps.Queue,
		notifier:    deps.Notifier,
		config:      cfg,
		logger:      logger.With().Str("component", "worker").Logger(),
	}

	if deps.Tracker != nil {
		deps.Tracker.OnRecover(w.onRecover)
	}
	return w, nil
}

// onRecover runs pending syncs in the background; tracker listeners must not block.
func (w *Worker) onRecover() {
	w.background.Add(1)
	go func() {
		defer w.background.Done()
		if err := w.queue.Recover(context.Background()); err != nil {
			w.logger.Warn().Err(err).Msg("Pending syncs failed - waiting for next recovery")
		}
	}()
}

// Deploy installs the current version (retrying transient failures) and
// activates it. It returns the purged partition names. A previous version
// found in the store keeps serving while the install runs and after it fails.
func (w *Worker) Deploy(ctx context.Context) ([]string, error) {
	if _, _, err := w.controller.AdoptPrevious(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to look up previous version")
	}

	err := retryWithBackoff(ctx, w.config.Retry, w.logger, w.controller.Install)
	if err != nil {
		return nil, fmt.Errorf("install: %w", err)
	}

	purged, err := w.controller.Activate(ctx)
	if err != nil {
		return purged, fmt.Errorf("activate: %w", err)
	}
	return purged, nil
}

// Transport returns the intercepting round tripper for application traffic.
func (w *Worker) Transport() http.RoundTripper {
	return w.interceptor
}

// Client returns an http.Client whose requests go through the interceptor.
func (w *Worker) Client() *http.Client {
	return &http.Client{Transport: w.interceptor}
}

// Controller returns the lifecycle controller.
func (w *Worker) Controller() *lifecycle.Controller {
	return w.controller
}

// RequestSync records tag for the next recovery signal.
func (w *Worker) RequestSync(ctx context.Context, tag string) error {
	return w.queue.RequestSync(ctx, tag)
}

// Sync handles a recovery signal for tag; see syncqueue.Queue.Dispatch.
func (w *Worker) Sync(ctx context.Context, tag string) error {
	return w.queue.Dispatch(ctx, tag)
}

// Push handles a push event. It returns once the notification is shown.
func (w *Worker) Push(ctx context.Context, raw []byte) (notify.Notification, error) {
	return w.notifier.HandlePush(ctx, raw)
}

// Click handles a notification click.
func (w *Worker) Click(ctx context.Context, n notify.Notification) error {
	return w.notifier.HandleClick(ctx, n)
}

// Wait blocks until detached cache writes and background syncs finish.
func (w *Worker) Wait() {
	w.background.Wait()
	w.interceptor.Wait()
}
