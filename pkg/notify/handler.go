// Package notify delivers pushed messages as notifications and routes
// notification clicks to a client window.
package notify

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for notification delivery.
var (
	paradigmPushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paradigm_notify_push_total",
		Help: "Total push events by outcome",
	}, []string{"outcome"})

	paradigmClicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paradigm_notify_clicks_total",
		Help: "Total notification clicks by outcome",
	}, []string{"outcome"})
)

// Displayer shows and dismisses notifications.
type Displayer interface {
	Show(ctx context.Context, n Notification) error
	Close(ctx context.Context, id string) error
}

// Navigator opens or focuses a client window at a URL.
type Navigator interface {
	OpenWindow(ctx context.Context, url string) error
}

// Handler handles push and notification-click events.
type Handler struct {
	displayer Displayer
	navigator Navigator
	logger    zerolog.Logger
}

// NewHandler creates a handler.
func NewHandler(displayer Displayer, navigator Navigator, logger zerolog.Logger) (*Handler, error) {
	if displayer == nil {
		return nil, fmt.Errorf("displayer is required")
	}
	if navigator == nil {
		return nil, fmt.Errorf("navigator is required")
	}
	return &Handler{
		displayer: displayer,
		navigator: navigator,
		logger:    logger.With().Str("component", "notify").Logger(),
	}, nil
}

// HandlePush builds a notification from raw push data and returns only
// after the displayer has shown it.
func (h *Handler) HandlePush(ctx context.Context, raw []byte) (Notification, error) {
	n := BuildNotification(ParsePayload(raw))

	if err := h.displayer.Show(ctx, n); err != nil {
		paradigmPushTotal.WithLabelValues("failed").Inc()
		return Notification{}, fmt.Errorf("show notification: %w", err)
	}

	paradigmPushTotal.WithLabelValues("shown").Inc()
	h.logger.Debug().Str("id", n.ID).Str("title", n.Title).Msg("Notification shown")
	return n, nil
}

// HandleClick closes the notification, then opens a window at its URL.
// A failed close is logged; the window is opened regardless.
func (h *Handler) HandleClick(ctx context.Context, n Notification) error {
	if err := h.displayer.Close(ctx, n.ID); err != nil {
		h.logger.Warn().Err(err).Str("id", n.ID).Msg("Failed to close notification")
	}

	url := n.URL()
	if err := h.navigator.OpenWindow(ctx, url); err != nil {
		paradigmClicksTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("open window %s: %w", url, err)
	}

	paradigmClicksTotal.WithLabelValues("opened").Inc()
	h.logger.Debug().Str("id", n.ID).Str("url", url).Msg("Notification clicked")
	return nil
}
