package attendance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// SyncPath is the origin endpoint accepting attendance batches.
const SyncPath = "/api/attendance/sync"

var paradigmAttendanceFlushedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "paradigm_attendance_flushed_total",
	Help: "Total attendance records delivered to the origin",
})

// StatusError is returned when the origin rejects a batch.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("attendance sync rejected (status %d): %s", e.StatusCode, e.Body)
}

// FlusherConfig holds flusher configuration.
type FlusherConfig struct {
	// BatchSize is the maximum number of records per request
	BatchSize int
}

// DefaultFlusherConfig returns the default flusher configuration.
func DefaultFlusherConfig() FlusherConfig {
	return FlusherConfig{BatchSize: 50}
}

type batch struct {
	Records []Record `json:"records"`
}

// Flusher delivers pending outbox records to the origin.
type Flusher struct {
	outbox   *Outbox
	client   *http.Client
	endpoint string
	config   FlusherConfig
	logger   zerolog.Logger
}

// NewFlusher creates a flusher posting to origin + SyncPath.
func NewFlusher(outbox *Outbox, client *http.Client, origin *url.URL, cfg FlusherConfig, logger zerolog.Logger) (*Flusher, error) {
	if outbox == nil {
		return nil, fmt.Errorf("outbox is required")
	}
	if origin == nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("origin must be an absolute URL")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultFlusherConfig().BatchSize
	}

	return &Flusher{
		outbox:   outbox,
		client:   client,
		endpoint: origin.ResolveReference(&url.URL{Path: SyncPath}).String(),
		config:   cfg,
		logger:   logger.With().Str("component", "attendance-flusher").Logger(),
	}, nil
}

// Flush sends every pending record in batches. The first failing batch
// stops the flush; records already acknowledged stay marked as synced.
// It has the syncqueue.SyncFunc signature.
func (f *Flusher) Flush(ctx context.Context) error {
	total := 0
	for {
		records, err := f.outbox.Pending(ctx, f.config.BatchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			break
		}

		if err := f.send(ctx, records); err != nil {
			return err
		}

		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		if err := f.outbox.MarkSynced(ctx, ids, time.Now()); err != nil {
			return err
		}

		total += len(records)
		paradigmAttendanceFlushedTotal.Add(float64(len(records)))

		if len(records) < f.config.BatchSize {
			break
		}
	}

	f.logger.Info().Int("records", total).Msg("Attendance records synced")
	return nil
}

func (f *Flusher) send(ctx context.Context, records []Record) error {
	payload, err := json.Marshal(batch{Records: records})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("post attendance batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	f.logger.Debug().Int("records", len(records)).Int("status", resp.StatusCode).Msg("Attendance batch accepted")
	return nil
}
