package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Sternrassler/paradigm-offline/pkg/cache"
	"github.com/rs/zerolog"
)

// PrecacheConfig holds precache fetcher configuration
type PrecacheConfig struct {
	// MaxConcurrency is the maximum number of parallel asset fetches
	MaxConcurrency int
	// Timeout per asset fetch
	Timeout time.Duration
}

// DefaultPrecacheConfig returns the default precache configuration
func DefaultPrecacheConfig() PrecacheConfig {
	return PrecacheConfig{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
	}
}

// Asset is one fetched manifest entry, ready to be stored.
type Asset struct {
	Path  string
	Key   cache.RequestKey
	Entry *cache.Entry
}

// Precacher fetches manifest assets from the application origin over the
// network transport, bypassing the interceptor.
type Precacher struct {
	network http.RoundTripper
	origin  *url.URL
	config  PrecacheConfig
	logger  zerolog.Logger
}

// NewPrecacher creates a precacher for origin.
func NewPrecacher(network http.RoundTripper, origin *url.URL, config PrecacheConfig, logger zerolog.Logger) *Precacher {
	if network == nil {
		network = http.DefaultTransport
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &Precacher{
		network: network,
		origin:  origin,
		config:  config,
		logger:  logger,
	}
}

type fetchJob struct {
	index int
	path  string
}

type fetchResult struct {
	index int
	asset Asset
	err   error
}

// FetchAll fetches every asset in parallel using a worker pool.
// It is all-or-nothing: the first failure cancels outstanding fetches and
// no assets are returned. Results keep manifest order.
func (p *Precacher) FetchAll(ctx context.Context, paths []string) ([]Asset, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan fetchJob, len(paths))
	results := make(chan fetchResult, len(paths))

	for i, path := range paths {
		jobs <- fetchJob{index: i, path: path}
	}
	close(jobs)

	workers := p.config.MaxConcurrency
	if workers > len(paths) {
		workers = len(paths)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(ctx, jobs, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	assets := make([]Asset, len(paths))
	var firstErr error
	for result := range results {
		if result.err != nil {
			if firstErr == nil {
				firstErr = result.err
				cancel()
			}
			continue
		}
		assets[result.index] = result.asset
	}

	if firstErr != nil {
		return nil, firstErr
	}

	p.logger.Debug().
		Int("assets", len(assets)).
		Dur("duration", time.Since(start)).
		Msg("Precache fetch complete")

	return assets, nil
}

// worker processes assets from the queue
func (p *Precacher) worker(ctx context.Context, jobs <-chan fetchJob, results chan<- fetchResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			p.logger.Debug().
				Int("worker_id", workerID).
				Str("path", job.path).
				Msg("Worker skipping asset (context cancelled)")
			results <- fetchResult{index: job.index, err: &AssetError{Path: job.path, Err: ctx.Err()}}
			continue
		default:
		}

		asset, err := p.fetch(ctx, job.path)
		results <- fetchResult{index: job.index, asset: asset, err: err}
	}
}

// fetch retrieves one asset and snapshots it.
func (p *Precacher) fetch(ctx context.Context, path string) (Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	ref, err := url.Parse(path)
	if err != nil {
		return Asset{}, &AssetError{Path: path, Err: err}
	}
	target := p.origin.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Asset{}, &AssetError{Path: path, Err: err}
	}

	resp, err := p.network.RoundTrip(req)
	if err != nil {
		return Asset{}, &AssetError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Asset{}, &AssetError{Path: path, StatusCode: resp.StatusCode}
	}

	entry, err := cache.ResponseToEntry(resp, cache.TypeBasic)
	if err != nil {
		return Asset{}, &AssetError{Path: path, Err: fmt.Errorf("snapshot: %w", err)}
	}

	return Asset{Path: path, Key: cache.KeyFor(req), Entry: entry}, nil
}
