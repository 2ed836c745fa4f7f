package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Sternrassler/paradigm-offline/internal/config"
	"github.com/Sternrassler/paradigm-offline/pkg/attendance"
	"github.com/Sternrassler/paradigm-offline/pkg/cache"
	"github.com/Sternrassler/paradigm-offline/pkg/connectivity"
	"github.com/Sternrassler/paradigm-offline/pkg/intercept"
	"github.com/Sternrassler/paradigm-offline/pkg/lifecycle"
	"github.com/Sternrassler/paradigm-offline/pkg/notify"
	"github.com/Sternrassler/paradigm-offline/pkg/syncqueue"
	"github.com/Sternrassler/paradigm-offline/pkg/worker"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// inboxSize bounds the notifications kept for GET /notifications.
const inboxSize = 100

// storage is the partition store plus whatever backs it.
type storage struct {
	store   cache.Store
	redis   *redis.Client
	closers []func() error
}

func (s *storage) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openStorage connects the configured partition store backend.
func openStorage(ctx context.Context, cfg config.Config) (*storage, error) {
	s := &storage{}

	switch cfg.Store {
	case config.StoreRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		s.redis = redisClient
		s.store = cache.NewRedisStore(redisClient, cache.DefaultRedisPrefix)
		s.closers = append(s.closers, redisClient.Close)
	case config.StoreBolt:
		boltStore, err := cache.OpenBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		s.store = boltStore
		s.closers = append(s.closers, boltStore.Close)
	default:
		s.store = cache.NewMemoryStore()
	}
	return s, nil
}

// upstreamTransport sends origin requests to the upstream address. The
// returned response still carries the origin request, so cache keys and
// response types are computed against the public origin.
type upstreamTransport struct {
	upstream *url.URL
	next     http.RoundTripper
}

func newUpstreamTransport(origin, upstream *url.URL) http.RoundTripper {
	if upstream == nil || (upstream.Scheme == origin.Scheme && upstream.Host == origin.Host) {
		return http.DefaultTransport
	}
	return &upstreamTransport{upstream: upstream, next: http.DefaultTransport}
}

func (t *upstreamTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.upstream.Scheme
	out.URL.Host = t.upstream.Host
	out.Host = t.upstream.Host

	resp, err := t.next.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	resp.Request = req
	return resp, nil
}

// app is the fully wired offline layer.
type app struct {
	config     config.Config
	storage    *storage
	outbox     *attendance.Outbox
	controller *lifecycle.Controller
	tracker    *connectivity.Tracker
	queue      *syncqueue.Queue
	inbox      *notify.Inbox
	receiver   *notify.Receiver
	worker     *worker.Worker
	logger     zerolog.Logger
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	return buildApp(ctx, cfg, newUpstreamTransport(cfg.OriginURL(), cfg.UpstreamURL()), logger)
}

// buildApp wires every component on top of network, the transport that
// reaches the origin.
func buildApp(ctx context.Context, cfg config.Config, network http.RoundTripper, logger zerolog.Logger) (_ *app, err error) {
	a := &app{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	manifest := lifecycle.DefaultManifest()
	if cfg.ManifestPath != "" {
		if manifest, err = lifecycle.LoadManifest(cfg.ManifestPath); err != nil {
			return nil, err
		}
	}

	if a.storage, err = openStorage(ctx, cfg); err != nil {
		return nil, err
	}

	origin := cfg.OriginURL()

	precacher := lifecycle.NewPrecacher(network, origin, lifecycle.PrecacheConfig{
		MaxConcurrency: cfg.PrecacheConcurrency,
		Timeout:        cfg.PrecacheTimeout,
	}, logger)

	a.controller, err = lifecycle.NewController(a.storage.store, precacher, nil, lifecycle.Config{
		Version:  cfg.Version,
		Manifest: manifest,
	}, logger)
	if err != nil {
		return nil, err
	}

	a.tracker = connectivity.NewTracker(cfg.FailureThreshold, logger)
	interceptor, err := intercept.New(intercept.Config{
		Origin:     origin,
		Network:    network,
		Store:      a.storage.store,
		Partitions: a.controller.Partitions(),
		Gate:       a.controller,
		Observer:   a.tracker,
	}, logger)
	if err != nil {
		return nil, err
	}

	var pending syncqueue.PendingStore
	if a.storage.redis != nil {
		pending = syncqueue.NewRedisPending(a.storage.redis, syncqueue.DefaultRedisKey)
	}
	a.queue = syncqueue.New(pending, logger)

	if a.outbox, err = attendance.OpenOutbox(cfg.OutboxPath); err != nil {
		return nil, err
	}
	flusher, err := attendance.NewFlusher(a.outbox, &http.Client{Transport: interceptor}, origin, attendance.DefaultFlusherConfig(), logger)
	if err != nil {
		return nil, err
	}
	if err = a.queue.Register(syncqueue.TagAttendance, flusher.Flush); err != nil {
		return nil, err
	}

	a.inbox = notify.NewInbox(inboxSize)
	notifier, err := notify.NewHandler(a.inbox, a.inbox, logger)
	if err != nil {
		return nil, err
	}
	a.receiver, err = notify.NewReceiver(notifier, notify.ReceiverConfig{
		VAPIDPublicKey: cfg.VAPIDPublicKey,
		Audience:       cfg.VAPIDAudience,
	}, logger)
	if err != nil {
		return nil, err
	}

	retry := worker.DefaultRetryConfig()
	retry.MaxAttempts = cfg.InstallAttempts
	a.worker, err = worker.New(worker.Deps{
		Controller:  a.controller,
		Interceptor: interceptor,
		Queue:       a.queue,
		Notifier:    notifier,
		Tracker:     a.tracker,
	}, worker.Config{Retry: retry}, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close waits for background work and releases storage.
func (a *app) Close() error {
	if a.worker != nil {
		a.worker.Wait()
	}
	var errs []error
	if a.outbox != nil {
		errs = append(errs, a.outbox.Close())
	}
	if a.storage != nil {
		errs = append(errs, a.storage.Close())
	}
	return errors.Join(errs...)
}
