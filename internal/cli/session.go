package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/asteroid-belt/prepsync/internal/config"
	"github.com/asteroid-belt/prepsync/internal/conflict"
	"github.com/asteroid-belt/prepsync/internal/db"
	"github.com/asteroid-belt/prepsync/internal/log"
	"github.com/asteroid-belt/prepsync/internal/models"
	"github.com/asteroid-belt/prepsync/internal/notify"
	"github.com/asteroid-belt/prepsync/internal/remote"
	"github.com/asteroid-belt/prepsync/internal/syncqueue"
	"github.com/asteroid-belt/prepsync/internal/tracker"
)

// pingTimeout bounds the connectivity check at startup.
const pingTimeout = 5 * time.Second

// session is one command's view of the local store, queue and tracker.
type session struct {
	cfg     *config.Config
	store   *db.DB
	queue   *syncqueue.Queue
	service remote.ProgressService
	tracker *tracker.Tracker
	bus     *notify.Bus
	logger  *log.Logger
}

// sessionOptions controls how a session presents events.
type sessionOptions struct {
	// out receives event lines as they happen. Nil leaves events on the bus only.
	out io.Writer
}

// openSession loads config, opens the store and initializes a tracker for
// the configured user.
func openSession(ctx context.Context, opts sessionOptions) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flagUser != "" {
		cfg.UserID = flagUser
	}
	paths := config.GetPaths(cfg)

	if err := log.Init(paths.Logs); err != nil {
		return nil, fmt.Errorf("init log: %w", err)
	}
	logger := log.Default()
	logger.SetDebug(cfg.Debug)

	store, degraded, err := tracker.OpenStore(db.DefaultConfig(paths.Database), logger)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	service, err := newService(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	online := !flagOffline && reachable(ctx, service, logger)

	queue := syncqueue.New(store, syncqueue.Config{
		MaxAttempts:   cfg.Sync.MaxAttempts,
		RatePerSecond: syncqueue.DefaultConfig().RatePerSecond,
		Burst:         syncqueue.DefaultConfig().Burst,
		Logger:        logger,
	})
	resolver := conflict.New(conflict.Config{
		Threshold:  cfg.Sync.ConflictThreshold,
		Strategies: strategiesFromConfig(cfg, logger),
		Logger:     logger,
	})

	bus := notify.NewBus(64)
	var notifier notify.Notifier = bus
	if opts.out != nil {
		notifier = notify.Multi{eventPrinter(opts.out), bus}
	}

	t, err := tracker.New(tracker.Deps{
		Store:    store,
		Queue:    queue,
		Resolver: resolver,
		Service:  service,
		Notifier: notifier,
		Logger:   logger,
	}, tracker.Options{
		TrackDays: cfg.Tracker.TrackDays,
		Online:    online,
		Degraded:  degraded,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := t.Initialize(ctx, cfg.UserID); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("initialize tracker: %w", err)
	}

	return &session{
		cfg:     cfg,
		store:   store,
		queue:   queue,
		service: service,
		tracker: t,
		bus:     bus,
		logger:  logger,
	}, nil
}

func (s *session) Close() {
	_ = s.store.Close()
	_ = log.Close()
}

// newService picks the remote backend: the HTTP API when a URL is set, a
// blob directory when one is set, otherwise none.
func newService(cfg *config.Config) (remote.ProgressService, error) {
	switch {
	case cfg.API.URL != "":
		svc, err := remote.NewHTTPService(remote.HTTPConfig{
			BaseURL:       cfg.API.URL,
			Token:         cfg.API.Token,
			Timeout:       cfg.API.Timeout,
			RatePerMinute: cfg.API.RatePerMinute,
			MaxRetries:    cfg.API.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("configure progress api: %w", err)
		}
		return svc, nil
	case cfg.Sync.BlobDir != "":
		return remote.NewFileService(cfg.Sync.BlobDir), nil
	}
	return nil, nil
}

// reachable reports whether the service answers a ping.
func reachable(ctx context.Context, service remote.ProgressService, logger *log.Logger) bool {
	if service == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err := service.Ping(ctx)
	switch {
	case err == nil:
		return true
	case errors.Is(err, remote.ErrClientTooOld):
		logger.Warnf("%v; staying offline", err)
	default:
		logger.Debugf("progress service unreachable: %v", err)
	}
	return false
}

// strategiesFromConfig maps configured strategy names onto data types.
// Unknown names are passed through; the resolver warns and falls back.
func strategiesFromConfig(cfg *config.Config, logger *log.Logger) map[models.DataType]models.Strategy {
	out := make(map[models.DataType]models.Strategy)
	for dt, name := range map[models.DataType]string{
		models.DataProgress: cfg.Sync.ProgressStrategy,
		models.DataSettings: cfg.Sync.SettingsStrategy,
	} {
		if name == "" {
			continue
		}
		s, ok := conflict.ParseStrategy(name)
		if !ok {
			logger.Warnf("unknown %s strategy %q", dt, name)
		}
		out[dt] = s
	}
	return out
}
