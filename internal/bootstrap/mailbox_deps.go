package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"mailbox_server/adapter/in/worker"
	"mailbox_server/adapter/out/persistence"
	"mailbox_server/adapter/out/provider/gmail"
	"mailbox_server/adapter/out/realtime"
	"mailbox_server/config"
	"mailbox_server/core/port/out"
	"mailbox_server/core/service/auth"
	"mailbox_server/core/service/mailbox"
	"mailbox_server/pkg/logger"
	"mailbox_server/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dependencies holds every long-lived component of the server.
type Dependencies struct {
	Config *config.Config
	ZLog   zerolog.Logger

	Gmail      *gmail.Client
	StateStore out.OAuthStateStore
	RedisState *persistence.RedisOAuthStateStore // nil without REDIS_URL

	Sessions *auth.SessionStore
	Auth     *auth.Service

	Sync      *mailbox.SyncService
	Compose   *mailbox.ComposeService
	Metrics   *metrics.SyncMetrics
	Scheduler *worker.SyncScheduler

	SSEAdapter *realtime.SSEAdapter
	SSEHub     *realtime.SSEHub

	rootCtx context.Context
}

// Options adjust how the dependencies are built.
type Options struct {
	// AutoSync enables the periodic polling timer per session.
	AutoSync bool
}

// NewDependencies builds and starts the components. The returned cleanup stops
// the scheduler and closes external connections.
func NewDependencies(ctx context.Context, cfg *config.Config, opts Options) (*Dependencies, func(), error) {
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zlog = zlog.Level(lvl)
	}

	rootCtx, cancelRoot := context.WithCancel(ctx)
	deps := &Dependencies{Config: cfg, ZLog: zlog, rootCtx: rootCtx}
	closers := []func(){cancelRoot}

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// Gmail REST client
	deps.Gmail = gmail.New(&gmail.Config{
		Endpoint:           cfg.GmailEndpoint,
		RequestTimeout:     cfg.GmailRequestTimeout,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
	})

	// OAuth state store
	if cfg.RedisURL != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		store, err := persistence.NewRedisOAuthStateStoreFromURL(pingCtx, cfg.RedisURL)
		cancel()
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("redis state store: %w", err)
		}
		deps.RedisState = store
		deps.StateStore = store
		closers = append(closers, func() {
			if err := store.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close redis")
			}
		})
		logger.Info("OAuth state store: redis")
	} else {
		deps.StateStore = persistence.NewMemoryOAuthStateStore()
		logger.Info("OAuth state store: memory")
	}

	// Sessions
	tokens, err := auth.NewTokenIssuer(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if cfg.SessionSecret == "" {
		logger.Warn("SESSION_SECRET not set, sessions will not survive a restart")
	}
	deps.Sessions = auth.NewSessionStore()
	deps.Auth = auth.NewService(&auth.OAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}, deps.StateStore, deps.Gmail, deps.Sessions, tokens)

	// Sync
	responder := mailbox.NewResponder(deps.Gmail, cfg.ConfirmSender)
	deps.Sync = mailbox.NewSyncService(deps.Gmail, responder, &mailbox.SyncConfig{
		Interval:          cfg.SyncInterval,
		FetchSize:         cfg.SyncFetchSize,
		DetailConcurrency: cfg.SyncDetailConcurrency,
	})
	deps.Compose = mailbox.NewComposeService(deps.Gmail)

	// Realtime
	deps.SSEAdapter = realtime.NewSSEAdapter(zlog)
	deps.SSEHub = realtime.NewSSEHub(deps.SSEAdapter)

	// Scheduler
	deps.Metrics = metrics.NewSyncMetrics()
	deps.Scheduler = worker.NewSyncScheduler(deps.Sync, deps.SSEAdapter, deps.Metrics, &worker.SchedulerConfig{
		Workers:  cfg.SyncWorkers,
		AutoSync: opts.AutoSync,
	}, zlog)
	if err := deps.Scheduler.Start(); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("start scheduler: %w", err)
	}
	deps.Auth.OnSessionEnd(func(id uuid.UUID) {
		deps.Scheduler.Unwatch(id)
		deps.SSEAdapter.DisconnectSession(id.String())
	})
	closers = append(closers, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := deps.Scheduler.Stop(stopCtx); err != nil {
			logger.WithError(err).Warn("Scheduler stop incomplete")
		}
	})

	logger.Info("Dependencies initialized (auto sync: %t, interval: %v)", opts.AutoSync, cfg.SyncInterval)
	return deps, cleanup, nil
}
