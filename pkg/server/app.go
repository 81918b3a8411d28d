package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"AlertPulse/internal/bundler"
	drepo "AlertPulse/internal/domain/repository"
	"AlertPulse/internal/tracker"
	"AlertPulse/internal/usecase"
	pkgcache "AlertPulse/pkg/cache"
	pkgch "AlertPulse/pkg/clickhouse"
	"AlertPulse/pkg/config"
	xhttp "AlertPulse/pkg/http"
	applogger "AlertPulse/pkg/logger"
	pkgqueue "AlertPulse/pkg/queue"
)

// Queues holds the two bundle queues sharing one dispatcher: the batch
// cadence accumulator and the short-window push accumulator.
type Queues struct {
	Batch *bundler.Queue
	Push  *bundler.Queue
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg     *config.Config
	log     *applogger.Logger
	tracker *tracker.Tracker
	store   drepo.StateStore
	queues  *Queues
	batch   *usecase.BatchRunner
	push    *usecase.PushRunner // nil when the push cadence is disabled
	pruner  *usecase.Pruner

	redeliver *pkgqueue.RedisQueue // nil when redelivery is disabled
	chClient  *pkgch.Client        // nil when ClickHouse is disabled
	redis     *pkgcache.RedisCache // nil when Redis is disabled

	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	trk *tracker.Tracker,
	store drepo.StateStore,
	queues *Queues,
	batch *usecase.BatchRunner,
	push *usecase.PushRunner,
	pruner *usecase.Pruner,
	redeliver *pkgqueue.RedisQueue,
	chClient *pkgch.Client,
	redis *pkgcache.RedisCache,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:         cfg,
		log:         l,
		tracker:     trk,
		store:       store,
		queues:      queues,
		batch:       batch,
		push:        push,
		pruner:      pruner,
		redeliver:   redeliver,
		chClient:    chClient,
		redis:       redis,
		httpHandler: handler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.tracker.Start(ctx)
	a.queues.Batch.Start(ctx)
	if a.queues.Push != nil {
		a.queues.Push.Start(ctx)
	}

	if a.redeliver != nil {
		if err := a.redeliver.Start(); err != nil {
			a.log.Error("redelivery queue start failed", applogger.Error(err))
			return err
		}
	}

	a.batch.Start(ctx)
	a.log.Info("batch cadence started",
		applogger.Strings("symbols", a.cfg.Pipeline.Symbols),
		applogger.Duration("interval", a.cfg.Pipeline.BatchInterval))

	if a.push != nil {
		if err := a.push.Start(ctx); err != nil {
			a.log.Error("push cadence start failed", applogger.Error(err))
			return err
		}
		a.log.Info("push cadence started", applogger.String("source", a.cfg.Push.Source))
	}

	a.pruner.Start(ctx)

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops the intake side first so no new bundles form, then the
// queues, then the observational and infrastructure pieces.
func (a *App) shutdown(ctx context.Context) error {
	a.batch.Stop()
	if a.push != nil {
		a.push.Stop()
	}
	a.pruner.Stop()

	a.queues.Batch.Stop()
	if a.queues.Push != nil {
		a.queues.Push.Stop()
	}

	a.tracker.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.redeliver != nil {
		if err := a.redeliver.Stop(shutdownCtx); err != nil {
			a.log.Warn("redelivery queue stop error", applogger.Error(err))
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("state store close error", applogger.Error(err))
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
