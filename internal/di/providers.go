package di

import (
	"fmt"
	"time"

	"AlertPulse/internal/bundler"
	"AlertPulse/internal/dispatch"
	"AlertPulse/internal/domain/repository"
	"AlertPulse/internal/domain/service"
	"AlertPulse/internal/handler/api"
	mid "AlertPulse/internal/middleware"
	internalrepo "AlertPulse/internal/repository"
	"AlertPulse/internal/scoring"
	"AlertPulse/internal/service/fetch"
	"AlertPulse/internal/service/stream"
	"AlertPulse/internal/smoothing"
	"AlertPulse/internal/state"
	"AlertPulse/internal/strategy"
	"AlertPulse/internal/tracker"
	"AlertPulse/internal/usecase"
	pkgcache "AlertPulse/pkg/cache"
	pkgch "AlertPulse/pkg/clickhouse"
	"AlertPulse/pkg/config"
	xhttp "AlertPulse/pkg/http"
	pkgkafka "AlertPulse/pkg/kafka"
	applogger "AlertPulse/pkg/logger"
	"AlertPulse/pkg/metrics"
	pkgqueue "AlertPulse/pkg/queue"
	"AlertPulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the
// snapshot history backend is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideRedisCache creates the Redis cache, or nil when disabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideSnapshotHistory builds the ClickHouse snapshot sink when a
// client is available.
func ProvideSnapshotHistory(ch *pkgch.Client, l *applogger.Logger) (*internalrepo.CHSnapshotHistory, error) {
	if ch == nil {
		return nil, nil
	}
	return internalrepo.NewCHSnapshotHistory(ch, l)
}

// ProvideSnapshotCache builds the Redis latest-snapshot sink when Redis
// is available.
func ProvideSnapshotCache(rc *pkgcache.RedisCache, cfg *config.Config) *internalrepo.RedisSnapshotCache {
	if rc == nil {
		return nil
	}
	return internalrepo.NewRedisSnapshotCache(rc, cfg.Redis.SnapshotTTL)
}

// ProvideTracker creates the metrics tracker with whichever snapshot
// sinks are configured.
func ProvideTracker(
	cfg *config.Config,
	l *applogger.Logger,
	history *internalrepo.CHSnapshotHistory,
	cache *internalrepo.RedisSnapshotCache,
) *tracker.Tracker {
	var sinks []repository.SnapshotSink
	if history != nil {
		sinks = append(sinks, history)
	}
	if cache != nil {
		sinks = append(sinks, cache)
	}
	interval := time.Duration(cfg.Tracker.RefreshIntervalSeconds) * time.Second
	return tracker.New(interval, l, sinks...)
}

// ProvideEventBus exposes the tracker as the pipeline event bus.
func ProvideEventBus(trk *tracker.Tracker) repository.EventBus {
	return trk
}

// ProvideSmoother creates the per-metric Kalman smoothing layer.
func ProvideSmoother(cfg *config.Config, m repository.Metrics, bus repository.EventBus) *smoothing.Smoother {
	return smoothing.New(cfg, m, bus)
}

// ProvideScorer creates the model scorer. A missing or unreadable
// artifact degrades to rule confidence instead of failing startup.
func ProvideScorer(cfg *config.Config, l *applogger.Logger, m repository.Metrics, bus repository.EventBus) service.Scorer {
	return scoring.NewModelScorer(cfg, l, m, bus)
}

// ProvideStateStore opens the durable dedup store.
func ProvideStateStore(cfg *config.Config, l *applogger.Logger, m repository.Metrics, bus repository.EventBus) (repository.StateStore, error) {
	store, err := state.Open(cfg, l, m, bus)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}
	return store, nil
}

// ProvideDispatcher builds the outbound transport selected by config.
func ProvideDispatcher(cfg *config.Config, l *applogger.Logger) (repository.Dispatcher, error) {
	return dispatch.New(cfg.Dispatch, cfg.Kafka, l)
}

// ProvideRedeliverQueue builds the Redis redelivery queue for dropped
// bundles, or nil when the feature is off.
func ProvideRedeliverQueue(
	cfg *config.Config,
	rc *pkgcache.RedisCache,
	dispatcher repository.Dispatcher,
	l *applogger.Logger,
) *pkgqueue.RedisQueue {
	if !cfg.Dispatch.Redeliver.Enabled || rc == nil {
		return nil
	}
	q := pkgqueue.NewRedisQueue(l, &pkgqueue.QueueConfig{
		Workers:    cfg.Dispatch.Redeliver.Workers,
		RetryLimit: cfg.Dispatch.Redeliver.RetryLimit,
		RetryDelay: cfg.Dispatch.Redeliver.RetryDelay,
	}, rc.Client())
	q.RegisterJob(dispatch.NewReplayJob(dispatcher, l))
	return q
}

// ProvideDetectors returns the built-in strategy set.
func ProvideDetectors() []service.StrategyDetector {
	return strategy.Default()
}

// ProvideQueues creates the batch and push bundle queues over the shared
// dispatcher. The push queue exists only when the push cadence is on.
func ProvideQueues(
	cfg *config.Config,
	dispatcher repository.Dispatcher,
	l *applogger.Logger,
	m repository.Metrics,
	bus repository.EventBus,
	redeliver *pkgqueue.RedisQueue,
) *server.Queues {
	var opts []bundler.Option
	if redeliver != nil {
		opts = append(opts, bundler.WithDeadLetter(redeliver))
	}

	window := time.Duration(cfg.Queue.WindowSeconds) * time.Second
	batch := bundler.New(window, cfg.Queue.MaxSize, cfg.Queue.BundleKey, dispatcher, l, m, bus, opts...)

	var push *bundler.Queue
	if cfg.Push.Enabled {
		pushWindow := time.Duration(cfg.Queue.PushWindowSeconds) * time.Second
		push = bundler.New(pushWindow, cfg.Queue.MaxSize, cfg.Queue.BundleKey, dispatcher, l, m, bus, opts...)
	}

	return &server.Queues{Batch: batch, Push: push}
}

// ProvideEvaluator creates the score-then-gate stage shared by both
// cadences.
func ProvideEvaluator(
	scorer service.Scorer,
	store repository.StateStore,
	m repository.Metrics,
	bus repository.EventBus,
	l *applogger.Logger,
) *usecase.Evaluator {
	return usecase.NewEvaluator(scorer, store, m, bus, l)
}

// ProvideFetcher creates the batch-cadence sample fetcher.
func ProvideFetcher(cfg *config.Config, l *applogger.Logger) repository.SampleFetcher {
	return fetch.NewRESTFetcher(cfg.Pipeline.FetchURL, cfg.Pipeline.FetchTimeout, l)
}

// ProvideBatchRunner creates the periodic fetch-smooth-detect cycle.
func ProvideBatchRunner(
	cfg *config.Config,
	fetcher repository.SampleFetcher,
	smoother *smoothing.Smoother,
	detectors []service.StrategyDetector,
	evaluator *usecase.Evaluator,
	queues *server.Queues,
	m repository.Metrics,
	bus repository.EventBus,
	l *applogger.Logger,
) *usecase.BatchRunner {
	return usecase.NewBatchRunner(cfg.Pipeline, fetcher, smoother, detectors, evaluator, queues.Batch, m, bus, l)
}

// ProvidePushRunner creates the low-latency cadence, or nil when it is
// disabled.
func ProvidePushRunner(
	cfg *config.Config,
	smoother *smoothing.Smoother,
	detectors []service.StrategyDetector,
	evaluator *usecase.Evaluator,
	queues *server.Queues,
	m repository.Metrics,
	l *applogger.Logger,
) (*usecase.PushRunner, error) {
	if !cfg.Push.Enabled {
		return nil, nil
	}

	var (
		ws     repository.SampleStream
		source repository.SignalSource
	)
	switch cfg.Push.Source {
	case "websocket":
		ws = stream.NewWebSocket(
			cfg.Push.APIKey,
			cfg.Push.WebSocketURL,
			cfg.Push.Symbols,
			cfg.Push.ReconnectDelay,
			cfg.Push.PingInterval,
			l,
		)
	case "kafka":
		consumer, err := pkgkafka.NewConsumer(
			pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
			pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
			pkgkafka.WithConsumerRetry(3, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
			pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		)
		if err != nil {
			return nil, fmt.Errorf("push consumer: %w", err)
		}
		source = stream.NewKafkaSignalSource(consumer, cfg.Kafka.CandidateTopic, l)
	default:
		return nil, fmt.Errorf("unknown push source %q", cfg.Push.Source)
	}

	runner, err := usecase.NewPushRunner(ws, source, smoother, detectors, evaluator, queues.Push, l)
	if err != nil {
		return nil, err
	}
	if ws != nil {
		runner.SetIntake(mid.NewSampleIntake(m, mid.WithMaxRPS(cfg.Push.MaxSampleRate)))
	}
	return runner, nil
}

// ProvidePruner creates the retention sweeper for the state store.
func ProvidePruner(cfg *config.Config, store repository.StateStore, l *applogger.Logger) *usecase.Pruner {
	return usecase.NewPruner(cfg.State, store, l)
}

// ProvideHTTPHandler creates the dashboard API handler.
func ProvideHTTPHandler(
	l *applogger.Logger,
	trk *tracker.Tracker,
	store repository.StateStore,
	history *internalrepo.CHSnapshotHistory,
	cache *internalrepo.RedisSnapshotCache,
) xhttp.Handler {
	h := api.NewDashboardHandler(l, trk, store)
	if history != nil {
		h.SetHistory(history)
	}
	if cache != nil {
		h.SetCache(cache)
	}
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	trk *tracker.Tracker,
	store repository.StateStore,
	queues *server.Queues,
	batch *usecase.BatchRunner,
	push *usecase.PushRunner,
	pruner *usecase.Pruner,
	redeliver *pkgqueue.RedisQueue,
	chClient *pkgch.Client,
	rc *pkgcache.RedisCache,
	handler xhttp.Handler,
) *server.App {
	return server.New(cfg, l, trk, store, queues, batch, push, pruner, redeliver, chClient, rc, handler)
}
