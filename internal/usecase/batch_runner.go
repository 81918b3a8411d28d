package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"AlertPulse/internal/bundler"
	"AlertPulse/internal/domain/models"
	drepo "AlertPulse/internal/domain/repository"
	"AlertPulse/internal/domain/service"
	"AlertPulse/internal/smoothing"
	"AlertPulse/pkg/config"
	"AlertPulse/pkg/logger"
)

// BatchRunner drives the fixed-interval cadence: fetch, smooth, detect,
// then score/gate/enqueue per candidate.
type BatchRunner struct {
	cfg       config.PipelineConfig
	fetcher   drepo.SampleFetcher
	smoother  *smoothing.Smoother
	detectors []service.StrategyDetector
	evaluator *Evaluator
	queue     *bundler.Queue
	metrics   drepo.Metrics
	bus       drepo.EventBus
	log       *logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewBatchRunner(
	cfg config.PipelineConfig,
	fetcher drepo.SampleFetcher,
	smoother *smoothing.Smoother,
	detectors []service.StrategyDetector,
	evaluator *Evaluator,
	queue *bundler.Queue,
	metrics drepo.Metrics,
	bus drepo.EventBus,
	l *logger.Logger,
) *BatchRunner {
	return &BatchRunner{
		cfg:       cfg,
		fetcher:   fetcher,
		smoother:  smoother,
		detectors: detectors,
		evaluator: evaluator,
		queue:     queue,
		metrics:   metrics,
		bus:       bus,
		log:       l,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs the batch loop until the context is cancelled or Stop is
// called. The first cycle runs immediately.
func (r *BatchRunner) Start(ctx context.Context) {
	go func() {
		defer close(r.doneCh)
		ticker := time.NewTicker(r.cfg.BatchInterval)
		defer ticker.Stop()

		r.RunOnce(ctx)
		for {
			select {
			case <-ticker.C:
				r.RunOnce(ctx)
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			}
		}
	}()
}

func (r *BatchRunner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

// RunOnce executes a single fetch-evaluate cycle. A fetch failure,
// including timeout, skips the cycle entirely; stale data must never
// trigger alerts.
func (r *BatchRunner) RunOnce(ctx context.Context) {
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	samples, err := r.fetcher.Fetch(fetchCtx, r.cfg.Symbols)
	cancel()
	if err != nil {
		r.metrics.RecordError("fetch")
		r.bus.Publish(models.PipelineEvent{Kind: models.EventFetchError, Reason: err.Error(), At: time.Now()})
		r.log.Error("batch fetch failed, skipping cycle", logger.Error(err))
		return
	}

	asOf := r.observe(samples)
	candidates := r.detect(asOf)

	now := time.Now()
	for _, sig := range candidates {
		r.evaluator.Process(ctx, r.queue, sig, now)
	}

	r.metrics.RecordLatency("batch_cycle", time.Since(start).Seconds())
	r.log.Info("batch cycle complete",
		logger.Int("samples", len(samples)),
		logger.Int("candidates", len(candidates)),
		logger.Duration("took", time.Since(start)))
}

// observe feeds every sample through the smoother and returns the newest
// sample time per symbol. Invalid samples are dropped by the smoother and
// do not abort the cycle.
func (r *BatchRunner) observe(samples []models.MetricSample) map[string]time.Time {
	asOf := make(map[string]time.Time)
	for _, sample := range samples {
		if _, err := r.smoother.Observe(sample); err != nil {
			if !errors.Is(err, smoothing.ErrInvalidSample) {
				r.log.Warn("sample rejected",
					logger.String("symbol", sample.Symbol),
					logger.String("metric", string(sample.Metric)),
					logger.Error(err))
			}
			continue
		}
		if sample.Timestamp.After(asOf[sample.Symbol]) {
			asOf[sample.Symbol] = sample.Timestamp
		}
	}
	return asOf
}

// detect runs every detector over every symbol's current smoothed view.
func (r *BatchRunner) detect(asOf map[string]time.Time) []models.CandidateSignal {
	var out []models.CandidateSignal
	for _, symbol := range r.cfg.Symbols {
		// No fresh sample this cycle means no trigger for the symbol.
		if asOf[symbol].IsZero() {
			continue
		}
		view := r.smoother.Snapshot(symbol)
		if len(view) == 0 {
			continue
		}
		mctx := service.MarketContext{
			Symbol:  symbol,
			Metrics: view,
			AsOf:    asOf[symbol].Unix(),
		}
		for _, d := range r.detectors {
			if sig := d.Evaluate(mctx); sig != nil {
				out = append(out, *sig)
			}
		}
	}
	return out
}
