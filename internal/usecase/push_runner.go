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
	"AlertPulse/internal/middleware"
	"AlertPulse/internal/smoothing"
	"AlertPulse/pkg/logger"
)

// PushRunner drives the low-latency cadence for tier-1 symbols. It feeds
// the same evaluator as the batch runner but enqueues on a queue with a
// much shorter window. Exactly one input is active: a raw metric stream
// run through smoothing and the detectors, or an external candidate topic
// consumed directly.
type PushRunner struct {
	stream    drepo.SampleStream  // websocket source, may be nil
	source    drepo.SignalSource  // kafka source, may be nil
	smoother  *smoothing.Smoother
	detectors []service.StrategyDetector
	evaluator *Evaluator
	queue     *bundler.Queue
	intake    *middleware.SampleIntake
	log       *logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewPushRunner builds a runner over exactly one of stream or source.
func NewPushRunner(
	stream drepo.SampleStream,
	source drepo.SignalSource,
	smoother *smoothing.Smoother,
	detectors []service.StrategyDetector,
	evaluator *Evaluator,
	queue *bundler.Queue,
	l *logger.Logger,
) (*PushRunner, error) {
	if (stream == nil) == (source == nil) {
		return nil, errors.New("push runner needs exactly one of stream or source")
	}
	return &PushRunner{
		stream:    stream,
		source:    source,
		smoother:  smoother,
		detectors: detectors,
		evaluator: evaluator,
		queue:     queue,
		log:       l,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// SetIntake installs a guard applied to every streamed sample before it
// reaches the smoother. Must be called before Start.
func (r *PushRunner) SetIntake(g *middleware.SampleIntake) { r.intake = g }

// Start begins the push loop. Stream errors trigger reconnection; the
// runner only exits on context cancellation or Stop.
func (r *PushRunner) Start(ctx context.Context) error {
	if r.stream != nil {
		if err := r.stream.Connect(ctx); err != nil {
			return err
		}
		go r.runStream(ctx)
		return nil
	}
	go r.runSource(ctx)
	return nil
}

func (r *PushRunner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	if r.stream != nil {
		_ = r.stream.Close()
	}
	if r.source != nil {
		_ = r.source.Close()
	}
	<-r.doneCh
}

func (r *PushRunner) runStream(ctx context.Context) {
	defer close(r.doneCh)

	for {
		samples, errs := r.stream.Read(ctx)
	read:
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case sample, ok := <-samples:
				if !ok {
					break read
				}
				r.handleSample(ctx, sample)
			case err, ok := <-errs:
				if !ok {
					break read
				}
				r.log.Warn("metric stream error, reconnecting", logger.Error(err))
				break read
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			default:
			}
			if err := r.stream.Reconnect(ctx); err == nil {
				break
			} else {
				r.log.Warn("stream reconnect failed", logger.Error(err))
			}
		}
	}
}

func (r *PushRunner) handleSample(ctx context.Context, sample models.MetricSample) {
	if r.intake != nil {
		if err := r.intake.Admit(sample); err != nil {
			if !middleware.Throttled(err) {
				r.log.Debug("sample rejected at intake", logger.Error(err))
			}
			return
		}
	}
	if _, err := r.smoother.Observe(sample); err != nil {
		return
	}

	mctx := service.MarketContext{
		Symbol:  sample.Symbol,
		Metrics: r.smoother.Snapshot(sample.Symbol),
		AsOf:    sample.Timestamp.Unix(),
	}
	now := time.Now()
	for _, d := range r.detectors {
		if sig := d.Evaluate(mctx); sig != nil {
			r.evaluator.Process(ctx, r.queue, *sig, now)
		}
	}
}

func (r *PushRunner) runSource(ctx context.Context) {
	defer close(r.doneCh)

	signals, errs := r.source.Start(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			r.evaluator.Process(ctx, r.queue, sig, time.Now())
		case err, ok := <-errs:
			if !ok {
				return
			}
			r.log.Error("candidate source error", logger.Error(err))
		}
	}
}
