// Package usecase wires the pipeline stages into the batch and push
// cadences. Both share one evaluator, one state store and one scorer; only
// the queue window differs.
package usecase

import (
	"context"
	"time"

	"AlertPulse/internal/bundler"
	"AlertPulse/internal/domain/models"
	drepo "AlertPulse/internal/domain/repository"
	"AlertPulse/internal/domain/service"
	"AlertPulse/internal/scoring"
	"AlertPulse/pkg/logger"
)

// Evaluator runs one candidate through score, dedup gate and enqueue.
type Evaluator struct {
	scorer  service.Scorer
	store   drepo.StateStore
	metrics drepo.Metrics
	bus     drepo.EventBus
	log     *logger.Logger
}

func NewEvaluator(scorer service.Scorer, store drepo.StateStore, metrics drepo.Metrics, bus drepo.EventBus, l *logger.Logger) *Evaluator {
	return &Evaluator{
		scorer:  scorer,
		store:   store,
		metrics: metrics,
		bus:     bus,
		log:     l,
	}
}

// Process scores sig, applies the cooldown gate and, when the decision
// approves delivery, enqueues the scored signal on queue. The returned
// decision reflects the state store's verdict; a store failure comes back
// as a rejection.
func (e *Evaluator) Process(ctx context.Context, queue *bundler.Queue, sig models.CandidateSignal, now time.Time) models.Decision {
	if sig.Features == nil {
		sig.Features = models.FeatureVector{}
	}
	staleness := now.Sub(sig.DetectedAt).Seconds()
	if staleness < 0 {
		staleness = 0
	}
	sig.Features[scoring.StalenessFeature] = staleness

	scored := e.scorer.Score(sig)

	decision, err := e.store.Evaluate(ctx, scored, now)
	if err != nil {
		// Fail closed. The store already counted the error.
		return decision
	}

	switch decision.Outcome {
	case models.OutcomeApproved:
		e.bus.Publish(models.PipelineEvent{
			Kind:     models.EventApproved,
			Strategy: sig.StrategyID,
			Symbol:   sig.Symbol,
			Tier:     scored.PriorityTier,
			At:       now,
		})
		queue.Enqueue(ctx, scored, false)

	case models.OutcomeEscalated:
		e.log.Warn("burst escalation override",
			logger.String("strategy", sig.StrategyID),
			logger.String("symbol", sig.Symbol))
		e.bus.Publish(models.PipelineEvent{
			Kind:     models.EventEscalated,
			Strategy: sig.StrategyID,
			Symbol:   sig.Symbol,
			Tier:     scored.PriorityTier,
			At:       now,
		})
		queue.Enqueue(ctx, scored, true)

	case models.OutcomeRejected:
		e.bus.Publish(models.PipelineEvent{
			Kind:     models.EventRejected,
			Strategy: sig.StrategyID,
			Symbol:   sig.Symbol,
			Reason:   decision.Reason,
			At:       now,
		})
	}
	return decision
}
