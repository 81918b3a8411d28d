package service

import (
	"AlertPulse/internal/domain/models"
)

// MarketContext is the evaluated view of one symbol handed to the strategy
// detectors: smoothed metrics keyed by metric name, plus whether each
// metric's hysteresis state machine is armed.
type MarketContext struct {
	Symbol  string
	Metrics map[models.MetricName]models.SmoothedMetric
	AsOf    int64 // unix seconds of the newest contributing sample
}

// Metric returns the smoothed metric and whether it is present.
func (c MarketContext) Metric(name models.MetricName) (models.SmoothedMetric, bool) {
	m, ok := c.Metrics[name]
	return m, ok
}

// Armed reports whether the named metric is present and armed.
func (c MarketContext) Armed(name models.MetricName) bool {
	m, ok := c.Metrics[name]
	return ok && m.Armed
}

// StrategyDetector is one rule-layer variant. Evaluate returns nil when the
// rule does not fire. The set of implementations is closed; detectors hold
// no mutable state.
type StrategyDetector interface {
	Name() string
	Tier() models.Tier
	Evaluate(ctx MarketContext) *models.CandidateSignal
}

// Scorer ranks a candidate. Scoring is deterministic for a fixed
// (feature vector, model version) pair.
type Scorer interface {
	Score(sig models.CandidateSignal) models.ScoredSignal
	ModelVersion() string
}
