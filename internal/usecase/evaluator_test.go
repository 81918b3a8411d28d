package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"AlertPulse/internal/bundler"
	"AlertPulse/internal/domain/models"
	"AlertPulse/internal/scoring"
	"AlertPulse/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordSampleDropped(string)                  {}
func (nopMetrics) RecordDecision(string, string)               {}
func (nopMetrics) RecordDispatch(string, int)                  {}
func (nopMetrics) RecordDegradedScore()                        {}
func (nopMetrics) RecordError(string)                          {}
func (nopMetrics) RecordLatency(string, float64)               {}
func (nopMetrics) RecordBand(string, string, float64, float64) {}

type captureBus struct {
	mu     sync.Mutex
	events []models.PipelineEvent
}

func (b *captureBus) Publish(ev models.PipelineEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *captureBus) kinds() []models.EventKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.EventKind, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Kind
	}
	return out
}

// stubScorer echoes rule confidence as the quality score.
type stubScorer struct {
	tier models.Tier
}

func (s stubScorer) Score(sig models.CandidateSignal) models.ScoredSignal {
	return models.ScoredSignal{
		CandidateSignal: sig,
		QualityScore:    sig.RuleConfidence,
		PriorityTier:    s.tier,
		ModelVersion:    "stub",
	}
}

func (stubScorer) ModelVersion() string { return "stub" }

// stubStore returns a scripted decision.
type stubStore struct {
	decision models.Decision
	err      error
	lastSig  models.ScoredSignal
}

func (s *stubStore) Evaluate(_ context.Context, sig models.ScoredSignal, _ time.Time) (models.Decision, error) {
	s.lastSig = sig
	return s.decision, s.err
}

func (s *stubStore) Get(context.Context, models.AlertKey) (*models.AlertRecord, error) {
	return nil, nil
}
func (s *stubStore) Prune(context.Context, time.Time) (int, error) { return 0, nil }
func (s *stubStore) Close() error                                  { return nil }

type captureDispatcher struct {
	mu      sync.Mutex
	bundles []models.AlertBundle
}

func (d *captureDispatcher) Send(_ context.Context, b models.AlertBundle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bundles = append(d.bundles, b)
	return nil
}

func (d *captureDispatcher) sent() []models.AlertBundle {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.AlertBundle, len(d.bundles))
	copy(out, d.bundles)
	return out
}

func candidate(conf float64) models.CandidateSignal {
	return models.CandidateSignal{
		StrategyID:     "Trend Following",
		Symbol:         "BTC",
		RuleConfidence: conf,
		Direction:      models.DirectionLong,
		Features:       models.FeatureVector{"funding_rate": 0.08},
		DetectedAt:     time.Now().Add(-30 * time.Second),
	}
}

func newEvalQueue(d *captureDispatcher, bus *captureBus) *bundler.Queue {
	return bundler.New(time.Hour, 100, "symbol", d, logger.Nop(), nopMetrics{}, bus)
}

func TestApprovedSignalIsEnqueued(t *testing.T) {
	bus := &captureBus{}
	d := &captureDispatcher{}
	q := newEvalQueue(d, bus)
	store := &stubStore{decision: models.Decision{Outcome: models.OutcomeApproved}}
	ev := NewEvaluator(stubScorer{tier: models.Tier3}, store, nopMetrics{}, bus, logger.Nop())

	dec := ev.Process(context.Background(), q, candidate(75), time.Now())

	require.Equal(t, models.OutcomeApproved, dec.Outcome)
	require.Equal(t, 1, q.Pending())
	require.Contains(t, bus.kinds(), models.EventApproved)
}

func TestStalenessFeatureIsStamped(t *testing.T) {
	bus := &captureBus{}
	q := newEvalQueue(&captureDispatcher{}, bus)
	store := &stubStore{decision: models.Decision{Outcome: models.OutcomeApproved}}
	ev := NewEvaluator(stubScorer{tier: models.Tier3}, store, nopMetrics{}, bus, logger.Nop())

	now := time.Now()
	sig := candidate(75)
	sig.DetectedAt = now.Add(-90 * time.Second)
	ev.Process(context.Background(), q, sig, now)

	require.InDelta(t, 90.0, store.lastSig.Features[scoring.StalenessFeature], 0.1)
}

func TestRejectedSignalIsNotEnqueued(t *testing.T) {
	bus := &captureBus{}
	q := newEvalQueue(&captureDispatcher{}, bus)
	store := &stubStore{decision: models.Decision{Outcome: models.OutcomeRejected, Reason: "cooldown"}}
	ev := NewEvaluator(stubScorer{tier: models.Tier3}, store, nopMetrics{}, bus, logger.Nop())

	dec := ev.Process(context.Background(), q, candidate(75), time.Now())

	require.Equal(t, models.OutcomeRejected, dec.Outcome)
	require.Zero(t, q.Pending())

	kinds := bus.kinds()
	require.Contains(t, kinds, models.EventRejected)
	require.NotContains(t, kinds, models.EventApproved)
}

func TestEscalatedSignalFlushesImmediately(t *testing.T) {
	bus := &captureBus{}
	d := &captureDispatcher{}
	q := newEvalQueue(d, bus)
	store := &stubStore{decision: models.Decision{Outcome: models.OutcomeEscalated}}
	ev := NewEvaluator(stubScorer{tier: models.Tier2}, store, nopMetrics{}, bus, logger.Nop())

	ev.Process(context.Background(), q, candidate(95), time.Now())

	sent := d.sent()
	require.Len(t, sent, 1)
	require.Equal(t, models.EscalationBundleKey, sent[0].BundleKey)
	require.Contains(t, bus.kinds(), models.EventEscalated)
}

func TestStoreErrorFailsClosed(t *testing.T) {
	bus := &captureBus{}
	q := newEvalQueue(&captureDispatcher{}, bus)
	store := &stubStore{
		decision: models.Decision{Outcome: models.OutcomeRejected, Reason: "store_error"},
		err:      errors.New("disk gone"),
	}
	ev := NewEvaluator(stubScorer{tier: models.Tier1}, store, nopMetrics{}, bus, logger.Nop())

	dec := ev.Process(context.Background(), q, candidate(99), time.Now())

	require.False(t, dec.Approved())
	require.Zero(t, q.Pending())
}
