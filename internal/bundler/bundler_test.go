package bundler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"AlertPulse/internal/domain/models"
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

type nopBus struct{}

func (nopBus) Publish(models.PipelineEvent) {}

type captureDispatcher struct {
	mu      sync.Mutex
	bundles []models.AlertBundle
	fail    int // fail the first N sends
}

func (d *captureDispatcher) Send(_ context.Context, b models.AlertBundle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail > 0 {
		d.fail--
		return errors.New("transport down")
	}
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

func signal(strategy, symbol string, tier models.Tier, quality float64) models.ScoredSignal {
	return models.ScoredSignal{
		CandidateSignal: models.CandidateSignal{StrategyID: strategy, Symbol: symbol},
		QualityScore:    quality,
		PriorityTier:    tier,
	}
}

func newQueue(d *captureDispatcher, window time.Duration, maxSize int) *Queue {
	return New(window, maxSize, "symbol", d, logger.Nop(), nopMetrics{}, nopBus{})
}

func TestTier1FlushesImmediately(t *testing.T) {
	d := &captureDispatcher{}
	q := newQueue(d, time.Hour, 10)

	q.Enqueue(context.Background(), signal("Momentum", "BTC", models.Tier1, 92), false)

	sent := d.sent()
	require.Len(t, sent, 1)
	require.Equal(t, "BTC", sent[0].BundleKey)
	require.Len(t, sent[0].Members, 1)
	require.Zero(t, q.Pending())
}

func TestSizeCapFlushes(t *testing.T) {
	d := &captureDispatcher{}
	q := newQueue(d, time.Hour, 3)

	for i := 0; i < 3; i++ {
		q.Enqueue(context.Background(), signal("FundingArb", "BTC", models.Tier3, float64(50+i)), false)
	}

	sent := d.sent()
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Members, 3)
}

func TestWindowFlushAndOrdering(t *testing.T) {
	d := &captureDispatcher{}
	q := newQueue(d, 50*time.Millisecond, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	q.Enqueue(ctx, signal("A", "BTC", models.Tier3, 55), false)
	q.Enqueue(ctx, signal("B", "BTC", models.Tier3, 88), false)
	q.Enqueue(ctx, signal("C", "BTC", models.Tier3, 71), false)

	require.Eventually(t, func() bool { return len(d.sent()) == 1 }, 3*time.Second, 10*time.Millisecond)

	members := d.sent()[0].Members
	require.Len(t, members, 3)
	require.Equal(t, 88.0, members[0].Signal.QualityScore)
	require.Equal(t, 71.0, members[1].Signal.QualityScore)
	require.Equal(t, 55.0, members[2].Signal.QualityScore)
}

func TestSeparateSlotsPerKey(t *testing.T) {
	d := &captureDispatcher{}
	q := newQueue(d, time.Hour, 2)

	q.Enqueue(context.Background(), signal("A", "BTC", models.Tier3, 60), false)
	q.Enqueue(context.Background(), signal("A", "ETH", models.Tier3, 60), false)
	require.Equal(t, 2, q.Pending())
	require.Empty(t, d.sent())

	q.Enqueue(context.Background(), signal("B", "BTC", models.Tier3, 65), false)
	sent := d.sent()
	require.Len(t, sent, 1)
	require.Equal(t, "BTC", sent[0].BundleKey)
	require.Equal(t, 1, q.Pending()) // ETH still accumulating
}

func TestEscalationGoesToDedicatedBundle(t *testing.T) {
	d := &captureDispatcher{}
	q := newQueue(d, time.Hour, 10)

	q.Enqueue(context.Background(), signal("LiquidationCascade", "BTC", models.Tier2, 95), true)

	sent := d.sent()
	require.Len(t, sent, 1)
	require.Equal(t, models.EscalationBundleKey, sent[0].BundleKey)
	require.True(t, sent[0].Escalation())
}

func TestDispatchRetriesOnceThenDrops(t *testing.T) {
	d := &captureDispatcher{fail: 1}
	q := newQueue(d, time.Hour, 10)

	q.Enqueue(context.Background(), signal("Momentum", "BTC", models.Tier1, 90), false)
	require.Len(t, d.sent(), 1, "retry should succeed")

	d2 := &captureDispatcher{fail: 2}
	q2 := newQueue(d2, time.Hour, 10)
	q2.Enqueue(context.Background(), signal("Momentum", "BTC", models.Tier1, 90), false)
	require.Empty(t, d2.sent(), "bundle dropped after single retry")
	require.Zero(t, q2.Pending(), "dropped bundle must not linger")
}

func TestNoEmptyFlush(t *testing.T) {
	d := &captureDispatcher{}
	q := newQueue(d, time.Millisecond, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, d.sent())
}

func TestSlotClearedAfterFlush(t *testing.T) {
	d := &captureDispatcher{}
	q := newQueue(d, time.Hour, 2)

	q.Enqueue(context.Background(), signal("A", "BTC", models.Tier3, 60), false)
	q.Enqueue(context.Background(), signal("A", "BTC", models.Tier3, 61), false)
	require.Len(t, d.sent(), 1)

	// A fresh bundle starts for the same key.
	q.Enqueue(context.Background(), signal("A", "BTC", models.Tier3, 62), false)
	require.Equal(t, 1, q.Pending())
	require.Len(t, d.sent(), 1)
}

func TestTierKeyMode(t *testing.T) {
	d := &captureDispatcher{}
	q := New(time.Hour, 10, "tier", d, logger.Nop(), nopMetrics{}, nopBus{})

	q.Enqueue(context.Background(), signal("A", "BTC", models.Tier1, 90), false)
	sent := d.sent()
	require.Len(t, sent, 1)
	require.Equal(t, "tier-1", sent[0].BundleKey)
}
