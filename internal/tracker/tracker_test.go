package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"AlertPulse/internal/domain/models"
	"AlertPulse/pkg/logger"
)

type captureSink struct {
	mu    sync.Mutex
	snaps []models.MetricsSnapshot
}

func (s *captureSink) Store(_ context.Context, snap models.MetricsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *captureSink) all() []models.MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.MetricsSnapshot, len(s.snaps))
	copy(out, s.snaps)
	return out
}

func event(kind models.EventKind, strategy, reason string) models.PipelineEvent {
	return models.PipelineEvent{Kind: kind, Strategy: strategy, Symbol: "BTC", Reason: reason, At: time.Now()}
}

func TestCountersAccumulate(t *testing.T) {
	tr := New(time.Hour, logger.Nop())

	tr.apply(event(models.EventApproved, "Momentum", ""))
	tr.apply(event(models.EventApproved, "Momentum", ""))
	tr.apply(event(models.EventRejected, "Momentum", "cooldown"))
	tr.apply(event(models.EventRejected, "FundingArb", "store_error"))
	tr.apply(event(models.EventEscalated, "Momentum", ""))
	tr.apply(event(models.EventSampleDropped, "", ""))
	tr.apply(event(models.EventDegradedScore, "Momentum", ""))
	tr.apply(event(models.EventDispatched, "", ""))
	tr.apply(event(models.EventDispatchFailed, "", ""))
	tr.apply(event(models.EventStoreError, "FundingArb", ""))
	tr.apply(event(models.EventFetchError, "", ""))

	snap := tr.Current()
	require.Equal(t, 2, snap.Generated)
	require.Equal(t, 1, snap.SuppressedByReason["cooldown"])
	require.Equal(t, 1, snap.SuppressedByReason["store_error"])
	require.Equal(t, 1, snap.Escalated)
	require.Equal(t, 1, snap.Dispatched)
	require.Equal(t, 1, snap.DispatchFailed)
	require.Equal(t, 1, snap.SamplesDropped)
	require.Equal(t, 1, snap.DegradedScores)
	require.Equal(t, 1, snap.StoreErrors)
	require.Equal(t, 1, snap.FetchErrors)

	momentum := snap.PerStrategy["Momentum"]
	require.Equal(t, 2, momentum.Generated)
	require.Equal(t, 1, momentum.Suppressed)
	require.Equal(t, 1, momentum.Escalated)
	require.Equal(t, 1, snap.PerStrategy["FundingArb"].Suppressed)
}

func TestRejectedWithoutReasonDefaultsToCooldown(t *testing.T) {
	tr := New(time.Hour, logger.Nop())
	tr.apply(event(models.EventRejected, "Momentum", ""))
	require.Equal(t, 1, tr.Current().SuppressedByReason["cooldown"])
}

func TestRolloverResetsWindowAndFansOut(t *testing.T) {
	sink := &captureSink{}
	tr := New(time.Hour, logger.Nop(), sink)

	tr.apply(event(models.EventApproved, "Momentum", ""))
	tr.rollover(context.Background(), time.Now())

	snaps := sink.all()
	require.Len(t, snaps, 1)
	require.Equal(t, 1, snaps[0].Generated)

	latest := tr.Latest()
	require.NotNil(t, latest)
	require.Equal(t, 1, latest.Generated)

	// Fresh window after rollover.
	require.Zero(t, tr.Current().Generated)
	require.Empty(t, tr.Current().PerStrategy)
}

func TestPublishNeverBlocks(t *testing.T) {
	tr := New(time.Hour, logger.Nop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < eventBuffer*2; i++ {
			tr.Publish(event(models.EventApproved, "Momentum", ""))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with a full buffer")
	}
}

func TestStartConsumesAndRolls(t *testing.T) {
	sink := &captureSink{}
	tr := New(50*time.Millisecond, logger.Nop(), sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr.Start(ctx)
	tr.Publish(event(models.EventApproved, "Momentum", ""))
	tr.Publish(event(models.EventDispatched, "", ""))

	require.Eventually(t, func() bool {
		for _, s := range sink.all() {
			if s.Generated == 1 && s.Dispatched == 1 {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	tr.Stop()
}

func TestStopFlushesFinalWindow(t *testing.T) {
	sink := &captureSink{}
	tr := New(time.Hour, logger.Nop(), sink)
	tr.Start(context.Background())

	tr.Publish(event(models.EventApproved, "Momentum", ""))
	require.Eventually(t, func() bool { return tr.Current().Generated == 1 }, 2*time.Second, 5*time.Millisecond)

	tr.Stop()
	snaps := sink.all()
	require.NotEmpty(t, snaps)
	require.Equal(t, 1, snaps[len(snaps)-1].Generated)
}

func TestLatestIsNilBeforeFirstRollover(t *testing.T) {
	tr := New(time.Hour, logger.Nop())
	require.Nil(t, tr.Latest())
}
