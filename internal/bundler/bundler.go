package bundler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"AlertPulse/internal/domain/models"
	drepo "AlertPulse/internal/domain/repository"
	"AlertPulse/pkg/logger"
	"AlertPulse/pkg/queue"
)

// sweepInterval is how often the background loop checks bundle windows.
const sweepInterval = time.Second

type slot struct {
	members []models.QueuedAlert
	oldest  time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// DroppedBundleMsg is the redelivery queue message type for bundles that
// failed both delivery attempts.
const DroppedBundleMsg = "bundle.dropped"

// WithDeadLetter publishes dropped bundles to a redelivery queue. The
// in-band outcome is unchanged: the bundle still counts as a failed
// dispatch for this cycle.
func WithDeadLetter(dl queue.QueueService) Option {
	return func(q *Queue) {
		q.deadLetter = dl
	}
}

// Queue collects approved alerts into per-key bundle slots and hands full or
// expired bundles to the dispatcher. In-memory only: bundles pending at
// shutdown are dropped and the underlying condition re-evaluates next cycle.
type Queue struct {
	mu    sync.Mutex
	slots map[string]*slot

	window     time.Duration
	maxSize    int
	keyMode    string // "symbol" or "tier"
	dispatcher drepo.Dispatcher
	deadLetter queue.QueueService
	metrics    drepo.Metrics
	bus        drepo.EventBus
	log        *logger.Logger

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

func New(window time.Duration, maxSize int, keyMode string, dispatcher drepo.Dispatcher, l *logger.Logger, metrics drepo.Metrics, bus drepo.EventBus, opts ...Option) *Queue {
	q := &Queue{
		slots:      make(map[string]*slot),
		window:     window,
		maxSize:    maxSize,
		keyMode:    keyMode,
		dispatcher: dispatcher,
		metrics:    metrics,
		bus:        bus,
		log:        l,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the window sweep loop.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.stopCh:
				return
			case <-ticker.C:
				for _, b := range q.takeExpired(time.Now()) {
					q.dispatch(ctx, b)
				}
			}
		}
	}()
}

// Stop halts the sweep loop. Pending bundles are intentionally not flushed.
func (q *Queue) Stop() {
	q.stopped.Do(func() { close(q.stopCh) })
	q.wg.Wait()
}

// bundleKey routes a signal to its slot. Escalations always get the
// dedicated key so a forced delivery is never diluted into a routine digest.
func (q *Queue) bundleKey(sig models.ScoredSignal, escalated bool) string {
	if escalated {
		return models.EscalationBundleKey
	}
	if q.keyMode == "tier" {
		return fmt.Sprintf("tier-%d", sig.PriorityTier)
	}
	return sig.Symbol
}

// Enqueue adds an approved signal to its bundle slot. A tier-1 member or a
// full slot flushes immediately, bypassing the window.
func (q *Queue) Enqueue(ctx context.Context, sig models.ScoredSignal, escalated bool) {
	now := time.Now()
	key := q.bundleKey(sig, escalated)
	qa := models.QueuedAlert{
		ID:         uuid.NewString(),
		Signal:     sig,
		BundleKey:  key,
		EnqueuedAt: now,
	}

	q.mu.Lock()
	s, ok := q.slots[key]
	if !ok {
		s = &slot{oldest: now}
		q.slots[key] = s
	}
	s.members = append(s.members, qa)

	var immediate *models.AlertBundle
	if sig.PriorityTier == models.Tier1 || escalated || len(s.members) >= q.maxSize {
		b := q.takeLocked(key, now)
		immediate = &b
	}
	q.mu.Unlock()

	if immediate != nil {
		q.dispatch(ctx, *immediate)
	}
}

// takeLocked extracts and clears a slot. Caller holds q.mu and guarantees
// the slot exists and is non-empty.
func (q *Queue) takeLocked(key string, now time.Time) models.AlertBundle {
	s := q.slots[key]
	delete(q.slots, key)
	return models.AlertBundle{BundleKey: key, Members: s.members, DispatchAt: now}
}

// takeExpired extracts every slot whose window has elapsed.
func (q *Queue) takeExpired(now time.Time) []models.AlertBundle {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []models.AlertBundle
	for key, s := range q.slots {
		if len(s.members) == 0 {
			delete(q.slots, key)
			continue
		}
		if now.Sub(s.oldest) >= q.window {
			due = append(due, q.takeLocked(key, now))
		}
	}
	return due
}

// dispatch sorts and hands one bundle to the dispatcher. Best-effort: one
// retry, then the bundle is dropped with an error metric.
func (q *Queue) dispatch(ctx context.Context, b models.AlertBundle) {
	if len(b.Members) == 0 {
		return
	}
	sort.SliceStable(b.Members, func(i, j int) bool {
		return b.Members[i].Signal.QualityScore > b.Members[j].Signal.QualityScore
	})

	start := time.Now()
	err := q.dispatcher.Send(ctx, b)
	if err != nil {
		err = q.dispatcher.Send(ctx, b)
	}
	q.metrics.RecordLatency("dispatch", time.Since(start).Seconds())

	if err != nil {
		q.metrics.RecordError("dispatch")
		q.bus.Publish(models.PipelineEvent{
			Kind:   models.EventDispatchFailed,
			Reason: b.BundleKey,
			Count:  len(b.Members),
			At:     time.Now(),
		})
		q.log.Warn("bundle dropped after retry",
			logger.String("bundle_key", b.BundleKey),
			logger.Int("members", len(b.Members)),
			logger.Error(err))
		if q.deadLetter != nil {
			if dlErr := q.deadLetter.PublishMessage(ctx, DroppedBundleMsg, b); dlErr != nil {
				q.log.Error("dead letter publish failed", logger.Error(dlErr))
			}
		}
		return
	}

	q.metrics.RecordDispatch(b.BundleKey, len(b.Members))
	for _, m := range b.Members {
		q.bus.Publish(models.PipelineEvent{
			Kind:     models.EventDispatched,
			Strategy: m.Signal.StrategyID,
			Symbol:   m.Signal.Symbol,
			Tier:     m.Signal.PriorityTier,
			At:       time.Now(),
		})
	}
}

// Pending returns the number of queued-but-unflushed alerts, for the
// dashboard and tests.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, s := range q.slots {
		n += len(s.members)
	}
	return n
}
