package tracker

import (
	"context"
	"sync"
	"time"

	"AlertPulse/internal/domain/models"
	drepo "AlertPulse/internal/domain/repository"
	"AlertPulse/pkg/logger"
)

const eventBuffer = 1024

// Tracker accumulates pipeline lifecycle events into rolling-window counters
// and periodically rolls them into a MetricsSnapshot for the dashboard
// renderer. It is strictly observational: it never writes back into the
// decision path and Publish never blocks a pipeline stage.
type Tracker struct {
	events   chan models.PipelineEvent
	interval time.Duration
	sinks    []drepo.SnapshotSink
	log      *logger.Logger

	mu      sync.Mutex
	window  windowCounters
	latest  *models.MetricsSnapshot
	dropped int

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

type windowCounters struct {
	start              time.Time
	generated          int
	suppressedByReason map[string]int
	escalated          int
	dispatched         int
	dispatchFailed     int
	samplesDropped     int
	degradedScores     int
	storeErrors        int
	fetchErrors        int
	perStrategy        map[string]models.StrategyCounts
}

func newWindow(start time.Time) windowCounters {
	return windowCounters{
		start:              start,
		suppressedByReason: make(map[string]int),
		perStrategy:        make(map[string]models.StrategyCounts),
	}
}

func New(interval time.Duration, l *logger.Logger, sinks ...drepo.SnapshotSink) *Tracker {
	return &Tracker{
		events:   make(chan models.PipelineEvent, eventBuffer),
		interval: interval,
		sinks:    sinks,
		log:      l,
		window:   newWindow(time.Now()),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Publish implements repository.EventBus. It never blocks; when the buffer
// is full the event is counted as dropped and discarded.
func (t *Tracker) Publish(ev models.PipelineEvent) {
	select {
	case t.events <- ev:
	default:
		t.mu.Lock()
		t.dropped++
		t.mu.Unlock()
	}
}

// Start runs the consume/rollover loop until the context is cancelled or
// Stop is called.
func (t *Tracker) Start(ctx context.Context) {
	go func() {
		defer close(t.doneCh)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case ev := <-t.events:
				t.apply(ev)
			case now := <-ticker.C:
				t.rollover(ctx, now)
			case <-ctx.Done():
				t.rollover(context.Background(), time.Now())
				return
			case <-t.stopCh:
				t.rollover(context.Background(), time.Now())
				return
			}
		}
	}()
}

func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	<-t.doneCh
}

func (t *Tracker) apply(ev models.PipelineEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := &t.window
	switch ev.Kind {
	case models.EventSampleDropped:
		w.samplesDropped++
	case models.EventApproved:
		w.generated++
		c := w.perStrategy[ev.Strategy]
		c.Generated++
		w.perStrategy[ev.Strategy] = c
	case models.EventRejected:
		reason := ev.Reason
		if reason == "" {
			reason = "cooldown"
		}
		w.suppressedByReason[reason]++
		c := w.perStrategy[ev.Strategy]
		c.Suppressed++
		w.perStrategy[ev.Strategy] = c
	case models.EventEscalated:
		w.escalated++
		c := w.perStrategy[ev.Strategy]
		c.Escalated++
		w.perStrategy[ev.Strategy] = c
	case models.EventDegradedScore:
		w.degradedScores++
	case models.EventDispatched:
		w.dispatched++
		if ev.Strategy != "" {
			c := w.perStrategy[ev.Strategy]
			c.Dispatched++
			w.perStrategy[ev.Strategy] = c
		}
	case models.EventDispatchFailed:
		w.dispatchFailed++
	case models.EventStoreError:
		w.storeErrors++
	case models.EventFetchError:
		w.fetchErrors++
	}
}

// rollover closes the current window, serializes it, fans it out to the
// sinks and opens a fresh window. Sink failures are logged and otherwise
// ignored; observability must never take the pipeline down.
func (t *Tracker) rollover(ctx context.Context, now time.Time) {
	t.mu.Lock()
	snap := t.window.snapshot(now)
	t.latest = &snap
	if t.dropped > 0 {
		t.log.Warn("tracker dropped events under load",
			logger.Int("dropped", t.dropped))
		t.dropped = 0
	}
	t.window = newWindow(now)
	t.mu.Unlock()

	for _, sink := range t.sinks {
		if err := sink.Store(ctx, snap); err != nil {
			t.log.Error("snapshot sink write failed", logger.Error(err))
		}
	}
}

// Latest returns the most recently rolled snapshot, or nil before the first
// rollover.
func (t *Tracker) Latest() *models.MetricsSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest == nil {
		return nil
	}
	snap := *t.latest
	return &snap
}

// Current returns a snapshot of the in-flight window without closing it.
func (t *Tracker) Current() models.MetricsSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window.snapshot(time.Now())
}

func (w *windowCounters) snapshot(end time.Time) models.MetricsSnapshot {
	byReason := make(map[string]int, len(w.suppressedByReason))
	for k, v := range w.suppressedByReason {
		byReason[k] = v
	}
	perStrategy := make(map[string]models.StrategyCounts, len(w.perStrategy))
	for k, v := range w.perStrategy {
		perStrategy[k] = v
	}
	return models.MetricsSnapshot{
		WindowStart:        w.start,
		WindowEnd:          end,
		Generated:          w.generated,
		SuppressedByReason: byReason,
		Escalated:          w.escalated,
		Dispatched:         w.dispatched,
		DispatchFailed:     w.dispatchFailed,
		SamplesDropped:     w.samplesDropped,
		DegradedScores:     w.degradedScores,
		StoreErrors:        w.storeErrors,
		FetchErrors:        w.fetchErrors,
		PerStrategy:        perStrategy,
	}
}

var _ drepo.EventBus = (*Tracker)(nil)
