package repository

import (
	"context"
	"time"

	"AlertPulse/internal/domain/models"
)

// StateStore is the durable dedup/cooldown gate. Evaluate applies the
// transition rules for the signal's key and persists the resulting record
// before returning; an error means the caller must treat the signal as
// rejected.
type StateStore interface {
	Evaluate(ctx context.Context, sig models.ScoredSignal, now time.Time) (models.Decision, error)
	Get(ctx context.Context, key models.AlertKey) (*models.AlertRecord, error)
	Prune(ctx context.Context, olderThan time.Time) (int, error)
	Close() error
}

// Dispatcher hands a flushed bundle to the outbound transport. Best-effort:
// an error is reported, never retried beyond the bundler's single retry.
type Dispatcher interface {
	Send(ctx context.Context, bundle models.AlertBundle) error
}

// SampleFetcher is the boundary to the external per-exchange fetch layer.
// A timeout is a fetch failure, never a triggering condition.
type SampleFetcher interface {
	Fetch(ctx context.Context, symbols []string) ([]models.MetricSample, error)
}

// SignalSource is a long-lived push feed of candidate signals (tier-1 path).
type SignalSource interface {
	Start(ctx context.Context) (<-chan models.CandidateSignal, <-chan error)
	Close() error
}

// SampleStream is a long-lived push feed of raw metric samples.
type SampleStream interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.MetricSample, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// EventBus carries lifecycle events to the tracker. Publish must never
// block; the tracker is strictly observational and may drop under load.
type EventBus interface {
	Publish(ev models.PipelineEvent)
}

// SnapshotSink receives finished metrics snapshots.
type SnapshotSink interface {
	Store(ctx context.Context, snap models.MetricsSnapshot) error
}

// Metrics is the instrumentation surface used by every pipeline stage.
type Metrics interface {
	RecordSampleDropped(metric string)
	RecordDecision(strategy, outcome string)
	RecordDispatch(bundleKey string, members int)
	RecordDegradedScore()
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordBand(symbol, metric string, lower, upper float64)
}
