package models

import "time"

// StrategyCounts is the per-strategy breakdown inside a snapshot window.
type StrategyCounts struct {
	Generated  int `json:"generated"`
	Suppressed int `json:"suppressed"`
	Escalated  int `json:"escalated"`
	Dispatched int `json:"dispatched"`
}

// MetricsSnapshot is the append-only observability document the tracker
// serializes for the dashboard renderer. It has no influence on the
// decision path.
type MetricsSnapshot struct {
	WindowStart        time.Time                 `json:"window_start"`
	WindowEnd          time.Time                 `json:"window_end"`
	Generated          int                       `json:"generated"`
	SuppressedByReason map[string]int            `json:"suppressed_by_reason"`
	Escalated          int                       `json:"escalated"`
	Dispatched         int                       `json:"dispatched"`
	DispatchFailed     int                       `json:"dispatch_failed"`
	SamplesDropped     int                       `json:"samples_dropped"`
	DegradedScores     int                       `json:"degraded_scores"`
	StoreErrors        int                       `json:"store_errors"`
	FetchErrors        int                       `json:"fetch_errors"`
	PerStrategy        map[string]StrategyCounts `json:"per_strategy_counts"`
}

// EventKind classifies a pipeline lifecycle event.
type EventKind string

const (
	EventSampleDropped  EventKind = "sample_dropped"
	EventApproved       EventKind = "approved"
	EventRejected       EventKind = "rejected"
	EventEscalated      EventKind = "escalated"
	EventDegradedScore  EventKind = "degraded_score"
	EventDispatched     EventKind = "dispatched"
	EventDispatchFailed EventKind = "dispatch_failed"
	EventStoreError     EventKind = "store_error"
	EventFetchError     EventKind = "fetch_error"
)

// PipelineEvent is the one-way feed from pipeline stages to the tracker.
type PipelineEvent struct {
	Kind     EventKind
	Strategy string
	Symbol   string
	Reason   string
	Tier     Tier
	Count    int // member count for bundle events, else 0
	At       time.Time
}
