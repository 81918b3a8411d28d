package models

import (
	"fmt"
	"time"
)

// AlertKey identifies the deduplication scope of an alert.
type AlertKey struct {
	StrategyID string `json:"strategy_id"`
	Symbol     string `json:"symbol"`
}

func (k AlertKey) String() string {
	return fmt.Sprintf("%s/%s", k.StrategyID, k.Symbol)
}

// AlertStatus is the state-machine state of an AlertRecord.
type AlertStatus string

const (
	StatusActive   AlertStatus = "ACTIVE"
	StatusCooldown AlertStatus = "COOLDOWN"
)

// AlertRecord is the durable firing history for one key. Created on first
// approval, mutated on every subsequent evaluation, never deleted unless
// pruned by retention.
type AlertRecord struct {
	Key                     AlertKey    `json:"key"`
	Status                  AlertStatus `json:"status"`
	FiredAt                 time.Time   `json:"fired_at"`
	CooldownUntil           time.Time   `json:"cooldown_until"`
	ConsecutiveSuppressions int         `json:"consecutive_suppressions"`
	LastQualityScore        float64     `json:"last_quality_score"`

	// SuppressedAt holds rejection times inside the escalation window,
	// oldest first. Trimmed on every write.
	SuppressedAt []time.Time `json:"suppressed_at,omitempty"`
}

// DecisionOutcome classifies the result of a state-store evaluation.
type DecisionOutcome string

const (
	OutcomeApproved  DecisionOutcome = "approved"
	OutcomeEscalated DecisionOutcome = "escalated"
	OutcomeRejected  DecisionOutcome = "rejected"
)

// Decision is what the state store hands back to the caller. Approved and
// Escalated both mean the signal proceeds to the queue; Escalated routes it
// to the dedicated escalation bundle.
type Decision struct {
	Outcome DecisionOutcome
	Reason  string
	Record  AlertRecord // post-transition copy
}

// Approved reports whether the signal may be enqueued.
func (d Decision) Approved() bool {
	return d.Outcome == OutcomeApproved || d.Outcome == OutcomeEscalated
}
