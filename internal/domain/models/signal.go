package models

import "time"

// Direction of a detected setup.
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// Tier is the urgency class of a strategy signal. Tier 1 is critical and
// bypasses the bundling window.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

// FeatureVector carries the scoring inputs of a candidate. Features may be
// absent (partial vectors are valid); the scorer treats a missing feature as
// its training mean.
type FeatureVector map[string]float64

// Clone returns an independent copy.
func (f FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// CandidateSignal is a rule-confirmed setup emitted by a strategy detector.
// Consumed exactly once by the scorer.
type CandidateSignal struct {
	StrategyID     string        `json:"strategy_id"`
	Symbol         string        `json:"symbol"`
	RuleConfidence float64       `json:"rule_confidence"` // 0-100
	Direction      Direction     `json:"direction"`
	Features       FeatureVector `json:"features"`
	Reason         string        `json:"reason,omitempty"`
	DetectedAt     time.Time     `json:"detected_at"`
}

// Key returns the deduplication key for the signal.
func (c CandidateSignal) Key() AlertKey {
	return AlertKey{StrategyID: c.StrategyID, Symbol: c.Symbol}
}

// ScoredSignal is a candidate annotated with its ranked quality.
type ScoredSignal struct {
	CandidateSignal
	QualityScore float64 `json:"quality_score"` // 0-100
	PriorityTier Tier    `json:"priority_tier"`
	Degraded     bool    `json:"degraded,omitempty"`
	ModelVersion string  `json:"model_version,omitempty"`
}
