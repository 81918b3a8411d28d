package models

import "time"

// Reserved bundle key for cooldown-bypassing escalations.
const EscalationBundleKey = "escalation"

// QueuedAlert is a scored signal waiting in a bundle slot.
type QueuedAlert struct {
	ID         string       `json:"id"`
	Signal     ScoredSignal `json:"signal"`
	BundleKey  string       `json:"bundle_key"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

// AlertBundle is the unit of dispatch: the members of one bundle slot at
// flush time, ordered by quality score descending. Destroyed after handoff.
type AlertBundle struct {
	BundleKey  string        `json:"bundle_key"`
	Members    []QueuedAlert `json:"members"`
	DispatchAt time.Time     `json:"dispatch_at"`
}

// Escalation reports whether the bundle carries escalated alerts.
func (b AlertBundle) Escalation() bool {
	return b.BundleKey == EscalationBundleKey
}
