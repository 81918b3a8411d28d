package middleware

import (
	"fmt"
	"sync"
	"time"

	"AlertPulse/internal/domain/models"
	domrepo "AlertPulse/internal/domain/repository"
)

// SampleIntake sits between the push stream and the smoother. It rejects
// malformed samples and throttles per symbol so a misbehaving feed cannot
// flood the filter state with sub-second updates.
type SampleIntake struct {
	metrics  domrepo.Metrics
	maxRPS   int
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

type IntakeOption func(*SampleIntake)

// WithMaxRPS sets the max accepted samples per second per symbol/metric
// pair. Zero disables throttling.
func WithMaxRPS(n int) IntakeOption {
	return func(g *SampleIntake) {
		if n >= 0 {
			g.maxRPS = n
		}
	}
}

func NewSampleIntake(metrics domrepo.Metrics, opts ...IntakeOption) *SampleIntake {
	g := &SampleIntake{
		metrics:  metrics,
		maxRPS:   20,
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit returns nil when the sample may proceed to the smoother. A
// throttled sample is dropped silently; a malformed one is an error.
func (g *SampleIntake) Admit(sample models.MetricSample) error {
	if err := validateSample(sample); err != nil {
		g.metrics.RecordSampleDropped(string(sample.Metric))
		return err
	}
	if !g.allow(sample.Symbol+"/"+string(sample.Metric), time.Now()) {
		g.metrics.RecordError("intake_throttle")
		return errThrottled
	}
	return nil
}

var errThrottled = fmt.Errorf("sample throttled")

// Throttled reports whether the error came from rate limiting rather
// than validation.
func Throttled(err error) bool { return err == errThrottled }

func validateSample(s models.MetricSample) error {
	if s.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if s.Metric == "" {
		return fmt.Errorf("metric empty")
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("timestamp missing")
	}
	return nil
}

func (g *SampleIntake) allow(key string, now time.Time) bool {
	if g.maxRPS <= 0 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	last := g.lastSeen[key]
	if last.IsZero() || now.Sub(last) >= time.Second/time.Duration(g.maxRPS) {
		g.lastSeen[key] = now
		return true
	}
	return false
}
