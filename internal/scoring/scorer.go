package scoring

import (
	"math"
	"time"

	"AlertPulse/internal/domain/models"
	drepo "AlertPulse/internal/domain/repository"
	"AlertPulse/pkg/config"
	"AlertPulse/pkg/logger"
)

// StalenessFeature is the feature-vector key carrying the age of the
// underlying market context in seconds. Keeping recency inside the vector
// keeps Score a pure function of (features, model version).
const StalenessFeature = "staleness_seconds"

var defaultTierThresholds = []float64{85, 70}

// ModelScorer ranks candidates with the offline-trained novelty artifact and
// degrades to rule-confidence-only scoring when the artifact is unusable.
// Degraded operation is the defined cold-start behavior, not a failure.
type ModelScorer struct {
	artifact       *Artifact // nil in degraded mode
	version        string
	tierThresholds []float64
	metrics        drepo.Metrics
	bus            drepo.EventBus
}

// NewModelScorer loads the configured artifact. Any load problem leaves the
// scorer in degraded mode; it is logged once here and flagged per result.
func NewModelScorer(cfg *config.Config, l *logger.Logger, metrics drepo.Metrics, bus drepo.EventBus) *ModelScorer {
	s := &ModelScorer{
		version:        cfg.Scoring.ModelVersion,
		tierThresholds: cfg.Scoring.TierThresholds,
		metrics:        metrics,
		bus:            bus,
	}
	if len(s.tierThresholds) == 0 {
		s.tierThresholds = defaultTierThresholds
	}

	artifact, err := LoadArtifact(cfg.Scoring.ModelPath, cfg.Scoring.ModelVersion)
	if err != nil {
		l.Warn("scorer running degraded",
			logger.String("model_path", cfg.Scoring.ModelPath),
			logger.Error(err))
		return s
	}
	s.artifact = artifact
	s.version = artifact.Version
	l.Info("scoring model loaded",
		logger.String("version", artifact.Version),
		logger.Int("trained_samples", artifact.TrainedSamples))
	return s
}

// ModelVersion returns the active artifact version, or empty when degraded.
func (s *ModelScorer) ModelVersion() string {
	if s.artifact == nil {
		return ""
	}
	return s.artifact.Version
}

// Degraded reports whether the scorer lacks a usable model.
func (s *ModelScorer) Degraded() bool { return s.artifact == nil }

// Score ranks one candidate. Repeated calls with the same feature vector and
// model version return the identical score.
func (s *ModelScorer) Score(sig models.CandidateSignal) models.ScoredSignal {
	out := models.ScoredSignal{CandidateSignal: sig}

	if s.artifact == nil {
		out.QualityScore = clamp(sig.RuleConfidence, 0, 100)
		out.Degraded = true
		out.PriorityTier = s.tierFor(out.QualityScore)
		s.metrics.RecordDegradedScore()
		s.bus.Publish(models.PipelineEvent{
			Kind:     models.EventDegradedScore,
			Strategy: sig.StrategyID,
			Symbol:   sig.Symbol,
			At:       time.Now(),
		})
		return out
	}

	novelty := s.artifact.noveltyPercentile(s.artifact.distance(sig.Features))
	recency := recencyScore(sig.Features[StalenessFeature], s.artifact.RecencyHalfLife)

	w := s.artifact.Weights
	total := w.Confidence + w.Novelty + w.Recency
	if total <= 0 {
		w, total = Weights{Confidence: 1}, 1
	}
	raw := (w.Confidence*clamp(sig.RuleConfidence, 0, 100) +
		w.Novelty*novelty +
		w.Recency*recency) / total

	out.QualityScore = clamp(raw, 0, 100)
	out.ModelVersion = s.artifact.Version
	out.PriorityTier = s.tierFor(out.QualityScore)
	return out
}

// recencyScore decays from 100 toward 0 as the context grows stale. A
// missing staleness feature means "fresh".
func recencyScore(stalenessSeconds, halfLife float64) float64 {
	if stalenessSeconds <= 0 || halfLife <= 0 {
		return 100
	}
	return 100 * math.Exp2(-stalenessSeconds/halfLife)
}

func (s *ModelScorer) tierFor(score float64) models.Tier {
	for i, th := range s.tierThresholds {
		if score >= th {
			return models.Tier(i + 1)
		}
	}
	return models.Tier3
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
