package scoring

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"AlertPulse/internal/domain/models"
	"AlertPulse/pkg/config"
	"AlertPulse/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordSampleDropped(string)                  {}
func (nopMetrics) RecordDecision(string, string)               {}
func (nopMetrics) RecordDispatch(string, int)                  {}
func (nopMetrics) RecordDegradedScore()                        {}
func (nopMetrics) RecordError(string)                          {}
func (nopMetrics) RecordLatency(string, float64)               {}
func (nopMetrics) RecordBand(string, string, float64, float64) {}

type nopBus struct{}

func (nopBus) Publish(models.PipelineEvent) {}

func trainingOutcomes(n int) []Outcome {
	rng := rand.New(rand.NewSource(7))
	out := make([]Outcome, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Outcome{
			Features: models.FeatureVector{
				"rule_confidence": 40 + rng.Float64()*40,
				"funding_rate":    rng.NormFloat64() * 0.0005,
				"oi_change":       rng.NormFloat64() * 5,
				"volume_ratio":    1 + rng.Float64(),
			},
			Useful: i%3 == 0,
		})
	}
	return out
}

func trainedArtifact(t *testing.T, dir string) string {
	t.Helper()
	a, err := Fit(trainingOutcomes(200), "v3", Weights{Confidence: 0.5, Novelty: 0.3, Recency: 0.2}, 900)
	require.NoError(t, err)
	path := filepath.Join(dir, "alert_scorer.json")
	require.NoError(t, a.Save(path))
	return path
}

func scorerWith(t *testing.T, path, version string) *ModelScorer {
	t.Helper()
	cfg := &config.Config{}
	cfg.Scoring.ModelPath = path
	cfg.Scoring.ModelVersion = version
	return NewModelScorer(cfg, logger.Nop(), nopMetrics{}, nopBus{})
}

func candidate(conf float64) models.CandidateSignal {
	return models.CandidateSignal{
		StrategyID:     "FundingArb",
		Symbol:         "BTC",
		RuleConfidence: conf,
		Direction:      models.DirectionLong,
		Features: models.FeatureVector{
			"rule_confidence": conf,
			"funding_rate":    0.002,
			"oi_change":       12,
		},
	}
}

func TestScoreDeterministic(t *testing.T) {
	dir := t.TempDir()
	s := scorerWith(t, trainedArtifact(t, dir), "v3")
	require.False(t, s.Degraded())

	first := s.Score(candidate(80))
	for i := 0; i < 10; i++ {
		again := s.Score(candidate(80))
		require.Equal(t, first.QualityScore, again.QualityScore)
		require.Equal(t, first.ModelVersion, again.ModelVersion)
	}
	require.GreaterOrEqual(t, first.QualityScore, 0.0)
	require.LessOrEqual(t, first.QualityScore, 100.0)
}

func TestMissingModelDegrades(t *testing.T) {
	s := scorerWith(t, filepath.Join(t.TempDir(), "absent.json"), "v3")
	require.True(t, s.Degraded())

	scored := s.Score(candidate(73))
	require.True(t, scored.Degraded)
	require.Equal(t, 73.0, scored.QualityScore)
	require.Empty(t, scored.ModelVersion)
}

func TestVersionMismatchDegrades(t *testing.T) {
	dir := t.TempDir()
	path := trainedArtifact(t, dir)
	s := scorerWith(t, path, "v99")
	require.True(t, s.Degraded())

	scored := s.Score(candidate(55))
	require.True(t, scored.Degraded)
	require.Equal(t, 55.0, scored.QualityScore)
}

func TestCorruptModelDegrades(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.json")
	require.NoError(t, (&Artifact{Version: "v3"}).Save(path)) // no features/distances
	s := scorerWith(t, path, "v3")
	require.True(t, s.Degraded())
}

func TestPartialFeatureVector(t *testing.T) {
	dir := t.TempDir()
	s := scorerWith(t, trainedArtifact(t, dir), "v3")

	sig := candidate(60)
	sig.Features = models.FeatureVector{"rule_confidence": 60} // liquidation feed etc. absent
	scored := s.Score(sig)
	require.False(t, scored.Degraded)
	require.GreaterOrEqual(t, scored.QualityScore, 0.0)
	require.LessOrEqual(t, scored.QualityScore, 100.0)
}

func TestTierAssignment(t *testing.T) {
	cfg := &config.Config{}
	cfg.Scoring.ModelPath = filepath.Join(t.TempDir(), "absent.json")
	cfg.Scoring.TierThresholds = []float64{85, 70}
	s := NewModelScorer(cfg, logger.Nop(), nopMetrics{}, nopBus{})

	require.Equal(t, models.Tier1, s.Score(candidate(90)).PriorityTier)
	require.Equal(t, models.Tier2, s.Score(candidate(75)).PriorityTier)
	require.Equal(t, models.Tier3, s.Score(candidate(40)).PriorityTier)
}

func TestFitRejectsTooFewSamples(t *testing.T) {
	_, err := Fit(trainingOutcomes(10), "v1", Weights{Confidence: 1}, 900)
	require.Error(t, err)
}

func TestRecencyDecay(t *testing.T) {
	require.Equal(t, 100.0, recencyScore(0, 900))
	half := recencyScore(900, 900)
	require.InDelta(t, 50.0, half, 1e-9)
	require.Less(t, recencyScore(3600, 900), half)
}
