package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"AlertPulse/internal/domain/models"
	"AlertPulse/internal/domain/service"
)

func ctxWith(metrics map[models.MetricName]models.SmoothedMetric) service.MarketContext {
	return service.MarketContext{Symbol: "BTC", Metrics: metrics, AsOf: 1700000000}
}

func metric(name models.MetricName, value float64, armed bool) models.SmoothedMetric {
	return models.SmoothedMetric{
		Metric:        name,
		Symbol:        "BTC",
		FilteredValue: value,
		Variance:      0.01,
		BandLower:     value - 0.5,
		BandUpper:     value + 0.5,
		Armed:         armed,
	}
}

func TestTrendFollowing(t *testing.T) {
	d := TrendFollowing{}

	sig := d.Evaluate(ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricFundingRate: metric(models.MetricFundingRate, 0.08, true),
	}))
	require.NotNil(t, sig)
	require.Equal(t, models.DirectionLong, sig.Direction)
	require.InDelta(t, 80.0, sig.RuleConfidence, 0.5)
	require.Equal(t, "BTC", sig.Symbol)

	sig = d.Evaluate(ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricFundingRate: metric(models.MetricFundingRate, -0.08, true),
	}))
	require.NotNil(t, sig)
	require.Equal(t, models.DirectionShort, sig.Direction)

	// Below threshold or disarmed: no signal.
	require.Nil(t, d.Evaluate(ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricFundingRate: metric(models.MetricFundingRate, 0.03, true),
	})))
	require.Nil(t, d.Evaluate(ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricFundingRate: metric(models.MetricFundingRate, 0.08, false),
	})))
}

func TestContrarianFadesCrowdedSide(t *testing.T) {
	d := ContrarianPlay{}

	sig := d.Evaluate(ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricFundingRate: metric(models.MetricFundingRate, 0.25, true),
	}))
	require.NotNil(t, sig)
	require.Equal(t, models.DirectionShort, sig.Direction)
	require.Equal(t, 100.0, sig.RuleConfidence) // raw 110 clamps to 100

	sig = d.Evaluate(ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricFundingRate: metric(models.MetricFundingRate, -0.20, true),
	}))
	require.NotNil(t, sig)
	require.Equal(t, models.DirectionLong, sig.Direction)
}

func TestConfidenceClamped(t *testing.T) {
	d := TrendFollowing{}
	sig := d.Evaluate(ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricFundingRate: metric(models.MetricFundingRate, 0.50, true),
	}))
	require.NotNil(t, sig)
	require.Equal(t, 100.0, sig.RuleConfidence)
}

func TestMomentumTiersAboveBreakout(t *testing.T) {
	ctx := ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricSentiment: metric(models.MetricSentiment, 82, true),
	})

	b := Breakout{}.Evaluate(ctx)
	m := MomentumBreakout{}.Evaluate(ctx)
	require.NotNil(t, b)
	require.NotNil(t, m)
	require.Equal(t, models.Tier2, Breakout{}.Tier())
	require.Equal(t, models.Tier1, MomentumBreakout{}.Tier())

	// Moderate sentiment only trips the breakout rule.
	moderate := ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricSentiment: metric(models.MetricSentiment, 55, true),
	})
	require.NotNil(t, Breakout{}.Evaluate(moderate))
	require.Nil(t, MomentumBreakout{}.Evaluate(moderate))
}

func TestMeanReversionWindow(t *testing.T) {
	d := MeanReversion{}
	for _, tc := range []struct {
		funding float64
		fires   bool
		dir     models.Direction
	}{
		{0.05, false, ""},
		{0.10, true, models.DirectionShort},
		{-0.12, true, models.DirectionLong},
		{0.20, false, ""}, // contrarian territory, not reversion
	} {
		sig := d.Evaluate(ctxWith(map[models.MetricName]models.SmoothedMetric{
			models.MetricFundingRate: metric(models.MetricFundingRate, tc.funding, true),
		}))
		if !tc.fires {
			require.Nil(t, sig, "funding %.2f", tc.funding)
			continue
		}
		require.NotNil(t, sig, "funding %.2f", tc.funding)
		require.Equal(t, tc.dir, sig.Direction)
	}
}

func TestRangeRequiresDisarmed(t *testing.T) {
	d := RangeTrading{}

	sig := d.Evaluate(ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricFundingRate: metric(models.MetricFundingRate, 0.005, false),
	}))
	require.NotNil(t, sig)
	require.Equal(t, models.DirectionNeutral, sig.Direction)
	require.Equal(t, 70.0, sig.RuleConfidence)

	// An armed metric means the market just moved; not a range.
	require.Nil(t, d.Evaluate(ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricFundingRate: metric(models.MetricFundingRate, 0.005, true),
	})))
}

func TestScalpingNeedsLiquidity(t *testing.T) {
	d := Scalping{}
	base := map[models.MetricName]models.SmoothedMetric{
		models.MetricFundingRate: metric(models.MetricFundingRate, 0.004, false),
		models.MetricVolumeRatio: metric(models.MetricVolumeRatio, 4.2, false),
	}
	require.NotNil(t, d.Evaluate(ctxWith(base)))

	thin := map[models.MetricName]models.SmoothedMetric{
		models.MetricFundingRate: metric(models.MetricFundingRate, 0.004, false),
		models.MetricVolumeRatio: metric(models.MetricVolumeRatio, 1.1, false),
	}
	require.Nil(t, d.Evaluate(ctxWith(thin)))
}

func TestLiquidationCascade(t *testing.T) {
	d := LiquidationCascade{}

	sig := d.Evaluate(ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricFundingRate:     metric(models.MetricFundingRate, 0.26, true),
		models.MetricLiquidationRisk: metric(models.MetricLiquidationRisk, 0.8, false),
	}))
	require.NotNil(t, sig)
	require.Equal(t, models.DirectionShort, sig.Direction)
	require.Equal(t, models.Tier1, d.Tier())
	require.Equal(t, 0.8, sig.Features["liquidation_risk"])

	require.Nil(t, d.Evaluate(ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricFundingRate: metric(models.MetricFundingRate, 0.15, true),
	})))
}

func TestOIDivergence(t *testing.T) {
	d := OIDivergence{}

	// OI building while sentiment is negative: long with the flow.
	sig := d.Evaluate(ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricOIChange:  metric(models.MetricOIChange, 8.0, true),
		models.MetricSentiment: metric(models.MetricSentiment, -30, false),
	}))
	require.NotNil(t, sig)
	require.Equal(t, models.DirectionLong, sig.Direction)

	// Aligned OI and sentiment is not a divergence.
	require.Nil(t, d.Evaluate(ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricOIChange:  metric(models.MetricOIChange, 8.0, true),
		models.MetricSentiment: metric(models.MetricSentiment, 30, false),
	})))
}

func TestArbDetectorsAreNeutral(t *testing.T) {
	funding := FundingArbitrage{}.Evaluate(ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricFundingRate: metric(models.MetricFundingRate, 0.08, false),
	}))
	require.NotNil(t, funding)
	require.Equal(t, models.DirectionNeutral, funding.Direction)
	require.Equal(t, 8.0, funding.Features["carry_bps"])

	basis := BasisArbitrage{}.Evaluate(ctxWith(map[models.MetricName]models.SmoothedMetric{
		models.MetricBasis: metric(models.MetricBasis, -0.25, false),
	}))
	require.NotNil(t, basis)
	require.Equal(t, models.DirectionNeutral, basis.Direction)
	require.Contains(t, basis.Reason, "backwardation")
}

func TestMissingMetricsNeverPanic(t *testing.T) {
	empty := ctxWith(map[models.MetricName]models.SmoothedMetric{})
	for _, d := range Default() {
		require.Nil(t, d.Evaluate(empty), d.Name())
	}
}

func TestDefaultSetAndTiers(t *testing.T) {
	ds := Default()
	require.Len(t, ds, 12)

	seen := map[string]bool{}
	for _, d := range ds {
		require.False(t, seen[d.Name()], "duplicate %s", d.Name())
		seen[d.Name()] = true
		require.Equal(t, TierFor(d.Name()), d.Tier())
	}
	require.Equal(t, models.Tier3, TierFor("unknown strategy"))
}
