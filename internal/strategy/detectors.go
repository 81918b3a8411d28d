package strategy

import (
	"fmt"
	"math"

	"AlertPulse/internal/domain/models"
	"AlertPulse/internal/domain/service"
)

// Threshold constants, in smoothed-metric units. Funding rates are
// percentages (0.05 means 0.05%), sentiment is a signed 0-100 score,
// oi_change is a signed percentage.
const (
	trendFundingMin      = 0.05
	contrarianFundingMin = 0.15
	meanRevFundingLow    = 0.08
	meanRevFundingHigh   = 0.15
	volExpansionMin      = 0.06
	rangeFundingMax      = 0.02
	scalpFundingMax      = 0.01
	scalpVolumeRatioMin  = 3.0
	cascadeFundingMin    = 0.20
	breakoutScoreMin     = 40.0
	momentumScoreMin     = 70.0
	fundingArbMinBps     = 5.0
	basisArbMin          = 0.10
	oiDivergenceMin      = 5.0
)

// TrendFollowing fires on sustained directional funding pressure.
type TrendFollowing struct{}

func (TrendFollowing) Name() string      { return NameTrendFollowing }
func (TrendFollowing) Tier() models.Tier { return TierFor(NameTrendFollowing) }

func (d TrendFollowing) Evaluate(ctx service.MarketContext) *models.CandidateSignal {
	m, ok := ctx.Metric(models.MetricFundingRate)
	if !ok || !m.Armed {
		return nil
	}
	f := m.FilteredValue
	if math.Abs(f) <= trendFundingMin {
		return nil
	}
	dir := models.DirectionLong
	if f < 0 {
		dir = models.DirectionShort
	}
	return candidate(ctx, d.Name(), math.Abs(f)*1000,
		dir,
		fmt.Sprintf("sustained %.3f%% funding pressure", f),
		models.FeatureVector{
			"funding_rate": f,
			"band_width":   m.BandUpper - m.BandLower,
		})
}

// ContrarianPlay fades an overcrowded side when funding is extreme.
type ContrarianPlay struct{}

func (ContrarianPlay) Name() string      { return NameContrarianPlay }
func (ContrarianPlay) Tier() models.Tier { return TierFor(NameContrarianPlay) }

func (d ContrarianPlay) Evaluate(ctx service.MarketContext) *models.CandidateSignal {
	m, ok := ctx.Metric(models.MetricFundingRate)
	if !ok || !m.Armed {
		return nil
	}
	f := m.FilteredValue
	if math.Abs(f) <= contrarianFundingMin {
		return nil
	}
	dir := models.DirectionShort
	if f < 0 {
		dir = models.DirectionLong
	}
	return candidate(ctx, d.Name(), (math.Abs(f)-contrarianFundingMin)*500+60,
		dir,
		fmt.Sprintf("extreme %.3f%% funding, overcrowded %s side", f, opposite(dir)),
		models.FeatureVector{"funding_rate": f})
}

// FundingArbitrage flags a carry large enough to harvest delta-neutral.
type FundingArbitrage struct{}

func (FundingArbitrage) Name() string      { return NameFundingArbitrage }
func (FundingArbitrage) Tier() models.Tier { return TierFor(NameFundingArbitrage) }

func (d FundingArbitrage) Evaluate(ctx service.MarketContext) *models.CandidateSignal {
	m, ok := ctx.Metric(models.MetricFundingRate)
	if !ok {
		return nil
	}
	bps := math.Abs(m.FilteredValue) * 100
	if bps < fundingArbMinBps {
		return nil
	}
	return candidate(ctx, d.Name(), bps*10,
		models.DirectionNeutral,
		fmt.Sprintf("%.1f bps funding carry available", bps),
		models.FeatureVector{
			"funding_rate": m.FilteredValue,
			"carry_bps":    bps,
		})
}

// BasisArbitrage flags a wide perp/spot basis.
type BasisArbitrage struct{}

func (BasisArbitrage) Name() string      { return NameBasisArbitrage }
func (BasisArbitrage) Tier() models.Tier { return TierFor(NameBasisArbitrage) }

func (d BasisArbitrage) Evaluate(ctx service.MarketContext) *models.CandidateSignal {
	m, ok := ctx.Metric(models.MetricBasis)
	if !ok {
		return nil
	}
	b := m.FilteredValue
	if math.Abs(b) <= basisArbMin {
		return nil
	}
	state := "contango"
	if b < 0 {
		state = "backwardation"
	}
	return candidate(ctx, d.Name(), math.Abs(b)*400,
		models.DirectionNeutral,
		fmt.Sprintf("%.3f%% basis (%s)", b, state),
		models.FeatureVector{"basis": b})
}

// Breakout fires on a strong directional sentiment shift out of the band.
type Breakout struct{}

func (Breakout) Name() string      { return NameBreakout }
func (Breakout) Tier() models.Tier { return TierFor(NameBreakout) }

func (d Breakout) Evaluate(ctx service.MarketContext) *models.CandidateSignal {
	m, ok := ctx.Metric(models.MetricSentiment)
	if !ok || !m.Armed {
		return nil
	}
	s := m.FilteredValue
	if math.Abs(s) <= breakoutScoreMin {
		return nil
	}
	dir := models.DirectionLong
	if s < 0 {
		dir = models.DirectionShort
	}
	return candidate(ctx, d.Name(), math.Abs(s),
		dir,
		fmt.Sprintf("%s breakout, sentiment %.1f", dir, math.Abs(s)),
		models.FeatureVector{"sentiment": s})
}

// MomentumBreakout is the extreme-momentum variant of Breakout.
type MomentumBreakout struct{}

func (MomentumBreakout) Name() string      { return NameMomentumBreakout }
func (MomentumBreakout) Tier() models.Tier { return TierFor(NameMomentumBreakout) }

func (d MomentumBreakout) Evaluate(ctx service.MarketContext) *models.CandidateSignal {
	m, ok := ctx.Metric(models.MetricSentiment)
	if !ok || !m.Armed {
		return nil
	}
	s := m.FilteredValue
	if math.Abs(s) <= momentumScoreMin {
		return nil
	}
	dir := models.DirectionLong
	if s < 0 {
		dir = models.DirectionShort
	}
	return candidate(ctx, d.Name(), math.Abs(s),
		dir,
		fmt.Sprintf("extreme %s momentum, sentiment %.1f", dir, math.Abs(s)),
		models.FeatureVector{"sentiment": s})
}

// MeanReversion fires when funding is extended but short of contrarian
// extremes.
type MeanReversion struct{}

func (MeanReversion) Name() string      { return NameMeanReversion }
func (MeanReversion) Tier() models.Tier { return TierFor(NameMeanReversion) }

func (d MeanReversion) Evaluate(ctx service.MarketContext) *models.CandidateSignal {
	m, ok := ctx.Metric(models.MetricFundingRate)
	if !ok {
		return nil
	}
	f := m.FilteredValue
	abs := math.Abs(f)
	if abs <= meanRevFundingLow || abs >= meanRevFundingHigh {
		return nil
	}
	dir := models.DirectionShort
	if f < 0 {
		dir = models.DirectionLong
	}
	return candidate(ctx, d.Name(), abs*500,
		dir,
		fmt.Sprintf("funding extended to %.3f%%, expecting reversion", f),
		models.FeatureVector{"funding_rate": f})
}

// VolatilityExpansion fires on a pickup in funding movement.
type VolatilityExpansion struct{}

func (VolatilityExpansion) Name() string      { return NameVolatilityExpansion }
func (VolatilityExpansion) Tier() models.Tier { return TierFor(NameVolatilityExpansion) }

func (d VolatilityExpansion) Evaluate(ctx service.MarketContext) *models.CandidateSignal {
	m, ok := ctx.Metric(models.MetricFundingRate)
	if !ok || !m.Armed {
		return nil
	}
	f := m.FilteredValue
	if math.Abs(f) <= volExpansionMin {
		return nil
	}
	dir := models.DirectionNeutral
	switch {
	case f > 0:
		dir = models.DirectionLong
	case f < 0:
		dir = models.DirectionShort
	}
	return candidate(ctx, d.Name(), math.Abs(f)*800,
		dir,
		fmt.Sprintf("volatility expanding, %.3f%% funding", f),
		models.FeatureVector{
			"funding_rate": f,
			"variance":     m.Variance,
		})
}

// RangeTrading fires when funding sits deep inside the neutral band.
type RangeTrading struct{}

func (RangeTrading) Name() string      { return NameRangeTrading }
func (RangeTrading) Tier() models.Tier { return TierFor(NameRangeTrading) }

func (d RangeTrading) Evaluate(ctx service.MarketContext) *models.CandidateSignal {
	m, ok := ctx.Metric(models.MetricFundingRate)
	if !ok || m.Armed {
		return nil
	}
	f := m.FilteredValue
	if math.Abs(f) >= rangeFundingMax {
		return nil
	}
	return candidate(ctx, d.Name(), 70,
		models.DirectionNeutral,
		fmt.Sprintf("market ranging, %.4f%% funding", f),
		models.FeatureVector{"funding_rate": f})
}

// Scalping requires an ultra-neutral rate with deep liquidity.
type Scalping struct{}

func (Scalping) Name() string      { return NameScalping }
func (Scalping) Tier() models.Tier { return TierFor(NameScalping) }

func (d Scalping) Evaluate(ctx service.MarketContext) *models.CandidateSignal {
	fm, ok := ctx.Metric(models.MetricFundingRate)
	if !ok || fm.Armed || math.Abs(fm.FilteredValue) >= scalpFundingMax {
		return nil
	}
	vm, ok := ctx.Metric(models.MetricVolumeRatio)
	if !ok || vm.FilteredValue <= scalpVolumeRatioMin {
		return nil
	}
	return candidate(ctx, d.Name(), 80,
		models.DirectionNeutral,
		fmt.Sprintf("ultra-neutral %.4f%% funding with %.1fx volume", fm.FilteredValue, vm.FilteredValue),
		models.FeatureVector{
			"funding_rate": fm.FilteredValue,
			"volume_ratio": vm.FilteredValue,
		})
}

// LiquidationCascade fires when funding indicates positioning crowded
// enough to chain liquidations. Fades the crowded side.
type LiquidationCascade struct{}

func (LiquidationCascade) Name() string      { return NameLiquidationCascade }
func (LiquidationCascade) Tier() models.Tier { return TierFor(NameLiquidationCascade) }

func (d LiquidationCascade) Evaluate(ctx service.MarketContext) *models.CandidateSignal {
	m, ok := ctx.Metric(models.MetricFundingRate)
	if !ok {
		return nil
	}
	f := m.FilteredValue
	if math.Abs(f) <= cascadeFundingMin {
		return nil
	}
	dir := models.DirectionShort
	if f < 0 {
		dir = models.DirectionLong
	}
	features := models.FeatureVector{"funding_rate": f}
	if lr, ok := ctx.Metric(models.MetricLiquidationRisk); ok {
		features["liquidation_risk"] = lr.FilteredValue
	}
	return candidate(ctx, d.Name(), math.Abs(f)*400,
		dir,
		fmt.Sprintf("cascade risk, %.3f%% funding shows overcrowded positioning", f),
		features)
}

// OIDivergence fires when open interest builds against sentiment, a sign
// the flow is positioned opposite the crowd.
type OIDivergence struct{}

func (OIDivergence) Name() string      { return NameOIDivergence }
func (OIDivergence) Tier() models.Tier { return TierFor(NameOIDivergence) }

func (d OIDivergence) Evaluate(ctx service.MarketContext) *models.CandidateSignal {
	om, ok := ctx.Metric(models.MetricOIChange)
	if !ok || !om.Armed {
		return nil
	}
	sm, ok := ctx.Metric(models.MetricSentiment)
	if !ok {
		return nil
	}
	oi, s := om.FilteredValue, sm.FilteredValue
	if math.Abs(oi) <= oiDivergenceMin || oi*s >= 0 {
		return nil
	}
	// Position with the building open interest, against the crowd.
	dir := models.DirectionLong
	if oi < 0 {
		dir = models.DirectionShort
	}
	return candidate(ctx, d.Name(), math.Abs(oi)*10+math.Abs(s)/2,
		dir,
		fmt.Sprintf("OI %+.1f%% diverging from sentiment %.1f", oi, s),
		models.FeatureVector{
			"oi_change": oi,
			"sentiment": s,
		})
}

func opposite(d models.Direction) models.Direction {
	switch d {
	case models.DirectionLong:
		return models.DirectionShort
	case models.DirectionShort:
		return models.DirectionLong
	}
	return models.DirectionNeutral
}
