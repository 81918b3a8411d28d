// Package strategy holds the closed set of rule detectors that turn an
// evaluated market context into candidate signals. Detectors are stateless;
// arming, dedup and scoring live elsewhere in the pipeline.
package strategy

import (
	"time"

	"AlertPulse/internal/domain/models"
	"AlertPulse/internal/domain/service"
)

// Strategy names. The set is closed; adding a variant means adding a
// detector type and registering it in Default.
const (
	NameTrendFollowing      = "Trend Following"
	NameContrarianPlay      = "Contrarian Play"
	NameFundingArbitrage    = "Funding Rate Arbitrage"
	NameBasisArbitrage      = "Basis Arbitrage"
	NameBreakout            = "Breakout Trading"
	NameMomentumBreakout    = "Momentum Breakout"
	NameMeanReversion       = "Mean Reversion"
	NameVolatilityExpansion = "Volatility Expansion"
	NameRangeTrading        = "Range Trading"
	NameScalping            = "Scalping"
	NameLiquidationCascade  = "Liquidation Cascade Risk"
	NameOIDivergence        = "OI Divergence"
)

// tierTable maps strategy names to urgency tiers. Tier 1 bypasses the
// bundling window entirely.
var tierTable = map[string]models.Tier{
	NameLiquidationCascade: models.Tier1,
	NameMomentumBreakout:   models.Tier1,
	NameOIDivergence:       models.Tier1,

	NameContrarianPlay:      models.Tier2,
	NameBreakout:            models.Tier2,
	NameVolatilityExpansion: models.Tier2,
	NameTrendFollowing:      models.Tier2,

	NameRangeTrading:     models.Tier3,
	NameScalping:         models.Tier3,
	NameFundingArbitrage: models.Tier3,
	NameBasisArbitrage:   models.Tier3,
	NameMeanReversion:    models.Tier3,
}

// TierFor returns the tier for a strategy name, defaulting to tier 3 for
// unknown names.
func TierFor(name string) models.Tier {
	if t, ok := tierTable[name]; ok {
		return t
	}
	return models.Tier3
}

// Default returns the full detector set in evaluation order.
func Default() []service.StrategyDetector {
	return []service.StrategyDetector{
		LiquidationCascade{},
		MomentumBreakout{},
		OIDivergence{},
		ContrarianPlay{},
		Breakout{},
		VolatilityExpansion{},
		TrendFollowing{},
		MeanReversion{},
		FundingArbitrage{},
		BasisArbitrage{},
		RangeTrading{},
		Scalping{},
	}
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// candidate assembles a CandidateSignal with the shared fields filled in.
func candidate(ctx service.MarketContext, name string, conf float64, dir models.Direction, reason string, features models.FeatureVector) *models.CandidateSignal {
	return &models.CandidateSignal{
		StrategyID:     name,
		Symbol:         ctx.Symbol,
		RuleConfidence: clampConfidence(conf),
		Direction:      dir,
		Features:       features,
		Reason:         reason,
		DetectedAt:     time.Unix(ctx.AsOf, 0).UTC(),
	}
}
