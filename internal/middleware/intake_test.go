package middleware

import (
	"testing"
	"time"

	"AlertPulse/internal/domain/models"

	"github.com/stretchr/testify/require"
)

type nopMetrics struct{}

func (nopMetrics) RecordSampleDropped(string)                  {}
func (nopMetrics) RecordDecision(string, string)               {}
func (nopMetrics) RecordDispatch(string, int)                  {}
func (nopMetrics) RecordDegradedScore()                        {}
func (nopMetrics) RecordError(string)                          {}
func (nopMetrics) RecordLatency(string, float64)               {}
func (nopMetrics) RecordBand(string, string, float64, float64) {}

func sample(symbol string, metric models.MetricName) models.MetricSample {
	return models.MetricSample{
		Exchange:  "binance",
		Symbol:    symbol,
		Metric:    metric,
		RawValue:  0.01,
		Timestamp: time.Now(),
	}
}

func TestAdmitValidSample(t *testing.T) {
	g := NewSampleIntake(nopMetrics{})
	require.NoError(t, g.Admit(sample("BTCUSDT", models.MetricFundingRate)))
}

func TestAdmitRejectsMalformed(t *testing.T) {
	g := NewSampleIntake(nopMetrics{})

	s := sample("", models.MetricFundingRate)
	require.Error(t, g.Admit(s))

	s = sample("BTCUSDT", "")
	require.Error(t, g.Admit(s))

	s = sample("BTCUSDT", models.MetricFundingRate)
	s.Timestamp = time.Time{}
	err := g.Admit(s)
	require.Error(t, err)
	require.False(t, Throttled(err))
}

func TestThrottlePerSymbolMetric(t *testing.T) {
	g := NewSampleIntake(nopMetrics{}, WithMaxRPS(1))

	require.NoError(t, g.Admit(sample("BTCUSDT", models.MetricFundingRate)))

	err := g.Admit(sample("BTCUSDT", models.MetricFundingRate))
	require.Error(t, err)
	require.True(t, Throttled(err))

	// A different metric on the same symbol has its own budget.
	require.NoError(t, g.Admit(sample("BTCUSDT", models.MetricBasis)))
	// As does a different symbol.
	require.NoError(t, g.Admit(sample("ETHUSDT", models.MetricFundingRate)))
}

func TestThrottleDisabled(t *testing.T) {
	g := NewSampleIntake(nopMetrics{}, WithMaxRPS(0))
	for i := 0; i < 50; i++ {
		require.NoError(t, g.Admit(sample("BTCUSDT", models.MetricFundingRate)))
	}
}
