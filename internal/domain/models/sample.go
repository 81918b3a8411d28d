package models

import "time"

// MetricName identifies a tracked market metric.
type MetricName string

const (
	MetricFundingRate     MetricName = "funding_rate"
	MetricOIChange        MetricName = "oi_change"
	MetricVolumeRatio     MetricName = "volume_ratio"
	MetricBasis           MetricName = "basis"
	MetricLiquidationRisk MetricName = "liquidation_risk"
	MetricSentiment       MetricName = "sentiment"
)

// MetricSample is one raw observation from the fetch layer. Immutable.
type MetricSample struct {
	Exchange  string
	Symbol    string
	Metric    MetricName
	RawValue  float64
	Timestamp time.Time
}

// SmoothedMetric is the filter output for one (symbol, metric) pair.
// Owned by the smoothing component; callers receive copies.
type SmoothedMetric struct {
	Metric        MetricName
	Symbol        string
	FilteredValue float64
	Variance      float64
	BandLower     float64
	BandUpper     float64
	Armed         bool
}

// InBand reports whether the filtered value sits inside the trigger band.
func (m SmoothedMetric) InBand() bool {
	return m.FilteredValue >= m.BandLower && m.FilteredValue <= m.BandUpper
}
