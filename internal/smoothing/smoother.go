package smoothing

import (
	"errors"
	"math"
	"sync"
	"time"

	"AlertPulse/internal/domain/models"
	drepo "AlertPulse/internal/domain/repository"
	"AlertPulse/pkg/config"
)

// ErrInvalidSample marks a NaN/Inf measurement. The filter state is left
// untouched in that case.
var ErrInvalidSample = errors.New("invalid metric sample")

type stateKey struct {
	symbol string
	metric models.MetricName
}

type metricState struct {
	filter *Filter
	cfg    config.MetricFilter

	armed      bool
	armedAbove bool
}

// band computes the trigger band around the current estimate, honoring the
// minimum band width floor.
func (st *metricState) band() (lower, upper float64, ok bool) {
	x, p, ok := st.filter.Estimate()
	if !ok {
		return 0, 0, false
	}
	half := st.cfg.ThresholdBandK * math.Sqrt(p)
	if 2*half < st.cfg.MinBandWidth {
		half = st.cfg.MinBandWidth / 2
	}
	return x - half, x + half, true
}

// Smoother owns one Kalman filter per (symbol, metric) pair and runs the
// hysteresis state machine against the adaptive trigger band. Safe for
// concurrent use; filter state is in-memory only and re-converges after a
// restart.
type Smoother struct {
	mu      sync.Mutex
	states  map[stateKey]*metricState
	cfg     *config.Config
	metrics drepo.Metrics
	bus     drepo.EventBus
}

func New(cfg *config.Config, metrics drepo.Metrics, bus drepo.EventBus) *Smoother {
	return &Smoother{
		states:  make(map[stateKey]*metricState),
		cfg:     cfg,
		metrics: metrics,
		bus:     bus,
	}
}

// Observe folds one sample into its filter and returns the updated smoothed
// view. Invalid samples return ErrInvalidSample without touching state.
//
// Arming compares the new estimate against the band that held before the
// update: a freshly filtered value that lands outside the previous band by
// at least the hysteresis margin arms the metric; it disarms only after
// moving back past the opposite margin.
func (s *Smoother) Observe(sample models.MetricSample) (models.SmoothedMetric, error) {
	if !validSample(sample.RawValue) {
		s.metrics.RecordSampleDropped(string(sample.Metric))
		s.bus.Publish(models.PipelineEvent{
			Kind:   models.EventSampleDropped,
			Symbol: sample.Symbol,
			Reason: "nan_or_inf",
			At:     time.Now(),
		})
		return models.SmoothedMetric{}, ErrInvalidSample
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := stateKey{symbol: sample.Symbol, metric: sample.Metric}
	st, ok := s.states[key]
	if !ok {
		fc := s.cfg.FilterFor(string(sample.Metric))
		st = &metricState{filter: NewFilter(fc.KalmanQ, fc.KalmanR), cfg: fc}
		s.states[key] = st
	}

	prevLower, prevUpper, hadPrev := st.band()
	x, p := st.filter.Update(sample.RawValue)
	lower, upper, _ := st.band()

	if hadPrev {
		margin := st.cfg.HysteresisMargin
		switch {
		case !st.armed && x >= prevUpper+margin:
			st.armed, st.armedAbove = true, true
		case !st.armed && x <= prevLower-margin:
			st.armed, st.armedAbove = true, false
		case st.armed && st.armedAbove && x <= prevUpper-margin:
			st.armed = false
		case st.armed && !st.armedAbove && x >= prevLower+margin:
			st.armed = false
		}
	}

	s.metrics.RecordBand(sample.Symbol, string(sample.Metric), lower, upper)

	return models.SmoothedMetric{
		Metric:        sample.Metric,
		Symbol:        sample.Symbol,
		FilteredValue: x,
		Variance:      p,
		BandLower:     lower,
		BandUpper:     upper,
		Armed:         st.armed,
	}, nil
}

// Snapshot returns the current smoothed view for a symbol, one entry per
// metric observed so far.
func (s *Smoother) Snapshot(symbol string) map[models.MetricName]models.SmoothedMetric {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[models.MetricName]models.SmoothedMetric)
	for key, st := range s.states {
		if key.symbol != symbol {
			continue
		}
		x, p, ok := st.filter.Estimate()
		if !ok {
			continue
		}
		lower, upper, _ := st.band()
		out[key.metric] = models.SmoothedMetric{
			Metric:        key.metric,
			Symbol:        symbol,
			FilteredValue: x,
			Variance:      p,
			BandLower:     lower,
			BandUpper:     upper,
			Armed:         st.armed,
		}
	}
	return out
}

// ResetSymbol drops all filter state for a symbol, e.g. after an extended
// feed outage.
func (s *Smoother) ResetSymbol(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.states {
		if key.symbol == symbol {
			delete(s.states, key)
		}
	}
}
