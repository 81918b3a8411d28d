package smoothing

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"AlertPulse/internal/domain/models"
	"AlertPulse/pkg/config"
)

type nopMetrics struct{}

func (nopMetrics) RecordSampleDropped(string)                 {}
func (nopMetrics) RecordDecision(string, string)              {}
func (nopMetrics) RecordDispatch(string, int)                 {}
func (nopMetrics) RecordDegradedScore()                       {}
func (nopMetrics) RecordError(string)                         {}
func (nopMetrics) RecordLatency(string, float64)              {}
func (nopMetrics) RecordBand(string, string, float64, float64) {}

type captureBus struct {
	events []models.PipelineEvent
}

func (b *captureBus) Publish(ev models.PipelineEvent) { b.events = append(b.events, ev) }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Smoothing.Defaults = config.MetricFilter{
		KalmanQ:          0.01,
		KalmanR:          0.1,
		ThresholdBandK:   2.0,
		MinBandWidth:     0.001,
		HysteresisMargin: 0.005,
	}
	return cfg
}

func sample(symbol string, metric models.MetricName, v float64) models.MetricSample {
	return models.MetricSample{
		Exchange:  "binance",
		Symbol:    symbol,
		Metric:    metric,
		RawValue:  v,
		Timestamp: time.Now(),
	}
}

func TestFilterConverges(t *testing.T) {
	f := NewFilter(0.01, 0.1)
	var est float64
	for i := 0; i < 200; i++ {
		est, _ = f.Update(5.0)
	}
	if math.Abs(est-5.0) > 1e-6 {
		t.Fatalf("expected convergence to 5.0, got %v", est)
	}
}

func TestVarianceAndBandInvariants(t *testing.T) {
	s := New(testConfig(), nopMetrics{}, &captureBus{})
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		v := rng.NormFloat64()*0.02 + 0.01
		sm, err := s.Observe(sample("BTC", models.MetricFundingRate, v))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sm.Variance < 0 {
			t.Fatalf("variance went negative at step %d: %v", i, sm.Variance)
		}
		if sm.BandUpper < sm.BandLower {
			t.Fatalf("band inverted at step %d: [%v, %v]", i, sm.BandLower, sm.BandUpper)
		}
	}
}

func TestInvalidSampleDroppedWithoutMutation(t *testing.T) {
	bus := &captureBus{}
	s := New(testConfig(), nopMetrics{}, bus)

	before, err := s.Observe(sample("BTC", models.MetricFundingRate, 0.01))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := s.Observe(sample("BTC", models.MetricFundingRate, bad)); err != ErrInvalidSample {
			t.Fatalf("expected ErrInvalidSample for %v, got %v", bad, err)
		}
	}

	after := s.Snapshot("BTC")[models.MetricFundingRate]
	if after.FilteredValue != before.FilteredValue || after.Variance != before.Variance {
		t.Fatalf("filter state mutated by invalid samples: %+v vs %+v", before, after)
	}
	if len(bus.events) != 3 {
		t.Fatalf("expected 3 drop events, got %d", len(bus.events))
	}
	for _, ev := range bus.events {
		if ev.Kind != models.EventSampleDropped {
			t.Fatalf("unexpected event kind %s", ev.Kind)
		}
	}
}

func TestMinBandWidthFloor(t *testing.T) {
	cfg := testConfig()
	cfg.Smoothing.Defaults.MinBandWidth = 0.05
	s := New(cfg, nopMetrics{}, &captureBus{})

	// Constant measurements collapse the variance toward zero.
	var sm models.SmoothedMetric
	for i := 0; i < 500; i++ {
		sm, _ = s.Observe(sample("ETH", models.MetricBasis, 0.02))
	}
	if width := sm.BandUpper - sm.BandLower; width < 0.05-1e-9 {
		t.Fatalf("band narrower than floor: %v", width)
	}
}

func TestHysteresisArmsAndDisarms(t *testing.T) {
	cfg := testConfig()
	cfg.Smoothing.Defaults.KalmanR = 0.001 // track measurements closely
	cfg.Smoothing.Defaults.HysteresisMargin = 0.01
	s := New(cfg, nopMetrics{}, &captureBus{})

	// Settle around zero.
	var sm models.SmoothedMetric
	for i := 0; i < 100; i++ {
		sm, _ = s.Observe(sample("BTC", models.MetricOIChange, 0))
	}
	if sm.Armed {
		t.Fatal("armed while flat")
	}

	// A sustained jump must arm.
	for i := 0; i < 50; i++ {
		sm, _ = s.Observe(sample("BTC", models.MetricOIChange, 5.0))
	}
	if !sm.Armed {
		t.Fatal("expected armed after sustained jump")
	}

	// Return to baseline must disarm.
	for i := 0; i < 200; i++ {
		sm, _ = s.Observe(sample("BTC", models.MetricOIChange, 0))
	}
	if sm.Armed {
		t.Fatal("expected disarm after return to baseline")
	}
}

func TestHysteresisNoFlappingNearBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.Smoothing.Defaults.HysteresisMargin = 0.05
	s := New(cfg, nopMetrics{}, &captureBus{})

	for i := 0; i < 50; i++ {
		s.Observe(sample("BTC", models.MetricVolumeRatio, 1.0))
	}

	// Oscillate tightly around the settled value; transitions must not occur.
	transitions := 0
	prev := s.Snapshot("BTC")[models.MetricVolumeRatio].Armed
	for i := 0; i < 100; i++ {
		v := 1.0 + 0.001*float64(i%2*2-1)
		sm, _ := s.Observe(sample("BTC", models.MetricVolumeRatio, v))
		if sm.Armed != prev {
			transitions++
			prev = sm.Armed
		}
	}
	if transitions > 0 {
		t.Fatalf("armed state flapped %d times inside the margin", transitions)
	}
}

func TestPerMetricConfigResolution(t *testing.T) {
	cfg := testConfig()
	cfg.Smoothing.Metrics = map[string]config.MetricFilter{
		"funding_rate": {KalmanR: 0.05},
	}
	f := cfg.FilterFor("funding_rate")
	if f.KalmanR != 0.05 {
		t.Fatalf("override not applied: %v", f.KalmanR)
	}
	if f.KalmanQ != 0.01 {
		t.Fatalf("default lost on override: %v", f.KalmanQ)
	}
}
