package smoothing

import "math"

// Filter is a scalar discrete-time Kalman filter with a static state model:
// the prediction step leaves the estimate unchanged and grows the error
// covariance by the process noise Q.
type Filter struct {
	q float64 // process noise
	r float64 // measurement noise

	x           float64 // state estimate
	p           float64 // error covariance
	initialized bool
}

// NewFilter creates a filter with the given noise parameters.
func NewFilter(q, r float64) *Filter {
	return &Filter{q: q, r: r, p: 1.0}
}

// Update folds one measurement into the filter and returns the new estimate
// and error covariance. The first measurement initializes the state.
// The caller must reject NaN/Inf before calling; Update assumes finite input.
func (f *Filter) Update(z float64) (estimate, variance float64) {
	if !f.initialized {
		f.x = z
		f.initialized = true
		return f.x, f.p
	}

	// Predict: state unchanged, uncertainty grows.
	p := f.p + f.q

	// Update.
	k := p / (p + f.r)
	f.x += k * (z - f.x)
	f.p = (1 - k) * p

	return f.x, f.p
}

// Estimate returns the current state without mutating the filter.
func (f *Filter) Estimate() (value, variance float64, ok bool) {
	return f.x, f.p, f.initialized
}

// Reset clears the filter back to its uninitialized state.
func (f *Filter) Reset() {
	f.x = 0
	f.p = 1.0
	f.initialized = false
}

// validSample reports whether z can be fed to a filter.
func validSample(z float64) bool {
	return !math.IsNaN(z) && !math.IsInf(z, 0)
}
