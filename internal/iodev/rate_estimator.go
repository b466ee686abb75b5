package iodev

// RateEstimator owns the ppm-level sample-rate correction for one open
// device, separated from the per-pass coarse_rate_adjust ternary
// (spec.md §4.1 Open Question: "is coarse_rate_adjust state or
// recomputed?" — resolved in DESIGN.md to stateless-per-pass, with this
// type holding the only persistent state).
//
// The estimator accumulates a signed correction in parts-per-million: a
// device that is consistently behind schedule (buffer level trending low)
// gets a positive ppm nudge, one that's ahead gets negative.
type RateEstimator struct {
	ppm        float64
	maxPPM     float64
	stepPPM    float64
	lastAdjust int
}

// NewRateEstimator creates an estimator clamped to +-maxPPM, stepping by
// stepPPM per consecutive same-direction adjustment. 500ppm / 1ppm are
// the teacher-adjacent defaults (wide enough to track a crystal
// oscillator's drift, fine enough not to produce audible pitch shift).
func NewRateEstimator() *RateEstimator {
	return &RateEstimator{maxPPM: 500, stepPPM: 1}
}

// Update folds in this pass's coarse_rate_adjust hint (-1, 0, or +1) and
// returns the current correction in ppm to apply to the device's nominal
// rate.
func (r *RateEstimator) Update(coarseAdjust int) float64 {
	switch {
	case coarseAdjust == 0:
		r.lastAdjust = 0
	case coarseAdjust == r.lastAdjust:
		r.ppm += float64(coarseAdjust) * r.stepPPM
	default:
		r.lastAdjust = coarseAdjust
		r.ppm += float64(coarseAdjust) * r.stepPPM
	}
	if r.ppm > r.maxPPM {
		r.ppm = r.maxPPM
	}
	if r.ppm < -r.maxPPM {
		r.ppm = -r.maxPPM
	}
	return r.ppm
}

// EffectiveRate applies the current ppm correction to a nominal sample
// rate.
func (r *RateEstimator) EffectiveRate(nominal int) float64 {
	return float64(nominal) * (1 + r.ppm/1e6)
}

// CoarseRateAdjust computes the spec.md §4.1 ternary hint from a device's
// current buffer level against its target level: positive when running
// low (speed up playback consumption... i.e. the source should produce
// faster), negative when running high, zero within the deadband.
func CoarseRateAdjust(queuedFrames, targetFrames, deadbandFrames int) int {
	diff := queuedFrames - targetFrames
	if diff > deadbandFrames {
		return -1
	}
	if diff < -deadbandFrames {
		return 1
	}
	return 0
}
