package control

// SlewLimiter ramps a value toward a target by at most a fixed step per
// tick, generalized from the teacher's TrapezoidVelocityProfile
// ramp-limiting shape to the single-rate slew law of spec §4.H.
type SlewLimiter struct {
	// MaxStepPerTick bounds |value(t) - value(t-1)| per Tick call.
	MaxStepPerTick float64
	value          float64
}

// NewSlewLimiter starts the limiter at the given initial value.
func NewSlewLimiter(maxStepPerTick, initial float64) *SlewLimiter {
	return &SlewLimiter{MaxStepPerTick: maxStepPerTick, value: initial}
}

// Value returns the current slewed value.
func (s *SlewLimiter) Value() float64 { return s.value }

// Reset snaps the limiter to v immediately (used on enable/fault clear).
func (s *SlewLimiter) Reset(v float64) { s.value = v }

// Tick advances value toward target by at most MaxStepPerTick and returns
// the new value (spec §4.H step 3 / §8 slew law).
func (s *SlewLimiter) Tick(target float64) float64 {
	delta := target - s.value
	step := s.MaxStepPerTick
	switch {
	case delta > step:
		s.value += step
	case delta < -step:
		s.value -= step
	default:
		s.value = target
	}
	return s.value
}
