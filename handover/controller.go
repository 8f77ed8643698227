// Package handover implements the sensored-to-sensorless handover state
// machine (spec §4.F), grounded on
// original_source/motor/src/sensorless_handover.c.
package handover

import (
	"github.com/viamrobotics/bldc/motortype"
	"github.com/viamrobotics/bldc/position"
	"github.com/viamrobotics/bldc/speed"
)

// State is the handover lifecycle: DISABLED -> ARMED -> DONE.
type State int

const (
	StateDisabled State = iota
	StateArmed
	StateDone
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "ARMED"
	case StateDone:
		return "DONE"
	default:
		return "DISABLED"
	}
}

// Controller arms once SetEnable(true) is called and watches the Hall speed
// estimate for min_valid_samples consecutive ticks at or above min_rpm_mech
// before performing the atomic switch to BEMF.
type Controller struct {
	minRPMMech      float64
	minValidSamples int

	state     State
	validCount int
}

// NewController builds a disabled Controller. minValidSamples below 1 is
// clamped to 1, matching the original's defensive floor.
func NewController(minRPMMech float64, minValidSamples int) *Controller {
	if minValidSamples < 1 {
		minValidSamples = 1
	}
	return &Controller{
		minRPMMech:      minRPMMech,
		minValidSamples: minValidSamples,
		state:           StateDisabled,
	}
}

// State reports the current lifecycle state.
func (c *Controller) State() State { return c.state }

// SetEnable arms or disables the controller, resetting valid_count and
// DONE-stickiness (spec §4.F "DONE is sticky until set_enable(true) resets").
func (c *Controller) SetEnable(enable bool) {
	c.validCount = 0
	if enable {
		c.state = StateArmed
	} else {
		c.state = StateDisabled
	}
}

// Step advances the handover state machine by one tick of its caller
// (FastLoop.Step calls it on every fast-loop iteration in RUN), using the
// Hall-mode speed estimate se and commanded direction dir. It must be called
// while speedEst and posEst are still in Hall mode. On a successful handover
// it performs the three-step switch — bemf_align, speed-estimator mode, and
// position-estimator mode — directly against the supplied collaborators, and
// returns switched=true. The caller must publish the resulting state to the
// fast loop as a single unit (e.g. within the same snapshot-publish step
// that calls Step), so that no fast-loop iteration observes a partial
// transition.
func (c *Controller) Step(se speed.Estimate, dir motortype.Direction, speedEst *speed.Estimator, posEst *position.Estimator) (switched bool) {
	if c.state != StateArmed {
		return false
	}

	if !se.Valid || !se.Sector.Valid() {
		c.validCount = 0
		return false
	}

	if se.RPMMech >= c.minRPMMech {
		c.validCount++
	} else {
		c.validCount = 0
	}

	if c.validCount < c.minValidSamples {
		return false
	}

	speedEst.BemfAlign(se.Sector, dir)
	speedEst.SetMode(motortype.SourceBEMF)
	posEst.SetMode(motortype.SourceBEMF)

	c.state = StateDone
	return true
}
