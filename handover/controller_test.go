package handover

import (
	"testing"

	"go.viam.com/test"

	"github.com/viamrobotics/bldc/hal/fake"
	"github.com/viamrobotics/bldc/motortype"
	"github.com/viamrobotics/bldc/position"
	"github.com/viamrobotics/bldc/speed"
)

func newCollaborators() (*speed.Estimator, *position.Estimator) {
	hallR := fake.NewHallReader(0b001)
	adc := fake.NewADC()
	return speed.NewEstimator(hallR, adc, 4.0, nil), position.NewEstimator()
}

func TestDisabledControllerNeverSwitches(t *testing.T) {
	c := NewController(500, 3)
	speedEst, posEst := newCollaborators()

	switched := c.Step(speed.Estimate{Valid: true, Sector: 0, RPMMech: 1000}, motortype.Forward, speedEst, posEst)
	test.That(t, switched, test.ShouldBeFalse)
	test.That(t, c.State(), test.ShouldEqual, StateDisabled)
}

func TestInvalidEstimateResetsValidCount(t *testing.T) {
	c := NewController(500, 3)
	c.SetEnable(true)
	speedEst, posEst := newCollaborators()

	c.Step(speed.Estimate{Valid: true, Sector: 0, RPMMech: 1000}, motortype.Forward, speedEst, posEst)
	switched := c.Step(speed.Estimate{Valid: false, Sector: motortype.InvalidSector}, motortype.Forward, speedEst, posEst)
	test.That(t, switched, test.ShouldBeFalse)
	test.That(t, c.validCount, test.ShouldEqual, 0)
}

func TestBelowThresholdRPMResetsValidCount(t *testing.T) {
	c := NewController(500, 3)
	c.SetEnable(true)
	speedEst, posEst := newCollaborators()

	c.Step(speed.Estimate{Valid: true, Sector: 0, RPMMech: 1000}, motortype.Forward, speedEst, posEst)
	c.Step(speed.Estimate{Valid: true, Sector: 0, RPMMech: 1000}, motortype.Forward, speedEst, posEst)
	test.That(t, c.validCount, test.ShouldEqual, 2)

	c.Step(speed.Estimate{Valid: true, Sector: 0, RPMMech: 100}, motortype.Forward, speedEst, posEst)
	test.That(t, c.validCount, test.ShouldEqual, 0)
}

func TestHandoverFiresAfterMinValidSamplesAndIsAtomic(t *testing.T) {
	c := NewController(500, 3)
	c.SetEnable(true)
	speedEst, posEst := newCollaborators()

	var switched bool
	for i := 0; i < 3; i++ {
		switched = c.Step(speed.Estimate{Valid: true, Sector: 2, RPMMech: 1000}, motortype.Forward, speedEst, posEst)
	}
	test.That(t, switched, test.ShouldBeTrue)
	test.That(t, c.State(), test.ShouldEqual, StateDone)
	test.That(t, speedEst.Mode(), test.ShouldEqual, motortype.SourceBEMF)
	test.That(t, posEst.Mode(), test.ShouldEqual, motortype.SourceBEMF)
}

func TestDoneStateIsSticky(t *testing.T) {
	c := NewController(500, 1)
	c.SetEnable(true)
	speedEst, posEst := newCollaborators()

	switched := c.Step(speed.Estimate{Valid: true, Sector: 1, RPMMech: 1000}, motortype.Forward, speedEst, posEst)
	test.That(t, switched, test.ShouldBeTrue)

	posEst.SetMode(motortype.SourceHall) // simulate something resetting it
	switched = c.Step(speed.Estimate{Valid: true, Sector: 1, RPMMech: 1000}, motortype.Forward, speedEst, posEst)
	test.That(t, switched, test.ShouldBeFalse)
	test.That(t, c.State(), test.ShouldEqual, StateDone)
}

func TestSetEnableFalseResetsDoneAndValidCount(t *testing.T) {
	c := NewController(500, 1)
	c.SetEnable(true)
	speedEst, posEst := newCollaborators()
	c.Step(speed.Estimate{Valid: true, Sector: 1, RPMMech: 1000}, motortype.Forward, speedEst, posEst)
	test.That(t, c.State(), test.ShouldEqual, StateDone)

	c.SetEnable(false)
	test.That(t, c.State(), test.ShouldEqual, StateDisabled)
	test.That(t, c.validCount, test.ShouldEqual, 0)
}

func TestMinValidSamplesClampedToOne(t *testing.T) {
	c := NewController(500, 0)
	test.That(t, c.minValidSamples, test.ShouldEqual, 1)
}
