package position

import (
	"math"
	"testing"

	"go.viam.com/test"

	"github.com/viamrobotics/bldc/motortype"
	"github.com/viamrobotics/bldc/speed"
)

func TestUpdateComputesSectorCenterAngle(t *testing.T) {
	p := NewEstimator()
	p.Update(speed.Estimate{
		Sector:  2,
		RPMMech: 100,
		RPMElec: 400,
		Valid:   true,
	})

	e := p.Estimate()
	test.That(t, e.Valid, test.ShouldBeTrue)
	test.That(t, e.Sector, test.ShouldEqual, motortype.Sector(2))
	test.That(t, e.RPMMech, test.ShouldEqual, 100.0)
	test.That(t, e.RPMElec, test.ShouldEqual, 400.0)
	want := (2.0 + 0.5) * (2.0 * math.Pi / 6.0)
	test.That(t, e.ElecAngleRad, test.ShouldEqual, want)
}

func TestUpdateWithInvalidSpeedZeroesAngleAndSector(t *testing.T) {
	p := NewEstimator()
	p.Update(speed.Estimate{Sector: 3, Valid: false})

	e := p.Estimate()
	test.That(t, e.Valid, test.ShouldBeFalse)
	test.That(t, e.Sector, test.ShouldEqual, motortype.Sector(0))
	test.That(t, e.ElecAngleRad, test.ShouldEqual, 0.0)
}

func TestUpdateWithInvalidSectorInvalidatesEvenIfValidFlagSet(t *testing.T) {
	p := NewEstimator()
	p.Update(speed.Estimate{Sector: motortype.InvalidSector, Valid: true})

	e := p.Estimate()
	test.That(t, e.Valid, test.ShouldBeFalse)
	test.That(t, e.ElecAngleRad, test.ShouldEqual, 0.0)
}

func TestSetModeClearsEstimate(t *testing.T) {
	p := NewEstimator()
	p.Update(speed.Estimate{Sector: 1, RPMMech: 50, Valid: true})
	test.That(t, p.Estimate().Valid, test.ShouldBeTrue)

	p.SetMode(motortype.SourceBEMF)
	test.That(t, p.Mode(), test.ShouldEqual, motortype.SourceBEMF)
	e := p.Estimate()
	test.That(t, e.Valid, test.ShouldBeFalse)
	test.That(t, e.RPMMech, test.ShouldEqual, 0.0)
	test.That(t, e.ElecAngleRad, test.ShouldEqual, 0.0)
}
