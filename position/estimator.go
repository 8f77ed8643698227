// Package position implements the position estimator (spec §4.E), grounded
// on original_source/motor/src/position_estimator.c. It derives a
// commutation-reference electrical angle from the active speed estimator's
// sector rather than interpolating rotor position between updates.
package position

import (
	"math"

	"github.com/viamrobotics/bldc/motortype"
	"github.com/viamrobotics/bldc/speed"
)

const sectorsPerElecRev = 6.0

// Estimate mirrors the original PosEst_t: a commutation-reference electrical
// angle plus the speeds and sector it was derived from.
type Estimate struct {
	ElecAngleRad float64
	RPMElec      float64
	RPMMech      float64
	Sector       motortype.Sector
	Valid        bool
}

// Estimator derives Estimate from a speed.Estimator's output every fast-loop
// step. It carries a mode only for parity with the original source's
// HALL/BEMF selector; both modes compute the angle identically from sector.
type Estimator struct {
	mode motortype.EstimatorSource
	est  Estimate
}

// NewEstimator starts in Hall mode with a zeroed, invalid estimate.
func NewEstimator() *Estimator {
	return &Estimator{mode: motortype.SourceHall}
}

// Mode reports the active source.
func (p *Estimator) Mode() motortype.EstimatorSource { return p.mode }

// SetMode switches the active source, clearing the estimate (spec §4.F
// handover step 3: "set position-estimator mode to BEMF").
func (p *Estimator) SetMode(mode motortype.EstimatorSource) {
	p.mode = mode
	p.est = Estimate{}
}

// Update recomputes the estimate from the current speed.Estimate.
func (p *Estimator) Update(se speed.Estimate) {
	p.est.RPMMech = se.RPMMech
	p.est.RPMElec = se.RPMElec

	if !se.Valid || !se.Sector.Valid() {
		p.est.Sector = 0
		p.est.ElecAngleRad = 0
		p.est.Valid = false
		return
	}

	p.est.Sector = se.Sector
	angleStep := 2.0 * math.Pi / sectorsPerElecRev
	p.est.ElecAngleRad = (float64(se.Sector) + 0.5) * angleStep
	p.est.Valid = true
}

// Estimate returns the current estimate.
func (p *Estimator) Estimate() Estimate { return p.est }
