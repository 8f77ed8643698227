// Package speed implements the unified Hall/BEMF speed estimator (spec
// §4.D), grounded on original_source/motor/src/speed_measurement.c.
package speed

import (
	"time"

	"github.com/viamrobotics/bldc/bemf"
	"github.com/viamrobotics/bldc/hal"
	"github.com/viamrobotics/bldc/halldecoder"
	"github.com/viamrobotics/bldc/logging"
	"github.com/viamrobotics/bldc/motortype"
)

const (
	minPeriodS        = 1e-5
	standstillTimeout = 500 * time.Millisecond
	sectorsPerElecRev = 6.0
)

// Estimate mirrors the unified {rpm_mech, rpm_elec, last_period_s, sector,
// valid} output of spec §4.D.
type Estimate struct {
	RPMMech     float64
	RPMElec     float64
	LastPeriodS float64
	Sector      motortype.Sector
	Valid       bool
}

// Estimator holds a mode (Hall or BEMF) and produces the unified Estimate.
// The BEMF mode is a thin shell over a bemf.Tracker that is constructed
// once and aligned explicitly via BemfAlign before the mode switches
// (spec §4.D "Mode change... BEMF alignment is done via an explicit entry
// point before switching").
type Estimator struct {
	mode      motortype.EstimatorSource
	hall      hal.HallReader
	polePairs float64
	logger    logging.Logger

	// Hall-path state
	haveEdge     bool
	lastSector   motortype.Sector
	lastEdgeTime time.Time

	// BEMF-path state
	bemfTracker *bemf.Tracker

	est Estimate
}

// NewEstimator starts in Hall mode with the given Hall reader and a BEMF
// tracker built against adc (used only once the mode switches to BEMF).
func NewEstimator(hallReader hal.HallReader, adc hal.ADC, polePairs float64, logger logging.Logger) *Estimator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Estimator{
		mode:        motortype.SourceHall,
		hall:        hallReader,
		polePairs:   polePairs,
		logger:      logger,
		bemfTracker: bemf.NewTracker(adc, polePairs, logger),
		est:         Estimate{Sector: motortype.InvalidSector},
	}
}

// Mode reports the active source.
func (e *Estimator) Mode() motortype.EstimatorSource { return e.mode }

// SetMode switches the active source, clearing speeds and edge history
// (spec §4.D "Mode change clears speeds and edge history").
func (e *Estimator) SetMode(mode motortype.EstimatorSource) {
	e.mode = mode
	e.haveEdge = false
	e.lastEdgeTime = time.Time{}
	e.est.RPMMech = 0
	e.est.RPMElec = 0
	e.est.LastPeriodS = 0
	e.est.Valid = false
}

// BemfAlign re-aligns the BEMF tracker to a known sector and direction,
// the explicit handover entry point of spec §4.D/§4.F.
func (e *Estimator) BemfAlign(sector motortype.Sector, dir motortype.Direction) {
	e.bemfTracker.SetSector(sector)
	e.bemfTracker.SetDirection(dir)
}

// Update advances the active source by one step at wall-clock time now.
func (e *Estimator) Update(now time.Time) error {
	switch e.mode {
	case motortype.SourceBEMF:
		return e.updateBEMF(now)
	default:
		return e.updateHall(now)
	}
}

func (e *Estimator) updateHall(now time.Time) error {
	bits, err := e.hall.ReadBits()
	if err != nil {
		return err
	}
	sector := halldecoder.HallToSector(bits)
	if !sector.Valid() {
		e.est.Valid = false
		e.est.Sector = motortype.InvalidSector
		return nil
	}

	if e.haveEdge && now.Sub(e.lastEdgeTime) > standstillTimeout {
		e.est.RPMMech = 0
		e.est.RPMElec = 0
		e.est.LastPeriodS = 0
		e.est.Valid = false
		// sector is retained below
	}

	if !e.haveEdge {
		e.lastSector = sector
		e.lastEdgeTime = now
		e.haveEdge = true
		e.est.Sector = sector
		return nil
	}

	if sector != e.lastSector {
		dt := now.Sub(e.lastEdgeTime).Seconds()
		if dt > minPeriodS {
			e.lastEdgeTime = now
			e.lastSector = sector
			e.est.LastPeriodS = dt
			e.est.Sector = sector

			tElec := dt * sectorsPerElecRev
			rpmElec := 60.0 / tElec
			e.est.RPMElec = rpmElec
			e.est.RPMMech = rpmElec / e.polePairs
			e.est.Valid = true
		}
	} else {
		e.est.Sector = sector
	}
	return nil
}

func (e *Estimator) updateBEMF(now time.Time) error {
	if err := e.bemfTracker.Update(now); err != nil {
		return err
	}
	st := e.bemfTracker.State()
	e.est.RPMElec = st.RPMElec
	e.est.RPMMech = st.RPMMech
	e.est.LastPeriodS = st.LastPeriodS
	e.est.Sector = st.Sector
	e.est.Valid = st.Valid
	return nil
}

// Estimate returns the current unified estimate.
func (e *Estimator) Estimate() Estimate { return e.est }
