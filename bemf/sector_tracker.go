// Package bemf implements the back-EMF zero-crossing sector tracker
// (spec §4.C), grounded on original_source/motor/src/bemf_sector.c.
package bemf

import (
	"time"

	"github.com/viamrobotics/bldc/hal"
	"github.com/viamrobotics/bldc/logging"
	"github.com/viamrobotics/bldc/motortype"
)

const (
	// ZCThresholdV is the symmetric deadband around zero for sign
	// classification (spec §4.C step 3).
	ZCThresholdV = 0.2
	// MinPeriodS is the shortest accepted zero-crossing period; shorter
	// intervals are ignored as noise (spec §4.C step 4, §8 boundary).
	MinPeriodS = 1e-5
	// StandstillTimeout invalidates the speed estimate (not the sector)
	// after this long without a zero-crossing (spec §4.C step 1).
	StandstillTimeout = 500 * time.Millisecond
	// BEMFValidMinV guards against acting on noise while the bus is
	// de-energized (spec §4.C guard).
	BEMFValidMinV = 1.0

	sectorsPerElecRev = 6.0
)

// Sign is the classified zero-crossing sign.
type Sign int

const (
	SignNeg Sign = -1
	SignZero Sign = 0
	SignPos Sign = 1
)

// State mirrors spec §3's BemfSectorState.
type State struct {
	Sector         motortype.Sector
	RPMElec        float64
	RPMMech        float64
	LastPeriodS    float64
	Valid          bool
	LastZCTime     time.Time
	PrevZCTime     time.Time
	LastSampleTime time.Time
	LastDiff       float64
	LastSign       Sign
	Dir            int // +1 or -1 sector advance per zero-crossing
}

// Tracker is the BEMF sector tracker. It borrows the ADC read-only (spec §3
// ownership) and holds no other external resource.
type Tracker struct {
	adc        hal.ADC
	polePairs  float64
	state      State
	haveSample bool
	logger     logging.Logger
}

// NewTracker builds a Tracker starting at sector 0, direction +1.
func NewTracker(adc hal.ADC, polePairs float64, logger logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Tracker{
		adc:       adc,
		polePairs: polePairs,
		state:     State{Dir: 1},
		logger:    logger,
	}
}

// SetSector forces alignment, clearing ZC history and validity (spec §4.C
// bring-up operation).
func (t *Tracker) SetSector(s motortype.Sector) {
	t.state.Sector = motortype.Sector(normSector(int(s)))
	t.state.LastSign = SignZero
	t.state.LastDiff = 0
	t.state.LastZCTime = time.Time{}
	t.state.PrevZCTime = time.Time{}
	t.state.Valid = false
	t.haveSample = false
}

// SetDirection sets the sector-advance direction: +1 or -1.
func (t *Tracker) SetDirection(dir motortype.Direction) {
	if dir == motortype.Reverse {
		t.state.Dir = -1
	} else {
		t.state.Dir = 1
	}
}

func normSector(s int) int {
	r := s % motortype.NumSectors
	if r < 0 {
		r += motortype.NumSectors
	}
	return r
}

func classify(diff float64) Sign {
	switch {
	case diff > ZCThresholdV:
		return SignPos
	case diff < -ZCThresholdV:
		return SignNeg
	default:
		return SignZero
	}
}

// Update performs one tracker step at wall-clock time now (spec §4.C).
func (t *Tracker) Update(now time.Time) error {
	vBus, err := t.adc.ReadChannel(hal.ChanVBus)
	if err != nil {
		return err
	}
	if vBus < BEMFValidMinV {
		t.state.Valid = false
		t.state.RPMElec = 0
		t.state.RPMMech = 0
		return nil
	}

	if !t.state.LastZCTime.IsZero() && now.Sub(t.state.LastZCTime) > StandstillTimeout {
		t.state.Valid = false
		t.state.RPMElec = 0
		t.state.RPMMech = 0
		t.state.LastPeriodS = 0
	}

	floatingPhase := motortype.FloatingPhaseForSector[normSector(int(t.state.Sector))]
	vPhase, err := t.adc.ReadChannel(phaseChannel(floatingPhase))
	if err != nil {
		return err
	}
	diff := vPhase - vBus/2

	sign := classify(diff)

	if t.state.LastSign != SignZero && sign != SignZero && sign != t.state.LastSign && t.haveSample {
		tZC := midpoint(t.state.LastSampleTime, now)

		if !t.state.LastZCTime.IsZero() {
			dtZC := tZC.Sub(t.state.LastZCTime).Seconds()
			if dtZC > MinPeriodS {
				tElec := dtZC * sectorsPerElecRev
				rpmElec := 60.0 / tElec
				t.state.RPMElec = rpmElec
				t.state.RPMMech = rpmElec / t.polePairs
				t.state.LastPeriodS = tElec
				t.state.Valid = true
			}
		}

		t.state.PrevZCTime = t.state.LastZCTime
		t.state.LastZCTime = tZC
		t.state.Sector = motortype.Sector(normSector(int(t.state.Sector) + t.state.Dir))
	}

	t.state.LastDiff = diff
	t.state.LastSign = sign
	t.state.LastSampleTime = now
	t.haveSample = true
	return nil
}

func midpoint(a, b time.Time) time.Time {
	if a.IsZero() {
		return b
	}
	return a.Add(b.Sub(a) / 2)
}

func phaseChannel(p motortype.Phase) hal.ADCChannel {
	switch p {
	case motortype.PhaseU:
		return hal.ChanEMFU
	case motortype.PhaseV:
		return hal.ChanEMFV
	default:
		return hal.ChanEMFW
	}
}

// State returns the current tracker state snapshot.
func (t *Tracker) State() State { return t.state }
