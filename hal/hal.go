// Package hal declares the external-collaborator interfaces the motor
// controller core consumes (spec §6): the phase driver / inverter, the
// Hall sensor lines, the external ADC, and the gate-driver fault/status
// lines. Concrete back-ends live in sub-packages (sysfsgpio, spiadc,
// fake); this package owns only the contracts.
package hal

import "github.com/viamrobotics/bldc/motortype"

// ADCChannel names the four channels read by the external ADC (spec §6).
type ADCChannel int

const (
	ChanEMFU ADCChannel = iota
	ChanEMFV
	ChanEMFW
	ChanVBus
)

// ADC is the synchronous external analog-to-digital converter interface.
// Reads are bounded hardware transactions (spec §5) and must never block
// indefinitely; back-ends are expected to apply their own I/O timeout.
type ADC interface {
	// ReadChannel returns the scaled voltage (volts) for ch, after applying
	// the fixed resistor-divider / reference scaling (spec §6).
	ReadChannel(ch ADCChannel) (float64, error)
	Close() error
}

// HallReader samples the three Hall-effect sensor lines and returns the
// 3-bit pattern (bit0=A, bit1=B, bit2=C), per spec §4.B / §6.
type HallReader interface {
	ReadBits() (uint8, error)
	Close() error
}

// PhaseDriver owns the six gate lines of the inverter exclusively (spec §3
// ownership, §4.A). It is the only component ever writing to INH_x/INL_x.
type PhaseDriver interface {
	// SetEnable drives EN_GATE; when disabling, all six gate lines must be
	// driven inactive before returning (spec §4.A).
	SetEnable(enable bool) error
	// ApplyPhaseState drives the three phases per sign and duty in [0,1]
	// (spec §4.A). Duty <= 0 or a floating sign drives both INH/INL
	// inactive for that phase.
	ApplyPhaseState(signs motortype.PhaseSign, duty float64) error
	// SetSixStep composes the sector->sign table with ApplyPhaseState
	// (spec §4.A).
	SetSixStep(sector motortype.Sector, duty float64, dir motortype.Direction) error
	// Stop is the idempotent, race-safe "all gates inactive" terminal
	// state any fault reporter may invoke (spec §5).
	Stop() error
	Close() error
}

// GateDriverStatus samples the gate driver's active-low nFAULT/nOCTW
// inputs (spec §6).
type GateDriverStatus interface {
	// Read returns (fault, overTempOrCurrent) — both true means the line
	// is currently asserted (active-low already inverted by the back-end).
	Read() (fault bool, overTempOrCurrent bool, err error)
	Close() error
}

// CurrentSensor is an optional collaborator not required by spec §6's
// four-channel ADC list. app.HAL accepts one, but no loop reads it, so
// Measurement.PhaseCurrents stays nil (see DESIGN.md Open Question on
// OVERCURRENT reachability).
type CurrentSensor interface {
	ReadPhaseCurrents() (motortype.PhaseCurrents, error)
}
