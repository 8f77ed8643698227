// Package supervisor implements the controller's state machine, direction
// and slew management, PI speed-loop dispatch, and the bus-voltage/fault
// latch of spec §4.H and §7. Grounded structurally on
// original_source/motor/src/motor_control.c's slow-loop dispatch, expanded
// to the full IDLE/ALIGN/RUN/FAULT table spec.md adds on top of it.
package supervisor

import (
	"math"

	"github.com/viamrobotics/bldc/control"
	"github.com/viamrobotics/bldc/logging"
	"github.com/viamrobotics/bldc/motortype"
)

// Tunables are the configurable constants spec §9 calls out as tunables,
// not invariants: open-loop startup shape, handover/reversal thresholds,
// slew rate and the speed-command ceiling.
type Tunables struct {
	StartupDuty    float64 // fixed duty applied throughout ALIGN
	StepsTotal     int     // commutation steps before forcing ALIGN->RUN
	TicksPerStep   int     // slow-loop ticks per ALIGN commutation step
	HandoverRPM    float64 // |rpm_mech| above which ALIGN->RUN early-exits
	RevThreshold   float64 // max |rpm_mech| at which a direction flip commits
	StopThreshold  float64 // |rpm_mech| below which RUN->IDLE is allowed
	SlewRatePerSec float64 // rpm/s; per-tick step is this divided by SlowHz
	RPMMax         float64
	BusVMax        float64
	BusVMin        float64
	SlowHz         float64
}

// Output is what one Tick produces for the fast loop and for telemetry.
type Output struct {
	State       motortype.ControllerState
	Fault       motortype.FaultKind
	Duty        float64 // torque_cmd, already clamped to [0,1]
	Direction   motortype.Direction
	RPMCmd      float64          // the slewed speed command
	AlignSector motortype.Sector // meaningful only when State == StateAlign
	PIStatus    control.Status   // meaningful only when State == StateRun
	DriverStop  bool             // true => fast loop must stop the driver
}

// StateMachine owns the supervisor's state: ControllerState, latched fault,
// committed direction, ALIGN bring-up counters, the slew limiter and the
// speed PI. It is intended to be driven exclusively by the slow loop.
type StateMachine struct {
	tun    Tunables
	pi     *control.PI
	slew   *control.SlewLimiter
	logger logging.Logger

	state motortype.ControllerState
	fault motortype.FaultKind

	currentDirection motortype.Direction
	startupSteps     int
	alignSector      motortype.Sector
	ticksInStep      int
}

// NewStateMachine builds a StateMachine starting in IDLE with no fault,
// forward direction, and the slew limiter at rest.
func NewStateMachine(tun Tunables, pi *control.PI, logger logging.Logger) *StateMachine {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &StateMachine{
		tun:    tun,
		pi:     pi,
		slew:   control.NewSlewLimiter(tun.SlewRatePerSec/tun.SlowHz, 0),
		logger: logger,
		state:  motortype.StateIdle,
		fault:  motortype.FaultNone,
	}
}

// State reports the current controller state.
func (sm *StateMachine) State() motortype.ControllerState { return sm.state }

// Fault reports the latched fault cause, NONE if no fault.
func (sm *StateMachine) Fault() motortype.FaultKind { return sm.fault }

func clamp(x, lo, hi float64) float64 {
	if x > hi {
		return hi
	}
	if x < lo {
		return lo
	}
	return x
}

// CheckBusVoltage applies the bus-voltage envelope guard (spec §4.H),
// called by the slow loop whenever v_bus is refreshed. The small positive
// floor on the undervoltage check avoids spurious faults while de-energized.
func (sm *StateMachine) CheckBusVoltage(vBus float64) {
	switch {
	case vBus > sm.tun.BusVMax:
		sm.ReportFault(motortype.FaultOvervolt)
	case vBus > 0.1 && vBus < sm.tun.BusVMin:
		sm.ReportFault(motortype.FaultUndervolt)
	}
}

// ReportFault latches kind as the fault cause if not already faulted (spec
// §7: "subsequent reports do not overwrite"), forces the state to FAULT,
// and resets the PI and slew limiter so a later clear starts clean.
func (sm *StateMachine) ReportFault(kind motortype.FaultKind) {
	if sm.state == motortype.StateFault {
		return
	}
	sm.logger.Warnw("fault latched", "kind", kind)
	sm.fault = kind
	sm.state = motortype.StateFault
	sm.pi.Reset()
	sm.slew.Reset(0)
}

// ClearFault returns FAULT to IDLE with the fault cause cleared (spec §7:
// "enable remains false"; the caller's Command must still carry Enable=false
// until the host re-issues an enable).
func (sm *StateMachine) ClearFault() {
	if sm.state != motortype.StateFault {
		return
	}
	sm.state = motortype.StateIdle
	sm.fault = motortype.FaultNone
}

// Tick runs one slow-loop pipeline step (spec §4.H): direction/slew update,
// state-transition evaluation, then per-state dispatch.
func (sm *StateMachine) Tick(cmd motortype.Command, rpmMech float64) Output {
	if sm.state == motortype.StateFault {
		sm.slew.Reset(0)
		return Output{
			State:      motortype.StateFault,
			Fault:      sm.fault,
			Direction:  sm.currentDirection,
			DriverStop: true,
		}
	}

	targetDir := cmd.Direction
	var slewTarget float64
	if targetDir != sm.currentDirection {
		if math.Abs(rpmMech) <= sm.tun.RevThreshold {
			sm.currentDirection = targetDir
			slewTarget = cmd.RPMCmd
		} else {
			slewTarget = 0
		}
	} else {
		slewTarget = cmd.RPMCmd
	}
	slewTarget = clamp(slewTarget, 0, sm.tun.RPMMax)
	rpmCmd := sm.slew.Tick(slewTarget)

	switch sm.state {
	case motortype.StateIdle:
		if cmd.Enable && cmd.RPMCmd > 0 {
			sm.state = motortype.StateAlign
			sm.startupSteps = 0
			sm.alignSector = 0
			sm.ticksInStep = 0
		}
	case motortype.StateAlign:
		if !cmd.Enable || cmd.RPMCmd <= 0 {
			sm.state = motortype.StateIdle
		} else {
			sm.ticksInStep++
			if sm.ticksInStep >= sm.tun.TicksPerStep {
				sm.ticksInStep = 0
				sm.alignSector = motortype.Sector((int(sm.alignSector) + 1) % motortype.NumSectors)
				sm.startupSteps++
			}
			if math.Abs(rpmMech) > sm.tun.HandoverRPM || sm.startupSteps >= sm.tun.StepsTotal {
				sm.state = motortype.StateRun
				sm.pi.Reset()
			}
		}
	case motortype.StateRun:
		if !cmd.Enable || (cmd.RPMCmd <= 0 && math.Abs(rpmMech) < sm.tun.StopThreshold) {
			sm.state = motortype.StateIdle
			sm.pi.Reset()
		}
	}

	out := Output{
		State:     sm.state,
		Fault:     sm.fault,
		Direction: sm.currentDirection,
		RPMCmd:    rpmCmd,
	}

	switch sm.state {
	case motortype.StateIdle:
		out.Duty = 0
		out.DriverStop = true
	case motortype.StateAlign:
		out.Duty = sm.tun.StartupDuty
		out.AlignSector = sm.alignSector
		out.DriverStop = false
	case motortype.StateRun:
		duty, status := sm.pi.Step(rpmCmd, rpmMech, true)
		out.Duty = clamp(duty, 0, 1)
		out.PIStatus = status
		out.DriverStop = false
	}
	return out
}
