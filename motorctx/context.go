// Package motorctx implements the process-wide shared aggregate (spec
// §4.K, §5), grounded on original_source/motor/src/motor_states.c's single
// global MotorContext_t but reworked from an ambient singleton into an
// owned, snapshot-published value: every write publishes a fresh immutable
// snapshot via atomic.Pointer so readers never observe a torn read across
// fields.
package motorctx

import (
	"sync/atomic"

	"github.com/viamrobotics/bldc/motortype"
)

// Snapshot is the full, immutable state readers observe: state, fault,
// command and measurement together (spec §3 MotorContext), plus the
// supervisor's internal ALIGN sector counter so the fast loop can read it
// from the same consistent snapshot instead of a side channel.
type Snapshot struct {
	State       motortype.ControllerState
	Fault       motortype.FaultKind
	Command     motortype.Command
	Measurement motortype.Measurement
	AlignSector motortype.Sector
}

// MotorContext holds the current Snapshot behind an atomic pointer. Writes
// are single-writer-per-field-group (command setters are called by
// whichever collaborator owns the host interface; state/measurement
// setters are called only by the supervisor and fault path, per spec §5),
// but every write is a full snapshot replace so concurrent readers never
// see a mix of old and new fields.
type MotorContext struct {
	snap atomic.Pointer[Snapshot]
}

// New builds a MotorContext at its spec §4.K boot default: IDLE, no fault,
// a zeroed command and measurement.
func New() *MotorContext {
	mc := &MotorContext{}
	mc.snap.Store(&Snapshot{
		State:   motortype.StateIdle,
		Fault:   motortype.FaultNone,
		Command: motortype.Command{Direction: motortype.Forward},
	})
	return mc
}

// Snapshot returns the current state as a consistent value copy.
func (mc *MotorContext) Snapshot() Snapshot {
	return *mc.snap.Load()
}

// SetCommand replaces the command half of the snapshot, called by whichever
// external collaborator (remote control, CLI) owns host command intake.
func (mc *MotorContext) SetCommand(cmd motortype.Command) {
	prev := mc.snap.Load()
	next := *prev
	next.Command = cmd
	mc.snap.Store(&next)
}

// SetEnable updates only the enable bit of the command.
func (mc *MotorContext) SetEnable(enable bool) {
	prev := mc.snap.Load()
	next := *prev
	next.Command.Enable = enable
	mc.snap.Store(&next)
}

// SetSpeedCmd updates only the requested RPM and direction.
func (mc *MotorContext) SetSpeedCmd(rpm float64, dir motortype.Direction) {
	prev := mc.snap.Load()
	next := *prev
	next.Command.RPMCmd = rpm
	next.Command.Direction = dir
	mc.snap.Store(&next)
}

// SupervisorUpdate bundles every field the supervisor owns and publishes
// together each slow-loop tick, so readers never see e.g. a new State with
// a stale Measurement.
type SupervisorUpdate struct {
	Measurement motortype.Measurement
	State       motortype.ControllerState
	Fault       motortype.FaultKind
	RPMCmd      float64
	Direction   motortype.Direction
	TorqueCmd   float64
	AlignSector motortype.Sector
}

// PublishSupervisorUpdate is the supervisor's single-writer publish point
// (spec §4.K: "Mutated only by the supervisor (slow loop) and fault
// supervisor"): one atomic snapshot replace carrying the refreshed
// measurement, controller state, latched fault, slewed command fields and
// ALIGN sector counter together.
func (mc *MotorContext) PublishSupervisorUpdate(u SupervisorUpdate) {
	prev := mc.snap.Load()
	next := *prev
	next.Measurement = u.Measurement
	next.State = u.State
	next.Fault = u.Fault
	next.Command.RPMCmd = u.RPMCmd
	next.Command.Direction = u.Direction
	next.Command.TorqueCmd = u.TorqueCmd
	next.AlignSector = u.AlignSector
	mc.snap.Store(&next)
}

// StopOutputs is the idempotent, race-safe terminal publish any fault
// reporter may invoke directly (spec §5): it zeroes torque_cmd and forces
// state to FAULT with fault set, without touching the rest of the command.
func (mc *MotorContext) StopOutputs(fault motortype.FaultKind) {
	prev := mc.snap.Load()
	next := *prev
	next.Command.TorqueCmd = 0
	next.State = motortype.StateFault
	next.Fault = fault
	mc.snap.Store(&next)
}
