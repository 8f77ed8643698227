package loop

import (
	"testing"

	"go.viam.com/test"

	"github.com/viamrobotics/bldc/control"
	"github.com/viamrobotics/bldc/hal"
	"github.com/viamrobotics/bldc/hal/fake"
	"github.com/viamrobotics/bldc/motorctx"
	"github.com/viamrobotics/bldc/motortype"
	"github.com/viamrobotics/bldc/speed"
	"github.com/viamrobotics/bldc/supervisor"
)

func newTestSlowLoop(t *testing.T) (*SlowLoop, *fake.ADC, *fake.GateDriverStatus, *motorctx.MotorContext, *supervisor.StateMachine) {
	t.Helper()
	adc := fake.NewADC()
	adc.Set(hal.ChanVBus, 24.0)
	gateStatus := fake.NewGateDriverStatus()
	pi := control.NewPI(0.05, 5.0, 0.001, 0, 1)
	sm := supervisor.NewStateMachine(supervisor.Tunables{
		StartupDuty: 0.2, StepsTotal: 36, TicksPerStep: 5, HandoverRPM: 50,
		RevThreshold: 100, StopThreshold: 50, SlewRatePerSec: 6000,
		RPMMax: 5000, BusVMax: 40, BusVMin: 10, SlowHz: 1000,
	}, pi, nil)
	mctx := motorctx.New()
	hallR := fake.NewHallReader(0b001)
	speedEst := speed.NewEstimator(hallR, adc, 4.0, nil)

	sl := NewSlowLoop(1000, adc, gateStatus, sm, mctx, speedEst, nil)
	return sl, adc, gateStatus, mctx, sm
}

func TestSlowLoopStepPublishesBusVoltageAndState(t *testing.T) {
	sl, _, _, mctx, _ := newTestSlowLoop(t)
	mctx.SetEnable(true)
	mctx.SetSpeedCmd(1000, motortype.Forward)

	sl.Step()
	s := mctx.Snapshot()
	test.That(t, s.Measurement.VBus, test.ShouldEqual, 24.0)
	test.That(t, s.State, test.ShouldEqual, motortype.StateAlign)
}

func TestSlowLoopOvervoltLatchesFault(t *testing.T) {
	sl, adc, _, mctx, sm := newTestSlowLoop(t)
	adc.Set(hal.ChanVBus, 45.0)

	sl.Step()
	test.That(t, mctx.Snapshot().Fault, test.ShouldEqual, motortype.FaultOvervolt)
	test.That(t, sm.State(), test.ShouldEqual, motortype.StateFault)
}

func TestSlowLoopGateDriverFaultLatchesDriverFault(t *testing.T) {
	sl, _, gateStatus, mctx, _ := newTestSlowLoop(t)
	gateStatus.Set(true, false)

	sl.Step()
	test.That(t, mctx.Snapshot().Fault, test.ShouldEqual, motortype.FaultDriver)
}

func TestSlowLoopOverTempLatchesDriverFault(t *testing.T) {
	sl, _, gateStatus, mctx, _ := newTestSlowLoop(t)
	gateStatus.Set(false, true)

	sl.Step()
	test.That(t, mctx.Snapshot().Fault, test.ShouldEqual, motortype.FaultDriver)
}

// TestSlowLoopPreservesFastLoopLatchedFault reproduces the fast loop's fault
// path without a FastLoop: it calls mctx.StopOutputs directly (what
// FastLoop.Step/recordJitter do on an invalid sector or jitter fault), then
// ticks the slow loop. sm never saw the fault, so without reconciling sm's
// state to the snapshot first, Tick would republish a stale non-faulted
// output and erase it within one slow-loop period.
func TestSlowLoopPreservesFastLoopLatchedFault(t *testing.T) {
	sl, _, _, mctx, sm := newTestSlowLoop(t)
	mctx.SetEnable(true)
	mctx.SetSpeedCmd(1000, motortype.Forward)

	mctx.StopOutputs(motortype.FaultTiming)
	test.That(t, sm.State(), test.ShouldNotEqual, motortype.StateFault)

	sl.Step()

	s := mctx.Snapshot()
	test.That(t, s.State, test.ShouldEqual, motortype.StateFault)
	test.That(t, s.Fault, test.ShouldEqual, motortype.FaultTiming)
	test.That(t, sm.State(), test.ShouldEqual, motortype.StateFault)
	test.That(t, sm.Fault(), test.ShouldEqual, motortype.FaultTiming)

	// A further tick must keep republishing the latched fault, not clear it.
	sl.Step()
	s = mctx.Snapshot()
	test.That(t, s.State, test.ShouldEqual, motortype.StateFault)
	test.That(t, s.Fault, test.ShouldEqual, motortype.FaultTiming)
}
