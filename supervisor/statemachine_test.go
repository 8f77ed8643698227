package supervisor

import (
	"math"
	"testing"

	"go.viam.com/test"

	"github.com/viamrobotics/bldc/control"
	"github.com/viamrobotics/bldc/motortype"
)

func testTunables() Tunables {
	return Tunables{
		StartupDuty:    0.2,
		StepsTotal:     36,
		TicksPerStep:   5,
		HandoverRPM:    50,
		RevThreshold:   100,
		StopThreshold:  50,
		SlewRatePerSec: 6000,
		RPMMax:         5000,
		BusVMax:        40,
		BusVMin:        10,
		SlowHz:         1000,
	}
}

func newTestSM() *StateMachine {
	pi := control.NewPI(0.05, 5.0, 0.001, 0, 1)
	return NewStateMachine(testTunables(), pi, nil)
}

func TestIdleStaysIdleWhenDisabled(t *testing.T) {
	sm := newTestSM()
	out := sm.Tick(motortype.Command{Enable: false, RPMCmd: 1000}, 0)
	test.That(t, out.State, test.ShouldEqual, motortype.StateIdle)
	test.That(t, out.Duty, test.ShouldEqual, 0.0)
	test.That(t, out.DriverStop, test.ShouldBeTrue)
}

func TestIdleToAlignOnEnableAndPositiveRPM(t *testing.T) {
	sm := newTestSM()
	out := sm.Tick(motortype.Command{Enable: true, RPMCmd: 1000}, 0)
	test.That(t, out.State, test.ShouldEqual, motortype.StateAlign)
	test.That(t, out.Duty, test.ShouldEqual, 0.2)
	test.That(t, out.AlignSector, test.ShouldEqual, motortype.Sector(0))
}

func TestAlignAdvancesSectorEveryTicksPerStep(t *testing.T) {
	sm := newTestSM()
	cmd := motortype.Command{Enable: true, RPMCmd: 1000}
	sm.Tick(cmd, 0) // IDLE -> ALIGN, sector 0

	var last Output
	for i := 0; i < 5; i++ {
		last = sm.Tick(cmd, 0)
	}
	test.That(t, last.State, test.ShouldEqual, motortype.StateAlign)
	test.That(t, last.AlignSector, test.ShouldEqual, motortype.Sector(1))
}

func TestAlignExitsToRunAfterStepsTotal(t *testing.T) {
	sm := newTestSM()
	cmd := motortype.Command{Enable: true, RPMCmd: 1000}
	sm.Tick(cmd, 0)

	var last Output
	for i := 0; i < testTunables().StepsTotal*testTunables().TicksPerStep+1; i++ {
		last = sm.Tick(cmd, 0)
	}
	test.That(t, last.State, test.ShouldEqual, motortype.StateRun)
}

func TestAlignExitsToRunEarlyOnHandoverRPM(t *testing.T) {
	sm := newTestSM()
	cmd := motortype.Command{Enable: true, RPMCmd: 1000}
	sm.Tick(cmd, 0)

	out := sm.Tick(cmd, 100) // |rpm_mech| > HANDOVER_RPM
	test.That(t, out.State, test.ShouldEqual, motortype.StateRun)
}

func TestAlignToIdleOnDisable(t *testing.T) {
	sm := newTestSM()
	cmd := motortype.Command{Enable: true, RPMCmd: 1000}
	sm.Tick(cmd, 0)
	test.That(t, sm.State(), test.ShouldEqual, motortype.StateAlign)

	out := sm.Tick(motortype.Command{Enable: false, RPMCmd: 1000}, 0)
	test.That(t, out.State, test.ShouldEqual, motortype.StateIdle)
}

func TestRunComputesDutyViaPI(t *testing.T) {
	sm := newTestSM()
	cmd := motortype.Command{Enable: true, RPMCmd: 1000}
	sm.Tick(cmd, 0)
	for i := 0; i < testTunables().StepsTotal*testTunables().TicksPerStep+1; i++ {
		sm.Tick(cmd, 0)
	}
	test.That(t, sm.State(), test.ShouldEqual, motortype.StateRun)

	out := sm.Tick(cmd, 100)
	test.That(t, out.Duty, test.ShouldBeGreaterThan, 0)
	test.That(t, out.Duty, test.ShouldBeLessThanOrEqualTo, 1.0)
}

func TestRunToIdleOnDisableWithLowSpeed(t *testing.T) {
	sm := newTestSM()
	sm.state = motortype.StateRun

	out := sm.Tick(motortype.Command{Enable: false, RPMCmd: 0}, 10)
	test.That(t, out.State, test.ShouldEqual, motortype.StateIdle)
}

func TestRunStaysRunIfSpeedAboveStopThresholdEvenWhenStopRequested(t *testing.T) {
	sm := newTestSM()
	sm.state = motortype.StateRun

	out := sm.Tick(motortype.Command{Enable: true, RPMCmd: 0}, 1000)
	test.That(t, out.State, test.ShouldEqual, motortype.StateRun)
}

func TestDirectionFlipDeniedAboveRevThresholdBrakesFirst(t *testing.T) {
	sm := newTestSM()
	sm.state = motortype.StateRun
	sm.currentDirection = motortype.Forward

	out := sm.Tick(motortype.Command{Enable: true, RPMCmd: 3000, Direction: motortype.Reverse}, 3000)
	test.That(t, out.Direction, test.ShouldEqual, motortype.Forward)
	test.That(t, out.RPMCmd, test.ShouldBeLessThan, 3000.0)
}

func TestDirectionFlipCommitsBelowRevThreshold(t *testing.T) {
	sm := newTestSM()
	sm.state = motortype.StateRun
	sm.currentDirection = motortype.Forward

	out := sm.Tick(motortype.Command{Enable: true, RPMCmd: 500, Direction: motortype.Reverse}, 50)
	test.That(t, out.Direction, test.ShouldEqual, motortype.Reverse)
}

func TestSlewRateBound(t *testing.T) {
	sm := newTestSM()
	sm.state = motortype.StateRun
	cmd := motortype.Command{Enable: true, RPMCmd: 5000}

	maxStep := testTunables().SlewRatePerSec / testTunables().SlowHz
	prev := 0.0
	for i := 0; i < 10; i++ {
		out := sm.Tick(cmd, 0)
		test.That(t, math.Abs(out.RPMCmd-prev), test.ShouldBeLessThanOrEqualTo, maxStep+1e-9)
		prev = out.RPMCmd
	}
}

func TestReportFaultLatchesFirstCauseAndForcesOutputsOff(t *testing.T) {
	sm := newTestSM()
	sm.state = motortype.StateRun

	sm.ReportFault(motortype.FaultOvervolt)
	sm.ReportFault(motortype.FaultUndervolt) // must not overwrite

	test.That(t, sm.State(), test.ShouldEqual, motortype.StateFault)
	test.That(t, sm.Fault(), test.ShouldEqual, motortype.FaultOvervolt)

	out := sm.Tick(motortype.Command{Enable: true, RPMCmd: 1000}, 1000)
	test.That(t, out.DriverStop, test.ShouldBeTrue)
	test.That(t, out.Duty, test.ShouldEqual, 0.0)
	test.That(t, out.State, test.ShouldEqual, motortype.StateFault)
}

func TestClearFaultReturnsToIdle(t *testing.T) {
	sm := newTestSM()
	sm.ReportFault(motortype.FaultDriver)
	sm.ClearFault()
	test.That(t, sm.State(), test.ShouldEqual, motortype.StateIdle)
	test.That(t, sm.Fault(), test.ShouldEqual, motortype.FaultNone)
}

func TestBusVoltageGuardOvervolt(t *testing.T) {
	sm := newTestSM()
	sm.CheckBusVoltage(45.0)
	test.That(t, sm.State(), test.ShouldEqual, motortype.StateFault)
	test.That(t, sm.Fault(), test.ShouldEqual, motortype.FaultOvervolt)
}

func TestBusVoltageAtMaxDoesNotFault(t *testing.T) {
	sm := newTestSM()
	sm.CheckBusVoltage(testTunables().BusVMax)
	test.That(t, sm.State(), test.ShouldEqual, motortype.StateIdle)
}

func TestBusVoltageGuardUndervoltWithFloor(t *testing.T) {
	sm := newTestSM()
	sm.CheckBusVoltage(0.0) // de-energized: below floor, must not fault
	test.That(t, sm.State(), test.ShouldEqual, motortype.StateIdle)

	sm2 := newTestSM()
	sm2.CheckBusVoltage(5.0) // above floor, below BusVMin: must fault
	test.That(t, sm2.State(), test.ShouldEqual, motortype.StateFault)
	test.That(t, sm2.Fault(), test.ShouldEqual, motortype.FaultUndervolt)
}
