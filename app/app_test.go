package app

import (
	"context"
	"testing"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/viamrobotics/bldc/config"
	"github.com/viamrobotics/bldc/hal"
	"github.com/viamrobotics/bldc/hal/fake"
	"github.com/viamrobotics/bldc/motortype"
)

func newTestHAL() (HAL, *fake.PhaseDriver, *fake.ADC, *fake.HallReader, *fake.GateDriverStatus) {
	driver := fake.NewPhaseDriver()
	adc := fake.NewADC()
	adc.Set(hal.ChanVBus, 24.0)
	hallR := fake.NewHallReader(0b001)
	gate := fake.NewGateDriverStatus()
	return HAL{Driver: driver, HallReader: hallR, ADC: adc, GateStatus: gate}, driver, adc, hallR, gate
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	h, _, _, _, _ := newTestHAL()
	cfg := config.Default()
	cfg.PolePairs = 0

	c, err := New(cfg, h, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, c, test.ShouldBeNil)
}

func TestNewBuildsControllerFromValidConfig(t *testing.T) {
	h, _, _, _, _ := newTestHAL()
	c, err := New(config.Default(), h, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c, test.ShouldNotBeNil)
}

func TestStatusLineReflectsIdleAtBoot(t *testing.T) {
	h, _, _, _, _ := newTestHAL()
	c, err := New(config.Default(), h, nil)
	test.That(t, err, test.ShouldBeNil)

	line := c.StatusLine()
	test.That(t, line, test.ShouldContainSubstring, "STATE=IDLE")
	test.That(t, line, test.ShouldContainSubstring, "EN=0")
}

func TestSetEnableAndSpeedCmdReachSnapshot(t *testing.T) {
	h, _, _, _, _ := newTestHAL()
	c, err := New(config.Default(), h, nil)
	test.That(t, err, test.ShouldBeNil)

	c.SetEnable(true)
	c.SetSpeedCmd(1500, motortype.Forward)

	snap := c.ctx.Snapshot()
	test.That(t, snap.Command.Enable, test.ShouldBeTrue)
	test.That(t, snap.Command.RPMCmd, test.ShouldEqual, 1500.0)
}

func TestRunThenStopTerminatesCleanlyAndStopsDriver(t *testing.T) {
	h, driver, _, _, _ := newTestHAL()
	c, err := New(config.Default(), h, nil)
	test.That(t, err, test.ShouldBeNil)

	c.Run(context.Background())
	// The fast loop stops the driver asynchronously on its own goroutine;
	// wait for that effect rather than assuming a fixed sleep covers it.
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, driver.StopCalls(), test.ShouldBeGreaterThan, 0)
	})

	err = c.Stop()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, driver.StopCalls(), test.ShouldBeGreaterThan, 0)
}

func TestStopClosesOptionalCollaborators(t *testing.T) {
	h, _, _, _, _ := newTestHAL()
	c, err := New(config.Default(), h, nil)
	test.That(t, err, test.ShouldBeNil)

	err = c.Stop()
	test.That(t, err, test.ShouldBeNil)
}
