// Package app wires the controller's collaborators into the two running
// loops and owns the teardown sequence (spec §5), grounded on the
// original's main.c init/cleanup ordering and on the teacher's
// PanicCapturingGo/graceful-stop idiom used by the fast/slow loops
// themselves.
package app

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/viamrobotics/bldc/config"
	"github.com/viamrobotics/bldc/control"
	"github.com/viamrobotics/bldc/hal"
	"github.com/viamrobotics/bldc/handover"
	"github.com/viamrobotics/bldc/logging"
	"github.com/viamrobotics/bldc/loop"
	"github.com/viamrobotics/bldc/motorctx"
	"github.com/viamrobotics/bldc/motortype"
	"github.com/viamrobotics/bldc/position"
	"github.com/viamrobotics/bldc/speed"
	"github.com/viamrobotics/bldc/supervisor"
	"github.com/viamrobotics/bldc/telemetry"
)

// HAL bundles every hardware collaborator the controller needs (spec §6).
// GateStatus is optional; nil disables gate-driver fault sampling. Current
// is optional and is not read by either loop.
type HAL struct {
	Driver     hal.PhaseDriver
	HallReader hal.HallReader
	ADC        hal.ADC
	GateStatus hal.GateDriverStatus
	Current    hal.CurrentSensor
}

// Controller owns every collaborator, the two loops, and the shared
// context, and is the single object cmd/bldcd drives.
type Controller struct {
	hal HAL

	logger   logging.Logger
	ctx      *motorctx.MotorContext
	speedEst *speed.Estimator
	posEst   *position.Estimator
	handover *handover.Controller
	sm       *supervisor.StateMachine

	fast *loop.FastLoop
	slow *loop.SlowLoop

	cancel context.CancelFunc
}

// New validates cfg, builds every collaborator from it and h, and returns a
// Controller ready to Run. Bad tunables (spec §4.L sanity check) are
// reported before anything is wired.
func New(cfg config.Config, h HAL, logger logging.Logger) (*Controller, error) {
	if ok, reasons := cfg.Validate(); !ok {
		return nil, errors.Errorf("invalid configuration: %v", reasons)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	mctx := motorctx.New()
	speedEst := speed.NewEstimator(h.HallReader, h.ADC, cfg.PolePairs, logger.With("component", "speed"))
	posEst := position.NewEstimator()
	hoCtl := handover.NewController(cfg.SensorlessMinRPMMech, cfg.SensorlessStableSamples)

	pi := control.NewPI(cfg.SpeedPIKp, cfg.SpeedPIKi, 1.0/cfg.SlowLoopHz, 0, 1)
	sm := supervisor.NewStateMachine(supervisor.Tunables{
		StartupDuty:    cfg.StartupDuty,
		StepsTotal:     cfg.StepsTotal,
		TicksPerStep:   cfg.TicksPerStep,
		HandoverRPM:    cfg.HandoverRPM,
		RevThreshold:   cfg.RevThreshold,
		StopThreshold:  cfg.StopThreshold,
		SlewRatePerSec: cfg.SlewRatePerSec,
		RPMMax:         cfg.RPMMax,
		BusVMax:        cfg.BusVMaxV,
		BusVMin:        cfg.BusVMinV,
		SlowHz:         cfg.SlowLoopHz,
	}, pi, logger.With("component", "supervisor"))

	fast := loop.NewFastLoop(cfg.FastLoopHz, cfg.JitterFaultPct, h.Driver, speedEst, posEst, hoCtl, mctx, logger.With("component", "fastloop"))
	slow := loop.NewSlowLoop(cfg.SlowLoopHz, h.ADC, h.GateStatus, sm, mctx, speedEst, logger.With("component", "slowloop"))

	return &Controller{
		hal:      h,
		logger:   logger,
		ctx:      mctx,
		speedEst: speedEst,
		posEst:   posEst,
		handover: hoCtl,
		sm:       sm,
		fast:     fast,
		slow:     slow,
	}, nil
}

// Run starts both loops in the background and returns immediately; call
// Stop to tear down (spec §5).
func (c *Controller) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.fast.Run(runCtx)
	c.slow.Run(runCtx)
}

// SetEnable forwards a host enable/disable request (spec §3/§5). Enabling
// also re-arms the handover controller, matching spec §4.F's "SetEnable(true)
// resets DONE back to ARMED."
func (c *Controller) SetEnable(enable bool) {
	c.ctx.SetEnable(enable)
	c.handover.SetEnable(enable)
}

// SetSpeedCmd forwards a host speed command.
func (c *Controller) SetSpeedCmd(rpmCmd float64, dir motortype.Direction) {
	c.ctx.SetSpeedCmd(rpmCmd, dir)
}

// StatusLine renders the current telemetry line (spec §4.M).
func (c *Controller) StatusLine() string {
	snap := c.ctx.Snapshot()
	return telemetry.Format(telemetry.Line{
		State:      snap.State,
		Fault:      snap.Fault,
		Enabled:    snap.Command.Enable,
		RPMMech:    snap.Measurement.RPMMech,
		RPMCmd:     snap.Command.RPMCmd,
		Duty:       snap.Command.TorqueCmd,
		Direction:  snap.Command.Direction,
		VBus:       snap.Measurement.VBus,
		SensorMode: c.speedEst.Mode(),
		Position:   c.posEst.Estimate(),
	})
}

// Stop cancels both loops, commands the driver to its safe idempotent
// terminal state, and closes every HAL collaborator, combining every error
// encountered rather than stopping at the first (spec §5).
func (c *Controller) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}

	var err error
	err = multierr.Append(err, c.hal.Driver.Stop())
	err = multierr.Append(err, c.hal.Driver.Close())
	if c.hal.HallReader != nil {
		err = multierr.Append(err, c.hal.HallReader.Close())
	}
	if c.hal.ADC != nil {
		err = multierr.Append(err, c.hal.ADC.Close())
	}
	if c.hal.GateStatus != nil {
		err = multierr.Append(err, c.hal.GateStatus.Close())
	}
	return err
}
