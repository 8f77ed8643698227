// Package loop implements the two cooperating runners of spec §4.I/§4.J:
// an absolute-deadline fast loop performing commutation and estimation, and
// a best-effort slow loop running the supervisor. Grounded on the teacher's
// background-goroutine idiom (utils.PanicCapturingGo + SelectContextOrWait)
// used throughout components/motor/gpio and components/board tests, and on
// original_source/motor/src/fast_loop.c for the per-iteration pipeline.
package loop

import (
	"context"
	"time"

	"go.viam.com/utils"

	"github.com/viamrobotics/bldc/hal"
	"github.com/viamrobotics/bldc/handover"
	"github.com/viamrobotics/bldc/logging"
	"github.com/viamrobotics/bldc/motorctx"
	"github.com/viamrobotics/bldc/motortype"
	"github.com/viamrobotics/bldc/position"
	"github.com/viamrobotics/bldc/speed"
)

// DefaultJitterFaultPct is the default jitter-fault threshold (spec §4.I):
// latch TIMING when (max-min)/T_fast*100 exceeds this over one second.
const DefaultJitterFaultPct = 10.0

// JitterStats is the rolling per-second {min,max,avg,count} of
// inter-iteration period spec §4.I requires reported once per second.
type JitterStats struct {
	Min, Max, Avg time.Duration
	Count         int
}

// FastLoop runs commutation, estimation and handover at T_fast (spec §4.I).
type FastLoop struct {
	tFast          time.Duration
	jitterFaultPct float64

	driver   hal.PhaseDriver
	speedEst *speed.Estimator
	posEst   *position.Estimator
	handover *handover.Controller
	ctx      *motorctx.MotorContext
	logger   logging.Logger

	windowStart  time.Time
	lastIterTime time.Time
	iterCount    int
	minPeriod    time.Duration
	maxPeriod    time.Duration
	sumPeriod    time.Duration

	lastStats JitterStats

	driverEnabled bool
}

// NewFastLoop builds a FastLoop at the given rate. jitterFaultPct <= 0 uses
// DefaultJitterFaultPct.
func NewFastLoop(fastHz, jitterFaultPct float64, driver hal.PhaseDriver, speedEst *speed.Estimator, posEst *position.Estimator, handoverCtl *handover.Controller, mctx *motorctx.MotorContext, logger logging.Logger) *FastLoop {
	if jitterFaultPct <= 0 {
		jitterFaultPct = DefaultJitterFaultPct
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FastLoop{
		tFast:          time.Duration(float64(time.Second) / fastHz),
		jitterFaultPct: jitterFaultPct,
		driver:         driver,
		speedEst:       speedEst,
		posEst:         posEst,
		handover:       handoverCtl,
		ctx:            mctx,
		logger:         logger,
	}
}

// LastJitterStats returns the most recently completed one-second window.
func (fl *FastLoop) LastJitterStats() JitterStats { return fl.lastStats }

// Step runs one fast-loop iteration at wall-clock time now (spec §4.I).
func (fl *FastLoop) Step(now time.Time) error {
	snap := fl.ctx.Snapshot()

	if err := fl.speedEst.Update(now); err != nil {
		return err
	}
	fl.posEst.Update(fl.speedEst.Estimate())

	if snap.State == motortype.StateRun {
		fl.handover.Step(fl.speedEst.Estimate(), snap.Command.Direction, fl.speedEst, fl.posEst)
	}

	disabled := !snap.Command.Enable || snap.Fault != motortype.FaultNone
	runOrAlign := snap.State == motortype.StateRun || snap.State == motortype.StateAlign
	if disabled || !runOrAlign {
		return fl.driver.Stop()
	}

	var sector motortype.Sector
	switch snap.State {
	case motortype.StateAlign:
		sector = snap.AlignSector
	case motortype.StateRun:
		se := fl.speedEst.Estimate()
		if !se.Sector.Valid() {
			fl.ctx.StopOutputs(motortype.FaultTiming)
			return fl.driver.Stop()
		}
		sector = se.Sector
	}

	// The phase driver drops every commutation command while its own enable
	// is off, so enable it on the first iteration that commutates.
	if !fl.driverEnabled {
		if err := fl.driver.SetEnable(true); err != nil {
			return err
		}
		fl.driverEnabled = true
	}

	return fl.driver.SetSixStep(sector, snap.Command.TorqueCmd, snap.Command.Direction)
}

func (fl *FastLoop) recordJitter(now time.Time) {
	if fl.lastIterTime.IsZero() {
		fl.lastIterTime = now
		fl.windowStart = now
		return
	}
	period := now.Sub(fl.lastIterTime)
	fl.lastIterTime = now

	if fl.iterCount == 0 || period < fl.minPeriod {
		fl.minPeriod = period
	}
	if period > fl.maxPeriod {
		fl.maxPeriod = period
	}
	fl.sumPeriod += period
	fl.iterCount++

	if now.Sub(fl.windowStart) < time.Second {
		return
	}

	stats := JitterStats{Min: fl.minPeriod, Max: fl.maxPeriod, Count: fl.iterCount}
	if fl.iterCount > 0 {
		stats.Avg = fl.sumPeriod / time.Duration(fl.iterCount)
	}
	fl.lastStats = stats
	fl.logger.Infow("fast loop jitter", "min", stats.Min, "max", stats.Max, "avg", stats.Avg, "count", stats.Count)

	pct := float64(fl.maxPeriod-fl.minPeriod) / float64(fl.tFast) * 100
	if pct > fl.jitterFaultPct {
		fl.logger.Warnw("fast loop jitter fault", "pct", pct, "threshold", fl.jitterFaultPct)
		fl.ctx.StopOutputs(motortype.FaultTiming)
		if err := fl.driver.Stop(); err != nil {
			fl.logger.Errorw("failed to stop driver on jitter fault", "error", err)
		}
	}

	fl.windowStart = now
	fl.minPeriod = 0
	fl.maxPeriod = 0
	fl.sumPeriod = 0
	fl.iterCount = 0
}

// Run starts the loop on a background goroutine using absolute-deadline
// scheduling: each deadline is the previous plus T_fast, and an overrun
// pushes the next deadline forward by whole periods past the missed ones
// rather than attempting to catch up (spec §4.I scheduling).
func (fl *FastLoop) Run(ctx context.Context) {
	utils.PanicCapturingGo(func() {
		deadline := time.Now().Add(fl.tFast)
		for {
			if ctx.Err() != nil {
				return
			}
			if d := time.Until(deadline); d > 0 {
				if !utils.SelectContextOrWait(ctx, d) {
					return
				}
			}
			now := time.Now()
			fl.recordJitter(now)
			if err := fl.Step(now); err != nil {
				fl.logger.Errorw("fast loop step failed", "error", err)
			}
			deadline = deadline.Add(fl.tFast)
			for !deadline.After(time.Now()) {
				deadline = deadline.Add(fl.tFast)
			}
		}
	})
}
