package loop

import (
	"context"
	"time"

	"go.viam.com/utils"

	"github.com/viamrobotics/bldc/hal"
	"github.com/viamrobotics/bldc/logging"
	"github.com/viamrobotics/bldc/motorctx"
	"github.com/viamrobotics/bldc/motortype"
	"github.com/viamrobotics/bldc/speed"
	"github.com/viamrobotics/bldc/supervisor"
)

// SlowLoop runs the supervisor and bus-voltage/driver-fault monitoring at
// best-effort T_slow (spec §4.J). It is not hard real-time and self-paces
// using monotonic sleeps rather than absolute deadlines.
type SlowLoop struct {
	tSlow      time.Duration
	adc        hal.ADC
	gateStatus hal.GateDriverStatus
	sm         *supervisor.StateMachine
	ctx        *motorctx.MotorContext
	speedEst   *speed.Estimator
	logger     logging.Logger
}

// NewSlowLoop builds a SlowLoop. gateStatus may be nil if no gate-driver
// fault/status collaborator is wired.
func NewSlowLoop(slowHz float64, adc hal.ADC, gateStatus hal.GateDriverStatus, sm *supervisor.StateMachine, mctx *motorctx.MotorContext, speedEst *speed.Estimator, logger logging.Logger) *SlowLoop {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SlowLoop{
		tSlow:      time.Duration(float64(time.Second) / slowHz),
		adc:        adc,
		gateStatus: gateStatus,
		sm:         sm,
		ctx:        mctx,
		speedEst:   speedEst,
		logger:     logger,
	}
}

// Step runs one slow-loop tick (spec §4.J): refresh bus voltage, sample the
// gate driver, tick the supervisor, and publish the resulting state.
//
// The fast loop can latch a fault (TIMING) directly onto the shared
// MotorContext between slow-loop ticks, since it has no synchronized access
// to the StateMachine. If that happened, sl.sm does not know about it yet;
// without reconciling the two here, the Tick below would republish sm's
// stale non-faulted output and silently clear the fault the fast loop just
// raised (spec §7: a latched fault must persist until explicitly cleared).
func (sl *SlowLoop) Step() {
	if snap := sl.ctx.Snapshot(); snap.Fault != motortype.FaultNone && sl.sm.State() != motortype.StateFault {
		sl.sm.ReportFault(snap.Fault)
	}

	vBus, err := sl.adc.ReadChannel(hal.ChanVBus)
	if err != nil {
		sl.logger.Errorw("bus voltage read failed", "error", err)
		return
	}
	sl.sm.CheckBusVoltage(vBus)

	if sl.gateStatus != nil {
		fault, overTempOrCurrent, err := sl.gateStatus.Read()
		if err != nil {
			sl.logger.Errorw("gate driver status read failed", "error", err)
		} else if fault || overTempOrCurrent {
			sl.sm.ReportFault(motortype.FaultDriver)
		}
	}

	snap := sl.ctx.Snapshot()
	est := sl.speedEst.Estimate()
	out := sl.sm.Tick(snap.Command, est.RPMMech)

	sl.ctx.PublishSupervisorUpdate(motorctx.SupervisorUpdate{
		Measurement: motortype.Measurement{
			RPMMech: est.RPMMech,
			RPMElec: est.RPMElec,
			VBus:    vBus,
		},
		State:       out.State,
		Fault:       out.Fault,
		RPMCmd:      out.RPMCmd,
		Direction:   out.Direction,
		TorqueCmd:   out.Duty,
		AlignSector: out.AlignSector,
	})
}

// Run starts the loop on a background goroutine, self-rate-limiting via
// SelectContextOrWait rather than absolute deadlines (spec §4.J: "not hard
// real-time... self-rate-limits using monotonic timestamps").
func (sl *SlowLoop) Run(ctx context.Context) {
	utils.PanicCapturingGo(func() {
		for {
			start := time.Now()
			sl.Step()
			elapsed := time.Since(start)
			remaining := sl.tSlow - elapsed
			if remaining > 0 {
				if !utils.SelectContextOrWait(ctx, remaining) {
					return
				}
			} else if ctx.Err() != nil {
				return
			}
		}
	})
}
