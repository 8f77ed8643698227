// Package sysfsgpio implements hal.PhaseDriver over periph.io GPIO/PWM
// pins, grounded on the teacher's components/board/genericlinux sysfs
// pin-mapping approach and on original_source/hal/src/gpio.c's INH/INL
// drive logic.
package sysfsgpio

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/viamrobotics/bldc/hal"
	"github.com/viamrobotics/bldc/motortype"
)

// PWMPin is the subset of periph.io's gpio.PinIO this driver needs for a
// hardware-PWM capable gate line.
type PWMPin interface {
	Out(l gpio.Level) error
	PWM(duty gpio.Duty, freq physic.Frequency) error
}

// GatePins names the six physical lines for one phase driver instance.
type GatePins struct {
	InhA, InlA PWMPin
	InhB, InlB PWMPin
	InhC, InlC PWMPin
}

func (g GatePins) forPhase(ph motortype.Phase) (inh, inl PWMPin) {
	switch ph {
	case motortype.PhaseU:
		return g.InhA, g.InlA
	case motortype.PhaseV:
		return g.InhB, g.InlB
	default:
		return g.InhC, g.InlC
	}
}

// Driver is a hardware-PWM phase driver: duty is translated to a periph.io
// gpio.Duty fraction of the configured carrier frequency (spec §4.A, §6).
type Driver struct {
	pins     GatePins
	enGate   PWMPin
	carrier  physic.Frequency
	enabled  bool
}

var _ hal.PhaseDriver = (*Driver)(nil)

// NewDriver builds a Driver with the given gate pins, enable-gate pin and
// PWM carrier frequency (default 20kHz per spec §6).
func NewDriver(pins GatePins, enGate PWMPin, carrierHz float64) *Driver {
	if carrierHz <= 0 {
		carrierHz = 20000
	}
	return &Driver{pins: pins, enGate: enGate, carrier: physic.Frequency(carrierHz) * physic.Hertz}
}

func (d *Driver) SetEnable(enable bool) error {
	d.enabled = enable
	if !enable {
		if err := d.allInactive(); err != nil {
			return err
		}
	}
	if d.enGate != nil {
		lvl := gpio.Low
		if enable {
			lvl = gpio.High
		}
		return d.enGate.Out(lvl)
	}
	return nil
}

// scaledDuty converts a [0,1] duty fraction to a gpio.Duty, scaling before
// truncating to the integer-based type — converting duty to gpio.Duty first
// would truncate every fractional duty to 0.
func scaledDuty(duty float64) gpio.Duty {
	return gpio.Duty(float64(gpio.DutyMax) * duty)
}

func (d *Driver) allInactive() error {
	var err error
	for _, ph := range [3]motortype.Phase{motortype.PhaseU, motortype.PhaseV, motortype.PhaseW} {
		inh, inl := d.pins.forPhase(ph)
		err = multierr.Append(err, inh.Out(gpio.Low))
		err = multierr.Append(err, inl.Out(gpio.Low))
	}
	return err
}

// ApplyPhaseState drives INH_x/INL_x per sign, with duty clamped to at most 1
// and passed to the active pin via scaledDuty (spec §4.A). The scaled duty is
// truncated, not rounded, and is not clamped below a full period: duty 1
// yields gpio.DutyMax.
func (d *Driver) ApplyPhaseState(signs motortype.PhaseSign, duty float64) error {
	if !d.enabled || duty <= 0 {
		return d.allInactive()
	}
	if duty > 1 {
		duty = 1
	}
	signByPhase := map[motortype.Phase]motortype.Sign{
		motortype.PhaseU: signs.U,
		motortype.PhaseV: signs.V,
		motortype.PhaseW: signs.W,
	}
	var err error
	for ph, sign := range signByPhase {
		inh, inl := d.pins.forPhase(ph)
		switch sign {
		case motortype.SignHigh:
			err = multierr.Append(err, inl.Out(gpio.Low))
			err = multierr.Append(err, inh.PWM(scaledDuty(duty), d.carrier))
		case motortype.SignLow:
			err = multierr.Append(err, inh.Out(gpio.Low))
			err = multierr.Append(err, inl.PWM(scaledDuty(duty), d.carrier))
		default: // SignFloat
			err = multierr.Append(err, inh.Out(gpio.Low))
			err = multierr.Append(err, inl.Out(gpio.Low))
		}
	}
	return err
}

func (d *Driver) SetSixStep(sector motortype.Sector, duty float64, dir motortype.Direction) error {
	signs, ok := motortype.PhaseSignsFor(sector, dir)
	if !ok {
		return errors.Errorf("sysfsgpio: invalid sector %v for six-step commutation", sector)
	}
	return d.ApplyPhaseState(signs, duty)
}

// Stop is the idempotent terminal state: all gates inactive. Safe to call
// from any goroutine holding no other lock (spec §5).
func (d *Driver) Stop() error {
	return d.allInactive()
}

func (d *Driver) Close() error {
	return d.Stop()
}
