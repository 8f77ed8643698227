// Package fake provides in-memory stand-ins for the hal interfaces, used
// by unit tests for every component above the hardware boundary. Grounded
// on the teacher's components/board/fake and components/motor/fake
// in-memory test doubles.
package fake

import (
	"sync"

	"github.com/viamrobotics/bldc/hal"
	"github.com/viamrobotics/bldc/motortype"
)

// PhaseDriver is an in-memory hal.PhaseDriver recording the last applied
// state for assertions.
type PhaseDriver struct {
	mu       sync.Mutex
	enabled  bool
	signs    motortype.PhaseSign
	duty     float64
	stopCall int
}

var _ hal.PhaseDriver = (*PhaseDriver)(nil)

func NewPhaseDriver() *PhaseDriver {
	return &PhaseDriver{}
}

func (p *PhaseDriver) SetEnable(enable bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enable
	if !enable {
		p.signs = motortype.PhaseSign{}
		p.duty = 0
	}
	return nil
}

func (p *PhaseDriver) ApplyPhaseState(signs motortype.PhaseSign, duty float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled || duty <= 0 {
		p.signs = motortype.PhaseSign{}
		p.duty = 0
		return nil
	}
	p.signs = signs
	p.duty = duty
	return nil
}

func (p *PhaseDriver) SetSixStep(sector motortype.Sector, duty float64, dir motortype.Direction) error {
	signs, ok := motortype.PhaseSignsFor(sector, dir)
	if !ok {
		return p.ApplyPhaseState(motortype.PhaseSign{}, 0)
	}
	return p.ApplyPhaseState(signs, duty)
}

func (p *PhaseDriver) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signs = motortype.PhaseSign{}
	p.duty = 0
	p.stopCall++
	return nil
}

func (p *PhaseDriver) Close() error { return nil }

// State returns a snapshot of what was last applied, for test assertions.
func (p *PhaseDriver) State() (enabled bool, signs motortype.PhaseSign, duty float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled, p.signs, p.duty
}

func (p *PhaseDriver) StopCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopCall
}

// HallReader is a settable fake hal.HallReader.
type HallReader struct {
	mu   sync.Mutex
	bits uint8
	err  error
}

var _ hal.HallReader = (*HallReader)(nil)

func NewHallReader(initial uint8) *HallReader {
	return &HallReader{bits: initial}
}

func (h *HallReader) Set(bits uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bits = bits
}

func (h *HallReader) SetErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *HallReader) ReadBits() (uint8, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bits, h.err
}

func (h *HallReader) Close() error { return nil }

// ADC is a settable fake hal.ADC with one voltage per channel.
type ADC struct {
	mu     sync.Mutex
	values map[hal.ADCChannel]float64
}

var _ hal.ADC = (*ADC)(nil)

func NewADC() *ADC {
	return &ADC{values: map[hal.ADCChannel]float64{}}
}

func (a *ADC) Set(ch hal.ADCChannel, v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[ch] = v
}

func (a *ADC) ReadChannel(ch hal.ADCChannel) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.values[ch], nil
}

func (a *ADC) Close() error { return nil }

// GateDriverStatus is a settable fake hal.GateDriverStatus.
type GateDriverStatus struct {
	mu                 sync.Mutex
	fault, overTempCur bool
}

var _ hal.GateDriverStatus = (*GateDriverStatus)(nil)

func NewGateDriverStatus() *GateDriverStatus { return &GateDriverStatus{} }

func (g *GateDriverStatus) Set(fault, overTempOrCurrent bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fault = fault
	g.overTempCur = overTempOrCurrent
}

func (g *GateDriverStatus) Read() (bool, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fault, g.overTempCur, nil
}

func (g *GateDriverStatus) Close() error { return nil }
