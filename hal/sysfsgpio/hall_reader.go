package sysfsgpio

import (
	"periph.io/x/conn/v3/gpio"

	"github.com/viamrobotics/bldc/hal"
)

// DigitalIn is the subset of periph.io's gpio.PinIO this driver needs for a
// digital input line.
type DigitalIn interface {
	Read() gpio.Level
}

// HallReader samples three digital input lines and packs them into the
// bit0=A, bit1=B, bit2=C pattern spec §4.B / §6 expects.
type HallReader struct {
	a, b, c DigitalIn
}

var _ hal.HallReader = (*HallReader)(nil)

func NewHallReader(a, b, c DigitalIn) *HallReader {
	return &HallReader{a: a, b: b, c: c}
}

func (h *HallReader) ReadBits() (uint8, error) {
	var bits uint8
	if h.a.Read() {
		bits |= 1 << 0
	}
	if h.b.Read() {
		bits |= 1 << 1
	}
	if h.c.Read() {
		bits |= 1 << 2
	}
	return bits, nil
}

func (h *HallReader) Close() error { return nil }

// GateDriverStatus samples the gate driver's active-low nFAULT/nOCTW
// inputs, inverting them so Read() reports true-means-asserted.
type GateDriverStatus struct {
	nFault, nOCTW DigitalIn
}

var _ hal.GateDriverStatus = (*GateDriverStatus)(nil)

func NewGateDriverStatus(nFault, nOCTW DigitalIn) *GateDriverStatus {
	return &GateDriverStatus{nFault: nFault, nOCTW: nOCTW}
}

func (g *GateDriverStatus) Read() (fault bool, overTempOrCurrent bool, err error) {
	return !bool(g.nFault.Read()), !bool(g.nOCTW.Read()), nil
}

func (g *GateDriverStatus) Close() error { return nil }
