// Package spiadc implements hal.ADC over a SPI-attached 12-bit ADC,
// grounded on the teacher's components/board/genericlinux SPI bus
// handling and on original_source/hal/src/adc.c's transfer framing.
package spiadc

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/spi"

	"github.com/viamrobotics/bldc/hal"
)

// Conn is the subset of periph.io's spi.Conn this driver needs.
type Conn interface {
	Tx(w, r []byte) error
}

const (
	vRef   = 1.65 // reference voltage at the ADC pin (original_source ADC_REF_V)
	counts = 4095 // 12-bit full scale
	// rRatio is the external resistor-divider ratio bringing line voltage
	// down to the ADC's input range (spec §6: R_ratio ~= 73.1/5.1).
	rRatio = 73.1 / 5.1
)

// ADC reads one of four channels (EMF_U/V/W, V_BUS) over a SPI connection
// using the same three-byte transfer framing as a MCP3208-style device
// (channel select in the first two bytes, 12 result bits in the last two).
type ADC struct {
	conn Conn
}

var _ hal.ADC = (*ADC)(nil)

func NewADC(conn Conn) *ADC {
	return &ADC{conn: conn}
}

func (a *ADC) transfer(channel int) (int, error) {
	tx := []byte{
		0x06 | byte((channel&0x04)>>2),
		byte((channel & 0x03) << 6),
		0x00,
	}
	rx := make([]byte, 3)
	if err := a.conn.Tx(tx, rx); err != nil {
		return 0, errors.Wrap(err, "spiadc: SPI transfer failed")
	}
	return int(rx[1]&0x0F)<<8 | int(rx[2]), nil
}

func channelIndex(ch hal.ADCChannel) (int, error) {
	switch ch {
	case hal.ChanEMFU:
		return 0, nil
	case hal.ChanEMFV:
		return 1, nil
	case hal.ChanEMFW:
		return 2, nil
	case hal.ChanVBus:
		return 3, nil
	default:
		return 0, errors.Errorf("spiadc: unknown channel %d", ch)
	}
}

// ReadChannel converts the raw 12-bit counts to a scaled line voltage:
// v_pin = counts * V_ref / 4095; v_line = v_pin * R_ratio (spec §6).
func (a *ADC) ReadChannel(ch hal.ADCChannel) (float64, error) {
	idx, err := channelIndex(ch)
	if err != nil {
		return 0, err
	}
	raw, err := a.transfer(idx)
	if err != nil {
		return 0, err
	}
	vPin := float64(raw) * vRef / counts
	return vPin * rRatio, nil
}

func (a *ADC) Close() error { return nil }
