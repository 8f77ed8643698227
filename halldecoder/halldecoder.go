// Package halldecoder implements the pure Hall-pattern-to-sector mapping
// (spec §4.B), grounded on original_source/motor/src/hall_commutator.c.
package halldecoder

import "github.com/viamrobotics/bldc/motortype"

var table = [8]motortype.Sector{
	0b000: motortype.InvalidSector,
	0b001: 0,
	0b011: 1,
	0b010: 2,
	0b110: 3,
	0b100: 4,
	0b101: 5,
	0b111: motortype.InvalidSector,
}

// HallToSector is total and pure: every 3-bit pattern maps to a sector or
// motortype.InvalidSector for the two invalid patterns (0b000, 0b111).
func HallToSector(bits uint8) motortype.Sector {
	return table[bits&0b111]
}
