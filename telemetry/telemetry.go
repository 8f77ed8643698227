// Package telemetry formats a compact, grep-friendly one-line status
// string from the controller's current state, grounded on
// original_source/app/src/status_display.c's fixed-format printf line.
// Unlike the original, Format performs no I/O and owns no thread; the
// caller decides where and how often the line goes (spec §4.M).
package telemetry

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/viamrobotics/bldc/motortype"
	"github.com/viamrobotics/bldc/position"
)

// Line is everything the status line reports, gathered from whichever
// snapshots the caller holds at the moment it wants to render one.
type Line struct {
	State       motortype.ControllerState
	Fault       motortype.FaultKind
	Enabled     bool
	RPMMech     float64
	RPMCmd      float64
	Duty        float64
	Direction   motortype.Direction
	VBus        float64
	SensorMode  motortype.EstimatorSource
	Position    position.Estimate

	// CorrelationID, when set, ties this line back to the MotorContext
	// snapshot it was rendered from, for consumers correlating a status
	// line with the structured log entries emitted around the same tick.
	CorrelationID uuid.UUID
}

// Format renders l as a single fixed-layout line, matching the original's
// field order and precision so existing grep/log-scraping habits transfer:
//
//	STATE=RUN FAULT=NONE EN=1 RPM=1234.5 CMD=1500.0 DUTY=0.350 DIR=forward
//	SECTOR=3 ELEC_ANG=1.571 ELEC_RPM=4938.1 VBUS=23.45 SENSOR_MODE=bemf ID=...
func Format(l Line) string {
	en := 0
	if l.Enabled {
		en = 1
	}
	id := l.CorrelationID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return fmt.Sprintf(
		"STATE=%s FAULT=%s EN=%d RPM=%.1f CMD=%.1f DUTY=%.3f DIR=%s "+
			"SECTOR=%s ELEC_ANG=%.3f ELEC_RPM=%.1f VBUS=%.2f SENSOR_MODE=%s ID=%s",
		l.State, l.Fault, en, l.RPMMech, l.RPMCmd, l.Duty, l.Direction,
		l.Position.Sector, l.Position.ElecAngleRad, l.Position.RPMElec, l.VBus, l.SensorMode, id,
	)
}
