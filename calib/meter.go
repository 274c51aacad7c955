package calib

import (
	"fmt"

	"github.com/linht/lms7cal/lms7"
)

// Meter returns a scalar signal-strength reading, lower is better for
// the DC and IQ searches
type Meter interface {
	RSSI() (uint32, error)
}

// ToneSelector is implemented by meters that measure one frequency bin.
// Calibrations select 0 Hz for DC offset stages and the test tone otherwise.
type ToneSelector interface {
	SelectTone(offsetHz float64)
}

// ChipMeter reads the receive TSP RSSI estimator
type ChipMeter struct {
	chip *lms7.Chip
}

// NewChipMeter creates a meter reading the on-chip RSSI registers
func NewChipMeter(chip *lms7.Chip) *ChipMeter {
	return &ChipMeter{chip: chip}
}

// RSSI latches a fresh estimate with a CAPTURE pulse and returns the 18-bit value
func (m *ChipMeter) RSSI() (uint32, error) {
	if err := m.chip.WriteField(lms7.CAPTURE, 0); err != nil {
		return 0, fmt.Errorf("rssi capture: %w", err)
	}
	if err := m.chip.WriteField(lms7.CAPTURE, 1); err != nil {
		return 0, fmt.Errorf("rssi capture: %w", err)
	}
	values, err := m.chip.ReadBatch([]uint16{lms7.RegRSSIHigh, lms7.RegRSSILow})
	if err != nil {
		return 0, fmt.Errorf("rssi read: %w", err)
	}
	return uint32(values[0])<<2 | uint32(values[1]&0x3), nil
}
