package calib

import "github.com/linht/lms7cal/lms7"

// VCO selects a synthesizer for VCO tuning
type VCO int

const (
	VCOCGEN VCO = iota
	VCOSXR
	VCOSXT
)

func (v VCO) String() string {
	switch v {
	case VCOCGEN:
		return "CGEN"
	case VCOSXR:
		return "SXR"
	case VCOSXT:
		return "SXT"
	}
	return "unknown"
}

// Synthesizer programs the clock generator, the RF synthesizers and the
// TSP NCOs. Calibrations only choose frequencies; the PLL arithmetic lives
// behind this interface. SX frequencies are addressed by direction (Rx is
// SXR, Tx is SXT) regardless of the active channel.
type Synthesizer interface {
	SetFrequencySX(dir lms7.Direction, hz float64) error
	FrequencySX(dir lms7.Direction) (float64, error)
	SetFrequencyCGEN(hz float64) error
	FrequencyCGEN() (float64, error)
	SetNCOFrequency(dir lms7.Direction, index int, hz float64) error
	TuneVCO(vco VCO) error
}
