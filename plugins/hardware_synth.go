package plugins

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/linht/lms7cal/calib"
	"github.com/linht/lms7cal/lms7"
)

const (
	txNCOBase = 0x0240
	rxNCOBase = 0x0440
	ncoCount  = 16

	// the TSP runs at a quarter of CGEN with the default interpolation
	tspDivider = 4
)

// SynthConfig holds the LO frequencies the board is brought up with
type SynthConfig struct {
	SXRxHz float64 `yaml:"sx_freq_rx" json:"sx_freq_rx"`
	SXTxHz float64 `yaml:"sx_freq_tx" json:"sx_freq_tx"`
	CGENHz float64 `yaml:"cgen_freq" json:"cgen_freq"`
}

// NCOSynth programs the TSP NCOs of the chip. SXR, SXT and CGEN stay where
// the board bring-up left them: a request for their current frequency
// succeeds, anything else fails with calib.ErrUnsupported.
type NCOSynth struct {
	chip   *lms7.Chip
	sx     [2]float64
	cgen   float64
	logger *slog.Logger
}

var _ calib.Synthesizer = (*NCOSynth)(nil)

// NewNCOSynth creates the synthesizer for chip
func NewNCOSynth(chip *lms7.Chip, cfg SynthConfig, logger *slog.Logger) *NCOSynth {
	return &NCOSynth{
		chip:   chip,
		sx:     [2]float64{lms7.Rx: cfg.SXRxHz, lms7.Tx: cfg.SXTxHz},
		cgen:   cfg.CGENHz,
		logger: logger,
	}
}

func sameFrequency(a, b float64) bool {
	return math.Abs(a-b) < 1
}

// SetFrequencySX accepts only the configured frequency
func (s *NCOSynth) SetFrequencySX(dir lms7.Direction, hz float64) error {
	if s.sx[dir] != 0 && sameFrequency(s.sx[dir], hz) {
		return nil
	}
	s.logger.Debug("SX retune requested", "direction", dir.String(), "from", s.sx[dir], "to", hz)
	return fmt.Errorf("retuning SX %s to %.0f Hz: %w", dir, hz, calib.ErrUnsupported)
}

// FrequencySX returns the configured LO frequency
func (s *NCOSynth) FrequencySX(dir lms7.Direction) (float64, error) {
	if s.sx[dir] == 0 {
		return 0, fmt.Errorf("SX %s frequency not configured: %w", dir, calib.ErrUnsupported)
	}
	return s.sx[dir], nil
}

// SetFrequencyCGEN accepts only the configured frequency
func (s *NCOSynth) SetFrequencyCGEN(hz float64) error {
	if s.cgen != 0 && sameFrequency(s.cgen, hz) {
		return nil
	}
	s.logger.Debug("CGEN retune requested", "from", s.cgen, "to", hz)
	return fmt.Errorf("retuning CGEN to %.0f Hz: %w", hz, calib.ErrUnsupported)
}

// FrequencyCGEN returns the configured clock frequency
func (s *NCOSynth) FrequencyCGEN() (float64, error) {
	if s.cgen == 0 {
		return 0, fmt.Errorf("CGEN frequency not configured: %w", calib.ErrUnsupported)
	}
	return s.cgen, nil
}

// SetNCOFrequency writes the 32-bit frequency control word of NCO index in
// the banks selected by MAC
func (s *NCOSynth) SetNCOFrequency(dir lms7.Direction, index int, hz float64) error {
	if index < 0 || index >= ncoCount {
		return fmt.Errorf("NCO index %d outside 0-%d: %w", index, ncoCount-1, calib.ErrUnsupported)
	}
	ref := s.cgen / tspDivider
	if ref == 0 {
		return fmt.Errorf("NCO reference unknown: %w", calib.ErrUnsupported)
	}
	if math.Abs(hz) >= ref/2 {
		return &calib.RangeError{Op: "SetNCOFrequency", Value: hz, Min: -ref / 2, Max: ref / 2}
	}

	base := uint16(rxNCOBase)
	if dir == lms7.Tx {
		base = txNCOBase
	}
	high := base + 2 + uint16(2*index)
	fcw := uint32(int32(math.Round(hz / ref * (1 << 32))))
	if err := s.chip.WriteBatch([]uint16{high, high + 1}, []uint16{uint16(fcw >> 16), uint16(fcw)}); err != nil {
		return fmt.Errorf("failed to program %s NCO %d: %w", dir, index, err)
	}
	return nil
}

// TuneVCO has nothing to do while the synthesizers are not retuned
func (s *NCOSynth) TuneVCO(vco calib.VCO) error {
	s.logger.Debug("VCO tuning skipped", "vco", vco.String())
	return nil
}
