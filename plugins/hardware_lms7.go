package plugins

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/linht/lms7cal/calib"
	"github.com/linht/lms7cal/lms7"
)

// LMS7Controller is an opened LMS7002M board: the SPI register transport, the
// reset and T/R lines and the chip model on top of them
type LMS7Controller struct {
	spi   *SPIDevice
	lines *BoardLines
	chip  *lms7.Chip
	synth *NCOSynth
}

var _ Device = (*LMS7Controller)(nil)

// NewLMS7Controller opens the SPI device and the control lines named by cfg
func NewLMS7Controller(cfg HardwareConfig, logger *slog.Logger) (*LMS7Controller, error) {
	spi, err := NewSPIDevice(cfg.LMS7.SPIDevice, cfg.LMS7.SPISpeed)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SPI: %w", err)
	}

	lines, err := OpenBoardLines(cfg.LMS7.GPIOChip, cfg.LMS7.ResetPin, cfg.LMS7.TxRxPin)
	if err != nil {
		spi.Close()
		return nil, err
	}

	chip := lms7.New(spi, lms7.WithLogger(logger))
	return &LMS7Controller{
		spi:   spi,
		lines: lines,
		chip:  chip,
		synth: NewNCOSynth(chip, cfg.Synth, logger),
	}, nil
}

// Close releases all resources
func (c *LMS7Controller) Close() error {
	var errs []error

	if err := c.spi.Close(); err != nil {
		errs = append(errs, fmt.Errorf("SPI close error: %w", err))
	}
	if err := c.lines.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Chip returns the register model bound to the SPI transport
func (c *LMS7Controller) Chip() *lms7.Chip {
	return c.chip
}

// Synth returns the NCO synthesizer
func (c *LMS7Controller) Synth() calib.Synthesizer {
	return c.synth
}

// Reset pulses RESETN
func (c *LMS7Controller) Reset() error {
	return c.lines.Reset()
}

// SetTxRx drives the antenna switch
func (c *LMS7Controller) SetTxRx(tx bool) error {
	return c.lines.SetTx(tx)
}

// TxRx reads the antenna switch
func (c *LMS7Controller) TxRx() (bool, error) {
	return c.lines.Tx()
}

// Info describes the opened buses
func (c *LMS7Controller) Info() map[string]interface{} {
	return map[string]interface{}{
		"spi":   c.spi.DeviceInfo(),
		"lines": c.lines.Info(),
	}
}

// ChipVersion is the decoded chip identification register
type ChipVersion struct {
	Version  int `json:"version"`
	Revision int `json:"revision"`
	Mask     int `json:"mask"`
}

func (v ChipVersion) String() string {
	return fmt.Sprintf("LMS7002M ver %d rev %d mask %d", v.Version, v.Revision, v.Mask)
}

// ReadChipVersion checks SPI communication by reading the identification register
func ReadChipVersion(chip *lms7.Chip) (ChipVersion, error) {
	raw, err := chip.ReadRegister(lms7.RegChipID)
	if err != nil {
		return ChipVersion{}, fmt.Errorf("failed to read chip ID: %w", err)
	}
	if raw == 0x0000 || raw == 0xFFFF {
		return ChipVersion{}, fmt.Errorf("no chip answering on SPI (ID 0x%04X)", raw)
	}
	return ChipVersion{
		Version:  int(raw >> 11),
		Revision: int(raw>>6) & 0x1F,
		Mask:     int(raw) & 0x3F,
	}, nil
}
