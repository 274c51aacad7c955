package plugins

import (
	"errors"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RESETN low time, and the wait before the first SPI access after release
const (
	resetPulse  = 100 * time.Microsecond
	resetSettle = time.Millisecond
)

// outputLine is the part of a requested gpiocdev line the board uses
type outputLine interface {
	SetValue(value int) error
	Value() (int, error)
	Close() error
}

// BoardLines are the two LMS7002M control lines: RESETN, active low, and
// the T/R enable of the antenna switch, high for Tx
type BoardLines struct {
	chip     *gpiocdev.Chip
	resetn   outputLine
	txEnable outputLine
	chipPath string
	resetPin int
	txRxPin  int
}

// OpenBoardLines requests both lines with the transceiver running and the
// switch on Rx
func OpenBoardLines(chipPath string, resetPin, txRxPin int) (*BoardLines, error) {
	chip, err := gpiocdev.NewChip(chipPath, gpiocdev.WithConsumer("lms7cal"))
	if err != nil {
		return nil, fmt.Errorf("open %s for the LMS7 control lines: %w", chipPath, err)
	}

	resetn, err := chip.RequestLine(resetPin, gpiocdev.AsOutput(1), gpiocdev.WithConsumer("lms7-resetn"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request RESETN on %s line %d: %w", chipPath, resetPin, err)
	}
	txEnable, err := chip.RequestLine(txRxPin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("lms7-txen"))
	if err != nil {
		resetn.Close()
		chip.Close()
		return nil, fmt.Errorf("request T/R enable on %s line %d: %w", chipPath, txRxPin, err)
	}

	return &BoardLines{
		chip:     chip,
		resetn:   resetn,
		txEnable: txEnable,
		chipPath: chipPath,
		resetPin: resetPin,
		txRxPin:  txRxPin,
	}, nil
}

// Close drops the switch back to Rx and releases both lines
func (b *BoardLines) Close() error {
	var errs []error
	if b.txEnable != nil {
		if err := b.txEnable.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("T/R enable to Rx: %w", err))
		}
		if err := b.txEnable.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release T/R enable: %w", err))
		}
		b.txEnable = nil
	}
	if b.resetn != nil {
		if err := b.resetn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release RESETN: %w", err))
		}
		b.resetn = nil
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", b.chipPath, err))
		}
		b.chip = nil
	}
	return errors.Join(errs...)
}

// Reset pulses RESETN. Every register returns to its power-on value and the
// active channel to A.
func (b *BoardLines) Reset() error {
	if b.resetn == nil {
		return errors.New("RESETN line released")
	}
	if err := b.resetn.SetValue(0); err != nil {
		return fmt.Errorf("assert RESETN: %w", err)
	}
	time.Sleep(resetPulse)
	if err := b.resetn.SetValue(1); err != nil {
		return fmt.Errorf("release RESETN: %w", err)
	}
	time.Sleep(resetSettle)
	return nil
}

// SetTx selects the Tx path of the antenna switch, or Rx when tx is false
func (b *BoardLines) SetTx(tx bool) error {
	if b.txEnable == nil {
		return errors.New("T/R enable line released")
	}
	value := 0
	if tx {
		value = 1
	}
	if err := b.txEnable.SetValue(value); err != nil {
		return fmt.Errorf("drive T/R enable %d: %w", value, err)
	}
	return nil
}

// Tx reports whether the antenna switch is on the Tx path
func (b *BoardLines) Tx() (bool, error) {
	if b.txEnable == nil {
		return false, errors.New("T/R enable line released")
	}
	value, err := b.txEnable.Value()
	if err != nil {
		return false, fmt.Errorf("read T/R enable: %w", err)
	}
	return value == 1, nil
}

// Info names the chip and the line offsets in use
func (b *BoardLines) Info() map[string]interface{} {
	info := map[string]interface{}{
		"chip":      b.chipPath,
		"reset_pin": b.resetPin,
		"tx_rx_pin": b.txRxPin,
		"open":      b.chip != nil,
	}
	if b.chip != nil {
		info["label"] = b.chip.Label
	}
	return info
}

// CheckLineChip opens and closes the GPIO character device carrying the
// control lines
func CheckLineChip(chipPath string) error {
	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return fmt.Errorf("LMS7 control lines: %w", err)
	}
	return chip.Close()
}

// CheckLine reports whether offset exists on the chip and is free to request
func CheckLine(chipPath string, offset int) error {
	if offset < 0 {
		return fmt.Errorf("line %d: negative offset", offset)
	}
	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return fmt.Errorf("LMS7 control lines: %w", err)
	}
	defer chip.Close()

	info, err := chip.LineInfo(offset)
	if err != nil {
		return fmt.Errorf("line %d on %s: %w", offset, chipPath, err)
	}
	if info.Used && info.Consumer != "lms7-resetn" && info.Consumer != "lms7-txen" {
		return fmt.Errorf("line %d on %s held by %q", offset, chipPath, info.Consumer)
	}
	return nil
}
