package calib

import (
	"fmt"

	"github.com/linht/lms7cal/cache"
	"github.com/linht/lms7cal/lms7"
)

// StoreDigitalCorrections saves the TSP corrections currently programmed on
// the active channel under its SX frequency. Rx entries carry no DC values;
// the Rx DC offset lives in the RFE and is recalibrated instead.
func (c *Calibrator) StoreDigitalCorrections(isTx bool) (err error) {
	const op = "store corrections"
	if c.cache == nil {
		return fmt.Errorf("%s: no cache configured: %w", op, ErrUnsupported)
	}
	s, err := c.begin(op)
	if err != nil {
		return err
	}
	defer s.end(&err)

	key, err := c.correctionKey(s.channel, isTx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	var v cache.DCIQ
	if isTx {
		v, err = c.readDCIQ(lms7.DCCORRI_TXTSP, lms7.DCCORRQ_TXTSP, txIQ)
	} else {
		v, err = c.readIQ(rxIQ)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.cache.InsertDCIQ(key, v); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Info("Corrections stored", "procedure", op, "freq_hz", key.FreqHz, "tx", isTx)
	return nil
}

// ApplyDigitalCorrections programs cached TSP corrections for the current SX
// frequency. With an interpolating cache the values are blended from the
// nearest stored frequencies.
func (c *Calibrator) ApplyDigitalCorrections(isTx bool) (err error) {
	const op = "apply corrections"
	if c.cache == nil {
		return fmt.Errorf("%s: no cache configured: %w", op, ErrUnsupported)
	}
	s, err := c.begin(op)
	if err != nil {
		return err
	}
	defer s.end(&err)

	key, err := c.correctionKey(s.channel, isTx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	var v cache.DCIQ
	if ip, ok := c.cache.(cache.Interpolator); ok {
		v, err = ip.InterpolateDCIQ(key)
	} else {
		v, err = c.cache.LookupDCIQ(key)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.notify(op, StageCommit)
	if isTx {
		err = c.commitTx(v)
	} else {
		err = c.apply(
			set(lms7.GCORRI_RXTSP, v.GainI),
			set(lms7.GCORRQ_RXTSP, v.GainQ),
			set(lms7.IQCORR_RXTSP, v.Phase),
			set(lms7.GC_BYP_RXTSP, 0),
			set(lms7.PH_BYP_RXTSP, 0),
		)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Info("Corrections applied", "procedure", op, "freq_hz", key.FreqHz, "tx", isTx,
		"gain_i", v.GainI, "gain_q", v.GainQ, "phase", v.Phase)
	return nil
}

func (c *Calibrator) correctionKey(ch lms7.Channel, isTx bool) (cache.DCIQKey, error) {
	if err := requireSingleChannel("corrections", ch); err != nil {
		return cache.DCIQKey{}, err
	}
	dir := lms7.Rx
	if isTx {
		dir = lms7.Tx
	}
	hz, err := c.frequencySX(dir)
	if err != nil {
		return cache.DCIQKey{}, err
	}
	return cache.DCIQKey{BoardID: c.boardID, FreqHz: hz, Channel: ch.Index(), Tx: isTx}, nil
}

// readIQ collects gain and phase only
func (c *Calibrator) readIQ(f iqFields) (cache.DCIQ, error) {
	var v cache.DCIQ
	var err error
	if v.GainI, err = c.chip.ReadField(f.gainI); err != nil {
		return cache.DCIQ{}, err
	}
	if v.GainQ, err = c.chip.ReadField(f.gainQ); err != nil {
		return cache.DCIQ{}, err
	}
	if v.Phase, err = c.chip.ReadField(f.phase); err != nil {
		return cache.DCIQ{}, err
	}
	return v, nil
}
