package calib

import (
	"fmt"

	"github.com/linht/lms7cal/lms7"
)

// RSSI levels used by gain conditioning
const (
	rssiTarget       = 0x0B000 // about -3 dBFS
	rssiFloor        = 0x01000
	rssiCeiling      = 0x30000 // digital clipping starts above this
	filterGainTarget = 0x8400
)

// calibrationSXOffset separates SXT and SXR during Tx calibration
const calibrationSXOffset = 4e6

// bwDivider places the test tone at bandwidth/5
const bwDivider = 5

// raiseGain steps p up by step while the reading stays below target and the
// field is below limit. A step that lands above rssiCeiling is walked back
// once. rssi is the reading at the current setting.
func (c *Calibrator) raiseGain(p lms7.Param, step, limit int, target, rssi uint32) (uint32, error) {
	v, err := c.chip.ReadField(p)
	if err != nil {
		return 0, err
	}
	for rssi < target && v < limit {
		next := min(v+step, p.Max())
		reading, err := measureAt(c.chip, c.meter, p, next)
		if err != nil {
			return 0, err
		}
		if reading > rssiCeiling {
			c.logger.Debug("Gain overshoot", "field", p.Name, "value", next, "rssi", reading)
			if reading, err = measureAt(c.chip, c.meter, p, v); err != nil {
				return 0, err
			}
			return reading, nil
		}
		v, rssi = next, reading
	}
	c.logger.Debug("Gain conditioned", "field", p.Name, "value", v, "rssi", rssi)
	return rssi, nil
}

// checkSaturationRx raises the loopback and IAMP gains for Rx calibration
func (c *Calibrator) checkSaturationRx(bandwidthHz float64) error {
	if err := c.apply(set(lms7.CMIX_SC_RXTSP, 0), set(lms7.CMIX_BYP_RXTSP, 0)); err != nil {
		return err
	}
	if err := c.setNCO(lms7.Rx, bandwidthHz/bwDivider-0.1e6); err != nil {
		return err
	}
	rssi, err := c.rssi()
	if err != nil {
		return err
	}
	if rssi, err = c.raiseGain(lms7.G_RXLOOPB_RFE, 2, 15, rssiTarget, rssi); err != nil {
		return fmt.Errorf("rx saturation check: %w", err)
	}
	if rssi, err = c.raiseGain(lms7.CG_IAMP_TBB, 4, 63-6, rssiFloor, rssi); err != nil {
		return fmt.Errorf("rx saturation check: %w", err)
	}
	if _, err = c.raiseGain(lms7.CG_IAMP_TBB, 2, 62, rssiTarget, rssi); err != nil {
		return fmt.Errorf("rx saturation check: %w", err)
	}
	return nil
}

// checkSaturationTxRx raises the Rx loopback gain, then the PGA, for Tx calibration
func (c *Calibrator) checkSaturationTxRx(bandwidthHz float64) error {
	if err := c.apply(set(lms7.DC_BYP_RXTSP, 0), set(lms7.CMIX_BYP_RXTSP, 0)); err != nil {
		return err
	}
	if err := c.setNCO(lms7.Rx, calibrationSXOffset-0.1e6+2*bandwidthHz/bwDivider); err != nil {
		return err
	}
	rssi, err := c.rssi()
	if err != nil {
		return err
	}
	if rssi, err = c.raiseGain(lms7.G_RXLOOPB_RFE, 1, 15, rssiTarget, rssi); err != nil {
		return fmt.Errorf("tx saturation check: %w", err)
	}
	loopback, err := c.chip.ReadField(lms7.G_RXLOOPB_RFE)
	if err != nil {
		return err
	}
	if loopback == 15 {
		if _, err = c.raiseGain(lms7.G_PGA_RBB, 1, 18, rssiTarget, rssi); err != nil {
			return fmt.Errorf("tx saturation check: %w", err)
		}
	}
	return c.apply(set(lms7.CMIX_BYP_RXTSP, 1), set(lms7.DC_BYP_RXTSP, 1))
}

// adjustFilterGains sweeps the IAMP gain at rising PGA gains until the test
// tone reaches filterGainTarget. Falling short is not an error here; the
// crossing search that follows fails if the level is unusable.
func (c *Calibrator) adjustFilterGains() error {
	pga, err := c.chip.ReadField(lms7.G_PGA_RBB)
	if err != nil {
		return err
	}
	var rssi uint32
	for pga < 31 {
		for cg := 0; cg < 63 && rssi < filterGainTarget; cg++ {
			if rssi, err = measureAt(c.chip, c.meter, lms7.CG_IAMP_TBB, cg); err != nil {
				return fmt.Errorf("filter gain adjust: %w", err)
			}
			if rssi > filterGainTarget {
				c.logger.Debug("Filter gain set", "cg_iamp", cg, "g_pga", pga, "rssi", rssi)
				return nil
			}
		}
		pga = min(pga+6, 31)
		if err := c.chip.WriteField(lms7.G_PGA_RBB, pga); err != nil {
			return err
		}
	}
	c.logger.Debug("Filter gain target not reached", "rssi", rssi)
	return nil
}
