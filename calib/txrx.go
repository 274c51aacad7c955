package calib

import (
	"errors"
	"fmt"

	"github.com/linht/lms7cal/cache"
	"github.com/linht/lms7cal/lms7"
)

const (
	cgenStep       = 46.08e6
	rxSXOffset     = 9e6
	testToneOffset = 100e3
	gainTrialStep  = 64
	gainMax        = 2047
	phaseTrial     = 15
	phaseHalf      = 128
)

// iqFields names the gain and phase correction fields of one TSP
type iqFields struct {
	gainI, gainQ, phase lms7.Param
}

var (
	txIQ = iqFields{lms7.GCORRI_TXTSP, lms7.GCORRQ_TXTSP, lms7.IQCORR_TXTSP}
	rxIQ = iqFields{lms7.GCORRI_RXTSP, lms7.GCORRQ_RXTSP, lms7.IQCORR_RXTSP}
)

var txGFIRs = [3]struct{ byp, l, n lms7.Param }{
	{lms7.GFIR1_BYP_TXTSP, lms7.GFIR1_L_TXTSP, lms7.GFIR1_N_TXTSP},
	{lms7.GFIR2_BYP_TXTSP, lms7.GFIR2_L_TXTSP, lms7.GFIR2_N_TXTSP},
	{lms7.GFIR3_BYP_TXTSP, lms7.GFIR3_L_TXTSP, lms7.GFIR3_N_TXTSP},
}

// CalibrateTx corrects the transmit DC offset and IQ imbalance of the active
// channel through the internal TRF to RFE loopback
func (c *Calibrator) CalibrateTx(bandwidthHz float64, useExtLoopback bool) (err error) {
	const op = "tx calibration"
	if useExtLoopback {
		return fmt.Errorf("%s: external loopback: %w", op, ErrUnsupported)
	}
	s, err := c.begin(op)
	if err != nil {
		return err
	}
	defer s.end(&err)

	if err := requireSingleChannel(op, s.channel); err != nil {
		return err
	}
	band1, err := c.chip.ReadField(lms7.SEL_BAND1_TRF)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	band2, err := c.chip.ReadField(lms7.SEL_BAND2_TRF)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if band1 == 0 && band2 == 0 {
		return fmt.Errorf("%s: no TRF band selected: %w", op, ErrUnsupported)
	}
	sxt, err := c.frequencySX(lms7.Tx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	band := 1
	if band1 == 1 {
		band = 0
	}
	key := cache.DCIQKey{BoardID: c.boardID, FreqHz: sxt, Channel: s.channel.Index(), Tx: true, Band: band}
	if v, ok := c.lookupDCIQ(op, key); ok {
		c.notify(op, StageCacheHit)
		return c.commitTx(v)
	}

	if err := s.snapshot(); err != nil {
		return err
	}
	c.notify(op, StageSetup)
	if err := c.setupTx(s.channel, band1 == 1, bandwidthHz); err != nil {
		return fmt.Errorf("%s: setup: %w", op, err)
	}
	result, err := c.searchTx(op, bandwidthHz)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.restore(); err != nil {
		return err
	}

	c.notify(op, StageCommit)
	if err := c.commitTx(result); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	if err := c.chip.LoadDCRegIQ(lms7.Tx, 0x7FFF, 0x8000); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	c.insertDCIQ(op, key, result)
	c.logger.Info("Tx corrections committed", "procedure", op,
		"dc_i", result.DCI, "dc_q", result.DCQ, "gain_i", result.GainI, "gain_q", result.GainQ, "phase", result.Phase)
	return nil
}

// CalibrateRx corrects the receive DC offset and IQ imbalance of the active
// channel, feeding the Tx test signal back through the RFE loopback
func (c *Calibrator) CalibrateRx(bandwidthHz float64, useExtLoopback bool) (err error) {
	const op = "rx calibration"
	if useExtLoopback {
		return fmt.Errorf("%s: external loopback: %w", op, ErrUnsupported)
	}
	s, err := c.begin(op)
	if err != nil {
		return err
	}
	defer s.end(&err)

	if err := requireSingleChannel(op, s.channel); err != nil {
		return err
	}
	path, err := c.chip.ReadField(lms7.SEL_PATH_RFE)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if path != 2 && path != 3 {
		return fmt.Errorf("%s: SEL_PATH_RFE %d is not LNAL or LNAW: %w", op, path, ErrUnsupported)
	}
	sxr, err := c.frequencySX(lms7.Rx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	key := cache.DCIQKey{BoardID: c.boardID, FreqHz: sxr, Channel: s.channel.Index(), Tx: false, Band: path}
	if v, ok := c.lookupDCIQ(op, key); ok {
		c.notify(op, StageCacheHit)
		return c.commitRx(v)
	}

	if err := s.snapshot(); err != nil {
		return err
	}
	c.notify(op, StageSetup)
	if err := c.setupRx(s.channel, path, bandwidthHz); err != nil {
		return fmt.Errorf("%s: setup: %w", op, err)
	}
	result, err := c.searchRx(op, s.channel, path, bandwidthHz)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.restore(); err != nil {
		return err
	}

	c.notify(op, StageCommit)
	if err := c.commitRx(result); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	c.insertDCIQ(op, key, result)
	c.logger.Info("Rx corrections committed", "procedure", op,
		"dc_i", result.DCI, "dc_q", result.DCQ, "gain_i", result.GainI, "gain_q", result.GainQ, "phase", result.Phase)
	return nil
}

func (c *Calibrator) commitTx(v cache.DCIQ) error {
	return c.apply(
		set(lms7.DCCORRI_TXTSP, v.DCI),
		set(lms7.DCCORRQ_TXTSP, v.DCQ),
		set(lms7.GCORRI_TXTSP, v.GainI),
		set(lms7.GCORRQ_TXTSP, v.GainQ),
		set(lms7.IQCORR_TXTSP, v.Phase),
		set(lms7.DC_BYP_TXTSP, 0),
		set(lms7.GC_PH_BYP_TXTSP, 0),
	)
}

func (c *Calibrator) commitRx(v cache.DCIQ) error {
	return c.apply(
		set(lms7.DCOFFI_RFE, v.DCI),
		set(lms7.DCOFFQ_RFE, v.DCQ),
		set(lms7.EN_DCOFF_RXFE_RFE, 1),
		set(lms7.GCORRI_RXTSP, v.GainI),
		set(lms7.GCORRQ_RXTSP, v.GainQ),
		set(lms7.IQCORR_RXTSP, v.Phase),
		set(lms7.DC_GC_PH_BYP_RXTSP, 0),
		set(lms7.ICT_LODC_RFE, 31),
	)
}

// readDCIQ collects the correction fields left by the searches
func (c *Calibrator) readDCIQ(dcI, dcQ lms7.Param, iq iqFields) (cache.DCIQ, error) {
	var v cache.DCIQ
	for _, f := range []struct {
		p   lms7.Param
		dst *int
	}{
		{dcI, &v.DCI}, {dcQ, &v.DCQ}, {iq.gainI, &v.GainI}, {iq.gainQ, &v.GainQ}, {iq.phase, &v.Phase},
	} {
		value, err := c.chip.ReadField(f.p)
		if err != nil {
			return cache.DCIQ{}, err
		}
		*f.dst = value
	}
	return v, nil
}

// setupCGEN reloads the clock generator and retunes it to the nearest
// multiple of 46.08 MHz between 2 and 13, returning the multiplier
func (c *Calibrator) setupCGEN() (int, error) {
	hz, err := c.synth.FrequencyCGEN()
	if err != nil {
		return 0, fmt.Errorf("failed to read CGEN frequency: %w", err)
	}
	multiplier := min(max(int(hz/cgenStep+0.5), 2), 13)
	if err := c.chip.SetDefaults(lms7.BlockCGEN); err != nil {
		return 0, err
	}
	if err := c.chip.WriteField(lms7.PD_VCO_CGEN, 0); err != nil {
		return 0, err
	}
	if err := c.setCGEN(cgenStep * float64(multiplier)); err != nil {
		return 0, err
	}
	return multiplier, nil
}

// shareLO enables the channel A LO and DAC paths that channel B depends on.
// These bits only exist in the channel A bank.
func (c *Calibrator) shareLO(ch lms7.Channel) error {
	if ch != lms7.ChannelB {
		return nil
	}
	return c.onChannel(lms7.ChannelA, ch, func() error {
		return c.apply(
			set(lms7.PD_TX_AFE2, 0),
			set(lms7.EN_NEXTRX_RFE, 1),
			set(lms7.EN_NEXTTX_TRF, 1),
		)
	})
}

// setupTx places the chip in the Tx calibration topology
func (c *Calibrator) setupTx(ch lms7.Channel, band1 bool, bandwidthHz float64) error {
	// RFE listens on the loopback matching the selected TRF band
	if err := c.chip.SetDefaults(lms7.BlockRFE); err != nil {
		return err
	}
	path, lb1, lb2 := 2, 1, 0
	if band1 {
		path, lb1, lb2 = 3, 0, 1
	}
	if err := c.apply(
		set(lms7.SEL_PATH_RFE, path),
		set(lms7.G_RXLOOPB_RFE, 7),
		set(lms7.PD_MXLOBUF_QGEN_RFE, 0),
		set(lms7.CCOMP_TIA_RFE, 4),
		set(lms7.CFB_TIA_RFE, 50),
		set(lms7.ICT_LODC_RFE, 31),
		set(lms7.PD_RLOOPB_1_RFE, lb1),
		set(lms7.PD_RLOOPB_2_RFE, lb2),
		set(lms7.EN_INSHSW_LB1_RFE, lb1),
		set(lms7.EN_INSHSW_LB2_RFE, lb2),
		set(lms7.EN_DCOFF_RXFE_RFE, 1),
	); err != nil {
		return err
	}

	// RBB
	if err := c.chip.SetDefaults(lms7.BlockRBB); err != nil {
		return err
	}
	if err := c.apply(
		set(lms7.PD_LPFL_RBB, 1),
		set(lms7.G_PGA_RBB, 0),
		set(lms7.INPUT_CTL_PGA_RBB, 2),
		set(lms7.ICT_PGA_OUT_RBB, 12),
		set(lms7.ICT_PGA_IN_RBB, 12),
		set(lms7.L_LOOPB_TXPAD_TRF, 0),
		set(lms7.EN_LOOPB_TXPAD_TRF, 1),
		set(lms7.PD_RX_AFE2, 0),
	); err != nil {
		return err
	}
	if err := c.setDefaultsKeeping(lms7.BlockBIAS, lms7.RP_CALIB_BIAS); err != nil {
		return err
	}
	if err := c.chip.WriteField(lms7.PD_XBUF_ALL, 1); err != nil {
		return err
	}
	multiplier, err := c.setupCGEN()
	if err != nil {
		return err
	}

	// SXR sits below SXT so the image lands away from the tone
	if err := c.chip.SetActiveChannel(lms7.ChannelSXR); err != nil {
		return err
	}
	if err := c.chip.SetDefaults(lms7.BlockSX); err != nil {
		return err
	}
	if err := c.apply(set(lms7.PD_VCO, 0), set(lms7.ICT_VCO, 200)); err != nil {
		return err
	}
	sxt, err := c.frequencySX(lms7.Tx)
	if err != nil {
		return err
	}
	if err := c.setSX(lms7.Rx, sxt-bandwidthHz/bwDivider-calibrationSXOffset); err != nil {
		return err
	}
	if err := c.synth.TuneVCO(VCOSXR); err != nil {
		return fmt.Errorf("failed to tune %v: %w", VCOSXR, err)
	}
	if err := c.onChannel(lms7.ChannelSXT, ch, func() error {
		return c.chip.WriteField(lms7.PD_LOCH_T2RBUF, 1)
	}); err != nil {
		return err
	}

	if err := c.setupTxTSP(bandwidthHz); err != nil {
		return err
	}

	// RxTSP
	if err := c.setDefaults(lms7.BlockRxTSP, lms7.BlockRxNCO); err != nil {
		return err
	}
	if err := c.apply(
		set(lms7.GFIR2_BYP_RXTSP, 1),
		set(lms7.GFIR1_BYP_RXTSP, 1),
		set(lms7.HBD_OVR_RXTSP, 4),
		set(lms7.AGC_MODE_RXTSP, 1),
		set(lms7.CMIX_BYP_RXTSP, 1),
		set(lms7.CMIX_GAIN_RXTSP, 1),
		set(lms7.AGC_AVG_RXTSP, 1),
	); err != nil {
		return err
	}
	if err := c.loadCalibrationFIR(multiplier); err != nil {
		return err
	}
	return c.shareLO(ch)
}

// setupTxTSP reloads the TxTSP for the DC test signal. GFIRs the user has
// loaded (not bypassed, with non-zero leading taps) stay in the path.
func (c *Calibrator) setupTxTSP(bandwidthHz float64) error {
	var keep []fieldValue
	for i, g := range txGFIRs {
		byp, err := c.chip.ReadField(g.byp)
		if err != nil {
			return err
		}
		if byp != 0 {
			continue
		}
		coefs, err := c.chip.GFIRCoefficients(lms7.Tx, i+1, 5)
		if err != nil {
			return err
		}
		active := false
		for _, v := range coefs {
			if v != 0 {
				active = true
				break
			}
		}
		if !active {
			continue
		}
		l, err := c.chip.ReadField(g.l)
		if err != nil {
			return err
		}
		n, err := c.chip.ReadField(g.n)
		if err != nil {
			return err
		}
		keep = append(keep, set(g.byp, 0), set(g.l, l), set(g.n, n))
	}

	if err := c.setDefaults(lms7.BlockTxTSP, lms7.BlockTxNCO); err != nil {
		return err
	}
	if err := c.apply(keep...); err != nil {
		return err
	}
	if err := c.apply(set(lms7.TSGMODE_TXTSP, 1), set(lms7.INSEL_TXTSP, 1)); err != nil {
		return err
	}
	if len(keep) == 0 {
		if err := c.chip.WriteField(lms7.GFIR_BYP_ALL_TXTSP, 7); err != nil {
			return err
		}
	}
	if err := c.chip.LoadDCRegIQ(lms7.Tx, 0x7FFF, 0x8000); err != nil {
		return err
	}
	return c.setNCO(lms7.Tx, bandwidthHz/bwDivider)
}

// setupRx places the chip in the Rx calibration topology
func (c *Calibrator) setupRx(ch lms7.Channel, path int, bandwidthHz float64) error {
	if err := c.apply(
		set(lms7.EN_DCOFF_RXFE_RFE, 1),
		set(lms7.G_RXLOOPB_RFE, 3),
		set(lms7.PD_MXLOBUF_QGEN_RFE, 0),
		set(lms7.PD_TIA_RFE, 0),
		set(lms7.ICT_LODC_RFE, 31),
		set(lms7.EN_LB_RBB, 0),
		set(lms7.OSW_PGA_RBB, 0),
	); err != nil {
		return err
	}

	// TRF drives the loopback matching the LNA path
	if err := c.chip.SetDefaults(lms7.BlockTRF); err != nil {
		return err
	}
	band1, band2 := 0, 1
	if path == 3 {
		band1, band2 = 1, 0
	}
	if err := c.apply(
		set(lms7.L_LOOPB_TXPAD_TRF, 0),
		set(lms7.EN_LOOPB_TXPAD_TRF, 1),
		set(lms7.EN_G_TRF, 0),
		set(lms7.SEL_BAND2_TRF, band2),
		set(lms7.SEL_BAND1_TRF, band1),
	); err != nil {
		return err
	}

	// TBB
	if err := c.chip.SetDefaults(lms7.BlockTBB); err != nil {
		return err
	}
	if err := c.apply(
		set(lms7.CG_IAMP_TBB, 1),
		set(lms7.ICT_IAMP_FRP_TBB, 1),
		set(lms7.ICT_IAMP_GG_FRP_TBB, 6),
		set(lms7.PD_RX_AFE2, 0),
	); err != nil {
		return err
	}
	if err := c.setDefaultsKeeping(lms7.BlockBIAS, lms7.RP_CALIB_BIAS); err != nil {
		return err
	}
	if err := c.chip.WriteField(lms7.PD_XBUF_ALL, 1); err != nil {
		return err
	}
	multiplier, err := c.setupCGEN()
	if err != nil {
		return err
	}
	if err := c.setupRxSX(ch, bandwidthHz); err != nil {
		return err
	}

	// TxTSP generates a full-scale tone at 9 MHz
	if err := c.setDefaults(lms7.BlockTxTSP, lms7.BlockTxNCO); err != nil {
		return err
	}
	if err := c.apply(
		set(lms7.TSGFCW_TXTSP, 1),
		set(lms7.TSGMODE_TXTSP, 1),
		set(lms7.INSEL_TXTSP, 1),
		set(lms7.GFIR_BYP_ALL_TXTSP, 7),
		set(lms7.CMIX_GAIN_TXTSP, 0),
		set(lms7.CMIX_SC_TXTSP, 1),
	); err != nil {
		return err
	}
	if err := c.chip.LoadDCRegIQ(lms7.Tx, 0x7FFF, 0x8000); err != nil {
		return err
	}
	if err := c.setNCO(lms7.Tx, rxSXOffset); err != nil {
		return err
	}

	// RxTSP
	if err := c.setDefaults(lms7.BlockRxTSP, lms7.BlockRxNCO); err != nil {
		return err
	}
	if err := c.apply(
		set(lms7.GFIR2_BYP_RXTSP, 1),
		set(lms7.GFIR1_BYP_RXTSP, 1),
		set(lms7.HBD_OVR_RXTSP, 4),
		set(lms7.AGC_MODE_RXTSP, 1),
		set(lms7.CMIX_BYP_RXTSP, 1),
		set(lms7.CAPSEL, 0),
		set(lms7.AGC_AVG_RXTSP, 1),
		set(lms7.CMIX_GAIN_RXTSP, 0),
	); err != nil {
		return err
	}
	if err := c.loadCalibrationFIR(multiplier); err != nil {
		return err
	}
	if err := c.setNCO(lms7.Rx, bandwidthHz/bwDivider-0.1e6); err != nil {
		return err
	}
	return c.shareLO(ch)
}

// setupRxSX offsets SXT above SXR by bandwidth/5 + 9 MHz. In TDD mode SXT
// also feeds the receiver (PD_LOCH_T2RBUF = 0), so SXR is programmed below
// it and kept powered down until the loopback is enabled.
func (c *Calibrator) setupRxSX(ch lms7.Channel, bandwidthHz float64) error {
	if err := c.chip.SetActiveChannel(lms7.ChannelSXT); err != nil {
		return err
	}
	t2r, err := c.chip.ReadField(lms7.PD_LOCH_T2RBUF)
	if err != nil {
		return err
	}
	offset := bandwidthHz/bwDivider + rxSXOffset
	if t2r == 0 {
		c.logger.Debug("TDD mode, SXT shared with the receiver")
		if err := c.chip.SetActiveChannel(lms7.ChannelSXR); err != nil {
			return err
		}
		if err := c.chip.SetDefaults(lms7.BlockSX); err != nil {
			return err
		}
		sxt, err := c.frequencySX(lms7.Tx)
		if err != nil {
			return err
		}
		if err := c.setSX(lms7.Rx, sxt-offset); err != nil {
			return err
		}
		if err := c.chip.WriteField(lms7.PD_VCO, 1); err != nil {
			return err
		}
	} else {
		sxr, err := c.frequencySX(lms7.Rx)
		if err != nil {
			return err
		}
		if err := c.chip.SetDefaults(lms7.BlockSX); err != nil {
			return err
		}
		if err := c.chip.WriteField(lms7.PD_VCO, 0); err != nil {
			return err
		}
		if err := c.setSX(lms7.Tx, sxr+offset); err != nil {
			return err
		}
	}
	return c.chip.SetActiveChannel(ch)
}

// searchTx runs the Tx measurement stages and returns the corrections found
func (c *Calibrator) searchTx(op string, bandwidthHz float64) (cache.DCIQ, error) {
	c.notify(op, StageConditioning)
	if err := c.checkSaturationTxRx(bandwidthHz); err != nil {
		return cache.DCIQ{}, err
	}

	c.notify(op, StageSearch)
	if err := c.chip.WriteField(lms7.EN_G_TRF, 0); err != nil {
		return cache.DCIQ{}, err
	}
	if err := c.calibrateRxDC(); err != nil {
		return cache.DCIQ{}, err
	}
	if err := c.calibrateTxDC(bandwidthHz); err != nil {
		return cache.DCIQ{}, err
	}

	if err := c.apply(set(lms7.EN_G_TRF, 1), set(lms7.CMIX_BYP_TXTSP, 0)); err != nil {
		return cache.DCIQ{}, err
	}
	if err := c.setNCO(lms7.Rx, calibrationSXOffset-0.1e6); err != nil {
		return cache.DCIQ{}, err
	}
	if err := c.searchIQ(txIQ, false); err != nil {
		return cache.DCIQ{}, err
	}
	return c.readDCIQ(lms7.DCCORRI_TXTSP, lms7.DCCORRQ_TXTSP, txIQ)
}

// searchRx runs the Rx measurement stages and returns the corrections found
func (c *Calibrator) searchRx(op string, ch lms7.Channel, path int, bandwidthHz float64) (cache.DCIQ, error) {
	c.notify(op, StageSearch)
	if err := c.calibrateRxDC(); err != nil {
		return cache.DCIQ{}, err
	}

	// close the loopback for the LNA path in use
	loopback := []fieldValue{set(lms7.PD_RLOOPB_2_RFE, 0), set(lms7.EN_INSHSW_LB2_RFE, 0)}
	if path == 3 {
		loopback = []fieldValue{set(lms7.PD_RLOOPB_1_RFE, 0), set(lms7.EN_INSHSW_LB1_RFE, 0)}
	}
	if err := c.apply(set(lms7.EN_G_TRF, 1)); err != nil {
		return cache.DCIQ{}, err
	}
	if err := c.apply(loopback...); err != nil {
		return cache.DCIQ{}, err
	}
	if err := c.apply(set(lms7.DC_BYP_RXTSP, 0)); err != nil {
		return cache.DCIQ{}, err
	}
	if err := c.releaseTDD(ch); err != nil {
		return cache.DCIQ{}, err
	}

	c.notify(op, StageConditioning)
	if err := c.checkSaturationRx(bandwidthHz); err != nil {
		return cache.DCIQ{}, err
	}

	c.notify(op, StageSearch)
	if err := c.apply(set(lms7.CMIX_SC_RXTSP, 1), set(lms7.CMIX_BYP_RXTSP, 0)); err != nil {
		return cache.DCIQ{}, err
	}
	if err := c.setNCO(lms7.Rx, bandwidthHz/bwDivider+0.1e6); err != nil {
		return cache.DCIQ{}, err
	}
	if err := c.searchIQ(rxIQ, true); err != nil {
		return cache.DCIQ{}, err
	}
	return c.readDCIQ(lms7.DCOFFI_RFE, lms7.DCOFFQ_RFE, rxIQ)
}

// releaseTDD gives the receiver its own LO when SXT was shared
func (c *Calibrator) releaseTDD(ch lms7.Channel) error {
	if err := c.chip.SetActiveChannel(lms7.ChannelSXT); err != nil {
		return err
	}
	t2r, err := c.chip.ReadField(lms7.PD_LOCH_T2RBUF)
	if err != nil {
		return err
	}
	if t2r == 0 {
		if err := c.chip.WriteField(lms7.PD_LOCH_T2RBUF, 1); err != nil {
			return err
		}
		if err := c.chip.SetActiveChannel(lms7.ChannelSXR); err != nil {
			return err
		}
		if err := c.chip.WriteField(lms7.PD_VCO, 0); err != nil {
			return err
		}
	}
	return c.chip.SetActiveChannel(ch)
}

// searchIQ finds the gain and phase corrections. The weaker branch is picked
// by stepping each gain 64 codes down, then gain and phase are refined
// alternately before a joint 7x7 grid. The first phase pass covers only the
// half range chosen by phaseStart.
func (c *Calibrator) searchIQ(f iqFields, refinePhase bool) error {
	if err := c.apply(set(f.gainI, gainMax-gainTrialStep), set(f.gainQ, gainMax)); err != nil {
		return err
	}
	rssiI, err := c.rssi()
	if err != nil {
		return err
	}
	if err := c.apply(set(f.gainI, gainMax), set(f.gainQ, gainMax-gainTrialStep)); err != nil {
		return err
	}
	rssiQ, err := c.rssi()
	if err != nil {
		return err
	}
	if err := c.apply(set(f.gainI, gainMax), set(f.gainQ, gainMax)); err != nil {
		return err
	}
	gainField := f.gainQ
	if rssiI < rssiQ {
		gainField = f.gainI
	}
	c.logger.Debug("Gain branch selected", "field", gainField.Name, "rssi_i", rssiI, "rssi_q", rssiQ)

	gain, err := CoarseSearch(c.chip, c.meter, gainField, gainMax, 7)
	if err != nil {
		return err
	}
	start, err := c.phaseStart(f.phase)
	if err != nil {
		return err
	}
	phase, err := CoarseSearch(c.chip, c.meter, f.phase, start, 7)
	if err != nil {
		return err
	}
	if gain, err = CoarseSearch(c.chip, c.meter, gainField, gain, 4); err != nil {
		return err
	}
	if refinePhase {
		if phase, err = CoarseSearch(c.chip, c.meter, f.phase, phase, 4); err != nil {
			return err
		}
	}
	gain, phase, err = FineSearch(c.chip, c.meter, gainField, gain, f.phase, phase, 7)
	if err != nil {
		return err
	}
	c.logger.Debug("IQ search done", "field", gainField.Name, "gain", gain, "phase", phase)
	return nil
}

// phaseStart compares readings at +15 and -15 and returns the centre of the
// half range on the weaker side, or 0 when both read the same. The centre is
// left programmed.
func (c *Calibrator) phaseStart(p lms7.Param) (int, error) {
	if err := c.chip.WriteField(p, phaseTrial); err != nil {
		return 0, err
	}
	up, err := c.rssi()
	if err != nil {
		return 0, err
	}
	if err := c.chip.WriteField(p, -phaseTrial); err != nil {
		return 0, err
	}
	down, err := c.rssi()
	if err != nil {
		return 0, err
	}
	start := 0
	switch {
	case up > down:
		start = -phaseHalf
	case up < down:
		start = phaseHalf
	}
	c.logger.Debug("Phase side selected", "field", p.Name, "start", start, "rssi_up", up, "rssi_down", down)
	return start, c.chip.WriteField(p, start)
}

// searchDC runs two coarse passes per axis and a joint grid
func (c *Calibrator) searchDC(pI, pQ lms7.Param, first, second, grid int) error {
	if err := c.apply(set(pI, 0), set(pQ, 0)); err != nil {
		return err
	}
	i, err := CoarseSearch(c.chip, c.meter, pI, 0, first)
	if err != nil {
		return err
	}
	q, err := CoarseSearch(c.chip, c.meter, pQ, 0, first)
	if err != nil {
		return err
	}
	if i, err = CoarseSearch(c.chip, c.meter, pI, i, second); err != nil {
		return err
	}
	if q, err = CoarseSearch(c.chip, c.meter, pQ, q, second); err != nil {
		return err
	}
	i, q, err = FineSearch(c.chip, c.meter, pI, i, pQ, q, grid)
	if err != nil {
		return err
	}
	c.logger.Debug("DC search done", "field_i", pI.Name, "i", i, "field_q", pQ.Name, "q", q)
	return nil
}

// calibrateRxDC nulls the RFE DC offset with the TSP DC corrector bypassed
func (c *Calibrator) calibrateRxDC() error {
	c.selectTone(0)
	defer c.selectTone(testToneOffset)
	if err := c.apply(set(lms7.DC_BYP_RXTSP, 1), set(lms7.CAPSEL, 0)); err != nil {
		return err
	}
	if err := c.searchDC(lms7.DCOFFI_RFE, lms7.DCOFFQ_RFE, 6, 3, 5); err != nil {
		return fmt.Errorf("rx dc: %w", err)
	}
	return c.chip.WriteField(lms7.DC_BYP_RXTSP, 0)
}

// calibrateTxDC nulls the LO leakage seen at SXT - SXR
func (c *Calibrator) calibrateTxDC(bandwidthHz float64) error {
	if err := c.apply(
		set(lms7.EN_G_TRF, 1),
		set(lms7.CMIX_BYP_TXTSP, 0),
		set(lms7.CMIX_BYP_RXTSP, 0),
	); err != nil {
		return err
	}
	if err := c.setNCO(lms7.Rx, calibrationSXOffset-0.1e6+bandwidthHz/bwDivider); err != nil {
		return err
	}
	if err := c.searchDC(lms7.DCCORRI_TXTSP, lms7.DCCORRQ_TXTSP, 7, 4, 7); err != nil {
		return fmt.Errorf("tx dc: %w", err)
	}
	return nil
}

// lookupDCIQ consults the cache; lookup failures other than a miss are logged
// and treated as a miss
func (c *Calibrator) lookupDCIQ(op string, key cache.DCIQKey) (cache.DCIQ, bool) {
	if c.cache == nil {
		return cache.DCIQ{}, false
	}
	v, err := c.cache.LookupDCIQ(key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			c.logger.Warn("Cache lookup failed", "procedure", op, "error", err)
		}
		return cache.DCIQ{}, false
	}
	c.logger.Info("Using cached corrections", "procedure", op, "freq_hz", key.FreqHz, "channel", key.Channel)
	return v, true
}

func (c *Calibrator) insertDCIQ(op string, key cache.DCIQKey, v cache.DCIQ) {
	if c.cache == nil {
		return
	}
	if err := c.cache.InsertDCIQ(key, v); err != nil {
		c.logger.Warn("Failed to cache corrections", "procedure", op, "error", err)
	}
}
