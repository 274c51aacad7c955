package calib

import (
	"fmt"
	"strings"

	"github.com/linht/lms7cal/cache"
	"github.com/linht/lms7cal/lms7"
)

// RxFilter selects a receive baseband filter
type RxFilter int

const (
	RxTIA RxFilter = iota
	RxLPFLow
	RxLPFHigh
)

func (f RxFilter) String() string {
	switch f {
	case RxTIA:
		return "tia"
	case RxLPFLow:
		return "lpf low"
	case RxLPFHigh:
		return "lpf high"
	}
	return fmt.Sprintf("RxFilter(%d)", int(f))
}

// ParseRxFilter finds an Rx filter by its String name, with '-' or '_' for the space
func ParseRxFilter(name string) (RxFilter, error) {
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	for f := RxTIA; f <= RxLPFHigh; f++ {
		if f.String() == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown Rx filter %q: %w", name, ErrUnsupported)
}

// Synthesizer plan of the Rx filter loopback: the Tx LO leaks into the
// receiver as a tone at SXT - SXR
const (
	rxFilterSXR = 499.95e6
	rxFilterSXT = 500e6
)

var rxFilterRanges = map[RxFilter][2]float64{
	RxTIA:     {0.5e6, 60e6},
	RxLPFLow:  {1e6, 20e6},
	RxLPFHigh: {20e6, 70e6},
}

// tiaHighGainMin is the lowest TIA bandwidth reachable with G_TIA_RFE = 1
const tiaHighGainMin = 1.5e6

func checkRxRange(op string, kind RxFilter, hz float64) error {
	r, ok := rxFilterRanges[kind]
	if !ok {
		return fmt.Errorf("%s: unknown filter %v: %w", op, kind, ErrUnsupported)
	}
	if hz < r[0] || hz > r[1] {
		return &RangeError{Op: op, Value: hz, Min: r[0], Max: r[1]}
	}
	return nil
}

// rxSeed is the starting point of an Rx filter search. The search moves
// param; a larger value gives a lower cutoff.
type rxSeed struct {
	param lms7.Param
	value int
	setup []fieldValue
}

// tiaCompensation derives the TIA compensation network from the feedback capacitor
func tiaCompensation(cfb, gTIA int) (ccomp, rcomp int) {
	ccomp = cfb / 100
	if gTIA == 1 {
		ccomp++
	}
	ccomp = min(ccomp, 15)
	rcomp = max(15-cfb*2/100, 0)
	return ccomp, rcomp
}

func tiaSeed(hz float64, gTIA int) rxSeed {
	var cfb int
	if gTIA == 1 {
		cfb = int(5400e6/hz - 15)
	} else {
		cfb = int(1680e6/hz - 10)
	}
	cfb = lms7.CFB_TIA_RFE.Clamp(cfb)
	ccomp, rcomp := tiaCompensation(cfb, gTIA)
	return rxSeed{
		param: lms7.CFB_TIA_RFE,
		value: cfb,
		setup: []fieldValue{
			set(lms7.CFB_TIA_RFE, cfb),
			set(lms7.CCOMP_TIA_RFE, ccomp),
			set(lms7.RCOMP_TIA_RFE, rcomp),
			set(lms7.INPUT_CTL_PGA_RBB, 2),
			set(lms7.PD_LPFL_RBB, 1),
		},
	}
}

// lpfLowRCC picks the LPFL resistor bank for the bandwidth
func lpfLowRCC(hz float64) int {
	switch {
	case hz >= 15e6:
		return 5
	case hz >= 10e6:
		return 4
	case hz >= 5e6:
		return 3
	case hz >= 3e6:
		return 2
	case hz >= 1.4e6:
		return 1
	}
	return 0
}

func lpfLowSeed(hz float64) rxSeed {
	cctl := lms7.C_CTL_LPFL_RBB.Clamp(int(2160e6/hz - 103))
	return rxSeed{
		param: lms7.C_CTL_LPFL_RBB,
		value: cctl,
		setup: []fieldValue{
			set(lms7.CFB_TIA_RFE, 15),
			set(lms7.CCOMP_TIA_RFE, 1),
			set(lms7.RCOMP_TIA_RFE, 15),
			set(lms7.G_TIA_RFE, 1),
			set(lms7.C_CTL_LPFL_RBB, cctl),
			set(lms7.RCC_CTL_LPFL_RBB, lpfLowRCC(hz)),
			set(lms7.INPUT_CTL_PGA_RBB, 0),
			set(lms7.PD_LPFL_RBB, 0),
		},
	}
}

func lpfHighSeed(hz float64) rxSeed {
	cctl := lms7.C_CTL_LPFH_RBB.Clamp(int(6000e6/hz - 50))
	rcc := lms7.RCC_CTL_LPFH_RBB.Clamp(int(hz/10e6 - 3))
	return rxSeed{
		param: lms7.C_CTL_LPFH_RBB,
		value: cctl,
		setup: []fieldValue{
			set(lms7.CFB_TIA_RFE, 15),
			set(lms7.CCOMP_TIA_RFE, 1),
			set(lms7.RCOMP_TIA_RFE, 15),
			set(lms7.G_TIA_RFE, 1),
			set(lms7.C_CTL_LPFH_RBB, cctl),
			set(lms7.RCC_CTL_LPFH_RBB, rcc),
			set(lms7.INPUT_CTL_PGA_RBB, 1),
			set(lms7.PD_LPFL_RBB, 1),
			set(lms7.PD_LPFH_RBB, 0),
		},
	}
}

// TuneRxFilter calibrates the TIA or one RBB low-pass filter to bandwidthHz
// on the active channel
func (c *Calibrator) TuneRxFilter(kind RxFilter, bandwidthHz float64) (err error) {
	op := "rx filter " + kind.String()
	if err := checkRxRange(op, kind, bandwidthHz); err != nil {
		return err
	}
	s, err := c.begin(op)
	if err != nil {
		return err
	}
	defer s.end(&err)

	if err := requireSingleChannel(op, s.channel); err != nil {
		return err
	}
	gTIA, err := c.chip.ReadField(lms7.G_TIA_RFE)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if kind == RxTIA {
		if gTIA == 0 {
			return fmt.Errorf("%s: G_TIA_RFE 0: %w", op, ErrUnsupported)
		}
		if gTIA == 1 && bandwidthHz < tiaHighGainMin {
			return &RangeError{Op: op, Value: bandwidthHz, Min: tiaHighGainMin, Max: rxFilterRanges[RxTIA][1]}
		}
	}
	key := cache.FilterKey{BoardID: c.boardID, FreqHz: bandwidthHz, Channel: s.channel.Index(), Tx: false, Filter: int(kind)}
	if rc, ok := c.lookupFilterRC(op, key); ok {
		c.notify(op, StageCacheHit)
		return c.commitRxFilter(kind, rc)
	}

	if err := s.snapshotMap(); err != nil {
		return err
	}
	c.notify(op, StageSetup)
	if err := c.setupRxFilter(s.channel, gTIA); err != nil {
		return fmt.Errorf("%s: setup: %w", op, err)
	}
	var seed rxSeed
	switch kind {
	case RxTIA:
		seed = tiaSeed(bandwidthHz, gTIA)
	case RxLPFLow:
		seed = lpfLowSeed(bandwidthHz)
	case RxLPFHigh:
		seed = lpfHighSeed(bandwidthHz)
	}
	if err := c.apply(seed.setup...); err != nil {
		return fmt.Errorf("%s: setup: %w", op, err)
	}
	if err := c.setCGEN(filterCGEN(bandwidthHz)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("Filter seeded", "procedure", op, "field", seed.param.Name, "value", seed.value)

	c.notify(op, StageConditioning)
	if err := c.adjustFilterGains(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	c.notify(op, StageSearch)
	value, err := c.searchRxFilter(seed, bandwidthHz)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rc, err := c.readRxFilter(kind, seed.param, value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.restore(); err != nil {
		return err
	}

	c.notify(op, StageCommit)
	if err := c.commitRxFilter(kind, rc); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	c.insertFilterRC(op, key, rc)
	c.logger.Info("Rx filter tuned", "procedure", op, "bandwidth_hz", bandwidthHz,
		"rcal", rc.RCal, "ccal", rc.CCal, "cfb", rc.CFB)
	return nil
}

// searchRxFilter moves the tone to the cutoff and steps the seed field by one
// until the tone crosses the -3 dB reference, returning the last passing value
func (c *Calibrator) searchRxFilter(seed rxSeed, bandwidthHz float64) (int, error) {
	rssi, err := c.rssi()
	if err != nil {
		return 0, err
	}
	ref := uint32(float64(rssi) * cutoffRatio)

	sxt, err := c.frequencySX(lms7.Tx)
	if err != nil {
		return 0, err
	}
	if err := c.setSX(lms7.Rx, sxt-bandwidthHz); err != nil {
		return 0, err
	}
	sxr, err := c.frequencySX(lms7.Rx)
	if err != nil {
		return 0, err
	}
	if err := c.setNCO(lms7.Rx, sxt-sxr-1e6); err != nil {
		return 0, err
	}

	p, value := seed.param, seed.value
	if rssi, err = c.rssi(); err != nil {
		return 0, err
	}
	prevAbove := rssi > ref
	for value >= p.Min() && value <= p.Max() {
		rssi, err := measureAt(c.chip, c.meter, p, value)
		if err != nil {
			return 0, err
		}
		above := rssi > ref
		c.logger.Debug("Filter step", "field", p.Name, "value", value, "rssi", rssi, "ref", ref)
		switch {
		case above:
			value++
		case prevAbove:
			return value - 1, nil
		default:
			value--
		}
		prevAbove = above
	}
	return 0, fmt.Errorf("%s %d: %w", p.Name, value, ErrNotConverged)
}

// readRxFilter packs the search result with the companion fields written by
// the seed. The TIA compensation stays at the seeded values, it is not derived
// again from the searched CFB.
func (c *Calibrator) readRxFilter(kind RxFilter, p lms7.Param, value int) (cache.FilterRC, error) {
	switch kind {
	case RxTIA:
		ccomp, err := c.chip.ReadField(lms7.CCOMP_TIA_RFE)
		if err != nil {
			return cache.FilterRC{}, err
		}
		rcomp, err := c.chip.ReadField(lms7.RCOMP_TIA_RFE)
		if err != nil {
			return cache.FilterRC{}, err
		}
		return cache.FilterRC{RCal: rcomp, CCal: ccomp, CFB: value}, nil
	case RxLPFLow:
		rcc, err := c.chip.ReadField(lms7.RCC_CTL_LPFL_RBB)
		if err != nil {
			return cache.FilterRC{}, err
		}
		return cache.FilterRC{RCal: rcc, CCal: value}, nil
	case RxLPFHigh:
		rcc, err := c.chip.ReadField(lms7.RCC_CTL_LPFH_RBB)
		if err != nil {
			return cache.FilterRC{}, err
		}
		return cache.FilterRC{RCal: rcc, CCal: value}, nil
	}
	return cache.FilterRC{}, fmt.Errorf("unknown filter %v on %s: %w", kind, p.Name, ErrUnsupported)
}

func (c *Calibrator) commitRxFilter(kind RxFilter, rc cache.FilterRC) error {
	switch kind {
	case RxTIA:
		return c.apply(
			set(lms7.ICT_TIAMAIN_RFE, 2),
			set(lms7.ICT_TIAOUT_RFE, 2),
			set(lms7.RFB_TIA_RFE, 16),
			set(lms7.CFB_TIA_RFE, rc.CFB),
			set(lms7.CCOMP_TIA_RFE, rc.CCal),
			set(lms7.RCOMP_TIA_RFE, rc.RCal),
			set(lms7.PD_TIA_EN_G_RFE, 1),
		)
	case RxLPFLow:
		return c.apply(
			set(lms7.RCC_CTL_LPFL_RBB, rc.RCal),
			set(lms7.C_CTL_LPFL_RBB, rc.CCal),
			set(lms7.ICT_PGA_OUT_RBB, 20),
			set(lms7.ICT_PGA_IN_RBB, 20),
			set(lms7.R_CTL_LPF_RBB, 16),
			// LPFL on, LPFH off
			set(lms7.PD_ALL_RBB, 0x9),
			set(lms7.INPUT_CTL_PGA_RBB, 0),
		)
	case RxLPFHigh:
		return c.apply(
			set(lms7.RCC_CTL_LPFH_RBB, rc.RCal),
			set(lms7.C_CTL_LPFH_RBB, rc.CCal),
			set(lms7.ICT_PGA_OUT_RBB, 20),
			set(lms7.ICT_PGA_IN_RBB, 20),
			set(lms7.R_CTL_LPF_RBB, 16),
			// LPFH on, LPFL off
			set(lms7.PD_ALL_RBB, 0x5),
			set(lms7.INPUT_CTL_PGA_RBB, 1),
		)
	}
	return fmt.Errorf("unknown filter %v: %w", kind, ErrUnsupported)
}

// setupRxFilter feeds the Tx LO leakage through the LNAW loopback into the
// receive chain, with the synthesizers 50 kHz apart
func (c *Calibrator) setupRxFilter(ch lms7.Channel, gTIA int) error {
	// RFE
	if err := c.chip.SetDefaults(lms7.BlockRFE); err != nil {
		return err
	}
	if err := c.chip.WriteField(lms7.SEL_PATH_RFE, 2); err != nil {
		return err
	}
	if err := c.onChannel(lms7.ChannelA, ch, func() error {
		return c.chip.WriteField(lms7.EN_NEXTRX_RFE, boolToInt(ch == lms7.ChannelB))
	}); err != nil {
		return err
	}
	if err := c.apply(
		set(lms7.G_RXLOOPB_RFE, 8),
		set(lms7.PD_RLOOPB_2_RFE, 0),
		set(lms7.EN_INSHSW_LB2_RFE, 0),
		set(lms7.PD_MXLOBUF_RFE, 0),
		set(lms7.PD_QGEN_RFE, 0),
		set(lms7.ICT_TIAMAIN_RFE, 2),
		set(lms7.ICT_TIAOUT_RFE, 2),
		set(lms7.RFB_TIA_RFE, 16),
		set(lms7.G_TIA_RFE, gTIA),
	); err != nil {
		return err
	}

	// RBB
	if err := c.chip.SetDefaults(lms7.BlockRBB); err != nil {
		return err
	}
	if err := c.apply(
		set(lms7.ICT_PGA_OUT_RBB, 20),
		set(lms7.ICT_PGA_IN_RBB, 20),
		set(lms7.C_CTL_PGA_RBB, 3),
	); err != nil {
		return err
	}

	// TRF
	if err := c.chip.SetDefaults(lms7.BlockTRF); err != nil {
		return err
	}
	if err := c.apply(
		set(lms7.L_LOOPB_TXPAD_TRF, 0),
		set(lms7.EN_LOOPB_TXPAD_TRF, 1),
		set(lms7.SEL_BAND1_TRF, 0),
		set(lms7.SEL_BAND2_TRF, 1),
	); err != nil {
		return err
	}
	if err := c.onChannel(lms7.ChannelA, ch, func() error {
		return c.chip.WriteField(lms7.EN_NEXTTX_TRF, boolToInt(ch == lms7.ChannelB))
	}); err != nil {
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
	); err != nil {
		return err
	}

	// AFE
	if err := c.chip.SetDefaults(lms7.BlockAFE); err != nil {
		return err
	}
	if ch == lms7.ChannelB {
		if err := c.apply(set(lms7.PD_TX_AFE2, 0), set(lms7.PD_RX_AFE2, 0)); err != nil {
			return err
		}
	}
	if err := c.setDefaultsKeeping(lms7.BlockBIAS, lms7.RP_CALIB_BIAS); err != nil {
		return err
	}
	if err := c.apply(
		set(lms7.PD_XBUF_RX, 0),
		set(lms7.PD_XBUF_TX, 0),
		set(lms7.EN_G_TRF, 1),
	); err != nil {
		return err
	}
	if err := c.chip.SetDefaults(lms7.BlockCGEN); err != nil {
		return err
	}

	// SXR
	if err := c.chip.SetActiveChannel(lms7.ChannelSXR); err != nil {
		return err
	}
	if err := c.chip.SetDefaults(lms7.BlockSX); err != nil {
		return err
	}
	if err := c.setSX(lms7.Rx, rxFilterSXR); err != nil {
		return err
	}
	if err := c.chip.WriteField(lms7.PD_VCO, 0); err != nil {
		return err
	}

	// SXT
	if err := c.chip.SetActiveChannel(lms7.ChannelSXT); err != nil {
		return err
	}
	if err := c.chip.SetDefaults(lms7.BlockSX); err != nil {
		return err
	}
	if err := c.setSX(lms7.Tx, rxFilterSXT); err != nil {
		return err
	}
	if err := c.chip.WriteField(lms7.PD_VCO, 0); err != nil {
		return err
	}
	if err := c.chip.SetActiveChannel(ch); err != nil {
		return err
	}

	// TxTSP
	if err := c.setDefaults(lms7.BlockTxTSP, lms7.BlockTxNCO); err != nil {
		return err
	}
	if err := c.apply(
		set(lms7.TSGMODE_TXTSP, 1),
		set(lms7.INSEL_TXTSP, 1),
		set(lms7.CMIX_BYP_TXTSP, 1),
		set(lms7.GFIR_BYP_ALL_TXTSP, 7),
	); err != nil {
		return err
	}
	if err := c.chip.LoadDCRegIQ(lms7.Tx, 0x7FFF, 0x8000); err != nil {
		return err
	}
	if err := c.setNCO(lms7.Tx, 0); err != nil {
		return err
	}

	// RxTSP
	if err := c.setDefaults(lms7.BlockRxTSP, lms7.BlockRxNCO); err != nil {
		return err
	}
	if err := c.apply(
		set(lms7.AGC_MODE_RXTSP, 1),
		set(lms7.GFIR_BYP_ALL_RXTSP, 7),
		set(lms7.AGC_AVG_RXTSP, 7),
		set(lms7.CMIX_GAIN_RXTSP, 1),
	); err != nil {
		return err
	}
	return c.setNCO(lms7.Rx, rxFilterSXT-rxFilterSXR-1e6)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
