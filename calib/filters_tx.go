package calib

import (
	"errors"
	"fmt"
	"math"

	"github.com/linht/lms7cal/cache"
	"github.com/linht/lms7cal/lms7"
)

// TxFilter selects a TBB low-pass section
type TxFilter int

const (
	TxLadder TxFilter = iota
	TxRealpole
	TxHighband
)

func (f TxFilter) String() string {
	switch f {
	case TxLadder:
		return "ladder"
	case TxRealpole:
		return "realpole"
	case TxHighband:
		return "highband"
	}
	return fmt.Sprintf("TxFilter(%d)", int(f))
}

// ParseTxFilter finds a Tx filter by its String name
func ParseTxFilter(name string) (TxFilter, error) {
	for f := TxLadder; f <= TxHighband; f++ {
		if f.String() == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown Tx filter %q: %w", name, ErrUnsupported)
}

// referenceHz is the passband tone used to measure the reference level
const referenceHz = 50e3

// cutoffRatio is the -3 dB amplitude ratio
const cutoffRatio = 0.707

type txFilterSpec struct {
	min, max float64
	rcal     lms7.Param
	// quartic RCAL seed in cutoff MHz, highest order first
	seed [5]float64
	// LOOPB_TBB, BYPLADDER_TBB, PD_LPFH_TBB, PD_LPFLAD_TBB, PD_LPFS5_TBB
	path [5]int
}

var txFilterSpecs = map[TxFilter]txFilterSpec{
	TxLadder: {
		min: 2e6, max: 16e6,
		rcal: lms7.RCAL_LPFLAD_TBB,
		seed: [5]float64{1.29858903647958e-16, -0.000110746929967704, 0.00277593485991029, 21.0384293169607, -48.4092606238297},
		path: [5]int{2, 0, 1, 0, 1},
	},
	TxRealpole: {
		min: 0.8e6, max: 3.2e6,
		rcal: lms7.RCAL_LPFS5_TBB,
		seed: [5]float64{1.93821841029921e-15, -0.0429694461214244, 0.253501254059498, 88.9545445989649, -48.0847491316861},
		path: [5]int{3, 1, 1, 1, 0},
	},
	TxHighband: {
		min: 28e6, max: 70e6,
		rcal: lms7.RCAL_LPFH_TBB,
		seed: [5]float64{1.10383e-06, -0.0002108, 0.019049487, 1.433174459, -47.69507793},
		path: [5]int{3, 0, 0, 1, 1},
	},
}

func (s txFilterSpec) checkRange(op string, hz float64) error {
	if hz < s.min || hz > s.max {
		return &RangeError{Op: op, Value: hz, Min: s.min, Max: s.max}
	}
	return nil
}

// seedRCAL evaluates the quartic fit at the cutoff
func (s txFilterSpec) seedRCAL(cutoffHz float64) int {
	f := cutoffHz / 1e6
	v := 0.0
	for _, k := range s.seed {
		v = v*f + k
	}
	return s.rcal.Clamp(int(v))
}

func lookupTxFilter(op string, kind TxFilter) (txFilterSpec, error) {
	spec, ok := txFilterSpecs[kind]
	if !ok {
		return txFilterSpec{}, fmt.Errorf("%s: unknown filter %v: %w", op, kind, ErrUnsupported)
	}
	return spec, nil
}

// TuneTxFilter calibrates one TBB filter section to cutoffHz on the active channel
func (c *Calibrator) TuneTxFilter(kind TxFilter, cutoffHz float64) (err error) {
	op := "tx filter " + kind.String()
	spec, err := lookupTxFilter(op, kind)
	if err != nil {
		return err
	}
	if err := spec.checkRange(op, cutoffHz); err != nil {
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
	key := c.txFilterKey(s.channel, kind, cutoffHz)
	if rc, ok := c.lookupFilterRC(op, key); ok {
		c.notify(op, StageCacheHit)
		return c.commitTxFilter(kind, rc)
	}

	if err := s.snapshotMap(); err != nil {
		return err
	}
	rc, err := c.tuneTxFilter(op, s.channel, kind, cutoffHz)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.restore(); err != nil {
		return err
	}

	c.notify(op, StageCommit)
	if err := c.commitTxFilter(kind, rc); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	c.insertFilterRC(op, key, rc)
	c.logger.Info("Tx filter tuned", "procedure", op, "cutoff_hz", cutoffHz, "rcal", rc.RCal, "ccal", rc.CCal)
	return nil
}

// TuneTxFilterLowBandChain tunes the ladder to bandwidthHz and the real pole
// to realpoleHz, then enables both sections in series
func (c *Calibrator) TuneTxFilterLowBandChain(bandwidthHz, realpoleHz float64) (err error) {
	const op = "tx filter low band chain"
	if err := txFilterSpecs[TxLadder].checkRange(op, bandwidthHz); err != nil {
		return err
	}
	if err := txFilterSpecs[TxRealpole].checkRange(op, realpoleHz); err != nil {
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
	ladderKey := c.txFilterKey(s.channel, TxLadder, bandwidthHz)
	realpoleKey := c.txFilterKey(s.channel, TxRealpole, realpoleHz)
	ladder, haveLadder := c.lookupFilterRC(op, ladderKey)
	realpole, haveRealpole := c.lookupFilterRC(op, realpoleKey)
	if haveLadder && haveRealpole {
		c.notify(op, StageCacheHit)
		return c.commitLowBandChain(ladder, realpole)
	}

	if err := s.snapshotMap(); err != nil {
		return err
	}
	if !haveLadder {
		if ladder, err = c.tuneTxFilter(op, s.channel, TxLadder, bandwidthHz); err != nil {
			return fmt.Errorf("%s: ladder: %w", op, err)
		}
	}
	if !haveRealpole {
		if realpole, err = c.tuneTxFilter(op, s.channel, TxRealpole, realpoleHz); err != nil {
			return fmt.Errorf("%s: realpole: %w", op, err)
		}
	}
	if err := s.restore(); err != nil {
		return err
	}

	c.notify(op, StageCommit)
	if err := c.commitLowBandChain(ladder, realpole); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	c.insertFilterRC(op, ladderKey, ladder)
	c.insertFilterRC(op, realpoleKey, realpole)
	c.logger.Info("Tx low band chain tuned", "procedure", op,
		"ladder_rcal", ladder.RCal, "ladder_ccal", ladder.CCal, "realpole_rcal", realpole.RCal)
	return nil
}

func (c *Calibrator) txFilterKey(ch lms7.Channel, kind TxFilter, cutoffHz float64) cache.FilterKey {
	return cache.FilterKey{BoardID: c.boardID, FreqHz: cutoffHz, Channel: ch.Index(), Tx: true, Filter: int(kind)}
}

func (c *Calibrator) commitTxFilter(kind TxFilter, rc cache.FilterRC) error {
	values := []fieldValue{
		set(lms7.ICT_IAMP_FRP_TBB, 1),
		set(lms7.ICT_IAMP_GG_FRP_TBB, 6),
		set(txFilterSpecs[kind].rcal, rc.RCal),
	}
	switch kind {
	case TxLadder:
		values = append(values, set(lms7.CCAL_LPFLAD_TBB, rc.CCal))
	case TxHighband:
		// LPFH on, ladder and real pole off
		values = append(values, set(lms7.PD_ALL_TBB, 0x07))
	}
	return c.apply(values...)
}

func (c *Calibrator) commitLowBandChain(ladder, realpole cache.FilterRC) error {
	return c.apply(
		set(lms7.CCAL_LPFLAD_TBB, ladder.CCal),
		set(lms7.RCAL_LPFLAD_TBB, ladder.RCal),
		set(lms7.ICT_IAMP_FRP_TBB, 1),
		set(lms7.ICT_IAMP_GG_FRP_TBB, 6),
		set(lms7.RCAL_LPFS5_TBB, realpole.RCal),
		// ladder and real pole on, LPFH off
		set(lms7.PD_ALL_TBB, 0x11),
	)
}

// tuneTxFilter runs setup and search for one section without taking the
// guard or a backup. The caller owns both.
func (c *Calibrator) tuneTxFilter(op string, ch lms7.Channel, kind TxFilter, cutoffHz float64) (cache.FilterRC, error) {
	spec, err := lookupTxFilter(op, kind)
	if err != nil {
		return cache.FilterRC{}, err
	}
	c.notify(op, StageSetup)
	if err := c.setupTxFilter(ch); err != nil {
		return cache.FilterRC{}, fmt.Errorf("setup: %w", err)
	}
	if err := c.setCGEN(filterCGEN(cutoffHz)); err != nil {
		return cache.FilterRC{}, err
	}
	if err := c.apply(
		set(lms7.LOOPB_TBB, spec.path[0]),
		set(lms7.BYPLADDER_TBB, spec.path[1]),
		set(lms7.PD_LPFH_TBB, spec.path[2]),
		set(lms7.PD_LPFLAD_TBB, spec.path[3]),
		set(lms7.PD_LPFS5_TBB, spec.path[4]),
		set(lms7.CG_IAMP_TBB, 1),
		set(lms7.TSTIN_TBB, 0),
		set(lms7.PD_LPFIAMP_TBB, 0),
		set(lms7.EN_G_TBB, 1),
	); err != nil {
		return cache.FilterRC{}, err
	}
	rcal := spec.seedRCAL(cutoffHz)
	if err := c.chip.WriteField(spec.rcal, rcal); err != nil {
		return cache.FilterRC{}, err
	}
	c.logger.Debug("Filter seeded", "procedure", op, "filter", kind.String(), "rcal", rcal)

	c.notify(op, StageConditioning)
	if err := c.adjustFilterGains(); err != nil {
		return cache.FilterRC{}, err
	}

	c.notify(op, StageSearch)
	if kind == TxLadder {
		return c.searchLadder(rcal, cutoffHz)
	}
	rcal, err = c.searchRCAL(spec.rcal, rcal, cutoffHz)
	if err != nil {
		return cache.FilterRC{}, err
	}
	return cache.FilterRC{RCal: rcal}, nil
}

// filterCGEN runs the clock at twenty times the cutoff, within 60-640 MHz,
// keeping the 1/16 spur off the test tone
func filterCGEN(cutoffHz float64) float64 {
	cgen := math.Min(math.Max(20*cutoffHz, 60e6), 640e6)
	if cutoffHz == cgen/16 {
		cgen -= 10e6
	}
	return cgen
}

// setupTxFilter routes the TBB output through the baseband loopback into the
// RBB PGA with both RF sections off
func (c *Calibrator) setupTxFilter(ch lms7.Channel) error {
	if err := c.apply(set(lms7.EN_G_RFE, 0), set(lms7.EN_G_TRF, 0)); err != nil {
		return err
	}

	// RBB
	if err := c.chip.SetDefaults(lms7.BlockRBB); err != nil {
		return err
	}
	if err := c.apply(
		set(lms7.PD_LPFL_RBB, 1),
		set(lms7.INPUT_CTL_PGA_RBB, 3),
		set(lms7.ICT_PGA_OUT_RBB, 20),
		set(lms7.ICT_PGA_IN_RBB, 20),
		set(lms7.C_CTL_PGA_RBB, 3),
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
	); err != nil {
		return err
	}

	// AFE
	if err := c.setDefaultsKeeping(lms7.BlockAFE, lms7.ISEL_DAC_AFE); err != nil {
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
		set(lms7.EN_G_XBUF, 1),
	); err != nil {
		return err
	}
	if err := c.chip.SetDefaults(lms7.BlockCGEN); err != nil {
		return err
	}

	// TxTSP
	if err := c.setDefaults(lms7.BlockTxTSP, lms7.BlockTxNCO); err != nil {
		return err
	}
	if err := c.apply(
		set(lms7.TSGMODE_TXTSP, 1),
		set(lms7.INSEL_TXTSP, 1),
		set(lms7.GFIR_BYP_ALL_TXTSP, 7),
	); err != nil {
		return err
	}
	if err := c.chip.LoadDCRegIQ(lms7.Tx, 0x7FFF, 0x8000); err != nil {
		return err
	}
	if err := c.setNCO(lms7.Tx, referenceHz); err != nil {
		return err
	}

	// RxTSP
	if err := c.setDefaults(lms7.BlockRxTSP, lms7.BlockRxNCO); err != nil {
		return err
	}
	if err := c.setNCO(lms7.Rx, referenceHz-1e6); err != nil {
		return err
	}
	return c.apply(
		set(lms7.AGC_MODE_RXTSP, 1),
		set(lms7.AGC_GFIR_BYP_RXTSP, 7),
		set(lms7.AGC_AVG_RXTSP, 7),
		set(lms7.CMIX_GAIN_RXTSP, 1),
	)
}

// referenceLevel measures the passband tone and scales it to the -3 dB level
func (c *Calibrator) referenceLevel() (uint32, error) {
	if err := c.setNCOPair(referenceHz); err != nil {
		return 0, err
	}
	rssi, err := c.rssi()
	if err != nil {
		return 0, err
	}
	return uint32(float64(rssi) * cutoffRatio), nil
}

// sweepCCAL lowers CCAL from 31 to 1 and returns the first value whose
// reading exceeds ref. A larger CCAL gives a lower cutoff.
func (c *Calibrator) sweepCCAL(ref uint32) (int, bool, error) {
	for ccal := 31; ccal >= 1; ccal-- {
		rssi, err := measureAt(c.chip, c.meter, lms7.CCAL_LPFLAD_TBB, ccal)
		if err != nil {
			return 0, false, err
		}
		if rssi > ref {
			return ccal, true, nil
		}
	}
	return 0, false, nil
}

// searchLadder sweeps CCAL at the seeded RCAL. When no CCAL value brackets the
// cutoff, RCAL moves in steps of 5 towards it and the sweep repeats.
func (c *Calibrator) searchLadder(rcal int, cutoffHz float64) (cache.FilterRC, error) {
	ref, err := c.referenceLevel()
	if err != nil {
		return cache.FilterRC{}, err
	}
	if err := c.setNCOPair(cutoffHz); err != nil {
		return cache.FilterRC{}, err
	}
	ccal, found, err := c.sweepCCAL(ref)
	if err != nil {
		return cache.FilterRC{}, err
	}
	if found && ccal < 31 {
		return cache.FilterRC{RCal: rcal, CCal: ccal}, nil
	}

	// CCAL 31 still passing means the cutoff is too high at any capacitance
	dir := 1
	if found {
		dir = -1
	}
	p := lms7.RCAL_LPFLAD_TBB
	for rcal > p.Min() && rcal < p.Max() {
		prev := rcal
		rcal = p.Clamp(rcal + 5*dir)
		if err := c.chip.WriteField(p, rcal); err != nil {
			return cache.FilterRC{}, err
		}
		if err := c.chip.WriteField(lms7.CCAL_LPFLAD_TBB, 16); err != nil {
			return cache.FilterRC{}, err
		}
		if ref, err = c.referenceLevel(); err != nil {
			return cache.FilterRC{}, err
		}
		if err := c.setNCOPair(cutoffHz); err != nil {
			return cache.FilterRC{}, err
		}
		ccal, found, err = c.sweepCCAL(ref)
		if err != nil {
			return cache.FilterRC{}, err
		}
		c.logger.Debug("Ladder step", "rcal", rcal, "ccal", ccal, "found", found)
		switch {
		case found && ccal < 31:
			return cache.FilterRC{RCal: rcal, CCal: ccal}, nil
		case found && dir > 0:
			return cache.FilterRC{RCal: rcal, CCal: 31}, nil
		case !found && dir < 0:
			// stepped past the crossing, the previous RCAL passed at CCAL 31
			return cache.FilterRC{RCal: prev, CCal: 31}, nil
		}
	}
	return cache.FilterRC{}, fmt.Errorf("ladder rcal %d: %w", rcal, ErrNotConverged)
}

// searchRCAL steps p by one until the cutoff tone crosses the reference and
// returns the lowest value at which the tone still passes. The cutoff rises
// with p. The reference is re-measured at every step.
func (c *Calibrator) searchRCAL(p lms7.Param, rcal int, cutoffHz float64) (int, error) {
	prevAbove := false
	for rcal >= p.Min() && rcal <= p.Max() {
		if err := c.chip.WriteField(p, rcal); err != nil {
			return 0, err
		}
		ref, err := c.referenceLevel()
		if err != nil {
			return 0, err
		}
		if err := c.setNCOPair(cutoffHz); err != nil {
			return 0, err
		}
		rssi, err := c.rssi()
		if err != nil {
			return 0, err
		}
		c.logger.Debug("RCAL step", "field", p.Name, "rcal", rcal, "rssi", rssi, "ref", ref)
		if rssi > ref {
			prevAbove = true
			rcal--
			continue
		}
		if prevAbove {
			return rcal + 1, nil
		}
		rcal++
	}
	return 0, fmt.Errorf("%s %d: %w", p.Name, rcal, ErrNotConverged)
}

// lookupFilterRC consults the cache; failures other than a miss are logged
func (c *Calibrator) lookupFilterRC(op string, key cache.FilterKey) (cache.FilterRC, bool) {
	if c.cache == nil {
		return cache.FilterRC{}, false
	}
	rc, err := c.cache.LookupFilterRC(key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			c.logger.Warn("Cache lookup failed", "procedure", op, "error", err)
		}
		return cache.FilterRC{}, false
	}
	c.logger.Info("Using cached filter values", "procedure", op, "freq_hz", key.FreqHz, "channel", key.Channel)
	return rc, true
}

func (c *Calibrator) insertFilterRC(op string, key cache.FilterKey, rc cache.FilterRC) {
	if c.cache == nil {
		return
	}
	if err := c.cache.InsertFilterRC(key, rc); err != nil {
		c.logger.Warn("Failed to cache filter values", "procedure", op, "error", err)
	}
}
