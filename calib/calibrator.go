package calib

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/linht/lms7cal/cache"
	"github.com/linht/lms7cal/lms7"
)

// Stage names a step of a calibration procedure
type Stage string

const (
	StageCacheHit     Stage = "cache-hit"
	StageSetup        Stage = "setup"
	StageConditioning Stage = "conditioning"
	StageSearch       Stage = "search"
	StageRestore      Stage = "restore"
	StageCommit       Stage = "commit"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// Event reports progress of a running procedure
type Event struct {
	Procedure string    `json:"procedure"`
	Stage     Stage     `json:"stage"`
	Time      time.Time `json:"time"`
}

// Calibrator runs the closed-loop calibrations of one chip
type Calibrator struct {
	chip     *lms7.Chip
	synth    Synthesizer
	meter    Meter
	cache    cache.Store
	boardID  uint32
	guard    *Guard
	logger   *slog.Logger
	observer func(Event)
}

// Option configures a Calibrator
type Option func(*Calibrator)

// WithLogger sets the logger for procedure lifecycle and search traces
func WithLogger(logger *slog.Logger) Option {
	return func(c *Calibrator) {
		c.logger = logger
	}
}

// WithCache enables result caching
func WithCache(store cache.Store) Option {
	return func(c *Calibrator) {
		c.cache = store
	}
}

// WithMeter replaces the on-chip RSSI meter
func WithMeter(m Meter) Option {
	return func(c *Calibrator) {
		c.meter = m
	}
}

// WithBoardID sets the board serial used in cache keys
func WithBoardID(id uint32) Option {
	return func(c *Calibrator) {
		c.boardID = id
	}
}

// WithGuard shares a session guard between calibrators of the same chip
func WithGuard(g *Guard) Option {
	return func(c *Calibrator) {
		c.guard = g
	}
}

// WithObserver receives an Event at every stage change. It runs on the
// calibrating goroutine and must not block.
func WithObserver(fn func(Event)) Option {
	return func(c *Calibrator) {
		c.observer = fn
	}
}

// New creates a calibrator for chip, programming frequencies through synth
func New(chip *lms7.Chip, synth Synthesizer, opts ...Option) *Calibrator {
	c := &Calibrator{
		chip:   chip,
		synth:  synth,
		guard:  NewGuard(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.meter == nil {
		c.meter = NewChipMeter(chip)
	}
	return c
}

// Guard returns the session guard
func (c *Calibrator) Guard() *Guard {
	return c.guard
}

func (c *Calibrator) notify(op string, stage Stage) {
	c.logger.Debug("Calibration stage", "procedure", op, "stage", string(stage))
	if c.observer != nil {
		c.observer(Event{Procedure: op, Stage: stage, Time: time.Now()})
	}
}

// fieldValue is one entry of a register programming sequence
type fieldValue struct {
	p lms7.Param
	v int
}

func set(p lms7.Param, v int) fieldValue {
	return fieldValue{p: p, v: v}
}

// apply writes a sequence of fields in order
func (c *Calibrator) apply(values ...fieldValue) error {
	for _, fv := range values {
		if err := c.chip.WriteField(fv.p, fv.v); err != nil {
			return err
		}
	}
	return nil
}

// setDefaults loads the factory configuration of several blocks
func (c *Calibrator) setDefaults(blocks ...lms7.Block) error {
	for _, b := range blocks {
		if err := c.chip.SetDefaults(b); err != nil {
			return err
		}
	}
	return nil
}

// setDefaultsKeeping reloads a block but keeps the current value of some fields
func (c *Calibrator) setDefaultsKeeping(b lms7.Block, keep ...lms7.Param) error {
	saved := make([]fieldValue, len(keep))
	for i, p := range keep {
		v, err := c.chip.ReadField(p)
		if err != nil {
			return err
		}
		saved[i] = set(p, v)
	}
	if err := c.chip.SetDefaults(b); err != nil {
		return err
	}
	return c.apply(saved...)
}

// onChannel runs fn with another channel bank selected, then selects back
func (c *Calibrator) onChannel(ch, back lms7.Channel, fn func() error) error {
	if err := c.chip.SetActiveChannel(ch); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return c.chip.SetActiveChannel(back)
}

// rssi takes one reading
func (c *Calibrator) rssi() (uint32, error) {
	v, err := c.meter.RSSI()
	if err != nil {
		return 0, fmt.Errorf("rssi: %w", err)
	}
	return v, nil
}

// selectTone points a bin-selecting meter at the given baseband offset
func (c *Calibrator) selectTone(offsetHz float64) {
	if ts, ok := c.meter.(ToneSelector); ok {
		ts.SelectTone(offsetHz)
	}
}

func (c *Calibrator) setNCO(dir lms7.Direction, hz float64) error {
	if err := c.synth.SetNCOFrequency(dir, 0, hz); err != nil {
		return fmt.Errorf("failed to set %s NCO to %.3f MHz: %w", dir, hz/1e6, err)
	}
	return nil
}

// setNCOPair tunes the Tx test tone and the Rx down-conversion 1 MHz below it
func (c *Calibrator) setNCOPair(toneHz float64) error {
	if err := c.setNCO(lms7.Tx, toneHz); err != nil {
		return err
	}
	return c.setNCO(lms7.Rx, toneHz-1e6)
}

func (c *Calibrator) setCGEN(hz float64) error {
	if err := c.synth.SetFrequencyCGEN(hz); err != nil {
		return fmt.Errorf("failed to set CGEN to %.3f MHz: %w", hz/1e6, err)
	}
	return nil
}

func (c *Calibrator) setSX(dir lms7.Direction, hz float64) error {
	if err := c.synth.SetFrequencySX(dir, hz); err != nil {
		return fmt.Errorf("failed to set SX %s to %.3f MHz: %w", dir, hz/1e6, err)
	}
	return nil
}

func (c *Calibrator) frequencySX(dir lms7.Direction) (float64, error) {
	hz, err := c.synth.FrequencySX(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read SX %s frequency: %w", dir, err)
	}
	return hz, nil
}

// requireSingleChannel rejects MAC = AB, which leaves the calibrated bank ambiguous
func requireSingleChannel(op string, ch lms7.Channel) error {
	if ch != lms7.ChannelA && ch != lms7.ChannelB {
		return fmt.Errorf("%s: channel %v: %w", op, ch, ErrUnsupported)
	}
	return nil
}
