// Package chipsim is an in-memory LMS7002M used to exercise calibration
// procedures without hardware. It models the two MAC register banks, the
// RSSI capture latch and a synthesizer that keeps its frequencies in the
// SX, CGEN and NCO registers so backups and restores cover them.
package chipsim

import (
	"errors"
	"sync"

	"github.com/linht/lms7cal/calib"
	"github.com/linht/lms7cal/lms7"
)

// ErrInjected is returned by the default failure hooks
var ErrInjected = errors.New("injected failure")

// Oracle computes the 18-bit RSSI latched by a CAPTURE pulse
type Oracle func(v View) uint32

const (
	captureBit = 0x8000
	rssiMax    = 1<<18 - 1

	// synthesizer frequency storage, in kHz for SX and CGEN, Hz for NCOs
	sxLow, sxHigh     = 0x011D, 0x011E
	cgenLow, cgenHigh = 0x0087, 0x0088
	txNCOBase         = 0x0240
	rxNCOBase         = 0x0440
)

// Sim implements lms7.Transport and calib.Synthesizer
type Sim struct {
	mu     sync.Mutex
	banks  [2]map[uint16]uint16
	oracle Oracle

	reads, writes, captures int

	failRead  func(addr uint16) error
	failWrite func(addr, value uint16) error
	failSynth func(call string) error
}

var _ lms7.Transport = (*Sim)(nil)
var _ calib.Synthesizer = (*Sim)(nil)

// New creates a chip at its power-on state. A nil oracle reads 0.
func New(oracle Oracle) *Sim {
	s := &Sim{oracle: oracle}
	for i := range s.banks {
		s.banks[i] = make(map[uint16]uint16)
	}
	for _, rv := range lms7.PowerOnValues() {
		s.banks[0][rv.Addr] = rv.Value
		if !lms7.Shared(rv.Addr) {
			s.banks[1][rv.Addr] = rv.Value
		}
	}
	return s
}

// mac returns the MAC field, defaulting to channel A
func (s *Sim) mac() lms7.Channel {
	ch := lms7.Channel(s.banks[0][lms7.RegChannelControl] & 0x3)
	if ch == 0 {
		return lms7.ChannelA
	}
	return ch
}

// targets lists the banks a banked access addresses
func (s *Sim) targets(addr uint16) []int {
	if lms7.Shared(addr) {
		return []int{0}
	}
	switch s.mac() {
	case lms7.ChannelB:
		return []int{1}
	case lms7.ChannelAB:
		return []int{0, 1}
	}
	return []int{0}
}

func (s *Sim) read(addr uint16) (uint16, error) {
	if s.failRead != nil {
		if err := s.failRead(addr); err != nil {
			return 0, err
		}
	}
	s.reads++
	return s.banks[s.targets(addr)[0]][addr], nil
}

func (s *Sim) write(addr, value uint16) error {
	if s.failWrite != nil {
		if err := s.failWrite(addr, value); err != nil {
			return err
		}
	}
	s.writes++
	for _, b := range s.targets(addr) {
		old := s.banks[b][addr]
		s.banks[b][addr] = value
		if addr == lms7.CAPTURE.Addr && old&captureBit == 0 && value&captureBit != 0 {
			s.latch(b)
		}
	}
	return nil
}

func (s *Sim) latch(bank int) {
	s.captures++
	var v uint32
	if s.oracle != nil {
		v = min(s.oracle(View{s: s, bank: bank}), rssiMax)
	}
	s.banks[bank][lms7.RegRSSIHigh] = uint16(v >> 2)
	s.banks[bank][lms7.RegRSSILow] = s.banks[bank][lms7.RegRSSILow]&^0x3 | uint16(v&0x3)
}

// ReadRegister implements lms7.Transport
func (s *Sim) ReadRegister(addr uint16) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(addr)
}

// WriteRegister implements lms7.Transport
func (s *Sim) WriteRegister(addr, value uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(addr, value)
}

// ReadBatch implements lms7.Transport
func (s *Sim) ReadBatch(addrs []uint16) ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := make([]uint16, len(addrs))
	for i, addr := range addrs {
		v, err := s.read(addr)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// WriteBatch implements lms7.Transport
func (s *Sim) WriteBatch(addrs, values []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, addr := range addrs {
		if err := s.write(addr, values[i]); err != nil {
			return err
		}
	}
	return nil
}

// Reads returns the number of register reads since the last reset
func (s *Sim) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Writes returns the number of register writes since the last reset
func (s *Sim) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Captures returns the number of RSSI latches since the last reset
func (s *Sim) Captures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures
}

// ResetCounters zeroes the access counters
func (s *Sim) ResetCounters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads, s.writes, s.captures = 0, 0, 0
}

// FailRead makes register reads fail whenever fn returns an error
func (s *Sim) FailRead(fn func(addr uint16) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRead = fn
}

// FailWrite makes register writes fail whenever fn returns an error
func (s *Sim) FailWrite(fn func(addr, value uint16) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrite = fn
}

// FailSynth makes synthesizer calls fail whenever fn returns an error. call is
// the Synthesizer method name.
func (s *Sim) FailSynth(fn func(call string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSynth = fn
}

// Register returns a register of one bank without counting the access
func (s *Sim) Register(ch lms7.Channel, addr uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banks[bankIndex(ch, addr)][addr]
}

// SetRegister stores a register of one bank without counting the access
func (s *Sim) SetRegister(ch lms7.Channel, addr, value uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banks[bankIndex(ch, addr)][addr] = value
}

// Field returns a field of one bank without counting the access
func (s *Sim) Field(ch lms7.Channel, p lms7.Param) int {
	return field(s.Register(ch, p.Addr), p)
}

// SetField stores a field of one bank without counting the access
func (s *Sim) SetField(ch lms7.Channel, p lms7.Param, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := bankIndex(ch, p.Addr)
	reg := s.banks[b][p.Addr]
	s.banks[b][p.Addr] = reg&^p.Mask() | p.Encode(value)<<p.LSB&p.Mask()
}

// Dump copies both banks. Shared registers appear in bank 0 only.
func (s *Sim) Dump() [2]map[uint16]uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [2]map[uint16]uint16
	for i, bank := range s.banks {
		out[i] = make(map[uint16]uint16, len(bank))
		for addr, v := range bank {
			out[i][addr] = v
		}
	}
	return out
}

func bankIndex(ch lms7.Channel, addr uint16) int {
	if ch == lms7.ChannelB && !lms7.Shared(addr) {
		return 1
	}
	return 0
}

func field(reg uint16, p lms7.Param) int {
	return p.Decode((reg & p.Mask()) >> p.LSB)
}
