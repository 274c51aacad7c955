package chipsim

import (
	"math"

	"github.com/linht/lms7cal/calib"
	"github.com/linht/lms7cal/lms7"
)

// FailCall returns a FailSynth hook that fails the named Synthesizer method
func FailCall(name string) func(call string) error {
	return func(call string) error {
		if call == name {
			return ErrInjected
		}
		return nil
	}
}

func (s *Sim) synthCall(call string) error {
	if s.failSynth != nil {
		return s.failSynth(call)
	}
	return nil
}

func sxBank(dir lms7.Direction) int {
	if dir == lms7.Tx {
		return 1
	}
	return 0
}

func putKHz(bank map[uint16]uint16, low, high uint16, hz float64) {
	khz := uint32(math.Round(hz / 1e3))
	bank[low] = uint16(khz)
	bank[high] = uint16(khz >> 16)
}

func getKHz(bank map[uint16]uint16, low, high uint16) float64 {
	return float64(uint32(bank[high])<<16|uint32(bank[low])) * 1e3
}

func ncoAddrs(dir lms7.Direction, index int) (high, low uint16) {
	base := uint16(rxNCOBase)
	if dir == lms7.Tx {
		base = txNCOBase
	}
	high = base + 2 + uint16(2*index)
	return high, high + 1
}

// SetFrequencySX stores SXR in bank A and SXT in bank B
func (s *Sim) SetFrequencySX(dir lms7.Direction, hz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.synthCall("SetFrequencySX"); err != nil {
		return err
	}
	putKHz(s.banks[sxBank(dir)], sxLow, sxHigh, hz)
	return nil
}

// FrequencySX implements calib.Synthesizer
func (s *Sim) FrequencySX(dir lms7.Direction) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.synthCall("FrequencySX"); err != nil {
		return 0, err
	}
	return getKHz(s.banks[sxBank(dir)], sxLow, sxHigh), nil
}

// SetFrequencyCGEN implements calib.Synthesizer
func (s *Sim) SetFrequencyCGEN(hz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.synthCall("SetFrequencyCGEN"); err != nil {
		return err
	}
	putKHz(s.banks[0], cgenLow, cgenHigh, hz)
	return nil
}

// FrequencyCGEN implements calib.Synthesizer
func (s *Sim) FrequencyCGEN() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.synthCall("FrequencyCGEN"); err != nil {
		return 0, err
	}
	return getKHz(s.banks[0], cgenLow, cgenHigh), nil
}

// SetNCOFrequency stores the offset in Hz in the banks selected by MAC
func (s *Sim) SetNCOFrequency(dir lms7.Direction, index int, hz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.synthCall("SetNCOFrequency"); err != nil {
		return err
	}
	high, low := ncoAddrs(dir, index)
	v := uint32(int32(math.Round(hz)))
	for _, b := range s.targets(high) {
		s.banks[b][high] = uint16(v >> 16)
		s.banks[b][low] = uint16(v)
	}
	return nil
}

// TuneVCO implements calib.Synthesizer
func (s *Sim) TuneVCO(vco calib.VCO) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synthCall("TuneVCO")
}

// SetFrequencies programs both synthesizers and the clock without counting accesses
func (s *Sim) SetFrequencies(sxr, sxt, cgen float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	putKHz(s.banks[0], sxLow, sxHigh, sxr)
	putKHz(s.banks[1], sxLow, sxHigh, sxt)
	putKHz(s.banks[0], cgenLow, cgenHigh, cgen)
}

// View is the chip state seen by an Oracle at capture time. It reads the
// bank that received the CAPTURE pulse and must not outlive the call.
type View struct {
	s    *Sim
	bank int
}

// Channel returns the bank that latched the reading
func (v View) Channel() lms7.Channel {
	if v.bank == 1 {
		return lms7.ChannelB
	}
	return lms7.ChannelA
}

// Field decodes a field of the capturing bank, or of bank A for shared registers
func (v View) Field(p lms7.Param) int {
	b := v.bank
	if lms7.Shared(p.Addr) {
		b = 0
	}
	return field(v.s.banks[b][p.Addr], p)
}

// SX returns the synthesizer frequency in Hz
func (v View) SX(dir lms7.Direction) float64 {
	return getKHz(v.s.banks[sxBank(dir)], sxLow, sxHigh)
}

// CGEN returns the clock generator frequency in Hz
func (v View) CGEN() float64 {
	return getKHz(v.s.banks[0], cgenLow, cgenHigh)
}

// NCO returns the first NCO offset of the capturing bank in Hz
func (v View) NCO(dir lms7.Direction) float64 {
	high, low := ncoAddrs(dir, 0)
	bank := v.s.banks[v.bank]
	return float64(int32(uint32(bank[high])<<16 | uint32(bank[low])))
}
