package chipsim

import (
	"errors"
	"testing"

	"github.com/linht/lms7cal/lms7"
)

func TestBankedAccess(t *testing.T) {
	s := New(nil)
	chip := lms7.New(s)

	if err := chip.SetActiveChannel(lms7.ChannelB); err != nil {
		t.Fatalf("SetActiveChannel: %v", err)
	}
	if err := chip.WriteRegister(0x0203, 0x0123); err != nil {
		t.Fatalf("WriteRegister: %v", err)
	}
	if got := s.Register(lms7.ChannelA, 0x0203); got != 0 {
		t.Errorf("bank A 0x0203 = 0x%04X, want 0", got)
	}
	if got := s.Register(lms7.ChannelB, 0x0203); got != 0x0123 {
		t.Errorf("bank B 0x0203 = 0x%04X, want 0x0123", got)
	}

	// shared registers ignore MAC
	if err := chip.WriteRegister(0x0082, 0x1234); err != nil {
		t.Fatalf("WriteRegister: %v", err)
	}
	if got := s.Register(lms7.ChannelA, 0x0082); got != 0x1234 {
		t.Errorf("shared 0x0082 = 0x%04X, want 0x1234", got)
	}

	if err := chip.SetActiveChannel(lms7.ChannelAB); err != nil {
		t.Fatalf("SetActiveChannel: %v", err)
	}
	if err := chip.WriteRegister(0x0204, 0x0505); err != nil {
		t.Fatalf("WriteRegister: %v", err)
	}
	for _, ch := range []lms7.Channel{lms7.ChannelA, lms7.ChannelB} {
		if got := s.Register(ch, 0x0204); got != 0x0505 {
			t.Errorf("bank %v 0x0204 = 0x%04X, want 0x0505", ch, got)
		}
	}
}

func TestCaptureLatch(t *testing.T) {
	s := New(func(v View) uint32 {
		return uint32(v.Field(lms7.DCCORRI_TXTSP)+100) * 1000
	})
	chip := lms7.New(s)
	if err := chip.WriteField(lms7.DCCORRI_TXTSP, 23); err != nil {
		t.Fatalf("WriteField: %v", err)
	}

	s.ResetCounters()
	if err := chip.WriteField(lms7.CAPTURE, 1); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	// a second write while high is not an edge
	if err := chip.WriteField(lms7.CAPTURE, 1); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if got := s.Captures(); got != 1 {
		t.Errorf("captures = %d, want 1", got)
	}

	values, err := chip.ReadBatch([]uint16{lms7.RegRSSIHigh, lms7.RegRSSILow})
	if err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	got := uint32(values[0])<<2 | uint32(values[1]&0x3)
	if got != 123000 {
		t.Errorf("rssi = %d, want 123000", got)
	}
}

func TestCaptureSaturates(t *testing.T) {
	s := New(func(View) uint32 { return 1 << 20 })
	chip := lms7.New(s)
	if err := chip.WriteField(lms7.CAPTURE, 1); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	high := s.Register(lms7.ChannelA, lms7.RegRSSIHigh)
	low := s.Register(lms7.ChannelA, lms7.RegRSSILow)
	if got := uint32(high)<<2 | uint32(low&0x3); got != rssiMax {
		t.Errorf("rssi = 0x%X, want 0x%X", got, rssiMax)
	}
}

func TestCounters(t *testing.T) {
	s := New(nil)
	chip := lms7.New(s)

	// read-modify-write
	if err := chip.WriteField(lms7.IQCORR_TXTSP, -5); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if s.Reads() != 1 || s.Writes() != 1 {
		t.Errorf("reads/writes = %d/%d, want 1/1", s.Reads(), s.Writes())
	}
	if _, err := chip.ReadBatch([]uint16{0x0200, 0x0201, 0x0202}); err != nil {
		t.Fatalf("ReadBatch: %v", err)
	}
	if s.Reads() != 4 {
		t.Errorf("reads = %d, want 4", s.Reads())
	}
	s.ResetCounters()
	if s.Reads() != 0 || s.Writes() != 0 || s.Captures() != 0 {
		t.Error("counters not reset")
	}
}

func TestFailureInjection(t *testing.T) {
	s := New(nil)
	chip := lms7.New(s)

	s.FailWrite(func(addr, value uint16) error {
		if addr == 0x0203 {
			return ErrInjected
		}
		return nil
	})
	err := chip.WriteRegister(0x0203, 1)
	var ioErr *lms7.IOError
	if !errors.As(err, &ioErr) || !errors.Is(err, ErrInjected) {
		t.Errorf("WriteRegister error = %v, want IOError wrapping ErrInjected", err)
	}
	if err := chip.WriteRegister(0x0204, 1); err != nil {
		t.Errorf("unrelated write failed: %v", err)
	}

	s.FailRead(func(uint16) error { return ErrInjected })
	if _, err := chip.ReadRegister(0x0204); !errors.Is(err, ErrInjected) {
		t.Errorf("ReadRegister error = %v, want ErrInjected", err)
	}

	s.FailSynth(FailCall("SetFrequencyCGEN"))
	if err := s.SetFrequencyCGEN(100e6); !errors.Is(err, ErrInjected) {
		t.Errorf("SetFrequencyCGEN error = %v, want ErrInjected", err)
	}
	if err := s.SetFrequencySX(lms7.Rx, 1e9); err != nil {
		t.Errorf("SetFrequencySX: %v", err)
	}
}

func TestSynthesizerStorage(t *testing.T) {
	s := New(nil)
	chip := lms7.New(s)

	if err := s.SetFrequencySX(lms7.Rx, 2400.5e6); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFrequencySX(lms7.Tx, 2450e6); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFrequencyCGEN(368.64e6); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.FrequencySX(lms7.Rx); got != 2400.5e6 {
		t.Errorf("SXR = %v, want 2400.5e6", got)
	}
	if got, _ := s.FrequencySX(lms7.Tx); got != 2450e6 {
		t.Errorf("SXT = %v, want 2450e6", got)
	}
	if got, _ := s.FrequencyCGEN(); got != 368.64e6 {
		t.Errorf("CGEN = %v, want 368.64e6", got)
	}
	if s.Writes() != 0 {
		t.Errorf("synthesizer counted %d bus writes", s.Writes())
	}

	if err := chip.SetActiveChannel(lms7.ChannelB); err != nil {
		t.Fatal(err)
	}
	if err := s.SetNCOFrequency(lms7.Rx, 0, -950e3); err != nil {
		t.Fatal(err)
	}
	view := View{s: s, bank: 1}
	if got := view.NCO(lms7.Rx); got != -950e3 {
		t.Errorf("bank B Rx NCO = %v, want -950e3", got)
	}
	if got := (View{s: s, bank: 0}).NCO(lms7.Rx); got != 0 {
		t.Errorf("bank A Rx NCO = %v, want 0", got)
	}
	if view.SX(lms7.Rx) != 2400.5e6 || view.CGEN() != 368.64e6 {
		t.Error("view does not see synthesizer frequencies")
	}
}

func TestDumpIsCopy(t *testing.T) {
	s := New(nil)
	d := s.Dump()
	d[0][0x0203] = 0xFFFF
	if s.Register(lms7.ChannelA, 0x0203) == 0xFFFF {
		t.Error("Dump shares storage with the sim")
	}
	s.SetField(lms7.ChannelB, lms7.GCORRI_TXTSP, 1999)
	if got := s.Field(lms7.ChannelB, lms7.GCORRI_TXTSP); got != 1999 {
		t.Errorf("GCORRI_TXTSP = %d, want 1999", got)
	}
	if got := s.Field(lms7.ChannelA, lms7.GCORRI_TXTSP); got != 2047 {
		t.Errorf("bank A GCORRI_TXTSP = %d, want 2047", got)
	}
}
