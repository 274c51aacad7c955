package plugins

import (
	"testing"

	"github.com/linht/lms7cal/calib"
	"github.com/linht/lms7cal/internal/chipsim"
	"github.com/linht/lms7cal/lms7"
)

func newTestSynth(t *testing.T) (*NCOSynth, *chipsim.Sim, *lms7.Chip) {
	t.Helper()
	sim := chipsim.New(nil)
	chip := lms7.New(sim, lms7.WithLogger(discardLogger()))
	cfg := SynthConfig{SXRxHz: testSXR, SXTxHz: testSXT, CGENHz: testCGEN}
	return NewNCOSynth(chip, cfg, discardLogger()), sim, chip
}

func TestNCOFrequencyControlWord(t *testing.T) {
	synth, sim, chip := newTestSynth(t)

	tests := []struct {
		dir       lms7.Direction
		index     int
		hz        float64
		addr      uint16
		high, low uint16
	}{
		{lms7.Tx, 0, 1e6, 0x0242, 0x02C7, 0x1C72},
		{lms7.Rx, 0, -1e6, 0x0442, 0xFD38, 0xE38E},
		{lms7.Rx, 3, -950e3, 0x0448, 0xFD5C, 0x71C7},
	}
	for _, tt := range tests {
		if err := synth.SetNCOFrequency(tt.dir, tt.index, tt.hz); err != nil {
			t.Fatalf("SetNCOFrequency(%v, %d, %.0f): %v", tt.dir, tt.index, tt.hz, err)
		}
		high := sim.Register(lms7.ChannelA, tt.addr)
		low := sim.Register(lms7.ChannelA, tt.addr+1)
		if high != tt.high || low != tt.low {
			t.Errorf("%v NCO %d at %.0f Hz = %04X %04X, want %04X %04X",
				tt.dir, tt.index, tt.hz, high, low, tt.high, tt.low)
		}
	}

	// MAC selects the bank
	if err := chip.SetActiveChannel(lms7.ChannelB); err != nil {
		t.Fatal(err)
	}
	if err := synth.SetNCOFrequency(lms7.Tx, 0, -1e6); err != nil {
		t.Fatal(err)
	}
	if got := sim.Register(lms7.ChannelB, 0x0242); got != 0xFD38 {
		t.Errorf("bank B FCW high = %04X, want FD38", got)
	}
	if got := sim.Register(lms7.ChannelA, 0x0242); got != 0x02C7 {
		t.Errorf("bank A FCW high changed to %04X", got)
	}
}

func TestNCORange(t *testing.T) {
	synth, sim, _ := newTestSynth(t)
	sim.ResetCounters()

	if err := synth.SetNCOFrequency(lms7.Tx, 16, 1e6); calib.StatusOf(err) != calib.StatusUnsupported {
		t.Errorf("index 16: %v", err)
	}
	if err := synth.SetNCOFrequency(lms7.Tx, 0, 50e6); calib.StatusOf(err) != calib.StatusRange {
		t.Errorf("50 MHz offset: %v", err)
	}
	if sim.Writes() != 0 {
		t.Errorf("rejected requests wrote %d registers", sim.Writes())
	}
}

func TestLOsStayAtConfiguredFrequencies(t *testing.T) {
	synth, _, _ := newTestSynth(t)

	if got, err := synth.FrequencySX(lms7.Tx); err != nil || got != testSXT {
		t.Errorf("FrequencySX(tx) = %v, %v", got, err)
	}
	if got, err := synth.FrequencyCGEN(); err != nil || got != testCGEN {
		t.Errorf("FrequencyCGEN = %v, %v", got, err)
	}
	if err := synth.SetFrequencySX(lms7.Rx, testSXR); err != nil {
		t.Errorf("setting the configured SXR: %v", err)
	}
	if err := synth.SetFrequencySX(lms7.Rx, testSXR+9e6); calib.StatusOf(err) != calib.StatusUnsupported {
		t.Errorf("SXR retune: %v", err)
	}
	if err := synth.SetFrequencyCGEN(testCGEN); err != nil {
		t.Errorf("setting the configured CGEN: %v", err)
	}
	if err := synth.SetFrequencyCGEN(184.32e6); calib.StatusOf(err) != calib.StatusUnsupported {
		t.Errorf("CGEN retune: %v", err)
	}
	if err := synth.TuneVCO(calib.VCOSXT); err != nil {
		t.Errorf("TuneVCO: %v", err)
	}

	unset := NewNCOSynth(nil, SynthConfig{}, discardLogger())
	if _, err := unset.FrequencySX(lms7.Rx); calib.StatusOf(err) != calib.StatusUnsupported {
		t.Errorf("unconfigured SXR: %v", err)
	}
	if err := unset.SetNCOFrequency(lms7.Rx, 0, 1e3); calib.StatusOf(err) != calib.StatusUnsupported {
		t.Errorf("NCO without CGEN: %v", err)
	}
}
