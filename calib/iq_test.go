package calib

import (
	"testing"

	"github.com/linht/lms7cal/lms7"
)

// iqBowl is a separable quadratic around the given gain and phase optimum
func iqBowl(f iqFields, gainI, gainQ, phase int) func(v map[string]int) uint32 {
	return func(v map[string]int) uint32 {
		di, dq, dp := v[f.gainI.Name]-gainI, v[f.gainQ.Name]-gainQ, v[f.phase.Name]-phase
		return uint32(0x100 + di*di + dq*dq + 4*dp*dp)
	}
}

func newIQBench(t *testing.T, f iqFields, fn func(v map[string]int) uint32) *gainBench {
	t.Helper()
	b := newGainBench(t, fn)
	b.meter.fields = []lms7.Param{f.gainI, f.gainQ, f.phase}
	return b
}

func TestPhaseStart(t *testing.T) {
	tests := []struct {
		name  string
		phase int
		want  int
	}{
		{"negative side", -37, -phaseHalf},
		{"positive side", 15, phaseHalf},
		{"balanced", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newIQBench(t, txIQ, iqBowl(txIQ, gainMax, gainMax, tt.phase))
			got, err := b.cal.phaseStart(lms7.IQCORR_TXTSP)
			if err != nil {
				t.Fatalf("phaseStart: %v", err)
			}
			if got != tt.want {
				t.Errorf("start = %d, want %d", got, tt.want)
			}
			if v := b.field(t, lms7.IQCORR_TXTSP); v != tt.want {
				t.Errorf("IQCORR_TXTSP = %d, want %d left programmed", v, tt.want)
			}
			log := b.meter.log
			if len(log) != 2 || log[0]["IQCORR_TXTSP"] != phaseTrial || log[1]["IQCORR_TXTSP"] != -phaseTrial {
				t.Errorf("readings = %v, want +%d then -%d", log, phaseTrial, phaseTrial)
			}
		})
	}
}

func TestSearchIQ(t *testing.T) {
	tests := []struct {
		name                string
		f                   iqFields
		refine              bool
		gainI, gainQ, phase int
	}{
		{"tx negative phase", txIQ, false, 1990, gainMax, -37},
		{"rx positive phase", rxIQ, true, gainMax, 1990, 15},
		{"upper half", txIQ, false, 1990, gainMax, 200},
		{"far negative", rxIQ, true, 2000, gainMax, -250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newIQBench(t, tt.f, iqBowl(tt.f, tt.gainI, tt.gainQ, tt.phase))
			if err := b.cal.searchIQ(tt.f, tt.refine); err != nil {
				t.Fatalf("searchIQ: %v", err)
			}
			for _, want := range []struct {
				p lms7.Param
				v int
			}{{tt.f.gainI, tt.gainI}, {tt.f.gainQ, tt.gainQ}, {tt.f.phase, tt.phase}} {
				if got := b.field(t, want.p); got != want.v {
					t.Errorf("%s = %d, want %d", want.p.Name, got, want.v)
				}
			}
			// branch selection, coarse gain, then the two phase-side readings
			log := b.meter.log
			i := 2 + 2*7 + 3
			if len(log) < i+2 || log[i][tt.f.phase.Name] != phaseTrial || log[i+1][tt.f.phase.Name] != -phaseTrial {
				t.Errorf("phase side readings missing at %d", i)
			}
		})
	}
}
