package calib

import (
	"errors"
	"testing"

	"github.com/linht/lms7cal/lms7"
)

// fieldBench records field writes and feeds them to a reading function
type fieldBench struct {
	values   map[string]int
	history  []int
	readings int
	fn       func(values map[string]int) uint32
	err      error
}

func newFieldBench(fn func(values map[string]int) uint32) *fieldBench {
	return &fieldBench{values: make(map[string]int), fn: fn}
}

func (b *fieldBench) WriteField(p lms7.Param, value int) error {
	b.values[p.Name] = value
	b.history = append(b.history, value)
	return nil
}

func (b *fieldBench) RSSI() (uint32, error) {
	if b.err != nil {
		return 0, b.err
	}
	b.readings++
	return b.fn(b.values), nil
}

func distance(p lms7.Param, target int) func(map[string]int) uint32 {
	return func(values map[string]int) uint32 {
		d := values[p.Name] - target
		if d < 0 {
			d = -d
		}
		return uint32(1000 + d)
	}
}

func TestCoarseSearch(t *testing.T) {
	tests := []struct {
		name   string
		p      lms7.Param
		start  int
		n      int
		target int
		want   int
	}{
		{"gain from full scale", lms7.GCORRI_TXTSP, 2047, 7, 1983, 1983},
		{"gain odd target", lms7.GCORRI_TXTSP, 2047, 7, 1990, 1990},
		{"signed dc", lms7.DCCORRI_TXTSP, 0, 7, -20, -20},
		{"sign-magnitude dc", lms7.DCOFFI_RFE, 0, 6, 11, 11},
		{"phase", lms7.IQCORR_TXTSP, 0, 8, -37, -37},
		{"refine", lms7.GCORRI_TXTSP, 1980, 4, 1983, 1983},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFieldBench(distance(tt.p, tt.target))
			got, err := CoarseSearch(b, b, tt.p, tt.start, tt.n)
			if err != nil {
				t.Fatalf("CoarseSearch: %v", err)
			}
			if got != tt.want {
				t.Errorf("CoarseSearch = %d, want %d", got, tt.want)
			}
			if b.values[tt.p.Name] != tt.want {
				t.Errorf("field left at %d, want %d", b.values[tt.p.Name], tt.want)
			}
			if want := 2*tt.n + 3; b.readings != want {
				t.Errorf("readings = %d, want %d", b.readings, want)
			}
		})
	}
}

func TestCoarseSearchClamps(t *testing.T) {
	p := lms7.DCCORRI_TXTSP
	b := newFieldBench(distance(p, 500))
	got, err := CoarseSearch(b, b, p, 0, 7)
	if err != nil {
		t.Fatalf("CoarseSearch: %v", err)
	}
	if got != p.Max() {
		t.Errorf("CoarseSearch = %d, want %d", got, p.Max())
	}
	for _, v := range b.history {
		if v < p.Min() || v > p.Max() {
			t.Fatalf("wrote %d outside [%d, %d]", v, p.Min(), p.Max())
		}
	}
}

func TestCoarseSearchFlat(t *testing.T) {
	p := lms7.IQCORR_RXTSP
	b := newFieldBench(func(map[string]int) uint32 { return 5000 })
	got, err := CoarseSearch(b, b, p, 12, 8)
	if err != nil {
		t.Fatalf("CoarseSearch: %v", err)
	}
	if got != 12 {
		t.Errorf("CoarseSearch on a flat response = %d, want the start value 12", got)
	}
}

func TestCoarseSearchMeterError(t *testing.T) {
	b := newFieldBench(nil)
	b.err = errors.New("bus down")
	_, err := CoarseSearch(b, b, lms7.GCORRI_TXTSP, 2047, 7)
	if !errors.Is(err, b.err) {
		t.Errorf("error = %v, want wrapped meter error", err)
	}
}

func TestFineSearch(t *testing.T) {
	pI, pQ := lms7.DCCORRI_TXTSP, lms7.DCCORRQ_TXTSP
	b := newFieldBench(func(v map[string]int) uint32 {
		di, dq := v[pI.Name]+3, v[pQ.Name]-2
		return uint32(100 + di*di + dq*dq)
	})
	i, q, err := FineSearch(b, b, pI, -2, pQ, 1, 5)
	if err != nil {
		t.Fatalf("FineSearch: %v", err)
	}
	if i != -3 || q != 2 {
		t.Errorf("FineSearch = (%d, %d), want (-3, 2)", i, q)
	}
	if b.values[pI.Name] != -3 || b.values[pQ.Name] != 2 {
		t.Errorf("fields left at (%d, %d)", b.values[pI.Name], b.values[pQ.Name])
	}
	if b.readings != 25 {
		t.Errorf("readings = %d, want 25", b.readings)
	}
}

func TestFineSearchFirstMinimumWins(t *testing.T) {
	pI, pQ := lms7.GCORRI_RXTSP, lms7.IQCORR_RXTSP
	b := newFieldBench(func(v map[string]int) uint32 {
		switch {
		case v[pI.Name] == 9 && v[pQ.Name] == 10, v[pI.Name] == 10 && v[pQ.Name] == 9:
			return 1
		}
		return 5
	})
	i, q, err := FineSearch(b, b, pI, 10, pQ, 10, 3)
	if err != nil {
		t.Fatalf("FineSearch: %v", err)
	}
	// I is the outer loop, so (9, 10) is seen first
	if i != 9 || q != 10 {
		t.Errorf("FineSearch = (%d, %d), want (9, 10)", i, q)
	}
}

func TestFineSearchClamps(t *testing.T) {
	pI, pQ := lms7.GCORRI_TXTSP, lms7.GCORRQ_TXTSP
	b := newFieldBench(distance(pI, 3000))
	i, _, err := FineSearch(b, b, pI, 2047, pQ, 2047, 7)
	if err != nil {
		t.Fatalf("FineSearch: %v", err)
	}
	if i != 2047 {
		t.Errorf("I = %d, want 2047", i)
	}
	for _, v := range b.history {
		if v > 2047 {
			t.Fatalf("wrote %d above the field maximum", v)
		}
	}
}
