package calib

import (
	"fmt"

	"github.com/linht/lms7cal/lms7"
)

// FieldWriter is the register access the searches need
type FieldWriter interface {
	WriteField(p lms7.Param, value int) error
}

func measureAt(w FieldWriter, m Meter, p lms7.Param, value int) (uint32, error) {
	if err := w.WriteField(p, value); err != nil {
		return 0, err
	}
	return m.RSSI()
}

// CoarseSearch walks a field towards the RSSI minimum by successive
// approximation. The window is centred on value with a half-width of
// 2^maxIterations; each iteration compares centre±step and moves towards the
// lower reading, halving the step. A final comparison of centre-1, centre and
// centre+1 settles the last bit. Every candidate is clamped to the field
// range. The result is written to the field and returned, so calling again
// with a smaller maxIterations refines around it.
func CoarseSearch(w FieldWriter, m Meter, p lms7.Param, value, maxIterations int) (int, error) {
	center := p.Clamp(value)
	for k := 0; k < maxIterations; k++ {
		step := 1 << (maxIterations - 1 - k)
		up, err := measureAt(w, m, p, p.Clamp(center+step))
		if err != nil {
			return 0, fmt.Errorf("coarse search %s: %w", p.Name, err)
		}
		down, err := measureAt(w, m, p, p.Clamp(center-step))
		if err != nil {
			return 0, fmt.Errorf("coarse search %s: %w", p.Name, err)
		}
		switch {
		case down < up:
			center = p.Clamp(center - step)
		case up < down:
			center = p.Clamp(center + step)
		}
	}

	best := center
	bestRSSI, err := measureAt(w, m, p, center)
	if err != nil {
		return 0, fmt.Errorf("coarse search %s: %w", p.Name, err)
	}
	for _, candidate := range []int{p.Clamp(center - 1), p.Clamp(center + 1)} {
		rssi, err := measureAt(w, m, p, candidate)
		if err != nil {
			return 0, fmt.Errorf("coarse search %s: %w", p.Name, err)
		}
		if rssi < bestRSSI {
			best, bestRSSI = candidate, rssi
		}
	}

	if err := w.WriteField(p, best); err != nil {
		return 0, fmt.Errorf("coarse search %s: %w", p.Name, err)
	}
	return best, nil
}

// FineSearch scans a fieldSize x fieldSize grid centred on (valueI, valueQ),
// I in the outer loop, and keeps the first strict minimum. The winner is
// written back to both fields.
func FineSearch(w FieldWriter, m Meter, pI lms7.Param, valueI int, pQ lms7.Param, valueQ int, fieldSize int) (int, int, error) {
	var minRSSI uint32
	minI, minQ := pI.Clamp(valueI), pQ.Clamp(valueQ)
	first := true

	for i := 0; i < fieldSize; i++ {
		ival := pI.Clamp(valueI + i - fieldSize/2)
		if err := w.WriteField(pI, ival); err != nil {
			return 0, 0, fmt.Errorf("fine search %s: %w", pI.Name, err)
		}
		for q := 0; q < fieldSize; q++ {
			qval := pQ.Clamp(valueQ + q - fieldSize/2)
			rssi, err := measureAt(w, m, pQ, qval)
			if err != nil {
				return 0, 0, fmt.Errorf("fine search %s: %w", pQ.Name, err)
			}
			if first || rssi < minRSSI {
				minRSSI, minI, minQ = rssi, ival, qval
				first = false
			}
		}
	}

	if err := w.WriteField(pI, minI); err != nil {
		return 0, 0, fmt.Errorf("fine search %s: %w", pI.Name, err)
	}
	if err := w.WriteField(pQ, minQ); err != nil {
		return 0, 0, fmt.Errorf("fine search %s: %w", pQ.Name, err)
	}
	return minI, minQ, nil
}
