package calib

import (
	"errors"
	"fmt"

	"github.com/linht/lms7cal/lms7"
)

var (
	// ErrNotConverged reports a search that left its field range without finding the target
	ErrNotConverged = errors.New("tuning loop failed")
	// ErrUnsupported reports a chip configuration the procedure cannot handle
	ErrUnsupported = errors.New("unsupported configuration")
	// ErrBusy reports that another calibration session holds the chip
	ErrBusy = errors.New("calibration already in progress")
)

// RangeError reports a request parameter outside the supported range
type RangeError struct {
	Op    string
	Value float64
	Min   float64
	Max   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: %.3f MHz out of range (%.3f-%.3f MHz)", e.Op, e.Value/1e6, e.Min/1e6, e.Max/1e6)
}

// Status is the integer outcome of a procedure, 0 on success
type Status int

const (
	StatusOK Status = iota
	StatusRange
	StatusIO
	StatusNotConverged
	StatusUnsupported
	StatusBusy
	StatusFailed
)

var statusNames = map[Status]string{
	StatusOK:           "ok",
	StatusRange:        "out of range",
	StatusIO:           "hardware i/o",
	StatusNotConverged: "not converged",
	StatusUnsupported:  "unsupported",
	StatusBusy:         "busy",
	StatusFailed:       "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// StatusOf classifies an error returned by a procedure
func StatusOf(err error) Status {
	var rangeErr *RangeError
	var ioErr *lms7.IOError
	switch {
	case err == nil:
		return StatusOK
	case errors.As(err, &rangeErr):
		return StatusRange
	case errors.Is(err, ErrBusy):
		return StatusBusy
	case errors.As(err, &ioErr), errors.Is(err, ErrStreamTimeout), errors.Is(err, ErrShortRead):
		return StatusIO
	case errors.Is(err, ErrNotConverged):
		return StatusNotConverged
	case errors.Is(err, ErrUnsupported):
		return StatusUnsupported
	}
	return StatusFailed
}
