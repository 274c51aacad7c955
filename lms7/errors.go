package lms7

import (
	"errors"
	"fmt"
)

// ErrBackupConsumed is returned when a backup is restored a second time
var ErrBackupConsumed = errors.New("register backup already restored")

// IOError reports a failed register transfer
type IOError struct {
	Op   string
	Addr uint16
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("register %s at 0x%04X failed: %v", e.Op, e.Addr, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
