package calib

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linht/lms7cal/lms7"
)

// Guard admits one calibration session at a time. Calibrators sharing a chip
// must share a Guard.
type Guard struct {
	mu sync.Mutex
}

// NewGuard creates an unlocked guard
func NewGuard() *Guard {
	return &Guard{}
}

// TryAcquire takes the guard without blocking. A caller that gets true owns
// the chip until Release.
func (g *Guard) TryAcquire() bool {
	return g.mu.TryLock()
}

// Release hands the chip back
func (g *Guard) Release() {
	g.mu.Unlock()
}

// Busy reports whether someone currently holds the guard. The answer may be
// stale by the time it is used; owners must go through TryAcquire.
func (g *Guard) Busy() bool {
	if g.TryAcquire() {
		g.Release()
		return false
	}
	return true
}

// session is one guarded calibration attempt. A pending backup is restored by
// end, whichever way the procedure returns.
type session struct {
	c       *Calibrator
	op      string
	channel lms7.Channel
	backup  *lms7.Backup
	started time.Time
}

// begin takes the guard without blocking
func (c *Calibrator) begin(op string) (*session, error) {
	if !c.guard.TryAcquire() {
		c.logger.Warn("Calibration rejected", "procedure", op, "error", ErrBusy)
		return nil, ErrBusy
	}
	s := &session{c: c, op: op, started: time.Now()}
	ch, err := c.chip.ActiveChannel()
	if err != nil {
		c.guard.Release()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.channel = ch
	c.logger.Info("Calibration started", "procedure", op, "channel", ch.String())
	return s, nil
}

// snapshot takes the global backup used by the Tx/Rx procedures
func (s *session) snapshot() error {
	backup, err := s.c.chip.BackupGlobal()
	if err != nil {
		return fmt.Errorf("%s: %w", s.op, err)
	}
	s.backup = backup
	return nil
}

// snapshotMap takes the full two-bank backup used by the filter procedures
func (s *session) snapshotMap() error {
	backup, err := s.c.chip.BackupMap()
	if err != nil {
		return fmt.Errorf("%s: %w", s.op, err)
	}
	s.backup = backup
	return nil
}

// restore rolls the chip back to the snapshot. It is a no-op once done.
func (s *session) restore() error {
	if s.backup == nil {
		return nil
	}
	backup := s.backup
	s.backup = nil
	s.c.notify(s.op, StageRestore)
	if err := backup.Restore(); err != nil {
		return fmt.Errorf("%s: restore: %w", s.op, err)
	}
	return nil
}

// end must be deferred right after begin succeeds
func (s *session) end(errp *error) {
	if err := s.restore(); err != nil {
		*errp = errors.Join(*errp, err)
	}
	elapsed := time.Since(s.started).Round(time.Millisecond)
	if *errp != nil {
		s.c.logger.Warn("Calibration failed", "procedure", s.op, "elapsed", elapsed, "error", *errp)
		s.c.notify(s.op, StageFailed)
	} else {
		s.c.logger.Info("Calibration finished", "procedure", s.op, "elapsed", elapsed)
		s.c.notify(s.op, StageDone)
	}
	s.c.guard.Release()
}
