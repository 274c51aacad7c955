package lms7

import (
	"errors"
	"testing"
)

func snapshotBanks(ft *fakeTransport) [2]map[uint16]uint16 {
	var out [2]map[uint16]uint16
	for i := range ft.banks {
		out[i] = make(map[uint16]uint16, len(ft.banks[i]))
		for addr, v := range ft.banks[i] {
			out[i][addr] = v
		}
	}
	return out
}

func compareBanks(t *testing.T, ft *fakeTransport, want [2]map[uint16]uint16) {
	t.Helper()
	for i := range want {
		for addr, v := range want[i] {
			if got := ft.banks[i][addr]; got != v {
				t.Errorf("bank %d 0x%04X = 0x%04X, want 0x%04X", i, addr, got, v)
			}
		}
	}
}

func TestBackupGlobalRestore(t *testing.T) {
	ft := newFakeTransport()
	chip := New(ft)
	before := snapshotBanks(ft)

	backup, err := chip.BackupGlobal()
	if err != nil {
		t.Fatalf("BackupGlobal: %v", err)
	}

	steps := []struct {
		p Param
		v int
	}{
		{G_RXLOOPB_RFE, 9},
		{PD_XBUF_ALL, 1},
		{CMIX_BYP_RXTSP, 0},
		{DCCORRI_TXTSP, -12},
	}
	for _, s := range steps {
		if err := chip.WriteField(s.p, s.v); err != nil {
			t.Fatalf("WriteField(%s): %v", s.p.Name, err)
		}
	}
	if err := chip.SetGFIRCoefficients(Rx, 3, []int16{1, 2, 3}); err != nil {
		t.Fatalf("SetGFIRCoefficients: %v", err)
	}
	if err := chip.SetActiveChannel(ChannelB); err != nil {
		t.Fatalf("SetActiveChannel: %v", err)
	}
	if err := chip.WriteField(PD_VCO, 0); err != nil {
		t.Fatalf("WriteField: %v", err)
	}

	ft.writes = nil
	if err := backup.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	compareBanks(t, ft, before)
	if got := ft.banks[0][0x0502]; got != 0 {
		t.Errorf("GFIR3 tap 2 = %d after restore, want 0", got)
	}

	for _, w := range ft.writes {
		if w.addr == 0x0101 || w.addr == 0x0114 {
			t.Errorf("unchanged register 0x%04X was rewritten", w.addr)
		}
	}

	n := len(ft.writes)
	if n < 2 {
		t.Fatalf("restore issued %d writes", n)
	}
	last, prev := ft.writes[n-1], ft.writes[n-2]
	if prev.addr != RegChannelControl || prev.value != 0xFFFD&^TxLogicResetMask {
		t.Errorf("fixup pulse = 0x%04X@0x%04X, want 0x5FFD@0x0020", prev.value, prev.addr)
	}
	if last.addr != RegChannelControl || last.value != 0xFFFD {
		t.Errorf("final control write = 0x%04X, want 0xFFFD", last.value)
	}

	if err := backup.Restore(); !errors.Is(err, ErrBackupConsumed) {
		t.Errorf("second Restore = %v, want ErrBackupConsumed", err)
	}
}

func TestBackupGlobalFromChannelB(t *testing.T) {
	ft := newFakeTransport()
	chip := New(ft)
	if err := chip.SetActiveChannel(ChannelB); err != nil {
		t.Fatalf("SetActiveChannel: %v", err)
	}
	before := snapshotBanks(ft)

	backup, err := chip.BackupGlobal()
	if err != nil {
		t.Fatalf("BackupGlobal: %v", err)
	}
	if backup.Channel() != ChannelB {
		t.Errorf("backup channel = %v, want B", backup.Channel())
	}
	if err := chip.WriteField(G_PGA_RBB, 20); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if err := chip.SetActiveChannel(ChannelA); err != nil {
		t.Fatalf("SetActiveChannel: %v", err)
	}
	if err := chip.WriteField(EN_NEXTRX_RFE, 1); err != nil {
		t.Fatalf("WriteField: %v", err)
	}

	if err := backup.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	compareBanks(t, ft, before)
	if ft.mac() != ChannelB {
		t.Errorf("active channel after restore = %v, want B", ft.mac())
	}
}

func TestBackupMapRestore(t *testing.T) {
	ft := newFakeTransport()
	chip := New(ft)
	before := snapshotBanks(ft)

	backup, err := chip.BackupMap()
	if err != nil {
		t.Fatalf("BackupMap: %v", err)
	}

	if err := chip.WriteField(RP_CALIB_BIAS, 3); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if err := chip.SetActiveChannel(ChannelB); err != nil {
		t.Fatalf("SetActiveChannel: %v", err)
	}
	if err := chip.WriteField(CCAL_LPFLAD_TBB, 2); err != nil {
		t.Fatalf("WriteField: %v", err)
	}

	ft.writes = nil
	if err := backup.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	compareBanks(t, ft, before)

	for _, w := range ft.writes {
		if w.mac == ChannelB && w.addr < sharedLimit && w.addr != RegChannelControl {
			t.Errorf("shared register 0x%04X restored from channel B", w.addr)
		}
	}
}

func TestBackupReadFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.fail[0x0500] = errors.New("no ack")
	chip := New(ft)

	_, err := chip.BackupGlobal()
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("BackupGlobal error = %v, want IOError", err)
	}
}

func TestRestoreSeesForeignWrites(t *testing.T) {
	ft := newFakeTransport()
	chip := New(ft)

	backup, err := chip.BackupGlobal()
	if err != nil {
		t.Fatalf("BackupGlobal: %v", err)
	}
	// a synthesizer driver programming SXT directly on the bus
	ft.banks[1][0x011E] = 0x1234

	if err := backup.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := ft.banks[1][0x011E]; got != 0x0780 {
		t.Errorf("SXT 0x011E = 0x%04X, want 0x0780", got)
	}
}
