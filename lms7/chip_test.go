package lms7

import (
	"errors"
	"testing"
)

type write struct {
	mac   Channel
	addr  uint16
	value uint16
}

// fakeTransport keeps two register banks selected by the MAC field
type fakeTransport struct {
	banks  [2]map[uint16]uint16
	writes []write
	reads  int
	fail   map[uint16]error
}

func newFakeTransport() *fakeTransport {
	f := &fakeTransport{
		banks: [2]map[uint16]uint16{make(map[uint16]uint16), make(map[uint16]uint16)},
		fail:  make(map[uint16]error),
	}
	for _, rv := range PowerOnValues() {
		f.banks[0][rv.Addr] = rv.Value
		f.banks[1][rv.Addr] = rv.Value
	}
	return f
}

func (f *fakeTransport) mac() Channel {
	return Channel(f.banks[0][RegChannelControl] & 0x3)
}

func bankIndex(ch Channel, addr uint16) int {
	if Shared(addr) {
		return 0
	}
	return ch.Index()
}

func (f *fakeTransport) get(ch Channel, addr uint16) uint16 {
	return f.banks[bankIndex(ch, addr)][addr]
}

func (f *fakeTransport) ReadRegister(addr uint16) (uint16, error) {
	if err := f.fail[addr]; err != nil {
		return 0, err
	}
	f.reads++
	return f.get(f.mac(), addr), nil
}

func (f *fakeTransport) WriteRegister(addr, value uint16) error {
	if err := f.fail[addr]; err != nil {
		return err
	}
	mac := f.mac()
	f.writes = append(f.writes, write{mac: mac, addr: addr, value: value})
	switch {
	case Shared(addr):
		f.banks[0][addr] = value
	case mac == ChannelAB:
		f.banks[0][addr] = value
		f.banks[1][addr] = value
	default:
		f.banks[mac.Index()][addr] = value
	}
	return nil
}

func (f *fakeTransport) ReadBatch(addrs []uint16) ([]uint16, error) {
	values := make([]uint16, len(addrs))
	for i, addr := range addrs {
		v, err := f.ReadRegister(addr)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (f *fakeTransport) WriteBatch(addrs, values []uint16) error {
	for i, addr := range addrs {
		if err := f.WriteRegister(addr, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func TestWriteFieldPreservesSiblings(t *testing.T) {
	ft := newFakeTransport()
	chip := New(ft)

	if err := chip.WriteField(G_RXLOOPB_RFE, 3); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if got := ft.get(ChannelA, 0x0113); got != 0x03CF {
		t.Errorf("0x0113 = 0x%04X, want 0x03CF", got)
	}

	if err := chip.WriteField(G_TIA_RFE, 7); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	v, err := chip.ReadField(G_TIA_RFE)
	if err != nil {
		t.Fatalf("ReadField: %v", err)
	}
	if v != 3 {
		t.Errorf("G_TIA_RFE = %d, want truncated value 3", v)
	}
	if got := ft.get(ChannelA, 0x0113) &^ 0x3; got != 0x03CC {
		t.Errorf("siblings of G_TIA_RFE changed: 0x%04X", got)
	}
}

func TestSignedFieldRoundTrip(t *testing.T) {
	ft := newFakeTransport()
	chip := New(ft)

	tests := []struct {
		p     Param
		value int
		raw   uint16
	}{
		{DCOFFI_RFE, -5, 0x45 << 7},
		{DCOFFQ_RFE, 63, 0x3F},
		{IQCORR_TXTSP, -1, 0x0FFF},
		{DCCORRQ_TXTSP, -128, 0x0080},
	}

	for _, tt := range tests {
		if err := chip.WriteRegister(tt.p.Addr, 0); err != nil {
			t.Fatalf("WriteRegister: %v", err)
		}
		if err := chip.WriteField(tt.p, tt.value); err != nil {
			t.Fatalf("WriteField(%s): %v", tt.p.Name, err)
		}
		if got := ft.get(ChannelA, tt.p.Addr); got != tt.raw {
			t.Errorf("%s raw = 0x%04X, want 0x%04X", tt.p.Name, got, tt.raw)
		}
		got, err := chip.ReadField(tt.p)
		if err != nil {
			t.Fatalf("ReadField(%s): %v", tt.p.Name, err)
		}
		if got != tt.value {
			t.Errorf("%s = %d, want %d", tt.p.Name, got, tt.value)
		}
	}
}

func TestChannelBanks(t *testing.T) {
	ft := newFakeTransport()
	chip := New(ft)

	if err := chip.SetActiveChannel(ChannelB); err != nil {
		t.Fatalf("SetActiveChannel: %v", err)
	}
	if err := chip.WriteRegister(0x0113, 0x1234); err != nil {
		t.Fatalf("WriteRegister: %v", err)
	}
	if err := chip.WriteRegister(0x0085, 0x0007); err != nil {
		t.Fatalf("WriteRegister: %v", err)
	}
	if err := chip.SetActiveChannel(ChannelA); err != nil {
		t.Fatalf("SetActiveChannel: %v", err)
	}

	v, err := chip.ReadRegister(0x0113)
	if err != nil {
		t.Fatalf("ReadRegister: %v", err)
	}
	if v != 0x03DF {
		t.Errorf("channel A 0x0113 = 0x%04X, want default 0x03DF", v)
	}
	if v, _ := chip.ReadRegister(0x0085); v != 0x0007 {
		t.Errorf("shared 0x0085 = 0x%04X, want 0x0007", v)
	}

	if err := chip.SetActiveChannel(ChannelAB); err != nil {
		t.Fatalf("SetActiveChannel: %v", err)
	}
	if err := chip.WriteRegister(0x0114, 0x0042); err != nil {
		t.Fatalf("WriteRegister: %v", err)
	}
	if ft.get(ChannelA, 0x0114) != 0x0042 || ft.get(ChannelB, 0x0114) != 0x0042 {
		t.Error("write with MAC=AB did not reach both banks")
	}

	ch, err := chip.ActiveChannel()
	if err != nil {
		t.Fatalf("ActiveChannel: %v", err)
	}
	if ch != ChannelAB {
		t.Errorf("ActiveChannel = %v, want AB", ch)
	}
	if err := chip.SetActiveChannel(0); err == nil {
		t.Error("SetActiveChannel(0) should fail")
	}
}

func TestTransportErrorsAreIOErrors(t *testing.T) {
	ft := newFakeTransport()
	busErr := errors.New("bus stuck")
	ft.fail[0x0113] = busErr
	chip := New(ft)

	err := chip.WriteField(G_TIA_RFE, 1)
	if err == nil {
		t.Fatal("expected error")
	}
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("error %v is not an IOError", err)
	}
	if ioErr.Addr != 0x0113 {
		t.Errorf("IOError.Addr = 0x%04X, want 0x0113", ioErr.Addr)
	}
	if !errors.Is(err, busErr) {
		t.Error("IOError does not unwrap to the transport error")
	}
}

func TestSetDefaults(t *testing.T) {
	ft := newFakeTransport()
	chip := New(ft)

	if err := chip.WriteRegister(0x0119, 0xFFFF); err != nil {
		t.Fatalf("WriteRegister: %v", err)
	}
	if err := chip.SetDefaults(BlockRBB); err != nil {
		t.Fatalf("SetDefaults: %v", err)
	}
	if got := ft.get(ChannelA, 0x0119); got != 0x528B {
		t.Errorf("0x0119 = 0x%04X, want 0x528B", got)
	}
	if _, err := Defaults(Block(99)); err == nil {
		t.Error("Defaults of unknown block should fail")
	}
}

func TestGFIRAddr(t *testing.T) {
	tests := []struct {
		dir    Direction
		filter int
		tap    int
		want   uint16
	}{
		{Rx, 3, 0, 0x0500},
		{Rx, 3, 40, 0x0540},
		{Rx, 3, 119, 0x05A7},
		{Tx, 1, 39, 0x02A7},
		{Tx, 2, 0, 0x02C0},
	}
	for _, tt := range tests {
		got, err := GFIRAddr(tt.dir, tt.filter, tt.tap)
		if err != nil {
			t.Fatalf("GFIRAddr(%v, %d, %d): %v", tt.dir, tt.filter, tt.tap, err)
		}
		if got != tt.want {
			t.Errorf("GFIRAddr(%v, %d, %d) = 0x%04X, want 0x%04X", tt.dir, tt.filter, tt.tap, got, tt.want)
		}
	}
	if _, err := GFIRAddr(Tx, 1, 40); err == nil {
		t.Error("tap 40 of GFIR1 should be rejected")
	}
	if _, err := GFIRAddr(Tx, 4, 0); err == nil {
		t.Error("GFIR4 should be rejected")
	}
}

func TestGFIRCoefficients(t *testing.T) {
	ft := newFakeTransport()
	chip := New(ft)

	coefs := make([]int16, 45)
	for i := range coefs {
		coefs[i] = int16(i - 20)
	}
	if err := chip.SetGFIRCoefficients(Rx, 3, coefs); err != nil {
		t.Fatalf("SetGFIRCoefficients: %v", err)
	}
	if got := ft.get(ChannelA, 0x0544); got != uint16(24) {
		t.Errorf("tap 44 = %d, want 24", got)
	}
	got, err := chip.GFIRCoefficients(Rx, 3, 45)
	if err != nil {
		t.Fatalf("GFIRCoefficients: %v", err)
	}
	for i := range coefs {
		if got[i] != coefs[i] {
			t.Fatalf("tap %d = %d, want %d", i, got[i], coefs[i])
		}
	}
}

func TestLoadDCRegIQ(t *testing.T) {
	ft := newFakeTransport()
	chip := New(ft)

	if err := chip.LoadDCRegIQ(Tx, 0x7FFF, 0x8000); err != nil {
		t.Fatalf("LoadDCRegIQ: %v", err)
	}

	var dcReg []uint16
	var pulses []uint16
	for _, w := range ft.writes {
		switch w.addr {
		case DC_REG_TXTSP.Addr:
			dcReg = append(dcReg, w.value)
		case TSGDCLDI_TXTSP.Addr:
			pulses = append(pulses, w.value&(TSGDCLDI_TXTSP.Mask()|TSGDCLDQ_TXTSP.Mask()))
		}
	}
	if len(dcReg) != 2 || dcReg[0] != 0x7FFF || dcReg[1] != 0x8000 {
		t.Errorf("DC_REG writes = %#v, want I then Q", dcReg)
	}
	want := []uint16{0, 0x20, 0, 0, 0x40, 0}
	if len(pulses) != len(want) {
		t.Fatalf("load pulses = %#v, want %#v", pulses, want)
	}
	for i := range want {
		if pulses[i] != want[i] {
			t.Errorf("pulse %d = 0x%02X, want 0x%02X", i, pulses[i], want[i])
		}
	}
}

func TestLookupParam(t *testing.T) {
	p, ok := LookupParam("DCOFFI_RFE")
	if !ok {
		t.Fatal("DCOFFI_RFE not found")
	}
	if p.Enc != SignMagnitude || p.Min() != -63 || p.Max() != 63 {
		t.Errorf("DCOFFI_RFE range [%d, %d] enc %d", p.Min(), p.Max(), p.Enc)
	}
	if _, ok := LookupParam("NOPE"); ok {
		t.Error("unknown name resolved")
	}

	params := Params()
	for i := 1; i < len(params); i++ {
		if params[i].Addr < params[i-1].Addr {
			t.Fatalf("Params not ordered at %s", params[i].Name)
		}
	}
}
