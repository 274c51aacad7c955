package lms7

import "fmt"

// Block identifies a functional block with a factory register configuration
type Block int

const (
	BlockAFE Block = iota
	BlockBIAS
	BlockXBUF
	BlockCGEN
	BlockTRF
	BlockTBB
	BlockRFE
	BlockRBB
	BlockSX
	BlockTxTSP
	BlockTxNCO
	BlockRxTSP
	BlockRxNCO
)

var blockNames = map[Block]string{
	BlockAFE:   "AFE",
	BlockBIAS:  "BIAS",
	BlockXBUF:  "XBUF",
	BlockCGEN:  "CGEN",
	BlockTRF:   "TRF",
	BlockTBB:   "TBB",
	BlockRFE:   "RFE",
	BlockRBB:   "RBB",
	BlockSX:    "SX",
	BlockTxTSP: "TxTSP",
	BlockTxNCO: "TxNCO",
	BlockRxTSP: "RxTSP",
	BlockRxNCO: "RxNCO",
}

func (b Block) String() string {
	if name, ok := blockNames[b]; ok {
		return name
	}
	return fmt.Sprintf("Block(%d)", int(b))
}

// RegisterValue pairs an address with a register value
type RegisterValue struct {
	Addr  uint16
	Value uint16
}

// blockDefaults holds the power-on configuration of every block
var blockDefaults = map[Block][]RegisterValue{
	BlockAFE:  {{0x0082, 0x800B}},
	BlockBIAS: {{0x0084, 0x0400}},
	BlockXBUF: {{0x0085, 0x0001}},
	BlockCGEN: {
		{0x0086, 0x4901}, {0x0087, 0x0400}, {0x0088, 0x0780}, {0x0089, 0x0020},
		{0x008A, 0x0514}, {0x008B, 0x1900}, {0x008C, 0x067B},
	},
	BlockTRF: {
		{0x0100, 0x3409}, {0x0101, 0x7800}, {0x0102, 0x3180}, {0x0103, 0x0A12},
		{0x0104, 0x0088},
	},
	BlockTBB: {
		{0x0105, 0x0007}, {0x0106, 0x318C}, {0x0107, 0x318C}, {0x0108, 0x9426},
		{0x0109, 0x61C1}, {0x010A, 0x104C},
	},
	BlockRFE: {
		{0x010C, 0x88FD}, {0x010D, 0x009E}, {0x010E, 0x2040}, {0x010F, 0x3042},
		{0x0110, 0x0BF4}, {0x0111, 0x0083}, {0x0112, 0x4032}, {0x0113, 0x03DF},
		{0x0114, 0x008D},
	},
	BlockRBB: {
		{0x0115, 0x0009}, {0x0116, 0x8180}, {0x0117, 0x280C}, {0x0118, 0x018C},
		{0x0119, 0x528B}, {0x011A, 0x2E02},
	},
	BlockSX: {
		{0x011C, 0xAD43}, {0x011D, 0x0400}, {0x011E, 0x0780}, {0x011F, 0x3640},
		{0x0120, 0xB9FF}, {0x0121, 0x3404}, {0x0122, 0x033F}, {0x0123, 0x067B},
		{0x0124, 0x0000},
	},
	BlockTxTSP: {
		{0x0200, 0x0081}, {0x0201, 0x07FF}, {0x0202, 0x07FF}, {0x0203, 0x0000},
		{0x0204, 0x0000}, {0x0205, 0x0000}, {0x0206, 0x0000}, {0x0207, 0x0000},
		{0x0208, 0x0000}, {0x0209, 0x0000}, {0x020A, 0x0080}, {0x020B, 0x0000},
		{0x020C, 0x0000},
	},
	BlockTxNCO: ncoDefaults(0x0240),
	BlockRxTSP: {
		{0x0400, 0x0081}, {0x0401, 0x07FF}, {0x0402, 0x07FF}, {0x0403, 0x0000},
		{0x0404, 0x0000}, {0x0405, 0x0000}, {0x0406, 0x0000}, {0x0407, 0x0000},
		{0x0408, 0x0000}, {0x0409, 0x0000}, {0x040A, 0x1000}, {0x040B, 0x0000},
		{0x040C, 0x00F8}, {0x040D, 0x0000},
	},
	BlockRxNCO: ncoDefaults(0x0440),
}

// ncoDefaults covers the NCO mode register and the 16 FCW/PHO pairs
func ncoDefaults(base uint16) []RegisterValue {
	values := []RegisterValue{{base, 0x0020}}
	for addr := base + 1; addr <= base+0x21; addr++ {
		values = append(values, RegisterValue{addr, 0x0000})
	}
	return values
}

// Defaults returns a copy of the factory configuration of a block
func Defaults(b Block) ([]RegisterValue, error) {
	values, ok := blockDefaults[b]
	if !ok {
		return nil, fmt.Errorf("no defaults for block %v", b)
	}
	return append([]RegisterValue(nil), values...), nil
}

// PowerOnValues returns the reset value of every known register, including the
// channel control register which no block owns
func PowerOnValues() []RegisterValue {
	values := []RegisterValue{{RegChannelControl, 0xFFFD}, {RegChipID, 0x3841}}
	for b := BlockAFE; b <= BlockRxNCO; b++ {
		values = append(values, blockDefaults[b]...)
	}
	return values
}

// knownAddresses lists every register snapshotted by BackupMap
func knownAddresses() []uint16 {
	addrs := []uint16{RegChannelControl}
	for b := BlockAFE; b <= BlockRxNCO; b++ {
		for _, rv := range blockDefaults[b] {
			addrs = append(addrs, rv.Addr)
		}
	}
	return addrs
}
