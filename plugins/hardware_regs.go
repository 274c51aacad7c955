package plugins

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/linht/lms7cal/lms7"
)

// maxRegisterAddr is the top of the 15-bit SPI address space
const maxRegisterAddr = 0x7FFF

// ParseRegisterAddr accepts decimal or 0x-prefixed hex
func ParseRegisterAddr(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil || v > maxRegisterAddr {
		return 0, fmt.Errorf("invalid register address %q", s)
	}
	return uint16(v), nil
}

// ParseBlock finds a register block by name, ignoring case
func ParseBlock(name string) (lms7.Block, error) {
	for b := lms7.BlockAFE; b <= lms7.BlockRxNCO; b++ {
		if strings.EqualFold(b.String(), name) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown block %q", name)
}

// ParseChannel accepts A, B or AB
func ParseChannel(name string) (lms7.Channel, error) {
	switch strings.ToUpper(name) {
	case "A":
		return lms7.ChannelA, nil
	case "B":
		return lms7.ChannelB, nil
	case "AB":
		return lms7.ChannelAB, nil
	}
	return 0, fmt.Errorf("unknown channel %q", name)
}

// KnownRegisters lists every register with a power-on value, in address order
func KnownRegisters() []uint16 {
	seen := make(map[uint16]bool)
	var addrs []uint16
	for _, rv := range lms7.PowerOnValues() {
		if !seen[rv.Addr] {
			seen[rv.Addr] = true
			addrs = append(addrs, rv.Addr)
		}
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// FieldsAt returns the named fields of one register
func FieldsAt(addr uint16) []lms7.Param {
	var fields []lms7.Param
	for _, p := range lms7.Params() {
		if p.Addr == addr {
			fields = append(fields, p)
		}
	}
	return fields
}

// RegisterInfo formats a register and its decoded fields for JSON
func RegisterInfo(addr, value uint16) map[string]interface{} {
	fields := make(map[string]int)
	for _, p := range FieldsAt(addr) {
		fields[p.Name] = p.Decode((value & p.Mask()) >> p.LSB)
	}
	info := map[string]interface{}{
		"address":   fmt.Sprintf("0x%04X", addr),
		"value":     fmt.Sprintf("0x%04X", value),
		"value_dec": value,
		"shared":    lms7.Shared(addr),
	}
	if len(fields) > 0 {
		info["fields"] = fields
	}
	return info
}

// FieldInfo describes a field layout for JSON
func FieldInfo(p lms7.Param) map[string]interface{} {
	return map[string]interface{}{
		"name":    p.Name,
		"address": fmt.Sprintf("0x%04X", p.Addr),
		"msb":     p.MSB,
		"lsb":     p.LSB,
		"min":     p.Min(),
		"max":     p.Max(),
		"signed":  p.Signed,
	}
}
