package lms7

import "fmt"

// Encoding selects how a field value is stored in its register bits
type Encoding uint8

const (
	// TwosComplement stores signed values in two's complement, unsigned values as-is
	TwosComplement Encoding = iota
	// SignMagnitude stores the sign in the top bit and the magnitude below it
	SignMagnitude
)

// Param describes a bit-field inside a 16-bit register.
// Params are plain values and carry no chip state.
type Param struct {
	Name   string
	Addr   uint16
	MSB    uint8
	LSB    uint8
	Signed bool
	Enc    Encoding
}

// Width returns the field width in bits
func (p Param) Width() uint8 {
	return p.MSB - p.LSB + 1
}

// Mask returns the field mask positioned inside the register
func (p Param) Mask() uint16 {
	return uint16(((uint32(1) << p.Width()) - 1) << p.LSB)
}

// Min returns the smallest representable field value
func (p Param) Min() int {
	switch {
	case p.Enc == SignMagnitude:
		return -(1<<(p.Width()-1) - 1)
	case p.Signed:
		return -(1 << (p.Width() - 1))
	}
	return 0
}

// Max returns the largest representable field value
func (p Param) Max() int {
	if p.Enc == SignMagnitude || p.Signed {
		return 1<<(p.Width()-1) - 1
	}
	return 1<<p.Width() - 1
}

// Clamp limits v to the representable range of the field
func (p Param) Clamp(v int) int {
	if v < p.Min() {
		return p.Min()
	}
	if v > p.Max() {
		return p.Max()
	}
	return v
}

// Encode converts a field value into unshifted register bits, truncated to the field width
func (p Param) Encode(v int) uint16 {
	width := p.Width()
	if p.Enc == SignMagnitude {
		magMask := uint16(1)<<(width-1) - 1
		if v < 0 {
			return uint16(1)<<(width-1) | uint16(-v)&magMask
		}
		return uint16(v) & magMask
	}
	return uint16(uint32(v) & ((uint32(1) << width) - 1))
}

// Decode converts unshifted register bits into a field value
func (p Param) Decode(raw uint16) int {
	width := p.Width()
	raw &= uint16((uint32(1) << width) - 1)
	switch {
	case p.Enc == SignMagnitude:
		mag := int(raw & (uint16(1)<<(width-1) - 1))
		if raw&(uint16(1)<<(width-1)) != 0 {
			return -mag
		}
		return mag
	case p.Signed && raw&(uint16(1)<<(width-1)) != 0:
		return int(raw) - 1<<width
	}
	return int(raw)
}

// insert places v into reg, leaving the bits outside the field untouched
func (p Param) insert(reg uint16, v int) uint16 {
	return reg&^p.Mask() | p.Encode(v)<<p.LSB&p.Mask()
}

// extract reads the field value out of a full register value
func (p Param) extract(reg uint16) int {
	return p.Decode((reg & p.Mask()) >> p.LSB)
}

func (p Param) String() string {
	if p.MSB == p.LSB {
		return fmt.Sprintf("%s[0x%04X:%d]", p.Name, p.Addr, p.LSB)
	}
	return fmt.Sprintf("%s[0x%04X:%d:%d]", p.Name, p.Addr, p.MSB, p.LSB)
}
