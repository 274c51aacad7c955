package lms7

import "fmt"

var gfirBases = map[Direction][3]uint16{
	Tx: {0x0280, 0x02C0, 0x0300},
	Rx: {0x0480, 0x04C0, 0x0500},
}

// GFIRTaps returns the number of coefficient registers of GFIR 1, 2 or 3
func GFIRTaps(filter int) int {
	if filter == 3 {
		return 120
	}
	return 40
}

// GFIRAddr returns the register holding coefficient tap of GFIR filter (1..3).
// Coefficients are stored in banks of 40 spaced 0x40 apart.
func GFIRAddr(dir Direction, filter, tap int) (uint16, error) {
	if filter < 1 || filter > 3 {
		return 0, fmt.Errorf("invalid GFIR index %d", filter)
	}
	if tap < 0 || tap >= GFIRTaps(filter) {
		return 0, fmt.Errorf("GFIR%d tap %d out of range", filter, tap)
	}
	base := gfirBases[dir][filter-1]
	return base + uint16(0x40*(tap/40)+tap%40), nil
}

func gfirAddrs(dir Direction, filter, n int) ([]uint16, error) {
	addrs := make([]uint16, n)
	for i := range addrs {
		addr, err := GFIRAddr(dir, filter, i)
		if err != nil {
			return nil, err
		}
		addrs[i] = addr
	}
	return addrs, nil
}

// SetGFIRCoefficients loads coefficients starting at tap 0
func (c *Chip) SetGFIRCoefficients(dir Direction, filter int, coefs []int16) error {
	addrs, err := gfirAddrs(dir, filter, len(coefs))
	if err != nil {
		return err
	}
	values := make([]uint16, len(coefs))
	for i, v := range coefs {
		values[i] = uint16(v)
	}
	if err := c.WriteBatch(addrs, values); err != nil {
		return fmt.Errorf("failed to load %s GFIR%d: %w", dir, filter, err)
	}
	return nil
}

// GFIRCoefficients reads the first n coefficients of a filter
func (c *Chip) GFIRCoefficients(dir Direction, filter, n int) ([]int16, error) {
	addrs, err := gfirAddrs(dir, filter, n)
	if err != nil {
		return nil, err
	}
	values, err := c.ReadBatch(addrs)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s GFIR%d: %w", dir, filter, err)
	}
	coefs := make([]int16, n)
	for i, v := range values {
		coefs[i] = int16(v)
	}
	return coefs, nil
}

// LoadDCRegIQ loads the test signal generator DC levels: DC_REG is written
// and latched into I, then rewritten and latched into Q.
func (c *Chip) LoadDCRegIQ(dir Direction, i, q uint16) error {
	reg, loadI, loadQ := DC_REG_TXTSP, TSGDCLDI_TXTSP, TSGDCLDQ_TXTSP
	if dir == Rx {
		reg, loadI, loadQ = DC_REG_RXTSP, TSGDCLDI_RXTSP, TSGDCLDQ_RXTSP
	}
	steps := []struct {
		p Param
		v int
	}{
		{reg, int(i)}, {loadI, 0}, {loadI, 1}, {loadI, 0},
		{reg, int(q)}, {loadQ, 0}, {loadQ, 1}, {loadQ, 0},
	}
	for _, s := range steps {
		if err := c.WriteField(s.p, s.v); err != nil {
			return fmt.Errorf("failed to load %s DC_REG: %w", dir, err)
		}
	}
	return nil
}
