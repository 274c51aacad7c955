package calib

import "github.com/linht/lms7cal/lms7"

// firHalf is the first half of the symmetric 120-tap low-pass loaded into
// Rx GFIR3 while calibrating, isolating the test tone from its image
var firHalf = [60]int16{
	8, 4, 0, -6, -11, -16, -20, -22, -22, -20,
	-14, -5, 6, 20, 34, 46, 56, 61, 58, 48,
	29, 3, -29, -63, -96, -123, -140, -142, -128, -94,
	-44, 20, 93, 167, 232, 280, 302, 291, 244, 159,
	41, -102, -258, -409, -539, -628, -658, -614, -486, -269,
	34, 413, 852, 1328, 1814, 2280, 2697, 3038, 3277, 3401,
}

// calibrationFIR returns the full coefficient set
func calibrationFIR() []int16 {
	n := len(firHalf)
	coefs := make([]int16, 2*n)
	for i, v := range firHalf {
		coefs[i] = v
		coefs[2*n-1-i] = v
	}
	return coefs
}

// loadCalibrationFIR programs Rx GFIR3 for a CGEN multiplier of cgenMultiplier x 46.08 MHz
func (c *Calibrator) loadCalibrationFIR(cgenMultiplier int) error {
	if err := c.apply(
		set(lms7.GFIR3_L_RXTSP, 7),
		set(lms7.GFIR3_N_RXTSP, 4*cgenMultiplier-1),
	); err != nil {
		return err
	}
	return c.chip.SetGFIRCoefficients(lms7.Rx, 3, calibrationFIR())
}
