package hcacommon

import (
	"errors"
	"fmt"
)

var ErrInvalidAthType = errors.New("invalid ATH type")

// AthCurveSize is the number of spectral coefficients covered by the curve.
const AthCurveSize = 128

// AthInit returns the per-coefficient noise-masking threshold for a stream.
// Type 0 disables masking; type 1 samples the hearing-threshold curve at the stream's sample rate.
func AthInit(athType uint, sampleRate uint) ([AthCurveSize]byte, error) {
	var curve [AthCurveSize]byte

	switch athType {
	case 0:
	case 1:
		athInit1(&curve, sampleRate)
	default:
		return curve, fmt.Errorf("%w: %d", ErrInvalidAthType, athType)
	}
	return curve, nil
}

func athInit1(curve *[AthCurveSize]byte, sampleRate uint) {
	acc := uint(0)
	for i := range curve {
		acc += sampleRate
		index := acc >> 13

		if index >= 654 {
			for j := i; j < AthCurveSize; j++ {
				curve[j] = 0xFF
			}
			return
		}
		curve[i] = athBaseCurve[index]
	}
}
