package hca

import "fmt"

// unpackScaleFactors reads the per-coefficient scale factors of one channel.
func unpackScaleFactors(ch *stChannel, br *bitReader, hfrGroupCount uint, version uint) error {
	csCount := ch.codedCount
	var extraCount uint

	deltaBits := int(br.read(3))

	if ch.channelType == stereoSecondary || hfrGroupCount == 0 || version <= hcaVersion200 {
		extraCount = 0
	} else {
		extraCount = hfrGroupCount
		csCount += extraCount

		if csCount > hcaSamplesPerSubframe {
			return fmt.Errorf("%w: %d coded scales", ErrInvalidScaleFactor, csCount)
		}
	}

	switch {
	case deltaBits >= 6:
		for i := uint(0); i < csCount; i++ {
			ch.scaleFactors[i] = byte(br.read(6))
		}
	case deltaBits > 0:
		expectedDelta := byte(1<<deltaBits - 1)
		value := byte(br.read(6))

		ch.scaleFactors[0] = value
		for i := uint(1); i < csCount; i++ {
			delta := byte(br.read(deltaBits))

			if delta == expectedDelta {
				value = byte(br.read(6))
			} else {
				test := int(value) + int(delta) - int(expectedDelta>>1)
				if test < 0 || test >= 64 {
					return fmt.Errorf("%w: delta %d from %d at coefficient %d", ErrInvalidScaleFactor, delta, value, i)
				}

				value = (value - expectedDelta>>1 + delta) & 0x3F
			}
			ch.scaleFactors[i] = value
		}
	default:
		ch.scaleFactors = [hcaSamplesPerSubframe]byte{}
	}

	// v3.0 carries the HFR scales after the coded scales
	for i := uint(0); i < extraCount && csCount-i < hcaSamplesPerSubframe; i++ {
		ch.scaleFactors[hcaSamplesPerSubframe-1-i] = ch.scaleFactors[csCount-i]
	}

	return nil
}

// unpackIntensity reads the stereo ratios of a secondary channel,
// or the HFR scales of any other channel in streams up to v2.0.
func unpackIntensity(ch *stChannel, br *bitReader, hfrGroupCount uint, version uint) error {
	if ch.channelType != stereoSecondary {
		if version <= hcaVersion200 {
			hfrScales := ch.scaleFactors[hcaSamplesPerSubframe-hfrGroupCount:]
			for i := range hfrScales {
				hfrScales[i] = byte(br.read(6))
			}
		}
		return nil
	}

	value := byte(br.peek(4))

	if version <= hcaVersion200 {
		ch.intensity[0] = value
		if value < 15 {
			br.skip(4)
			for i := 1; i < hcaSubframes; i++ {
				ch.intensity[i] = byte(br.read(4))
			}
		}
		return nil
	}

	br.skip(4)
	if value >= 15 {
		for i := range ch.intensity {
			ch.intensity[i] = 7
		}
		return nil
	}

	deltaBits := int(br.read(2))

	ch.intensity[0] = value
	if deltaBits == 3 {
		for i := 1; i < hcaSubframes; i++ {
			ch.intensity[i] = byte(br.read(4))
		}
		return nil
	}

	bmax := byte(2<<deltaBits - 1)
	bits := deltaBits + 1

	for i := 1; i < hcaSubframes; i++ {
		delta := byte(br.read(bits))
		if delta == bmax {
			value = byte(br.read(4))
		} else {
			value = value - bmax>>1 + delta
			if value > 15 {
				return fmt.Errorf("%w: %d at subframe %d", ErrInvalidIntensity, value, i)
			}
		}

		ch.intensity[i] = value
	}

	return nil
}

// calculateResolution derives each coefficient's code width and splits the
// coefficients into noise (resolution 0) and valid partitions.
func calculateResolution(ch *stChannel, packedNoiseLevel int, athCurve *[hcaSamplesPerSubframe]byte,
	minResolution, maxResolution uint) {
	crCount := ch.codedCount
	noiseCount := uint(0)
	validCount := uint(0)

	for i := uint(0); i < crCount; i++ {
		newResolution := uint(0)
		scalefactor := ch.scaleFactors[i]

		if scalefactor > 0 {
			noiseLevel := int(athCurve[i]) + ((packedNoiseLevel + int(i)) >> 8)
			curvePosition := noiseLevel + 1 - ((5 * int(scalefactor)) >> 1)

			switch {
			case curvePosition < 0:
				newResolution = 15
			case curvePosition <= 65:
				newResolution = uint(invertTable[curvePosition])
			default:
				newResolution = 0
			}

			if newResolution > maxResolution {
				newResolution = maxResolution
			} else if newResolution < minResolution {
				newResolution = minResolution
			}

			if newResolution < 1 {
				ch.noises[noiseCount] = byte(i)
				noiseCount++
			} else {
				ch.noises[hcaSamplesPerSubframe-1-validCount] = byte(i)
				validCount++
			}
		}
		ch.resolution[i] = byte(newResolution)
	}

	ch.noiseCount = noiseCount
	ch.validCount = validCount

	for i := crCount; i < hcaSamplesPerSubframe; i++ {
		ch.resolution[i] = 0
	}
}

func calculateGain(ch *stChannel) {
	for i := uint(0); i < ch.codedCount; i++ {
		ch.gain[i] = scalingTable[ch.scaleFactors[i]] * rangeTable[ch.resolution[i]]
	}
}

// dequantizeCoefficients reads one subframe of coded coefficients into ch.spectra.
func dequantizeCoefficients(ch *stChannel, br *bitReader) {
	ccCount := ch.codedCount

	for i := uint(0); i < ccCount; i++ {
		var qc float32
		resolution := ch.resolution[i]
		bits := int(maxBitTable[resolution])
		code := br.read(bits)

		if resolution > 7 {
			// sign-magnitude; a zero magnitude is one bit shorter
			signedCode := (1 - int(code&1)<<1) * int(code>>1)
			if signedCode == 0 {
				br.skip(-1)
			}
			qc = float32(signedCode)
		} else {
			index := uint(resolution)<<4 + uint(code)
			br.skip(int(readBitTable[index]) - bits)
			qc = readValTable[index]
		}

		ch.spectra[i] = ch.gain[i] * qc
	}

	for i := ccCount; i < hcaSamplesPerSubframe; i++ {
		ch.spectra[i] = 0
	}
}
