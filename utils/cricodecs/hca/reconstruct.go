package hca

// msStereoRatio is 1/sqrt(2) rounded to float32.
const msStereoRatio = float32(0.70710678118654752)

// nextRandom advances the noise generator one step (mod 2^32).
func nextRandom(r uint32) uint32 {
	return 0x343FD*r + 0x269EC3
}

// reconstructNoise fills resolution-0 coefficients with scaled copies of random valid ones.
func reconstructNoise(ch *stChannel, minResolution, msStereo uint, random *uint32) {
	if minResolution > 0 {
		return
	}
	if ch.validCount == 0 || ch.noiseCount == 0 {
		return
	}
	if msStereo != 0 && ch.channelType == stereoPrimary {
		return
	}

	r := *random

	for i := uint(0); i < ch.noiseCount; i++ {
		r = nextRandom(r)

		randomIndex := hcaSamplesPerSubframe - ch.validCount + ((uint(r&0x7FFF) * ch.validCount) >> 15)

		noiseIndex := ch.noises[i]
		validIndex := ch.noises[randomIndex]

		scIndex := int(ch.scaleFactors[noiseIndex]) - int(ch.scaleFactors[validIndex]) + 62
		if scIndex < 0 {
			scIndex = 0
		}

		ch.spectra[noiseIndex] = scaleConversionTable[scIndex] * ch.spectra[validIndex]
	}

	*random = r
}

// hfrGroupLimit is the number of groups whose source band steps down as the target steps up.
func hfrGroupLimit(hfrGroupCount, version uint) uint {
	if version <= hcaVersion200 {
		return hfrGroupCount
	}
	return hfrGroupCount >> 1
}

// reconstructHighFrequency mirrors the coded bands above the stereo bands.
func reconstructHighFrequency(ch *stChannel, hfrGroupCount, bandsPerHfrGroup,
	stereoBandCount, baseBandCount, totalBandCount, version uint) {
	if bandsPerHfrGroup == 0 {
		return
	}
	if ch.channelType == stereoSecondary {
		return
	}

	groupLimit := hfrGroupLimit(hfrGroupCount, version)
	startBand := int(stereoBandCount + baseBandCount)
	highband := startBand
	lowband := startBand - 1
	hfrScales := ch.scaleFactors[hcaSamplesPerSubframe-hfrGroupCount:]

	for group := uint(0); group < hfrGroupCount; group++ {
		lowbandSub := 1
		if group >= groupLimit {
			lowbandSub = 0
		}

		for i := uint(0); i < bandsPerHfrGroup; i++ {
			if highband >= int(totalBandCount) || lowband < 0 {
				break
			}

			scIndex := int(hfrScales[group])
			if scIndex < 0 {
				scIndex = 0
			}

			ch.spectra[highband] = scaleConversionTable[scIndex] * ch.spectra[lowband]

			highband++
			lowband -= lowbandSub
		}
	}

	if highband > 0 {
		ch.spectra[highband-1] = 0
	}
}

// applyIntensityStereo weights the pair's stereo bands by the subframe's intensity ratio.
func applyIntensityStereo(pair []stChannel, subframe int, baseBandCount, totalBandCount uint) {
	if pair[0].channelType != stereoPrimary {
		return
	}

	ratioL := intensityRatioTable[pair[1].intensity[subframe]]
	ratioR := 2.0 - ratioL
	spL := &pair[0].spectra
	spR := &pair[1].spectra

	for band := baseBandCount; band < totalBandCount; band++ {
		coefL := spL[band] * ratioL
		coefR := spR[band] * ratioR
		spL[band] = coefL
		spR[band] = coefR
	}
}

// applyMsStereo converts the pair's stereo bands from mid/side to left/right.
func applyMsStereo(pair []stChannel, msStereo uint, baseBandCount, totalBandCount uint) {
	if msStereo != 0 {
		return
	}
	if pair[0].channelType != stereoPrimary {
		return
	}

	spL := &pair[0].spectra
	spR := &pair[1].spectra

	for band := baseBandCount; band < totalBandCount; band++ {
		coefL := (spL[band] + spR[band]) * msStereoRatio
		coefR := (spL[band] - spR[band]) * msStereoRatio
		spL[band] = coefL
		spR[band] = coefR
	}
}
