package hca

// imdctTransform turns ch.spectra into one subframe of samples in ch.wave and
// carries the second half of the windowed output in ch.imdctPrevious.
// ch.spectra and ch.temp alternate as source and destination between stages.
// Products are rounded explicitly so no platform fuses them into FMA.
func imdctTransform(ch *stChannel, subframe int) {
	const size = hcaSamplesPerSubframe
	const half = hcaSamplesPerSubframe / 2

	bufs := [2]*[hcaSamplesPerSubframe]float32{&ch.spectra, &ch.temp}
	cur := 0

	count1 := 1
	count2 := half
	for i := 0; i < hcaMdctBits; i++ {
		src, dst := bufs[cur], bufs[cur^1]
		s := 0
		d1 := 0
		d2 := count2

		for j := 0; j < count1; j++ {
			for k := 0; k < count2; k++ {
				a := src[s]
				b := src[s+1]
				s += 2
				dst[d1] = a + b
				dst[d2] = a - b
				d1++
				d2++
			}
			d1 += count2
			d2 += count2
		}

		cur ^= 1
		count1 <<= 1
		count2 >>= 1
	}

	count1 = half
	count2 = 1
	for i := 0; i < hcaMdctBits; i++ {
		src, dst := bufs[cur], bufs[cur^1]
		sinTable := &imdctSinTable[i]
		cosTable := &imdctCosTable[i]
		t := 0
		s1 := 0
		s2 := count2
		d1 := 0
		d2 := count2*2 - 1

		for j := 0; j < count1; j++ {
			for k := 0; k < count2; k++ {
				a := src[s1]
				b := src[s2]
				sin := sinTable[t]
				cos := cosTable[t]
				s1++
				s2++
				t++
				dst[d1] = float32(a*sin) - float32(b*cos)
				dst[d2] = float32(a*cos) + float32(b*sin)
				d1++
				d2--
			}
			s1 += count2
			s2 += count2
			d1 += count2
			d2 += count2 * 3
		}

		cur ^= 1
		count1 >>= 1
		count2 <<= 1
	}

	dct := bufs[cur]
	prev := &ch.imdctPrevious
	wave := &ch.wave[subframe]
	for i := 0; i < half; i++ {
		wave[i] = float32(imdctWindow[i]*dct[i+half]) + prev[i]
		wave[i+half] = float32(imdctWindow[i+half]*dct[size-1-i]) - prev[i+half]
		prev[i] = imdctWindow[size-1-i] * dct[half-1-i]
		prev[i+half] = imdctWindow[half-1-i] * dct[i]
	}
}
