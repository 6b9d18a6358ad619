package hca

// TestBlock decodes a frame and scores how plausible the output is, for key testing.
// It returns -1 for a frame that fails to decode, 0 for a blank frame and a positive
// score otherwise, where 1 is the best and larger values mean more clipping.
func (hca *ClHCA) TestBlock(data []byte) int {
	if len(data) < int(hca.frameSize) {
		return -1
	}
	data = data[:hca.frameSize]
	if isEmptyBlock(data) {
		return 0
	}

	br, err := hca.decodeBlockUnpack(data)
	if err != nil {
		return -1
	}
	hca.decodeBlockTransform(br)

	if !validateBitreader(data, br.bit) {
		return -1
	}

	return hca.evaluateDecodeQuality()
}

func isEmptyBlock(data []byte) bool {
	for i := 0x02; i < len(data)-0x02; i++ {
		if data[i] != 0 {
			return false
		}
	}
	return true
}

// validateBitreader checks that decoding stopped inside the frame and that
// only zero padding follows the last coefficient.
func validateBitreader(data []byte, bits int) bool {
	frameSize := len(data)
	if bits+14 > frameSize*8 {
		return false
	}

	byteStart := (bits + 7) / 8
	for i := byteStart; i < frameSize-0x02; i++ {
		if data[i] != 0 {
			return false
		}
	}
	return true
}

func (hca *ClHCA) evaluateDecodeQuality() int {
	clips := 0
	blanks := 0
	var channelBlanks [hcaMaxChannels]int

	for ch := uint(0); ch < hca.channels; ch++ {
		for sf := 0; sf < hcaSubframes; sf++ {
			for _, fsample := range hca.channel[ch].wave[sf] {
				if fsample > 1.0 || fsample < -1.0 {
					clips++
					continue
				}
				psample := int32(fsample * 32768)
				if psample == 0 || psample == -1 {
					blanks++
					channelBlanks[ch]++
				}
			}
		}
	}

	return calculateScore(clips, blanks, channelBlanks[:], hcaSamplesPerFrame, hca.channels)
}

func calculateScore(clips, blanks int, channelBlanks []int, frameSamples int, channels uint) int {
	if clips == 1 {
		clips++
	}
	if clips > 1 {
		return clips
	}

	if blanks == int(channels)*frameSamples {
		return 0
	}

	// a silent left channel with a live right one points to a wrong key
	if channels >= 2 && channelBlanks[0] == frameSamples && channelBlanks[1] != frameSamples {
		return 3
	}

	return 1
}
