package hca

import (
	"fmt"

	"haruki-hca/utils/cricodecs/hcacommon"
)

// DecodeBlock decodes one frame into the channel sample buffers.
// data is decrypted in place; only the first FrameSize() bytes are used.
func (hca *ClHCA) DecodeBlock(data []byte) error {
	br, err := hca.decodeBlockUnpack(data)
	if err != nil {
		return err
	}
	hca.decodeBlockTransform(br)
	return nil
}

// decodeBlockUnpack checks and decrypts a frame and unpacks the per-channel side info.
// The returned reader is positioned at the first coefficient code.
func (hca *ClHCA) decodeBlockUnpack(data []byte) (*bitReader, error) {
	if !hca.isValid {
		return nil, ErrNotInitialized
	}
	if len(data) < int(hca.frameSize) {
		return nil, fmt.Errorf("%w: frame needs %d bytes, got %d", ErrShortBuffer, hca.frameSize, len(data))
	}

	data = data[:hca.frameSize]
	br := newBitReader(data)

	if sync := br.read(16); sync != 0xFFFF {
		return nil, fmt.Errorf("%w: got 0x%04X", ErrSync, sync)
	}

	if sum := hcacommon.Checksum(data); sum != 0 {
		return nil, fmt.Errorf("%w: residue 0x%04X", ErrChecksum, sum)
	}

	hcacommon.CipherDecrypt(&hca.cipherTable, data)

	frameAcceptableNoiseLevel := int(br.read(9))
	frameEvaluationBoundary := int(br.read(7))

	packedNoiseLevel := (frameAcceptableNoiseLevel << 8) - frameEvaluationBoundary

	for i := uint(0); i < hca.channels; i++ {
		ch := &hca.channel[i]

		if err := unpackScaleFactors(ch, br, hca.hfrGroupCount, hca.version); err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}

		if err := unpackIntensity(ch, br, hca.hfrGroupCount, hca.version); err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}

		calculateResolution(ch, packedNoiseLevel, &hca.athCurve, hca.minResolution, hca.maxResolution)

		calculateGain(ch)
	}

	return br, nil
}

// decodeBlockTransform reads and reconstructs each subframe in turn, ending in the IMDCT.
func (hca *ClHCA) decodeBlockTransform(br *bitReader) {
	channels := hca.channel[:hca.channels]

	for subframe := 0; subframe < hcaSubframes; subframe++ {
		for i := range channels {
			dequantizeCoefficients(&channels[i], br)
		}

		for i := range channels {
			reconstructNoise(&channels[i], hca.minResolution, hca.msStereo, &hca.random)

			reconstructHighFrequency(&channels[i], hca.hfrGroupCount, hca.bandsPerHfrGroup,
				hca.stereoBandCount, hca.baseBandCount, hca.totalBandCount, hca.version)
		}

		if hca.stereoBandCount > 0 {
			for i := 0; i+1 < len(channels); i++ {
				applyIntensityStereo(channels[i:i+2], subframe, hca.baseBandCount, hca.totalBandCount)

				applyMsStereo(channels[i:i+2], hca.msStereo, hca.baseBandCount, hca.totalBandCount)
			}
		}

		for i := range channels {
			imdctTransform(&channels[i], subframe)
		}
	}
}
