package hca

import (
	"fmt"
	"math"

	"haruki-hca/utils/cricodecs/hcacommon"
)

const (
	tagHCA  = 0x48434100 // "HCA\0"
	tagFmt  = 0x666D7400 // "fmt\0"
	tagComp = 0x636F6D70 // "comp"
	tagDec  = 0x64656300 // "dec\0"
	tagVbr  = 0x76627200 // "vbr\0"
	tagAth  = 0x61746800 // "ath\0"
	tagLoop = 0x6C6F6F70 // "loop"
	tagCiph = 0x63697068 // "ciph"
	tagRva  = 0x72766100 // "rva\0"
	tagComm = 0x636F6D6D // "comm"
)

// IsOurFile checks the 8-byte prolog and returns the declared header size.
func IsOurFile(data []byte) (int, error) {
	if len(data) < 0x08 {
		return 0, fmt.Errorf("%w: %d bytes is too small for a prolog", ErrHeaderInvalid, len(data))
	}

	br := newBitReader(data[:0x08])
	if br.peek(32)&hcaMask != tagHCA {
		return 0, fmt.Errorf("%w: missing HCA signature", ErrHeaderInvalid)
	}

	br.skip(32 + 16)
	headerSize := int(br.read(16))
	if headerSize < 0x08 {
		return 0, fmt.Errorf("%w: header size %d", ErrHeaderInvalid, headerSize)
	}
	return headerSize, nil
}

// HeaderChecksumOK reports whether the header's trailing CRC16 verifies.
// DecodeHeader does not require it.
func HeaderChecksumOK(data []byte) bool {
	headerSize, err := IsOurFile(data)
	if err != nil || headerSize > len(data) {
		return false
	}
	return hcacommon.Checksum(data[:headerSize]) == 0
}

func headerCeil2(a, b uint) uint {
	if b < 1 {
		return 0
	}
	result := a / b
	if a%b != 0 {
		result++
	}
	return result
}

func isSupportedVersion(version uint) bool {
	switch version {
	case hcaVersion101, hcaVersion102, hcaVersion103, hcaVersion200, hcaVersion300:
		return true
	}
	return false
}

func invalidHeader(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrHeaderInvalid, fmt.Sprintf(format, args...))
}

// DecodeHeader parses the stream header at the start of data.
// The key set with SetKey survives; every other field is replaced.
func (hca *ClHCA) DecodeHeader(data []byte) error {
	headerSize, err := IsOurFile(data)
	if err != nil {
		return err
	}
	if len(data) < headerSize {
		return invalidHeader("header needs %d bytes, got %d", headerSize, len(data))
	}

	keycode := hca.keycode
	hca.Clear()
	hca.keycode = keycode

	br := newBitReader(data[:headerSize])

	br.skip(32)
	hca.version = uint(br.read(16))
	hca.headerSize = uint(br.read(16))

	if !isSupportedVersion(hca.version) {
		return invalidHeader("unsupported version 0x%04X", hca.version)
	}

	size := headerSize - 0x08

	if size >= 0x10 && br.peek(32)&hcaMask == tagFmt {
		br.skip(32)
		hca.channels = uint(br.read(8))
		hca.sampleRate = uint(br.read(24))
		hca.frameCount = uint(br.read(32))
		hca.encoderDelay = uint(br.read(16))
		hca.encoderPadding = uint(br.read(16))

		if hca.channels < hcaMinChannels || hca.channels > hcaMaxChannels {
			return invalidHeader("channel count %d", hca.channels)
		}
		if hca.frameCount == 0 {
			return invalidHeader("frame count is zero")
		}
		if hca.sampleRate < hcaMinSampleRate || hca.sampleRate > hcaMaxSampleRate {
			return invalidHeader("sample rate %d", hca.sampleRate)
		}

		size -= 0x10
	} else {
		return invalidHeader("missing fmt chunk")
	}

	if size >= 0x10 && br.peek(32)&hcaMask == tagComp {
		br.skip(32)
		hca.frameSize = uint(br.read(16))
		hca.minResolution = uint(br.read(8))
		hca.maxResolution = uint(br.read(8))
		hca.trackCount = uint(br.read(8))
		hca.channelConfig = uint(br.read(8))
		hca.totalBandCount = uint(br.read(8))
		hca.baseBandCount = uint(br.read(8))
		hca.stereoBandCount = uint(br.read(8))
		hca.bandsPerHfrGroup = uint(br.read(8))
		hca.msStereo = uint(br.read(8))
		hca.reserved = uint(br.read(8))

		size -= 0x10
	} else if size >= 0x0C && br.peek(32)&hcaMask == tagDec {
		br.skip(32)
		hca.frameSize = uint(br.read(16))
		hca.minResolution = uint(br.read(8))
		hca.maxResolution = uint(br.read(8))
		hca.totalBandCount = uint(br.read(8)) + 1
		hca.baseBandCount = uint(br.read(8)) + 1
		hca.trackCount = uint(br.read(4))
		hca.channelConfig = uint(br.read(4))
		hca.stereoType = uint(br.read(8))

		if hca.stereoType == 0 {
			hca.baseBandCount = hca.totalBandCount
		}
		if hca.baseBandCount > hca.totalBandCount {
			return invalidHeader("base band count %d exceeds total %d", hca.baseBandCount, hca.totalBandCount)
		}
		hca.stereoBandCount = hca.totalBandCount - hca.baseBandCount
		hca.bandsPerHfrGroup = 0

		size -= 0x0C
	} else {
		return invalidHeader("missing comp/dec chunk")
	}

	if size >= 0x08 && br.peek(32)&hcaMask == tagVbr {
		br.skip(32)
		hca.vbrMaxFrameSize = uint(br.read(16))
		hca.vbrNoiseLevel = uint(br.read(16))

		if !(hca.frameSize == 0 && hca.vbrMaxFrameSize > 8 && hca.vbrMaxFrameSize <= 0x1FF) {
			return invalidHeader("vbr max frame size %d with frame size %d", hca.vbrMaxFrameSize, hca.frameSize)
		}

		size -= 0x08
	}

	if size >= 0x06 && br.peek(32)&hcaMask == tagAth {
		br.skip(32)
		hca.athType = uint(br.read(16))

		size -= 0x06
	} else if hca.version < hcaVersion200 {
		hca.athType = 1
	} else {
		hca.athType = 0
	}

	if size >= 0x10 && br.peek(32)&hcaMask == tagLoop {
		br.skip(32)
		hca.loopStartFrame = uint(br.read(32))
		hca.loopEndFrame = uint(br.read(32))
		hca.loopStartDelay = uint(br.read(16))
		hca.loopEndPadding = uint(br.read(16))
		hca.loopFlag = true

		if !(hca.loopStartFrame <= hca.loopEndFrame && hca.loopEndFrame < hca.frameCount) {
			return invalidHeader("loop frames %d-%d outside %d frames",
				hca.loopStartFrame, hca.loopEndFrame, hca.frameCount)
		}

		size -= 0x10
	}

	if size >= 0x06 && br.peek(32)&hcaMask == tagCiph {
		br.skip(32)
		hca.ciphType = uint(br.read(16))

		if !(hca.ciphType == hcacommon.CipherNone || hca.ciphType == hcacommon.CipherFixed ||
			hca.ciphType == hcacommon.CipherKeyed) {
			return invalidHeader("cipher type %d", hca.ciphType)
		}

		size -= 0x06
	}

	if size >= 0x08 && br.peek(32)&hcaMask == tagRva {
		br.skip(32)
		hca.rvaVolume = math.Float32frombits(br.read(32))

		size -= 0x08
	} else {
		hca.rvaVolume = 1.0
	}

	if size >= 0x05 && br.peek(32)&hcaMask == tagComm {
		br.skip(32)
		commentLen := int(br.read(8))

		if 0x05+commentLen > size {
			return invalidHeader("comment of %d bytes overruns the header", commentLen)
		}

		hca.comment = make([]byte, commentLen)
		for i := range hca.comment {
			hca.comment[i] = byte(br.read(8))
		}

		size -= 0x05 + commentLen
	}

	// "pad" ends the chunk list; the rest of the header is filler and the CRC.

	if hca.frameSize < hcaMinFrameSize || hca.frameSize > hcaMaxFrameSize {
		return invalidHeader("frame size %d", hca.frameSize)
	}

	if hca.version <= hcaVersion200 {
		if hca.minResolution != 1 || hca.maxResolution != 15 {
			return invalidHeader("resolution %d-%d for version 0x%04X",
				hca.minResolution, hca.maxResolution, hca.version)
		}
	} else if hca.minResolution > hca.maxResolution || hca.maxResolution > 15 {
		return invalidHeader("resolution %d-%d", hca.minResolution, hca.maxResolution)
	}

	if hca.trackCount == 0 {
		hca.trackCount = 1
	}
	if hca.trackCount > hca.channels {
		return invalidHeader("track count %d exceeds %d channels", hca.trackCount, hca.channels)
	}

	if hca.totalBandCount > hcaSamplesPerSubframe ||
		hca.baseBandCount > hcaSamplesPerSubframe ||
		hca.stereoBandCount > hcaSamplesPerSubframe ||
		hca.baseBandCount+hca.stereoBandCount > hcaSamplesPerSubframe ||
		hca.bandsPerHfrGroup > hcaSamplesPerSubframe {
		return invalidHeader("bands total=%d base=%d stereo=%d per-hfr-group=%d",
			hca.totalBandCount, hca.baseBandCount, hca.stereoBandCount, hca.bandsPerHfrGroup)
	}

	if hca.baseBandCount+hca.stereoBandCount <= hca.totalBandCount {
		hca.hfrGroupCount = headerCeil2(
			hca.totalBandCount-hca.baseBandCount-hca.stereoBandCount,
			hca.bandsPerHfrGroup)
	}

	if hca.athCurve, err = hcacommon.AthInit(hca.athType, hca.sampleRate); err != nil {
		return fmt.Errorf("%w: %w", ErrHeaderInvalid, err)
	}
	if hca.cipherTable, err = hcacommon.CipherInit(hca.ciphType, hca.keycode); err != nil {
		return fmt.Errorf("%w: %w", ErrHeaderInvalid, err)
	}

	hca.initChannels()

	hca.random = hcaDefaultRandom

	if hca.msStereo > 0 {
		return invalidHeader("mid/side stereo flag %d is not supported", hca.msStereo)
	}
	if hca.hfrGroupCount > 0 && hca.version == hcaVersion300 {
		return invalidHeader("high-frequency groups are not supported in version 0x%04X", hca.version)
	}

	hca.isValid = true
	return nil
}

// channelLayouts lists the stereo pairs of one track, by channels per track.
// Channels not named in a pair stay discrete.
var channelLayouts = map[uint]func(channelConfig uint) [][2]int{
	2: func(uint) [][2]int { return [][2]int{{0, 1}} },
	3: func(uint) [][2]int { return [][2]int{{0, 1}} },
	4: func(cfg uint) [][2]int {
		if cfg == 0 {
			return [][2]int{{0, 1}, {2, 3}}
		}
		return [][2]int{{0, 1}}
	},
	5: func(cfg uint) [][2]int {
		if cfg <= 2 {
			return [][2]int{{0, 1}, {3, 4}}
		}
		return [][2]int{{0, 1}}
	},
	6: func(uint) [][2]int { return [][2]int{{0, 1}, {4, 5}} },
	7: func(uint) [][2]int { return [][2]int{{0, 1}, {4, 5}} },
	8: func(uint) [][2]int { return [][2]int{{0, 1}, {4, 5}, {6, 7}} },
}

func (hca *ClHCA) initChannels() {
	var channelTypes [hcaMaxChannels]channelType
	channelsPerTrack := hca.channels / hca.trackCount

	if layout, ok := channelLayouts[channelsPerTrack]; ok && hca.stereoBandCount > 0 {
		for track := uint(0); track < hca.trackCount; track++ {
			base := int(track * channelsPerTrack)
			for _, pair := range layout(hca.channelConfig) {
				channelTypes[base+pair[0]] = stereoPrimary
				channelTypes[base+pair[1]] = stereoSecondary
			}
		}
	}

	for i := uint(0); i < hca.channels; i++ {
		ch := &hca.channel[i]
		ch.channelType = channelTypes[i]

		if ch.channelType != stereoSecondary {
			ch.codedCount = hca.baseBandCount + hca.stereoBandCount
		} else {
			ch.codedCount = hca.baseBandCount
		}
	}
}
