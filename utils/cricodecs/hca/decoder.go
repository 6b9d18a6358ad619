package hca

import (
	"fmt"
	"math"

	"haruki-hca/utils/cricodecs/hcacommon"
)

// HCA decoder, a Go rendition of the clHCA frame decoder.
// Decodes CRI's HCA (High Compression Audio), a CBR DCT-based codec.

const (
	hcaVersion101 = 0x0101
	hcaVersion102 = 0x0102
	hcaVersion103 = 0x0103
	hcaVersion200 = 0x0200
	hcaVersion300 = 0x0300

	hcaMinFrameSize = 0x8
	hcaMaxFrameSize = 0xFFFF

	hcaMask               = 0x7F7F7F7F
	hcaSubframes          = 8
	hcaSamplesPerSubframe = 128
	hcaSamplesPerFrame    = hcaSubframes * hcaSamplesPerSubframe
	hcaMdctBits           = 7
	hcaMinChannels        = 1
	hcaMaxChannels        = 16
	hcaMinSampleRate      = 1
	hcaMaxSampleRate      = 0x7FFFFF
	hcaDefaultRandom      = 1
)

// SamplesPerFrame is the number of samples per channel produced by one frame.
const SamplesPerFrame = hcaSamplesPerFrame

type channelType int

const (
	discrete channelType = iota
	stereoPrimary
	stereoSecondary
)

func (t channelType) String() string {
	switch t {
	case stereoPrimary:
		return "stereo-primary"
	case stereoSecondary:
		return "stereo-secondary"
	default:
		return "discrete"
	}
}

type stChannel struct {
	channelType channelType
	codedCount  uint

	intensity    [hcaSubframes]byte
	scaleFactors [hcaSamplesPerSubframe]byte
	resolution   [hcaSamplesPerSubframe]byte
	noises       [hcaSamplesPerSubframe]byte
	noiseCount   uint
	validCount   uint

	gain          [hcaSamplesPerSubframe]float32
	spectra       [hcaSamplesPerSubframe]float32
	temp          [hcaSamplesPerSubframe]float32
	imdctPrevious [hcaSamplesPerSubframe]float32
	wave          [hcaSubframes][hcaSamplesPerSubframe]float32
}

// ClHCA holds the header-derived parameters and per-channel state of one stream.
// A ClHCA must not be used from more than one goroutine at a time.
type ClHCA struct {
	isValid bool

	version          uint
	headerSize       uint
	channels         uint
	sampleRate       uint
	frameCount       uint
	encoderDelay     uint
	encoderPadding   uint
	frameSize        uint
	minResolution    uint
	maxResolution    uint
	trackCount       uint
	channelConfig    uint
	stereoType       uint
	totalBandCount   uint
	baseBandCount    uint
	stereoBandCount  uint
	bandsPerHfrGroup uint
	msStereo         uint
	reserved         uint

	vbrMaxFrameSize uint
	vbrNoiseLevel   uint

	athType uint

	loopStartFrame uint
	loopEndFrame   uint
	loopStartDelay uint
	loopEndPadding uint
	loopFlag       bool

	ciphType uint
	keycode  uint64

	rvaVolume float32

	comment []byte

	hfrGroupCount uint
	athCurve      [hcaSamplesPerSubframe]byte
	cipherTable   hcacommon.CipherTable
	random        uint32
	channel       [hcaMaxChannels]stChannel
}

// NewClHCA returns an empty decoder; call DecodeHeader before decoding frames.
func NewClHCA() *ClHCA {
	hca := &ClHCA{}
	hca.Clear()
	return hca
}

// Open parses the stream header at the start of data and returns a ready decoder.
func Open(data []byte) (*ClHCA, error) {
	hca := NewClHCA()
	if err := hca.DecodeHeader(data); err != nil {
		return nil, err
	}
	return hca, nil
}

// Clear drops all stream state, keeping nothing from a previous header.
func (hca *ClHCA) Clear() {
	*hca = ClHCA{}
}

// SetKey sets the decryption key and rebuilds the cipher table when a header is loaded.
func (hca *ClHCA) SetKey(keycode uint64) {
	hca.keycode = keycode
	if hca.isValid {
		// the cipher type was validated by DecodeHeader
		hca.cipherTable, _ = hcacommon.CipherInit(hca.ciphType, hca.keycode)
	}
}

// DecodeReset clears the overlap-add state and the noise seed, for seeking and looping.
func (hca *ClHCA) DecodeReset() {
	if !hca.isValid {
		return
	}

	hca.random = hcaDefaultRandom

	for i := uint(0); i < hca.channels; i++ {
		hca.channel[i].imdctPrevious = [hcaSamplesPerSubframe]float32{}
	}
}

// Channels returns the channel count of the loaded stream.
func (hca *ClHCA) Channels() int {
	return int(hca.channels)
}

// FrameSize returns the byte size of one encoded frame.
func (hca *ClHCA) FrameSize() int {
	return int(hca.frameSize)
}

func pcm16(f float32) int16 {
	s := int32(math.Round(float64(f) * 32768))
	if s > 32767 {
		s = 32767
	} else if s < -32767 {
		s = -32767
	}
	return int16(s)
}

// ReadSamples16 writes the last decoded frame as interleaved 16-bit PCM.
// dst must hold SamplesPerFrame*Channels() values.
func (hca *ClHCA) ReadSamples16(dst []int16) error {
	if need := hcaSamplesPerFrame * int(hca.channels); len(dst) < need {
		return fmt.Errorf("%w: need %d samples, got %d", ErrShortBuffer, need, len(dst))
	}

	idx := 0
	for i := 0; i < hcaSubframes; i++ {
		for j := 0; j < hcaSamplesPerSubframe; j++ {
			for k := uint(0); k < hca.channels; k++ {
				dst[idx] = pcm16(hca.channel[k].wave[i][j])
				idx++
			}
		}
	}
	return nil
}

// ReadSamples16Planar writes the last decoded frame as one 16-bit PCM slice per channel.
func (hca *ClHCA) ReadSamples16Planar(dst [][]int16) error {
	if len(dst) < int(hca.channels) {
		return fmt.Errorf("%w: need %d channels, got %d", ErrShortBuffer, hca.channels, len(dst))
	}

	for k := uint(0); k < hca.channels; k++ {
		if len(dst[k]) < hcaSamplesPerFrame {
			return fmt.Errorf("%w: channel %d holds %d samples", ErrShortBuffer, k, len(dst[k]))
		}
		for i := 0; i < hcaSubframes; i++ {
			for j := 0; j < hcaSamplesPerSubframe; j++ {
				dst[k][i*hcaSamplesPerSubframe+j] = pcm16(hca.channel[k].wave[i][j])
			}
		}
	}
	return nil
}

// ReadSamples writes the last decoded frame as interleaved float32 samples.
func (hca *ClHCA) ReadSamples(dst []float32) error {
	if need := hcaSamplesPerFrame * int(hca.channels); len(dst) < need {
		return fmt.Errorf("%w: need %d samples, got %d", ErrShortBuffer, need, len(dst))
	}

	idx := 0
	for i := 0; i < hcaSubframes; i++ {
		for j := 0; j < hcaSamplesPerSubframe; j++ {
			for k := uint(0); k < hca.channels; k++ {
				dst[idx] = hca.channel[k].wave[i][j]
				idx++
			}
		}
	}
	return nil
}
