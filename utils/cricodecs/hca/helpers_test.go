package hca

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"haruki-hca/utils/cricodecs/hcacommon"
)

// bitWriter is the MSB-first counterpart of bitReader.
type bitWriter struct {
	buf []byte
	bit int
}

func (w *bitWriter) write(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.bit>>3 >= len(w.buf) {
			w.buf = append(w.buf, 0)
		}
		if v>>uint(i)&1 != 0 {
			w.buf[w.bit>>3] |= 0x80 >> uint(w.bit&7)
		}
		w.bit++
	}
}

func (w *bitWriter) bytes() []byte {
	return w.buf
}

// testHeader is a synthetic stream header. Zero-valued optional chunks are omitted.
type testHeader struct {
	version      uint16
	channels     byte
	sampleRate   uint32
	frameCount   uint32
	delay        uint16
	padding      uint16
	frameSize    uint16
	minRes       byte
	maxRes       byte
	tracks       byte
	channelCfg   byte
	totalBands   byte
	baseBands    byte
	stereoBands  byte
	bandsPerHfr  byte
	msStereo     byte
	useDec       bool
	decStereo    byte
	vbr          bool
	ath          *uint16
	loop         *[4]uint32
	ciph         *uint16
	rva          *float32
	comment      []byte
	obfuscateTag bool
}

func u16p(v uint16) *uint16 { return &v }

// monoHeader is a one-channel v2.0 stream whose frames carry no HFR or stereo bands.
func monoHeader(frameSize uint16, frames uint32) testHeader {
	return testHeader{
		version:    hcaVersion200,
		channels:   1,
		sampleRate: 44100,
		frameCount: frames,
		frameSize:  frameSize,
		minRes:     1,
		maxRes:     15,
		tracks:     1,
		totalBands: 128,
		baseBands:  128,
	}
}

func (h testHeader) tag(s string) []byte {
	b := []byte(s)
	if h.obfuscateTag {
		for i := range b {
			b[i] |= 0x80
		}
	}
	return b
}

func (h testHeader) build(t *testing.T) []byte {
	t.Helper()

	var body bytes.Buffer
	put := func(v any) {
		if err := binary.Write(&body, binary.BigEndian, v); err != nil {
			t.Fatalf("binary.Write() error = %v", err)
		}
	}

	body.Write(h.tag("fmt\x00"))
	put(uint32(h.channels)<<24 | h.sampleRate&0xFFFFFF)
	put(h.frameCount)
	put(h.delay)
	put(h.padding)

	if h.useDec {
		body.Write(h.tag("dec\x00"))
		put(h.frameSize)
		put([]byte{h.minRes, h.maxRes, h.totalBands - 1, h.baseBands - 1, h.tracks<<4 | h.channelCfg&0xF, h.decStereo})
	} else {
		body.Write(h.tag("comp"))
		put(h.frameSize)
		put([]byte{h.minRes, h.maxRes, h.tracks, h.channelCfg, h.totalBands, h.baseBands,
			h.stereoBands, h.bandsPerHfr, h.msStereo, 0})
	}

	if h.vbr {
		body.Write(h.tag("vbr\x00"))
		put(uint16(0x100))
		put(uint16(0))
	}
	if h.ath != nil {
		body.Write(h.tag("ath\x00"))
		put(*h.ath)
	}
	if h.loop != nil {
		body.Write(h.tag("loop"))
		put(h.loop[0])
		put(h.loop[1])
		put(uint16(h.loop[2]))
		put(uint16(h.loop[3]))
	}
	if h.ciph != nil {
		body.Write(h.tag("ciph"))
		put(*h.ciph)
	}
	if h.rva != nil {
		body.Write(h.tag("rva\x00"))
		put(math.Float32bits(*h.rva))
	}
	if h.comment != nil {
		body.Write(h.tag("comm"))
		put(byte(len(h.comment)))
		body.Write(h.comment)
	}
	body.Write(h.tag("pad\x00"))

	headerSize := 0x08 + body.Len() + 0x02
	out := make([]byte, 0, headerSize)
	out = append(out, h.tag("HCA\x00")...)
	out = binary.BigEndian.AppendUint16(out, h.version)
	out = binary.BigEndian.AppendUint16(out, uint16(headerSize))
	out = append(out, body.Bytes()...)

	return appendChecksum(out)
}

func appendChecksum(data []byte) []byte {
	sum := hcacommon.Checksum(data)
	return append(data, byte(sum>>8), byte(sum))
}

// buildFrame writes the sync word, lets fill write the payload, pads with zeros
// and appends the CRC16.
func buildFrame(t *testing.T, frameSize int, fill func(w *bitWriter)) []byte {
	t.Helper()

	w := &bitWriter{}
	w.write(0xFFFF, 16)
	if fill != nil {
		fill(w)
	}

	data := w.bytes()
	if len(data) > frameSize-2 {
		t.Fatalf("frame payload is %d bytes, frame holds %d", len(data), frameSize-2)
	}
	data = append(data, make([]byte, frameSize-2-len(data))...)
	return appendChecksum(data)
}

// writeSilentChannel writes side info with all scale factors zero.
func writeSilentChannel(w *bitWriter) {
	w.write(0, 3)
}

// writeSignMagnitude writes q as a resolution 8-15 code, one bit shorter when q is 0.
func writeSignMagnitude(w *bitWriter, q int, resolution int) {
	bits := int(maxBitTable[resolution])
	if q == 0 {
		w.write(0, bits-1)
		return
	}
	code := uint32(q) << 1
	if q < 0 {
		code = uint32(-q)<<1 | 1
	}
	w.write(code, bits)
}

// testCoefficient is the quantized value of coefficient i in subframe sf of the
// synthetic loud frames.
func testCoefficient(sf, i int) int {
	return (i+3*sf)%7 - 3
}

// writeLoudFrame writes one mono frame where every coefficient has resolution 15.
func writeLoudFrame(w *bitWriter) {
	w.write(0, 9) // acceptable noise level
	w.write(0, 7) // evaluation boundary
	w.write(6, 3) // raw 6-bit scale factors
	for i := 0; i < hcaSamplesPerSubframe; i++ {
		w.write(63, 6)
	}
	for sf := 0; sf < hcaSubframes; sf++ {
		for i := 0; i < hcaSamplesPerSubframe; i++ {
			writeSignMagnitude(w, testCoefficient(sf, i), 15)
		}
	}
}

// loudFrameSize fits writeLoudFrame's payload plus the CRC.
const loudFrameSize = 0x700

// buildStream concatenates a header and frames produced by fill.
func buildStream(t *testing.T, h testHeader, fill func(frame int, w *bitWriter)) []byte {
	t.Helper()

	stream := h.build(t)
	for i := 0; i < int(h.frameCount); i++ {
		stream = append(stream, buildFrame(t, int(h.frameSize), func(w *bitWriter) { fill(i, w) })...)
	}
	return stream
}

// referenceIMDCT is a direct O(n^2) windowed IMDCT of one subframe with overlap-add.
func referenceIMDCT(spectra []float64, prev *[hcaSamplesPerSubframe]float64) [hcaSamplesPerSubframe]float64 {
	const n = hcaSamplesPerSubframe
	const half = n / 2

	var dct [n]float64
	for k := 0; k < n; k++ {
		sum := 0.0
		for m := 0; m < n; m++ {
			sum += spectra[m] * math.Cos(math.Pi/n*(float64(m)+0.5)*(float64(k)+0.5))
		}
		dct[k] = 0.125 * sum
	}

	var wave [n]float64
	for i := 0; i < half; i++ {
		wave[i] = float64(imdctWindow[i])*dct[i+half] + prev[i]
		wave[i+half] = float64(imdctWindow[i+half])*dct[n-1-i] - prev[i+half]
	}
	for i := 0; i < half; i++ {
		prev[i] = float64(imdctWindow[n-1-i]) * dct[half-1-i]
		prev[i+half] = float64(imdctWindow[half-1-i]) * dct[i]
	}
	return wave
}
