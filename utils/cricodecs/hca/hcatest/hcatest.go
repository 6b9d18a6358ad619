// Package hcatest builds synthetic HCA streams for tests.
package hcatest

import (
	"encoding/binary"

	"haruki-hca/utils/cricodecs/hcacommon"
)

// Options describes a synthetic v2.0 stream with discrete channels.
type Options struct {
	Channels   int
	SampleRate int
	Frames     int
	Delay      int
	Padding    int
	// LoopFrames enables the loop chunk with start and end frames.
	LoopFrames *[2]int
	// Key encrypts the frames with cipher type 56 when non-zero.
	Key uint64
	// Silent writes all-zero scale factors instead of a full-scale pattern.
	Silent bool
}

// FrameSize is the frame size used for a stream of the given channel count.
func FrameSize(channels int) int {
	return 0x700 * channels
}

// Stream returns a complete stream: header followed by o.Frames frames.
func Stream(o Options) []byte {
	if o.Channels == 0 {
		o.Channels = 1
	}
	if o.SampleRate == 0 {
		o.SampleRate = 44100
	}
	if o.Frames == 0 {
		o.Frames = 1
	}

	out := header(o)

	var encrypt *[256]byte
	if o.Key != 0 {
		table, err := hcacommon.CipherInit(hcacommon.CipherKeyed, o.Key)
		if err != nil {
			panic(err)
		}
		encrypt = new([256]byte)
		for i, b := range table {
			encrypt[b] = byte(i)
		}
	}

	frameSize := FrameSize(o.Channels)
	for i := 0; i < o.Frames; i++ {
		w := &bitWriter{}
		w.write(0xFFFF, 16)
		writeFrame(w, o.Channels, o.Silent)

		frame := append(w.buf, make([]byte, frameSize-2-len(w.buf))...)
		if encrypt != nil {
			for j, b := range frame {
				frame[j] = encrypt[b]
			}
		}
		out = append(out, withChecksum(frame)...)
	}
	return out
}

// Coefficient is the quantized value of coefficient i in subframe sf of a
// full-scale frame; every coefficient uses a 12-bit sign-magnitude code.
func Coefficient(sf, i int) int {
	return (i+3*sf)%7 - 3
}

func writeFrame(w *bitWriter, channels int, silent bool) {
	w.write(0, 9)
	w.write(0, 7)

	if silent {
		for ch := 0; ch < channels; ch++ {
			w.write(0, 3)
		}
		return
	}

	for ch := 0; ch < channels; ch++ {
		w.write(6, 3)
		for i := 0; i < 128; i++ {
			w.write(63, 6)
		}
	}
	for sf := 0; sf < 8; sf++ {
		for ch := 0; ch < channels; ch++ {
			for i := 0; i < 128; i++ {
				q := Coefficient(sf, i)
				switch {
				case q == 0:
					w.write(0, 11)
				case q < 0:
					w.write(uint32(-q)<<1|1, 12)
				default:
					w.write(uint32(q)<<1, 12)
				}
			}
		}
	}
}

func header(o Options) []byte {
	var body []byte
	be := binary.BigEndian

	body = append(body, "fmt\x00"...)
	body = be.AppendUint32(body, uint32(o.Channels)<<24|uint32(o.SampleRate)&0xFFFFFF)
	body = be.AppendUint32(body, uint32(o.Frames))
	body = be.AppendUint16(body, uint16(o.Delay))
	body = be.AppendUint16(body, uint16(o.Padding))

	body = append(body, "comp"...)
	body = be.AppendUint16(body, uint16(FrameSize(o.Channels)))
	body = append(body, 1, 15, 1, 0, 128, 128, 0, 0, 0, 0)

	if o.LoopFrames != nil {
		body = append(body, "loop"...)
		body = be.AppendUint32(body, uint32(o.LoopFrames[0]))
		body = be.AppendUint32(body, uint32(o.LoopFrames[1]))
		body = be.AppendUint16(body, 0)
		body = be.AppendUint16(body, 0)
	}
	if o.Key != 0 {
		body = append(body, "ciph"...)
		body = be.AppendUint16(body, hcacommon.CipherKeyed)
	}
	body = append(body, "pad\x00"...)

	headerSize := 8 + len(body) + 2
	out := make([]byte, 0, headerSize)
	out = append(out, "HCA\x00"...)
	out = be.AppendUint16(out, 0x0200)
	out = be.AppendUint16(out, uint16(headerSize))
	out = append(out, body...)
	return withChecksum(out)
}

func withChecksum(data []byte) []byte {
	sum := hcacommon.Checksum(data)
	return append(data, byte(sum>>8), byte(sum))
}

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

// AWB packs streams into an AFS2 archive with cue ids 0..n-1, 0x20 alignment,
// 4-byte offsets and 2-byte ids.
func AWB(streams [][]byte, subkey uint16) []byte {
	const alignment = 0x20
	le := binary.LittleEndian

	out := []byte("AFS2")
	out = append(out, 2, 4)
	out = le.AppendUint16(out, 2)
	out = le.AppendUint32(out, uint32(len(streams)))
	out = le.AppendUint16(out, alignment)
	out = le.AppendUint16(out, subkey)
	for i := range streams {
		out = le.AppendUint16(out, uint16(i))
	}

	pos := len(out) + 4*(len(streams)+1)
	var offsets []uint32
	var body []byte
	for _, s := range streams {
		offsets = append(offsets, uint32(pos))
		for pos%alignment != 0 {
			body = append(body, 0)
			pos++
		}
		body = append(body, s...)
		pos += len(s)
	}
	offsets = append(offsets, uint32(pos))
	for _, o := range offsets {
		out = le.AppendUint32(out, o)
	}
	return append(out, body...)
}
