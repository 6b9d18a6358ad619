package hca

// bitReader reads MSB-first bit fields from a byte slice.
// Reads that would run past the end of the data return 0 and still move the cursor.
type bitReader struct {
	data []byte
	size int
	bit  int
}

var (
	bitMask8  = [8]uint32{0xFF, 0x7F, 0x3F, 0x1F, 0x0F, 0x07, 0x03, 0x01}
	bitMask16 = [8]uint32{0xFFFF, 0x7FFF, 0x3FFF, 0x1FFF, 0x0FFF, 0x07FF, 0x03FF, 0x01FF}
	bitMask24 = [8]uint32{0xFFFFFF, 0x7FFFFF, 0x3FFFFF, 0x1FFFFF, 0x0FFFFF, 0x07FFFF, 0x03FFFF, 0x01FFFF}
	bitMask32 = [8]uint32{
		0xFFFFFFFF, 0x7FFFFFFF, 0x3FFFFFFF, 0x1FFFFFFF,
		0x0FFFFFFF, 0x07FFFFFF, 0x03FFFFFF, 0x01FFFFFF,
	}
)

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data, size: len(data) * 8}
}

// peek returns the next n bits (n <= 32) without moving the cursor.
// The byte span is picked from the bits left in the buffer, so a field that
// does not fit the span that is read near the end of the data comes back as 0.
func (br *bitReader) peek(n int) uint32 {
	if n <= 0 || br.bit < 0 || br.bit+n > br.size {
		return 0
	}

	rem := br.bit & 7
	span := rem + n
	left := br.size - br.bit
	data := br.data[br.bit>>3:]

	var v uint32
	switch {
	case left >= 32 && span >= 25:
		if span > 32 {
			// unaligned wide reads straddle five bytes
			if len(data) < 5 {
				return 0
			}
			w := uint64(data[0])<<32 | uint64(data[1])<<24 | uint64(data[2])<<16 | uint64(data[3])<<8 | uint64(data[4])
			w &= (1 << (40 - rem)) - 1
			return uint32(w >> (40 - span))
		}
		v = uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
		v &= bitMask32[rem]
		v >>= 32 - span
	case left >= 24 && span >= 17:
		if span > 24 {
			return 0
		}
		v = uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])
		v &= bitMask24[rem]
		v >>= 24 - span
	case left >= 16 && span >= 9:
		if span > 16 {
			return 0
		}
		v = uint32(data[0])<<8 | uint32(data[1])
		v &= bitMask16[rem]
		v >>= 16 - span
	default:
		if span > 8 {
			return 0
		}
		v = uint32(data[0])
		v &= bitMask8[rem]
		v >>= 8 - span
	}
	return v
}

func (br *bitReader) read(n int) uint32 {
	v := br.peek(n)
	br.bit += n
	return v
}

// skip moves the cursor by n bits; a negative n rewinds.
func (br *bitReader) skip(n int) {
	br.bit += n
}
