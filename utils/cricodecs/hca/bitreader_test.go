package hca

import "testing"

func TestBitReader_ReadFields(t *testing.T) {
	t.Parallel()

	br := newBitReader([]byte{0xA5, 0x3C, 0xFF, 0x00, 0x81, 0x7E})

	tests := []struct {
		bits int
		want uint32
	}{
		{bits: 3, want: 0x5},       // 101
		{bits: 5, want: 0x05},      // 00101
		{bits: 4, want: 0x3},       // 0011
		{bits: 12, want: 0xCFF},    // 1100 11111111
		{bits: 1, want: 0},         // 0
		{bits: 15, want: 0x0081},   // 0000000 10000001
		{bits: 8, want: 0x7E},      // 01111110
		{bits: 1, want: 0},         // past the end
		{bits: 0, want: 0},         // empty read
		{bits: 32, want: 0},        // still past the end
	}

	for i, tt := range tests {
		if got := br.read(tt.bits); got != tt.want {
			t.Fatalf("read #%d (%d bits) = 0x%X, want 0x%X", i, tt.bits, got, tt.want)
		}
	}
}

func TestBitReader_WideUnalignedRead(t *testing.T) {
	t.Parallel()

	data := []byte{0x12, 0x34, 0x56, 0x78, 0x9A, 0xBC}

	for offset := 0; offset < 8; offset++ {
		br := newBitReader(data)
		br.skip(offset)

		var want uint32
		for i := 0; i < 32; i++ {
			pos := offset + i
			bit := uint32(data[pos>>3]>>(7-uint(pos&7))) & 1
			want = want<<1 | bit
		}

		if got := br.read(32); got != want {
			t.Errorf("offset %d: read(32) = 0x%08X, want 0x%08X", offset, got, want)
		}
	}
}

func TestBitReader_PeekDoesNotAdvance(t *testing.T) {
	t.Parallel()

	br := newBitReader([]byte{0xF0, 0x0F})

	if got := br.peek(4); got != 0xF {
		t.Fatalf("peek(4) = 0x%X, want 0xF", got)
	}
	if got := br.peek(8); got != 0xF0 {
		t.Fatalf("peek(8) = 0x%X, want 0xF0", got)
	}
	if br.bit != 0 {
		t.Fatalf("cursor = %d after peek, want 0", br.bit)
	}
}

func TestBitReader_OverReadMovesCursor(t *testing.T) {
	t.Parallel()

	br := newBitReader([]byte{0xFF})
	br.skip(4)

	if got := br.read(8); got != 0 {
		t.Fatalf("read(8) over the end = 0x%X, want 0", got)
	}
	if br.bit != 12 {
		t.Fatalf("cursor = %d, want 12", br.bit)
	}
}

func TestBitReader_UnfitFieldNearEnd(t *testing.T) {
	t.Parallel()

	// 23 bits are left, too few for the 3-byte span a 21-bit window needs
	br := newBitReader([]byte{0xFF, 0xFF, 0xFF})
	br.skip(1)
	if got := br.peek(20); got != 0 {
		t.Errorf("peek(20) in a 3-byte tail = 0x%X, want 0", got)
	}

	// with a fourth byte the same field fits
	br = newBitReader([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	br.skip(1)
	if got := br.peek(20); got != 0xFFFFF {
		t.Errorf("peek(20) with a byte to spare = 0x%X, want 0xFFFFF", got)
	}
}

func TestBitReader_SkipBackwards(t *testing.T) {
	t.Parallel()

	br := newBitReader([]byte{0x40})

	if got := br.read(2); got != 0x1 {
		t.Fatalf("read(2) = 0x%X, want 0x1", got)
	}
	br.skip(-1)
	if got := br.read(1); got != 1 {
		t.Fatalf("read(1) after skip(-1) = %d, want 1", got)
	}
	if got := br.read(6); got != 0 {
		t.Fatalf("read(6) = %d, want 0", got)
	}
}

func TestBitWriter_RoundTrip(t *testing.T) {
	t.Parallel()

	fields := []struct {
		value uint32
		bits  int
	}{
		{0x1, 1}, {0x5, 3}, {0x3F, 6}, {0xABC, 12}, {0x0, 11}, {0xFFFF, 16}, {0x12345678, 32}, {0x2, 2},
	}

	w := &bitWriter{}
	for _, f := range fields {
		w.write(f.value, f.bits)
	}

	br := newBitReader(w.bytes())
	for i, f := range fields {
		if got := br.read(f.bits); got != f.value {
			t.Errorf("field %d: read(%d) = 0x%X, want 0x%X", i, f.bits, got, f.value)
		}
	}
}
