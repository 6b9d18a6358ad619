package awb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

type archiveLayout struct {
	ids         []int
	files       [][]byte
	alignment   uint16
	subkey      uint16
	offsetWidth int
	idWidth     int
}

func putWidth(b []byte, v uint32, width int) []byte {
	if width == 2 {
		return binary.LittleEndian.AppendUint16(b, uint16(v))
	}
	return binary.LittleEndian.AppendUint32(b, v)
}

func (s archiveLayout) build() []byte {
	out := []byte(magicAFS2)
	out = append(out, 2, byte(s.offsetWidth))
	out = binary.LittleEndian.AppendUint16(out, uint16(s.idWidth))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(s.files)))
	out = binary.LittleEndian.AppendUint16(out, s.alignment)
	out = binary.LittleEndian.AppendUint16(out, s.subkey)
	for _, id := range s.ids {
		out = putWidth(out, uint32(id), s.idWidth)
	}

	// raw offsets point at the unaligned end of the previous entry
	pos := len(out) + (len(s.files)+1)*s.offsetWidth
	var offsets []uint32
	var body []byte
	for _, f := range s.files {
		offsets = append(offsets, uint32(pos))
		for pos%int(s.alignment) != 0 {
			body = append(body, 0)
			pos++
		}
		body = append(body, f...)
		pos += len(f)
	}
	offsets = append(offsets, uint32(pos))
	for _, o := range offsets {
		out = putWidth(out, o, s.offsetWidth)
	}
	return append(out, body...)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	files := [][]byte{[]byte("HCA\x00first"), []byte("second stream"), {}}

	for _, widths := range [][2]int{{4, 2}, {2, 2}, {4, 4}} {
		layout := archiveLayout{
			ids:         []int{7, 3, 12},
			files:       files,
			alignment:   0x20,
			subkey:      0x1234,
			offsetWidth: widths[0],
			idWidth:     widths[1],
		}
		data := layout.build()

		a, err := Open(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			t.Fatalf("widths %v: Open() error = %v", widths, err)
		}
		if a.Subkey != 0x1234 || a.Alignment != 0x20 || a.Version != 2 {
			t.Errorf("widths %v: subkey/alignment/version = 0x%X/%d/%d", widths, a.Subkey, a.Alignment, a.Version)
		}
		if len(a.Entries) != 3 {
			t.Fatalf("widths %v: %d entries, want 3", widths, len(a.Entries))
		}

		for i, want := range files {
			e := a.Entries[i]
			if e.ID != layout.ids[i] || e.Offset%0x20 != 0 {
				t.Errorf("widths %v: entry %d = %+v", widths, i, e)
			}
			r, err := a.Entry(i)
			if err != nil {
				t.Fatalf("Entry(%d) error = %v", i, err)
			}
			got, _ := io.ReadAll(r)
			if !bytes.Equal(got, want) {
				t.Errorf("widths %v: entry %d = %q, want %q", widths, i, got, want)
			}
		}

		r, err := a.ByID(3)
		if err != nil {
			t.Fatalf("ByID(3) error = %v", err)
		}
		if got, _ := io.ReadAll(r); string(got) != "second stream" {
			t.Errorf("ByID(3) = %q", got)
		}
	}
}

func TestOpenLookups(t *testing.T) {
	t.Parallel()

	data := archiveLayout{ids: []int{1}, files: [][]byte{[]byte("x")}, alignment: 1, offsetWidth: 4, idWidth: 2}.build()
	a, err := Open(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if _, err := a.ByID(9); err == nil {
		t.Errorf("ByID(9) succeeded")
	}
	if _, err := a.Entry(1); err == nil {
		t.Errorf("Entry(1) succeeded")
	}
	if _, err := a.Entry(-1); err == nil {
		t.Errorf("Entry(-1) succeeded")
	}
}

func TestOpenRejects(t *testing.T) {
	t.Parallel()

	valid := archiveLayout{ids: []int{0, 1}, files: [][]byte{[]byte("aa"), []byte("bb")}, alignment: 4, offsetWidth: 4, idWidth: 2}.build()

	tests := []struct {
		name    string
		mutate  func(b []byte) []byte
		wantErr error
	}{
		{"magic", func(b []byte) []byte { b[0] = 'X'; return b }, ErrNotAFS2},
		{"short header", func(b []byte) []byte { return b[:8] }, nil},
		{"offset width", func(b []byte) []byte { b[5] = 3; return b }, nil},
		{"id width", func(b []byte) []byte { b[6] = 1; return b }, nil},
		{"entry count", func(b []byte) []byte { binary.LittleEndian.PutUint32(b[8:], 1000); return b }, nil},
		{"past end", func(b []byte) []byte { return b[:len(b)-1] }, nil},
		{"decreasing offsets", func(b []byte) []byte {
			// second offset before the first entry
			binary.LittleEndian.PutUint32(b[0x10+4+4:], 0x10)
			return b
		}, nil},
	}

	for _, tt := range tests {
		data := tt.mutate(append([]byte{}, valid...))
		_, err := Open(bytes.NewReader(data), int64(len(data)))
		if err == nil {
			t.Errorf("%s: Open() succeeded, want error", tt.name)
			continue
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: Open() error = %v, want %v", tt.name, err, tt.wantErr)
		}
	}
}
