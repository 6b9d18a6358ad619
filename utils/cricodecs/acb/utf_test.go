package acb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"haruki-hca/utils/cricodecs/acb/acbtest"
)

func TestParseTable(t *testing.T) {
	t.Parallel()

	data := acbtest.Table{
		Name: "Waveform",
		Constants: []acbtest.Constant{
			{Name: "Version", Value: uint32(7)},
			{Name: "Label", Value: "bank"},
			{Name: "Unused", Value: uint16(0), Zero: true},
		},
		Columns: []string{"Id", "Delta", "Gain", "Name", "Blob", "Big"},
		Rows: [][]any{
			{uint16(3), int8(-2), float32(0.5), "first", []byte{1, 2, 3}, uint64(1 << 40)},
			{uint16(9), int8(5), float32(-1), "second", []byte(nil), uint64(0)},
		},
	}.Bytes()

	table, err := ParseTable(data)
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}
	if table.Name != "Waveform" || len(table.Rows) != 2 || len(table.Columns) != 9 {
		t.Fatalf("table = %q, %d rows, %d columns", table.Name, len(table.Rows), len(table.Columns))
	}

	r0, r1 := table.Rows[0], table.Rows[1]
	if r0.Int("Version") != 7 || r1.Int("Version") != 7 || r0.String("Label") != "bank" {
		t.Errorf("constants = %v, %q", r0["Version"], r0.String("Label"))
	}
	if !r0.Has("Unused") || r0.Int("Unused") != 0 {
		t.Errorf("zero column = %v", r0["Unused"])
	}
	if r0.Int("Id") != 3 || r1.Int("Id") != 9 || r0.Int("Delta") != -2 || r1.Int("Delta") != 5 {
		t.Errorf("integers = %v %v %v %v", r0["Id"], r1["Id"], r0["Delta"], r1["Delta"])
	}
	if r0["Gain"] != float32(0.5) || r1["Gain"] != float32(-1) {
		t.Errorf("floats = %v %v", r0["Gain"], r1["Gain"])
	}
	if r0.String("Name") != "first" || r1.String("Name") != "second" {
		t.Errorf("strings = %q %q", r0.String("Name"), r1.String("Name"))
	}
	if !bytes.Equal(r0.Bytes("Blob"), []byte{1, 2, 3}) || len(r1.Bytes("Blob")) != 0 {
		t.Errorf("data = %v %v", r0.Bytes("Blob"), r1.Bytes("Blob"))
	}
	if r0.Int("Big") != 1<<40 {
		t.Errorf("uint64 = %v", r0["Big"])
	}
	if r0.Has("Missing") || r0.Int("Missing") != 0 || r0.String("Id") != "" {
		t.Errorf("missing and mistyped columns should read as zero values")
	}
}

func TestParseTableRejects(t *testing.T) {
	t.Parallel()

	valid := acbtest.Table{
		Name:    "T",
		Columns: []string{"Name"},
		Rows:    [][]any{{"x"}},
	}.Bytes()

	tests := []struct {
		name    string
		mutate  func(b []byte) []byte
		wantErr error
	}{
		{"magic", func(b []byte) []byte { b[1] = 'X'; return b }, ErrNotUTF},
		{"short", func(b []byte) []byte { return b[:0x10] }, nil},
		{"truncated", func(b []byte) []byte { return b[:len(b)-2] }, nil},
		{"row count", func(b []byte) []byte { binary.BigEndian.PutUint32(b[0x1C:], 50); return b }, nil},
		{"string offset", func(b []byte) []byte {
			// the row's only value points past the string table
			rowOffset := int(binary.BigEndian.Uint16(b[0x0A:])) + 8
			binary.BigEndian.PutUint32(b[rowOffset:], 0x1000)
			return b
		}, nil},
		{"unknown storage", func(b []byte) []byte { b[0x20] = 0x90; return b }, nil},
		{"unknown type", func(b []byte) []byte { b[0x20] = 0x5C; return b }, nil},
	}

	for _, tt := range tests {
		data := tt.mutate(append([]byte{}, valid...))
		_, err := ParseTable(data)
		if err == nil {
			t.Errorf("%s: ParseTable() succeeded, want error", tt.name)
			continue
		}
		if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: ParseTable() error = %v, want %v", tt.name, err, tt.wantErr)
		}
	}
}
