// Package acbtest builds @UTF tables and ACB cue sheets for tests.
package acbtest

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Constant is a column stored once in the schema. Zero stores only the type of Value.
type Constant struct {
	Name  string
	Value any
	Zero  bool
}

// Table describes a @UTF table. Column types follow the Go type of the first row's
// values: uint8..int64, float32, string or []byte.
type Table struct {
	Name      string
	Constants []Constant
	Columns   []string
	Rows      [][]any
}

func typeOf(v any) byte {
	switch v.(type) {
	case uint8:
		return 0x00
	case int8:
		return 0x01
	case uint16:
		return 0x02
	case int16:
		return 0x03
	case uint32:
		return 0x04
	case int32:
		return 0x05
	case uint64:
		return 0x06
	case int64:
		return 0x07
	case float32:
		return 0x08
	case string:
		return 0x0A
	case []byte:
		return 0x0B
	}
	panic(fmt.Sprintf("acbtest: unsupported column value %T", v))
}

type pools struct {
	strings []byte
	offsets map[string]uint32
	data    []byte
}

func (p *pools) str(s string) uint32 {
	if off, ok := p.offsets[s]; ok {
		return off
	}
	off := uint32(len(p.strings))
	p.strings = append(append(p.strings, s...), 0)
	p.offsets[s] = off
	return off
}

func (p *pools) value(out []byte, v any) []byte {
	be := binary.BigEndian
	switch v := v.(type) {
	case uint8:
		return append(out, v)
	case int8:
		return append(out, byte(v))
	case uint16:
		return be.AppendUint16(out, v)
	case int16:
		return be.AppendUint16(out, uint16(v))
	case uint32:
		return be.AppendUint32(out, v)
	case int32:
		return be.AppendUint32(out, uint32(v))
	case uint64:
		return be.AppendUint64(out, v)
	case int64:
		return be.AppendUint64(out, uint64(v))
	case float32:
		return be.AppendUint32(out, math.Float32bits(v))
	case string:
		return be.AppendUint32(out, p.str(v))
	case []byte:
		off := uint32(len(p.data))
		p.data = append(p.data, v...)
		return be.AppendUint32(be.AppendUint32(out, off), uint32(len(v)))
	}
	panic(fmt.Sprintf("acbtest: unsupported column value %T", v))
}

// Bytes encodes the table.
func (t Table) Bytes() []byte {
	p := &pools{offsets: map[string]uint32{}}
	p.str("<NULL>")
	nameOffset := p.str(t.Name)

	var schema []byte
	for _, c := range t.Constants {
		storage := byte(0x30)
		if c.Zero {
			storage = 0x10
		}
		schema = append(schema, storage|typeOf(c.Value))
		schema = binary.BigEndian.AppendUint32(schema, p.str(c.Name))
		if !c.Zero {
			schema = p.value(schema, c.Value)
		}
	}
	for i, name := range t.Columns {
		typ := byte(0x00)
		if len(t.Rows) > 0 {
			typ = typeOf(t.Rows[0][i])
		}
		schema = append(schema, 0x50|typ)
		schema = binary.BigEndian.AppendUint32(schema, p.str(name))
	}

	var rows []byte
	rowSize := 0
	for _, r := range t.Rows {
		start := len(rows)
		for _, v := range r {
			rows = p.value(rows, v)
		}
		rowSize = len(rows) - start
	}

	rowOffset := 0x20 + len(schema)
	stringOffset := rowOffset + len(rows)
	dataOffset := stringOffset + len(p.strings)
	size := dataOffset + len(p.data)

	be := binary.BigEndian
	out := []byte("@UTF")
	out = be.AppendUint32(out, uint32(size-8))
	out = be.AppendUint16(out, 1)
	out = be.AppendUint16(out, uint16(rowOffset-8))
	out = be.AppendUint32(out, uint32(stringOffset-8))
	out = be.AppendUint32(out, uint32(dataOffset-8))
	out = be.AppendUint32(out, nameOffset)
	out = be.AppendUint16(out, uint16(len(t.Constants)+len(t.Columns)))
	out = be.AppendUint16(out, uint16(rowSize))
	out = be.AppendUint32(out, uint32(len(t.Rows)))
	out = append(out, schema...)
	out = append(out, rows...)
	out = append(out, p.strings...)
	return append(out, p.data...)
}

// Cue is one named cue playing a single waveform.
type Cue struct {
	Name       string
	AwbID      int
	EncodeType int
	Streaming  bool
}

// CueSheet builds an ACB whose cues reach their waveform through the
// sequence, track, track event and synth tables. memory is the embedded wave
// bank, streams the names of external ones.
func CueSheet(name string, cues []Cue, memory []byte, streams []string) []byte {
	const none = uint16(0xFFFF)

	cueTable := Table{Name: "Cue", Columns: []string{"CueId", "ReferenceType", "ReferenceIndex"}}
	names := Table{Name: "CueName", Columns: []string{"CueName", "CueIndex"}}
	sequences := Table{Name: "Sequence", Columns: []string{"NumTracks", "TrackIndex"}}
	tracks := Table{Name: "Track", Columns: []string{"EventIndex"}}
	events := Table{Name: "TrackEvent", Columns: []string{"Command"}}
	synths := Table{Name: "Synth", Columns: []string{"ReferenceItems"}}
	waveforms := Table{
		Name:    "Waveform",
		Columns: []string{"MemoryAwbId", "EncodeType", "Streaming", "StreamAwbPortNo", "StreamAwbId"},
	}

	be := binary.BigEndian
	for i, c := range cues {
		idx := uint16(i)
		cueTable.Rows = append(cueTable.Rows, []any{uint32(i), uint8(3), idx})
		names.Rows = append(names.Rows, []any{c.Name, idx})
		sequences.Rows = append(sequences.Rows, []any{uint16(1), be.AppendUint16(nil, idx)})
		tracks.Rows = append(tracks.Rows, []any{idx})

		// note on synth i, then stop
		command := be.AppendUint16(nil, 0x07D0)
		command = append(command, 4)
		command = be.AppendUint16(be.AppendUint16(command, 2), idx)
		command = append(be.AppendUint16(command, 0), 0)
		events.Rows = append(events.Rows, []any{command})

		synths.Rows = append(synths.Rows, []any{be.AppendUint16(be.AppendUint16(nil, 1), idx)})

		memoryID, streamID, streaming := uint16(c.AwbID), none, uint8(0)
		if c.Streaming {
			memoryID, streamID, streaming = none, uint16(c.AwbID), 1
		}
		waveforms.Rows = append(waveforms.Rows, []any{memoryID, uint8(c.EncodeType), streaming, uint16(0), streamID})
	}

	var hashes []byte
	if len(streams) > 0 {
		h := Table{Name: "StreamAwb", Columns: []string{"Name", "Hash"}}
		for _, s := range streams {
			h.Rows = append(h.Rows, []any{s, make([]byte, 16)})
		}
		hashes = h.Bytes()
	}

	header := Table{
		Name:      "Header",
		Constants: []Constant{{Name: "Version", Value: uint32(0x01300000)}},
		Columns: []string{
			"Name", "CueTable", "CueNameTable", "WaveformTable", "SynthTable",
			"SequenceTable", "TrackTable", "TrackEventTable", "AwbFile", "StreamAwbHash",
		},
		Rows: [][]any{{
			name, cueTable.Bytes(), names.Bytes(), waveforms.Bytes(), synths.Bytes(),
			sequences.Bytes(), tracks.Bytes(), events.Bytes(), memory, hashes,
		}},
	}
	return header.Bytes()
}
