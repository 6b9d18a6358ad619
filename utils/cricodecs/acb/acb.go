// Package acb reads ACB cue sheets: the @UTF tables that name the waveforms of an
// AFS2 wave bank, either embedded in the sheet or streamed from .awb files next to it.
package acb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"haruki-hca/utils/cricodecs/awb"
)

// Waveform encode types.
const (
	EncodeADX    = 0
	EncodeHCA    = 2
	EncodeHCAMX  = 6
	EncodeVAG    = 7
	EncodeATRAC3 = 8
	EncodeBCWAV  = 9
	EncodeDSP    = 13
)

const (
	refWaveform = 1
	refSynth    = 2
	refSequence = 3

	commandStop        = 0x0000
	commandNoteOn      = 0x07D0
	maxReferenceDepth  = 8
	noIndex            = 0xFFFF
	defaultStreamsPort = 0
)

// Track is one waveform reachable from a named cue.
type Track struct {
	Name       string
	CueIndex   int
	AwbID      int
	EncodeType int
	Streaming  bool
	// Port indexes CueSheet.Streams for streamed tracks.
	Port int
}

func (t Track) IsHCA() bool {
	return t.EncodeType == EncodeHCA || t.EncodeType == EncodeHCAMX
}

// CueSheet is a parsed ACB file.
type CueSheet struct {
	Name   string
	Tracks []Track
	// Memory is the embedded wave bank, nil when the sheet has none.
	Memory *awb.Archive
	// Streams names the external wave banks, without extension, in port order.
	Streams []string
}

type tables struct {
	cues, synths, sequences, tracks, events, waveforms *Table
}

// Open parses an ACB file held in data.
func Open(data []byte) (*CueSheet, error) {
	header, err := ParseTable(data)
	if err != nil {
		return nil, err
	}
	if len(header.Rows) == 0 {
		return nil, errors.New("ACB header table has no rows")
	}
	row := header.Rows[0]

	sheet := &CueSheet{Name: row.String("Name")}
	if b := row.Bytes("AwbFile"); len(b) > 0 {
		sheet.Memory, err = awb.Open(bytes.NewReader(b), int64(len(b)))
		if err != nil {
			return nil, fmt.Errorf("embedded wave bank: %w", err)
		}
	}
	if b := row.Bytes("StreamAwbHash"); len(b) > 0 {
		hashes, err := ParseTable(b)
		if err != nil {
			return nil, fmt.Errorf("StreamAwbHash: %w", err)
		}
		for _, r := range hashes.Rows {
			sheet.Streams = append(sheet.Streams, r.String("Name"))
		}
	}

	var t tables
	for _, sub := range []struct {
		name     string
		dst      **Table
		required bool
	}{
		{"CueTable", &t.cues, true},
		{"WaveformTable", &t.waveforms, true},
		{"SynthTable", &t.synths, false},
		{"SequenceTable", &t.sequences, false},
		{"TrackTable", &t.tracks, false},
		{"TrackEventTable", &t.events, false},
	} {
		b := row.Bytes(sub.name)
		if len(b) == 0 {
			if sub.required {
				return nil, fmt.Errorf("ACB has no %s", sub.name)
			}
			continue
		}
		if *sub.dst, err = ParseTable(b); err != nil {
			return nil, fmt.Errorf("%s: %w", sub.name, err)
		}
	}
	// older sheets keep track events in the command table
	if t.events == nil {
		if b := row.Bytes("CommandTable"); len(b) > 0 {
			if t.events, err = ParseTable(b); err != nil {
				return nil, fmt.Errorf("CommandTable: %w", err)
			}
		}
	}

	names := map[int]string{}
	if b := row.Bytes("CueNameTable"); len(b) > 0 {
		nameTable, err := ParseTable(b)
		if err != nil {
			return nil, fmt.Errorf("CueNameTable: %w", err)
		}
		for _, r := range nameTable.Rows {
			names[r.Int("CueIndex")] = r.String("CueName")
		}
	}

	used := map[string]bool{}
	for ci, cue := range t.cues.Rows {
		name := names[ci]
		if name == "" {
			name = fmt.Sprintf("cue_%d", ci)
		}

		var waveforms []int
		t.collect(cue.Int("ReferenceType"), cue.Int("ReferenceIndex"), 0, &waveforms)
		for _, wi := range waveforms {
			tr := t.track(wi)
			tr.CueIndex = ci
			tr.Name = name
			if used[tr.Name] {
				tr.Name = fmt.Sprintf("%s-%d", name, tr.AwbID)
			}
			used[tr.Name] = true
			sheet.Tracks = append(sheet.Tracks, tr)
		}
	}
	return sheet, nil
}

// collect appends the waveform indexes reachable from one reference.
func (t *tables) collect(refType, index, depth int, out *[]int) {
	if depth > maxReferenceDepth {
		return
	}
	switch refType {
	case refWaveform:
		if index < len(t.waveforms.Rows) {
			*out = append(*out, index)
		}
	case refSynth:
		if t.synths == nil || index >= len(t.synths.Rows) {
			return
		}
		items := t.synths.Rows[index].Bytes("ReferenceItems")
		for i := 0; i+4 <= len(items); i += 4 {
			t.collect(int(binary.BigEndian.Uint16(items[i:])), int(binary.BigEndian.Uint16(items[i+2:])), depth+1, out)
		}
	case refSequence:
		if t.sequences == nil || t.tracks == nil || t.events == nil || index >= len(t.sequences.Rows) {
			return
		}
		seq := t.sequences.Rows[index]
		trackIndex := seq.Bytes("TrackIndex")
		for i := 0; i < seq.Int("NumTracks") && 2*i+2 <= len(trackIndex); i++ {
			ti := int(binary.BigEndian.Uint16(trackIndex[2*i:]))
			if ti >= len(t.tracks.Rows) {
				continue
			}
			ei := t.tracks.Rows[ti].Int("EventIndex")
			if ei == noIndex || ei >= len(t.events.Rows) {
				continue
			}
			t.commands(t.events.Rows[ei].Bytes("Command"), depth, out)
		}
	}
}

// commands walks a track event command list: u16 code, u8 length, parameters.
func (t *tables) commands(command []byte, depth int, out *[]int) {
	for k := 0; k+3 <= len(command); {
		code := binary.BigEndian.Uint16(command[k:])
		n := int(command[k+2])
		k += 3
		if k+n > len(command) || code == commandStop {
			return
		}
		params := command[k : k+n]
		k += n

		if code == commandNoteOn && len(params) >= 4 {
			t.collect(int(binary.BigEndian.Uint16(params)), int(binary.BigEndian.Uint16(params[2:])), depth+1, out)
		}
	}
}

func (t *tables) track(wi int) Track {
	w := t.waveforms.Rows[wi]
	tr := Track{
		EncodeType: w.Int("EncodeType"),
		Streaming:  w.Int("Streaming") != 0,
		Port:       defaultStreamsPort,
	}
	switch {
	case w.Has("Id"):
		tr.AwbID = w.Int("Id")
	case tr.Streaming:
		tr.AwbID = w.Int("StreamAwbId")
	default:
		tr.AwbID = w.Int("MemoryAwbId")
	}
	if p := w.Int("StreamAwbPortNo"); w.Has("StreamAwbPortNo") && p != noIndex {
		tr.Port = p
	}
	return tr
}
