// Package awb reads AFS2 (.awb) wave banks, the archives CRI tools pack HCA streams into.
package awb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const magicAFS2 = "AFS2"

var ErrNotAFS2 = errors.New("bad AFS2 magic")

// Entry is one file in the archive.
type Entry struct {
	ID     int
	Offset int64
	Size   int64
}

// Archive is a parsed AFS2 entry table.
type Archive struct {
	Version   uint8
	Alignment uint32
	// Subkey is mixed into the HCA key of every stream in the archive.
	Subkey  uint16
	Entries []Entry
	r       io.ReaderAt
}

func readWidth(b []byte, width int) uint32 {
	if width == 2 {
		return uint32(binary.LittleEndian.Uint16(b))
	}
	return binary.LittleEndian.Uint32(b)
}

// Open parses the archive header of r, which holds size bytes.
func Open(r io.ReaderAt, size int64) (*Archive, error) {
	header := make([]byte, 0x10)
	if _, err := r.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("failed to read AFS2 header: %w", err)
	}
	if string(header[:4]) != magicAFS2 {
		return nil, ErrNotAFS2
	}

	offsetWidth := int(header[0x05])
	idWidth := int(binary.LittleEndian.Uint16(header[0x06:]))
	count := binary.LittleEndian.Uint32(header[0x08:])
	if offsetWidth != 2 && offsetWidth != 4 {
		return nil, fmt.Errorf("unsupported AFS2 offset width %d", offsetWidth)
	}
	if idWidth != 2 && idWidth != 4 {
		return nil, fmt.Errorf("unsupported AFS2 id width %d", idWidth)
	}

	tableSize := int64(count)*int64(idWidth) + int64(count+1)*int64(offsetWidth)
	if 0x10+tableSize > size {
		return nil, fmt.Errorf("AFS2 table of %d entries exceeds %d bytes", count, size)
	}
	table := make([]byte, tableSize)
	if _, err := r.ReadAt(table, 0x10); err != nil {
		return nil, fmt.Errorf("failed to read AFS2 table: %w", err)
	}

	a := &Archive{
		Version:   header[0x04],
		Alignment: uint32(binary.LittleEndian.Uint16(header[0x0C:])),
		Subkey:    binary.LittleEndian.Uint16(header[0x0E:]),
		Entries:   make([]Entry, count),
		r:         r,
	}
	if a.Alignment == 0 {
		a.Alignment = 1
	}

	ids := table[:int(count)*idWidth]
	offsets := table[int(count)*idWidth:]
	end := int64(readWidth(offsets, offsetWidth))
	for i := range a.Entries {
		start := end
		end = int64(readWidth(offsets[(i+1)*offsetWidth:], offsetWidth))
		if rem := start % int64(a.Alignment); rem != 0 {
			start += int64(a.Alignment) - rem
		}
		if end < start || end > size {
			return nil, fmt.Errorf("AFS2 entry %d spans %d..%d of %d bytes", i, start, end, size)
		}
		a.Entries[i] = Entry{
			ID:     int(readWidth(ids[i*idWidth:], idWidth)),
			Offset: start,
			Size:   end - start,
		}
	}
	return a, nil
}

// Entry returns a reader over entry i.
func (a *Archive) Entry(i int) (*io.SectionReader, error) {
	if i < 0 || i >= len(a.Entries) {
		return nil, fmt.Errorf("AFS2 entry %d out of range", i)
	}
	e := a.Entries[i]
	return io.NewSectionReader(a.r, e.Offset, e.Size), nil
}

// ByID returns a reader over the entry with the given cue id.
func (a *Archive) ByID(id int) (*io.SectionReader, error) {
	for i, e := range a.Entries {
		if e.ID == id {
			return a.Entry(i)
		}
	}
	return nil, fmt.Errorf("cue ID %d not found in archive", id)
}
