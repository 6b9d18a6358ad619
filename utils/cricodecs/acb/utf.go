package acb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const magicUTF = "@UTF"

const (
	storageMask      = 0xF0
	storageZero      = 0x10
	storageConstant  = 0x30
	storagePerRow    = 0x50
	storageConstant2 = 0x70

	typeMask    = 0x0F
	typeUint8   = 0x00
	typeInt8    = 0x01
	typeUint16  = 0x02
	typeInt16   = 0x03
	typeUint32  = 0x04
	typeInt32   = 0x05
	typeUint64  = 0x06
	typeInt64   = 0x07
	typeFloat32 = 0x08
	typeString  = 0x0A
	typeData    = 0x0B
)

var ErrNotUTF = errors.New("bad @UTF magic")

// Row maps column names to values. Integer columns keep their stored width,
// string columns are strings and data columns are []byte.
type Row map[string]any

// Table is a decoded @UTF table.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

type utfHeader struct {
	rowOffset    int
	stringOffset int
	dataOffset   int
	nameOffset   int
	fields       int
	rowSize      int
	rows         int
}

type utfColumn struct {
	name    string
	flags   byte
	value   any
	present bool
}

// ParseTable decodes a @UTF table. Offsets inside data are checked against its length.
func ParseTable(data []byte) (*Table, error) {
	if len(data) < 0x20 {
		return nil, fmt.Errorf("UTF table of %d bytes is too small", len(data))
	}
	if string(data[:4]) != magicUTF {
		return nil, ErrNotUTF
	}
	be := binary.BigEndian
	size := int(be.Uint32(data[0x04:])) + 8
	if size > len(data) {
		return nil, fmt.Errorf("UTF table declares %d bytes, have %d", size, len(data))
	}
	data = data[:size]

	h := utfHeader{
		rowOffset:    int(be.Uint16(data[0x0A:])) + 8,
		stringOffset: int(be.Uint32(data[0x0C:])) + 8,
		dataOffset:   int(be.Uint32(data[0x10:])) + 8,
		nameOffset:   int(be.Uint32(data[0x14:])),
		fields:       int(be.Uint16(data[0x18:])),
		rowSize:      int(be.Uint16(data[0x1A:])),
		rows:         int(be.Uint32(data[0x1C:])),
	}
	if h.stringOffset > size || h.dataOffset > size || h.rowOffset > size {
		return nil, fmt.Errorf("UTF table offsets exceed %d bytes", size)
	}
	if h.rowOffset+h.rows*h.rowSize > h.stringOffset {
		return nil, fmt.Errorf("UTF rows overlap the string table")
	}

	d := utfDecoder{data: data, h: h}
	name, err := d.stringAt(h.nameOffset)
	if err != nil {
		return nil, fmt.Errorf("table name: %w", err)
	}

	columns := make([]utfColumn, h.fields)
	pos := 0x20
	for i := range columns {
		if pos+5 > h.rowOffset {
			return nil, fmt.Errorf("UTF schema field %d overruns the rows", i)
		}
		flags := data[pos]
		colName, err := d.stringAt(int(be.Uint32(data[pos+1:])))
		if err != nil {
			return nil, fmt.Errorf("field %d name: %w", i, err)
		}
		pos += 5

		columns[i] = utfColumn{name: colName, flags: flags}
		switch flags & storageMask {
		case storageZero:
			columns[i].value, columns[i].present = zeroValue(flags&typeMask), true
		case storageConstant, storageConstant2:
			v, n, err := d.value(pos, flags&typeMask)
			if err != nil {
				return nil, fmt.Errorf("constant %s: %w", colName, err)
			}
			columns[i].value, columns[i].present = v, true
			pos += n
		case storagePerRow:
		default:
			return nil, fmt.Errorf("field %s has unknown storage 0x%02X", colName, flags&storageMask)
		}
	}

	t := &Table{Name: name, Columns: make([]string, len(columns)), Rows: make([]Row, h.rows)}
	for i, c := range columns {
		t.Columns[i] = c.name
	}
	for r := range t.Rows {
		row := make(Row, len(columns))
		pos := h.rowOffset + r*h.rowSize
		end := pos + h.rowSize
		for _, c := range columns {
			if c.present {
				row[c.name] = c.value
				continue
			}
			v, n, err := d.value(pos, c.flags&typeMask)
			if err != nil {
				return nil, fmt.Errorf("row %d field %s: %w", r, c.name, err)
			}
			if pos+n > end {
				return nil, fmt.Errorf("row %d overruns its %d bytes", r, h.rowSize)
			}
			row[c.name] = v
			pos += n
		}
		t.Rows[r] = row
	}
	return t, nil
}

type utfDecoder struct {
	data []byte
	h    utfHeader
}

func (d utfDecoder) stringAt(offset int) (string, error) {
	limit := len(d.data)
	if d.h.dataOffset > d.h.stringOffset {
		limit = d.h.dataOffset
	}
	start := d.h.stringOffset + offset
	if offset < 0 || start >= limit {
		return "", fmt.Errorf("string offset %d out of range", offset)
	}
	end := bytes.IndexByte(d.data[start:limit], 0)
	if end < 0 {
		return "", fmt.Errorf("unterminated string at %d", offset)
	}
	return string(d.data[start : start+end]), nil
}

func typeWidth(typ byte) int {
	switch typ {
	case typeUint8, typeInt8:
		return 1
	case typeUint16, typeInt16:
		return 2
	case typeUint32, typeInt32, typeFloat32, typeString:
		return 4
	case typeUint64, typeInt64, typeData:
		return 8
	}
	return 0
}

func zeroValue(typ byte) any {
	switch typ {
	case typeUint8:
		return uint8(0)
	case typeInt8:
		return int8(0)
	case typeUint16:
		return uint16(0)
	case typeInt16:
		return int16(0)
	case typeUint32:
		return uint32(0)
	case typeInt32:
		return int32(0)
	case typeUint64:
		return uint64(0)
	case typeInt64:
		return int64(0)
	case typeFloat32:
		return float32(0)
	case typeString:
		return ""
	}
	return []byte(nil)
}

// value decodes one value of typ at pos and returns it with its stored width.
func (d utfDecoder) value(pos int, typ byte) (any, int, error) {
	n := typeWidth(typ)
	if n == 0 {
		return nil, 0, fmt.Errorf("unknown column type 0x%X", typ)
	}
	if pos+n > len(d.data) {
		return nil, 0, fmt.Errorf("value at %d overruns the table", pos)
	}
	be := binary.BigEndian
	b := d.data[pos:]
	switch typ {
	case typeUint8:
		return b[0], n, nil
	case typeInt8:
		return int8(b[0]), n, nil
	case typeUint16:
		return be.Uint16(b), n, nil
	case typeInt16:
		return int16(be.Uint16(b)), n, nil
	case typeUint32:
		return be.Uint32(b), n, nil
	case typeInt32:
		return int32(be.Uint32(b)), n, nil
	case typeUint64:
		return be.Uint64(b), n, nil
	case typeInt64:
		return int64(be.Uint64(b)), n, nil
	case typeFloat32:
		return math.Float32frombits(be.Uint32(b)), n, nil
	case typeString:
		s, err := d.stringAt(int(be.Uint32(b)))
		return s, n, err
	default:
		offset, size := int(be.Uint32(b)), int(be.Uint32(b[4:]))
		start := d.h.dataOffset + offset
		if size == 0 {
			return []byte(nil), n, nil
		}
		if start+size > len(d.data) {
			return nil, 0, fmt.Errorf("data %d+%d out of range", offset, size)
		}
		return d.data[start : start+size], n, nil
	}
}

// Int returns an integer column as int; missing and non-integer columns are 0.
func (r Row) Int(name string) int {
	switch v := r[name].(type) {
	case uint8:
		return int(v)
	case int8:
		return int(v)
	case uint16:
		return int(v)
	case int16:
		return int(v)
	case uint32:
		return int(v)
	case int32:
		return int(v)
	case uint64:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}

func (r Row) String(name string) string {
	s, _ := r[name].(string)
	return s
}

func (r Row) Bytes(name string) []byte {
	b, _ := r[name].([]byte)
	return b
}

// Has reports whether the table defines the column.
func (r Row) Has(name string) bool {
	_, ok := r[name]
	return ok
}
