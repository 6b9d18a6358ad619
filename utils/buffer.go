package utils

import (
	"errors"
	"io"
)

// WriteSeekBuffer is an in-memory io.WriteSeeker. WAV encoders seek back to
// patch chunk sizes, which a bytes.Buffer cannot do.
type WriteSeekBuffer struct {
	buf []byte
	pos int
}

// NewWriteSeekBuffer returns an empty buffer with room for size bytes.
func NewWriteSeekBuffer(size int) *WriteSeekBuffer {
	return &WriteSeekBuffer{buf: make([]byte, 0, size)}
}

func (b *WriteSeekBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.buf) {
		if end > cap(b.buf) {
			grown := make([]byte, end, max(end, 2*cap(b.buf)))
			copy(grown, b.buf)
			b.buf = grown
		} else {
			b.buf = b.buf[:end]
		}
	}
	copy(b.buf[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *WriteSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	// seeking past the end zero-fills the gap
	if abs > int64(len(b.buf)) {
		if _, err := b.Seek(0, io.SeekEnd); err != nil {
			return 0, err
		}
		if _, err := b.Write(make([]byte, abs-int64(len(b.buf)))); err != nil {
			return 0, err
		}
	}
	b.pos = int(abs)
	return abs, nil
}

// Bytes returns everything written so far.
func (b *WriteSeekBuffer) Bytes() []byte {
	return b.buf
}

func (b *WriteSeekBuffer) Len() int {
	return len(b.buf)
}
