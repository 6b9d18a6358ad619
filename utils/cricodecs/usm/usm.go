// Package usm demuxes the audio streams of CRI USM movie containers.
package usm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"

	"haruki-hca/utils/cricodecs/acb"
)

const (
	CodecADX = 2
	CodecHCA = 4
)

const (
	chunkData   = 0
	chunkHeader = 1

	chunkPrefixSize = 8
	// audio payloads stay in the clear up to this offset
	audioMaskStart = 0x140
)

var ErrNotUSM = errors.New("bad CRID signature")

// AudioStream is one @SFA channel of a movie.
type AudioStream struct {
	Channel    int
	Codec      int
	SampleRate int
	Channels   int
	Data       []byte
}

// IsHCA reports whether the stream carries HCA, by its header or by its first bytes
// when the header is missing.
func (s *AudioStream) IsHCA() bool {
	if s.Codec == CodecHCA {
		return true
	}
	d := s.Data
	return s.Codec == 0 && len(d) >= 4 && d[0]&0x7F == 'H' && d[1]&0x7F == 'C' && d[2]&0x7F == 'A' && d[3]&0x7F == 0
}

// File is the audio content of a USM.
type File struct {
	Filename string
	Audio    []*AudioStream
}

// Name returns the stream file name without its directory and extension.
func (f *File) Name() string {
	base := filepath.Base(strings.ReplaceAll(f.Filename, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type chunk struct {
	sig      string
	channel  int
	dataType int
	payload  []byte
}

func readChunk(data []byte, pos int) (chunk, int, error) {
	if len(data)-pos < chunkPrefixSize {
		return chunk{}, 0, fmt.Errorf("truncated chunk at 0x%X", pos)
	}
	be := binary.BigEndian
	c := chunk{sig: string(data[pos : pos+4])}
	blockSize := int(be.Uint32(data[pos+4:]))
	end := pos + chunkPrefixSize + blockSize
	if blockSize < 0x10 || end > len(data) || end < pos {
		return chunk{}, 0, fmt.Errorf("%s chunk at 0x%X: size 0x%X out of range", c.sig, pos, blockSize)
	}

	body := data[pos+chunkPrefixSize : end]
	headerSize := int(be.Uint16(body[0:]))
	footerSize := int(be.Uint16(body[2:]))
	if headerSize < 8 || headerSize+footerSize > blockSize {
		return chunk{}, 0, fmt.Errorf("%s chunk at 0x%X: header 0x%X and footer 0x%X exceed size 0x%X",
			c.sig, pos, headerSize, footerSize, blockSize)
	}
	c.channel = int(body[4])
	c.dataType = int(body[7] & 3)
	c.payload = body[headerSize : blockSize-footerSize]
	return c, end, nil
}

// Demux collects the @SFA streams of data. key unmasks audio payloads; 0 means
// the movie is not encrypted.
func Demux(data []byte, key uint64) (*File, error) {
	if len(data) < 4 || string(data[:4]) != "CRID" {
		return nil, ErrNotUSM
	}

	var mask [0x20]byte
	if key != 0 {
		mask = AudioMask(key)
	}

	f := &File{}
	streams := map[int]*AudioStream{}
	stream := func(channel int) *AudioStream {
		s, ok := streams[channel]
		if !ok {
			s = &AudioStream{Channel: channel}
			streams[channel] = s
			f.Audio = append(f.Audio, s)
		}
		return s
	}

	for pos := 0; pos < len(data); {
		c, next, err := readChunk(data, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		switch {
		case c.sig == "CRID" && c.dataType == chunkHeader:
			table, err := acb.ParseTable(c.payload)
			if err != nil {
				return nil, fmt.Errorf("CRID header: %w", err)
			}
			if n := len(table.Rows); n > 0 {
				f.Filename = decodeName(table.Rows[n-1].String("filename"))
			}
		case c.sig == "@SFA" && c.dataType == chunkHeader:
			table, err := acb.ParseTable(c.payload)
			if err != nil {
				return nil, fmt.Errorf("@SFA header of channel %d: %w", c.channel, err)
			}
			s := stream(c.channel)
			if len(table.Rows) > 0 {
				r := table.Rows[0]
				s.Codec = r.Int("audio_codec")
				s.SampleRate = r.Int("sampling_rate")
				s.Channels = r.Int("num_channels")
			}
		case c.sig == "@SFA" && c.dataType == chunkData:
			payload := c.payload
			if key != 0 {
				payload = append([]byte(nil), payload...)
				MaskAudio(payload, mask)
			}
			s := stream(c.channel)
			s.Data = append(s.Data, payload...)
		}
	}
	return f, nil
}

// decodeName returns a stored file name as UTF-8; names written by Japanese tools are often Shift-JIS.
func decodeName(raw string) string {
	if utf8.ValidString(raw) {
		return raw
	}
	if s, err := japanese.ShiftJIS.NewDecoder().String(raw); err == nil {
		return s
	}
	return raw
}

// AudioMask derives the 32-byte XOR mask of @SFA payloads from a movie key.
func AudioMask(key uint64) [0x20]byte {
	key1 := uint32(key)
	key2 := uint32(key >> 32)

	var t [0x20]byte
	t[0x00] = byte(key1)
	t[0x01] = byte(key1 >> 8)
	t[0x02] = byte(key1 >> 16)
	t[0x03] = byte(key1>>24) - 0x34
	t[0x04] = byte(key2&0xF) + 0xF9
	t[0x05] = byte(key2>>8) ^ 0x13
	t[0x06] = byte(key2>>16) + 0x61
	t[0x07] = t[0x00] ^ 0xFF
	t[0x08] = t[0x02] + t[0x01]
	t[0x09] = t[0x01] - t[0x07]
	t[0x0A] = t[0x02] ^ 0xFF
	t[0x0B] = t[0x01] ^ 0xFF
	t[0x0C] = t[0x0B] + t[0x09]
	t[0x0D] = t[0x08] - t[0x03]
	t[0x0E] = t[0x0D] ^ 0xFF
	t[0x0F] = t[0x0A] - t[0x0B]
	t[0x10] = t[0x08] - t[0x0F]
	t[0x11] = t[0x10] ^ t[0x07]
	t[0x12] = t[0x0F] ^ 0xFF
	t[0x13] = t[0x03] ^ 0x10
	t[0x14] = t[0x04] - 0x32
	t[0x15] = t[0x05] + 0xED
	t[0x16] = t[0x06] ^ 0xF3
	t[0x17] = t[0x13] - t[0x0F]
	t[0x18] = t[0x15] + t[0x07]
	t[0x19] = 0x21 - t[0x13]
	t[0x1A] = t[0x14] ^ t[0x17]
	t[0x1B] = t[0x16] + t[0x16]
	t[0x1C] = t[0x17] + 0x44
	t[0x1D] = t[0x03] + t[0x04]
	t[0x1E] = t[0x05] - t[0x16]
	t[0x1F] = t[0x1D] ^ t[0x13]

	const urc = "URUC"
	var mask [0x20]byte
	for i, b := range t {
		if i&1 != 0 {
			mask[i] = urc[(i>>1)&3]
		} else {
			mask[i] = b ^ 0xFF
		}
	}
	return mask
}

// MaskAudio XORs an @SFA data payload with mask in place. Masking twice restores the payload.
func MaskAudio(payload []byte, mask [0x20]byte) {
	for i := audioMaskStart; i < len(payload); i++ {
		payload[i] ^= mask[i&0x1F]
	}
}
