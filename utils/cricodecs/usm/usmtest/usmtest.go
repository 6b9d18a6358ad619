// Package usmtest builds USM movies for tests.
package usmtest

import (
	"encoding/binary"

	"haruki-hca/utils/cricodecs/acb/acbtest"
	"haruki-hca/utils/cricodecs/usm"
)

const chunkHeaderSize = 0x18

// Stream is one audio channel of a movie.
type Stream struct {
	Channel int
	Codec   int
	Data    []byte
}

func appendChunk(out []byte, sig string, channel, dataType int, payload []byte) []byte {
	// payloads are padded to four bytes through the footer
	footer := (4 - len(payload)%4) % 4
	be := binary.BigEndian
	out = append(out, sig...)
	out = be.AppendUint32(out, uint32(chunkHeaderSize+len(payload)+footer))
	out = be.AppendUint16(out, chunkHeaderSize)
	out = be.AppendUint16(out, uint16(footer))
	out = append(out, byte(channel), 0, 0, byte(dataType))
	out = append(out, make([]byte, chunkHeaderSize-8)...)
	out = append(out, payload...)
	return append(out, make([]byte, footer)...)
}

func sectionEnd(label string) []byte {
	return append([]byte(label), 0)
}

// Build returns a movie named filename with a placeholder video stream and the
// given audio streams, each split into data chunks of at most chunkSize bytes.
// A non-zero key masks the audio chunks.
func Build(filename string, streams []Stream, chunkSize int, key uint64) []byte {
	dir := acbtest.Table{
		Name:    "CRIUSF_DIR_STREAM",
		Columns: []string{"filename", "filesize", "stmid", "chno"},
		Rows: [][]any{
			{filename, uint32(0), uint32(0), int16(-1)},
			{filename, uint32(0), uint32(0x40534656), int16(0)},
		},
	}
	video := acbtest.Table{
		Name:    "VIDEO_HDRINFO",
		Columns: []string{"width", "height", "total_frames"},
		Rows:    [][]any{{uint32(16), uint32(16), uint32(1)}},
	}

	out := appendChunk(nil, "CRID", 0, 1, dir.Bytes())
	out = appendChunk(out, "@SFV", 0, 1, video.Bytes())
	for _, s := range streams {
		audio := acbtest.Table{
			Name:    "AUDIO_HDRINFO",
			Columns: []string{"audio_codec", "sampling_rate", "num_channels"},
			Rows:    [][]any{{uint8(s.Codec), uint32(48000), uint8(2)}},
		}
		out = appendChunk(out, "@SFA", s.Channel, 1, audio.Bytes())
	}
	out = appendChunk(out, "@SFV", 0, 2, sectionEnd("#HEADER END"))
	for _, s := range streams {
		out = appendChunk(out, "@SFA", s.Channel, 2, sectionEnd("#HEADER END"))
	}
	out = appendChunk(out, "@SFV", 0, 2, sectionEnd("#METADATA END"))

	var mask [0x20]byte
	if key != 0 {
		mask = usm.AudioMask(key)
	}
	out = appendChunk(out, "@SFV", 0, 0, make([]byte, 0x20))
	for _, s := range streams {
		for off := 0; off < len(s.Data); off += chunkSize {
			end := min(off+chunkSize, len(s.Data))
			payload := append([]byte(nil), s.Data[off:end]...)
			if key != 0 {
				usm.MaskAudio(payload, mask)
			}
			out = appendChunk(out, "@SFA", s.Channel, 0, payload)
		}
	}
	out = appendChunk(out, "@SFV", 0, 2, sectionEnd("#CONTENTS END"))
	for _, s := range streams {
		out = appendChunk(out, "@SFA", s.Channel, 2, sectionEnd("#CONTENTS END"))
	}
	return out
}
