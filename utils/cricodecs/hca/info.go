package hca

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"

	"haruki-hca/utils/cricodecs/hcacommon"
)

// HCAInfo describes a loaded stream.
type HCAInfo struct {
	Version           uint    `json:"version" msgpack:"version"`
	HeaderSize        uint    `json:"header_size" msgpack:"header_size"`
	SamplingRate      uint    `json:"sampling_rate" msgpack:"sampling_rate"`
	ChannelCount      uint    `json:"channel_count" msgpack:"channel_count"`
	BlockSize         uint    `json:"block_size" msgpack:"block_size"`
	BlockCount        uint    `json:"block_count" msgpack:"block_count"`
	EncoderDelay      uint    `json:"encoder_delay" msgpack:"encoder_delay"`
	EncoderPadding    uint    `json:"encoder_padding" msgpack:"encoder_padding"`
	LoopEnabled       bool    `json:"loop_enabled" msgpack:"loop_enabled"`
	LoopStartBlock    uint    `json:"loop_start_block" msgpack:"loop_start_block"`
	LoopEndBlock      uint    `json:"loop_end_block" msgpack:"loop_end_block"`
	LoopStartDelay    uint    `json:"loop_start_delay" msgpack:"loop_start_delay"`
	LoopEndPadding    uint    `json:"loop_end_padding" msgpack:"loop_end_padding"`
	SamplesPerBlock   uint    `json:"samples_per_block" msgpack:"samples_per_block"`
	Comment           string  `json:"comment,omitempty" msgpack:"comment"`
	EncryptionEnabled bool    `json:"encryption_enabled" msgpack:"encryption_enabled"`
	CipherType        uint    `json:"cipher_type" msgpack:"cipher_type"`
	AthType           uint    `json:"ath_type" msgpack:"ath_type"`
	RvaVolume         float32 `json:"rva_volume" msgpack:"rva_volume"`
}

// SampleCount is the number of playable samples per channel, without encoder delay and padding.
func (info *HCAInfo) SampleCount() uint {
	return info.BlockCount*info.SamplesPerBlock - info.EncoderDelay - info.EncoderPadding
}

// LoopStartSample is the first sample of the loop, counted from the first playable sample.
func (info *HCAInfo) LoopStartSample() uint {
	return info.LoopStartBlock*info.SamplesPerBlock - info.EncoderDelay + info.LoopStartDelay
}

// LoopEndSample is the sample just past the loop, counted from the first playable sample.
func (info *HCAInfo) LoopEndSample() uint {
	return info.LoopEndBlock*info.SamplesPerBlock - info.EncoderDelay + (info.SamplesPerBlock - info.LoopEndPadding)
}

// GetInfo returns the properties of the loaded stream.
func (hca *ClHCA) GetInfo() (*HCAInfo, error) {
	if !hca.isValid {
		return nil, ErrNotInitialized
	}

	return &HCAInfo{
		Version:           hca.version,
		HeaderSize:        hca.headerSize,
		SamplingRate:      hca.sampleRate,
		ChannelCount:      hca.channels,
		BlockSize:         hca.frameSize,
		BlockCount:        hca.frameCount,
		EncoderDelay:      hca.encoderDelay,
		EncoderPadding:    hca.encoderPadding,
		LoopEnabled:       hca.loopFlag,
		LoopStartBlock:    hca.loopStartFrame,
		LoopEndBlock:      hca.loopEndFrame,
		LoopStartDelay:    hca.loopStartDelay,
		LoopEndPadding:    hca.loopEndPadding,
		SamplesPerBlock:   hcaSamplesPerFrame,
		Comment:           decodeComment(hca.comment),
		EncryptionEnabled: hca.ciphType == hcacommon.CipherKeyed,
		CipherType:        hca.ciphType,
		AthType:           hca.athType,
		RvaVolume:         hca.rvaVolume,
	}, nil
}

// decodeComment returns the comment as UTF-8; comments from Japanese tools are often Shift-JIS.
func decodeComment(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	if utf8.Valid(raw) {
		return string(raw)
	}
	if s, err := japanese.ShiftJIS.NewDecoder().Bytes(raw); err == nil {
		return string(s)
	}
	return string(raw)
}
