package hca

import "errors"

var (
	// ErrHeaderInvalid reports a malformed or unsupported stream header.
	ErrHeaderInvalid = errors.New("hca: invalid header")
	// ErrSync reports a frame that does not start with the 0xFFFF sync word.
	ErrSync = errors.New("hca: frame sync error")
	// ErrChecksum reports a frame whose CRC16 does not verify.
	ErrChecksum = errors.New("hca: frame checksum error")
	// ErrShortBuffer reports a frame buffer smaller than the declared frame size.
	ErrShortBuffer = errors.New("hca: frame buffer too short")
	// ErrInvalidScaleFactor reports a scale factor delta outside [0, 64).
	ErrInvalidScaleFactor = errors.New("hca: invalid scale factor")
	// ErrInvalidIntensity reports an intensity delta above 15.
	ErrInvalidIntensity = errors.New("hca: invalid intensity")
	// ErrNotInitialized reports a decode call before a header was accepted.
	ErrNotInitialized = errors.New("hca: decoder not initialized")
)
