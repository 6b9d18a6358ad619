package hcacommon

import (
	"errors"
	"fmt"
)

// Cipher types declared by the "ciph" header chunk.
const (
	CipherNone  = 0
	CipherFixed = 1
	CipherKeyed = 56
)

var ErrInvalidCipherType = errors.New("invalid cipher type")

// CipherTable maps encrypted bytes to plain bytes.
type CipherTable [256]byte

// CipherInit builds the substitution table for the given cipher type.
// A keyed cipher with a zero key decrypts nothing and yields the identity table.
func CipherInit(cipherType uint, keycode uint64) (CipherTable, error) {
	var table CipherTable

	if cipherType == CipherKeyed && keycode == 0 {
		cipherType = CipherNone
	}

	switch cipherType {
	case CipherNone:
		cipherInit0(&table)
	case CipherFixed:
		cipherInit1(&table)
	case CipherKeyed:
		cipherInit56(&table, keycode)
	default:
		return table, fmt.Errorf("%w: %d", ErrInvalidCipherType, cipherType)
	}
	return table, nil
}

// CipherDecrypt substitutes every byte of data in place.
func CipherDecrypt(table *CipherTable, data []byte) {
	for i, b := range data {
		data[i] = table[b]
	}
}

func cipherInit0(table *CipherTable) {
	for i := range table {
		table[i] = byte(i)
	}
}

func cipherInit1(table *CipherTable) {
	const mul = 13
	const add = 11
	v := uint(0)

	for i := 1; i < 255; i++ {
		v = (v*mul + add) & 0xFF
		if v == 0 || v == 0xFF {
			v = (v*mul + add) & 0xFF
		}
		table[i] = byte(v)
	}
	table[0] = 0
	table[0xFF] = 0xFF
}

// cipherInit56Row fills r with a 4-bit LCG sequence seeded by key.
func cipherInit56Row(r *[16]byte, key byte) {
	mul := ((key & 1) << 3) | 5
	add := (key & 0xE) | 1

	key >>= 4
	for i := range r {
		key = (key*mul + add) & 0xF
		r[i] = key
	}
}

func cipherInit56(table *CipherTable, keycode uint64) {
	var kc [8]byte
	var seed [16]byte
	var base [256]byte
	var rows, cols [16]byte

	if keycode != 0 {
		keycode--
	}
	for i := 0; i < 7; i++ {
		kc[i] = byte(keycode)
		keycode >>= 8
	}

	seed[0x00] = kc[1]
	seed[0x01] = kc[1] ^ kc[6]
	seed[0x02] = kc[2] ^ kc[3]
	seed[0x03] = kc[2]
	seed[0x04] = kc[2] ^ kc[1]
	seed[0x05] = kc[3] ^ kc[4]
	seed[0x06] = kc[3]
	seed[0x07] = kc[3] ^ kc[2]
	seed[0x08] = kc[4] ^ kc[5]
	seed[0x09] = kc[4]
	seed[0x0A] = kc[4] ^ kc[3]
	seed[0x0B] = kc[5] ^ kc[6]
	seed[0x0C] = kc[5]
	seed[0x0D] = kc[5] ^ kc[4]
	seed[0x0E] = kc[6] ^ kc[1]
	seed[0x0F] = kc[6]

	cipherInit56Row(&rows, kc[0])
	for r := 0; r < 16; r++ {
		cipherInit56Row(&cols, seed[r])
		hi := rows[r] << 4
		for c := 0; c < 16; c++ {
			base[r*16+c] = hi | cols[c]
		}
	}

	// walk base with stride 17, dropping the fixed points 0x00 and 0xFF
	x := 0
	pos := 1
	for i := 0; i < 256 && pos < 255; i++ {
		x = (x + 17) & 0xFF
		if base[x] != 0 && base[x] != 0xFF {
			table[pos] = base[x]
			pos++
		}
	}
	table[0] = 0
	table[0xFF] = 0xFF
}
