package hcacommon

import "testing"

func TestChecksum_CheckValue(t *testing.T) {
	t.Parallel()

	if got := Checksum([]byte("123456789")); got != 0xFEE8 {
		t.Errorf("Checksum() = 0x%04X, want 0xFEE8", got)
	}
}

func TestChecksum_TrailingSumIsZero(t *testing.T) {
	t.Parallel()

	data := []byte("123456789")
	sum := Checksum(data)
	data = append(data, byte(sum>>8), byte(sum))

	if got := Checksum(data); got != 0 {
		t.Errorf("Checksum(data+crc) = 0x%04X, want 0", got)
	}
}

func TestChecksum_Empty(t *testing.T) {
	t.Parallel()

	if got := Checksum(nil); got != 0 {
		t.Errorf("Checksum(nil) = 0x%04X, want 0", got)
	}
}
