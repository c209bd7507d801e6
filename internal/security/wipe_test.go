package security

import (
	"testing"
)

func TestWipeBytes_NonEmpty(t *testing.T) {
	data := []byte("sensitive-data-1234")

	WipeBytes(data)

	for i, b := range data {
		if b != 0 {
			t.Errorf("WipeBytes did not zero byte at index %d: got %d, want 0", i, b)
		}
	}
}

func TestWipeBytes_Empty(t *testing.T) {
	// Should not panic on empty slice
	WipeBytes([]byte{})
}

func TestWipeBytes_Nil(t *testing.T) {
	// Should not panic on nil slice
	var data []byte
	WipeBytes(data)
}

func TestWipeBytes_SingleByte(t *testing.T) {
	data := []byte{0xFF}
	WipeBytes(data)

	if data[0] != 0 {
		t.Errorf("WipeBytes did not zero single byte: got %d, want 0", data[0])
	}
}
