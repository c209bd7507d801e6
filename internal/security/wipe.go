package security

import (
	"crypto/rand"
)

// WipeBytes overwrites a sensitive byte slice in place: random data, zeros,
// random data, zeros. The slice is left zeroed. This reduces the window in
// which secrets sit in process memory; it cannot reach copies the runtime or
// garbage collector may have made, so sensitive data should live in []byte
// (never string) and be wiped as soon as it is no longer needed.
func WipeBytes(data []byte) {
	if len(data) == 0 {
		return
	}

	for pass := 0; pass < 2; pass++ {
		rand.Read(data)
		for i := range data {
			data[i] = 0
		}
	}
}
