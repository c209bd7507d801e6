package security

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"

	"golang.org/x/crypto/sha3"
)

// hashConstructors maps normalized algorithm names to digest constructors.
var hashConstructors = map[string]func() hash.Hash{
	"sha256":   sha256.New,
	"sha384":   sha512.New384,
	"sha512":   sha512.New,
	"sha3-256": sha3.New256,
	"sha3-512": sha3.New512,
}

// HashData returns the hex digest of data under the named algorithm.
// Algorithm names are matched case-insensitively. Unknown names fail with
// ErrUnsupportedAlgorithm rather than falling back to a default.
func HashData(data []byte, algorithm string) (string, error) {
	constructor, ok := hashConstructors[strings.ToLower(algorithm)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}

	h := constructor()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Algorithms returns the supported algorithm names, sorted.
func Algorithms() []string {
	names := make([]string, 0, len(hashConstructors))
	for name := range hashConstructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
