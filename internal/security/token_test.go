package security

import (
	"encoding/hex"
	"testing"

	"github.com/acolita/secure-automation-mcp/internal/testing/fakes/fakerand"
)

func TestToken_Length(t *testing.T) {
	g := NewTokenGenerator()

	tests := []struct {
		name     string
		numBytes int
		wantLen  int
	}{
		{name: "16 bytes", numBytes: 16, wantLen: 32},
		{name: "32 bytes", numBytes: 32, wantLen: 64},
		{name: "1 byte", numBytes: 1, wantLen: 2},
		{name: "zero defaults", numBytes: 0, wantLen: 2 * DefaultTokenBytes},
		{name: "negative defaults", numBytes: -5, wantLen: 2 * DefaultTokenBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := g.Token(tt.numBytes)
			if err != nil {
				t.Fatalf("Token(%d) error = %v", tt.numBytes, err)
			}
			if len(token) != tt.wantLen {
				t.Errorf("Token(%d) length = %d, want %d", tt.numBytes, len(token), tt.wantLen)
			}
			if _, err := hex.DecodeString(token); err != nil {
				t.Errorf("Token(%d) = %q is not valid hex: %v", tt.numBytes, token, err)
			}
		})
	}
}

func TestToken_Distinct(t *testing.T) {
	g := NewTokenGenerator()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := g.Token(16)
		if err != nil {
			t.Fatalf("Token error = %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token %q after %d draws", token, i)
		}
		seen[token] = true
	}
}

func TestToken_InjectedSource(t *testing.T) {
	g := NewTokenGenerator(WithRandom(fakerand.NewFixed([]byte{0xAB, 0xCD})))

	token, err := g.Token(2)
	if err != nil {
		t.Fatalf("Token error = %v", err)
	}
	if token != "abcd" {
		t.Errorf("Token = %q, want %q", token, "abcd")
	}
}
