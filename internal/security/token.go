package security

import (
	"encoding/hex"
	"fmt"

	"github.com/acolita/secure-automation-mcp/internal/adapters/realrand"
	"github.com/acolita/secure-automation-mcp/internal/ports"
)

// DefaultTokenBytes is the token byte length used when callers pass a
// non-positive length.
const DefaultTokenBytes = 32

// TokenGenerator produces hex-encoded tokens from a cryptographically secure
// random source. It is never seeded from predictable state such as time or
// PID; the default source is the operating system CSPRNG.
type TokenGenerator struct {
	rand ports.Random
}

// TokenGeneratorOption configures a TokenGenerator.
type TokenGeneratorOption func(*TokenGenerator)

// WithRandom sets the random source (for testing).
func WithRandom(r ports.Random) TokenGeneratorOption {
	return func(g *TokenGenerator) {
		g.rand = r
	}
}

// NewTokenGenerator creates a token generator backed by crypto/rand.
func NewTokenGenerator(opts ...TokenGeneratorOption) *TokenGenerator {
	g := &TokenGenerator{rand: realrand.New()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Token returns a fresh random token of numBytes bytes, hex encoded to
// 2*numBytes characters. The intermediate buffer is wiped before returning.
func (g *TokenGenerator) Token(numBytes int) (string, error) {
	if numBytes <= 0 {
		numBytes = DefaultTokenBytes
	}

	buf := make([]byte, numBytes)
	if _, err := g.rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	token := hex.EncodeToString(buf)
	WipeBytes(buf)
	return token, nil
}
