// Package vault stashes named secrets in the operating system keyring
// (macOS Keychain, Linux Secret Service, Windows Credential Manager), with a
// wiped in-memory fallback when no keyring is available.
package vault

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/acolita/secure-automation-mcp/internal/adapters/realclock"
	"github.com/acolita/secure-automation-mcp/internal/ports"
	"github.com/acolita/secure-automation-mcp/internal/security"
)

// Service is the service name used for keyring entries.
const Service = "secure-automation-mcp"

// DefaultMemoryTTL bounds how long fallback entries live in memory before
// they are wiped.
const DefaultMemoryTTL = 30 * time.Minute

type memoryEntry struct {
	data     []byte
	storedAt time.Time
}

// Store holds named secrets. Secrets are wiped from memory on delete and on
// TTL expiry; keyring persistence is delegated to the operating system.
type Store struct {
	mu      sync.Mutex
	keyring bool
	memory  map[string]*memoryEntry
	ttl     time.Duration
	clock   ports.Clock
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock sets the clock used for memory-entry expiry (for testing).
func WithClock(clock ports.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithMemoryTTL sets the lifetime of fallback in-memory entries.
func WithMemoryTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithoutKeyring forces the in-memory fallback even when a keyring is
// available. Useful for tests and for callers that must not persist secrets.
func WithoutKeyring() Option {
	return func(s *Store) {
		s.keyring = false
	}
}

// NewStore creates a secret store. Keyring availability is probed with a
// throwaway entry; when the probe fails the store degrades to memory-only
// and says so at debug level.
func NewStore(opts ...Option) *Store {
	s := &Store{
		keyring: true,
		memory:  make(map[string]*memoryEntry),
		ttl:     DefaultMemoryTTL,
		clock:   realclock.New(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.keyring {
		probe := "__secure_automation_probe__"
		if err := keyring.Set(Service, probe, "probe"); err != nil {
			s.logger.Debug("keyring not available, using memory-only storage",
				slog.String("error", err.Error()),
			)
			s.keyring = false
		} else {
			_ = keyring.Delete(Service, probe)
		}
	}
	return s
}

// Keyring reports whether secrets are persisted in the OS keyring.
func (s *Store) Keyring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyring
}

// Put stores secret under name, replacing any previous value. The caller's
// slice is copied; the caller should wipe its own copy afterwards.
func (s *Store) Put(name string, secret []byte) error {
	if name == "" {
		return fmt.Errorf("secret name is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keyring {
		// Base64 so binary secrets survive the keyring's string interface.
		encoded := base64.StdEncoding.EncodeToString(secret)
		if err := keyring.Set(Service, name, encoded); err != nil {
			return fmt.Errorf("store secret %q: %w", name, err)
		}
		return nil
	}

	if prev, ok := s.memory[name]; ok {
		security.WipeBytes(prev.data)
	}
	data := make([]byte, len(secret))
	copy(data, secret)
	s.memory[name] = &memoryEntry{data: data, storedAt: s.clock.Now()}
	return nil
}

// Get returns a copy of the secret stored under name, or (nil, nil) when no
// such secret exists. Expired memory entries are wiped and reported absent.
func (s *Store) Get(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keyring {
		encoded, err := keyring.Get(Service, name)
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("get secret %q: %w", name, err)
		}
		secret, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode secret %q: %w", name, err)
		}
		return secret, nil
	}

	entry, ok := s.memory[name]
	if !ok {
		return nil, nil
	}
	if s.clock.Now().Sub(entry.storedAt) > s.ttl {
		security.WipeBytes(entry.data)
		delete(s.memory, name)
		return nil, nil
	}

	secret := make([]byte, len(entry.data))
	copy(secret, entry.data)
	return secret, nil
}

// Delete removes the secret stored under name. Deleting an absent secret is
// a no-op.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keyring {
		if err := keyring.Delete(Service, name); err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("delete secret %q: %w", name, err)
		}
		return nil
	}

	if entry, ok := s.memory[name]; ok {
		security.WipeBytes(entry.data)
		delete(s.memory, name)
	}
	return nil
}

// Purge wipes and removes every in-memory entry. Keyring entries are left to
// the operating system.
func (s *Store) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, entry := range s.memory {
		security.WipeBytes(entry.data)
		delete(s.memory, name)
	}
}
