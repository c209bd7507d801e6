// Package fakefs provides an in-memory FileSystem for testing.
package fakefs

import (
	"errors"
	"io/fs"
	"sync"

	"github.com/acolita/secure-automation-mcp/internal/ports"
)

// FS is an in-memory implementation of ports.FileSystem.
type FS struct {
	mu    sync.RWMutex
	files map[string][]byte
	env   map[string]string
	home  string
}

// New creates an empty fake filesystem with a default home directory.
func New() *FS {
	return &FS{
		files: make(map[string][]byte),
		env:   make(map[string]string),
		home:  "/home/user",
	}
}

// ReadFile returns the contents stored under name, or fs.ErrNotExist.
func (f *FS) ReadFile(name string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, ok := f.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// UserHomeDir returns the configured home directory.
func (f *FS) UserHomeDir() (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.home == "" {
		return "", errors.New("home directory not set")
	}
	return f.home, nil
}

// Getenv returns the configured value for key, or "" when unset.
func (f *FS) Getenv(key string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.env[key]
}

// AddFile stores a copy of data under name.
func (f *FS) AddFile(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	f.files[name] = stored
}

// SetEnv sets the value returned by Getenv for key.
func (f *FS) SetEnv(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.env[key] = value
}

// SetHomeDir sets the directory returned by UserHomeDir. An empty string
// makes UserHomeDir fail.
func (f *FS) SetHomeDir(dir string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.home = dir
}

// Ensure FS implements ports.FileSystem.
var _ ports.FileSystem = (*FS)(nil)
