// Package realfs provides a real implementation of the FileSystem port using the os package.
package realfs

import (
	"os"

	"github.com/acolita/secure-automation-mcp/internal/ports"
)

// FS implements ports.FileSystem using the standard os package.
type FS struct{}

// New returns a new real FileSystem.
func New() *FS {
	return &FS{}
}

// ReadFile reads the named file and returns its contents.
func (f *FS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// UserHomeDir returns the current user's home directory.
func (f *FS) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

// Getenv retrieves the value of the environment variable named by the key.
func (f *FS) Getenv(key string) string {
	return os.Getenv(key)
}

// Ensure FS implements ports.FileSystem.
var _ ports.FileSystem = (*FS)(nil)
