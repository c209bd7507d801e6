package ports

// FileSystem abstracts the file reads and environment lookups used to locate
// and load configuration, so tests can supply a fake.
type FileSystem interface {
	// ReadFile reads the named file and returns its contents.
	ReadFile(name string) ([]byte, error)

	// UserHomeDir returns the current user's home directory.
	UserHomeDir() (string, error)

	// Getenv retrieves the value of the environment variable named by the key.
	Getenv(key string) string
}
