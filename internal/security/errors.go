// Package security provides the security primitives shared across
// secure-automation-mcp: the error taxonomy for intentional rejections,
// token generation, content hashing, and in-memory wiping of sensitive
// buffers.
package security

import "errors"

// Intentional security rejections. These are expected, recoverable-by-caller
// conditions and must never be downgraded to warnings or swallowed.
var (
	// ErrPathTraversal is returned for any input containing a parent-directory
	// segment, before resolution.
	ErrPathTraversal = errors.New("path traversal detected")

	// ErrPathEscapesBoundary is returned when a canonical path resolves
	// outside its allowed base directory.
	ErrPathEscapesBoundary = errors.New("path escapes allowed base")

	// ErrPathDenied is returned when a canonical path matches a configured
	// deny pattern.
	ErrPathDenied = errors.New("path matches denied pattern")

	// ErrCommandNotAllowed is returned when a program name is absent from a
	// supplied allowlist. Absence is the default-deny state.
	ErrCommandNotAllowed = errors.New("command not allowed")

	// ErrInvalidCommand is returned for an empty argument vector.
	ErrInvalidCommand = errors.New("invalid command")
)

// Operational errors. These carry enough context when wrapped for the caller
// to retry or abort.
var (
	// ErrCommandTimeout is returned when an external process exceeds its
	// timeout. The process is terminated before the error is returned.
	ErrCommandTimeout = errors.New("command timed out")

	// ErrUnsupportedAlgorithm is returned for unknown hash algorithm names.
	// There is no silent fallback.
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")
)

var rejections = []error{
	ErrPathTraversal,
	ErrPathEscapesBoundary,
	ErrPathDenied,
	ErrCommandNotAllowed,
	ErrInvalidCommand,
}

// IsRejection reports whether err is an intentional security rejection, as
// opposed to an ordinary I/O or infrastructure failure. Callers use this to
// distinguish "refused by policy" from "broken environment".
func IsRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
