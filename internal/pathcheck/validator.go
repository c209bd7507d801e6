// Package pathcheck validates caller-supplied paths before any filesystem
// access: traversal rejection, canonical resolution, containment within an
// allowed base, and optional deny patterns.
package pathcheck

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/acolita/secure-automation-mcp/internal/security"
)

// Validator resolves and checks candidate paths. The zero value applies the
// traversal check and canonicalization only; deny patterns are added via New.
type Validator struct {
	denyGlobs []string
}

// New creates a validator with the given deny patterns (doublestar syntax,
// e.g. "**/.ssh/**"). Patterns are matched against canonical paths, so they
// cannot be bypassed with alternate spellings.
func New(denyGlobs ...string) (*Validator, error) {
	for _, pattern := range denyGlobs {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid deny pattern %q", pattern)
		}
	}
	return &Validator{denyGlobs: denyGlobs}, nil
}

// Validate returns the canonical absolute form of path.
//
// Any ".." segment in the raw input fails with security.ErrPathTraversal
// before resolution; resolution alone would collapse the segments and mask
// the caller's intent. If allowedBase is non-empty, the canonical path must
// equal or descend from the canonical base or the call fails with
// security.ErrPathEscapesBoundary. Containment is checked on canonical forms,
// never string prefixes, so symlinks pointing outside the base are caught.
//
// Validate does not require the path to exist and never creates or reads it;
// existence is the caller's concern.
func (v *Validator) Validate(path, allowedBase string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", security.ErrPathTraversal)
	}
	if containsParentSegment(path) {
		return "", fmt.Errorf("%w: %q", security.ErrPathTraversal, path)
	}

	resolved, err := canonicalize(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}

	if allowedBase != "" {
		base, err := canonicalize(allowedBase)
		if err != nil {
			return "", fmt.Errorf("resolve base %q: %w", allowedBase, err)
		}
		if !contains(base, resolved) {
			return "", fmt.Errorf("%w: %q is outside %q", security.ErrPathEscapesBoundary, resolved, base)
		}
	}

	for _, pattern := range v.denyGlobs {
		matched, err := doublestar.Match(pattern, filepath.ToSlash(resolved))
		if err != nil {
			return "", fmt.Errorf("match deny pattern %q: %w", pattern, err)
		}
		if matched {
			return "", fmt.Errorf("%w: %q matches %q", security.ErrPathDenied, resolved, pattern)
		}
	}

	return resolved, nil
}

// containsParentSegment reports whether the raw input has a ".." path
// segment. This is a textual check on the string as supplied, not on any
// resolved form.
func containsParentSegment(path string) bool {
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}

// contains reports whether candidate equals base or lies beneath it. Both
// arguments must already be canonical.
func contains(base, candidate string) bool {
	rel, err := filepath.Rel(base, candidate)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// canonicalize resolves path to an absolute, symlink-free, cleaned form. The
// leaf is not required to exist: symlinks are resolved on the deepest
// existing ancestor and the non-existent remainder is re-joined.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	dir := abs
	var rest string
	for {
		parent := filepath.Dir(dir)
		if rest == "" {
			rest = filepath.Base(dir)
		} else {
			rest = filepath.Join(filepath.Base(dir), rest)
		}
		if parent == dir {
			// Walked to the root without finding an existing ancestor.
			return abs, nil
		}
		dir = parent

		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(resolved, rest), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
}
