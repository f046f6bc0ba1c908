package utils

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// ErrPathEscape indicates a manifest-relative path resolved outside its root.
var ErrPathEscape = errors.New("path escapes download root")

// EnsureAbsPath normalizes a path for consistent lookups.
func EnsureAbsPath(p string) string {
	if p == "" {
		p = "."
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Localize converts a forward-slash wire path to the local separator
// convention. Manifest paths always use forward slashes on the wire.
func Localize(wirePath string) string {
	return filepath.FromSlash(wirePath)
}

// JoinUnderRoot resolves a forward-slash relative path against root and
// rejects anything that would land outside it. Manifests come from a remote
// service, so a hostile entry like "../../etc/cron.d/x" must not be written.
func JoinUnderRoot(root, wirePath string) (string, error) {
	if wirePath == "" {
		return "", ErrPathEscape
	}

	clean := path.Clean("/" + wirePath) // rooted clean strips any ".." prefix tricks
	if clean == "/" {
		return "", ErrPathEscape
	}

	// A cleaned absolute join differing from a plain clean means the input
	// tried to climb out.
	if path.Clean(wirePath) != strings.TrimPrefix(clean, "/") {
		return "", ErrPathEscape
	}

	dest := filepath.Join(root, filepath.FromSlash(clean))
	rootAbs := EnsureAbsPath(root)
	destAbs := EnsureAbsPath(dest)
	if destAbs != rootAbs && !strings.HasPrefix(destAbs, rootAbs+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return dest, nil
}
