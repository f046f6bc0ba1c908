package asset

import (
	"os"
	"strings"

	"packfetch/internal/utils"
)

// Loader gives the converter read access to the downloaded package tree.
// Converters probe for optional referenced resources, so a missing file is
// reported as absent rather than as an error.
type Loader struct {
	root string
}

// NewLoader creates a loader rooted at the package download directory.
func NewLoader(root string) *Loader {
	return &Loader{root: root}
}

// Root returns the package download directory.
func (l *Loader) Root() string {
	return l.root
}

// Path resolves a forward-slash relative name to a local absolute path.
// Names that resolve outside the root yield "".
func (l *Loader) Path(name string) string {
	dest, err := utils.JoinUnderRoot(l.root, name)
	if err != nil {
		return ""
	}
	return dest
}

// Load reads a resource by its manifest-relative name. Returns (nil, false)
// when the file is not present locally.
func (l *Loader) Load(name string) ([]byte, bool) {
	path := l.Path(name)
	if path == "" {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// LoadCompiled reads the compiled variant of a resource, appending the
// compiled suffix when the given name lacks one.
func (l *Loader) LoadCompiled(name string) ([]byte, bool) {
	if !strings.HasSuffix(name, CompiledSuffix) {
		name += CompiledSuffix
	}
	return l.Load(name)
}
