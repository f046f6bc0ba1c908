package clipboard

import (
	"errors"
	"strings"

	"github.com/atotto/clipboard"

	"packfetch/internal/api"
)

// maxIdentLength caps clipboard input so huge pastes are rejected cheaply.
const maxIdentLength = 256

var (
	// ErrClipboardRead indicates an error reading from the clipboard.
	ErrClipboardRead = errors.New("failed to read from clipboard")
	// ErrInvalidIdent indicates the clipboard content is not a package ident.
	ErrInvalidIdent = errors.New("clipboard does not contain a package identifier")
)

// ExtractIdent validates and extracts a package identifier from text.
// Returns the zero value and false if the text is not "author.asset".
func ExtractIdent(text string) (api.PackageIdent, bool) {
	text = strings.TrimSpace(text)

	// Quick reject: empty, too long, whitespace, or URL-ish characters. A
	// pasted package URL is not an ident even when it happens to split on a
	// dot into two segments.
	if text == "" || len(text) > maxIdentLength || strings.ContainsAny(text, " \t\n\r/\\:?#") {
		return api.PackageIdent{}, false
	}

	ident, err := api.ParseIdent(text)
	if err != nil {
		return api.PackageIdent{}, false
	}
	return ident, true
}

// ReadIdent reads the clipboard and returns a valid package ident if found.
func ReadIdent() (api.PackageIdent, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return api.PackageIdent{}, ErrClipboardRead
	}

	ident, ok := ExtractIdent(text)
	if !ok {
		return api.PackageIdent{}, ErrInvalidIdent
	}
	return ident, nil
}
