package api

import (
	"encoding/json"
	"errors"
	"strings"
)

// Sentinel errors for package descriptor resolution.
// Use errors.Is() to check for specific conditions.
var (
	// ErrInvalidIdent indicates a malformed package identifier.
	ErrInvalidIdent = errors.New("api: invalid package identifier")

	// ErrDescriptorFetch indicates the descriptor request failed at the
	// transport level or returned a non-success status.
	ErrDescriptorFetch = errors.New("api: descriptor fetch failed")

	// ErrDescriptorParse indicates the descriptor body was not usable JSON.
	ErrDescriptorParse = errors.New("api: descriptor parse failed")

	// ErrMissingManifestURL indicates the descriptor carries no manifest URL.
	// The pipeline cannot continue without one.
	ErrMissingManifestURL = errors.New("api: package version has no manifest url")
)

// PackageIdent identifies a package as "author.name". Neither segment may be
// empty or contain the separator.
type PackageIdent struct {
	Author string
	Name   string
}

// String returns the joined wire form used in lookup URLs.
func (p PackageIdent) String() string {
	return p.Author + "." + p.Name
}

// ParseIdent parses "author.name" into a PackageIdent.
// Returns ErrInvalidIdent if the format is invalid.
func ParseIdent(s string) (PackageIdent, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return PackageIdent{}, ErrInvalidIdent
	}
	return PackageIdent{Author: parts[0], Name: parts[1]}, nil
}

// PackageVersion is the version block of a package descriptor.
type PackageVersion struct {
	// ManifestUrl points at the file manifest for this version.
	ManifestUrl string `json:"ManifestUrl"`

	// Meta is a nested JSON document encoded as a string. It is decoded
	// lazily and best-effort; see DecodeMeta.
	Meta string `json:"Meta"`
}

// PackageDescriptor is the package lookup response.
type PackageDescriptor struct {
	Version PackageVersion `json:"Version"`
}

// PackageMeta is the subset of the metadata blob the pipeline cares about.
type PackageMeta struct {
	// PrimaryAsset is the source path of the package's main asset,
	// e.g. "models/foo.vmdl".
	PrimaryAsset string `json:"PrimaryAsset"`
}

// DecodeMeta decodes the descriptor's embedded metadata blob. Any malformed
// input yields (zero, false) rather than an error: metadata is advisory and
// a broken blob must not fail the run.
func (d *PackageDescriptor) DecodeMeta() (PackageMeta, bool) {
	if d.Version.Meta == "" {
		return PackageMeta{}, false
	}
	var meta PackageMeta
	if err := json.Unmarshal([]byte(d.Version.Meta), &meta); err != nil {
		return PackageMeta{}, false
	}
	return meta, true
}
