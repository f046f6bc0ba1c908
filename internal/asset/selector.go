// Package asset selects the primary compiled artifact of a downloaded
// package and exposes the loader capability the converter reads through.
package asset

import (
	"errors"
	"strings"

	"packfetch/internal/api"
	"packfetch/internal/manifest"
	"packfetch/internal/utils"
)

// CompiledSuffix is the marker appended to a source asset path to name its
// compiled counterpart, e.g. "models/foo.vmdl" -> "models/foo.vmdl_c".
const CompiledSuffix = "_c"

// ModelExtension is the compiled model extension scanned for when the
// package metadata does not declare a primary asset.
const ModelExtension = ".vmdl_c"

// ErrNoPrimaryAsset indicates neither metadata nor the manifest yielded a
// primary artifact.
var ErrNoPrimaryAsset = errors.New("asset: no primary asset found")

// SelectPrimary picks exactly one relative path for the package's primary
// compiled asset.
//
// Preference order: a metadata-declared primary asset (with the compiled
// suffix appended) wins over any manifest entry; otherwise the first
// manifest entry ending in the compiled model extension, in manifest order.
// A metadata blob that fails to decode falls through silently.
func SelectPrimary(descriptor *api.PackageDescriptor, m *manifest.Manifest) (string, error) {
	if meta, ok := descriptor.DecodeMeta(); ok && meta.PrimaryAsset != "" {
		selected := meta.PrimaryAsset + CompiledSuffix
		utils.Debug("Primary asset from metadata: %s", selected)
		return selected, nil
	}

	for _, entry := range m.Files {
		if strings.HasSuffix(entry.Path, ModelExtension) {
			utils.Debug("Primary asset from manifest scan: %s", entry.Path)
			return entry.Path, nil
		}
	}

	return "", ErrNoPrimaryAsset
}
