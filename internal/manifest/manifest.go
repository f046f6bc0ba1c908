package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"packfetch/internal/utils"
)

// Sentinel errors for manifest resolution.
var (
	// ErrManifestFetch indicates the manifest request failed at the
	// transport level or returned a non-success status.
	ErrManifestFetch = errors.New("manifest: fetch failed")

	// ErrManifestParse indicates the manifest body was not usable JSON.
	ErrManifestParse = errors.New("manifest: parse failed")
)

// FileEntry is one remote file declared by a manifest. Path uses forward
// slashes on the wire. Crc is accepted but never verified.
type FileEntry struct {
	Url  string `json:"url"`
	Path string `json:"path"`
	Crc  uint32 `json:"crc"`
	Size int64  `json:"size"`
}

// Manifest is the ordered file list for one package version. TotalSize is
// informational and never checked against downloaded bytes.
type Manifest struct {
	Files     []FileEntry `json:"Files"`
	TotalSize int64       `json:"TotalSize"`
}

// DownloadTask pairs a source URL with an absolute local destination.
// It has no identity beyond the pairing and is consumed once.
type DownloadTask struct {
	Url  string
	Dest string
}

// Fetch retrieves and decodes the manifest at url using the shared client.
func Fetch(ctx context.Context, httpClient *http.Client, url string) (*Manifest, error) {
	utils.Debug("Fetching manifest: %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %v: %w", url, err, ErrManifestFetch)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("manifest %s: status %d: %w", url, resp.StatusCode, ErrManifestFetch)
	}

	var m Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("manifest %s: %v: %w", url, err, ErrManifestParse)
	}

	utils.Debug("Manifest decoded: %d files, %d bytes declared", len(m.Files), m.TotalSize)
	return &m, nil
}

// Tasks derives the download task list for a package rooted at packageRoot.
// Entries whose path would escape the root are rejected here, before any
// network activity, so a hostile manifest cannot write outside its tree.
func (m *Manifest) Tasks(packageRoot string) ([]DownloadTask, error) {
	tasks := make([]DownloadTask, 0, len(m.Files))
	for _, entry := range m.Files {
		dest, err := utils.JoinUnderRoot(packageRoot, entry.Path)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %q: %w", entry.Path, err)
		}
		tasks = append(tasks, DownloadTask{Url: entry.Url, Dest: dest})
	}
	return tasks, nil
}
