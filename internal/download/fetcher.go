// Package download implements the concurrency-limited fetch phase: single
// resource fetches streamed to disk, batched behind a fixed admission gate.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/vfaronov/httpheader"

	"packfetch/internal/manifest"
	"packfetch/internal/utils"
)

// DownloadError reports a failed fetch together with the URL that failed.
type DownloadError struct {
	Url string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.Url, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Fetcher performs single-resource fetches over a shared client.
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a fetcher on the run's shared client.
func NewFetcher(httpClient *http.Client) *Fetcher {
	return &Fetcher{httpClient: httpClient}
}

// Fetch downloads one task. If the destination already exists the task is
// satisfied with no network activity; presence on disk is the only cache
// signal, contents are never re-checked. The response body is streamed
// straight into the destination file.
func (f *Fetcher) Fetch(ctx context.Context, task manifest.DownloadTask) error {
	if _, err := os.Stat(task.Dest); err == nil {
		utils.Debug("Already present, skipping: %s", task.Dest)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(task.Dest), 0755); err != nil {
		return &DownloadError{Url: task.Url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.Url, nil)
	if err != nil {
		return &DownloadError{Url: task.Url, Err: err}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return &DownloadError{Url: task.Url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &DownloadError{Url: task.Url, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	if utils.IsVerbose() {
		if _, name, _ := httpheader.ContentDisposition(resp.Header); name != "" {
			utils.Debug("Server names %s as %q", task.Url, name)
		}
	}

	out, err := os.Create(task.Dest)
	if err != nil {
		return &DownloadError{Url: task.Url, Err: err}
	}

	written, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &DownloadError{Url: task.Url, Err: err}
	}

	utils.Debug("Downloaded %s (%d bytes) -> %s", task.Url, written, task.Dest)
	return nil
}
