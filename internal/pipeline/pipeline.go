// Package pipeline sequences a package run: resolve descriptor, fetch the
// manifest, download every file behind the admission gate, select the
// primary compiled asset and hand it to the converter. One linear pass, no
// retries; the first failing step ends the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"packfetch/internal/api"
	"packfetch/internal/asset"
	"packfetch/internal/convert"
	"packfetch/internal/download"
	"packfetch/internal/manifest"
	"packfetch/internal/state"
	"packfetch/internal/utils"
)

// ErrPrimaryAssetNotDownloaded indicates the selected primary path is not
// present under the package root after the fetch phase. Distinct from
// asset.ErrNoPrimaryAsset: the asset was selected but never landed on disk.
var ErrPrimaryAssetNotDownloaded = errors.New("pipeline: primary asset not downloaded")

// Phase names the pipeline steps for progress output and error messages.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseResolving Phase = "resolving manifest"
	PhaseFetching  Phase = "fetching files"
	PhaseSelecting Phase = "selecting primary asset"
	PhaseConvert   Phase = "converting"
	PhaseDone      Phase = "done"
)

// Pipeline holds the collaborators for one or more runs.
type Pipeline struct {
	// API resolves package descriptors.
	API *api.Client

	// HTTPClient is the run-shared transport handle used for manifest and
	// file fetches.
	HTTPClient *http.Client

	// Root is the download root; the package tree lands at Root/<ident>.
	Root string

	// Concurrency is the admission-gate size for the fetch phase.
	Concurrency int

	// Converter consumes the primary asset. Nil skips the convert phase.
	Converter convert.Converter

	// Journal enables run recording; disabled when state.Configure was not
	// called (tests, --no-journal).
	Journal bool
}

// Result reports a completed or failed run.
type Result struct {
	RunID       string
	Package     api.PackageIdent
	Phase       Phase
	PackageRoot string
	ManifestURL string
	PrimaryPath string
	Outcomes    []download.Outcome
}

// Run executes the whole pipeline for one package. On failure the returned
// Result's Phase names the step that failed.
func (p *Pipeline) Run(ctx context.Context, ident api.PackageIdent) (*Result, error) {
	result := &Result{
		RunID:       uuid.New().String(),
		Package:     ident,
		Phase:       PhaseIdle,
		PackageRoot: filepath.Join(p.Root, ident.String()),
	}
	utils.Debug("Run %s: package %s -> %s", result.RunID, ident, result.PackageRoot)

	if p.Journal {
		if err := state.RecordRunStart(result.RunID, ident.String()); err != nil {
			utils.Debug("Journal start failed: %v", err)
		}
	}

	err := p.run(ctx, ident, result)

	if p.Journal {
		p.record(result, err)
	}
	return result, err
}

func (p *Pipeline) run(ctx context.Context, ident api.PackageIdent, result *Result) error {
	result.Phase = PhaseResolving
	descriptor, err := p.API.GetPackage(ctx, ident)
	if err != nil {
		return err
	}

	manifestURL, err := descriptor.ManifestURL()
	if err != nil {
		return fmt.Errorf("package %s: %w", ident, err)
	}
	result.ManifestURL = manifestURL

	m, err := manifest.Fetch(ctx, p.HTTPClient, manifestURL)
	if err != nil {
		return err
	}

	tasks, err := m.Tasks(result.PackageRoot)
	if err != nil {
		return err
	}

	result.Phase = PhaseFetching
	fetcher := download.NewFetcher(p.HTTPClient)
	outcomes, err := fetcher.Batch(ctx, tasks, p.Concurrency)
	result.Outcomes = outcomes
	if err != nil {
		return err
	}

	result.Phase = PhaseSelecting
	selected, err := asset.SelectPrimary(descriptor, m)
	if err != nil {
		return fmt.Errorf("package %s: %w", ident, err)
	}

	loader := asset.NewLoader(result.PackageRoot)
	primaryPath := loader.Path(selected)
	if primaryPath == "" {
		return fmt.Errorf("package %s: %s: %w", ident, selected, ErrPrimaryAssetNotDownloaded)
	}
	if _, err := os.Stat(primaryPath); err != nil {
		return fmt.Errorf("package %s: %s: %w", ident, selected, ErrPrimaryAssetNotDownloaded)
	}
	result.PrimaryPath = primaryPath

	if p.Converter != nil {
		result.Phase = PhaseConvert
		if err := p.Converter.Convert(ctx, primaryPath, loader); err != nil {
			return err
		}
	}

	result.Phase = PhaseDone
	return nil
}

// record finalizes the journal row for a run. Journal failures are logged,
// never surfaced: history must not change a run's outcome.
func (p *Pipeline) record(result *Result, runErr error) {
	status := "done"
	if runErr != nil {
		status = "failed: " + string(result.Phase)
	}

	failed := 0
	files := make([]state.FileRecord, 0, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		rec := state.FileRecord{RunID: result.RunID, URL: outcome.Task.Url, Path: outcome.Task.Dest}
		if outcome.Err != nil {
			rec.Error = outcome.Err.Error()
			failed++
		}
		files = append(files, rec)
	}

	err := state.RecordRunResult(state.RunRecord{
		ID:           result.RunID,
		Package:      result.Package.String(),
		ManifestURL:  result.ManifestURL,
		Status:       status,
		PrimaryAsset: result.PrimaryPath,
		FilesTotal:   len(result.Outcomes),
		FilesFailed:  failed,
	}, files)
	if err != nil {
		utils.Debug("Journal record failed: %v", err)
	}
}
