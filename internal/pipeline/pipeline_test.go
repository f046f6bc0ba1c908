package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"packfetch/internal/api"
	"packfetch/internal/asset"
	"packfetch/internal/download"
)

// fakeService serves descriptor, manifest and files for one package and
// counts requests per path.
type fakeService struct {
	mu         sync.Mutex
	requests   map[string]int
	descriptor func(serverURL string) string
	manifest   func(serverURL string) string
	files      map[string][]byte
	failFiles  map[string]bool
	server     *httptest.Server
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	fs := &fakeService{
		requests:  make(map[string]int),
		files:     make(map[string][]byte),
		failFiles: make(map[string]bool),
	}
	fs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.requests[r.URL.Path]++
		fs.mu.Unlock()

		switch {
		case r.URL.Path == "/package/get/acme.crate":
			fmt.Fprint(w, fs.descriptor(fs.server.URL))
		case r.URL.Path == "/manifest":
			fmt.Fprint(w, fs.manifest(fs.server.URL))
		default:
			name := r.URL.Path
			if fs.failFiles[name] {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			data, ok := fs.files[name]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(data)
		}
	}))
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeService) count(path string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.requests[path]
}

func (fs *fakeService) pipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	root := t.TempDir()
	return &Pipeline{
		API:         api.NewClient(fs.server.URL, fs.server.Client()),
		HTTPClient:  fs.server.Client(),
		Root:        root,
		Concurrency: 4,
	}, root
}

// recordingConverter captures the convert invocation.
type recordingConverter struct {
	primaryPath string
	loader      *asset.Loader
	err         error
}

func (rc *recordingConverter) Convert(ctx context.Context, primaryPath string, loader *asset.Loader) error {
	rc.primaryPath = primaryPath
	rc.loader = loader
	return rc.err
}

// descriptorJSON hand-rolls the wire body so the exact casing stays visible.
func descriptorJSON(manifestURL, meta string) string {
	if meta == "" {
		return fmt.Sprintf(`{"Version":{"ManifestUrl":%q}}`, manifestURL)
	}
	return fmt.Sprintf(`{"Version":{"ManifestUrl":%q,"Meta":%q}}`, manifestURL, meta)
}

var ident = api.PackageIdent{Author: "acme", Name: "crate"}

func TestRunSuccess(t *testing.T) {
	fs := newFakeService(t)
	fs.descriptor = func(u string) string {
		return descriptorJSON(u+"/manifest", `{"PrimaryAsset":"models/foo.vmdl"}`)
	}
	fs.manifest = func(u string) string {
		return fmt.Sprintf(`{"Files":[
			{"url":%q,"path":"textures/a.png","size":3},
			{"url":%q,"path":"models/foo.vmdl_c","size":5}
		],"TotalSize":8}`, u+"/f/a.png", u+"/f/foo.vmdl_c")
	}
	fs.files["/f/a.png"] = []byte("png")
	fs.files["/f/foo.vmdl_c"] = []byte("model")

	pipe, root := fs.pipeline(t)
	converter := &recordingConverter{}
	pipe.Converter = converter

	result, err := pipe.Run(context.Background(), ident)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Phase != PhaseDone {
		t.Errorf("Phase = %q, want %q", result.Phase, PhaseDone)
	}
	if result.RunID == "" {
		t.Error("RunID is empty")
	}

	wantPrimary := filepath.Join(root, "acme.crate", "models", "foo.vmdl_c")
	if result.PrimaryPath != wantPrimary {
		t.Errorf("PrimaryPath = %q, want %q", result.PrimaryPath, wantPrimary)
	}
	if converter.primaryPath != wantPrimary {
		t.Errorf("converter got %q, want %q", converter.primaryPath, wantPrimary)
	}

	// Exactly M destination files exist after the fetch phase.
	if len(result.Outcomes) != 2 {
		t.Fatalf("len(Outcomes) = %d, want 2", len(result.Outcomes))
	}
	for _, outcome := range result.Outcomes {
		if _, err := os.Stat(outcome.Task.Dest); err != nil {
			t.Errorf("missing %s: %v", outcome.Task.Dest, err)
		}
	}

	// The converter's loader reads out of the downloaded tree.
	if data, ok := converter.loader.LoadCompiled("models/foo.vmdl"); !ok || string(data) != "model" {
		t.Errorf("loader.LoadCompiled() = %q, %v", data, ok)
	}
	if _, ok := converter.loader.Load("models/optional.vmat_c"); ok {
		t.Error("loader returned a file that was never downloaded")
	}
}

func TestRunMissingManifestURL(t *testing.T) {
	fs := newFakeService(t)
	fs.descriptor = func(string) string { return `{"Version":{}}` }

	pipe, _ := fs.pipeline(t)
	result, err := pipe.Run(context.Background(), ident)
	if !errors.Is(err, api.ErrMissingManifestURL) {
		t.Fatalf("error = %v, want ErrMissingManifestURL", err)
	}
	if result.Phase != PhaseResolving {
		t.Errorf("Phase = %q, want %q", result.Phase, PhaseResolving)
	}
	if n := fs.count("/manifest"); n != 0 {
		t.Errorf("manifest was fetched %d times, want 0", n)
	}
}

func TestRunEmptyManifest(t *testing.T) {
	fs := newFakeService(t)
	fs.descriptor = func(u string) string { return descriptorJSON(u+"/manifest", "") }
	fs.manifest = func(string) string { return `{"Files":[],"TotalSize":0}` }

	pipe, _ := fs.pipeline(t)
	result, err := pipe.Run(context.Background(), ident)
	if !errors.Is(err, asset.ErrNoPrimaryAsset) {
		t.Fatalf("error = %v, want ErrNoPrimaryAsset", err)
	}
	if result.Phase != PhaseSelecting {
		t.Errorf("Phase = %q, want %q", result.Phase, PhaseSelecting)
	}
	if len(result.Outcomes) != 0 {
		t.Errorf("len(Outcomes) = %d, want 0", len(result.Outcomes))
	}
}

func TestRunDownloadFailureIsFatal(t *testing.T) {
	fs := newFakeService(t)
	fs.descriptor = func(u string) string { return descriptorJSON(u+"/manifest", "") }
	fs.manifest = func(u string) string {
		return fmt.Sprintf(`{"Files":[
			{"url":%q,"path":"models/bar.vmdl_c","size":5},
			{"url":%q,"path":"textures/broken.png","size":3}
		],"TotalSize":8}`, u+"/f/bar.vmdl_c", u+"/f/broken.png")
	}
	fs.files["/f/bar.vmdl_c"] = []byte("model")
	fs.failFiles["/f/broken.png"] = true

	pipe, root := fs.pipeline(t)
	result, err := pipe.Run(context.Background(), ident)

	var dlErr *download.DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("error = %v, want *DownloadError", err)
	}
	if result.Phase != PhaseFetching {
		t.Errorf("Phase = %q, want %q", result.Phase, PhaseFetching)
	}

	// The sibling download still landed and survives for the next run.
	if _, err := os.Stat(filepath.Join(root, "acme.crate", "models", "bar.vmdl_c")); err != nil {
		t.Errorf("sibling file missing: %v", err)
	}
}

func TestRunPrimaryNotDownloaded(t *testing.T) {
	fs := newFakeService(t)
	fs.descriptor = func(u string) string {
		return descriptorJSON(u+"/manifest", `{"PrimaryAsset":"models/ghost.vmdl"}`)
	}
	fs.manifest = func(u string) string {
		return fmt.Sprintf(`{"Files":[{"url":%q,"path":"textures/a.png","size":3}],"TotalSize":3}`, u+"/f/a.png")
	}
	fs.files["/f/a.png"] = []byte("png")

	pipe, _ := fs.pipeline(t)
	result, err := pipe.Run(context.Background(), ident)
	if !errors.Is(err, ErrPrimaryAssetNotDownloaded) {
		t.Fatalf("error = %v, want ErrPrimaryAssetNotDownloaded", err)
	}
	if result.Phase != PhaseSelecting {
		t.Errorf("Phase = %q, want %q", result.Phase, PhaseSelecting)
	}
}

func TestRunHostileManifest(t *testing.T) {
	fs := newFakeService(t)
	fs.descriptor = func(u string) string { return descriptorJSON(u+"/manifest", "") }
	fs.manifest = func(u string) string {
		return fmt.Sprintf(`{"Files":[{"url":%q,"path":"../../escape.vmdl_c","size":3}],"TotalSize":3}`, u+"/f/escape")
	}

	pipe, _ := fs.pipeline(t)
	_, err := pipe.Run(context.Background(), ident)
	if err == nil {
		t.Fatal("Run() succeeded with an escaping manifest path")
	}
	// Nothing was fetched: the entry is rejected before any task is admitted.
	if n := fs.count("/f/escape"); n != 0 {
		t.Errorf("escaping file fetched %d times, want 0", n)
	}
}

func TestRunConverterFailure(t *testing.T) {
	fs := newFakeService(t)
	fs.descriptor = func(u string) string { return descriptorJSON(u+"/manifest", "") }
	fs.manifest = func(u string) string {
		return fmt.Sprintf(`{"Files":[{"url":%q,"path":"models/bar.vmdl_c","size":5}],"TotalSize":5}`, u+"/f/bar.vmdl_c")
	}
	fs.files["/f/bar.vmdl_c"] = []byte("model")

	pipe, _ := fs.pipeline(t)
	wantErr := errors.New("boom")
	pipe.Converter = &recordingConverter{err: wantErr}

	result, err := pipe.Run(context.Background(), ident)
	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if result.Phase != PhaseConvert {
		t.Errorf("Phase = %q, want %q", result.Phase, PhaseConvert)
	}
}

func TestRunIdempotentRerun(t *testing.T) {
	fs := newFakeService(t)
	fs.descriptor = func(u string) string { return descriptorJSON(u+"/manifest", "") }
	fs.manifest = func(u string) string {
		return fmt.Sprintf(`{"Files":[
			{"url":%q,"path":"models/bar.vmdl_c","size":5},
			{"url":%q,"path":"textures/a.png","size":3}
		],"TotalSize":8}`, u+"/f/bar.vmdl_c", u+"/f/a.png")
	}
	fs.files["/f/bar.vmdl_c"] = []byte("model")
	fs.files["/f/a.png"] = []byte("png")

	pipe, _ := fs.pipeline(t)
	if _, err := pipe.Run(context.Background(), ident); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if n := fs.count("/f/bar.vmdl_c"); n != 1 {
		t.Fatalf("first run fetched bar %d times", n)
	}

	if _, err := pipe.Run(context.Background(), ident); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if n := fs.count("/f/bar.vmdl_c"); n != 1 {
		t.Errorf("second run refetched bar (%d total requests)", n)
	}
	if n := fs.count("/f/a.png"); n != 1 {
		t.Errorf("second run refetched a.png (%d total requests)", n)
	}
}
