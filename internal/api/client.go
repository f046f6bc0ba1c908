package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"packfetch/internal/utils"
)

// Client resolves package descriptors from the lookup service.
type Client struct {
	serviceRoot string
	httpClient  *http.Client
}

// NewClient creates a descriptor client. The serviceRoot is normalized by
// removing trailing slashes. The http.Client is shared with the rest of the
// run for connection reuse.
func NewClient(serviceRoot string, httpClient *http.Client) *Client {
	return &Client{
		serviceRoot: strings.TrimRight(serviceRoot, "/"),
		httpClient:  httpClient,
	}
}

// LookupURL returns the descriptor endpoint for the given package.
func (c *Client) LookupURL(ident PackageIdent) string {
	return c.serviceRoot + "/package/get/" + ident.String()
}

// GetPackage fetches and decodes the package descriptor.
func (c *Client) GetPackage(ctx context.Context, ident PackageIdent) (*PackageDescriptor, error) {
	url := c.LookupURL(ident)
	utils.Debug("Fetching package descriptor: %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("package %s: %v: %w", ident, err, ErrDescriptorFetch)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("package %s: status %d: %w", ident, resp.StatusCode, ErrDescriptorFetch)
	}

	var descriptor PackageDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&descriptor); err != nil {
		return nil, fmt.Errorf("package %s: %v: %w", ident, err, ErrDescriptorParse)
	}

	utils.Debug("Descriptor resolved: manifest=%q metaLen=%d", descriptor.Version.ManifestUrl, len(descriptor.Version.Meta))
	return &descriptor, nil
}

// ManifestURL extracts the manifest location, failing when the descriptor
// does not declare one.
func (d *PackageDescriptor) ManifestURL() (string, error) {
	if d.Version.ManifestUrl == "" {
		return "", ErrMissingManifestURL
	}
	return d.Version.ManifestUrl, nil
}
