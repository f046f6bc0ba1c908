package config

import (
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"
)

// Protocol preference values accepted by Settings.Network.Protocol.
const (
	ProtocolAuto  = "auto"
	ProtocolHTTP1 = "http1"
	ProtocolHTTP2 = "http2"
	ProtocolHTTP3 = "http3"
)

// DefaultServiceRoot is the package lookup service queried for descriptors.
const DefaultServiceRoot = "https://services.facepunch.com/sbox"

// DefaultConcurrentFetches bounds simultaneous in-flight file downloads.
const DefaultConcurrentFetches = 8

// NetworkSettings groups transport-related knobs.
type NetworkSettings struct {
	// ServiceRoot is the base URL of the package lookup service.
	ServiceRoot string `json:"serviceRoot"`

	// ConcurrentFetches is the admission-gate size for batch downloads.
	ConcurrentFetches int `json:"concurrentFetches"`

	// Protocol selects the HTTP protocol preference: auto, http1, http2, http3.
	Protocol string `json:"protocol"`
}

// ConverterSettings configures the external converter invocation.
type ConverterSettings struct {
	// Command is the external converter executable plus leading arguments.
	// The selected primary file path is appended as the final argument.
	// Empty disables conversion.
	Command []string `json:"command"`
}

// Settings is the on-disk configuration, stored as settings.yaml in the
// packfetch config dir.
type Settings struct {
	Network   NetworkSettings   `json:"network"`
	Converter ConverterSettings `json:"converter"`

	// DownloadRoot overrides the default package download root.
	DownloadRoot string `json:"downloadRoot"`
}

// DefaultSettings returns the built-in configuration.
func DefaultSettings() *Settings {
	return &Settings{
		Network: NetworkSettings{
			ServiceRoot:       DefaultServiceRoot,
			ConcurrentFetches: DefaultConcurrentFetches,
			Protocol:          ProtocolAuto,
		},
	}
}

// SettingsPath returns the location of the settings file.
func SettingsPath() string {
	return filepath.Join(GetPackfetchDir(), "settings.yaml")
}

// LoadSettings reads settings.yaml, falling back to defaults when the file
// does not exist. Unknown fields are rejected so typos surface early.
func LoadSettings() (*Settings, error) {
	return loadSettingsFrom(SettingsPath())
}

func loadSettingsFrom(path string) (*Settings, error) {
	settings := DefaultSettings()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	if err := yaml.UnmarshalStrict(raw, settings); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}

	if settings.Network.ServiceRoot == "" {
		settings.Network.ServiceRoot = DefaultServiceRoot
	}
	if settings.Network.ConcurrentFetches <= 0 {
		settings.Network.ConcurrentFetches = DefaultConcurrentFetches
	}
	if settings.Network.Protocol == "" {
		settings.Network.Protocol = ProtocolAuto
	}

	return settings, nil
}
