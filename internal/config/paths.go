package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// GetPackfetchDir returns the per-user config root based on OS conventions.
func GetPackfetchDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		return filepath.Join(appData, "packfetch")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "packfetch")
	default: // Linux
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, _ := os.UserHomeDir()
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, "packfetch")
	}
}

// GetStateDir returns the directory for persistent state (journal DB).
func GetStateDir() string {
	return filepath.Join(GetPackfetchDir(), "state")
}

// GetLogsDir returns the directory for debug logs.
func GetLogsDir() string {
	return filepath.Join(GetPackfetchDir(), "logs")
}

// GetDefaultDownloadRoot returns the default root for downloaded package trees.
// Linux honors XDG_CACHE_HOME so the tree lands next to other tool caches.
func GetDefaultDownloadRoot() string {
	switch runtime.GOOS {
	case "windows", "darwin":
		return filepath.Join(GetPackfetchDir(), "packages")
	default:
		cacheHome := os.Getenv("XDG_CACHE_HOME")
		if cacheHome == "" {
			home, _ := os.UserHomeDir()
			cacheHome = filepath.Join(home, ".cache")
		}
		return filepath.Join(cacheHome, "packfetch", "packages")
	}
}

// EnsureDirs creates all required directories.
func EnsureDirs() error {
	dirs := []string{GetPackfetchDir(), GetStateDir(), GetLogsDir()}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
