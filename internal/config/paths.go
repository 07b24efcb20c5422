package config

import (
	"os"
	"path/filepath"
)

// UserDir returns the per-user directory that holds the config file, the
// default database, and tool manifests.
func UserDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".parley"), nil
}

// DefaultPath is where Load looks when no --config flag is given.
func DefaultPath() (string, error) {
	dir, err := UserDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultManifestDir is where the tool watcher looks for manifests when
// tools.manifest_dir is unset.
func DefaultManifestDir() (string, error) {
	dir, err := UserDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tools"), nil
}

// EnsureDirs creates the user directory tree.
func EnsureDirs() error {
	dir, err := UserDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	manifests, err := DefaultManifestDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(manifests, 0o755)
}
