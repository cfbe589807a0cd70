package config

import (
	"os"
	"path/filepath"
)

// GetUserConfigDir returns the per-user config directory (~/.coreshell),
// the same way internal/config/wing.go's GetUserConfigDir does but under
// this project's own dotdir. It does not create the directory;
// EnsureConfigDirs does.
func GetUserConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".coreshell"), nil
}

// GetProjectDir walks up from the working directory looking for a
// project-local .coreshell directory or a .git directory, falling back
// to the working directory itself.
func GetProjectDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, ".coreshell")); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return wd, nil
		}
		dir = parent
	}
}

// EnsureConfigDirs creates both the user and project config directories.
func EnsureConfigDirs(userConfigDir, projectDir string) error {
	if err := os.MkdirAll(userConfigDir, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(projectDir, ".coreshell"), 0o755)
}
