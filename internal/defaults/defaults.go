// Package defaults provides embedded default configuration files.
// These are copied to the platform data directory on first run or when reset is requested.
//
// Platform paths:
//
//	macOS:   ~/Library/Application Support/ytvoice/
//	Windows: %AppData%\ytvoice\
//	Linux:   ~/.config/ytvoice/
//
// Override with YTVOICE_DATA_DIR environment variable.
package defaults

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//go:embed dotytvoice/*
var defaultFiles embed.FS

const embedRoot = "dotytvoice"

// DataDir returns the platform-appropriate data directory.
// Set YTVOICE_DATA_DIR to override.
func DataDir() (string, error) {
	if dir := os.Getenv("YTVOICE_DATA_DIR"); dir != "" {
		return dir, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(configDir, "ytvoice"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist
// and copies default files if they're missing.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// EnsureDir creates dir and copies any missing default files into it.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return copyDefaults(dir, false)
}

// Reset replaces config files in dir with the embedded defaults.
// The subtitle cache database is preserved.
func Reset(dir string) error {
	return copyDefaults(dir, true)
}

// copyDefaults copies embedded default files to the data directory.
// If overwrite is true, existing files are replaced.
func copyDefaults(dir string, overwrite bool) error {
	return fs.WalkDir(defaultFiles, embedRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == embedRoot {
			return nil
		}

		// embed.FS always uses forward slashes, so trim rather than filepath.Rel.
		relPath := strings.TrimPrefix(path, embedRoot+"/")
		destPath := filepath.Join(dir, relPath)

		if d.IsDir() {
			return os.MkdirAll(destPath, 0755)
		}

		if !overwrite {
			if _, err := os.Stat(destPath); err == nil {
				return nil
			}
		}

		data, err := defaultFiles.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read embedded %s: %w", path, err)
		}
		if err := os.WriteFile(destPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", destPath, err)
		}
		return nil
	})
}

// GetDefault returns the content of a default file by name.
// Example: GetDefault("config.yaml")
func GetDefault(name string) ([]byte, error) {
	return defaultFiles.ReadFile(embedRoot + "/" + name)
}

// ListDefaults returns the names of all default files.
func ListDefaults() ([]string, error) {
	var files []string
	err := fs.WalkDir(defaultFiles, embedRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && path != embedRoot {
			files = append(files, strings.TrimPrefix(path, embedRoot+"/"))
		}
		return nil
	})
	return files, err
}

// ModelsDir returns the directory holding downloaded voice models
// (Silero VAD, ONNX Runtime), creating it if needed.
func ModelsDir() string {
	dataDir, err := DataDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".config", "ytvoice")
	}
	dir := filepath.Join(dataDir, "models")
	os.MkdirAll(dir, 0755)
	return dir
}
