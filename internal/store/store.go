// Package store defines the on-disk layout of a run directory and the
// atomic flush discipline that protects metrics.json.
//
// A run directory looks like:
//
//	<run_id>/
//	  config.json    written once by the writer
//	  metrics.json   rewritten on every flush via temp file + rename
//	  plots/  samples/  checkpoints/  model/  logs/
//
// Readers must ignore entries they do not know.
package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	rberrors "github.com/imishinist/runboard/internal/errors"
	"github.com/imishinist/runboard/internal/models"
)

const (
	ConfigFile  = "config.json"
	MetricsFile = "metrics.json"

	PlotsDir       = "plots"
	SamplesDir     = "samples"
	CheckpointsDir = "checkpoints"
	ModelDir       = "model"
	LogsDir        = "logs"

	// tempPrefix marks in-flight writes; they live next to the target so the
	// final rename never crosses a filesystem boundary.
	tempPrefix = ".tmp-"

	filePerm = 0o644
	dirPerm  = 0o755
)

// RunDirs lists the subdirectories the writer creates for every run.
var RunDirs = []string{CheckpointsDir, PlotsDir, SamplesDir, LogsDir, ModelDir}

// IsTempFile reports whether name is an in-flight atomic write.
func IsTempFile(name string) bool {
	return strings.HasPrefix(filepath.Base(name), tempPrefix)
}

// AtomicWrite writes to a temp file in the target's directory and renames it
// over path, so a concurrent reader sees either the old or the new content.
func AtomicWrite(path string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, tempPrefix)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := writeFunc(tmpFile); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write content: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// CreateTemp uses 0600; readers may run as another user.
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename to %s: %w", path, err)
	}

	success = true
	return nil
}

// CreateLayout creates the run directory and its standard subdirectories.
func CreateLayout(runDir string) (map[string]string, error) {
	dirs := make(map[string]string, len(RunDirs))
	for _, name := range RunDirs {
		p := filepath.Join(runDir, name)
		if err := os.MkdirAll(p, dirPerm); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", p, err)
		}
		dirs[name] = p
	}
	return dirs, nil
}

// WriteMetrics flushes m to <runDir>/metrics.json atomically.
func WriteMetrics(runDir string, m *models.Metrics) error {
	return AtomicWrite(filepath.Join(runDir, MetricsFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	})
}

// ReadMetrics loads <runDir>/metrics.json. A missing file is a NotFound error
// and malformed content is a StoreCorruption error.
func ReadMetrics(runDir string) (*models.Metrics, error) {
	path := filepath.Join(runDir, MetricsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rberrors.NewNotFound(path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var m models.Metrics
	if err := json.Unmarshal(models.QuoteNonFinite(data), &m); err != nil {
		return nil, rberrors.Wrap(err, rberrors.ErrStoreCorruption, fmt.Sprintf("malformed %s", path))
	}
	m.Normalize()
	return &m, nil
}

// WriteConfig persists cfg as <runDir>/config.json unless one already exists.
// It reports whether a file was written.
func WriteConfig(runDir string, cfg models.RunConfig) (bool, error) {
	path := filepath.Join(runDir, ConfigFile)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if cfg == nil {
		cfg = models.RunConfig{}
	}
	err := AtomicWrite(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// ReadConfig loads <runDir>/config.json with the same error contract as ReadMetrics.
func ReadConfig(runDir string) (models.RunConfig, error) {
	path := filepath.Join(runDir, ConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rberrors.NewNotFound(path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var cfg models.RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, rberrors.Wrap(err, rberrors.ErrStoreCorruption, fmt.Sprintf("malformed %s", path))
	}
	if cfg == nil {
		cfg = models.RunConfig{}
	}
	return cfg, nil
}

// ListFiles returns the sorted names of regular files in <runDir>/<sub>
// accepted by keep. A missing directory yields an empty list.
func ListFiles(runDir, sub string, keep func(name string) bool) []string {
	entries, err := os.ReadDir(filepath.Join(runDir, sub))
	if err != nil {
		return []string{}
	}
	names := []string{}
	for _, e := range entries {
		if !e.Type().IsRegular() || IsTempFile(e.Name()) {
			continue
		}
		if keep != nil && !keep(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return names
}
