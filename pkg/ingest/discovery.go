// Package ingest coordinates the ingestion pipeline: it discovers log
// files under the configured source roots, streams new lines through the
// parser, deduplicates candidates, prices them, and inserts them into
// the store in batches.
//
// Ingestion is incremental. Per-file byte offsets and the record
// watermark avoid re-reading processed lines; the store's identity
// index remains the authoritative deduplication, so resetting either
// optimization is always safe.
//
// Example usage:
//
//	coord, err := ingest.New(ingest.Config{
//	    SourceDirs: cfg.SourceDirs,
//	    Store:      s,
//	    Calculator: pricing.NewCalculator(nil),
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := coord.Run(ctx)
package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SourceFile represents a discovered log file.
type SourceFile struct {
	// Path is the absolute path to the JSONL file.
	Path string

	// Size is the file size in bytes.
	Size int64

	// ModTime is the last modification time (Unix seconds).
	ModTime int64
}

// Discoverer finds candidate log files under the source roots.
type Discoverer interface {
	// Discover walks the configured source directories recursively and
	// returns every JSONL file found. Missing directories are skipped
	// with a warning, not an error.
	Discover() ([]SourceFile, error)
}

// discoverer implements the Discoverer interface.
type discoverer struct {
	baseDirs []string
	logger   Logger
}

// Logger defines the logging interface used by the ingest package.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NewDiscoverer creates a Discoverer over the given base directories.
func NewDiscoverer(baseDirs []string, log Logger) Discoverer {
	return &discoverer{
		baseDirs: baseDirs,
		logger:   log,
	}
}

// Discover implements Discoverer.Discover.
func (d *discoverer) Discover() ([]SourceFile, error) {
	var files []SourceFile

	for _, baseDir := range d.baseDirs {
		expanded := expandHome(baseDir)

		if _, err := os.Stat(expanded); err != nil {
			if os.IsNotExist(err) {
				d.logger.Warn("source directory not found, skipping", "path", expanded)
				continue
			}
			return nil, fmt.Errorf("failed to stat directory %s: %w", expanded, err)
		}

		err := filepath.WalkDir(expanded, func(path string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				// Unreadable subtrees are skipped, not fatal.
				d.logger.Warn("skipping unreadable path", "path", path, "error", walkErr)
				if entry != nil && entry.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
				return nil
			}

			info, infoErr := entry.Info()
			if infoErr != nil {
				d.logger.Warn("failed to stat file, skipping", "path", path, "error", infoErr)
				return nil
			}

			files = append(files, SourceFile{
				Path:    path,
				Size:    info.Size(),
				ModTime: info.ModTime().Unix(),
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory %s: %w", expanded, err)
		}
	}

	d.logger.Debug("discovery complete", "files", len(files))
	return files, nil
}

// expandHome expands a leading ~ in a path.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
