package services

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	outputPrefix = "output_"
	tempPattern  = ".tmp-*.png"
)

// ImageStore keeps generated images as flat PNG files in one directory.
type ImageStore struct {
	dir string
}

// NewImageStore creates dir if needed and removes temp files left behind by
// writes that never completed.
func NewImageStore(dir string) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	stale, err := filepath.Glob(filepath.Join(dir, tempPattern))
	if err != nil {
		return nil, fmt.Errorf("failed to list temp files: %w", err)
	}
	for _, p := range stale {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale temp file: %w", err)
		}
	}

	return &ImageStore{dir: dir}, nil
}

// IsOutputName reports whether name is a generated output filename.
func IsOutputName(name string) bool {
	return name == filepath.Base(name) && strings.HasPrefix(name, outputPrefix) && strings.HasSuffix(name, ".png")
}

func (s *ImageStore) Dir() string {
	return s.dir
}

// Save writes img as PNG and returns the generated filename. The file only
// becomes visible under its final name once fully written.
func (s *ImageStore) Save(ctx context.Context, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s%d_%s.png", outputPrefix, time.Now().Unix(), uuid.New().String())

	tmp, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to encode png: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	// CreateTemp uses 0600; static files must be world readable.
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to chmod file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return name, nil
}

// Path returns the on-disk location of a stored file.
func (s *ImageStore) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// Sweep deletes generated outputs last modified before now-olderThan and
// returns how many were removed. Other files in the directory are left alone.
func (s *ImageStore) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read output directory: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !IsOutputName(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}
