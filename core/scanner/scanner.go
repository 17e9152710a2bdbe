// Package scanner imports audio files that already sit on disk.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vibestream/core/audio"
	"vibestream/logger"
	"vibestream/model"
)

// ErrNotDirectory 扫描路径不是目录
var ErrNotDirectory = errors.New("not a directory")

// FileImporter is the part of catalog.Importer the scanner needs.
type FileImporter interface {
	ImportFile(ctx context.Context, path string) (*model.Track, bool, error)
}

// FileError describes a file that could not be imported.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Result summarises one scan.
type Result struct {
	Directory string         `json:"directory"`
	Found     int            `json:"found"`
	Imported  int            `json:"imported"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Tracks    []*model.Track `json:"tracks"`
	Errors    []FileError    `json:"errors,omitempty"`
}

// Scanner walks directories and imports the audio files it finds in place.
type Scanner struct {
	importer FileImporter
}

func New(importer FileImporter) *Scanner {
	return &Scanner{importer: importer}
}

// Scan imports every audio file below dir. Files already in the library count as
// skipped; per-file failures are collected in the result. Only an unreadable root
// or a cancelled context stops the walk.
func (s *Scanner) Scan(ctx context.Context, dir string) (*Result, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	start := time.Now()
	result := &Result{Directory: root, Tracks: []*model.Track{}}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			result.fail(path, walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !audio.IsAudioFile(path) {
			return nil
		}

		result.Found++
		track, created, err := s.importer.ImportFile(ctx, path)
		switch {
		case err != nil:
			result.fail(path, err)
		case created:
			result.Imported++
			result.Tracks = append(result.Tracks, track)
		default:
			result.Skipped++
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("scan %s: %w", root, err)
	}

	logger.Info("目录扫描完成",
		logger.String("directory", root),
		logger.Int("found", result.Found),
		logger.Int("imported", result.Imported),
		logger.Int("skipped", result.Skipped),
		logger.Int("failed", result.Failed),
		logger.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (r *Result) fail(path string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, FileError{Path: path, Error: err.Error()})
	logger.Warn("导入文件失败", logger.String("path", path), logger.ErrorField(err))
}
