// Package catalog turns audio files into library tracks.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"vibestream/core/audio"
	"vibestream/logger"
	"vibestream/model"
	"vibestream/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrUnsupportedFormat 文件既不是音频扩展名也没有 audio/* 类型
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Importer 负责上传文件落盘、解析标签并写入曲库
type Importer struct {
	tracks    repository.TrackRepository
	uploadDir string
}

// NewImporter creates an importer that stores uploads under uploadDir.
func NewImporter(tracks repository.TrackRepository, uploadDir string) *Importer {
	if abs, err := filepath.Abs(uploadDir); err == nil {
		uploadDir = abs
	}
	return &Importer{tracks: tracks, uploadDir: uploadDir}
}

// ImportUpload copies r to the upload directory under a fresh name and catalogs it.
// The copy is removed again when anything after it fails.
func (im *Importer) ImportUpload(ctx context.Context, r io.Reader, filename, mimeHint string) (*model.Track, error) {
	if !audio.IsAudioFile(filename) && !strings.HasPrefix(strings.ToLower(mimeHint), "audio/") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	if err := os.MkdirAll(im.uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	dest := filepath.Join(im.uploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(filename)))

	size, err := copyToFile(dest, r)
	if err != nil {
		os.Remove(dest)
		return nil, err
	}

	track, err := im.catalog(ctx, dest, filename, mimeHint, size)
	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil {
			logger.Warn("清理上传文件失败", logger.String("path", dest), logger.ErrorField(rmErr))
		}
		return nil, err
	}

	logger.Info("上传导入成功",
		logger.String("id", track.ID),
		logger.String("title", track.Title),
		logger.String("originalName", filename),
		logger.Int64("size", size))
	return track, nil
}

// ImportFile catalogs a file where it lies. A path that is already in the library
// returns the existing track and created=false.
func (im *Importer) ImportFile(ctx context.Context, path string) (track *model.Track, created bool, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	existing, err := im.tracks.GetTrackByFilePath(ctx, abs)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, false, fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if info.IsDir() || !audio.IsAudioFile(abs) {
		return nil, false, fmt.Errorf("%w: %s", ErrUnsupportedFormat, abs)
	}

	track, err = im.catalog(ctx, abs, filepath.Base(abs), "", info.Size())
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// 并发导入同一路径，返回先写入的那条
		existing, getErr := im.tracks.GetTrackByFilePath(ctx, abs)
		if getErr == nil && existing != nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	return track, true, nil
}

// DeleteTrack removes the track from the library, then its file if the file lives
// in the upload directory. File errors are only logged.
func (im *Importer) DeleteTrack(ctx context.Context, id string) error {
	track, err := im.tracks.GetTrackByID(ctx, id)
	if err != nil {
		return err
	}
	if track == nil {
		return repository.ErrTrackNotFound
	}
	if err := im.tracks.DeleteTrack(ctx, id); err != nil {
		return err
	}

	if !im.owns(track.FilePath) {
		return nil
	}
	if err := os.Remove(track.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("删除音频文件失败",
			logger.String("id", id),
			logger.String("path", track.FilePath),
			logger.ErrorField(err))
	}
	return nil
}

// owns reports whether path is inside the upload directory.
func (im *Importer) owns(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(im.uploadDir, abs)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

func (im *Importer) catalog(ctx context.Context, path, originalName, mimeHint string, size int64) (*model.Track, error) {
	md, err := audio.Probe(path, originalName, mimeHint)
	if err != nil {
		return nil, err
	}
	for _, w := range md.Warnings {
		logger.Warn("标签解析警告", logger.String("file", originalName), logger.String("warning", w))
	}

	track := &model.Track{
		Title:         md.Title,
		Artist:        md.Artist,
		Album:         md.Album,
		Duration:      md.Duration,
		FilePath:      path,
		FileSize:      size,
		MimeType:      md.MimeType,
		CoverArt:      md.CoverArt,
		CoverMimeType: md.CoverMimeType,
		Year:          md.Year,
		Genre:         md.Genre,
		TrackNumber:   md.TrackNumber,
		DiscNumber:    md.DiscNumber,
	}
	if err := im.tracks.CreateTrack(ctx, track); err != nil {
		return nil, err
	}
	return track, nil
}

func copyToFile(dest string, r io.Reader) (int64, error) {
	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dest, err)
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to save upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to save upload: %w", err)
	}
	return n, nil
}
