package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vibestream/model"

	"gorm.io/gorm"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) error
	// GetTrackByID returns nil, nil when the track does not exist. Cover bytes are not loaded.
	GetTrackByID(ctx context.Context, id string) (*model.Track, error)
	GetTrackByFilePath(ctx context.Context, path string) (*model.Track, error)
	ListTracks(ctx context.Context) ([]*model.Track, error)
	// DeleteTrack removes the track and its playlist memberships, compacting the
	// positions of every affected playlist.
	DeleteTrack(ctx context.Context, id string) error
	// GetCover returns the embedded cover art. A track without cover yields nil data.
	GetCover(ctx context.Context, id string) ([]byte, string, error)
}

// gormTrackRepository GORM 实现
type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository 创建 GORM 歌曲仓库
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

// CreateTrack adds a new track to the database.
func (r *gormTrackRepository) CreateTrack(ctx context.Context, track *model.Track) error {
	if track.CreatedAt.IsZero() {
		track.CreatedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(track).Error; err != nil {
		return fmt.Errorf("failed to create track: %w", err)
	}
	return nil
}

func (r *gormTrackRepository) GetTrackByID(ctx context.Context, id string) (*model.Track, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormTrackRepository) GetTrackByFilePath(ctx context.Context, path string) (*model.Track, error) {
	return r.first(ctx, "file_path = ?", path)
}

func (r *gormTrackRepository) first(ctx context.Context, query string, arg interface{}) (*model.Track, error) {
	var track model.Track
	err := r.db.WithContext(ctx).Omit("cover_art").Where(query, arg).First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get track: %w", err)
	}
	return &track, nil
}

// ListTracks 按艺术家、专辑、曲目号排序返回全部歌曲
func (r *gormTrackRepository) ListTracks(ctx context.Context) ([]*model.Track, error) {
	var tracks []*model.Track
	err := r.db.WithContext(ctx).
		Omit("cover_art").
		Order("artist").Order("album").Order("track_number").Order("title").
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	return tracks, nil
}

func (r *gormTrackRepository) DeleteTrack(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var playlistIDs []string
		if err := tx.Model(&model.PlaylistTrack{}).
			Where("track_id = ?", id).
			Pluck("playlist_id", &playlistIDs).Error; err != nil {
			return fmt.Errorf("failed to find memberships: %w", err)
		}

		if err := tx.Where("track_id = ?", id).Delete(&model.PlaylistTrack{}).Error; err != nil {
			return fmt.Errorf("failed to delete memberships: %w", err)
		}

		res := tx.Where("id = ?", id).Delete(&model.Track{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete track: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrTrackNotFound
		}

		for _, pid := range playlistIDs {
			if err := compactPositions(tx, pid); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *gormTrackRepository) GetCover(ctx context.Context, id string) ([]byte, string, error) {
	var track model.Track
	err := r.db.WithContext(ctx).
		Select("id", "cover_art", "cover_mime_type").
		Where("id = ?", id).
		First(&track).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrTrackNotFound
		}
		return nil, "", fmt.Errorf("failed to get cover: %w", err)
	}
	if len(track.CoverArt) == 0 {
		return nil, "", nil
	}
	return track.CoverArt, track.CoverMimeType, nil
}
