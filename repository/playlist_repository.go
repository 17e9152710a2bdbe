package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vibestream/model"

	"gorm.io/gorm"
)

// PlaylistRepository 定义播放列表相关的数据库操作接口
type PlaylistRepository interface {
	ListPlaylists(ctx context.Context) ([]*model.Playlist, error)
	// GetPlaylist returns nil, nil when the playlist does not exist.
	GetPlaylist(ctx context.Context, id string) (*model.Playlist, error)
	CreatePlaylist(ctx context.Context, name string, description *string) (*model.Playlist, error)
	// UpdatePlaylist changes the non-nil fields. Returns nil, nil when the playlist does not exist.
	UpdatePlaylist(ctx context.Context, id string, name, description *string) (*model.Playlist, error)
	DeletePlaylist(ctx context.Context, id string) error

	ListPlaylistTracks(ctx context.Context, id string) ([]*model.PlaylistEntry, error)
	// AddTrack appends the track and returns its position. Adding a track that is
	// already in the playlist returns its current position.
	AddTrack(ctx context.Context, playlistID, trackID string) (int, error)
	RemoveTrack(ctx context.Context, playlistID, trackID string) error
	// ReorderTracks assigns positions 1..n in the order given. trackIDs must contain
	// exactly the current members.
	ReorderTracks(ctx context.Context, playlistID string, trackIDs []string) error
}

const trackCountColumn = "(SELECT COUNT(*) FROM playlist_tracks WHERE playlist_tracks.playlist_id = playlists.id) AS track_count"

// entryColumns 列出播放列表歌曲查询需要的列，不包括封面数据
var entryColumns = []string{
	"tracks.id", "tracks.title", "tracks.artist", "tracks.album", "tracks.duration",
	"tracks.file_path", "tracks.file_size", "tracks.mime_type", "tracks.cover_mime_type",
	"tracks.year", "tracks.genre", "tracks.track_number", "tracks.disc_number", "tracks.created_at",
	"playlist_tracks.position", "playlist_tracks.added_at",
}

// gormPlaylistRepository GORM 实现
type gormPlaylistRepository struct {
	db *gorm.DB
}

// NewGormPlaylistRepository 创建 GORM 播放列表仓库
func NewGormPlaylistRepository(db *gorm.DB) PlaylistRepository {
	return &gormPlaylistRepository{db: db}
}

// ListPlaylists 返回全部播放列表，最新创建的在前
func (r *gormPlaylistRepository) ListPlaylists(ctx context.Context) ([]*model.Playlist, error) {
	var playlists []*model.Playlist
	err := r.db.WithContext(ctx).
		Select("playlists.*, " + trackCountColumn).
		Order("created_at DESC").
		Find(&playlists).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	return playlists, nil
}

func (r *gormPlaylistRepository) GetPlaylist(ctx context.Context, id string) (*model.Playlist, error) {
	return getPlaylist(r.db.WithContext(ctx), id)
}

func getPlaylist(tx *gorm.DB, id string) (*model.Playlist, error) {
	var playlist model.Playlist
	err := tx.Select("playlists.*, "+trackCountColumn).
		Where("playlists.id = ?", id).
		First(&playlist).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get playlist: %w", err)
	}
	return &playlist, nil
}

// CreatePlaylist 创建播放列表
func (r *gormPlaylistRepository) CreatePlaylist(ctx context.Context, name string, description *string) (*model.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	playlist := &model.Playlist{Name: name, Description: description}
	if err := r.db.WithContext(ctx).Create(playlist).Error; err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}
	return playlist, nil
}

// UpdatePlaylist 更新播放列表名称和描述
func (r *gormPlaylistRepository) UpdatePlaylist(ctx context.Context, id string, name, description *string) (*model.Playlist, error) {
	updates := map[string]interface{}{"updated_at": time.Now()}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, ErrNameRequired
		}
		updates["name"] = trimmed
	}
	if description != nil {
		updates["description"] = *description
	}

	var updated *model.Playlist
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := exists(tx, &model.Playlist{}, id)
		if err != nil || !ok {
			return err
		}
		if err := tx.Model(&model.Playlist{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update playlist: %w", err)
		}
		updated, err = getPlaylist(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeletePlaylist 删除播放列表及其歌曲关联
func (r *gormPlaylistRepository) DeletePlaylist(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("playlist_id = ?", id).Delete(&model.PlaylistTrack{}).Error; err != nil {
			return fmt.Errorf("failed to delete playlist tracks: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&model.Playlist{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete playlist: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrPlaylistNotFound
		}
		return nil
	})
}

// ListPlaylistTracks 按位置顺序返回播放列表中的歌曲
func (r *gormPlaylistRepository) ListPlaylistTracks(ctx context.Context, id string) ([]*model.PlaylistEntry, error) {
	db := r.db.WithContext(ctx)
	ok, err := exists(db, &model.Playlist{}, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPlaylistNotFound
	}

	entries := []*model.PlaylistEntry{}
	err = db.Table("tracks").
		Select(entryColumns).
		Joins("JOIN playlist_tracks ON playlist_tracks.track_id = tracks.id").
		Where("playlist_tracks.playlist_id = ?", id).
		Order("playlist_tracks.position").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list playlist tracks: %w", err)
	}
	for _, e := range entries {
		e.HasCover = e.CoverMimeType != ""
	}
	return entries, nil
}

// AddTrack 添加歌曲到播放列表末尾
func (r *gormPlaylistRepository) AddTrack(ctx context.Context, playlistID, trackID string) (int, error) {
	var position int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ok, err := exists(tx, &model.Playlist{}, playlistID); err != nil {
			return err
		} else if !ok {
			return ErrPlaylistNotFound
		}
		if ok, err := exists(tx, &model.Track{}, trackID); err != nil {
			return err
		} else if !ok {
			return ErrTrackNotFound
		}

		var existing model.PlaylistTrack
		err := tx.Where("playlist_id = ? AND track_id = ?", playlistID, trackID).First(&existing).Error
		if err == nil {
			position = existing.Position
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check membership: %w", err)
		}

		var maxPos int
		if err := tx.Model(&model.PlaylistTrack{}).
			Where("playlist_id = ?", playlistID).
			Select("COALESCE(MAX(position), 0)").
			Scan(&maxPos).Error; err != nil {
			return fmt.Errorf("failed to get max position: %w", err)
		}

		link := &model.PlaylistTrack{
			PlaylistID: playlistID,
			TrackID:    trackID,
			Position:   maxPos + 1,
			AddedAt:    time.Now(),
		}
		if err := tx.Omit("Playlist", "Track").Create(link).Error; err != nil {
			return fmt.Errorf("failed to add track to playlist: %w", err)
		}
		position = link.Position
		return touch(tx, playlistID)
	})
	return position, err
}

// RemoveTrack 从播放列表中移除歌曲，之后的歌曲位置前移
func (r *gormPlaylistRepository) RemoveTrack(ctx context.Context, playlistID, trackID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("playlist_id = ? AND track_id = ?", playlistID, trackID).Delete(&model.PlaylistTrack{})
		if res.Error != nil {
			return fmt.Errorf("failed to remove track from playlist: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			ok, err := exists(tx, &model.Playlist{}, playlistID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrPlaylistNotFound
			}
			return ErrNotInPlaylist
		}
		if err := compactPositions(tx, playlistID); err != nil {
			return err
		}
		return touch(tx, playlistID)
	})
}

// ReorderTracks 按给定顺序重排播放列表
func (r *gormPlaylistRepository) ReorderTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ok, err := exists(tx, &model.Playlist{}, playlistID); err != nil {
			return err
		} else if !ok {
			return ErrPlaylistNotFound
		}

		var current []string
		if err := tx.Model(&model.PlaylistTrack{}).
			Where("playlist_id = ?", playlistID).
			Pluck("track_id", &current).Error; err != nil {
			return fmt.Errorf("failed to load playlist members: %w", err)
		}
		if !sameMembers(current, trackIDs) {
			return ErrInvalidOrder
		}

		// 先移到负数位置，避免唯一索引冲突
		for i, id := range trackIDs {
			if err := setPosition(tx, playlistID, id, -(i + 1)); err != nil {
				return err
			}
		}
		for i, id := range trackIDs {
			if err := setPosition(tx, playlistID, id, i+1); err != nil {
				return err
			}
		}
		return touch(tx, playlistID)
	})
}

func sameMembers(current, proposed []string) bool {
	if len(current) != len(proposed) {
		return false
	}
	seen := make(map[string]bool, len(current))
	for _, id := range current {
		seen[id] = false
	}
	for _, id := range proposed {
		used, ok := seen[id]
		if !ok || used {
			return false
		}
		seen[id] = true
	}
	return true
}

// compactPositions renumbers a playlist's tracks 1..n keeping their current order.
// Walking in ascending order only ever moves a row to a position already vacated.
func compactPositions(tx *gorm.DB, playlistID string) error {
	var links []model.PlaylistTrack
	if err := tx.Where("playlist_id = ?", playlistID).Order("position").Find(&links).Error; err != nil {
		return fmt.Errorf("failed to load playlist positions: %w", err)
	}
	for i, link := range links {
		if want := i + 1; link.Position != want {
			if err := setPosition(tx, playlistID, link.TrackID, want); err != nil {
				return err
			}
		}
	}
	return nil
}

func setPosition(tx *gorm.DB, playlistID, trackID string, position int) error {
	err := tx.Model(&model.PlaylistTrack{}).
		Where("playlist_id = ? AND track_id = ?", playlistID, trackID).
		Update("position", position).Error
	if err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}
	return nil
}

func touch(tx *gorm.DB, playlistID string) error {
	err := tx.Model(&model.Playlist{}).Where("id = ?", playlistID).Update("updated_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("failed to touch playlist: %w", err)
	}
	return nil
}

func exists(tx *gorm.DB, m interface{}, id string) (bool, error) {
	var count int64
	if err := tx.Model(m).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return count > 0, nil
}
