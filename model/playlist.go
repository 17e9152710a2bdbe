package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Playlist 用户创建的播放列表
type Playlist struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	Description *string   `json:"description,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"createdAt" gorm:"index"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// TrackCount 由查询计算，不是表字段
	TrackCount int64 `json:"trackCount" gorm:"->;-:migration"`
}

// TableName 指定表名
func (Playlist) TableName() string {
	return "playlists"
}

func (p *Playlist) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// PlaylistTrack 播放列表与歌曲的关联，Position 在列表内从 1 开始且唯一
type PlaylistTrack struct {
	PlaylistID string    `json:"playlistId" gorm:"primaryKey;size:36;uniqueIndex:idx_playlist_position,priority:1"`
	TrackID    string    `json:"trackId" gorm:"primaryKey;size:36;index"`
	Position   int       `json:"position" gorm:"not null;uniqueIndex:idx_playlist_position,priority:2"`
	AddedAt    time.Time `json:"addedAt" gorm:"autoCreateTime"`

	Playlist *Playlist `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Track    *Track    `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

// TableName 指定表名
func (PlaylistTrack) TableName() string {
	return "playlist_tracks"
}

// PlaylistEntry is a track as it appears in a playlist.
type PlaylistEntry struct {
	Track
	Position int       `json:"position"`
	AddedAt  time.Time `json:"addedAt"`
}

// PlaylistWithTracks 包含播放列表信息和其中的歌曲
type PlaylistWithTracks struct {
	Playlist
	Tracks []*PlaylistEntry `json:"tracks"`
}
