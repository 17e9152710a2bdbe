package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Track represents an audio file in the music library.
type Track struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	Title         string    `json:"title" gorm:"size:255;not null"`
	Artist        string    `json:"artist" gorm:"size:255;index:idx_tracks_order,priority:1"`
	Album         string    `json:"album" gorm:"size:255;index:idx_tracks_order,priority:2"`
	Duration      int       `json:"duration"` // whole seconds, 0 when unknown
	FilePath      string    `json:"-" gorm:"size:700;not null;uniqueIndex"`
	FileSize      int64     `json:"fileSize"`
	MimeType      string    `json:"mimeType" gorm:"size:100"`
	CoverArt      []byte    `json:"-" gorm:"type:longblob"`
	CoverMimeType string    `json:"coverMimeType,omitempty" gorm:"size:100"`
	Year          *int      `json:"year,omitempty"`
	Genre         string    `json:"genre,omitempty" gorm:"size:100"`
	TrackNumber   *int      `json:"trackNumber,omitempty" gorm:"index:idx_tracks_order,priority:3"`
	DiscNumber    *int      `json:"discNumber,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`

	// HasCover 由 CoverMimeType 推导，列表查询不加载封面数据
	HasCover bool `json:"hasCover" gorm:"-"`
}

// TableName 指定表名
func (Track) TableName() string {
	return "tracks"
}

// BeforeCreate assigns a UUID when the caller did not.
func (t *Track) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CoverMimeType == "" && len(t.CoverArt) > 0 {
		t.CoverMimeType = "image/jpeg"
	}
	return nil
}

func (t *Track) AfterCreate(tx *gorm.DB) error {
	t.HasCover = t.CoverMimeType != ""
	return nil
}

func (t *Track) AfterFind(tx *gorm.DB) error {
	t.HasCover = t.CoverMimeType != ""
	return nil
}
