// Package offline stores the device-owned library: songs, playlists and settings
// that a client keeps for itself, with the audio bytes held in blob storage.
package offline

import (
	"strings"
	"time"
)

// CurrentVersion is the schema version written by this package.
const CurrentVersion = 2

// Song 设备端歌曲元数据
type Song struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Artist        string  `json:"artist,omitempty"`
	Album         string  `json:"album,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
	Year          *int    `json:"year,omitempty"`
	Genre         string  `json:"genre,omitempty"`
	FileName      string  `json:"fileName,omitempty"`
	FileSize      int64   `json:"fileSize,omitempty"`
	CoverArt      string  `json:"coverArt,omitempty"` // data: URL only
	AudioMimeType string  `json:"audioMimeType,omitempty"`
	HasAudio      bool    `json:"hasAudio"`
	IsFavorite    bool    `json:"isFavorite"`
	AddedAt       string  `json:"addedAt,omitempty"`

	// AudioBase64 is the pre-blob way of storing audio inside the document.
	// Documents are migrated away from it on load.
	AudioBase64 string `json:"audioBase64,omitempty"`
}

// Playlist 设备端歌单，songIds 保持顺序
type Playlist struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SongIDs   []string  `json:"songIds"`
	CreatedAt time.Time `json:"createdAt"`
	CoverArt  *string   `json:"coverArt"`
}

// Document is everything stored for one device.
type Document struct {
	Version   int                    `json:"version"`
	Songs     []Song                 `json:"songs"`
	Playlists []Playlist             `json:"playlists"`
	Settings  map[string]interface{} `json:"settings"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// NewDocument returns an empty document at the current version.
func NewDocument() *Document {
	return &Document{
		Version:   CurrentVersion,
		Songs:     []Song{},
		Playlists: []Playlist{},
		Settings:  map[string]interface{}{},
	}
}

// normalise fills nil collections and drops cover art that is not a data URL.
func (d *Document) normalise() {
	if d.Songs == nil {
		d.Songs = []Song{}
	}
	if d.Playlists == nil {
		d.Playlists = []Playlist{}
	}
	if d.Settings == nil {
		d.Settings = map[string]interface{}{}
	}
	for i := range d.Songs {
		if !strings.HasPrefix(d.Songs[i].CoverArt, "data:") {
			d.Songs[i].CoverArt = ""
		}
	}
	for i := range d.Playlists {
		if d.Playlists[i].SongIDs == nil {
			d.Playlists[i].SongIDs = []string{}
		}
	}
}

func (d *Document) songIndex(id string) int {
	for i := range d.Songs {
		if d.Songs[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *Document) playlistIndex(id string) int {
	for i := range d.Playlists {
		if d.Playlists[i].ID == id {
			return i
		}
	}
	return -1
}

// Song returns the song with id.
func (d *Document) Song(id string) (Song, bool) {
	if i := d.songIndex(id); i >= 0 {
		return d.Songs[i], true
	}
	return Song{}, false
}

// Playlist returns the playlist with id.
func (d *Document) Playlist(id string) (Playlist, bool) {
	if i := d.playlistIndex(id); i >= 0 {
		return d.Playlists[i], true
	}
	return Playlist{}, false
}

// PlaylistSongs resolves the songs of a playlist in order, skipping dangling IDs.
func (d *Document) PlaylistSongs(playlistID string) []Song {
	p, ok := d.Playlist(playlistID)
	if !ok {
		return nil
	}
	songs := make([]Song, 0, len(p.SongIDs))
	for _, id := range p.SongIDs {
		if s, ok := d.Song(id); ok {
			songs = append(songs, s)
		}
	}
	return songs
}

// Favorites returns the songs marked as favourite.
func (d *Document) Favorites() []Song {
	out := []Song{}
	for _, s := range d.Songs {
		if s.IsFavorite {
			out = append(out, s)
		}
	}
	return out
}

func removeString(list []string, v string) []string {
	out := list[:0:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}
