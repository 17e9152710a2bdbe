// Package audio extracts catalog metadata from audio files.
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"vibestream/core/id3"
	"vibestream/logger"

	"github.com/dhowden/tag"
)

const (
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"
)

// Metadata is what the importer stores about an audio file.
type Metadata struct {
	Title         string
	Artist        string
	Album         string
	Year          *int
	Genre         string
	TrackNumber   *int
	DiscNumber    *int
	Duration      int // seconds
	MimeType      string
	CoverArt      []byte
	CoverMimeType string
	// Warnings from the tag decoder about frames it skipped.
	Warnings []string
}

// Probe reads the tags of the file at path. originalName is the name the file was
// uploaded under and provides the fallback title; mimeHint is the client's content
// type, if any. Only I/O errors are returned: damaged or missing tags degrade to
// fallback values.
func Probe(path, originalName, mimeHint string) (*Metadata, error) {
	if originalName == "" {
		originalName = filepath.Base(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	md := &Metadata{MimeType: MimeType(originalName, mimeHint)}

	t, err := id3.Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tag: %w", err)
	}
	if t.Present() {
		md.fromID3(t)
	} else {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to rewind audio file: %w", err)
		}
		m, err := tag.ReadFrom(f)
		switch {
		case err == nil:
			md.fromTag(m)
		case errors.Is(err, tag.ErrNoTagsFound):
		default:
			logger.Debug("读取标签失败", logger.String("path", path), logger.ErrorField(err))
		}
	}

	md.applyFallbacks(originalName)
	if isMPEG(originalName, md.MimeType) {
		md.Duration = Duration(path)
	}
	return md, nil
}

func (md *Metadata) fromID3(t *id3.Tag) {
	md.Title = strings.TrimSpace(t.Title)
	md.Artist = strings.TrimSpace(t.Artist)
	md.Album = strings.TrimSpace(t.Album)
	md.Genre = normaliseGenre(t.Genre)
	md.Year = leadingInt(t.Year)
	md.TrackNumber = leadingInt(t.Track)
	md.DiscNumber = leadingInt(t.Disc)
	if t.Picture != nil {
		md.CoverArt = t.Picture.Data
		md.CoverMimeType = t.Picture.MIMEType
	}
	md.Warnings = t.Warnings
}

func (md *Metadata) fromTag(m tag.Metadata) {
	md.Title = strings.TrimSpace(m.Title())
	md.Artist = strings.TrimSpace(m.Artist())
	md.Album = strings.TrimSpace(m.Album())
	md.Genre = normaliseGenre(m.Genre())
	if y := m.Year(); y > 0 {
		md.Year = &y
	}
	if n, _ := m.Track(); n > 0 {
		md.TrackNumber = &n
	}
	if n, _ := m.Disc(); n > 0 {
		md.DiscNumber = &n
	}
	if pic := m.Picture(); pic != nil && len(pic.Data) > 0 {
		md.CoverArt = pic.Data
		md.CoverMimeType = pic.MIMEType
		if md.CoverMimeType == "" {
			md.CoverMimeType = "image/jpeg"
		}
	}
}

func (md *Metadata) applyFallbacks(originalName string) {
	if md.Title == "" {
		base := filepath.Base(originalName)
		md.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if md.Artist == "" {
		md.Artist = UnknownArtist
	}
	if md.Album == "" {
		md.Album = UnknownAlbum
	}
}

// leadingInt parses the digits at the start of s: "3/12" is 3, "2004-05-01" is 2004.
func leadingInt(s string) *int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return nil
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}

// normaliseGenre drops the numeric ID3v1 reference of "(17)Rock" style genres.
func normaliseGenre(g string) string {
	g = strings.TrimSpace(g)
	if strings.HasPrefix(g, "(") {
		if i := strings.IndexByte(g, ')'); i > 0 && i < len(g)-1 {
			return strings.TrimSpace(g[i+1:])
		}
	}
	return g
}
