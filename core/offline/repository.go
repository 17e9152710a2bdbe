package offline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"vibestream/logger"
	"vibestream/storage"

	"github.com/google/uuid"
)

// DefaultAudioMimeType is assumed for audio stored without a type.
const DefaultAudioMimeType = "audio/mpeg"

var (
	ErrInvalidDevice    = errors.New("invalid device id")
	ErrInvalidSong      = errors.New("invalid song id")
	ErrSongNotFound     = errors.New("song not found")
	ErrPlaylistNotFound = errors.New("playlist not found")
	ErrAudioNotFound    = errors.New("audio not found")
	ErrNameRequired     = errors.New("playlist name is required")
)

var (
	deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	// Song IDs become blob key segments, so path separators and dots are rejected.
	songIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
)

// Repository is the single entry point to a device library. Every change loads
// the document, applies the change and saves it back while holding the device lock.
type Repository struct {
	meta  MetadataAdapter
	blobs BlobAdapter

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewRepository combines a metadata adapter and a blob adapter.
func NewRepository(meta MetadataAdapter, blobs BlobAdapter) *Repository {
	return &Repository{
		meta:  meta,
		blobs: blobs,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

func (r *Repository) lock(device string) func() {
	r.mu.Lock()
	l, ok := r.locks[device]
	if !ok {
		l = &sync.Mutex{}
		r.locks[device] = l
	}
	r.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func checkSong(songID string) error {
	if !songIDPattern.MatchString(songID) {
		return fmt.Errorf("%w: %q", ErrInvalidSong, songID)
	}
	return nil
}

func checkDevice(device string) error {
	if !deviceIDPattern.MatchString(device) {
		return fmt.Errorf("%w: %q", ErrInvalidDevice, device)
	}
	return nil
}

// Load returns the device document, migrating and re-saving it first when it was
// written by an older version. Unknown devices get an empty document.
func (r *Repository) Load(ctx context.Context, device string) (*Document, error) {
	if err := checkDevice(device); err != nil {
		return nil, err
	}
	defer r.lock(device)()
	return r.load(ctx, device)
}

func (r *Repository) load(ctx context.Context, device string) (*Document, error) {
	doc, err := r.meta.Load(ctx, device)
	if err != nil {
		return nil, fmt.Errorf("failed to load device library: %w", err)
	}
	if doc == nil {
		return NewDocument(), nil
	}
	doc.normalise()

	ran, err := r.migrate(ctx, device, doc)
	if err != nil {
		return nil, err
	}
	if ran {
		if err := r.save(ctx, device, doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (r *Repository) save(ctx context.Context, device string, doc *Document) error {
	doc.UpdatedAt = r.now().UTC()
	if err := r.meta.Save(ctx, device, doc); err != nil {
		return fmt.Errorf("failed to save device library: %w", err)
	}
	return nil
}

// modify runs fn on the loaded document and saves the result when fn succeeds.
func (r *Repository) modify(ctx context.Context, device string, fn func(doc *Document) error) (*Document, error) {
	if err := checkDevice(device); err != nil {
		return nil, err
	}
	defer r.lock(device)()

	doc, err := r.load(ctx, device)
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		return nil, err
	}
	if err := r.save(ctx, device, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Save replaces the whole document. Legacy settings keys are renamed and embedded
// audio is moved to the blob adapter, as on load.
func (r *Repository) Save(ctx context.Context, device string, doc *Document) (*Document, error) {
	return r.modify(ctx, device, func(current *Document) error {
		next := *doc
		next.normalise()
		renameSettings(next.Settings)
		for i := range next.Songs {
			if next.Songs[i].ID == "" {
				next.Songs[i].ID = uuid.NewString()
			}
			if err := checkSong(next.Songs[i].ID); err != nil {
				return err
			}
			if err := r.moveEmbeddedAudio(ctx, device, &next.Songs[i]); err != nil {
				return err
			}
		}
		next.Version = CurrentVersion
		*current = next
		return nil
	})
}

// AddSongs appends songs. A song whose ID is already present replaces the stored
// metadata in place; songs without an ID get a fresh one.
func (r *Repository) AddSongs(ctx context.Context, device string, songs []Song) (*Document, error) {
	return r.modify(ctx, device, func(doc *Document) error {
		for _, song := range songs {
			if song.ID == "" {
				song.ID = uuid.NewString()
			}
			if err := checkSong(song.ID); err != nil {
				return err
			}
			if !strings.HasPrefix(song.CoverArt, "data:") {
				song.CoverArt = ""
			}
			if song.AddedAt == "" {
				song.AddedAt = r.now().UTC().Format(time.RFC3339)
			}
			if err := r.moveEmbeddedAudio(ctx, device, &song); err != nil {
				return err
			}
			if i := doc.songIndex(song.ID); i >= 0 {
				song.HasAudio = song.HasAudio || doc.Songs[i].HasAudio
				doc.Songs[i] = song
				continue
			}
			doc.Songs = append(doc.Songs, song)
		}
		return nil
	})
}

// RemoveSong deletes the song, its audio and every playlist reference to it.
func (r *Repository) RemoveSong(ctx context.Context, device, songID string) (*Document, error) {
	return r.modify(ctx, device, func(doc *Document) error {
		i := doc.songIndex(songID)
		if i < 0 {
			return ErrSongNotFound
		}
		if err := r.blobs.Delete(ctx, device, songID); err != nil {
			logger.Warn("删除设备音频失败",
				logger.String("device", device),
				logger.String("song", songID),
				logger.ErrorField(err))
		}
		doc.Songs = append(doc.Songs[:i:i], doc.Songs[i+1:]...)
		for j := range doc.Playlists {
			doc.Playlists[j].SongIDs = removeString(doc.Playlists[j].SongIDs, songID)
		}
		return nil
	})
}

// ToggleFavorite flips the favourite flag of a song and returns the new value.
func (r *Repository) ToggleFavorite(ctx context.Context, device, songID string) (bool, error) {
	var favorite bool
	_, err := r.modify(ctx, device, func(doc *Document) error {
		i := doc.songIndex(songID)
		if i < 0 {
			return ErrSongNotFound
		}
		doc.Songs[i].IsFavorite = !doc.Songs[i].IsFavorite
		favorite = doc.Songs[i].IsFavorite
		return nil
	})
	return favorite, err
}

// CreatePlaylist adds a playlist. Unknown song IDs are dropped, duplicates kept once.
func (r *Repository) CreatePlaylist(ctx context.Context, device, name string, songIDs []string) (*Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	var created Playlist
	_, err := r.modify(ctx, device, func(doc *Document) error {
		ids := []string{}
		seen := make(map[string]bool, len(songIDs))
		for _, id := range songIDs {
			if seen[id] || doc.songIndex(id) < 0 {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
		created = Playlist{
			ID:        "pl_" + uuid.NewString(),
			Name:      name,
			SongIDs:   ids,
			CreatedAt: r.now().UTC(),
		}
		doc.Playlists = append(doc.Playlists, created)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// DeletePlaylist removes a playlist. Its songs stay in the library.
func (r *Repository) DeletePlaylist(ctx context.Context, device, playlistID string) (*Document, error) {
	return r.modify(ctx, device, func(doc *Document) error {
		i := doc.playlistIndex(playlistID)
		if i < 0 {
			return ErrPlaylistNotFound
		}
		doc.Playlists = append(doc.Playlists[:i:i], doc.Playlists[i+1:]...)
		return nil
	})
}

// AddSongToPlaylist appends a song to a playlist; a song already in it is left alone.
func (r *Repository) AddSongToPlaylist(ctx context.Context, device, playlistID, songID string) (*Playlist, error) {
	var out Playlist
	_, err := r.modify(ctx, device, func(doc *Document) error {
		i := doc.playlistIndex(playlistID)
		if i < 0 {
			return ErrPlaylistNotFound
		}
		if doc.songIndex(songID) < 0 {
			return ErrSongNotFound
		}
		p := &doc.Playlists[i]
		for _, id := range p.SongIDs {
			if id == songID {
				out = *p
				return nil
			}
		}
		p.SongIDs = append(p.SongIDs, songID)
		out = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveSongFromPlaylist drops a song from a playlist.
func (r *Repository) RemoveSongFromPlaylist(ctx context.Context, device, playlistID, songID string) (*Playlist, error) {
	var out Playlist
	_, err := r.modify(ctx, device, func(doc *Document) error {
		i := doc.playlistIndex(playlistID)
		if i < 0 {
			return ErrPlaylistNotFound
		}
		doc.Playlists[i].SongIDs = removeString(doc.Playlists[i].SongIDs, songID)
		out = doc.Playlists[i]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PutAudio stores the audio of an existing song.
func (r *Repository) PutAudio(ctx context.Context, device, songID string, content io.Reader, size int64, mimeType string) (*Song, error) {
	if mimeType == "" {
		mimeType = DefaultAudioMimeType
	}
	var out Song
	_, err := r.modify(ctx, device, func(doc *Document) error {
		i := doc.songIndex(songID)
		if i < 0 {
			return ErrSongNotFound
		}
		if err := r.blobs.Put(ctx, device, songID, content, size, mimeType); err != nil {
			return fmt.Errorf("failed to store audio: %w", err)
		}
		doc.Songs[i].AudioMimeType = mimeType
		doc.Songs[i].HasAudio = true
		if size > 0 {
			doc.Songs[i].FileSize = size
		}
		out = doc.Songs[i]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenAudio opens the stored audio of a song. The caller closes the blob.
// The returned MIME type prefers the one recorded on the song.
func (r *Repository) OpenAudio(ctx context.Context, device, songID string) (*storage.Blob, string, error) {
	doc, err := r.Load(ctx, device)
	if err != nil {
		return nil, "", err
	}
	song, ok := doc.Song(songID)
	if !ok {
		return nil, "", ErrSongNotFound
	}
	blob, err := r.blobs.Open(ctx, device, songID)
	if errors.Is(err, storage.ErrBlobNotFound) {
		return nil, "", ErrAudioNotFound
	}
	if err != nil {
		return nil, "", err
	}

	mimeType := song.AudioMimeType
	if mimeType == "" {
		mimeType = blob.Info.ContentType
	}
	if mimeType == "" {
		mimeType = DefaultAudioMimeType
	}
	return blob, mimeType, nil
}

// DeleteDevice removes the document and all audio of a device.
func (r *Repository) DeleteDevice(ctx context.Context, device string) error {
	if err := checkDevice(device); err != nil {
		return err
	}
	defer r.lock(device)()
	if err := r.blobs.DeleteAll(ctx, device); err != nil {
		return fmt.Errorf("failed to delete device audio: %w", err)
	}
	return r.meta.Delete(ctx, device)
}
