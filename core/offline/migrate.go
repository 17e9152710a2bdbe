package offline

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"vibestream/logger"
)

// legacySettingKeys maps old settings names to their current names.
var legacySettingKeys = map[string]string{
	"albumBlur":         "albumArtBlur",
	"streamQuality":     "audioQuality",
	"gapless":           "gaplessPlayback",
	"particles":         "particleEffects",
	"listeningActivity": "shareListeningActivity",
	"showLyrics":        "showSongLyrics",
	"volumeNorm":        "normalization",
}

type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, r *Repository, device string, doc *Document) error
}

// migrations run in order; each one moves a document to its version.
var migrations = []migration{
	{version: 1, name: "canonical settings keys", apply: migrateSettingsKeys},
	{version: 2, name: "audio out of the document", apply: migrateEmbeddedAudio},
}

// migrate brings doc up to CurrentVersion and reports whether anything ran.
func (r *Repository) migrate(ctx context.Context, device string, doc *Document) (bool, error) {
	ran := false
	for _, m := range migrations {
		if doc.Version >= m.version {
			continue
		}
		if err := m.apply(ctx, r, device, doc); err != nil {
			return ran, fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		doc.Version = m.version
		ran = true
		logger.Info("设备曲库迁移完成",
			logger.String("device", device),
			logger.Int("version", m.version),
			logger.String("migration", m.name))
	}
	return ran, nil
}

// migrateSettingsKeys renames legacy keys. When both names are present the
// current one wins and the legacy value is dropped.
func migrateSettingsKeys(_ context.Context, _ *Repository, _ string, doc *Document) error {
	renameSettings(doc.Settings)
	return nil
}

func renameSettings(settings map[string]interface{}) {
	for legacy, canonical := range legacySettingKeys {
		v, ok := settings[legacy]
		if !ok {
			continue
		}
		if _, exists := settings[canonical]; !exists {
			settings[canonical] = v
		}
		delete(settings, legacy)
	}
}

// migrateEmbeddedAudio moves base64 audio held in the document into the blob
// adapter. Undecodable payloads are dropped with a warning.
func migrateEmbeddedAudio(ctx context.Context, r *Repository, device string, doc *Document) error {
	for i := range doc.Songs {
		if err := r.moveEmbeddedAudio(ctx, device, &doc.Songs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) moveEmbeddedAudio(ctx context.Context, device string, song *Song) error {
	if song.AudioBase64 == "" {
		return nil
	}
	if err := checkSong(song.ID); err != nil {
		return err
	}
	payload, mimeType := splitDataURL(song.AudioBase64)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		logger.Warn("内嵌音频解码失败，已丢弃",
			logger.String("device", device),
			logger.String("song", song.ID),
			logger.ErrorField(err))
		song.AudioBase64 = ""
		return nil
	}

	if song.AudioMimeType == "" {
		song.AudioMimeType = mimeType
	}
	if song.AudioMimeType == "" {
		song.AudioMimeType = DefaultAudioMimeType
	}
	if err := r.blobs.Put(ctx, device, song.ID, bytes.NewReader(data), int64(len(data)), song.AudioMimeType); err != nil {
		return fmt.Errorf("failed to store audio of song %s: %w", song.ID, err)
	}
	song.AudioBase64 = ""
	song.HasAudio = true
	if song.FileSize == 0 {
		song.FileSize = int64(len(data))
	}
	return nil
}

// splitDataURL accepts both bare base64 and "data:<mime>;base64,<payload>".
func splitDataURL(s string) (payload, mimeType string) {
	if !strings.HasPrefix(s, "data:") {
		return s, ""
	}
	header, data, ok := strings.Cut(s, ",")
	if !ok {
		return s, ""
	}
	header = strings.TrimPrefix(header, "data:")
	mimeType, _, _ = strings.Cut(header, ";")
	return data, mimeType
}
