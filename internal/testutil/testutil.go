// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"bytes"
	"path/filepath"
	"testing"

	"vibestream/db"

	"github.com/alicebob/miniredis/v2"
	"github.com/bogem/id3v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenDB returns a migrated sqlite database in a temporary directory.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(db.SQLiteDSN(filepath.Join(t.TempDir(), "test.db"))), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return gdb
}

// Redis starts an in-process Redis server and returns a client for it.
func Redis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// PNG is a tiny stand-in for cover art bytes.
var PNG = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x01}

// MP3 returns an ID3v2.3 tagged file body followed by a few silent MPEG frames.
// A nil cover leaves the picture frame out.
func MP3(t testing.TB, title, artist string, cover []byte) []byte {
	t.Helper()
	tag := id3v2.NewEmptyTag()
	tag.SetVersion(3)
	tag.SetDefaultEncoding(id3v2.EncodingISO)
	tag.SetTitle(title)
	tag.SetArtist(artist)
	tag.SetAlbum("Fixtures")
	if cover != nil {
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingISO,
			MimeType:    "image/png",
			PictureType: id3v2.PTFrontCover,
			Picture:     cover,
		})
	}

	var buf bytes.Buffer
	_, err := tag.WriteTo(&buf)
	require.NoError(t, err)

	frame := make([]byte, 417)
	copy(frame, []byte{0xff, 0xfb, 0x90, 0x00})
	buf.Write(bytes.Repeat(frame, 8))
	return buf.Bytes()
}
