package db

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"vibestream/config"
	"vibestream/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMySQLDSN(t *testing.T) {
	cfg := &config.Config{DBUser: "music", DBPassword: "s3cret", DBHost: "db", DBPort: "3307", DBName: "library"}
	dsn := MySQLDSN(cfg)

	assert.Contains(t, dsn, "music:s3cret@tcp(db:3307)/library")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestOpenSQLiteAndMigrate(t *testing.T) {
	cfg := &config.Config{DBDriver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "nested", "lib.db")}

	gdb, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, Migrate(gdb))

	for _, m := range []interface{}{&model.Track{}, &model.Playlist{}, &model.PlaylistTrack{}} {
		assert.True(t, gdb.Migrator().HasTable(m))
	}
	assert.False(t, gdb.Migrator().HasColumn(&model.Playlist{}, "track_count"))

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(&config.Config{DBDriver: "postgres"})
	assert.Error(t, err)
}

func TestRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	client, err := NewRedisClient(context.Background(), &config.Config{RedisHost: host, RedisPort: port})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, CheckRedis(context.Background(), client))
	assert.False(t, mr.Exists("vibestream:healthcheck"))
}

func TestCheckRedisWithoutClient(t *testing.T) {
	assert.Error(t, CheckRedis(context.Background(), nil))
}
