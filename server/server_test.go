package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vibestream/config"
	"vibestream/core/catalog"
	"vibestream/core/offline"
	"vibestream/core/player"
	"vibestream/core/scanner"
	"vibestream/internal/testutil"
	"vibestream/model"
	"vibestream/repository"
	"vibestream/storage"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	handler *APIHandler
	tracks  repository.TrackRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gdb := testutil.OpenDB(t)
	tracks := repository.NewGormTrackRepository(gdb)
	playlists := repository.NewGormPlaylistRepository(gdb)

	cfg := &config.Config{
		AudioUploadDir:       filepath.Join(t.TempDir(), "audio"),
		MaxUploadMB:          10,
		MaxConcurrentUploads: 1,
	}
	importer := catalog.NewImporter(tracks, cfg.AudioUploadDir)

	blobs, err := storage.NewLocalStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	devices := offline.NewRepository(offline.NewBlobMetadata(blobs), offline.NewBlobAdapter(blobs))

	h := NewAPIHandler(cfg, tracks, playlists, importer, scanner.New(importer), player.NewManager(nil), devices)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, handler: h, tracks: tracks}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) doJSON(t *testing.T, method, path string, v interface{}) *http.Response {
	t.Helper()
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return s.do(t, method, path, body, map[string]string{"Content-Type": "application/json"})
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, resp, &body)
	return body.Error
}

type part struct {
	filename    string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, field string, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name=%q; filename=%q`, field, p.filename)}
		h["Content-Type"] = []string{p.contentType}
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (s *testServer) upload(t *testing.T, title string, cover []byte) *model.Track {
	t.Helper()
	body, ct := multipartBody(t, "file", part{title + ".mp3", "audio/mpeg", testutil.MP3(t, title, "Band", cover)})
	resp := s.do(t, http.MethodPost, "/api/library/upload", body, map[string]string{"Content-Type": ct})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		ID      string       `json:"id"`
		Message string       `json:"message"`
		Track   *model.Track `json:"track"`
	}
	decode(t, resp, &out)
	assert.Equal(t, "Track added successfully", out.Message)
	assert.Equal(t, out.ID, out.Track.ID)
	return out.Track
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, map[string]string{"status": "ok", "message": "Music server running"}, body)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, http.MethodOptions, "/api/stream/anything", nil, map[string]string{
		"Origin":                        "http://example.com",
		"Access-Control-Request-Method": "GET",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Content-Type, Authorization, Range", resp.Header.Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "Content-Length, Content-Range", resp.Header.Get("Access-Control-Expose-Headers"))
	assert.Equal(t, "86400", resp.Header.Get("Access-Control-Max-Age"))
}

func TestUploadAndStream(t *testing.T) {
	s := newTestServer(t)
	track := s.upload(t, "Intro", testutil.PNG)
	assert.Equal(t, "Intro", track.Title)
	assert.True(t, track.HasCover)

	stored, err := s.tracks.GetTrackByID(t.Context(), track.ID)
	require.NoError(t, err)
	content, err := os.ReadFile(stored.FilePath)
	require.NoError(t, err)
	size := len(content)

	// 全量
	resp := s.do(t, http.MethodGet, "/api/stream/"+track.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// 区间
	resp = s.do(t, http.MethodGet, "/api/stream/"+track.ID, nil, map[string]string{"Range": "bytes=0-9"})
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, fmt.Sprintf("bytes 0-9/%d", size), resp.Header.Get("Content-Range"))
	assert.Equal(t, "10", resp.Header.Get("Content-Length"))
	got, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content[:10], got)

	// 越界
	resp = s.do(t, http.MethodGet, "/api/stream/"+track.ID, nil, map[string]string{"Range": fmt.Sprintf("bytes=%d-", size)})
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
	assert.Equal(t, fmt.Sprintf("bytes */%d", size), resp.Header.Get("Content-Range"))

	resp = s.do(t, http.MethodHead, "/api/stream/"+track.ID, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, fmt.Sprint(size), resp.Header.Get("Content-Length"))

	resp = s.do(t, http.MethodGet, "/api/stream/"+track.ID+"/cover", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, fmt.Sprint(len(testutil.PNG)), resp.Header.Get("Content-Length"))
	got, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, testutil.PNG, got)

	resp = s.do(t, http.MethodGet, "/api/library/tracks", nil, nil)
	var list []*model.Track
	decode(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, track.ID, list[0].ID)
}

func TestStreamNotFound(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/stream/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Track not found", errorMessage(t, resp))

	resp = s.do(t, http.MethodGet, "/api/stream/missing/cover", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Track not found", errorMessage(t, resp))

	plain := s.upload(t, "Plain", nil)
	resp = s.do(t, http.MethodGet, "/api/stream/"+plain.ID+"/cover", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Cover art not found", errorMessage(t, resp))

	stored, err := s.tracks.GetTrackByID(t.Context(), plain.ID)
	require.NoError(t, err)
	require.NoError(t, os.Remove(stored.FilePath))
	resp = s.do(t, http.MethodGet, "/api/stream/"+plain.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "File not found on disk", errorMessage(t, resp))
}

func TestUploadErrors(t *testing.T) {
	s := newTestServer(t)

	body, ct := multipartBody(t, "file", part{"notes.txt", "text/plain", []byte("hello")})
	resp := s.do(t, http.MethodPost, "/api/library/upload", body, map[string]string{"Content-Type": ct})
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	body, ct = multipartBody(t, "other", part{"a.mp3", "audio/mpeg", []byte("x")})
	resp = s.do(t, http.MethodPost, "/api/library/upload", body, map[string]string{"Content-Type": ct})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No file uploaded", errorMessage(t, resp))

	resp = s.do(t, http.MethodPost, "/api/library/upload", strings.NewReader("nope"), map[string]string{"Content-Type": "text/plain"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadRejectsWhenBusy(t *testing.T) {
	s := newTestServer(t)
	s.handler.uploadSemaphore <- struct{}{}
	defer func() { <-s.handler.uploadSemaphore }()

	body, ct := multipartBody(t, "file", part{"a.mp3", "audio/mpeg", testutil.MP3(t, "A", "B", nil)})
	resp := s.do(t, http.MethodPost, "/api/library/upload", body, map[string]string{"Content-Type": ct})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "Server is busy, please try again later", errorMessage(t, resp))
}

func TestBulkUpload(t *testing.T) {
	s := newTestServer(t)
	body, ct := multipartBody(t, "files",
		part{"one.mp3", "audio/mpeg", testutil.MP3(t, "One", "Band", nil)},
		part{"readme.txt", "text/plain", []byte("not audio")},
		part{"two.mp3", "audio/mpeg", testutil.MP3(t, "Two", "Band", nil)},
	)
	resp := s.do(t, http.MethodPost, "/api/library/upload-bulk", body, map[string]string{"Content-Type": ct})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out bulkUploadResponse
	decode(t, resp, &out)
	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Imported)
	assert.Equal(t, 3, out.Total)
	assert.Equal(t, "Successfully imported 2 tracks", out.Message)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "readme.txt", out.Errors[0].File)
}

func TestDeleteTrackHandler(t *testing.T) {
	s := newTestServer(t)
	track := s.upload(t, "Gone", nil)

	resp := s.do(t, http.MethodDelete, "/api/library/tracks/"+track.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msg map[string]string
	decode(t, resp, &msg)
	assert.Equal(t, "Track deleted successfully", msg["message"])

	resp = s.do(t, http.MethodDelete, "/api/library/tracks/"+track.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/library/tracks/"+track.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScanHandler(t *testing.T) {
	s := newTestServer(t)

	resp := s.doJSON(t, http.MethodPost, "/api/library/scan", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Directory path required", errorMessage(t, resp))

	resp = s.doJSON(t, http.MethodPost, "/api/library/scan", map[string]string{"directory": filepath.Join(t.TempDir(), "nope")})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Directory not found", errorMessage(t, resp))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mp3"), testutil.MP3(t, "A", "Band", nil), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0644))

	resp = s.doJSON(t, http.MethodPost, "/api/library/scan", map[string]string{"directory": dir})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result scanner.Result
	decode(t, resp, &result)
	assert.Equal(t, 1, result.Found)
	assert.Equal(t, 1, result.Imported)
}

func TestPlaylistEndpoints(t *testing.T) {
	s := newTestServer(t)
	a := s.upload(t, "A", nil)
	b := s.upload(t, "B", nil)

	resp := s.doJSON(t, http.MethodPost, "/api/playlists", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Playlist name required", errorMessage(t, resp))

	resp = s.doJSON(t, http.MethodPost, "/api/playlists", map[string]string{"name": "Mix"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var p model.Playlist
	decode(t, resp, &p)
	assert.Equal(t, "Mix", p.Name)

	resp = s.doJSON(t, http.MethodPost, "/api/playlists/"+p.ID+"/tracks", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Track ID required", errorMessage(t, resp))

	for i, tr := range []*model.Track{a, b} {
		resp = s.doJSON(t, http.MethodPost, "/api/playlists/"+p.ID+"/tracks", map[string]string{"trackId": tr.ID})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var added struct {
			Message  string `json:"message"`
			Position int    `json:"position"`
		}
		decode(t, resp, &added)
		assert.Equal(t, "Track added to playlist", added.Message)
		assert.Equal(t, i+1, added.Position)
	}

	resp = s.doJSON(t, http.MethodPut, "/api/playlists/"+p.ID+"/tracks/order", map[string][]string{"trackIds": {b.ID, a.ID}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []*model.PlaylistEntry
	decode(t, resp, &entries)
	require.Len(t, entries, 2)
	assert.Equal(t, b.ID, entries[0].ID)

	resp = s.doJSON(t, http.MethodPut, "/api/playlists/"+p.ID, map[string]string{"name": "Renamed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &p)
	assert.Equal(t, "Renamed", p.Name)

	resp = s.do(t, http.MethodDelete, "/api/playlists/"+p.ID+"/tracks/"+a.ID, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.do(t, http.MethodDelete, "/api/playlists/"+p.ID+"/tracks/"+a.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Track not found in playlist", errorMessage(t, resp))

	resp = s.do(t, http.MethodGet, "/api/playlists/"+p.ID+"/tracks", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Position)

	resp = s.do(t, http.MethodDelete, "/api/playlists/"+p.ID, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msg map[string]string
	decode(t, resp, &msg)
	assert.Equal(t, "Playlist deleted successfully", msg["message"])

	resp = s.do(t, http.MethodGet, "/api/playlists/"+p.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPlayerREST(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/player/bad.id", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/player/living-room", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st player.State
	decode(t, resp, &st)
	assert.Nil(t, st.CurrentSong)
	assert.Equal(t, player.DefaultVolume, st.Volume)

	queue := []player.Song{{ID: "1", Title: "One", Duration: 100}, {ID: "2", Title: "Two", Duration: 200}}
	resp = s.doJSON(t, http.MethodPost, "/api/player/living-room/commands", map[string]interface{}{
		"type": "play",
		"data": map[string]interface{}{"song": queue[1], "queue": queue},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &st)
	require.NotNil(t, st.CurrentSong)
	assert.Equal(t, "2", st.CurrentSong.ID)
	assert.True(t, st.IsPlaying)
	assert.Equal(t, 1, st.CurrentIndex)

	resp = s.doJSON(t, http.MethodPost, "/api/player/living-room/commands", map[string]interface{}{"type": "next"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &st)
	assert.False(t, st.IsPlaying, "end of queue without repeat pauses")

	resp = s.doJSON(t, http.MethodPost, "/api/player/living-room/commands", map[string]interface{}{"type": "explode"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.doJSON(t, http.MethodPost, "/api/player/living-room/commands", map[string]interface{}{"type": "seek"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func readEvent(t *testing.T, conn *websocket.Conn) playerEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev playerEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestPlayerWebSocket(t *testing.T) {
	s := newTestServer(t)
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/player/kitchen/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	ev := readEvent(t, conn)
	assert.Equal(t, "state", ev.Type)
	require.NotNil(t, ev.State)
	assert.False(t, ev.State.IsPlaying)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "ping"}))
	assert.Equal(t, "pong", readEvent(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "play",
		"data": map[string]interface{}{"song": player.Song{ID: "x", Title: "X", Duration: 60}},
	}))
	ev = readEvent(t, conn)
	assert.Equal(t, "state", ev.Type)
	require.NotNil(t, ev.State.CurrentSong)
	assert.Equal(t, "x", ev.State.CurrentSong.ID)
	assert.True(t, ev.State.IsPlaying)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "volume", "data": map[string]float64{"volume": 3}}))
	ev = readEvent(t, conn)
	assert.Equal(t, 1.0, ev.State.Volume)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	ev = readEvent(t, conn)
	assert.Equal(t, "error", ev.Type)

	// 另一个连接看到同一个会话
	resp := s.do(t, http.MethodGet, "/api/player/kitchen", nil, nil)
	var st player.State
	decode(t, resp, &st)
	assert.Equal(t, "x", st.CurrentSong.ID)
}

func TestDeviceLibraryEndpoints(t *testing.T) {
	s := newTestServer(t)
	base := "/api/devices/phone-1"

	resp := s.do(t, http.MethodGet, "/api/devices/bad.device", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, base, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var doc offline.Document
	decode(t, resp, &doc)
	assert.Equal(t, offline.CurrentVersion, doc.Version)
	assert.Empty(t, doc.Songs)

	resp = s.doJSON(t, http.MethodPost, base+"/songs", map[string]interface{}{
		"songs": []offline.Song{{ID: "s1", Title: "First"}, {ID: "s2", Title: "Second"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	decode(t, resp, &doc)
	assert.Len(t, doc.Songs, 2)

	resp = s.do(t, http.MethodPost, base+"/songs/s1/favorite", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fav map[string]interface{}
	decode(t, resp, &fav)
	assert.Equal(t, true, fav["isFavorite"])

	resp = s.do(t, http.MethodPost, base+"/songs/nope/favorite", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Song not found", errorMessage(t, resp))

	// 音频
	resp = s.do(t, http.MethodGet, base+"/songs/s1/audio", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Audio not found", errorMessage(t, resp))

	audio := []byte("0123456789abcdef")
	resp = s.do(t, http.MethodPut, base+"/songs/s1/audio", bytes.NewReader(audio), map[string]string{"Content-Type": "audio/ogg"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var song offline.Song
	decode(t, resp, &song)
	assert.True(t, song.HasAudio)
	assert.Equal(t, "audio/ogg", song.AudioMimeType)

	resp = s.do(t, http.MethodGet, base+"/songs/s1/audio", nil, map[string]string{"Range": "bytes=4-7"})
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 4-7/16", resp.Header.Get("Content-Range"))
	assert.Equal(t, "audio/ogg", resp.Header.Get("Content-Type"))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("4567"), got)

	body, ct := multipartBody(t, "file", part{"s2.mp3", "audio/mpeg", []byte("mp3data")})
	resp = s.do(t, http.MethodPost, base+"/songs/s2/audio", body, map[string]string{"Content-Type": ct})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &song)
	assert.Equal(t, int64(7), song.FileSize)

	// 歌单
	resp = s.doJSON(t, http.MethodPost, base+"/playlists", map[string]interface{}{"name": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.doJSON(t, http.MethodPost, base+"/playlists", map[string]interface{}{"name": "Road", "songIds": []string{"s2", "ghost"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var pl offline.Playlist
	decode(t, resp, &pl)
	assert.Equal(t, []string{"s2"}, pl.SongIDs)

	resp = s.doJSON(t, http.MethodPost, base+"/playlists/"+pl.ID+"/songs", map[string]string{"songId": "s1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &pl)
	assert.Equal(t, []string{"s2", "s1"}, pl.SongIDs)

	resp = s.do(t, http.MethodGet, base+"/playlists/"+pl.ID+"/songs", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var songs []offline.Song
	decode(t, resp, &songs)
	require.Len(t, songs, 2)
	assert.Equal(t, "Second", songs[0].Title)

	resp = s.do(t, http.MethodDelete, base+"/playlists/"+pl.ID+"/songs/s2", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &pl)
	assert.Equal(t, []string{"s1"}, pl.SongIDs)

	resp = s.do(t, http.MethodDelete, base+"/songs/s1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &doc)
	require.Len(t, doc.Playlists, 1)
	assert.Empty(t, doc.Playlists[0].SongIDs)

	resp = s.do(t, http.MethodDelete, base+"/playlists/"+pl.ID, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.do(t, http.MethodGet, base+"/playlists/"+pl.ID+"/songs", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, base, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = s.do(t, http.MethodGet, base, nil, nil)
	decode(t, resp, &doc)
	assert.Empty(t, doc.Songs)
}

func TestPutDeviceLibraryMigratesLegacySettings(t *testing.T) {
	s := newTestServer(t)
	resp := s.doJSON(t, http.MethodPut, "/api/devices/tablet", map[string]interface{}{
		"songs":    []map[string]string{{"id": "a", "title": "A"}},
		"settings": map[string]interface{}{"albumBlur": true},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var doc offline.Document
	decode(t, resp, &doc)
	assert.Equal(t, true, doc.Settings["albumArtBlur"])
	assert.NotContains(t, doc.Settings, "albumBlur")

	resp = s.do(t, http.MethodPut, "/api/devices/tablet", strings.NewReader("{"), map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeviceSongIDMustBeSafe(t *testing.T) {
	s := newTestServer(t)
	resp := s.doJSON(t, http.MethodPost, "/api/devices/victim/songs", map[string]interface{}{
		"songs": []map[string]string{{"id": "v1", "title": "Mine"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	song := map[string]string{
		"id":          "../../victim/library.json",
		"audioBase64": "eyJzb25ncyI6W119", // {"songs":[]}
	}
	resp = s.doJSON(t, http.MethodPost, "/api/devices/attacker/songs", map[string]interface{}{
		"songs": []map[string]string{song},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid song id", errorMessage(t, resp))

	resp = s.doJSON(t, http.MethodPut, "/api/devices/attacker", map[string]interface{}{
		"songs": []map[string]string{song},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/api/devices/victim", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var doc offline.Document
	decode(t, resp, &doc)
	require.Len(t, doc.Songs, 1)
	assert.Equal(t, "v1", doc.Songs[0].ID)
}
