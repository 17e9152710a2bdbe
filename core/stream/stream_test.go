package stream_test

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"vibestream/core/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleContent(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func writeSample(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.mp3")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    *stream.ByteRange
		wantErr error
	}{
		{"empty", "", nil, nil},
		{"closed", "bytes=100-199", &stream.ByteRange{Start: 100, End: 199}, nil},
		{"open ended", "bytes=900-", &stream.ByteRange{Start: 900, End: 999}, nil},
		{"end clamped", "bytes=500-5000", &stream.ByteRange{Start: 500, End: 999}, nil},
		{"single byte", "bytes=0-0", &stream.ByteRange{Start: 0, End: 0}, nil},
		{"suffix", "bytes=-100", &stream.ByteRange{Start: 900, End: 999}, nil},
		{"suffix longer than file", "bytes=-5000", &stream.ByteRange{Start: 0, End: 999}, nil},
		{"first of many", "bytes=10-19, 30-39", &stream.ByteRange{Start: 10, End: 19}, nil},
		{"mixed case unit", "Bytes=1-2", &stream.ByteRange{Start: 1, End: 2}, nil},
		{"start past end of file", "bytes=1000-", nil, stream.ErrRangeNotSatisfiable},
		{"start after end", "bytes=200-100", nil, stream.ErrRangeNotSatisfiable},
		{"zero suffix", "bytes=-0", nil, stream.ErrRangeNotSatisfiable},
		{"other unit", "items=0-10", nil, nil},
		{"no dash", "bytes=100", nil, nil},
		{"not a number", "bytes=abc-def", nil, nil},
		{"negative end", "bytes=5--1", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := stream.ParseRange(tt.header, 1000)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRangeEmptyResource(t *testing.T) {
	_, err := stream.ParseRange("bytes=0-", 0)
	assert.ErrorIs(t, err, stream.ErrRangeNotSatisfiable)

	_, err = stream.ParseRange("bytes=-10", 0)
	assert.ErrorIs(t, err, stream.ErrRangeNotSatisfiable)
}

func TestServeFilePartial(t *testing.T) {
	data := sampleContent(1000)
	path := writeSample(t, data)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Range", "bytes=100-199")
	rec := httptest.NewRecorder()

	require.NoError(t, stream.ServeFile(rec, req, path, "audio/flac"))

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 100-199/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "100", rec.Header().Get("Content-Length"))
	assert.Equal(t, "audio/flac", rec.Header().Get("Content-Type"))
	assert.Equal(t, data[100:200], rec.Body.Bytes())
}

func TestServeFileFull(t *testing.T) {
	data := sampleContent(1000)
	path := writeSample(t, data)

	rec := httptest.NewRecorder()
	require.NoError(t, stream.ServeFile(rec, httptest.NewRequest(http.MethodGet, "/stream", nil), path, ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1000", rec.Header().Get("Content-Length"))
	assert.Equal(t, stream.DefaultContentType, rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Content-Range"))
	assert.Equal(t, data, rec.Body.Bytes())
}

func TestServeFileSuffixRange(t *testing.T) {
	data := sampleContent(1000)
	path := writeSample(t, data)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Range", "bytes=-10")
	rec := httptest.NewRecorder()

	require.NoError(t, stream.ServeFile(rec, req, path, "audio/mpeg"))
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 990-999/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, data[990:], rec.Body.Bytes())
}

func TestServeFileUnsatisfiable(t *testing.T) {
	path := writeSample(t, sampleContent(1000))

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Range", "bytes=2000-3000")
	rec := httptest.NewRecorder()

	require.NoError(t, stream.ServeFile(rec, req, path, "audio/mpeg"))
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */1000", rec.Header().Get("Content-Range"))
	assert.Zero(t, rec.Body.Len())
}

func TestServeFileMalformedRangeServesEverything(t *testing.T) {
	data := sampleContent(300)
	path := writeSample(t, data)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Range", "bytes=oops")
	rec := httptest.NewRecorder()

	require.NoError(t, stream.ServeFile(rec, req, path, "audio/mpeg"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, data, rec.Body.Bytes())
}

func TestServeFileHead(t *testing.T) {
	path := writeSample(t, sampleContent(1000))

	req := httptest.NewRequest(http.MethodHead, "/stream", nil)
	req.Header.Set("Range", "bytes=0-499")
	rec := httptest.NewRecorder()

	require.NoError(t, stream.ServeFile(rec, req, path, "audio/mpeg"))
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "500", rec.Header().Get("Content-Length"))
	assert.Zero(t, rec.Body.Len())
}

func TestServeFileMissing(t *testing.T) {
	rec := httptest.NewRecorder()
	err := stream.ServeFile(rec, httptest.NewRequest(http.MethodGet, "/stream", nil),
		filepath.Join(t.TempDir(), "gone.mp3"), "audio/mpeg")

	assert.ErrorIs(t, err, stream.ErrFileNotFound)
	assert.False(t, rec.Flushed)
	assert.Empty(t, rec.Header())
	assert.Zero(t, rec.Body.Len())
}

func TestServeFileDirectory(t *testing.T) {
	err := stream.ServeFile(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/stream", nil),
		t.TempDir(), "audio/mpeg")
	assert.ErrorIs(t, err, stream.ErrFileNotFound)
}

// seekOnly hides io.ReaderAt so Serve takes the seek path.
type seekOnly struct {
	io.ReadSeeker
}

func TestServeSeekerWithoutReaderAt(t *testing.T) {
	data := sampleContent(64)

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	req.Header.Set("Range", "bytes=8-15")
	rec := httptest.NewRecorder()

	require.NoError(t, stream.Serve(rec, req, seekOnly{bytes.NewReader(data)}, int64(len(data)), "image/png"))
	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, data[8:16], rec.Body.Bytes())
}

func TestServeShortSource(t *testing.T) {
	rec := httptest.NewRecorder()
	err := stream.Serve(rec, httptest.NewRequest(http.MethodGet, "/stream", nil),
		bytes.NewReader([]byte("short")), 100, "audio/mpeg")

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.False(t, errors.Is(err, stream.ErrClientGone))
}

type brokenConn struct {
	*httptest.ResponseRecorder
}

func (brokenConn) Write([]byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func TestServeClientGone(t *testing.T) {
	data := sampleContent(100)
	w := brokenConn{httptest.NewRecorder()}

	err := stream.Serve(w, httptest.NewRequest(http.MethodGet, "/stream", nil),
		bytes.NewReader(data), int64(len(data)), "audio/mpeg")

	assert.ErrorIs(t, err, stream.ErrClientGone)
	assert.Equal(t, http.StatusOK, w.Code)
}
