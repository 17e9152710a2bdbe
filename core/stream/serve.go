// Package stream serves byte content over HTTP with single-range request support.
package stream

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"

	"vibestream/logger"
)

// DefaultContentType is sent when the caller has no content type for the resource.
const DefaultContentType = "audio/mpeg"

const copyBufferSize = 32 * 1024

// Serve writes content to w, honouring the request's Range header.
//
// Ranged requests get 206 with Content-Range, full requests get 200 and unsatisfiable
// ranges get 416 with "bytes */size". Bytes are copied incrementally from the
// requested span only. Once headers are written, a failed write to the client is
// reported as ErrClientGone; read failures are returned as they are.
func Serve(w http.ResponseWriter, r *http.Request, content io.ReadSeeker, size int64, contentType string) error {
	if contentType == "" {
		contentType = DefaultContentType
	}

	rng, err := ParseRange(r.Header.Get("Range"), size)
	if errors.Is(err, ErrRangeNotSatisfiable) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		logger.Debug("range not satisfiable",
			logger.String("range", r.Header.Get("Range")),
			logger.Int64("size", size))
		return nil
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType)

	start, length, status := int64(0), size, http.StatusOK
	if rng != nil {
		start, length, status = rng.Start, rng.Length(), http.StatusPartialContent
		h.Set("Content-Range", rng.ContentRange(size))
	}
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if r.Method == http.MethodHead || length == 0 {
		return nil
	}

	src, err := section(content, start, length)
	if err != nil {
		return err
	}
	n, err := io.CopyBuffer(clientWriter{w}, src, make([]byte, copyBufferSize))
	if err != nil {
		return err
	}
	if n < length {
		return fmt.Errorf("short read: sent %d of %d bytes: %w", n, length, io.ErrUnexpectedEOF)
	}
	return nil
}

// ServeFile opens path and serves it with Serve. The file is closed when the response
// is finished or aborted. A missing file yields ErrFileNotFound before anything is
// written to w.
func ServeFile(w http.ResponseWriter, r *http.Request, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrFileNotFound, path)
	}
	return Serve(w, r, f, info.Size(), contentType)
}

func section(content io.ReadSeeker, start, length int64) (io.Reader, error) {
	if ra, ok := content.(io.ReaderAt); ok {
		return io.NewSectionReader(ra, start, length), nil
	}
	if _, err := content.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to %d: %w", start, err)
	}
	return io.LimitReader(content, length), nil
}

// clientWriter tags write failures so callers can tell a vanished client from a
// failing source.
type clientWriter struct {
	w io.Writer
}

func (cw clientWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrClientGone, err)
	}
	return n, nil
}
