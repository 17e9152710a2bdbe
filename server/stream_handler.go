package server

import (
	"errors"
	"net/http"
	"strconv"

	"vibestream/core/stream"
	"vibestream/logger"
	"vibestream/repository"

	"github.com/gorilla/mux"
)

// headerWatcher remembers whether the response status has gone out.
type headerWatcher struct {
	http.ResponseWriter
	wrote bool
}

func (hw *headerWatcher) WriteHeader(status int) {
	hw.wrote = true
	hw.ResponseWriter.WriteHeader(status)
}

func (hw *headerWatcher) Write(p []byte) (int, error) {
	hw.wrote = true
	return hw.ResponseWriter.Write(p)
}

// streamError reports a failure from stream.Serve*. Before headers are sent the
// client still gets a JSON error; afterwards the failure can only be logged.
func streamError(w *headerWatcher, r *http.Request, id string, err error) {
	switch {
	case !w.wrote && errors.Is(err, stream.ErrFileNotFound):
		logger.Warn("音频文件不存在", logger.String("id", id), logger.ErrorField(err))
		writeError(w, http.StatusNotFound, "File not found on disk")
	case !w.wrote:
		serverError(w, r, "Failed to stream track", err)
	case errors.Is(err, stream.ErrClientGone):
		logger.Debug("客户端中断播放", logger.String("id", id), logger.ErrorField(err))
	default:
		logger.Error("音频流传输中断",
			logger.String("id", id),
			logger.String("range", r.Header.Get("Range")),
			logger.ErrorField(err))
	}
}

// StreamHandler 以 Range 方式播放曲库中的歌曲 (GET/HEAD)
func (h *APIHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	track, err := h.tracks.GetTrackByID(r.Context(), id)
	if err != nil {
		serverError(w, r, "Failed to get track", err)
		return
	}
	if track == nil {
		writeError(w, http.StatusNotFound, "Track not found")
		return
	}

	hw := &headerWatcher{ResponseWriter: w}
	if err := stream.ServeFile(hw, r, track.FilePath, track.MimeType); err != nil {
		streamError(hw, r, id, err)
	}
}

// CoverHandler 返回歌曲内嵌的封面图片
func (h *APIHandler) CoverHandler(w http.ResponseWriter, r *http.Request) {
	data, mimeType, err := h.tracks.GetCover(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, repository.ErrTrackNotFound) {
		writeError(w, http.StatusNotFound, "Track not found")
		return
	}
	if err != nil {
		serverError(w, r, "Failed to load cover art", err)
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusNotFound, "Cover art not found")
		return
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(data); err != nil {
		logger.Debug("写出封面失败", logger.ErrorField(err))
	}
}
