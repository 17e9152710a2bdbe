package server

import (
	"errors"
	"net/http"
	"strings"

	"vibestream/core/offline"
	"vibestream/core/stream"
	"vibestream/logger"

	"github.com/gorilla/mux"
)

// deviceError maps offline library errors to responses.
func deviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, offline.ErrInvalidDevice):
		writeError(w, http.StatusBadRequest, "Invalid device id")
	case errors.Is(err, offline.ErrInvalidSong):
		writeError(w, http.StatusBadRequest, "Invalid song id")
	case errors.Is(err, offline.ErrNameRequired):
		writeError(w, http.StatusBadRequest, "Playlist name required")
	case errors.Is(err, offline.ErrSongNotFound):
		writeError(w, http.StatusNotFound, "Song not found")
	case errors.Is(err, offline.ErrPlaylistNotFound):
		writeError(w, http.StatusNotFound, "Playlist not found")
	case errors.Is(err, offline.ErrAudioNotFound):
		writeError(w, http.StatusNotFound, "Audio not found")
	default:
		serverError(w, r, "Device library operation failed", err)
	}
}

// GetDeviceLibraryHandler 返回设备的离线曲库文档
func (h *APIHandler) GetDeviceLibraryHandler(w http.ResponseWriter, r *http.Request) {
	doc, err := h.devices.Load(r.Context(), mux.Vars(r)["device"])
	if err != nil {
		deviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// PutDeviceLibraryHandler 整体替换设备的离线曲库文档
func (h *APIHandler) PutDeviceLibraryHandler(w http.ResponseWriter, r *http.Request) {
	var doc offline.Document
	if err := decodeJSON(w, r, maxDocumentBody, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid library document")
		return
	}
	saved, err := h.devices.Save(r.Context(), mux.Vars(r)["device"], &doc)
	if err != nil {
		deviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// DeleteDeviceHandler 删除设备的全部离线数据
func (h *APIHandler) DeleteDeviceHandler(w http.ResponseWriter, r *http.Request) {
	device := mux.Vars(r)["device"]
	if err := h.devices.DeleteDevice(r.Context(), device); err != nil {
		deviceError(w, r, err)
		return
	}
	logger.Info("设备离线数据已删除", logger.String("device", device))
	writeMessage(w, http.StatusOK, "Device library deleted")
}

// AddDeviceSongsHandler 向设备曲库添加歌曲 ({"songs": [...]})
func (h *APIHandler) AddDeviceSongsHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Songs []offline.Song `json:"songs"`
	}
	if err := decodeJSON(w, r, maxDocumentBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Songs) == 0 {
		writeError(w, http.StatusBadRequest, "No songs provided")
		return
	}
	doc, err := h.devices.AddSongs(r.Context(), mux.Vars(r)["device"], req.Songs)
	if err != nil {
		deviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// RemoveDeviceSongHandler 删除设备曲库中的歌曲及其音频
func (h *APIHandler) RemoveDeviceSongHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doc, err := h.devices.RemoveSong(r.Context(), vars["device"], vars["songId"])
	if err != nil {
		deviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ToggleDeviceFavoriteHandler 切换歌曲的收藏状态
func (h *APIHandler) ToggleDeviceFavoriteHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	favorite, err := h.devices.ToggleFavorite(r.Context(), vars["device"], vars["songId"])
	if err != nil {
		deviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":         vars["songId"],
		"isFavorite": favorite,
	})
}

// PutDeviceAudioHandler 上传歌曲音频，支持原始请求体或 multipart 字段 "file"
func (h *APIHandler) PutDeviceAudioHandler(w http.ResponseWriter, r *http.Request) {
	release, ok := h.acquireUpload(w)
	if !ok {
		return
	}
	defer release()

	vars := mux.Vars(r)
	body, size, mimeType := r.Body, r.ContentLength, r.Header.Get("Content-Type")

	if strings.HasPrefix(mimeType, "multipart/") {
		if !h.parseUploadForm(w, r) {
			return
		}
		defer r.MultipartForm.RemoveAll()
		files := r.MultipartForm.File["file"]
		if len(files) == 0 {
			writeError(w, http.StatusBadRequest, "No file uploaded")
			return
		}
		f, err := files[0].Open()
		if err != nil {
			serverError(w, r, "Failed to read upload", err)
			return
		}
		defer f.Close()
		body, size, mimeType = f, files[0].Size, files[0].Header.Get("Content-Type")
	} else {
		limit := h.cfg.MaxUploadBytes()
		if size > limit {
			writeError(w, http.StatusRequestEntityTooLarge, "Request too large")
			return
		}
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	if !strings.HasPrefix(mimeType, "audio/") {
		mimeType = ""
	}

	song, err := h.devices.PutAudio(r.Context(), vars["device"], vars["songId"], body, size, mimeType)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request too large")
			return
		}
		deviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, song)
}

// StreamDeviceAudioHandler 以 Range 方式播放设备曲库中的音频 (GET/HEAD)
func (h *APIHandler) StreamDeviceAudioHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	blob, mimeType, err := h.devices.OpenAudio(r.Context(), vars["device"], vars["songId"])
	if err != nil {
		deviceError(w, r, err)
		return
	}
	defer blob.Close()

	hw := &headerWatcher{ResponseWriter: w}
	if err := stream.Serve(hw, r, blob, blob.Info.Size, mimeType); err != nil {
		streamError(hw, r, vars["songId"], err)
	}
}

// CreateDevicePlaylistHandler 创建离线歌单 ({"name": "...", "songIds": [...]})
func (h *APIHandler) CreateDevicePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string   `json:"name"`
		SongIDs []string `json:"songIds"`
	}
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, err := h.devices.CreatePlaylist(r.Context(), mux.Vars(r)["device"], req.Name, req.SongIDs)
	if err != nil {
		deviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// DeleteDevicePlaylistHandler 删除离线歌单
func (h *APIHandler) DeleteDevicePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := h.devices.DeletePlaylist(r.Context(), vars["device"], vars["playlistId"]); err != nil {
		deviceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Playlist deleted successfully")
}

// GetDevicePlaylistSongsHandler 返回离线歌单中的歌曲
func (h *APIHandler) GetDevicePlaylistSongsHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	doc, err := h.devices.Load(r.Context(), vars["device"])
	if err != nil {
		deviceError(w, r, err)
		return
	}
	if _, ok := doc.Playlist(vars["playlistId"]); !ok {
		writeError(w, http.StatusNotFound, "Playlist not found")
		return
	}
	writeJSON(w, http.StatusOK, doc.PlaylistSongs(vars["playlistId"]))
}

// AddDevicePlaylistSongHandler 向离线歌单添加歌曲 ({"songId": "..."})
func (h *APIHandler) AddDevicePlaylistSongHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SongID string `json:"songId"`
	}
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SongID == "" {
		writeError(w, http.StatusBadRequest, "Song ID required")
		return
	}
	vars := mux.Vars(r)
	p, err := h.devices.AddSongToPlaylist(r.Context(), vars["device"], vars["playlistId"], req.SongID)
	if err != nil {
		deviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// RemoveDevicePlaylistSongHandler 从离线歌单移除歌曲
func (h *APIHandler) RemoveDevicePlaylistSongHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	p, err := h.devices.RemoveSongFromPlaylist(r.Context(), vars["device"], vars["playlistId"], vars["songId"])
	if err != nil {
		deviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
