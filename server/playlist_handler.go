package server

import (
	"errors"
	"net/http"

	"vibestream/repository"

	"github.com/gorilla/mux"
)

type playlistRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// playlistError maps repository errors to HTTP responses. It reports whether err
// was handled.
func playlistError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, repository.ErrPlaylistNotFound):
		writeError(w, http.StatusNotFound, "Playlist not found")
	case errors.Is(err, repository.ErrTrackNotFound):
		writeError(w, http.StatusNotFound, "Track not found")
	case errors.Is(err, repository.ErrNotInPlaylist):
		writeError(w, http.StatusNotFound, "Track not found in playlist")
	case errors.Is(err, repository.ErrNameRequired):
		writeError(w, http.StatusBadRequest, "Playlist name required")
	case errors.Is(err, repository.ErrInvalidOrder):
		writeError(w, http.StatusBadRequest, "Track order must list every track of the playlist exactly once")
	default:
		return false
	}
	return true
}

// GetPlaylistsHandler 返回全部歌单（含歌曲数量）
func (h *APIHandler) GetPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.playlists.ListPlaylists(r.Context())
	if err != nil {
		serverError(w, r, "Failed to list playlists", err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

// GetPlaylistHandler 返回单个歌单
func (h *APIHandler) GetPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	playlist, err := h.playlists.GetPlaylist(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		serverError(w, r, "Failed to get playlist", err)
		return
	}
	if playlist == nil {
		writeError(w, http.StatusNotFound, "Playlist not found")
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

// CreatePlaylistHandler 创建歌单
func (h *APIHandler) CreatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	name := ""
	if req.Name != nil {
		name = *req.Name
	}

	playlist, err := h.playlists.CreatePlaylist(r.Context(), name, req.Description)
	if err != nil {
		if !playlistError(w, err) {
			serverError(w, r, "Failed to create playlist", err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, playlist)
}

// UpdatePlaylistHandler 更新歌单名称或描述，未提供的字段保持不变
func (h *APIHandler) UpdatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	playlist, err := h.playlists.UpdatePlaylist(r.Context(), mux.Vars(r)["id"], req.Name, req.Description)
	if err != nil {
		if !playlistError(w, err) {
			serverError(w, r, "Failed to update playlist", err)
		}
		return
	}
	if playlist == nil {
		writeError(w, http.StatusNotFound, "Playlist not found")
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

// DeletePlaylistHandler 删除歌单
func (h *APIHandler) DeletePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.playlists.DeletePlaylist(r.Context(), mux.Vars(r)["id"]); err != nil {
		if !playlistError(w, err) {
			serverError(w, r, "Failed to delete playlist", err)
		}
		return
	}
	writeMessage(w, http.StatusOK, "Playlist deleted successfully")
}

// GetPlaylistTracksHandler 按位置返回歌单中的歌曲
func (h *APIHandler) GetPlaylistTracksHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := h.playlists.ListPlaylistTracks(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if !playlistError(w, err) {
			serverError(w, r, "Failed to list playlist tracks", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// AddTrackToPlaylistHandler 向歌单追加歌曲
func (h *APIHandler) AddTrackToPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackID string `json:"trackId"`
	}
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TrackID == "" {
		writeError(w, http.StatusBadRequest, "Track ID required")
		return
	}

	position, err := h.playlists.AddTrack(r.Context(), mux.Vars(r)["id"], req.TrackID)
	if err != nil {
		if !playlistError(w, err) {
			serverError(w, r, "Failed to add track to playlist", err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Track added to playlist",
		"position": position,
	})
}

// RemoveTrackFromPlaylistHandler 从歌单移除歌曲，剩余歌曲位置重新编号
func (h *APIHandler) RemoveTrackFromPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.playlists.RemoveTrack(r.Context(), vars["id"], vars["trackId"]); err != nil {
		if !playlistError(w, err) {
			serverError(w, r, "Failed to remove track from playlist", err)
		}
		return
	}
	writeMessage(w, http.StatusOK, "Track removed from playlist")
}

// ReorderPlaylistHandler 按给定的歌曲 ID 顺序重排歌单
func (h *APIHandler) ReorderPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackIDs []string `json:"trackIds"`
	}
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.playlists.ReorderTracks(r.Context(), id, req.TrackIDs); err != nil {
		if !playlistError(w, err) {
			serverError(w, r, "Failed to reorder playlist", err)
		}
		return
	}
	entries, err := h.playlists.ListPlaylistTracks(r.Context(), id)
	if err != nil {
		serverError(w, r, "Failed to list playlist tracks", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
