package server

import (
	"errors"
	"fmt"
	"io/fs"
	"mime/multipart"
	"net/http"
	"strings"

	"vibestream/core/catalog"
	"vibestream/core/scanner"
	"vibestream/logger"
	"vibestream/model"
	"vibestream/repository"

	"github.com/gorilla/mux"
)

// multipartMemory is how much of a multipart form is kept in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// GetTracksHandler 返回曲库中的全部歌曲
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.tracks.ListTracks(r.Context())
	if err != nil {
		serverError(w, r, "Failed to list tracks", err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// GetTrackHandler 返回单首歌曲
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	track, err := h.tracks.GetTrackByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		serverError(w, r, "Failed to get track", err)
		return
	}
	if track == nil {
		writeError(w, http.StatusNotFound, "Track not found")
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// parseUploadForm parses a multipart body bounded by the configured upload size.
func (h *APIHandler) parseUploadForm(w http.ResponseWriter, r *http.Request) bool {
	limit := h.cfg.MaxUploadBytes()
	if r.ContentLength > limit {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request too large. Maximum size is %d MB", limit>>20))
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request too large. Maximum size is %d MB", limit>>20))
			return false
		}
		logger.Warn("解析上传表单失败", logger.ErrorField(err), logger.String("remoteAddr", r.RemoteAddr))
		writeError(w, http.StatusBadRequest, "Failed to parse upload form")
		return false
	}
	return true
}

func (h *APIHandler) importPart(r *http.Request, fh *multipart.FileHeader) (*model.Track, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	return h.importer.ImportUpload(r.Context(), f, fh.Filename, fh.Header.Get("Content-Type"))
}

// UploadTrackHandler 上传单个音频文件 (multipart 字段 "file")
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	release, ok := h.acquireUpload(w)
	if !ok {
		return
	}
	defer release()

	if !h.parseUploadForm(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}

	track, err := h.importPart(r, files[0])
	if errors.Is(err, catalog.ErrUnsupportedFormat) {
		writeError(w, http.StatusUnsupportedMediaType, "Unsupported audio format")
		return
	}
	if err != nil {
		serverError(w, r, "Failed to import track", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":      track.ID,
		"message": "Track added successfully",
		"track":   track,
	})
}

type bulkError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

type bulkUploadResponse struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Imported int            `json:"imported"`
	Total    int            `json:"total"`
	Tracks   []*model.Track `json:"tracks"`
	Errors   []bulkError    `json:"errors,omitempty"`
}

// UploadTracksHandler 批量上传 (multipart 字段 "files")，单个文件失败不影响其它文件
func (h *APIHandler) UploadTracksHandler(w http.ResponseWriter, r *http.Request) {
	release, ok := h.acquireUpload(w)
	if !ok {
		return
	}
	defer release()

	if !h.parseUploadForm(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "No files uploaded")
		return
	}

	resp := bulkUploadResponse{Success: true, Total: len(files), Tracks: []*model.Track{}}
	for _, fh := range files {
		track, err := h.importPart(r, fh)
		if err != nil {
			logger.Warn("批量上传文件失败", logger.String("file", fh.Filename), logger.ErrorField(err))
			resp.Errors = append(resp.Errors, bulkError{File: fh.Filename, Error: err.Error()})
			continue
		}
		resp.Tracks = append(resp.Tracks, track)
	}
	resp.Imported = len(resp.Tracks)
	plural := "s"
	if resp.Imported == 1 {
		plural = ""
	}
	resp.Message = fmt.Sprintf("Successfully imported %d track%s", resp.Imported, plural)

	logger.Info("批量上传完成",
		logger.Int("imported", resp.Imported),
		logger.Int("total", resp.Total))
	writeJSON(w, http.StatusCreated, resp)
}

// DeleteTrackHandler 删除歌曲及其上传文件
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	err := h.importer.DeleteTrack(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, repository.ErrTrackNotFound) {
		writeError(w, http.StatusNotFound, "Track not found")
		return
	}
	if err != nil {
		serverError(w, r, "Failed to delete track", err)
		return
	}
	writeMessage(w, http.StatusOK, "Track deleted successfully")
}

// ScanHandler 扫描服务器上的目录并就地导入音频文件
func (h *APIHandler) ScanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Directory string `json:"directory"`
	}
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	dir := strings.TrimSpace(req.Directory)
	if dir == "" {
		writeError(w, http.StatusBadRequest, "Directory path required")
		return
	}

	result, err := h.scanner.Scan(r.Context(), dir)
	switch {
	case errors.Is(err, scanner.ErrNotDirectory), errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusBadRequest, "Directory not found")
	case err != nil:
		serverError(w, r, "Failed to scan directory", err)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}
