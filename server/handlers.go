package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"vibestream/config"
	"vibestream/core/catalog"
	"vibestream/core/offline"
	"vibestream/core/player"
	"vibestream/core/scanner"
	"vibestream/logger"
	"vibestream/repository"
)

// maxJSONBody caps the size of JSON request bodies.
const maxJSONBody = 1 << 20

// maxDocumentBody caps a whole device document, which may carry data-URL covers.
const maxDocumentBody = 64 << 20

// APIHandler 处理所有API请求
type APIHandler struct {
	cfg       *config.Config
	tracks    repository.TrackRepository
	playlists repository.PlaylistRepository
	importer  *catalog.Importer
	scanner   *scanner.Scanner
	players   *player.Manager
	devices   *offline.Repository

	// uploadSemaphore 控制并发上传
	uploadSemaphore chan struct{}
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	cfg *config.Config,
	tracks repository.TrackRepository,
	playlists repository.PlaylistRepository,
	importer *catalog.Importer,
	scan *scanner.Scanner,
	players *player.Manager,
	devices *offline.Repository,
) *APIHandler {
	limit := cfg.MaxConcurrentUploads
	if limit < 1 {
		limit = 1
	}
	return &APIHandler{
		cfg:             cfg,
		tracks:          tracks,
		playlists:       playlists,
		importer:        importer,
		scanner:         scan,
		players:         players,
		devices:         devices,
		uploadSemaphore: make(chan struct{}, limit),
	}
}

// writeJSON 以 JSON 格式写出响应
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写出 JSON 响应失败", logger.ErrorField(err))
	}
}

// writeError 写出 {"error": "..."} 错误响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeMessage 写出 {"message": "..."} 响应
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// serverError logs err and answers with a generic 500.
func serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logger.Error(msg,
		logger.String("method", r.Method),
		logger.String("path", r.URL.Path),
		logger.ErrorField(err))
	writeError(w, http.StatusInternalServerError, msg)
}

var errEmptyBody = errors.New("request body is empty")

// decodeJSON reads a JSON body of at most limit bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

// acquireUpload takes an upload slot without waiting. The returned release func
// must be called when the upload is done.
func (h *APIHandler) acquireUpload(w http.ResponseWriter) (release func(), ok bool) {
	select {
	case h.uploadSemaphore <- struct{}{}:
		return func() { <-h.uploadSemaphore }, true
	default:
		logger.Warn("服务器繁忙，拒绝新的上传请求")
		writeError(w, http.StatusServiceUnavailable, "Server is busy, please try again later")
		return nil, false
	}
}

// HealthHandler 健康检查
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Music server running",
	})
}
