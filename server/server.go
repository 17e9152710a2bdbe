package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vibestream/cache"
	"vibestream/config"
	"vibestream/core/catalog"
	"vibestream/core/offline"
	"vibestream/core/player"
	"vibestream/core/scanner"
	"vibestream/db"
	"vibestream/logger"
	"vibestream/repository"
	"vibestream/storage"

	"github.com/gorilla/mux"
)

// corsMiddleware 允许跨域访问并暴露 Range 相关的响应头
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger 记录每个请求的耗时
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("HTTP请求",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.String("remoteAddr", r.RemoteAddr),
			logger.Duration("elapsed", time.Since(start)))
	})
}

// NewRouter registers every API route on a new router.
func NewRouter(h *APIHandler) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.Use(requestLogger)

	api := router.PathPrefix("/api").Subrouter()
	// mux 只对匹配到的路由执行中间件，预检请求需要一个兜底路由
	api.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	api.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)

	// 曲库
	api.HandleFunc("/library/tracks", h.GetTracksHandler).Methods(http.MethodGet)
	api.HandleFunc("/library/tracks/{id}", h.GetTrackHandler).Methods(http.MethodGet)
	api.HandleFunc("/library/tracks/{id}", h.DeleteTrackHandler).Methods(http.MethodDelete)
	api.HandleFunc("/library/upload", h.UploadTrackHandler).Methods(http.MethodPost)
	api.HandleFunc("/library/upload-bulk", h.UploadTracksHandler).Methods(http.MethodPost)
	api.HandleFunc("/library/scan", h.ScanHandler).Methods(http.MethodPost)

	// 播放
	api.HandleFunc("/stream/{id}", h.StreamHandler).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/stream/{id}/cover", h.CoverHandler).Methods(http.MethodGet, http.MethodHead)

	// 歌单
	api.HandleFunc("/playlists", h.GetPlaylistsHandler).Methods(http.MethodGet)
	api.HandleFunc("/playlists", h.CreatePlaylistHandler).Methods(http.MethodPost)
	api.HandleFunc("/playlists/{id}", h.GetPlaylistHandler).Methods(http.MethodGet)
	api.HandleFunc("/playlists/{id}", h.UpdatePlaylistHandler).Methods(http.MethodPut)
	api.HandleFunc("/playlists/{id}", h.DeletePlaylistHandler).Methods(http.MethodDelete)
	api.HandleFunc("/playlists/{id}/tracks", h.GetPlaylistTracksHandler).Methods(http.MethodGet)
	api.HandleFunc("/playlists/{id}/tracks", h.AddTrackToPlaylistHandler).Methods(http.MethodPost)
	api.HandleFunc("/playlists/{id}/tracks/order", h.ReorderPlaylistHandler).Methods(http.MethodPut)
	api.HandleFunc("/playlists/{id}/tracks/{trackId}", h.RemoveTrackFromPlaylistHandler).Methods(http.MethodDelete)

	// 播放会话
	api.HandleFunc("/player/{session}", h.GetPlayerStateHandler).Methods(http.MethodGet)
	api.HandleFunc("/player/{session}/commands", h.PlayerCommandHandler).Methods(http.MethodPost)
	api.HandleFunc("/player/{session}/ws", h.PlayerSocketHandler).Methods(http.MethodGet)

	// 设备离线曲库
	dev := api.PathPrefix("/devices/{device}").Subrouter()
	dev.HandleFunc("", h.GetDeviceLibraryHandler).Methods(http.MethodGet)
	dev.HandleFunc("", h.PutDeviceLibraryHandler).Methods(http.MethodPut)
	dev.HandleFunc("", h.DeleteDeviceHandler).Methods(http.MethodDelete)
	dev.HandleFunc("/songs", h.AddDeviceSongsHandler).Methods(http.MethodPost)
	dev.HandleFunc("/songs/{songId}", h.RemoveDeviceSongHandler).Methods(http.MethodDelete)
	dev.HandleFunc("/songs/{songId}/favorite", h.ToggleDeviceFavoriteHandler).Methods(http.MethodPost)
	dev.HandleFunc("/songs/{songId}/audio", h.PutDeviceAudioHandler).Methods(http.MethodPut, http.MethodPost)
	dev.HandleFunc("/songs/{songId}/audio", h.StreamDeviceAudioHandler).Methods(http.MethodGet, http.MethodHead)
	dev.HandleFunc("/playlists", h.CreateDevicePlaylistHandler).Methods(http.MethodPost)
	dev.HandleFunc("/playlists/{playlistId}", h.DeleteDevicePlaylistHandler).Methods(http.MethodDelete)
	dev.HandleFunc("/playlists/{playlistId}/songs", h.GetDevicePlaylistSongsHandler).Methods(http.MethodGet)
	dev.HandleFunc("/playlists/{playlistId}/songs", h.AddDevicePlaylistSongHandler).Methods(http.MethodPost)
	dev.HandleFunc("/playlists/{playlistId}/songs/{songId}", h.RemoveDevicePlaylistSongHandler).Methods(http.MethodDelete)

	return router
}

// Start wires the application together and serves HTTP until SIGINT or SIGTERM.
func Start(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.ConnectGormDB(cfg); err != nil {
		return err
	}
	defer db.CloseGormDB()

	var playerStore player.SnapshotStore
	var deviceMeta offline.MetadataAdapter
	if cfg.RedisEnabled {
		if err := db.ConnectRedis(cfg); err != nil {
			return err
		}
		defer db.CloseRedis()
		logger.Info("Redis连接成功", logger.String("addr", cfg.RedisHost+":"+cfg.RedisPort))
		playerStore = cache.NewPlayerCache(db.RedisClient)
		deviceMeta = cache.NewDeviceCache(db.RedisClient)
	}

	blobs, err := storage.NewBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize blob storage: %w", err)
	}
	if deviceMeta == nil {
		logger.Info("Redis 未启用，设备曲库文档保存在对象存储中")
		deviceMeta = offline.NewBlobMetadata(blobs)
	}

	tracks := repository.NewGormTrackRepository(db.GormDB)
	playlists := repository.NewGormPlaylistRepository(db.GormDB)
	importer := catalog.NewImporter(tracks, cfg.AudioUploadDir)

	if cfg.WatchDir != "" {
		watcher, err := scanner.NewWatcher(cfg.WatchDir, importer, scanner.DefaultDebounce)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Close()
		logger.Info("开始监听音乐目录", logger.String("dir", cfg.WatchDir))
	}

	handler := NewAPIHandler(cfg, tracks, playlists, importer,
		scanner.New(importer),
		player.NewManager(playerStore),
		offline.NewRepository(deviceMeta, offline.NewBlobAdapter(blobs)))

	// 流式响应可能持续很久，不设置 WriteTimeout
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务器启动",
			logger.String("addr", srv.Addr),
			logger.String("db", cfg.DBDriver),
			logger.String("blob", cfg.BlobBackend),
			logger.Bool("redis", cfg.RedisEnabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("服务器已停止")
	return nil
}
