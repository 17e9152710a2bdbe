package repository

import "errors"

var (
	ErrTrackNotFound    = errors.New("track not found")
	ErrPlaylistNotFound = errors.New("playlist not found")
	ErrNotInPlaylist    = errors.New("track not in playlist")
	ErrNameRequired     = errors.New("playlist name is required")
	// ErrInvalidOrder 排序请求的歌曲与播放列表当前成员不一致
	ErrInvalidOrder = errors.New("track order must list every playlist member exactly once")
)
