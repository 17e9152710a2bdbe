package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vibestream/core/player"

	"github.com/go-redis/redis/v8"
)

const (
	playerStateKey = "vibestream:player:%s" // String: State JSON
	playerStateTTL = 7 * 24 * time.Hour
)

// ErrRedisNotInitialized Redis 客户端未初始化
var ErrRedisNotInitialized = errors.New("Redis client not initialized")

// PlayerCache 播放会话快照缓存，实现 player.SnapshotStore
type PlayerCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPlayerCache 创建播放会话缓存
func NewPlayerCache(client *redis.Client) *PlayerCache {
	return &PlayerCache{client: client, ttl: playerStateTTL}
}

// Load 读取会话快照，不存在时返回 nil, nil
func (c *PlayerCache) Load(ctx context.Context, sessionID string) (*player.State, error) {
	if c.client == nil {
		return nil, ErrRedisNotInitialized
	}

	data, err := c.client.Get(ctx, fmt.Sprintf(playerStateKey, sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player state: %w", err)
	}

	var st player.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal player state: %w", err)
	}
	return &st, nil
}

// Save 写入会话快照并刷新过期时间
func (c *PlayerCache) Save(ctx context.Context, sessionID string, st player.State) error {
	if c.client == nil {
		return ErrRedisNotInitialized
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal player state: %w", err)
	}
	if err := c.client.Set(ctx, fmt.Sprintf(playerStateKey, sessionID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save player state: %w", err)
	}
	return nil
}

// Delete 删除会话快照
func (c *PlayerCache) Delete(ctx context.Context, sessionID string) error {
	if c.client == nil {
		return ErrRedisNotInitialized
	}
	return c.client.Del(ctx, fmt.Sprintf(playerStateKey, sessionID)).Err()
}
