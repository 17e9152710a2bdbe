package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"vibestream/core/offline"

	"github.com/go-redis/redis/v8"
)

const (
	deviceLibraryKey = "vibestream:device:%s:library" // String: offline.Document JSON
	deviceIndexKey   = "vibestream:devices"           // Set: 已知设备 ID
)

// DeviceCache 设备曲库文档存储，实现 offline.MetadataAdapter
type DeviceCache struct {
	client *redis.Client
}

// NewDeviceCache 创建设备曲库存储
func NewDeviceCache(client *redis.Client) *DeviceCache {
	return &DeviceCache{client: client}
}

// Load 读取设备文档，不存在时返回 nil, nil
func (c *DeviceCache) Load(ctx context.Context, device string) (*offline.Document, error) {
	if c.client == nil {
		return nil, ErrRedisNotInitialized
	}

	data, err := c.client.Get(ctx, fmt.Sprintf(deviceLibraryKey, device)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device library: %w", err)
	}

	var doc offline.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device library: %w", err)
	}
	return &doc, nil
}

// Save 写入设备文档，设备文档不过期
func (c *DeviceCache) Save(ctx context.Context, device string, doc *offline.Document) error {
	if c.client == nil {
		return ErrRedisNotInitialized
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal device library: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(deviceLibraryKey, device), data, 0)
	pipe.SAdd(ctx, deviceIndexKey, device)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save device library: %w", err)
	}
	return nil
}

// Delete 删除设备文档
func (c *DeviceCache) Delete(ctx context.Context, device string) error {
	if c.client == nil {
		return ErrRedisNotInitialized
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, fmt.Sprintf(deviceLibraryKey, device))
	pipe.SRem(ctx, deviceIndexKey, device)
	_, err := pipe.Exec(ctx)
	return err
}

// Devices 返回所有已保存过文档的设备 ID
func (c *DeviceCache) Devices(ctx context.Context) ([]string, error) {
	if c.client == nil {
		return nil, ErrRedisNotInitialized
	}
	return c.client.SMembers(ctx, deviceIndexKey).Result()
}
