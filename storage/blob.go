// Package storage stores binary objects (offline audio blobs) either in a local
// directory or in a MinIO bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"vibestream/config"
)

// ErrBlobNotFound 对象不存在
var ErrBlobNotFound = errors.New("blob not found")

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string // empty when the backend does not record it
	LastModified time.Time
}

// BucketStats 存储统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// Blob is an opened object. The content supports seeking so it can be served
// with range requests.
type Blob struct {
	io.ReadSeekCloser
	Info ObjectInfo
}

// BlobStore is the storage abstraction behind the offline library's audio.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Open returns ErrBlobNotFound when key does not exist.
	Open(ctx context.Context, key string) (*Blob, error)
	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// NewBlobStore creates the backend selected by BLOB_BACKEND.
func NewBlobStore(ctx context.Context, cfg *config.Config) (BlobStore, error) {
	switch cfg.BlobBackend {
	case "minio":
		return NewMinioStore(ctx, cfg)
	case "local", "":
		return NewLocalStore(cfg.BlobDir)
	default:
		return nil, fmt.Errorf("unsupported BLOB_BACKEND %q", cfg.BlobBackend)
	}
}

// Stats sums the objects under prefix.
func Stats(ctx context.Context, store BlobStore, prefix string) (*BucketStats, error) {
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	stats := &BucketStats{}
	for _, obj := range objects {
		stats.TotalObjects++
		stats.TotalSize += obj.Size
		if obj.LastModified.After(stats.LastModified) {
			stats.LastModified = obj.LastModified
		}
	}
	return stats, nil
}

// DeletePrefix removes every object under prefix and returns how many were removed.
func DeletePrefix(ctx context.Context, store BlobStore, prefix string) (int, error) {
	if prefix == "" {
		return 0, errors.New("refusing to delete with an empty prefix")
	}
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for i, obj := range objects {
		if err := store.Delete(ctx, obj.Key); err != nil {
			return i, fmt.Errorf("failed to delete %s: %w", obj.Key, err)
		}
	}
	return len(objects), nil
}
