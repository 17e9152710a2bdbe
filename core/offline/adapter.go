package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"vibestream/storage"
)

// MetadataAdapter stores the JSON document of a device.
type MetadataAdapter interface {
	// Load returns nil, nil when the device has no document yet.
	Load(ctx context.Context, device string) (*Document, error)
	Save(ctx context.Context, device string, doc *Document) error
	Delete(ctx context.Context, device string) error
}

// BlobAdapter stores the audio bytes of device songs.
type BlobAdapter interface {
	Put(ctx context.Context, device, songID string, r io.Reader, size int64, mimeType string) error
	// Open returns storage.ErrBlobNotFound when the song has no audio.
	Open(ctx context.Context, device, songID string) (*storage.Blob, error)
	Delete(ctx context.Context, device, songID string) error
	// DeleteAll removes every blob of the device.
	DeleteAll(ctx context.Context, device string) error
}

func devicePrefix(device string) string {
	return "devices/" + device + "/"
}

func audioKey(device, songID string) string {
	return devicePrefix(device) + "audio/" + songID
}

func documentKey(device string) string {
	return devicePrefix(device) + "library.json"
}

// storeBlobs keeps audio under devices/<device>/audio/<song> in a BlobStore.
type storeBlobs struct {
	store storage.BlobStore
}

// NewBlobAdapter stores device audio in store.
func NewBlobAdapter(store storage.BlobStore) BlobAdapter {
	return &storeBlobs{store: store}
}

func (b *storeBlobs) Put(ctx context.Context, device, songID string, r io.Reader, size int64, mimeType string) error {
	if err := checkSong(songID); err != nil {
		return err
	}
	return b.store.Put(ctx, audioKey(device, songID), r, size, mimeType)
}

func (b *storeBlobs) Open(ctx context.Context, device, songID string) (*storage.Blob, error) {
	if err := checkSong(songID); err != nil {
		return nil, err
	}
	return b.store.Open(ctx, audioKey(device, songID))
}

func (b *storeBlobs) Delete(ctx context.Context, device, songID string) error {
	if err := checkSong(songID); err != nil {
		return err
	}
	return b.store.Delete(ctx, audioKey(device, songID))
}

func (b *storeBlobs) DeleteAll(ctx context.Context, device string) error {
	_, err := storage.DeletePrefix(ctx, b.store, devicePrefix(device)+"audio/")
	return err
}

// storeMetadata keeps the document as devices/<device>/library.json in a BlobStore.
// It is the metadata adapter used when Redis is not configured.
type storeMetadata struct {
	store storage.BlobStore
}

// NewBlobMetadata stores device documents in store.
func NewBlobMetadata(store storage.BlobStore) MetadataAdapter {
	return &storeMetadata{store: store}
}

func (m *storeMetadata) Load(ctx context.Context, device string) (*Document, error) {
	blob, err := m.store.Open(ctx, documentKey(device))
	if errors.Is(err, storage.ErrBlobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	var doc Document
	if err := json.NewDecoder(blob).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode library document: %w", err)
	}
	return &doc, nil
}

func (m *storeMetadata) Save(ctx context.Context, device string, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode library document: %w", err)
	}
	return m.store.Put(ctx, documentKey(device), bytes.NewReader(data), int64(len(data)), "application/json")
}

func (m *storeMetadata) Delete(ctx context.Context, device string) error {
	return m.store.Delete(ctx, documentKey(device))
}
