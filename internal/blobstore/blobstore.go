// Package blobstore persists asset bytes. Keys are slash-separated and live
// under two sub-locations: primary assets and derived thumbnails.
package blobstore

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

const (
	AssetPrefix     = "assets"
	ThumbnailPrefix = "thumbnails"
	thumbnailMarker = "thumb_"
)

// ErrObjectNotFound is returned by Open and Stat for keys with no bytes.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore is the contract for durable byte storage.
type BlobStore interface {
	// EnsureLocation creates the containing bucket or directories. Safe to
	// call on every startup.
	EnsureLocation(ctx context.Context) error
	// Write stores the full stream under key and returns the byte count.
	// size is a hint and may be -1. A failed write leaves nothing behind.
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (int64, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// AssetKey is the primary storage location for a storage name.
func AssetKey(storageName string) string {
	return path.Join(AssetPrefix, storageName)
}

// ThumbnailKey is the derived-asset location for a storage name. Thumbnails
// are always JPEG.
func ThumbnailKey(storageName string) string {
	base := strings.TrimSuffix(storageName, path.Ext(storageName))
	return path.Join(ThumbnailPrefix, thumbnailMarker+base+".jpg")
}
