package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotExist is returned when an operation targets a key that has no
// object behind it.
var ErrObjectNotExist = errors.New("storage: object does not exist")

// ObjectInfo describes one stored object in a listing.
type ObjectInfo struct {
	Key         string            `json:"name"`
	Size        int64             `json:"size_bytes"`
	ContentType string            `json:"content_type,omitempty"`
	Created     time.Time         `json:"created,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	SignedURL   string            `json:"signed_url,omitempty"`
}

// BlobStore is the object-storage contract the worker runs against. The
// concrete backend is picked at startup from configuration; nothing above
// this interface sees provider types.
type BlobStore interface {
	// Put writes the object at key, replacing any previous content.
	Put(ctx context.Context, key string, r io.ReadSeeker, size int64, contentType string, meta map[string]string) error
	// SignedURL returns a read URL for key that expires after ttl.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Delete removes the object at key, returning ErrObjectNotExist when
	// there is nothing there.
	Delete(ctx context.Context, key string) error
	// List returns the objects under prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
