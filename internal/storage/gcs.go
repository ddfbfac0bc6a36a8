package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCS stores objects in a Google Cloud Storage bucket using application
// default credentials.
type GCS struct {
	client *gcs.Client
	bucket string
}

// NewGCS builds a GCS-backed store for the given bucket.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

func (s *GCS) Put(ctx context.Context, key string, r io.ReadSeeker, size int64, contentType string, meta map[string]string) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = meta
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize object %s: %w", key, err)
	}
	return nil
}

func (s *GCS) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(key, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign url for %s: %w", key, err)
	}
	return url, nil
}

func (s *GCS) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return ErrObjectNotExist
		}
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

func (s *GCS) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})

	var objects []ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects under %s: %w", prefix, err)
		}
		objects = append(objects, ObjectInfo{
			Key:         attrs.Name,
			Size:        attrs.Size,
			ContentType: attrs.ContentType,
			Created:     attrs.Created,
			Metadata:    attrs.Metadata,
		})
	}
	return objects, nil
}
