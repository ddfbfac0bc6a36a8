package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/Afaqak/asr-worker/internal/domain"
)

// ObjectKeyNamespace is the bucket prefix every staged object lives under.
const ObjectKeyNamespace = "asr"

// StageError wraps a storage failure with the operation and object key it
// happened on.
type StageError struct {
	Op  string
	Key string
	Err error
}

func (e *StageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s failed for %s: %v", e.Op, e.Key, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".opus": "audio/opus",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".aac":  "audio/aac",
}

func contentTypeForExt(ext string) string {
	if ct, ok := contentTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ObjectKey builds the storage key for one staged file. The random token
// keeps concurrent or retried runs for the same item from colliding, and
// the item segment groups a video's uploads for operational lookup.
func ObjectKey(itemID, ext string) string {
	return fmt.Sprintf("%s/%s/%s%s", ObjectKeyNamespace, domain.SanitizeItemID(itemID), uuid.NewString(), ext)
}

// Stager runs the staging half of the pipeline on top of a BlobStore:
// upload a local file under a fresh key, hand back a signed read URL, and
// remove the object again if the run has to be compensated.
type Stager struct {
	store  BlobStore
	bucket string
	ttl    time.Duration
}

func NewStager(store BlobStore, bucket string, ttl time.Duration) *Stager {
	return &Stager{store: store, bucket: bucket, ttl: ttl}
}

// Stage uploads the downloaded file and returns its signed URL handle.
func (s *Stager) Stage(ctx context.Context, audio domain.LocalAudio, itemID string) (domain.StagedAudio, error) {
	f, err := os.Open(audio.FilePath)
	if err != nil {
		return domain.StagedAudio{}, &StageError{Op: "open", Err: err}
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return domain.StagedAudio{}, &StageError{Op: "stat", Err: err}
	}

	ext := filepath.Ext(audio.FilePath)
	key := ObjectKey(itemID, ext)

	if err := s.store.Put(ctx, key, f, fi.Size(), contentTypeForExt(ext), objectMetadata(audio)); err != nil {
		return domain.StagedAudio{}, &StageError{Op: "upload", Key: key, Err: err}
	}

	signed, err := s.store.SignedURL(ctx, key, s.ttl)
	if err != nil {
		return domain.StagedAudio{}, &StageError{Op: "sign", Key: key, Err: err}
	}

	return domain.StagedAudio{
		SignedURL: signed,
		ObjectKey: key,
		Bucket:    s.bucket,
	}, nil
}

// Unstage removes a staged object during compensation. Transient delete
// failures get a couple of retries; an already-missing object counts as
// removed.
func (s *Stager) Unstage(ctx context.Context, staged domain.StagedAudio) error {
	op := func() error {
		err := s.store.Delete(ctx, staged.ObjectKey)
		if err == nil || errors.Is(err, ErrObjectNotExist) {
			return nil
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return &StageError{Op: "delete", Key: staged.ObjectKey, Err: err}
	}
	return nil
}

// objectMetadata collects the video attributes worth pinning to the staged
// object.
func objectMetadata(audio domain.LocalAudio) map[string]string {
	meta := make(map[string]string)
	if audio.SourceURL != "" {
		meta["source_url"] = audio.SourceURL
	}
	if info := audio.Info; info != nil {
		if info.Title != "" {
			meta["title"] = info.Title
		}
		if info.Channel != "" {
			meta["channel"] = info.Channel
		}
		if info.Duration > 0 {
			meta["duration"] = strconv.FormatFloat(info.Duration, 'f', -1, 64)
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
