package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AudioFileRoute is the path prefix the HTTP layer serves local objects
// under. Signed URLs produced by Local point at it.
const AudioFileRoute = "/audio-file"

const metaSuffix = ".meta"

type localMeta struct {
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Created     time.Time         `json:"created"`
}

// Local keeps objects on the local filesystem and signs time-limited URLs
// itself. It exists for development and tests, not production.
type Local struct {
	dir     string
	baseURL string
	secret  string
}

// NewLocal builds a filesystem store rooted at dir. Signed URLs are built
// from baseURL and validated with secret.
func NewLocal(dir, baseURL, secret string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Local{
		dir:     abs,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  secret,
	}, nil
}

// pathForKey maps an object key onto the storage root, rejecting keys that
// would escape it.
func (s *Local) pathForKey(key string) (string, error) {
	full := filepath.Join(s.dir, filepath.FromSlash(key))
	if full != s.dir && !strings.HasPrefix(full, s.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return full, nil
}

func (s *Local) Put(_ context.Context, key string, r io.ReadSeeker, _ int64, contentType string, meta map[string]string) error {
	path, err := s.pathForKey(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create object %s: %w", key, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close object %s: %w", key, err)
	}

	raw, err := json.Marshal(localMeta{
		ContentType: contentType,
		Metadata:    meta,
		Created:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode metadata for %s: %w", key, err)
	}
	if err := os.WriteFile(path+metaSuffix, raw, 0o644); err != nil {
		return fmt.Errorf("write metadata for %s: %w", key, err)
	}
	return nil
}

func (s *Local) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if _, err := s.pathForKey(key); err != nil {
		return "", err
	}
	urlPath := AudioFileRoute + "/" + key
	expiresAt := time.Now().Add(ttl).Unix()
	sig := SignObjectPath(urlPath, expiresAt, s.secret)
	return fmt.Sprintf("%s%s?exp=%d&sig=%s", s.baseURL, urlPath, expiresAt, url.QueryEscape(sig)), nil
}

func (s *Local) Delete(_ context.Context, key string) error {
	path, err := s.pathForKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrObjectNotExist
		}
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	os.Remove(path + metaSuffix)
	return nil
}

func (s *Local) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, metaSuffix) {
			return nil
		}

		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		info := ObjectInfo{Key: key, Size: fi.Size(), Created: fi.ModTime()}
		if meta, ok := s.readMeta(path); ok {
			info.ContentType = meta.ContentType
			info.Metadata = meta.Metadata
			info.Created = meta.Created
		}
		objects = append(objects, info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects under %s: %w", prefix, err)
	}
	return objects, nil
}

// Open resolves key to a readable file path and its content type, for the
// route that serves local objects.
func (s *Local) Open(key string) (string, string, error) {
	path, err := s.pathForKey(key)
	if err != nil {
		return "", "", err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", "", ErrObjectNotExist
		}
		return "", "", fmt.Errorf("stat object %s: %w", key, err)
	}

	contentType := "application/octet-stream"
	if meta, ok := s.readMeta(path); ok && meta.ContentType != "" {
		contentType = meta.ContentType
	}
	return path, contentType, nil
}

func (s *Local) readMeta(path string) (localMeta, bool) {
	raw, err := os.ReadFile(path + metaSuffix)
	if err != nil {
		return localMeta{}, false
	}
	var meta localMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return localMeta{}, false
	}
	return meta, true
}

// SignObjectPath signs an object URL path together with its expiry.
func SignObjectPath(urlPath string, expiresAt int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s:%d", urlPath, expiresAt)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateObjectSignature reports whether signature matches urlPath and
// expiresAt under secret.
func ValidateObjectSignature(urlPath string, expiresAt int64, signature, secret string) bool {
	expected := SignObjectPath(urlPath, expiresAt, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
