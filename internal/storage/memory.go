package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryObject is one object held by a Memory store.
type MemoryObject struct {
	Data        []byte
	ContentType string
	Metadata    map[string]string
	Created     time.Time
}

// Memory is an in-memory BlobStore used by tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string]MemoryObject
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]MemoryObject)}
}

func (s *Memory) Put(_ context.Context, key string, r io.ReadSeeker, _ int64, contentType string, meta map[string]string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = MemoryObject{
		Data:        data,
		ContentType: contentType,
		Metadata:    meta,
		Created:     time.Now().UTC(),
	}
	return nil
}

func (s *Memory) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://signed.invalid/%s?ttl=%d", key, int64(ttl.Seconds())), nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return ErrObjectNotExist
	}
	delete(s.objects, key)
	return nil
}

func (s *Memory) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var objects []ObjectInfo
	for key, obj := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		objects = append(objects, ObjectInfo{
			Key:         key,
			Size:        int64(len(obj.Data)),
			ContentType: obj.ContentType,
			Metadata:    obj.Metadata,
			Created:     obj.Created,
		})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Object returns the stored object for key, for test assertions.
func (s *Memory) Object(key string) (MemoryObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// Len returns the number of stored objects.
func (s *Memory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
