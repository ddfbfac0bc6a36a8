package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	s, err := NewLocal(t.TempDir(), "http://localhost:8080", "test-secret")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return s
}

func putTestObject(t *testing.T, s *Local, key string) {
	t.Helper()
	err := s.Put(context.Background(), key, strings.NewReader("audio-bytes"), 11, "audio/mpeg", map[string]string{"title": "t"})
	if err != nil {
		t.Fatalf("Put %s: %v", key, err)
	}
}

func TestLocalPutOpenDelete(t *testing.T) {
	s := newTestLocal(t)
	putTestObject(t, s, "asr/abc/one.mp3")

	path, contentType, err := s.Open("asr/abc/one.mp3")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if path == "" {
		t.Error("Open returned empty path")
	}
	if contentType != "audio/mpeg" {
		t.Errorf("content type = %q, want audio/mpeg", contentType)
	}

	if err := s.Delete(context.Background(), "asr/abc/one.mp3"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := s.Open("asr/abc/one.mp3"); !errors.Is(err, ErrObjectNotExist) {
		t.Errorf("Open after delete returned %v, want ErrObjectNotExist", err)
	}
	if err := s.Delete(context.Background(), "asr/abc/one.mp3"); !errors.Is(err, ErrObjectNotExist) {
		t.Errorf("second Delete returned %v, want ErrObjectNotExist", err)
	}
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	s := newTestLocal(t)

	err := s.Put(context.Background(), "../outside.mp3", strings.NewReader("x"), 1, "audio/mpeg", nil)
	if err == nil {
		t.Fatal("Put accepted a key escaping the storage root")
	}
	if _, _, err := s.Open("../../etc/passwd"); err == nil {
		t.Fatal("Open accepted a key escaping the storage root")
	}
}

func TestLocalSignedURLRoundTrip(t *testing.T) {
	s := newTestLocal(t)
	putTestObject(t, s, "asr/abc/one.mp3")

	signed, err := s.SignedURL(context.Background(), "asr/abc/one.mp3", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}

	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	if u.Path != AudioFileRoute+"/asr/abc/one.mp3" {
		t.Errorf("signed url path = %q", u.Path)
	}

	exp, err := strconv.ParseInt(u.Query().Get("exp"), 10, 64)
	if err != nil {
		t.Fatalf("parse exp: %v", err)
	}
	if exp <= time.Now().Unix() {
		t.Errorf("exp %d is not in the future", exp)
	}

	sig := u.Query().Get("sig")
	if !ValidateObjectSignature(u.Path, exp, sig, "test-secret") {
		t.Error("signature does not validate with the signing secret")
	}
	if ValidateObjectSignature(u.Path, exp, sig, "other-secret") {
		t.Error("signature validates under the wrong secret")
	}
	if ValidateObjectSignature(u.Path, exp+1, sig, "test-secret") {
		t.Error("signature validates for a tampered expiry")
	}
	if ValidateObjectSignature(AudioFileRoute+"/asr/abc/two.mp3", exp, sig, "test-secret") {
		t.Error("signature validates for a different path")
	}
}

func TestLocalList(t *testing.T) {
	s := newTestLocal(t)
	putTestObject(t, s, "asr/abc/one.mp3")
	putTestObject(t, s, "asr/def/two.mp3")
	putTestObject(t, s, "other/three.mp3")

	objects, err := s.List(context.Background(), "asr/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("List returned %d objects, want 2: %+v", len(objects), objects)
	}
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, "asr/") {
			t.Errorf("listed key %q outside prefix", obj.Key)
		}
		if strings.HasSuffix(obj.Key, metaSuffix) {
			t.Errorf("metadata sidecar %q leaked into listing", obj.Key)
		}
		if obj.Size != 11 {
			t.Errorf("object %s size = %d, want 11", obj.Key, obj.Size)
		}
		if obj.ContentType != "audio/mpeg" {
			t.Errorf("object %s content type = %q", obj.Key, obj.ContentType)
		}
	}
}

func TestLocalListEmptyPrefix(t *testing.T) {
	s := newTestLocal(t)
	for i := 0; i < 3; i++ {
		putTestObject(t, s, fmt.Sprintf("asr/item/%d.mp3", i))
	}

	objects, err := s.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objects) != 3 {
		t.Errorf("List returned %d objects, want 3", len(objects))
	}
}
