package voice

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

func newStore(t *testing.T) *DirStore {
	t.Helper()
	s, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return time.UnixMilli(1767225600000) }
	return s
}

func TestPutAndOpen(t *testing.T) {
	s := newStore(t)

	path, err := s.Put(context.Background(), "ride-1", "rider", strings.NewReader("opus"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if path != "ride-1/rider/voice_1767225600000.webm" {
		t.Errorf("path = %q", path)
	}

	full, err := s.Resolve(path)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(full)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permission = %o, want 0600", info.Mode().Perm())
	}

	rc, err := s.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "opus" {
		t.Errorf("content = %q", data)
	}
}

func TestPutRejectsBadSegments(t *testing.T) {
	s := newStore(t)
	for _, ride := range []string{"", "..", "a/b", `a\b`} {
		if _, err := s.Put(context.Background(), ride, "rider", strings.NewReader("x")); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Put(ride=%q) = %v, want ErrInvalidPath", ride, err)
		}
	}
}

func TestPutRejectsEmptyAndOversized(t *testing.T) {
	s := newStore(t)
	if _, err := s.Put(context.Background(), "ride-1", "rider", strings.NewReader("")); err == nil {
		t.Error("empty note accepted")
	}

	big := bytes.NewReader(make([]byte, MaxSize+1))
	s.now = func() time.Time { return time.UnixMilli(2) }
	if _, err := s.Put(context.Background(), "ride-1", "rider", big); !errors.Is(err, ErrTooLarge) {
		t.Errorf("oversized Put() = %v, want ErrTooLarge", err)
	}
	if _, err := os.Stat(s.root + "/ride-1/rider/voice_2.webm"); !os.IsNotExist(err) {
		t.Error("oversized note left on disk")
	}
}

func TestPutHonoursContext(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Put(ctx, "ride-1", "rider", strings.NewReader("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Put() with cancelled context = %v", err)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	s := newStore(t)
	for _, p := range []string{
		"../etc/passwd",
		"ride-1/../../voice_1.webm",
		"ride-1/rider/notes.txt",
		"ride-1/rider/sub/voice_1.webm",
		"/ride-1/rider/voice_1.webm",
	} {
		if _, err := s.Resolve(p); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Resolve(%q) = %v, want ErrInvalidPath", p, err)
		}
	}
}
