// Package voice keeps recorded voice notes. A voice message's body is the
// storage path returned by Put, never the audio itself.
package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxSize caps a single voice note.
const MaxSize = 10 << 20

var (
	ErrInvalidPath = errors.New("invalid voice path")
	ErrTooLarge    = errors.New("voice note too large")
	ErrEmpty       = errors.New("empty voice note")
)

// Store uploads and fetches voice notes.
type Store interface {
	Put(ctx context.Context, rideID, userID string, r io.Reader) (string, error)
	Open(path string) (io.ReadCloser, error)
}

// DirStore is a Store rooted at a local directory.
type DirStore struct {
	root string
	now  func() time.Time
}

func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("create voice dir: %w", err)
	}
	return &DirStore{root: root, now: time.Now}, nil
}

// Put writes r to <ride>/<user>/voice_<unix ms>.webm and returns that path.
func (s *DirStore) Put(ctx context.Context, rideID, userID string, r io.Reader) (string, error) {
	if !validSegment(rideID) || !validSegment(userID) {
		return "", fmt.Errorf("%w: ride %q user %q", ErrInvalidPath, rideID, userID)
	}
	rel := fmt.Sprintf("%s/%s/voice_%d.webm", rideID, userID, s.now().UnixMilli())
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0700); err != nil {
		return "", fmt.Errorf("create ride dir: %w", err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return "", fmt.Errorf("create voice file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(ctxReader{ctx, r}, MaxSize+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n > MaxSize {
		err = ErrTooLarge
	}
	if err == nil && n == 0 {
		err = ErrEmpty
	}
	if err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("write voice note: %w", err)
	}
	return rel, nil
}

// Open returns the note stored at path, as found in a message body.
func (s *DirStore) Open(path string) (io.ReadCloser, error) {
	full, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Resolve maps a stored path to a file on disk, rejecting anything that
// would land outside the store root.
func (s *DirStore) Resolve(path string) (string, error) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 || !validSegment(parts[0]) || !validSegment(parts[1]) ||
		!strings.HasPrefix(parts[2], "voice_") || !strings.HasSuffix(parts[2], ".webm") || !validSegment(parts[2]) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return filepath.Join(s.root, parts[0], parts[1], parts[2]), nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`) && !strings.ContainsRune(s, 0)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
