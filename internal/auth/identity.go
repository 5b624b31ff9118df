// Package auth answers who the current user is. Sessions are issued by an
// external provider; this package only reads the resulting access token.
package auth

import "sync"

// Identity resolves the signed-in user. CurrentUserID must be cheap and
// must not block; ok is false when nobody is signed in.
type Identity interface {
	CurrentUserID() (string, bool)
}

// Static is a fixed identity, used in tests and single-user setups.
type Static struct {
	mu sync.RWMutex
	id string
}

func NewStatic(id string) *Static {
	return &Static{id: id}
}

func (s *Static) CurrentUserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, s.id != ""
}

// Set changes the user. An empty id signs out.
func (s *Static) Set(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}
