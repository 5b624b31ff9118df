package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrNoToken is returned by Reload when neither the file nor the
// environment provides a token.
var ErrNoToken = errors.New("no access token")

// TokenIdentity derives the user from a JWT access token. When a secret is
// configured the token must be a valid HS256 signature; otherwise it is
// parsed without verification and the store's own access rules apply.
type TokenIdentity struct {
	mu      sync.RWMutex
	userID  string
	expires time.Time

	path   string
	inline string
	secret []byte
	now    func() time.Time
	logger *zap.Logger
}

// NewTokenIdentity reads the token from path, or uses inline when it is
// set. A missing or invalid token is logged, not returned: the identity
// simply reports nobody signed in until Reload succeeds.
func NewTokenIdentity(path, inline, secret string, logger *zap.Logger) *TokenIdentity {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &TokenIdentity{
		path:   path,
		inline: inline,
		now:    time.Now,
		logger: logger,
	}
	if secret != "" {
		t.secret = []byte(secret)
	}
	if err := t.Reload(); err != nil {
		logger.Warn("access token unavailable", zap.Error(err))
	}
	return t
}

func (t *TokenIdentity) CurrentUserID() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.userID == "" {
		return "", false
	}
	if !t.expires.IsZero() && !t.now().Before(t.expires) {
		return "", false
	}
	return t.userID, true
}

// Expires returns the token expiry, zero when the token has none.
func (t *TokenIdentity) Expires() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expires
}

// Reload re-reads the token. On failure the previous user is cleared.
func (t *TokenIdentity) Reload() error {
	raw, err := t.read()
	if err == nil {
		var sub string
		var exp time.Time
		sub, exp, err = t.parse(raw)
		if err == nil {
			t.mu.Lock()
			t.userID, t.expires = sub, exp
			t.mu.Unlock()
			t.logger.Info("access token loaded", zap.String("user", sub), zap.Time("expires", exp))
			return nil
		}
	}
	t.mu.Lock()
	t.userID, t.expires = "", time.Time{}
	t.mu.Unlock()
	return err
}

func (t *TokenIdentity) read() (string, error) {
	if t.inline != "" {
		return strings.TrimSpace(t.inline), nil
	}
	if t.path == "" {
		return "", ErrNoToken
	}
	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return "", ErrNoToken
	}
	return raw, nil
}

func (t *TokenIdentity) parse(raw string) (string, time.Time, error) {
	claims := jwt.MapClaims{}
	if t.secret != nil {
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return t.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
		if err != nil {
			return "", time.Time{}, fmt.Errorf("verify token: %w", err)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			return "", time.Time{}, fmt.Errorf("parse token: %w", err)
		}
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", time.Time{}, fmt.Errorf("token has no subject")
	}
	var expires time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expires = exp.Time
		if !t.now().Before(expires) {
			return "", time.Time{}, fmt.Errorf("token expired at %s", expires.Format(time.RFC3339))
		}
	}
	return sub, expires, nil
}
