// Package auth handles the single admin login: bcrypt password check and
// Redis-backed sessions referenced from signed JWTs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const sessionKeyPrefix = "morningdrive:admin_session:"

var ErrInvalidCredentials = errors.New("invalid credentials")

// Session is one admin login.
type Session struct {
	ID        string
	ExpiresAt time.Time
}

// SessionStore keeps admin sessions in Redis with a TTL.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func (s *SessionStore) TTL() time.Duration { return s.ttl }

// Create stores a fresh session.
func (s *SessionStore) Create(ctx context.Context) (Session, error) {
	sess := Session{ID: uuid.NewString(), ExpiresAt: s.now().Add(s.ttl).UTC()}
	if err := s.rdb.Set(ctx, sessionKeyPrefix+sess.ID, sess.ExpiresAt.Format(time.RFC3339), s.ttl).Err(); err != nil {
		return Session{}, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

// Valid reports whether the session exists and has not expired.
func (s *SessionStore) Valid(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, nil
	}
	n, err := s.rdb.Exists(ctx, sessionKeyPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("lookup session: %w", err)
	}
	return n == 1, nil
}

// Revoke deletes the session; unknown ids are not an error.
func (s *SessionStore) Revoke(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// CheckPassword compares password against the configured bcrypt hash. An
// empty hash disables admin login.
func CheckPassword(hash, password string) error {
	if strings.TrimSpace(hash) == "" || password == "" {
		return ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword produces a hash suitable for server.admin_password_hash.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password too short")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
