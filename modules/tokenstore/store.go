// Package tokenstore persists the access/refresh credential pair and decodes
// access credential expiry.
//
// The pair is written as a single JSON value under one storage key, so a
// concurrent reader sees either the old pair, the new pair, or nothing.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/guarzo/authpipe/common"
	"github.com/guarzo/authpipe/common/model"
)

// DefaultKey is the storage key used when none is configured.
const DefaultKey = "authpipe:credentials"

// ErrMalformedCredential is returned by ExpiresAt when the access credential
// cannot be decoded or carries no exp claim.
var ErrMalformedCredential = errors.New("malformed access credential")

// ErrIncompletePair is returned by Save when either half is empty.
var ErrIncompletePair = errors.New("credential pair must carry both access and refresh")

// Store owns the persisted credential state. It is safe for concurrent use
// when the underlying Storage is.
type Store struct {
	storage common.Storage
	key     string
	leeway  time.Duration
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLeeway reports credentials as expired d before their exp claim.
func WithLeeway(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.leeway = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store on top of storage.
func New(storage common.Storage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		key:     DefaultKey,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save persists both credentials in one write.
func (s *Store) Save(ctx context.Context, creds *model.Credentials) error {
	if !creds.Complete() {
		return ErrIncompletePair
	}
	blob, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := s.storage.Set(ctx, s.key, blob, 0); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// Load returns the stored pair, or nil when nothing usable is stored.
// A partial or undecodable value counts as absent. Only backend failures
// are returned as errors.
func (s *Store) Load(ctx context.Context) (*model.Credentials, error) {
	blob, found, err := s.storage.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if !found {
		return nil, nil
	}
	var creds model.Credentials
	if err := model.JSONUnmarshal(blob, &creds); err != nil {
		return nil, nil
	}
	if !creds.Complete() {
		return nil, nil
	}
	return &creds, nil
}

// Clear removes both credentials.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.storage.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// IsExpired reports whether access is past its exp claim (minus leeway).
// Anything that cannot be decoded is expired.
func (s *Store) IsExpired(access string) bool {
	exp, err := ExpiresAt(access)
	if err != nil {
		return true
	}
	return !s.now().Add(s.leeway).Before(exp)
}

// Session summarises the stored login state.
func (s *Store) Session(ctx context.Context) (model.Session, error) {
	creds, err := s.Load(ctx)
	if err != nil {
		return model.Session{}, err
	}
	if creds == nil {
		return model.Session{}, nil
	}
	exp, _ := ExpiresAt(creds.Access)
	return model.Session{
		LoggedIn:      true,
		AccessExpired: s.IsExpired(creds.Access),
		ExpiresAt:     exp,
	}, nil
}

// ExpiresAt decodes the exp claim of a JWT access credential without
// verifying its signature; verification is the server's job.
func ExpiresAt(access string) (time.Time, error) {
	if access == "" {
		return time.Time{}, ErrMalformedCredential
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(access, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrMalformedCredential
	}
	return claims.ExpiresAt.Time, nil
}
