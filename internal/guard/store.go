package guard

import (
	"context"
	"fmt"

	"authflow/pkg/storage"
)

type Status string

const (
	StatusAnonymous      Status = ""
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
	StatusFailed         Status = "failed"
)

const (
	statusKey = "security.status"
	tokenKey  = "security.token"
	errorKey  = "security.error"
)

// SecurityStore is the guard's record of the current session, kept in the
// same durable storage as the login flow.
type SecurityStore struct {
	store storage.Storage
}

func NewSecurityStore(store storage.Storage) *SecurityStore {
	return &SecurityStore{store: store}
}

func (s *SecurityStore) Status(ctx context.Context) (Status, error) {
	v, _, err := s.store.Get(ctx, statusKey)
	if err != nil {
		return StatusAnonymous, fmt.Errorf("failed to read status: %w", err)
	}
	return Status(v), nil
}

// Token returns the raw session token, without any type prefix.
func (s *SecurityStore) Token(ctx context.Context) (string, error) {
	v, _, err := s.store.Get(ctx, tokenKey)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return v, nil
}

// LastError returns the message recorded by the last failed check.
func (s *SecurityStore) LastError(ctx context.Context) (string, error) {
	v, _, err := s.store.Get(ctx, errorKey)
	if err != nil {
		return "", fmt.Errorf("failed to read error: %w", err)
	}
	return v, nil
}

func (s *SecurityStore) Authenticating(ctx context.Context) error {
	return s.store.Set(ctx, statusKey, string(StatusAuthenticating))
}

// Succeed records an authenticated session holding token.
func (s *SecurityStore) Succeed(ctx context.Context, token string) error {
	if err := s.store.Set(ctx, tokenKey, token); err != nil {
		return err
	}
	if err := s.store.Del(ctx, errorKey); err != nil {
		return err
	}
	return s.store.Set(ctx, statusKey, string(StatusAuthenticated))
}

// Fail records a failed check. The stored token is kept so the next check
// can retry with it.
func (s *SecurityStore) Fail(ctx context.Context, cause error) error {
	if err := s.store.Set(ctx, errorKey, cause.Error()); err != nil {
		return err
	}
	return s.store.Set(ctx, statusKey, string(StatusFailed))
}
