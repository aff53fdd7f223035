// Package storage holds the durable key-value stores that keep login state and
// tokens across page loads. Every backend satisfies Storage; request-bound
// backends (cookies, per-browser scoping of shared stores) are reached through
// a Provider.
package storage

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
)

// Storage is a string key-value store. Get reports found=false for absent keys
// instead of returning an error.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Del(ctx context.Context, key string) error
}

// Provider resolves the Storage belonging to the browser behind a request.
type Provider interface {
	ForRequest(w http.ResponseWriter, r *http.Request) (Storage, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(w http.ResponseWriter, r *http.Request) (Storage, error)

func (f ProviderFunc) ForRequest(w http.ResponseWriter, r *http.Request) (Storage, error) {
	return f(w, r)
}

// Shared returns a Provider that hands out s for every request. Only suitable
// when a single user owns the whole store.
func Shared(s Storage) Provider {
	return ProviderFunc(func(http.ResponseWriter, *http.Request) (Storage, error) {
		return s, nil
	})
}

type prefixed struct {
	inner  Storage
	prefix string
}

// Prefixed namespaces every key of inner with prefix.
func Prefixed(inner Storage, prefix string) Storage {
	return &prefixed{inner: inner, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key string, value string) error {
	return p.inner.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Del(ctx context.Context, key string) error {
	return p.inner.Del(ctx, p.prefix+key)
}

const (
	sessionCookieName = "session_id"
	cookieMaxAge      = 86400 * 30
	sessionIDBytes    = 32
)

// SessionScoped gives each browser its own slice of a shared backend. The
// browser is identified by a random session_id cookie issued on first sight.
type SessionScoped struct {
	backend Storage
	secure  bool
}

func NewSessionScoped(backend Storage, secure bool) *SessionScoped {
	return &SessionScoped{backend: backend, secure: secure}
}

func (s *SessionScoped) ForRequest(w http.ResponseWriter, r *http.Request) (Storage, error) {
	id := ""
	if c, err := r.Cookie(sessionCookieName); err == nil && validSessionID(c.Value) {
		id = c.Value
	} else {
		id, err = newSessionID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session id: %w", err)
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    id,
			Path:     "/",
			MaxAge:   cookieMaxAge,
			Secure:   s.secure,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		// later reads within this request see the new id
		r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: id})
	}

	return Prefixed(s.backend, "session:"+id+":"), nil
}

func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func validSessionID(id string) bool {
	b, err := base64.RawURLEncoding.DecodeString(id)
	return err == nil && len(b) == sessionIDBytes
}
