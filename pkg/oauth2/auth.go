package oauth2

import (
	"context"
	"fmt"
	"sync"

	"authflow/pkg/storage"
)

const (
	tokenPrefix        = "_token."
	refreshTokenPrefix = "_refresh_token."
	strategyKey        = "strategy"
)

// Navigator moves the user agent. Navigate leaves the application for an
// absolute URL; Replace routes inside it without keeping a history entry.
type Navigator interface {
	Navigate(ctx context.Context, location string)
	Replace(ctx context.Context, path string)
}

// RedirectPaths are the application routes the flow redirects to.
type RedirectPaths struct {
	Login    string
	Logout   string
	Callback string
	Home     string
}

// DefaultRedirectPaths serves the callback on the login route, for hosts whose
// login page also completes the flow. A server that mounts both routes on one
// router needs a distinct Callback; cfg.Load defaults it to /callback.
func DefaultRedirectPaths() RedirectPaths {
	return RedirectPaths{
		Login:    "/login",
		Logout:   "/",
		Callback: "/login",
		Home:     "/",
	}
}

// Auth is the host-side session shared by every strategy of one user agent:
// tokens in durable storage, the loaded user profile, and navigation.
type Auth struct {
	store storage.Storage
	nav   Navigator
	paths RedirectPaths

	mu   sync.RWMutex
	user map[string]any
}

func NewAuth(store storage.Storage, nav Navigator, paths RedirectPaths) *Auth {
	return &Auth{store: store, nav: nav, paths: paths}
}

func (a *Auth) Storage() storage.Storage {
	return a.store
}

func (a *Auth) Paths() RedirectPaths {
	return a.paths
}

func (a *Auth) Navigator() Navigator {
	return a.nav
}

// Token returns the stored session token of strategy, or "" when none.
func (a *Auth) Token(ctx context.Context, strategy string) (string, error) {
	return a.get(ctx, tokenPrefix+strategy)
}

// SetToken stores token for strategy; an empty token removes it.
func (a *Auth) SetToken(ctx context.Context, strategy, token string) error {
	return a.put(ctx, tokenPrefix+strategy, token)
}

func (a *Auth) RefreshToken(ctx context.Context, strategy string) (string, error) {
	return a.get(ctx, refreshTokenPrefix+strategy)
}

func (a *Auth) SetRefreshToken(ctx context.Context, strategy, token string) error {
	return a.put(ctx, refreshTokenPrefix+strategy, token)
}

// Strategy returns the strategy that started the current login, if any.
func (a *Auth) Strategy(ctx context.Context) (string, error) {
	return a.get(ctx, strategyKey)
}

func (a *Auth) SetStrategy(ctx context.Context, strategy string) error {
	return a.put(ctx, strategyKey, strategy)
}

// User returns the loaded profile. An empty, non-nil map is a valid profile.
func (a *Auth) User() (map[string]any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.user, a.user != nil
}

func (a *Auth) SetUser(user map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user = user
}

func (a *Auth) LoggedIn() bool {
	_, ok := a.User()
	return ok
}

// Reset forgets the user and both tokens of strategy.
func (a *Auth) Reset(ctx context.Context, strategy string) error {
	a.SetUser(nil)
	if err := a.SetToken(ctx, strategy, ""); err != nil {
		return err
	}
	return a.SetRefreshToken(ctx, strategy, "")
}

// Redirect replaces the current route with one of the named redirect paths.
func (a *Auth) Redirect(ctx context.Context, name string) error {
	var path string
	switch name {
	case "login":
		path = a.paths.Login
	case "logout":
		path = a.paths.Logout
	case "callback":
		path = a.paths.Callback
	case "home":
		path = a.paths.Home
	default:
		return fmt.Errorf("unknown redirect %q", name)
	}
	if path == "" {
		return nil
	}
	a.nav.Replace(ctx, path)
	return nil
}

func (a *Auth) get(ctx context.Context, key string) (string, error) {
	v, _, err := a.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return v, nil
}

func (a *Auth) put(ctx context.Context, key, value string) error {
	var err error
	if value == "" {
		err = a.store.Del(ctx, key)
	} else {
		err = a.store.Set(ctx, key, value)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
