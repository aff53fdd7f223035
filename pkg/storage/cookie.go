package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/securecookie"
)

const cookiePrefix = "auth."

// CookieJar issues signed (and optionally encrypted) cookies, one per key.
type CookieJar struct {
	codec  *securecookie.SecureCookie
	maxAge int
	secure bool
}

// NewCookieJar builds a jar from a 32 or 64 byte hashKey. blockKey enables
// encryption when non-nil and must be 16, 24 or 32 bytes.
func NewCookieJar(hashKey, blockKey []byte, secure bool) *CookieJar {
	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(cookieMaxAge)
	return &CookieJar{codec: codec, maxAge: cookieMaxAge, secure: secure}
}

func (j *CookieJar) ForRequest(w http.ResponseWriter, r *http.Request) (Storage, error) {
	return &CookieStorage{jar: j, w: w, r: r, pending: make(map[string]*string)}, nil
}

// CookieStorage reads keys from request cookies and writes them as response
// cookies. Writes are visible to later reads within the same request.
type CookieStorage struct {
	jar     *CookieJar
	w       http.ResponseWriter
	r       *http.Request
	pending map[string]*string
}

func (c *CookieStorage) Get(_ context.Context, key string) (string, bool, error) {
	if v, ok := c.pending[key]; ok {
		if v == nil {
			return "", false, nil
		}
		return *v, true, nil
	}

	name := cookiePrefix + key
	ck, err := c.r.Cookie(name)
	if errors.Is(err, http.ErrNoCookie) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	var value string
	if err := c.jar.codec.Decode(name, ck.Value, &value); err != nil {
		return "", false, fmt.Errorf("failed to decode cookie %s: %w", name, err)
	}
	return value, true, nil
}

func (c *CookieStorage) Set(_ context.Context, key string, value string) error {
	name := cookiePrefix + key
	encoded, err := c.jar.codec.Encode(name, value)
	if err != nil {
		return fmt.Errorf("failed to encode cookie %s: %w", name, err)
	}

	http.SetCookie(c.w, &http.Cookie{
		Name:     name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   c.jar.maxAge,
		Secure:   c.jar.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	c.pending[key] = &value
	return nil
}

func (c *CookieStorage) Del(_ context.Context, key string) error {
	http.SetCookie(c.w, &http.Cookie{
		Name:     cookiePrefix + key,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   c.jar.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	c.pending[key] = nil
	return nil
}
