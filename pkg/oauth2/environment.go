package oauth2

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Route is the location the host is currently rendering.
type Route struct {
	Path  string
	Query url.Values
	// Fragment is the URL hash without the leading '#'.
	Fragment string
}

func RouteFromURL(u *url.URL) Route {
	return Route{Path: u.Path, Query: u.Query(), Fragment: u.Fragment}
}

// Environment is what the flow needs to know about where it runs.
type Environment interface {
	// Origin returns scheme://host of the current page or inbound request.
	Origin() (string, bool)
	CurrentRoute() Route
	// IsStatic reports a statically generated render with no live client.
	IsStatic() bool
}

// ServerEnvironment derives everything from the inbound request.
type ServerEnvironment struct {
	req    *http.Request
	static bool
}

func NewServerEnvironment(r *http.Request, static bool) *ServerEnvironment {
	return &ServerEnvironment{req: r, static: static}
}

// IsSecure reports whether the request reached us over TLS, directly or
// through a proxy that set X-Forwarded-Proto.
func (e *ServerEnvironment) IsSecure() bool {
	if proto := e.req.Header.Get("X-Forwarded-Proto"); proto != "" {
		first, _, _ := strings.Cut(proto, ",")
		return strings.EqualFold(strings.TrimSpace(first), "https")
	}
	return e.req.TLS != nil
}

func (e *ServerEnvironment) Origin() (string, bool) {
	if e.req.Host == "" {
		return "", false
	}
	scheme := "http"
	if e.IsSecure() {
		scheme = "https"
	}
	return scheme + "://" + e.req.Host, true
}

func (e *ServerEnvironment) CurrentRoute() Route {
	return RouteFromURL(e.req.URL)
}

func (e *ServerEnvironment) IsStatic() bool {
	return e.static
}

// BrowserEnvironment models a live client that sees its full location,
// fragment included.
type BrowserEnvironment struct {
	location *url.URL
}

func NewBrowserEnvironment(location string) (*BrowserEnvironment, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid location: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("location must be absolute: %q", location)
	}
	return &BrowserEnvironment{location: u}, nil
}

func (e *BrowserEnvironment) Origin() (string, bool) {
	return e.location.Scheme + "://" + e.location.Host, true
}

func (e *BrowserEnvironment) CurrentRoute() Route {
	return RouteFromURL(e.location)
}

func (e *BrowserEnvironment) IsStatic() bool {
	return false
}
