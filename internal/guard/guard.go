// Package guard checks, on navigation to a guarded route, whether the backend
// still accepts the browser's session, and sends authenticated users home.
package guard

import (
	"context"
	"fmt"

	"authflow/pkg/httpclient"
	"authflow/pkg/logger"
	"authflow/pkg/oauth2"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultCheckPath = "/locations"
	DefaultHomePath  = "/"
)

var tracer = otel.Tracer("authflow/internal/guard")

type checkResponse struct {
	Token string `json:"token"`
}

// Guard runs one session check for one user agent. client must not follow
// redirects: a 3xx from the backend is a failed check, not a hop.
type Guard struct {
	client    *httpclient.Client
	security  *SecurityStore
	nav       oauth2.Navigator
	logger    logger.Logger
	checkPath string
	homePath  string
}

type Option func(*Guard)

func WithCheckPath(path string) Option {
	return func(g *Guard) { g.checkPath = path }
}

func WithHomePath(path string) Option {
	return func(g *Guard) { g.homePath = path }
}

func WithLogger(l logger.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

func New(client *httpclient.Client, security *SecurityStore, nav oauth2.Navigator, opts ...Option) *Guard {
	g := &Guard{
		client:    client,
		security:  security,
		nav:       nav,
		logger:    logger.Nop(),
		checkPath: DefaultCheckPath,
		homePath:  DefaultHomePath,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check pings the backend with the stored token. On success it records the
// token the backend returned, or keeps the stored one when the response has
// none, and redirects home; on failure it records the
// failure and leaves the user where they are. Backend failures are not
// returned; only failing to record the outcome is.
func (g *Guard) Check(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "guard.Check")
	defer span.End()

	if err := g.security.Authenticating(ctx); err != nil {
		return false, fmt.Errorf("failed to record status: %w", err)
	}

	token, err := g.security.Token(ctx)
	if err != nil {
		return false, err
	}
	if token != "" {
		g.client.SetHeader("Authorization", "Bearer "+token)
	} else {
		g.client.ClearHeader("Authorization")
	}

	var resp checkResponse
	if err = g.client.GetJSON(ctx, g.checkPath, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Warn("session check failed", logger.Err(err), logger.Field{Key: "path", Value: g.checkPath})

		if ferr := g.security.Fail(ctx, err); ferr != nil {
			return false, fmt.Errorf("failed to record status: %w", ferr)
		}
		return false, nil
	}

	// a check that only confirms the session keeps the current token
	if resp.Token != "" {
		token = resp.Token
	} else {
		g.logger.Debug("session check returned no token, keeping the stored one")
	}
	if err := g.security.Succeed(ctx, token); err != nil {
		return false, fmt.Errorf("failed to record status: %w", err)
	}
	span.SetAttributes(attribute.Bool("guard.authenticated", true))
	g.logger.Debug("session check passed")

	g.nav.Replace(ctx, g.homePath)
	return true, nil
}
