package oauth2

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

var ErrNoRefreshToken = errors.New("no refresh token available")

// Refresh trades the stored refresh token for a new access token and stores
// the result exactly like a completed callback, minus the redirect.
func (s *Scheme) Refresh(ctx context.Context) error {
	if s.cfg.AccessTokenEndpoint == "" {
		return fmt.Errorf("%w: %s: access_token_endpoint is required to refresh", ErrInvalidConfig, s.cfg.Name)
	}

	stored, err := s.auth.RefreshToken(ctx, s.cfg.Name)
	if err != nil {
		return err
	}
	if stored == "" {
		return ErrNoRefreshToken
	}

	ctx, span := tracer.Start(ctx, "oauth2.Refresh", trace.WithAttributes(attribute.String("auth.strategy", s.cfg.Name)))
	defer span.End()

	raw := strings.TrimPrefix(stored, s.cfg.TokenType+" ")
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client.HTTPClient())

	newToken, err := s.oauth2Config(s.RedirectURI()).TokenSource(ctx, &oauth2.Token{RefreshToken: raw}).Token()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	token := s.cfg.withTokenType(newToken.AccessToken)
	if err := s.auth.SetToken(ctx, s.cfg.Name, token); err != nil {
		return err
	}
	s.setToken(token)

	if newToken.RefreshToken != "" && newToken.RefreshToken != raw {
		if err := s.auth.SetRefreshToken(ctx, s.cfg.Name, s.cfg.withTokenType(newToken.RefreshToken)); err != nil {
			return err
		}
	}

	s.logger.Info("token refreshed", s.fields()...)
	return nil
}
