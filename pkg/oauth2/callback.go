package oauth2

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"authflow/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var ErrMissingIDToken = errors.New("id_token missing from callback")

// Outcome classifies one callback attempt.
type Outcome int

const (
	// NotApplicable: the current route is not a callback for this strategy.
	NotApplicable Outcome = iota
	// Handled: the callback was processed. It may still have been rejected
	// silently (state mismatch, no token); see CallbackResult.Authenticated.
	// A silent rejection issues no redirect, so the page carries on loading.
	Handled
	// HandledWithError: processing failed and the error was logged.
	HandledWithError
)

func (o Outcome) String() string {
	switch o {
	case NotApplicable:
		return "not_applicable"
	case Handled:
		return "handled"
	case HandledWithError:
		return "handled_with_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type CallbackResult struct {
	Outcome Outcome
	// Authenticated is true when a token was stored and the home redirect issued.
	Authenticated bool
	Err           error
}

// Redirected is the signal the host acts on: after a successful or failed
// callback no further navigation logic should run on this page. A silently
// rejected callback reports false and the page loads as usual.
func (r CallbackResult) Redirected() bool {
	return r.Outcome == HandledWithError || r.Authenticated
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
}

// HandleCallback processes a provider redirect back to the application. It
// never returns an error: failures are logged and reported in the result.
func (s *Scheme) HandleCallback(ctx context.Context) CallbackResult {
	route := s.env.CurrentRoute()

	if cb := s.auth.Paths().Callback; cb != "" && route.Path != cb {
		return CallbackResult{Outcome: NotApplicable}
	}
	// no live client to complete the flow
	if s.env.IsStatic() {
		return CallbackResult{Outcome: NotApplicable}
	}

	ctx, span := tracer.Start(ctx, "oauth2.HandleCallback", trace.WithAttributes(attribute.String("auth.strategy", s.cfg.Name)))
	defer span.End()

	base := s.fields()
	authenticated, err := s.processCallback(ctx, route, base)

	result := CallbackResult{Outcome: Handled, Authenticated: authenticated}
	if err != nil {
		s.logger.Error("callback failed", with(base, logger.Err(err))...)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result = CallbackResult{Outcome: HandledWithError, Err: err}
	}

	span.SetAttributes(attribute.String("auth.callback.outcome", result.Outcome.String()))
	callbackCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("auth.strategy", s.cfg.Name),
		attribute.String("outcome", result.Outcome.String()),
		attribute.Bool("authenticated", result.Authenticated),
	))
	return result
}

func (s *Scheme) processCallback(ctx context.Context, route Route, base []logger.Field) (bool, error) {
	params := callbackParams(route)

	token := params.Get(s.cfg.TokenKey)
	refreshToken := params.Get(s.cfg.RefreshTokenKey)
	idToken := params.Get("id_token")

	// state and nonce are single use: consume them before anything else
	state, err := s.consume(ctx, s.cfg.stateKey())
	if err != nil {
		return false, fmt.Errorf("failed to consume state: %w", err)
	}
	nonce := ""
	if s.cfg.VerifyNonce {
		if nonce, err = s.consume(ctx, s.cfg.nonceKey()); err != nil {
			return false, fmt.Errorf("failed to consume nonce: %w", err)
		}
	}

	if state == "" && s.cfg.RequireState {
		s.logger.Warn("callback without pending login", base...)
		return false, nil
	}
	if state != "" && params.Get("state") != state {
		s.logger.Warn("callback state mismatch", base...)
		return false, nil
	}

	if s.cfg.ResponseType == ResponseTypeCode && params.Get("code") != "" {
		resp, err := s.exchangeCode(ctx, params.Get("code"))
		if err != nil {
			return false, err
		}
		if resp.AccessToken != "" {
			token = resp.AccessToken
		}
		if resp.RefreshToken != "" {
			refreshToken = resp.RefreshToken
		}
		if resp.IDToken != "" {
			idToken = resp.IDToken
		}
	}

	if token == "" {
		s.logger.Debug("callback carried no token", base...)
		return false, nil
	}

	if nonce != "" {
		if idToken == "" {
			return false, ErrMissingIDToken
		}
		if err := s.nonces.Verify(ctx, idToken, nonce); err != nil {
			return false, err
		}
	}

	token = s.cfg.withTokenType(token)
	if err := s.auth.SetToken(ctx, s.cfg.Name, token); err != nil {
		return false, err
	}
	s.setToken(token)

	if refreshToken != "" {
		if err := s.auth.SetRefreshToken(ctx, s.cfg.Name, s.cfg.withTokenType(refreshToken)); err != nil {
			return false, err
		}
	}

	s.logger.Info("callback authenticated", with(base, logger.Field{Key: "refresh_token", Value: refreshToken != ""})...)
	if err := s.auth.Redirect(ctx, "home"); err != nil {
		return false, err
	}
	return true, nil
}

// consume reads key and deletes it whatever the read returned.
func (s *Scheme) consume(ctx context.Context, key string) (string, error) {
	store := s.auth.Storage()
	v, _, getErr := store.Get(ctx, key)
	delErr := store.Del(ctx, key)
	if err := errors.Join(getErr, delErr); err != nil {
		return "", err
	}
	return v, nil
}

func (s *Scheme) exchangeCode(ctx context.Context, code string) (*tokenResponse, error) {
	ctx, span := tracer.Start(ctx, "oauth2.ExchangeCode")
	defer span.End()

	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", s.cfg.ClientID)
	if uri := s.RedirectURI(); uri != "" {
		form.Set("redirect_uri", uri)
	}
	form.Set("response_type", s.cfg.ResponseType)
	if s.cfg.Audience != "" {
		form.Set("audience", s.cfg.Audience)
	}
	if s.cfg.GrantType != "" {
		form.Set("grant_type", s.cfg.GrantType)
	}

	var resp tokenResponse
	if err := s.client.PostForm(ctx, s.cfg.AccessTokenEndpoint, form, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return &resp, nil
}

// callbackParams merges query and fragment parameters; the fragment wins.
func callbackParams(route Route) url.Values {
	params := url.Values{}
	for k, v := range route.Query {
		params[k] = append([]string(nil), v...)
	}

	// a malformed pair is skipped, the rest still parse
	hash, _ := url.ParseQuery(strings.TrimPrefix(route.Fragment, "#"))
	for k, v := range hash {
		params[k] = v
	}
	return params
}

func with(base []logger.Field, extra ...logger.Field) []logger.Field {
	out := make([]logger.Field, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}
