package oauth2

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"authflow/pkg/httpclient"
	"authflow/pkg/idgen"
	"authflow/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

var ErrNonceVerifierMissing = errors.New("nonce verification enabled without a verifier")

// Scheme runs the OAuth2 implicit / authorization code flow for one strategy
// on behalf of one user agent.
type Scheme struct {
	cfg    ClientConfig
	auth   *Auth
	env    Environment
	client *httpclient.Client
	logger logger.Logger
	ids    idgen.Generator
	nonces *NonceVerifier
}

type Option func(*Scheme)

func WithLogger(l logger.Logger) Option {
	return func(s *Scheme) { s.logger = l }
}

// WithIDGenerator tags the log lines of each operation with an attempt id.
func WithIDGenerator(g idgen.Generator) Option {
	return func(s *Scheme) { s.ids = g }
}

func WithNonceVerifier(v *NonceVerifier) Option {
	return func(s *Scheme) { s.nonces = v }
}

// NewScheme binds cfg to one user agent. client carries that agent's
// credentials; it must not be shared with other sessions.
func NewScheme(cfg ClientConfig, auth *Auth, env Environment, client *httpclient.Client, opts ...Option) (*Scheme, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scheme{
		cfg:    cfg,
		auth:   auth,
		env:    env,
		client: client,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.VerifyNonce && s.nonces == nil {
		return nil, fmt.Errorf("%w: %s", ErrNonceVerifierMissing, cfg.Name)
	}
	return s, nil
}

func (s *Scheme) Name() string {
	return s.cfg.Name
}

func (s *Scheme) Config() ClientConfig {
	return s.cfg
}

// RedirectURI resolves the callback URL. It is recomputed on every call
// because the origin can differ between requests.
func (s *Scheme) RedirectURI() string {
	if s.cfg.RedirectURI != "" {
		return s.cfg.RedirectURI
	}
	origin, ok := s.env.Origin()
	if !ok {
		return ""
	}
	return origin + s.auth.Paths().Callback
}

// LoginOptions customises one authorization request. Params are merged into
// the query after the standard parameters and may override them.
type LoginOptions struct {
	Params map[string]string
	State  string
	Nonce  string
}

type authRequest struct {
	URL   string
	State string
	Nonce string
}

func (s *Scheme) oauth2Config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: s.cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   s.cfg.AuthorizationEndpoint,
			TokenURL:  s.cfg.AccessTokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURI,
		Scopes:      s.cfg.Scope,
	}
}

func (s *Scheme) authorizationRequest(opts LoginOptions) (*authRequest, error) {
	var err error

	state := opts.State
	if state == "" {
		if state, err = GenerateRandomString(stateLength); err != nil {
			return nil, fmt.Errorf("failed to generate state: %w", err)
		}
	}
	if v, ok := opts.Params["state"]; ok {
		state = v
	}

	responseType := s.cfg.ResponseType
	if v, ok := opts.Params["response_type"]; ok {
		responseType = v
	}

	params := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("protocol", "oauth2"),
		oauth2.SetAuthURLParam("response_type", s.cfg.ResponseType),
	}
	if s.cfg.AccessType != "" {
		params = append(params, oauth2.SetAuthURLParam("access_type", s.cfg.AccessType))
	}
	for k, v := range opts.Params {
		if k == "state" {
			continue
		}
		params = append(params, oauth2.SetAuthURLParam(k, v))
	}
	if s.cfg.Audience != "" {
		params = append(params, oauth2.SetAuthURLParam("audience", s.cfg.Audience))
	}

	// OpenID Connect replay protection
	nonce := ""
	if strings.Contains(responseType, "id_token") {
		nonce = opts.Nonce
		if nonce == "" {
			if nonce, err = GenerateRandomString(stateLength); err != nil {
				return nil, fmt.Errorf("failed to generate nonce: %w", err)
			}
		}
		params = append(params, oauth2.SetAuthURLParam("nonce", nonce))
	}

	return &authRequest{
		URL:   s.oauth2Config(s.RedirectURI()).AuthCodeURL(state, params...),
		State: state,
		Nonce: nonce,
	}, nil
}

// Login persists a fresh state and sends the user agent to the authorization
// endpoint. Nothing else should run on the current page afterwards.
func (s *Scheme) Login(ctx context.Context, opts LoginOptions) error {
	ctx, span := tracer.Start(ctx, "oauth2.Login", trace.WithAttributes(attribute.String("auth.strategy", s.cfg.Name)))
	defer span.End()

	req, err := s.authorizationRequest(opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	store := s.auth.Storage()
	if err := store.Set(ctx, s.cfg.stateKey(), req.State); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to save state: %w", err)
	}
	if s.cfg.VerifyNonce && req.Nonce != "" {
		if err := store.Set(ctx, s.cfg.nonceKey(), req.Nonce); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to save nonce: %w", err)
		}
	}

	s.logger.Info("redirecting to authorization endpoint", s.fields(
		logger.Field{Key: "response_type", Value: s.cfg.ResponseType},
		logger.Field{Key: "redirect_uri", Value: s.RedirectURI()},
	)...)
	loginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("auth.strategy", s.cfg.Name)))

	s.auth.Navigator().Navigate(ctx, req.URL)
	return nil
}

// Mounted runs on page load: it restores the stored token into the client,
// handles a provider callback if this is one, and otherwise loads the user.
func (s *Scheme) Mounted(ctx context.Context) error {
	token, err := s.auth.Token(ctx, s.cfg.Name)
	if err != nil {
		return err
	}
	// before the callback, so requests made while handling it still carry
	// the previous session
	if token != "" {
		s.setToken(token)
	}

	if res := s.HandleCallback(ctx); res.Redirected() {
		return nil
	}
	return s.FetchUserOnce(ctx)
}

// FetchUser loads the profile from the userinfo endpoint. Without an endpoint
// the user is authenticated with an empty profile.
func (s *Scheme) FetchUser(ctx context.Context) error {
	token, err := s.auth.Token(ctx, s.cfg.Name)
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}

	if s.cfg.UserinfoEndpoint == "" {
		s.auth.SetUser(map[string]any{})
		return nil
	}

	ctx, span := tracer.Start(ctx, "oauth2.FetchUser", trace.WithAttributes(attribute.String("auth.strategy", s.cfg.Name)))
	defer span.End()

	var user map[string]any
	err = s.client.GetJSON(ctx, s.cfg.UserinfoEndpoint, &user, httpclient.WithHeader(s.cfg.TokenName, token))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to fetch user: %w", err)
	}
	if user == nil {
		user = map[string]any{}
	}

	s.auth.SetUser(user)
	return nil
}

// FetchUserOnce fetches the user unless one is already loaded.
func (s *Scheme) FetchUserOnce(ctx context.Context) error {
	if s.auth.LoggedIn() {
		return nil
	}
	return s.FetchUser(ctx)
}

func (s *Scheme) Logout(ctx context.Context) error {
	s.clearToken()
	if err := s.auth.Reset(ctx, s.cfg.Name); err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	s.logger.Info("logged out", s.fields()...)
	return nil
}

func (s *Scheme) setToken(token string) {
	s.client.SetHeader(s.cfg.TokenName, token)
}

func (s *Scheme) clearToken() {
	s.client.ClearHeader(s.cfg.TokenName)
}

func (s *Scheme) fields(extra ...logger.Field) []logger.Field {
	fields := []logger.Field{{Key: "strategy", Value: s.cfg.Name}}
	if s.ids != nil {
		fields = append(fields, logger.Field{Key: "attempt_id", Value: s.ids.NextID()})
	}
	return append(fields, extra...)
}
