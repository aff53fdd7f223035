package oauth2

import (
	"errors"
	"fmt"
	"net/url"
)

const (
	ResponseTypeToken = "token"
	ResponseTypeCode  = "code"

	DefaultTokenType       = "Bearer"
	DefaultTokenName       = "Authorization"
	DefaultTokenKey        = "access_token"
	DefaultRefreshTokenKey = "refresh_token"
)

var ErrInvalidConfig = errors.New("invalid oauth2 config")

// ClientConfig describes one strategy talking to one authorization server.
// Build it once, pass it through WithDefaults and Validate, and never mutate it.
type ClientConfig struct {
	// Name is the strategy name; it namespaces every stored key.
	Name     string
	ClientID string
	Scope    []string

	AuthorizationEndpoint string
	AccessTokenEndpoint   string
	UserinfoEndpoint      string

	// RedirectURI overrides the callback URL otherwise derived from the
	// current origin on every use.
	RedirectURI string

	ResponseType string
	AccessType   string
	GrantType    string
	TokenType    string
	Audience     string

	// TokenKey and RefreshTokenKey name the callback parameters holding the tokens.
	TokenKey        string
	RefreshTokenKey string

	// TokenName is the HTTP header carrying the session token.
	TokenName string

	// RequireState rejects callbacks that arrive with no pending login, so a
	// replayed callback cannot authenticate once its state was consumed.
	// Off by default: a callback is then accepted whenever no state is stored,
	// and a consumed callback only fails while a newer login is pending.
	RequireState bool

	// VerifyNonce turns on id_token nonce checks. Off by default: the nonce
	// is sent to the provider and left to downstream token validation.
	VerifyNonce bool
	Issuer      string
}

// WithDefaults fills every unset optional field.
func (c ClientConfig) WithDefaults() ClientConfig {
	if c.ResponseType == "" {
		c.ResponseType = ResponseTypeToken
	}
	if c.TokenType == "" {
		c.TokenType = DefaultTokenType
	}
	if c.TokenName == "" {
		c.TokenName = DefaultTokenName
	}
	if c.TokenKey == "" {
		c.TokenKey = DefaultTokenKey
	}
	if c.RefreshTokenKey == "" {
		c.RefreshTokenKey = DefaultRefreshTokenKey
	}
	c.Scope = append([]string(nil), c.Scope...)
	return c
}

func (c ClientConfig) Validate() error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.ClientID == "" {
		errs = append(errs, errors.New("client_id is required"))
	}
	if err := validateEndpoint("authorization_endpoint", c.AuthorizationEndpoint, true); err != nil {
		errs = append(errs, err)
	}
	if err := validateEndpoint("access_token_endpoint", c.AccessTokenEndpoint, c.ResponseType == ResponseTypeCode); err != nil {
		errs = append(errs, err)
	}
	if err := validateEndpoint("userinfo_endpoint", c.UserinfoEndpoint, false); err != nil {
		errs = append(errs, err)
	}
	if c.VerifyNonce && c.Issuer == "" {
		errs = append(errs, errors.New("issuer is required when nonce verification is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, c.Name, errors.Join(errs...))
	}
	return nil
}

func validateEndpoint(field, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%s must be an absolute url", field)
	}
	return nil
}

// withTokenType renders a raw token as "<type> <token>".
func (c ClientConfig) withTokenType(raw string) string {
	if c.TokenType == "" {
		return raw
	}
	return c.TokenType + " " + raw
}

func (c ClientConfig) stateKey() string {
	return c.Name + ".state"
}

func (c ClientConfig) nonceKey() string {
	return c.Name + ".nonce"
}
