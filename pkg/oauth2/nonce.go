package oauth2

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

var ErrNonceMismatch = errors.New("nonce mismatch")

// NonceVerifier checks an id_token's signature, issuer and audience, then
// compares its nonce with the one sent in the authorization request.
type NonceVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewNonceVerifier discovers the issuer's signing keys.
func NewNonceVerifier(ctx context.Context, issuer, clientID string) (*NonceVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return &NonceVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// NewStaticNonceVerifier verifies against a fixed key set instead of discovery.
func NewStaticNonceVerifier(issuer, clientID string, keys oidc.KeySet) *NonceVerifier {
	return &NonceVerifier{
		verifier: oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: clientID}),
	}
}

func (v *NonceVerifier) Verify(ctx context.Context, rawIDToken, nonce string) error {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return fmt.Errorf("failed to verify ID token: %w", err)
	}

	if idToken.Nonce != nonce {
		return ErrNonceMismatch
	}
	return nil
}
