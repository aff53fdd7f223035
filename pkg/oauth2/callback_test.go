package oauth2

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"authflow/pkg/httpclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleCallback_Implicit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig(), "https://app.example.com/login#access_token=TTT&refresh_token=RRR&state=S1")
	require.NoError(t, h.store.Set(ctx, "local.state", "S1"))

	res := h.scheme.HandleCallback(ctx)

	assert.Equal(t, Handled, res.Outcome)
	assert.True(t, res.Authenticated)
	assert.True(t, res.Redirected())
	assert.NoError(t, res.Err)

	assert.Equal(t, "Bearer TTT", h.get(t, "_token.local"))
	assert.Equal(t, "Bearer RRR", h.get(t, "_refresh_token.local"))
	assert.Equal(t, "Bearer TTT", h.client.Header("Authorization"))
	assert.Equal(t, []string{"/"}, h.nav.replaced)
	assert.Empty(t, h.get(t, "local.state"))
}

func TestHandleCallback_CodeGrant(t *testing.T) {
	ctx := context.Background()

	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"AAA","refresh_token":"R2"}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.ResponseType = ResponseTypeCode
	cfg.AccessTokenEndpoint = srv.URL + "/token"
	cfg.GrantType = "authorization_code"
	cfg.Audience = "https://api.example.com"
	h := newHarness(t, cfg, "https://app.example.com/login?code=XYZ&state=S1&access_token=ignored&refresh_token=ignored")
	require.NoError(t, h.store.Set(ctx, "local.state", "S1"))

	res := h.scheme.HandleCallback(ctx)
	require.Equal(t, Handled, res.Outcome)
	assert.True(t, res.Authenticated)

	assert.Equal(t, "XYZ", form.Get("code"))
	assert.Equal(t, "client-1", form.Get("client_id"))
	assert.Equal(t, "https://app.example.com/login", form.Get("redirect_uri"))
	assert.Equal(t, "code", form.Get("response_type"))
	assert.Equal(t, "https://api.example.com", form.Get("audience"))
	assert.Equal(t, "authorization_code", form.Get("grant_type"))

	assert.Equal(t, "Bearer AAA", h.get(t, "_token.local"))
	assert.Equal(t, "Bearer R2", h.get(t, "_refresh_token.local"))
	assert.Equal(t, []string{"/"}, h.nav.replaced)
}

func TestHandleCallback_CodeIgnoredForImplicit(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("token endpoint must not be called")
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.AccessTokenEndpoint = srv.URL
	h := newHarness(t, cfg, "https://app.example.com/login?code=XYZ")

	res := h.scheme.HandleCallback(ctx)
	assert.Equal(t, Handled, res.Outcome)
	assert.False(t, res.Authenticated)
}

func TestHandleCallback_StateMismatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig(), "https://app.example.com/login#access_token=TTT&state=xyz789")
	require.NoError(t, h.store.Set(ctx, "local.state", "abc123"))

	res := h.scheme.HandleCallback(ctx)

	assert.Equal(t, Handled, res.Outcome)
	assert.False(t, res.Authenticated)
	assert.False(t, res.Redirected())
	assert.NoError(t, res.Err)
	assert.Empty(t, h.get(t, "_token.local"))
	assert.Empty(t, h.client.Header("Authorization"))
	assert.Empty(t, h.nav.replaced)
	assert.Empty(t, h.get(t, "local.state"), "state is consumed even when rejected")
}

func TestHandleCallback_Replay(t *testing.T) {
	ctx := context.Background()

	t.Run("state is single use", func(t *testing.T) {
		cfg := testConfig()
		cfg.RequireState = true
		h := newHarness(t, cfg, "https://app.example.com/login#access_token=TTT&state=S1")
		require.NoError(t, h.store.Set(ctx, "local.state", "S1"))

		first := h.scheme.HandleCallback(ctx)
		require.True(t, first.Authenticated)

		require.NoError(t, h.auth.SetToken(ctx, "local", ""))
		h.scheme.clearToken()

		second := h.scheme.HandleCallback(ctx)
		assert.Equal(t, Handled, second.Outcome)
		assert.False(t, second.Authenticated)
		assert.Empty(t, h.get(t, "_token.local"))
		assert.Empty(t, h.client.Header("Authorization"))
		assert.Len(t, h.nav.replaced, 1)
	})

	t.Run("old callback during a new login", func(t *testing.T) {
		h := newHarness(t, testConfig(), "https://app.example.com/login#access_token=TTT&state=S1")
		require.NoError(t, h.store.Set(ctx, "local.state", "S1"))
		require.True(t, h.scheme.HandleCallback(ctx).Authenticated)
		require.NoError(t, h.auth.SetToken(ctx, "local", ""))

		require.NoError(t, h.scheme.Login(ctx, LoginOptions{}))

		res := h.scheme.HandleCallback(ctx)
		assert.False(t, res.Authenticated)
		assert.Empty(t, h.get(t, "_token.local"))
	})

	t.Run("no pending login is accepted by default", func(t *testing.T) {
		h := newHarness(t, testConfig(), "https://app.example.com/login#access_token=TTT")
		res := h.scheme.HandleCallback(ctx)
		assert.True(t, res.Authenticated)
	})
}

func TestHandleCallback_FragmentWinsOverQuery(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig(), "https://app.example.com/login?access_token=QQQ&state=bad#access_token=FFF&state=S1")
	require.NoError(t, h.store.Set(ctx, "local.state", "S1"))

	res := h.scheme.HandleCallback(ctx)
	require.True(t, res.Authenticated)
	assert.Equal(t, "Bearer FFF", h.get(t, "_token.local"))
}

func TestHandleCallback_CustomKeys(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.TokenKey = "token"
	cfg.RefreshTokenKey = "refresh"
	cfg.TokenType = "JWT"
	cfg.TokenName = "X-Auth"
	h := newHarness(t, cfg, "https://app.example.com/login#token=T1&refresh=R1&access_token=ignored")

	res := h.scheme.HandleCallback(ctx)
	require.True(t, res.Authenticated)
	assert.Equal(t, "JWT T1", h.get(t, "_token.local"))
	assert.Equal(t, "JWT R1", h.get(t, "_refresh_token.local"))
	assert.Equal(t, "JWT T1", h.client.Header("X-Auth"))
	assert.Empty(t, h.client.Header("Authorization"))
}

func TestHandleCallback_NotApplicable(t *testing.T) {
	ctx := context.Background()

	t.Run("other route", func(t *testing.T) {
		h := newHarness(t, testConfig(), "https://app.example.com/profile#access_token=TTT")
		require.NoError(t, h.store.Set(ctx, "local.state", "S1"))

		res := h.scheme.HandleCallback(ctx)
		assert.Equal(t, NotApplicable, res.Outcome)
		assert.False(t, res.Redirected())
		assert.Equal(t, "S1", h.get(t, "local.state"), "state untouched")
	})

	t.Run("static render", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://app.example.com/login?access_token=TTT", nil)
		h := newHarnessWithEnv(t, testConfig(), NewServerEnvironment(req, true))

		res := h.scheme.HandleCallback(ctx)
		assert.Equal(t, NotApplicable, res.Outcome)
		assert.Empty(t, h.get(t, "_token.local"))
	})
}

func TestHandleCallback_NoToken(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testConfig(), "https://app.example.com/login?state=S1&error=access_denied")
	require.NoError(t, h.store.Set(ctx, "local.state", "S1"))

	res := h.scheme.HandleCallback(ctx)
	assert.Equal(t, Handled, res.Outcome)
	assert.False(t, res.Authenticated)
	assert.False(t, res.Redirected())
	assert.Empty(t, h.nav.replaced)
}

func TestHandleCallback_ExchangeError(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.ResponseType = ResponseTypeCode
	cfg.AccessTokenEndpoint = srv.URL
	h := newHarness(t, cfg, "https://app.example.com/login?code=XYZ&state=S1")
	require.NoError(t, h.store.Set(ctx, "local.state", "S1"))

	res := h.scheme.HandleCallback(ctx)

	assert.Equal(t, HandledWithError, res.Outcome)
	assert.True(t, res.Redirected(), "callers must still stop navigating")
	assert.False(t, res.Authenticated)
	assert.ErrorIs(t, res.Err, httpclient.ErrUnexpectedStatus)

	var se *httpclient.StatusError
	require.ErrorAs(t, res.Err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)

	assert.Empty(t, h.get(t, "_token.local"))
	assert.Empty(t, h.get(t, "local.state"))
	assert.Empty(t, h.nav.replaced)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "not_applicable", NotApplicable.String())
	assert.Equal(t, "handled", Handled.String())
	assert.Equal(t, "handled_with_error", HandledWithError.String())
	assert.Equal(t, "outcome(7)", Outcome(7).String())
}

func TestCallbackParams(t *testing.T) {
	params := callbackParams(Route{
		Query:    url.Values{"a": {"1"}, "b": {"2"}},
		Fragment: "#b=3&c=4",
	})

	assert.Equal(t, "1", params.Get("a"))
	assert.Equal(t, "3", params.Get("b"))
	assert.Equal(t, "4", params.Get("c"))
}

func TestDefaultRedirectPaths_CallbackOnLoginRoute(t *testing.T) {
	ctx := context.Background()
	paths := DefaultRedirectPaths()
	assert.Equal(t, paths.Login, paths.Callback)

	h := newHarness(t, testConfig(), "https://app.example.com/callback#access_token=TTT")
	assert.Equal(t, NotApplicable, h.scheme.HandleCallback(ctx).Outcome)

	h = newHarness(t, testConfig(), "https://app.example.com/login#access_token=TTT")
	assert.True(t, h.scheme.HandleCallback(ctx).Authenticated)
}
