package guard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"authflow/pkg/httpclient"
	"authflow/pkg/logger"
	"authflow/pkg/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockNavigator struct {
	mock.Mock
}

func (m *MockNavigator) Navigate(ctx context.Context, location string) {
	m.Called(ctx, location)
}

func (m *MockNavigator) Replace(ctx context.Context, path string) {
	m.Called(ctx, path)
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/locations", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"token":"fresh"}`))
		case "Bearer empty":
			_, _ = w.Write([]byte(`{}`))
		case "":
			http.Redirect(w, r, "/api/login", http.StatusFound)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		// reached only if the redirect is followed
		_, _ = w.Write([]byte(`{"token":"followed"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newGuard(t *testing.T, backend *httptest.Server, store storage.Storage, nav *MockNavigator) (*Guard, *httpclient.Client) {
	t.Helper()
	client, err := httpclient.New(httpclient.NoRedirect(backend.Client()), backend.URL+"/api")
	require.NoError(t, err)
	return New(client, NewSecurityStore(store), nav, WithLogger(logger.Nop())), client
}

func TestGuard_Check(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)

	t.Run("accepted session redirects home", func(t *testing.T) {
		store := storage.NewMemory(0)
		require.NoError(t, store.Set(ctx, tokenKey, "good"))
		nav := &MockNavigator{}
		nav.On("Replace", mock.Anything, "/").Once()

		g, client := newGuard(t, backend, store, nav)
		ok, err := g.Check(ctx)
		require.NoError(t, err)
		assert.True(t, ok)

		sec := NewSecurityStore(store)
		status, _ := sec.Status(ctx)
		token, _ := sec.Token(ctx)
		assert.Equal(t, StatusAuthenticated, status)
		assert.Equal(t, "fresh", token)
		assert.Equal(t, "Bearer good", client.Header("Authorization"))
		nav.AssertExpectations(t)
	})

	t.Run("rejected token", func(t *testing.T) {
		store := storage.NewMemory(0)
		require.NoError(t, store.Set(ctx, tokenKey, "expired"))
		nav := &MockNavigator{}

		g, _ := newGuard(t, backend, store, nav)
		ok, err := g.Check(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		sec := NewSecurityStore(store)
		status, _ := sec.Status(ctx)
		msg, _ := sec.LastError(ctx)
		token, _ := sec.Token(ctx)
		assert.Equal(t, StatusFailed, status)
		assert.Contains(t, msg, "401")
		assert.Equal(t, "expired", token)
		nav.AssertNotCalled(t, "Replace", mock.Anything, mock.Anything)
	})

	t.Run("redirects are not followed", func(t *testing.T) {
		store := storage.NewMemory(0)
		nav := &MockNavigator{}

		g, client := newGuard(t, backend, store, nav)
		client.SetHeader("Authorization", "Bearer leftover")

		ok, err := g.Check(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, client.Header("Authorization"), "no stored token clears the header")

		status, _ := NewSecurityStore(store).Status(ctx)
		assert.Equal(t, StatusFailed, status)
		nav.AssertNotCalled(t, "Replace", mock.Anything, mock.Anything)
	})

	t.Run("body without token keeps the stored token", func(t *testing.T) {
		store := storage.NewMemory(0)
		require.NoError(t, store.Set(ctx, tokenKey, "empty"))
		nav := &MockNavigator{}
		nav.On("Replace", mock.Anything, "/").Once()

		g, _ := newGuard(t, backend, store, nav)
		ok, err := g.Check(ctx)
		require.NoError(t, err)
		assert.True(t, ok)

		sec := NewSecurityStore(store)
		status, _ := sec.Status(ctx)
		token, _ := sec.Token(ctx)
		assert.Equal(t, StatusAuthenticated, status)
		assert.Equal(t, "empty", token)
		nav.AssertExpectations(t)
	})

	t.Run("backend down", func(t *testing.T) {
		down := httptest.NewServer(http.NotFoundHandler())
		down.Close()

		store := storage.NewMemory(0)
		client, err := httpclient.New(nil, down.URL)
		require.NoError(t, err)
		g := New(client, NewSecurityStore(store), &MockNavigator{})

		ok, err := g.Check(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		status, _ := NewSecurityStore(store).Status(ctx)
		assert.Equal(t, StatusFailed, status)
	})

	t.Run("storage failure is returned", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		g, _ := newGuard(t, backend, storage.NewMemory(0), &MockNavigator{})
		_, err := g.Check(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("success clears a previous failure", func(t *testing.T) {
		store := storage.NewMemory(0)
		sec := NewSecurityStore(store)
		require.NoError(t, sec.Fail(ctx, errors.New("backend unavailable")))
		require.NoError(t, store.Set(ctx, tokenKey, "good"))
		nav := &MockNavigator{}
		nav.On("Replace", mock.Anything, "/").Once()

		g, _ := newGuard(t, backend, store, nav)
		ok, err := g.Check(ctx)
		require.NoError(t, err)
		assert.True(t, ok)

		msg, _ := sec.LastError(ctx)
		assert.Empty(t, msg)
	})
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	backend := newBackend(t)
	shared := storage.NewMemory(0)

	r := gin.New()
	r.GET("/login", Middleware(MiddlewareConfig{
		Storage:    storage.Shared(shared),
		HTTPClient: backend.Client(),
		APIBaseURL: backend.URL + "/api",
	}), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"page": "login"})
	})

	t.Run("no session renders the route", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "login")
	})

	t.Run("live session is sent home", func(t *testing.T) {
		require.NoError(t, shared.Set(context.Background(), tokenKey, "good"))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
		assert.NotContains(t, rec.Body.String(), "page")
	})
}
