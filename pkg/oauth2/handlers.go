package oauth2

import (
	"context"
	"errors"
	"net/http"

	"authflow/pkg/httpclient"
	"authflow/pkg/logger"
	"authflow/pkg/storage"

	"github.com/gin-gonic/gin"
)

// GinNavigator turns navigation into HTTP redirects on a gin response.
type GinNavigator struct {
	c         *gin.Context
	navigated bool
}

func NewGinNavigator(c *gin.Context) *GinNavigator {
	return &GinNavigator{c: c}
}

func (n *GinNavigator) Navigate(_ context.Context, location string) {
	n.c.Redirect(http.StatusFound, location)
	n.navigated = true
}

func (n *GinNavigator) Replace(_ context.Context, path string) {
	n.c.Redirect(http.StatusSeeOther, path)
	n.navigated = true
}

// Navigated reports whether a redirect has been written.
func (n *GinNavigator) Navigated() bool {
	return n.navigated
}

// Handler serves the flow to browsers talking to this process directly.
type Handler struct {
	manager    *Manager
	storage    storage.Provider
	httpClient *http.Client
	static     bool
	logger     logger.Logger
}

func NewHandler(manager *Manager, store storage.Provider, httpClient *http.Client, static bool, log logger.Logger) *Handler {
	return &Handler{
		manager:    manager,
		storage:    store,
		httpClient: httpClient,
		static:     static,
		logger:     log,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/oauth2/:strategy/login", h.LoginHandler)
	r.GET("/oauth2/:strategy/me", h.MeHandler)
	r.POST("/oauth2/:strategy/refresh", h.RefreshHandler)
	r.POST("/oauth2/:strategy/logout", h.LogoutHandler)
	r.GET(h.manager.Paths().Callback, h.CallbackHandler)
}

func (h *Handler) auth(c *gin.Context) (*Auth, *GinNavigator, error) {
	store, err := h.storage.ForRequest(c.Writer, c.Request)
	if err != nil {
		return nil, nil, err
	}
	nav := NewGinNavigator(c)
	return NewAuth(store, nav, h.manager.Paths()), nav, nil
}

func (h *Handler) scheme(c *gin.Context, name string, auth *Auth) (*Scheme, error) {
	client, err := httpclient.New(h.httpClient, "")
	if err != nil {
		return nil, err
	}
	return h.manager.Scheme(name, auth, NewServerEnvironment(c.Request, h.static), client)
}

func (h *Handler) session(c *gin.Context, name string) (*Scheme, *Auth, *GinNavigator, bool) {
	auth, nav, err := h.auth(c)
	if err != nil {
		h.logger.Error("failed to open session storage", logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
		return nil, nil, nil, false
	}

	scheme, err := h.scheme(c, name, auth)
	if errors.Is(err, ErrStrategyNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, nil, nil, false
	}
	if err != nil {
		h.logger.Error("failed to build scheme", logger.Err(err), logger.Field{Key: "strategy", Value: name})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "strategy unavailable"})
		return nil, nil, nil, false
	}
	return scheme, auth, nav, true
}

// LoginHandler starts the OAuth2 flow
// @Summary Start OAuth2 login
// @Description Stores a fresh state and redirects to the provider's authorization endpoint
// @Tags oauth2
// @Produce json
// @Param strategy path string true "Strategy name"
// @Success 302 {string} string "Redirect"
// @Failure 404 {object} map[string]string "Unknown strategy"
// @Router /oauth2/{strategy}/login [get]
func (h *Handler) LoginHandler(c *gin.Context) {
	name := c.Param("strategy")
	scheme, auth, _, ok := h.session(c, name)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := auth.SetStrategy(ctx, name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := scheme.Login(ctx, LoginOptions{}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
}

// CallbackHandler handles the provider redirect
// @Summary OAuth2 callback
// @Description Validates state, exchanges the code when needed, stores the token and redirects home
// @Tags oauth2
// @Produce json
// @Param code query string false "Authorization code"
// @Param state query string false "State issued at login"
// @Success 303 {string} string "Redirect home"
// @Failure 401 {object} map[string]string "Not authenticated"
// @Router /callback [get]
func (h *Handler) CallbackHandler(c *gin.Context) {
	ctx := c.Request.Context()

	auth, nav, err := h.auth(c)
	if err != nil {
		h.logger.Error("failed to open session storage", logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
		return
	}

	name, err := auth.Strategy(ctx)
	if err != nil || name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no login in progress"})
		return
	}

	scheme, err := h.scheme(c, name, auth)
	if err != nil {
		h.logger.Error("failed to build scheme", logger.Err(err), logger.Field{Key: "strategy", Value: name})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "strategy unavailable"})
		return
	}

	scheme.HandleCallback(ctx)
	if nav.Navigated() {
		return
	}
	// rejected callbacks get no detail
	c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
}

// MeHandler returns the authenticated user profile
// @Summary Get authenticated user info
// @Description Restores the stored token and returns the user from the userinfo endpoint
// @Tags oauth2
// @Produce json
// @Param strategy path string true "Strategy name"
// @Success 200 {object} map[string]interface{} "User info"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /oauth2/{strategy}/me [get]
func (h *Handler) MeHandler(c *gin.Context) {
	scheme, auth, _, ok := h.session(c, c.Param("strategy"))
	if !ok {
		return
	}

	if err := scheme.Mounted(c.Request.Context()); err != nil {
		h.logger.Warn("failed to load user", logger.Err(err), logger.Field{Key: "strategy", Value: scheme.Name()})
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load user"})
		return
	}

	user, loggedIn := auth.User()
	if !loggedIn {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// RefreshHandler refreshes the access token using the refresh token
// @Summary Refresh access token
// @Description Uses the stored refresh token to obtain a new access token
// @Tags oauth2
// @Produce json
// @Param strategy path string true "Strategy name"
// @Success 200 {object} map[string]string "Token refreshed"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /oauth2/{strategy}/refresh [post]
func (h *Handler) RefreshHandler(c *gin.Context) {
	scheme, _, _, ok := h.session(c, c.Param("strategy"))
	if !ok {
		return
	}

	err := scheme.Refresh(c.Request.Context())
	if errors.Is(err, ErrNoRefreshToken) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Warn("refresh failed", logger.Err(err), logger.Field{Key: "strategy", Value: scheme.Name()})
		c.JSON(http.StatusBadGateway, gin.H{"error": "refresh failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "token refreshed"})
}

// LogoutHandler logs out the user by clearing the stored tokens
// @Summary Logout
// @Description Clears the strategy's tokens and user
// @Tags oauth2
// @Produce json
// @Param strategy path string true "Strategy name"
// @Success 200 {object} map[string]string "Logged out"
// @Router /oauth2/{strategy}/logout [post]
func (h *Handler) LogoutHandler(c *gin.Context) {
	scheme, _, _, ok := h.session(c, c.Param("strategy"))
	if !ok {
		return
	}

	if err := scheme.Logout(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
