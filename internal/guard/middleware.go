package guard

import (
	"net/http"

	"authflow/pkg/httpclient"
	"authflow/pkg/logger"
	"authflow/pkg/oauth2"
	"authflow/pkg/storage"

	"github.com/gin-gonic/gin"
)

type MiddlewareConfig struct {
	Storage    storage.Provider
	HTTPClient *http.Client
	// APIBaseURL is where the check path is resolved.
	APIBaseURL string
	CheckPath  string
	HomePath   string
	Logger     logger.Logger
}

// Middleware runs a session check before the guarded route. Requests that
// were redirected home are aborted; the rest continue with the outcome
// available through SecurityStore.
func Middleware(cfg MiddlewareConfig) gin.HandlerFunc {
	base := cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	noRedirect := httpclient.NoRedirect(base)

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	opts := []Option{WithLogger(log)}
	if cfg.CheckPath != "" {
		opts = append(opts, WithCheckPath(cfg.CheckPath))
	}
	if cfg.HomePath != "" {
		opts = append(opts, WithHomePath(cfg.HomePath))
	}

	return func(c *gin.Context) {
		store, err := cfg.Storage.ForRequest(c.Writer, c.Request)
		if err != nil {
			log.Error("failed to open session storage", logger.Err(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
			return
		}

		client, err := httpclient.New(noRedirect, cfg.APIBaseURL)
		if err != nil {
			log.Error("failed to build api client", logger.Err(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "api unavailable"})
			return
		}

		nav := oauth2.NewGinNavigator(c)
		g := New(client, NewSecurityStore(store), nav, opts...)
		if _, err := g.Check(c.Request.Context()); err != nil {
			log.Error("session check could not be recorded", logger.Err(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
			return
		}

		if nav.Navigated() {
			c.Abort()
			return
		}
		c.Next()
	}
}
