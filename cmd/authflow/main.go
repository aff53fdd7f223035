package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"authflow/cfg"
	"authflow/internal/guard"
	"authflow/pkg/idgen"
	"authflow/pkg/logger"
	"authflow/pkg/oauth2"
	"authflow/pkg/storage"
	"authflow/pkg/telemetry"

	_ "authflow/cmd/authflow/docs" // swagger docs

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// @title           Authflow API
// @version         1.0
// @description     OAuth2 implicit and authorization code login with a backend session guard.
// @BasePath        /
// @schemes         http https
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ============
	// config
	// ============
	config, errCfg := cfg.Load()
	if errCfg != nil {
		log.Fatal(errCfg)
	}

	// ============
	// logger
	// ============
	zlogger := logger.NewZeroLog(config.AppEnv)

	// ============
	// Otel
	// ============
	if config.Otel.Enabled {
		shutdownOtel, err := telemetry.Init(ctx, telemetry.Config{
			Endpoint:    config.Otel.Endpoint,
			ServiceName: config.Otel.ServiceName,
			Environment: config.AppEnv,
		}, zlogger)
		if err != nil {
			zlogger.Warn("continuing without tracing/metrics", logger.Err(err))
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownOtel(ctx); err != nil {
					zlogger.Error("failed to shutdown OpenTelemetry", logger.Err(err))
				}
			}()
		}
	}

	// ============
	// Storage
	// ============
	store, closeStore, err := openStorage(config.Storage)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := closeStore.Close(); err != nil {
			zlogger.Error("failed to close storage", logger.Err(err))
		}
	}()

	// ============
	// Oauth2
	// ============
	ids, err := idgen.NewSnowflakeGenerator(config.NodeID)
	if err != nil {
		log.Fatal(err)
	}
	paths := config.Redirect.Paths()
	manager := oauth2.NewManager(paths, zlogger, ids)

	strategy := config.OAuth2.ClientConfig()
	var nonces *oauth2.NonceVerifier
	if strategy.VerifyNonce {
		nonces, err = oauth2.NewNonceVerifier(ctx, strategy.Issuer, strategy.ClientID)
		if err != nil {
			log.Fatal(err)
		}
	}
	if err := manager.RegisterStrategy(strategy, nonces); err != nil {
		log.Fatal(err)
	}

	// ============
	// External Service
	// ============
	httpClient := &http.Client{
		Timeout: 10 * time.Second,
	}
	oauth2Handler := oauth2.NewHandler(manager, store, httpClient, false, zlogger)

	// ============
	// HTTP
	// ============
	r := gin.Default()
	r.Use(otelgin.Middleware(config.Otel.ServiceName))
	r.Use(telemetry.TraceLoggerMiddleware(zlogger))

	oauth2Handler.RegisterRoutes(r)
	r.GET(paths.Login, guard.Middleware(guard.MiddlewareConfig{
		Storage:    store,
		HTTPClient: httpClient,
		APIBaseURL: config.APIBaseURL,
		HomePath:   paths.Home,
		Logger:     zlogger,
	}), loginPageHandler(manager, store))
	initSwagger(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", config.AppPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlogger.Error("server stopped", logger.Err(err))
			stop()
		}
	}()
	zlogger.Info("server started", logger.Field{Key: "addr", Value: srv.Addr})

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlogger.Error("failed to shutdown server", logger.Err(err))
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStorage picks the backend named by config. Shared backends are scoped
// per browser with a session cookie.
func openStorage(config cfg.StorageConfig) (storage.Provider, io.Closer, error) {
	switch config.Driver {
	case cfg.StorageRedis:
		client := storage.NewRedisClient(config.Redis.Addr(), config.Redis.Password)
		backend := storage.NewRedisStorage(client, config.TTL)
		return storage.NewSessionScoped(backend, config.Secure), backend, nil
	case cfg.StorageBolt:
		backend, err := storage.OpenBolt(config.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewSessionScoped(backend, config.Secure), backend, nil
	case cfg.StorageCookie:
		var blockKey []byte
		if config.CookieBlockKey != "" {
			blockKey = []byte(config.CookieBlockKey)
		}
		jar := storage.NewCookieJar([]byte(config.CookieHashKey), blockKey, config.Secure)
		local := storage.NewSessionScoped(storage.NewMemory(config.TTL), config.Secure)
		return storage.UniversalProvider(jar, local), nopCloser{}, nil
	default:
		return storage.NewSessionScoped(storage.NewMemory(config.TTL), config.Secure), nopCloser{}, nil
	}
}

// loginPageHandler lists the available strategies and the last session check
// @Summary Login page
// @Description Runs the session guard; sessions the backend accepts are redirected home
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]interface{} "Strategies and session status"
// @Success 303 {string} string "Redirect home"
// @Router /login [get]
func loginPageHandler(manager *oauth2.Manager, store storage.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := store.ForRequest(c.Writer, c.Request)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
			return
		}

		security := guard.NewSecurityStore(s)
		status, _ := security.Status(c.Request.Context())
		lastErr, _ := security.LastError(c.Request.Context())

		strategies := make([]gin.H, 0)
		for _, name := range manager.Strategies() {
			strategies = append(strategies, gin.H{
				"name":  name,
				"login": "/oauth2/" + name + "/login",
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"strategies": strategies,
			"status":     status,
			"error":      lastErr,
		})
	}
}

func initSwagger(r *gin.Engine) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		html := `<!DOCTYPE html>
<html>
<head>
    <title>API Documentation</title>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1">
</head>
<body>
    <script id="api-reference" data-url="/swagger/doc.json"></script>
    <script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
</body>
</html>`
		c.String(200, html)
	})
}
