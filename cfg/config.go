package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"authflow/pkg/oauth2"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageBolt   = "bolt"
	StorageCookie = "cookie"
)

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

type StorageConfig struct {
	Driver string        `env:"STORAGE_DRIVER" envDefault:"memory"`
	TTL    time.Duration `env:"STORAGE_TTL" envDefault:"24h"`
	// Secure marks session cookies Secure; turn off only for local http.
	Secure         bool   `env:"COOKIE_SECURE" envDefault:"true"`
	BoltPath       string `env:"BOLT_PATH"`
	CookieHashKey  string `env:"COOKIE_HASH_KEY"`
	CookieBlockKey string `env:"COOKIE_BLOCK_KEY"`
	Redis          RedisConfig
}

// OAuth2Config is the single strategy served by the demo server.
type OAuth2Config struct {
	Name                  string   `env:"OAUTH2_NAME" envDefault:"oauth2"`
	ClientID              string   `env:"OAUTH2_CLIENT_ID,required"`
	Scope                 []string `env:"OAUTH2_SCOPE" envSeparator:","`
	AuthorizationEndpoint string   `env:"OAUTH2_AUTHORIZATION_ENDPOINT,required"`
	AccessTokenEndpoint   string   `env:"OAUTH2_ACCESS_TOKEN_ENDPOINT"`
	UserinfoEndpoint      string   `env:"OAUTH2_USERINFO_ENDPOINT"`
	RedirectURI           string   `env:"OAUTH2_REDIRECT_URI"`
	ResponseType          string   `env:"OAUTH2_RESPONSE_TYPE" envDefault:"token"`
	AccessType            string   `env:"OAUTH2_ACCESS_TYPE"`
	GrantType             string   `env:"OAUTH2_GRANT_TYPE"`
	TokenType             string   `env:"OAUTH2_TOKEN_TYPE" envDefault:"Bearer"`
	Audience              string   `env:"OAUTH2_AUDIENCE"`
	TokenKey              string   `env:"OAUTH2_TOKEN_KEY" envDefault:"access_token"`
	RefreshTokenKey       string   `env:"OAUTH2_REFRESH_TOKEN_KEY" envDefault:"refresh_token"`
	TokenName             string   `env:"OAUTH2_TOKEN_NAME" envDefault:"Authorization"`
	RequireState          bool     `env:"OAUTH2_REQUIRE_STATE" envDefault:"false"`
	VerifyNonce           bool     `env:"OAUTH2_VERIFY_NONCE" envDefault:"false"`
	Issuer                string   `env:"OAUTH2_ISSUER"`
}

type RedirectConfig struct {
	Login    string `env:"AUTH_REDIRECT_LOGIN" envDefault:"/login"`
	Logout   string `env:"AUTH_REDIRECT_LOGOUT" envDefault:"/"`
	Callback string `env:"AUTH_REDIRECT_CALLBACK" envDefault:"/callback"`
	Home     string `env:"AUTH_REDIRECT_HOME" envDefault:"/"`
}

type OtelConfig struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"authflow"`
}

type Config struct {
	AppEnv     string
	AppPort    string
	APIBaseURL string
	// NodeID seeds the attempt id generator; unique per instance.
	NodeID   int64 `env:"APP_NODE_ID" envDefault:"1"`
	Storage  StorageConfig
	OAuth2   OAuth2Config
	Redirect RedirectConfig
	Otel     OtelConfig
}

func Load() (*Config, error) {
	var errs []error

	// a missing .env is fine when the environment is provided another way
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.New("failed load cfg: " + err.Error())
	}

	config := &Config{
		AppEnv:     mustEnv("APP_ENV", &errs),
		AppPort:    envOr("APP_PORT", "8080"),
		APIBaseURL: mustEnv("API_BASE_URL", &errs),
	}
	if err := env.Parse(config); err != nil {
		errs = append(errs, fmt.Errorf("parse env: %w", err))
	}

	switch config.Storage.Driver {
	case StorageMemory:
	case StorageRedis:
		config.Storage.Redis = RedisConfig{
			Host:     mustEnv("REDIS_HOST", &errs),
			Port:     mustEnv("REDIS_PORT", &errs),
			Password: os.Getenv("REDIS_PASSWORD"),
		}
	case StorageBolt:
		mustEnv("BOLT_PATH", &errs)
	case StorageCookie:
		if n := len(mustEnv("COOKIE_HASH_KEY", &errs)); n > 0 && n < 32 {
			errs = append(errs, errors.New("COOKIE_HASH_KEY must be at least 32 bytes"))
		}
		switch len(config.Storage.CookieBlockKey) {
		case 0, 16, 24, 32:
		default:
			errs = append(errs, errors.New("COOKIE_BLOCK_KEY must be 16, 24 or 32 bytes"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER: %q", config.Storage.Driver))
	}

	// both are served as routes by the same router
	if config.Redirect.Callback == config.Redirect.Login {
		errs = append(errs, errors.New("AUTH_REDIRECT_CALLBACK must differ from AUTH_REDIRECT_LOGIN"))
	}

	if len(errs) == 0 {
		if err := config.OAuth2.ClientConfig().WithDefaults().Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return config, nil
}

func (c OAuth2Config) ClientConfig() oauth2.ClientConfig {
	return oauth2.ClientConfig{
		Name:                  c.Name,
		ClientID:              c.ClientID,
		Scope:                 c.Scope,
		AuthorizationEndpoint: c.AuthorizationEndpoint,
		AccessTokenEndpoint:   c.AccessTokenEndpoint,
		UserinfoEndpoint:      c.UserinfoEndpoint,
		RedirectURI:           c.RedirectURI,
		ResponseType:          c.ResponseType,
		AccessType:            c.AccessType,
		GrantType:             c.GrantType,
		TokenType:             c.TokenType,
		Audience:              c.Audience,
		TokenKey:              c.TokenKey,
		RefreshTokenKey:       c.RefreshTokenKey,
		TokenName:             c.TokenName,
		RequireState:          c.RequireState,
		VerifyNonce:           c.VerifyNonce,
		Issuer:                c.Issuer,
	}
}

func (r RedirectConfig) Paths() oauth2.RedirectPaths {
	return oauth2.RedirectPaths{
		Login:    r.Login,
		Logout:   r.Logout,
		Callback: r.Callback,
		Home:     r.Home,
	}
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

func mustEnv(key string, errs *[]error) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		*errs = append(*errs, errors.New("missing env: "+key))
	}
	return value
}

func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
