package oauth2

import (
	"errors"
	"fmt"
	"sort"

	"authflow/pkg/httpclient"
	"authflow/pkg/idgen"
	"authflow/pkg/logger"
)

var ErrStrategyNotFound = errors.New("strategy not found")

type strategy struct {
	cfg    ClientConfig
	nonces *NonceVerifier
}

// Manager holds the validated strategy configurations and builds a Scheme for
// each user agent that needs one.
type Manager struct {
	strategies map[string]strategy
	paths      RedirectPaths
	logger     logger.Logger
	ids        idgen.Generator
}

// NewManager creates a manager. ids may be nil.
func NewManager(paths RedirectPaths, log logger.Logger, ids idgen.Generator) *Manager {
	return &Manager{
		strategies: make(map[string]strategy),
		paths:      paths,
		logger:     log,
		ids:        ids,
	}
}

// RegisterStrategy validates cfg and makes it available under cfg.Name.
// nonces is required when cfg.VerifyNonce is set.
func (m *Manager) RegisterStrategy(cfg ClientConfig, nonces *NonceVerifier) error {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.VerifyNonce && nonces == nil {
		return fmt.Errorf("%w: %s", ErrNonceVerifierMissing, cfg.Name)
	}

	m.strategies[cfg.Name] = strategy{cfg: cfg, nonces: nonces}
	m.logger.Info("strategy registered",
		logger.Field{Key: "strategy", Value: cfg.Name},
		logger.Field{Key: "response_type", Value: cfg.ResponseType},
	)
	return nil
}

func (m *Manager) Strategies() []string {
	names := make([]string, 0, len(m.strategies))
	for name := range m.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) Paths() RedirectPaths {
	return m.paths
}

// Scheme binds strategy name to one user agent's auth state, environment and
// HTTP client.
func (m *Manager) Scheme(name string, auth *Auth, env Environment, client *httpclient.Client) (*Scheme, error) {
	st, ok := m.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStrategyNotFound, name)
	}

	opts := []Option{WithLogger(m.logger)}
	if m.ids != nil {
		opts = append(opts, WithIDGenerator(m.ids))
	}
	if st.nonces != nil {
		opts = append(opts, WithNonceVerifier(st.nonces))
	}
	return NewScheme(st.cfg, auth, env, client, opts...)
}
