package portalauth

import (
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medportal/portalauth/api"
	"github.com/medportal/portalauth/gateway"
	"github.com/medportal/portalauth/guard"
	"github.com/medportal/portalauth/nav"
	"github.com/medportal/portalauth/session"
	"github.com/medportal/portalauth/verification"
)

// Builder assembles a Client. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	backend   session.Backend
	navigator nav.Navigator
	transport http.RoundTripper
	scheduler verification.Scheduler
	routes    guard.Table
	logger    *zerolog.Logger
	auditSink AuditSink

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis supplies the client used by the redis session backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionBackend overrides the backend selected by Config.Session.Backend.
func (b *Builder) WithSessionBackend(backend session.Backend) *Builder {
	b.backend = backend
	return b
}

func (b *Builder) WithNavigator(n nav.Navigator) *Builder {
	b.navigator = n
	return b
}

// WithHTTPTransport sets the transport under the session gateway.
func (b *Builder) WithHTTPTransport(rt http.RoundTripper) *Builder {
	b.transport = rt
	return b
}

func (b *Builder) WithScheduler(s verification.Scheduler) *Builder {
	b.scheduler = s
	return b
}

func (b *Builder) WithRoutes(t guard.Table) *Builder {
	b.routes = t
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}

	// -------- SESSION STORE --------
	backend := b.backend
	if backend == nil {
		switch cfg.Session.Backend {
		case SessionBackendFile:
			backend = session.NewFileBackend(cfg.Session.FilePath)
		case SessionBackendRedis:
			if b.redis == nil {
				return nil, errors.New("redis client required for the redis session backend")
			}
			backend = session.NewRedisBackend(b.redis, cfg.Session.RedisTTL)
		default:
			backend = session.NewMemoryBackend()
		}
	}
	store := session.NewStore(backend, cfg.Session.KeyPrefix, logger.With().Str("component", "session").Logger())

	// -------- NAVIGATION --------
	navigator := b.navigator
	if navigator == nil {
		navigator = nav.NewRouter(nav.Location{Path: "/", View: nav.ViewPublic})
	}
	routes := b.routes
	if routes == nil {
		routes = guard.DefaultTable()
	}

	client := &Client{
		config:    cfg,
		log:       logger,
		store:     store,
		navigator: navigator,
		guard:     guard.New(store),
		routes:    routes,
		scheduler: b.scheduler,
		audit:     newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:   NewMetrics(cfg.Metrics),
	}

	// -------- TRANSPORT --------
	base := b.transport
	if base == nil {
		base = http.DefaultTransport
	}
	client.http = gateway.NewClient(
		timedTransport{base: base, metrics: client.metrics},
		store,
		navigator,
		gateway.Options{
			Logger:       logger.With().Str("component", "gateway").Logger(),
			OnInvalidate: client.onInvalidate,
			Timeout:      cfg.API.Timeout,
		},
	)
	client.api = api.New(cfg.API.BaseURL, client.http, logger.With().Str("component", "api").Logger())

	b.built = true

	return client, nil
}
