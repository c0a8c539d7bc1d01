package devserver

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medportal/portalauth/internal/rate"
	"github.com/medportal/portalauth/internal/stores"
	"github.com/medportal/portalauth/jwt"
	"github.com/medportal/portalauth/password"
)

const (
	defaultCodeTTL    = 5 * time.Minute
	defaultCodeDigits = 5
	defaultAccessTTL  = 15 * time.Minute
	defaultBotName    = "medportal_bot"
)

// Options configures a Server. Redis is required; everything else has a default.
type Options struct {
	Redis  redis.UniversalClient
	Prefix string

	// JWT signs access tokens. A zero value selects HS256 with a random key.
	JWT      jwt.Config
	Password password.Config
	Limits   rate.Config

	CodeTTL       time.Duration
	CodeDigits    int
	BotName       string
	WebhookSecret string

	Logger zerolog.Logger
}

// Server is the development backend.
type Server struct {
	echo    *echo.Echo
	users   *stores.UserStore
	codes   *stores.CodeStore
	limiter *rate.Limiter
	tokens  *jwt.Manager
	hasher  *password.Argon2
	metrics *serverMetrics
	log     zerolog.Logger

	codeTTL       time.Duration
	codeDigits    int
	botName       string
	webhookSecret string
}

func New(opts Options) (*Server, error) {
	if opts.Redis == nil {
		return nil, errors.New("devserver requires a redis client")
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = defaultCodeTTL
	}
	if opts.CodeDigits == 0 {
		opts.CodeDigits = defaultCodeDigits
	}
	if opts.BotName == "" {
		opts.BotName = defaultBotName
	}
	if opts.Limits == (rate.Config{}) {
		opts.Limits = rate.DefaultConfig()
	}
	if opts.Password == (password.Config{}) {
		opts.Password = password.DefaultConfig()
	}
	if opts.JWT.SigningMethod == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		opts.JWT = jwt.Config{
			AccessTTL:     defaultAccessTTL,
			SigningMethod: jwt.MethodHS256,
			PrivateKey:    key,
			Issuer:        "portal-devserver",
		}
	}

	tokens, err := jwt.NewManager(opts.JWT)
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}
	hasher, err := password.NewArgon2(opts.Password)
	if err != nil {
		return nil, fmt.Errorf("password: %w", err)
	}

	s := &Server{
		users:         stores.NewUserStore(opts.Redis, opts.Prefix),
		codes:         stores.NewCodeStore(opts.Redis, opts.Prefix),
		limiter:       rate.New(opts.Redis, opts.Prefix, opts.Limits),
		tokens:        tokens,
		hasher:        hasher,
		metrics:       newServerMetrics(),
		log:           opts.Logger,
		codeTTL:       opts.CodeTTL,
		codeDigits:    opts.CodeDigits,
		botName:       opts.BotName,
		webhookSecret: opts.WebhookSecret,
	}
	s.echo = s.routes()
	return s, nil
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(Recovery(s.log))
	e.Use(RequestID())
	e.Use(Logger(s.log))
	e.Use(s.metrics.middleware())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", s.metrics.handler())

	auth := e.Group("/api/auth")
	auth.POST("/login", s.login)
	auth.POST("/register", s.register)

	bearer := RequireBearer(s.tokens)

	tg := e.Group("/api/telegram")
	tg.POST("/generate-code", s.generateCode, bearer)
	tg.POST("/resend-code", s.resendCode, bearer)
	tg.GET("/check-verification/:userId", s.checkVerification, bearer)
	tg.POST("/webhook", s.webhook)

	e.GET("/api/users/me", s.me, bearer)

	return e
}

// Handler returns the HTTP handler, for httptest servers and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info().Str("addr", addr).Msg("starting devserver")
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// SeedAccount is an account created at startup.
type SeedAccount struct {
	Email    string
	Password string
	Name     string
	Role     string
	Verified bool
}

// DefaultSeeds returns one account per role.
func DefaultSeeds() []SeedAccount {
	return []SeedAccount{
		{Email: "admin@medportal.local", Password: "admin-pass-123", Name: "Portal Admin", Role: "admin", Verified: true},
		{Email: "doctor@medportal.local", Password: "doctor-pass-123", Name: "Dr. Demo", Role: "doctor"},
		{Email: "patient@medportal.local", Password: "patient-pass-123", Name: "Pat Demo", Role: "patient"},
	}
}

// Seed creates the given accounts. Existing addresses are left untouched.
func (s *Server) Seed(ctx context.Context, accounts []SeedAccount) error {
	for _, a := range accounts {
		hash, err := s.hasher.Hash(a.Password)
		if err != nil {
			return fmt.Errorf("seed %s: %w", a.Email, err)
		}
		err = s.users.Create(ctx, &stores.UserRecord{
			ID:           uuid.NewString(),
			Email:        stores.NormalizeEmail(a.Email),
			Name:         a.Name,
			Role:         a.Role,
			PasswordHash: hash,
			Verified:     a.Verified,
		})
		if errors.Is(err, stores.ErrUserExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed %s: %w", a.Email, err)
		}
		s.log.Info().Str("email", a.Email).Str("role", a.Role).Msg("seeded account")
	}
	return nil
}

type errorResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	msg := "internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		msg = fmt.Sprint(he.Message)
	} else {
		s.log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	}
	_ = c.JSON(status, errorResponse{Message: msg})
}
