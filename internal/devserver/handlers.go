package devserver

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medportal/portalauth/api"
	"github.com/medportal/portalauth/internal"
	"github.com/medportal/portalauth/internal/rate"
	"github.com/medportal/portalauth/internal/stores"
	"github.com/medportal/portalauth/password"
)

// Roles that may self-register; admins are seeded.
var registrableRoles = map[string]bool{"patient": true, "doctor": true}

func wireUser(u *stores.UserRecord) api.User {
	return api.User{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Role:       u.Role,
		IsVerified: u.Verified,
	}
}

func (s *Server) issueSession(u *stores.UserRecord) (api.AuthResult, error) {
	access, err := s.tokens.CreateAccess(u.ID, u.Role)
	if err != nil {
		return api.AuthResult{}, err
	}
	refresh, err := internal.NewRefreshToken()
	if err != nil {
		return api.AuthResult{}, err
	}
	return api.AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         wireUser(u),
	}, nil
}

func (s *Server) login(c echo.Context) error {
	ctx := c.Request().Context()

	var in api.Credentials
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "malformed request"})
	}
	fields := map[string]string{}
	if strings.TrimSpace(in.Email) == "" {
		fields["email"] = "required"
	}
	if in.Password == "" {
		fields["password"] = "required"
	}
	if len(fields) > 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Validation failed", Errors: fields})
	}

	if err := s.limiter.CheckLogin(ctx, in.Email); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return c.JSON(http.StatusTooManyRequests, errorResponse{Message: "Too many login attempts, try again later"})
		}
		return err
	}

	u, err := s.users.ByEmail(ctx, in.Email)
	if err != nil && !errors.Is(err, stores.ErrUserNotFound) {
		return err
	}
	ok := false
	if u != nil {
		ok, err = s.hasher.Verify(in.Password, u.PasswordHash)
		if err != nil && !errors.Is(err, password.ErrPasswordLength) {
			return err
		}
	}
	if !ok {
		s.metrics.loginFailures.Inc()
		if err := s.limiter.IncrementLogin(ctx, in.Email); err != nil {
			s.log.Warn().Err(err).Msg("failed to record login attempt")
		}
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Invalid email or password"})
	}

	if err := s.limiter.ResetLogin(ctx, in.Email); err != nil {
		s.log.Warn().Err(err).Msg("failed to reset login attempts")
	}
	s.upgradeHash(c, u, in.Password)

	res, err := s.issueSession(u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) upgradeHash(c echo.Context, u *stores.UserRecord, plain string) {
	needs, err := s.hasher.NeedsUpgrade(u.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return
	}
	if _, err := s.users.Update(c.Request().Context(), u.ID, func(r *stores.UserRecord) {
		r.PasswordHash = hash
	}); err != nil {
		s.log.Warn().Err(err).Str("user_id", u.ID).Msg("password rehash failed")
	}
}

func (s *Server) register(c echo.Context) error {
	ctx := c.Request().Context()

	var in api.Registration
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "malformed request"})
	}

	fields := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "required"
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		fields["email"] = "must be a valid email address"
	}
	if !registrableRoles[in.Role] {
		fields["role"] = "must be patient or doctor"
	}
	hash, err := s.hasher.Hash(in.Password)
	if errors.Is(err, password.ErrPasswordLength) {
		fields["password"] = "must be at least 10 characters"
	} else if err != nil {
		return err
	}
	if len(fields) > 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Message: "Validation failed", Errors: fields})
	}

	u := &stores.UserRecord{
		ID:           uuid.NewString(),
		Email:        stores.NormalizeEmail(in.Email),
		Name:         strings.TrimSpace(in.Name),
		Role:         in.Role,
		Phone:        in.Phone,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, stores.ErrUserExists) {
			return c.JSON(http.StatusConflict, errorResponse{
				Message: "Registration failed",
				Errors:  map[string]string{"email": "already registered"},
			})
		}
		return err
	}

	res, err := s.issueSession(u)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

type userIDRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) generateCode(c echo.Context) error {
	return s.issueCode(c, "generate")
}

func (s *Server) resendCode(c echo.Context) error {
	return s.issueCode(c, "resend")
}

func (s *Server) issueCode(c echo.Context, action string) error {
	ctx := c.Request().Context()

	var in userIDRequest
	if err := c.Bind(&in); err != nil || in.UserID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Message: "Validation failed",
			Errors:  map[string]string{"userId": "required"},
		})
	}
	if claims := claimsFrom(c); claims == nil || claims.UID != in.UserID {
		return c.JSON(http.StatusForbidden, errorResponse{Message: "cannot request codes for another user"})
	}

	u, err := s.users.ByID(ctx, in.UserID)
	if errors.Is(err, stores.ErrUserNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Message: "user not found"})
	}
	if err != nil {
		return err
	}
	if u.Verified {
		return c.JSON(http.StatusOK, api.CodeIssue{AlreadyVerified: true})
	}

	if err := s.limiter.AllowCodeRequest(ctx, u.ID); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return c.JSON(http.StatusTooManyRequests, errorResponse{Message: "Too many code requests, try again later"})
		}
		return err
	}

	code, err := s.newCode(c, u.ID)
	if err != nil {
		return err
	}
	s.metrics.codesIssued.WithLabelValues(action).Inc()
	s.log.Info().Str("user_id", u.ID).Str("action", action).Msg("verification code issued")

	return c.JSON(http.StatusOK, api.CodeIssue{
		Code:       code,
		TTLSeconds: int(s.codeTTL.Seconds()),
		Link:       "https://t.me/" + s.botName + "?start=" + code,
	})
}

// newCode draws codes until one is free.
func (s *Server) newCode(c echo.Context, userID string) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code, err := internal.NewOTP(s.codeDigits)
		if err != nil {
			return "", err
		}
		err = s.codes.Issue(c.Request().Context(), userID, code, s.codeTTL)
		if errors.Is(err, stores.ErrCodeCollision) {
			continue
		}
		if err != nil {
			return "", err
		}
		return code, nil
	}
	return "", echo.NewHTTPError(http.StatusServiceUnavailable, "could not allocate a verification code")
}

func (s *Server) checkVerification(c echo.Context) error {
	userID := c.Param("userId")
	if claims := claimsFrom(c); claims == nil || claims.UID != userID {
		return c.JSON(http.StatusForbidden, errorResponse{Message: "cannot inspect another user"})
	}
	u, err := s.users.ByID(c.Request().Context(), userID)
	if errors.Is(err, stores.ErrUserNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Message: "user not found"})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"verified": u.Verified})
}

func (s *Server) me(c echo.Context) error {
	claims := claimsFrom(c)
	u, err := s.users.ByID(c.Request().Context(), claims.UID)
	if errors.Is(err, stores.ErrUserNotFound) {
		// The token outlived its account.
		return c.JSON(http.StatusUnauthorized, errorResponse{Message: "account no longer exists"})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wireUser(u))
}
