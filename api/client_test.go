package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medportal/portalauth/session"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", srv.Client(), zerolog.Nop())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestLoginDecodesSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, pathLogin, r.URL.Path)

		var creds Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "doc@example.com", creds.Email)

		writeJSON(w, http.StatusOK, AuthResult{
			AccessToken:  "a",
			RefreshToken: "r",
			User:         User{ID: "u-9", Email: creds.Email, Name: "Dr. Who", Role: "doctor"},
		})
	})

	res, err := c.Login(context.Background(), Credentials{Email: "doc@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, session.Tokens{AccessToken: "a", RefreshToken: "r"}, res.Tokens())
	assert.Equal(t, session.RoleDoctor, res.User.SessionUser().Role)
	assert.False(t, res.User.SessionUser().Verified)
}

func TestLoginValidationError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Message: "Invalid input",
			Errors:  map[string]string{"email": "is required"},
		})
	})

	_, err := c.Login(context.Background(), Credentials{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, http.StatusBadRequest, verr.Status)
	assert.Equal(t, "is required", verr.Fields["email"])
	assert.Equal(t, "Invalid input: email is required", verr.Error())
}

func TestRejectionWithoutBodyUsesStatusText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	_, err := c.Register(context.Background(), Registration{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Conflict", verr.Message)
}

func TestUnauthorizedIsAuthExpired(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Me(context.Background())
	assert.ErrorIs(t, err, ErrAuthExpired)
}

func TestServerErrorsAreNetworkErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.GenerateCode(context.Background(), "u-1")
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, nil, zerolog.Nop())
	_, err := c.CheckVerification(context.Background(), "u-1")
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestCanceledContextKeepsCause(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, verificationStatus{Verified: true})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.CheckVerification(ctx, "u-1")
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateCodeShapes(t *testing.T) {
	var reply any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req userIDRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "u-1", req.UserID)
		writeJSON(w, http.StatusOK, reply)
	})

	reply = map[string]any{"code": "48213", "ttlSeconds": 70, "botLink": "https://t.me/bot?start=48213"}
	issue, err := c.GenerateCode(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, CodeIssue{Code: "48213", TTLSeconds: 70, Link: "https://t.me/bot?start=48213"}, issue)

	reply = map[string]any{"alreadyVerified": true}
	issue, err = c.ResendCode(context.Background(), "u-1")
	require.NoError(t, err)
	assert.True(t, issue.AlreadyVerified)

	reply = map[string]any{"ttlSeconds": 70}
	_, err = c.GenerateCode(context.Background(), "u-1")
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestCheckVerificationEscapesUserID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/telegram/check-verification/a%2Fb", r.URL.EscapedPath())
		writeJSON(w, http.StatusOK, verificationStatus{Verified: true})
	})

	ok, err := c.CheckVerification(context.Background(), "a/b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGarbledBodyIsNetworkError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	})

	_, err := c.CheckVerification(context.Background(), "u-1")
	assert.ErrorIs(t, err, ErrNetwork)
}
