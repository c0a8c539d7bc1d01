package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

const (
	pathLogin             = "/api/auth/login"
	pathRegister          = "/api/auth/register"
	pathGenerateCode      = "/api/telegram/generate-code"
	pathResendCode        = "/api/telegram/resend-code"
	pathCheckVerification = "/api/telegram/check-verification/"
	pathMe                = "/api/users/me"
)

const maxErrorBody = 64 << 10

// Client calls the portal backend.
type Client struct {
	http    *http.Client
	baseURL string
	log     zerolog.Logger
}

// New returns a client for baseURL. A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger,
	}
}

func (c *Client) Login(ctx context.Context, creds Credentials) (AuthResult, error) {
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, pathLogin, creds, &out); err != nil {
		return AuthResult{}, err
	}
	if err := out.validate(); err != nil {
		return AuthResult{}, err
	}
	return out, nil
}

func (c *Client) Register(ctx context.Context, reg Registration) (AuthResult, error) {
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, pathRegister, reg, &out); err != nil {
		return AuthResult{}, err
	}
	if err := out.validate(); err != nil {
		return AuthResult{}, err
	}
	return out, nil
}

func (r AuthResult) validate() error {
	if r.AccessToken == "" || r.User.ID == "" {
		return fmt.Errorf("%w: auth response missing token or user", ErrNetwork)
	}
	return nil
}

// GenerateCode asks for a verification code for userID.
func (c *Client) GenerateCode(ctx context.Context, userID string) (CodeIssue, error) {
	return c.issue(ctx, pathGenerateCode, userID)
}

// ResendCode asks for a replacement code for userID.
func (c *Client) ResendCode(ctx context.Context, userID string) (CodeIssue, error) {
	return c.issue(ctx, pathResendCode, userID)
}

func (c *Client) issue(ctx context.Context, path, userID string) (CodeIssue, error) {
	var out CodeIssue
	if err := c.do(ctx, http.MethodPost, path, userIDRequest{UserID: userID}, &out); err != nil {
		return CodeIssue{}, err
	}
	if !out.AlreadyVerified && (out.Code == "" || out.TTLSeconds < 0) {
		return CodeIssue{}, fmt.Errorf("%w: code response missing code", ErrNetwork)
	}
	return out, nil
}

// CheckVerification reports whether userID has confirmed a code out of band.
func (c *Client) CheckVerification(ctx context.Context, userID string) (bool, error) {
	var out verificationStatus
	if err := c.do(ctx, http.MethodGet, pathCheckVerification+url.PathEscape(userID), nil, &out); err != nil {
		return false, err
	}
	return out.Verified, nil
}

// Me returns the user the current bearer token belongs to.
func (c *Client) Me(ctx context.Context) (User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, pathMe, nil, &out); err != nil {
		return User{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return ErrAuthExpired
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %s %s returned %d", ErrNetwork, method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		return decodeRejection(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.log.Debug().Err(err).Str("path", path).Msg("unreadable response body")
		return fmt.Errorf("%w: decode %s: %v", ErrNetwork, path, err)
	}
	return nil
}

func decodeRejection(resp *http.Response) error {
	verr := &ValidationError{Status: resp.StatusCode}

	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err := json.Unmarshal(raw, &body); err == nil {
		verr.Message = body.Message
		verr.Fields = body.Errors
	}
	if verr.Message == "" {
		verr.Message = http.StatusText(resp.StatusCode)
	}
	return verr
}
