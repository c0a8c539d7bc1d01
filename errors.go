package portalauth

import (
	"errors"

	"github.com/medportal/portalauth/api"
	"github.com/medportal/portalauth/session"
	"github.com/medportal/portalauth/verification"
)

var (
	// ErrAuthExpired means the backend rejected the session. The client has already
	// cleared it and redirected to login.
	ErrAuthExpired = api.ErrAuthExpired
	// ErrValidation matches *ValidationError from login and registration.
	ErrValidation = api.ErrValidation
	// ErrNetwork covers transport failures and 5xx responses.
	ErrNetwork = api.ErrNetwork

	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrIncompleteSession  = session.ErrIncompleteSession
	ErrVerificationClosed = verification.ErrClosed
	ErrClientClosed       = errors.New("client closed")
	ErrUnknownRoute       = errors.New("unknown route")
)

// ValidationError is the 4xx rejection type returned by Login and Register.
type ValidationError = api.ValidationError
