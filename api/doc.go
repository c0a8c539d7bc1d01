// Package api is the typed REST client for the portal backend endpoints the session
// and verification flows depend on.
//
// All requests go through the *http.Client supplied by the caller, normally one built by
// gateway.NewClient, so bearer attachment and 401 teardown happen below this package.
//
// # Errors
//
//   - [ErrAuthExpired]: the backend answered 401. The gateway has already cleared the
//     session by the time the caller sees it.
//   - [ErrValidation]: a 4xx with a message and optional per-field errors, matched by
//     [*ValidationError].
//   - [ErrNetwork]: no response, a 5xx, or a response body that could not be understood.
package api
