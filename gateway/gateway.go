// Package gateway wraps outbound HTTP calls with the client's session.
//
// [Transport] attaches the current access token as a bearer credential and, when a
// response comes back 401, clears the session and sends the navigator to the login
// view. Teardown is serialised so concurrent 401s clear and redirect at most once.
//
// A 401 for a request that carried a token other than the one currently held is a
// stale response from before a newer login and leaves the newer session alone.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medportal/portalauth/nav"
	"github.com/medportal/portalauth/session"
)

// HeaderRequestID is set on every outbound request that does not already carry one.
const HeaderRequestID = "X-Request-ID"

// Sessions is the part of the session store the gateway uses.
type Sessions interface {
	Snapshot() (session.Session, bool)
	Clear(ctx context.Context) error
}

// Invalidation describes how one 401 response was handled.
type Invalidation struct {
	RequestID string
	Path      string
	// Stale is set when the response belonged to a superseded session.
	Stale      bool
	Cleared    bool
	Redirected bool
}

// Options configures a Transport.
type Options struct {
	Logger zerolog.Logger
	// OnInvalidate is called, under the teardown lock, for every 401 response.
	OnInvalidate func(Invalidation)
	// Timeout applies to clients built by NewClient.
	Timeout time.Duration
}

// Transport is an http.RoundTripper bound to a session store and navigator.
type Transport struct {
	base      http.RoundTripper
	sessions  Sessions
	navigator nav.Navigator
	log       zerolog.Logger
	hook      func(Invalidation)

	mu sync.Mutex
}

// New wraps base. A nil base uses http.DefaultTransport.
func New(base http.RoundTripper, sessions Sessions, navigator nav.Navigator, opts Options) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:      base,
		sessions:  sessions,
		navigator: navigator,
		log:       opts.Logger,
		hook:      opts.OnInvalidate,
	}
}

// NewClient returns an *http.Client whose transport is a gateway Transport.
func NewClient(base http.RoundTripper, sessions Sessions, navigator nav.Navigator, opts Options) *http.Client {
	return &http.Client{
		Transport: New(base, sessions, navigator, opts),
		Timeout:   opts.Timeout,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())

	var sent string
	if sess, ok := t.sessions.Snapshot(); ok && sess.Tokens.AccessToken != "" {
		sent = sess.Tokens.AccessToken
		out.Header.Set("Authorization", "Bearer "+sent)
	}
	if out.Header.Get(HeaderRequestID) == "" {
		out.Header.Set(HeaderRequestID, uuid.NewString())
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		t.invalidate(out, sent)
	}
	return resp, nil
}

func (t *Transport) invalidate(req *http.Request, sent string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ev := Invalidation{
		RequestID: req.Header.Get(HeaderRequestID),
		Path:      req.URL.Path,
	}
	logger := t.log.With().Str("request_id", ev.RequestID).Str("path", ev.Path).Logger()

	cur, ok := t.sessions.Snapshot()
	if ok && cur.Tokens.AccessToken != sent {
		ev.Stale = true
		logger.Debug().Msg("ignoring 401 for superseded session")
		t.emit(ev)
		return
	}

	if ok {
		// The caller's context may already be done; teardown must still complete.
		if err := t.sessions.Clear(context.WithoutCancel(req.Context())); err != nil {
			logger.Error().Err(err).Msg("session clear failed during invalidation")
		}
		ev.Cleared = true
	}

	from := t.navigator.Current()
	returnTo := ""
	if from.View == nav.ViewProtected {
		returnTo = from.String()
	}
	ev.Redirected = t.navigator.RedirectToLogin(returnTo)

	if ev.Cleared || ev.Redirected {
		logger.Info().
			Bool("cleared", ev.Cleared).
			Bool("redirected", ev.Redirected).
			Str("from", from.Path).
			Msg("session invalidated by 401")
	}
	t.emit(ev)
}

func (t *Transport) emit(ev Invalidation) {
	if t.hook != nil {
		t.hook(ev)
	}
}
