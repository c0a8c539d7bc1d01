package portalauth

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/medportal/portalauth/api"
	"github.com/medportal/portalauth/gateway"
	"github.com/medportal/portalauth/guard"
	"github.com/medportal/portalauth/nav"
	"github.com/medportal/portalauth/session"
	"github.com/medportal/portalauth/verification"
)

// VerifyPath is the view that hosts the verification flow.
const VerifyPath = "/verify-telegram"

// Client is the portal's session-aware client. It owns one session store, one
// navigator and at most one running verification flow.
type Client struct {
	config    Config
	log       zerolog.Logger
	store     *session.Store
	navigator nav.Navigator
	guard     *guard.Guard
	routes    guard.Table
	http      *http.Client
	api       *api.Client
	scheduler verification.Scheduler
	audit     *auditDispatcher
	metrics   *Metrics

	mu           sync.Mutex
	verification *verification.Coordinator
	closed       atomic.Bool
}

func (c *Client) Close() {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.closeVerification()
	if c.audit != nil {
		c.audit.Close()
	}
}

func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

func (c *Client) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

// HTTPClient returns the gateway-wrapped client used for every backend call. Feature
// code outside this package should send its requests through it so that 401
// responses tear the session down.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func (c *Client) Navigator() nav.Navigator {
	return c.navigator
}

// Session returns the current session snapshot.
func (c *Client) Session() (session.Session, bool) {
	return c.store.Snapshot()
}

// Restore loads the persisted session, if any.
func (c *Client) Restore(ctx context.Context) (session.Session, bool) {
	sess, ok := c.store.Load(ctx)
	if ok {
		c.log.Debug().Str("user_id", sess.User.ID).Str("role", sess.User.Role.String()).Msg("session restored")
	}
	return sess, ok
}

// Login authenticates with email and password, persists the session and navigates
// to the location the login view was asked to return to, or to the role home.
func (c *Client) Login(ctx context.Context, email, password string) (session.User, error) {
	if c.closed.Load() {
		return session.User{}, ErrClientClosed
	}

	res, err := c.api.Login(ctx, api.Credentials{Email: email, Password: password})
	if err != nil {
		c.metricInc(MetricLoginFailure)
		c.emitAudit(ctx, AuditLogin, false, "", "", err, nil)
		return session.User{}, err
	}

	user, err := c.establish(ctx, res)
	if err != nil {
		c.metricInc(MetricLoginFailure)
		c.emitAudit(ctx, AuditLogin, false, res.User.ID, res.User.Role, err, nil)
		return session.User{}, err
	}

	c.metricInc(MetricLoginSuccess)
	c.emitAudit(ctx, AuditLogin, true, user.ID, user.Role.String(), nil, nil)
	return user, nil
}

// Register creates an account and signs in with it.
func (c *Client) Register(ctx context.Context, reg api.Registration) (session.User, error) {
	if c.closed.Load() {
		return session.User{}, ErrClientClosed
	}

	res, err := c.api.Register(ctx, reg)
	if err != nil {
		c.metricInc(MetricRegisterFailure)
		c.emitAudit(ctx, AuditRegister, false, "", reg.Role, err, nil)
		return session.User{}, err
	}

	user, err := c.establish(ctx, res)
	if err != nil {
		c.metricInc(MetricRegisterFailure)
		c.emitAudit(ctx, AuditRegister, false, res.User.ID, res.User.Role, err, nil)
		return session.User{}, err
	}

	c.metricInc(MetricRegisterSuccess)
	c.emitAudit(ctx, AuditRegister, true, user.ID, user.Role.String(), nil, nil)
	return user, nil
}

func (c *Client) establish(ctx context.Context, res api.AuthResult) (session.User, error) {
	user := res.User.SessionUser()
	if err := c.store.Persist(ctx, res.Tokens(), user); err != nil {
		c.log.Error().Err(err).Msg("failed to persist session")
		return session.User{}, err
	}
	// Any flow started for a previous identity is void.
	c.closeVerification()
	c.navigateAfterAuth(user)
	return user, nil
}

func (c *Client) navigateAfterAuth(user session.User) {
	from := c.navigator.Current()
	if from.View == nav.ViewLogin && from.Next != "" {
		if route, ok := c.routes.Lookup(from.Next); ok {
			d := c.guard.Check(route.Location(from.Next), route.Gate)
			if d.Granted() {
				c.navigate(d.Target)
				return
			}
		}
	}
	c.navigate(guard.HomeFor(user.Role))
}

// Logout clears the session and shows the login view.
func (c *Client) Logout(ctx context.Context) error {
	sess, ok := c.store.Snapshot()
	c.closeVerification()

	if err := c.store.Clear(ctx); err != nil {
		c.log.Error().Err(err).Msg("failed to clear session")
		return err
	}
	c.navigate(nav.Login(""))

	c.metricInc(MetricLogout)
	if ok {
		c.emitAudit(ctx, AuditLogout, true, sess.User.ID, sess.User.Role.String(), nil, nil)
	}
	return nil
}

// Open navigates to raw, running the route guard for protected views. The returned
// decision says where the client ended up.
func (c *Client) Open(raw string) (guard.Decision, error) {
	route, ok := c.routes.Lookup(raw)
	if !ok {
		return guard.Decision{}, ErrUnknownRoute
	}
	loc := route.Location(raw)

	if route.View != nav.ViewProtected {
		c.navigate(loc)
		return guard.Decision{State: guard.StateGranted, Target: loc}, nil
	}

	d := c.guard.Check(loc, route.Gate)
	switch d.State {
	case guard.StateGranted:
		c.metricInc(MetricRouteGranted)
	case guard.StateUnauthenticated:
		c.metricInc(MetricRouteLoginRedirect)
	case guard.StateRoleMismatch:
		c.metricInc(MetricRouteRoleRedirect)
	}
	c.navigate(d.Target)
	return d, nil
}

func (c *Client) navigate(loc nav.Location) {
	c.navigator.Go(loc)
	if loc.Path != VerifyPath {
		c.closeVerification()
	}
}

// StartVerification opens the verification view and starts a fresh flow on it. The
// coordinator is returned even when starting failed, so the caller can show its
// Error state and offer a retry.
func (c *Client) StartVerification(ctx context.Context, onChange func(verification.State)) (*verification.Coordinator, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	d, err := c.Open(VerifyPath)
	if err != nil {
		return nil, err
	}
	if !d.Granted() {
		return nil, ErrNotAuthenticated
	}

	coord := verification.New(c.api, c.store, verification.Options{
		CountdownPeriod: c.config.Verification.CountdownTick,
		PollInterval:    c.config.Verification.PollInterval,
		Scheduler:       c.scheduler,
		Logger:          c.log.With().Str("component", "verification").Logger(),
		OnChange:        onChange,
		Observe:         c.observeVerification,
		OnVerified: func(u session.User) {
			c.navigate(guard.HomeFor(u.Role))
		},
	})

	c.mu.Lock()
	prev := c.verification
	c.verification = coord
	c.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	return coord, coord.Start(ctx)
}

// Verification returns the running verification flow, if any.
func (c *Client) Verification() *verification.Coordinator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verification
}

func (c *Client) closeVerification() {
	c.mu.Lock()
	coord := c.verification
	c.verification = nil
	c.mu.Unlock()

	if coord != nil {
		coord.Close()
	}
}

// Me fetches the signed-in user from the backend. A 401 tears the session down and
// returns ErrAuthExpired.
func (c *Client) Me(ctx context.Context) (session.User, error) {
	if _, ok := c.store.Snapshot(); !ok {
		return session.User{}, ErrNotAuthenticated
	}
	u, err := c.api.Me(ctx)
	if err != nil {
		return session.User{}, err
	}
	return u.SessionUser(), nil
}

func (c *Client) observeVerification(ev verification.Event) {
	ctx := context.Background()
	switch ev.Kind {
	case verification.EventCodeIssued:
		c.metricInc(MetricVerificationCodeIssued)
		c.emitAudit(ctx, AuditVerificationCodeIssued, true, ev.UserID, "", nil, func() map[string]string {
			return map[string]string{"action": ev.Action.String()}
		})
	case verification.EventPoll, verification.EventCheck:
		c.metricInc(MetricVerificationPoll)
	case verification.EventExpired:
		c.metricInc(MetricVerificationExpired)
	case verification.EventVerified:
		c.metricInc(MetricVerificationSuccess)
		c.emitAudit(ctx, AuditVerificationConfirmed, true, ev.UserID, "", nil, nil)
	case verification.EventFailed:
		c.metricInc(MetricVerificationError)
		c.emitAudit(ctx, AuditVerificationFailed, false, ev.UserID, "", ev.Err, func() map[string]string {
			return map[string]string{"action": ev.Action.String()}
		})
	}
}

func (c *Client) onInvalidate(ev gateway.Invalidation) {
	if !ev.Cleared {
		c.metricInc(MetricUnauthorizedIgnored)
		return
	}
	c.metricInc(MetricSessionInvalidated)
	c.emitAudit(context.Background(), AuditSessionInvalidated, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"request_id": ev.RequestID,
			"path":       ev.Path,
		}
	})
	c.closeVerification()
}

// timedTransport records backend round-trip latency.
type timedTransport struct {
	base    http.RoundTripper
	metrics *Metrics
}

func (t timedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.metrics.LatencyEnabled() {
		return t.base.RoundTrip(req)
	}
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	t.metrics.Observe(MetricRequestLatency, time.Since(start))
	return resp, err
}
