package verification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medportal/portalauth/api"
	"github.com/medportal/portalauth/session"
)

var (
	// ErrNoSession is returned by Start when there is no authenticated user.
	ErrNoSession = errors.New("verification requires an authenticated session")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("verification coordinator closed")
	// ErrInvalidTransition is returned when an action is not available in the current
	// state.
	ErrInvalidTransition = errors.New("action not available in current verification state")
)

const (
	defaultCountdownPeriod = time.Second
	defaultPollInterval    = 2 * time.Second
)

// API is the backend the coordinator talks to.
type API interface {
	GenerateCode(ctx context.Context, userID string) (api.CodeIssue, error)
	ResendCode(ctx context.Context, userID string) (api.CodeIssue, error)
	CheckVerification(ctx context.Context, userID string) (bool, error)
}

// SessionWriter is the part of the session store the coordinator uses.
type SessionWriter interface {
	Snapshot() (session.Session, bool)
	MarkVerified(ctx context.Context) (bool, error)
}

// Options configures a Coordinator.
type Options struct {
	CountdownPeriod time.Duration
	PollInterval    time.Duration
	Scheduler       Scheduler
	Logger          zerolog.Logger
	Clock           func() time.Time

	// OnChange receives every state the coordinator enters.
	OnChange func(State)
	// Observe receives lifecycle events.
	Observe func(Event)
	// OnVerified is called once, with the verified user, when the flow succeeds.
	OnVerified func(session.User)
}

// Coordinator drives one verification flow. It is safe for concurrent use.
type Coordinator struct {
	api      API
	sessions SessionWriter
	sched    Scheduler
	log      zerolog.Logger
	now      func() time.Time

	countdownPeriod time.Duration
	pollInterval    time.Duration

	onChange   func(State)
	observe    func(Event)
	onVerified func(session.User)

	base   context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	userID    string
	epoch     uint64
	countdown Task
	poll      Task
	closed    bool

	// pollCtx scopes the automatic poll of the current challenge; stopTimersLocked
	// cancels it. polling stays set until the outstanding poll request returns,
	// whichever challenge it belonged to.
	pollCtx    context.Context
	pollCancel context.CancelFunc
	polling    bool

	// flushed by unlock
	pendingStates []State
	pendingEvents []Event
	pendingUser   *session.User
}

// New returns an idle coordinator.
func New(client API, sessions SessionWriter, opts Options) *Coordinator {
	if opts.CountdownPeriod <= 0 {
		opts.CountdownPeriod = defaultCountdownPeriod
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Scheduler == nil {
		opts.Scheduler = TickerScheduler{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	base, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		api:             client,
		sessions:        sessions,
		sched:           opts.Scheduler,
		log:             opts.Logger,
		now:             opts.Clock,
		countdownPeriod: opts.CountdownPeriod,
		pollInterval:    opts.PollInterval,
		onChange:        opts.OnChange,
		observe:         opts.Observe,
		onVerified:      opts.OnVerified,
		base:            base,
		cancel:          cancel,
	}
}

// State returns a copy of the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins the flow. An already verified user goes straight to Verified without
// any network call; otherwise a code is requested.
func (c *Coordinator) Start(ctx context.Context) error {
	ctx = orBackground(ctx)
	c.mu.Lock()
	if c.closed {
		c.unlock()
		return ErrClosed
	}
	if c.state.Status != StatusIdle {
		c.unlock()
		return nil
	}

	sess, ok := c.sessions.Snapshot()
	if !ok || !sess.Authenticated() {
		c.unlock()
		return ErrNoSession
	}
	c.userID = sess.User.ID

	if sess.User.Verified {
		c.verifyLocked(ctx, ActionNone)
		c.unlock()
		return nil
	}

	return c.request(ctx, ActionGenerate)
}

// Resend supersedes the current challenge with a new code.
func (c *Coordinator) Resend(ctx context.Context) error {
	ctx = orBackground(ctx)
	c.mu.Lock()
	if c.closed {
		c.unlock()
		return ErrClosed
	}
	switch c.state.Status {
	case StatusActive, StatusExpired, StatusError, StatusGenerating:
	default:
		c.unlock()
		return ErrInvalidTransition
	}
	return c.request(ctx, ActionResend)
}

// Retry repeats the action that put the coordinator into Error.
func (c *Coordinator) Retry(ctx context.Context) error {
	ctx = orBackground(ctx)
	c.mu.Lock()
	if c.closed {
		c.unlock()
		return ErrClosed
	}
	if c.state.Status != StatusError {
		c.unlock()
		return ErrInvalidTransition
	}
	action := c.state.LastAction
	if action != ActionResend {
		action = ActionGenerate
	}
	return c.request(ctx, action)
}

// request is entered with c.mu held and returns with it released.
func (c *Coordinator) request(ctx context.Context, action Action) error {
	c.stopTimersLocked()
	c.epoch++
	epoch := c.epoch
	userID := c.userID
	c.setLocked(State{Status: StatusGenerating, LastAction: action})
	c.unlock()

	reqCtx, done := c.bind(ctx)
	defer done()

	var (
		issue api.CodeIssue
		err   error
	)
	if action == ActionResend {
		issue, err = c.api.ResendCode(reqCtx, userID)
	} else {
		issue, err = c.api.GenerateCode(reqCtx, userID)
	}

	c.mu.Lock()
	defer c.unlock()

	if c.closed || epoch != c.epoch {
		c.log.Debug().Str("action", action.String()).Msg("discarding superseded code response")
		return nil
	}

	if err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Str("action", action.String()).Msg("verification code request failed")
		c.setLocked(State{Status: StatusError, Message: msgIssueFailed, Err: err, LastAction: action})
		c.emitLocked(Event{Kind: EventFailed, Action: action, Err: err})
		return err
	}

	if issue.AlreadyVerified {
		c.verifyLocked(reqCtx, action)
		return nil
	}

	ttl := time.Duration(issue.TTLSeconds) * time.Second
	ch := Challenge{
		Code:      issue.Code,
		Link:      issue.Link,
		IssuedAt:  c.now(),
		TTL:       ttl,
		Remaining: issue.TTLSeconds,
	}
	c.emitLocked(Event{Kind: EventCodeIssued, Action: action})

	if ch.Remaining <= 0 {
		ch.Remaining = 0
		c.setLocked(State{Status: StatusExpired, Challenge: ch, Message: msgExpired, LastAction: action})
		c.emitLocked(Event{Kind: EventExpired, Action: action})
		return nil
	}

	// The challenge is in place before either timer exists.
	c.setLocked(State{Status: StatusActive, Challenge: ch, LastAction: action})
	c.pollCtx, c.pollCancel = context.WithCancel(c.base)
	c.countdown = c.sched.Every(c.countdownPeriod, func() { c.tick(epoch) })
	c.poll = c.sched.Every(c.pollInterval, func() { c.pollTick(epoch) })
	return nil
}

func (c *Coordinator) tick(epoch uint64) {
	c.mu.Lock()
	defer c.unlock()

	if c.closed || epoch != c.epoch {
		return
	}
	st := c.state
	if st.Status != StatusActive && st.Status != StatusVerifying {
		return
	}

	if st.Challenge.Remaining > 0 {
		st.Challenge.Remaining--
	}
	if st.Challenge.Remaining > 0 {
		c.setLocked(st)
		return
	}

	c.stopTimersLocked()
	if st.Status == StatusVerifying {
		// A manual check is in flight; it settles into Expired when it returns.
		c.setLocked(st)
		return
	}
	st.Status = StatusExpired
	st.Message = msgExpired
	c.setLocked(st)
	c.emitLocked(Event{Kind: EventExpired, Action: st.LastAction})
}

// pollTick runs while the challenge is Active, and also while a manual check is
// in flight; verifyLocked settles whichever of the two confirms first.
func (c *Coordinator) pollTick(epoch uint64) {
	c.mu.Lock()
	live := c.state.Status == StatusActive || c.state.Status == StatusVerifying
	if c.closed || epoch != c.epoch || !live || c.polling || c.pollCtx == nil {
		c.unlock()
		return
	}
	c.polling = true
	ctx := c.pollCtx
	userID := c.userID
	c.unlock()

	verified, err := c.api.CheckVerification(ctx, userID)

	c.mu.Lock()
	defer c.unlock()

	c.polling = false
	if epoch != c.epoch || (err != nil && ctx.Err() != nil) {
		return
	}
	c.emitLocked(Event{Kind: EventPoll, Verified: verified, Err: err})
	if c.closed {
		return
	}
	if err != nil {
		c.log.Debug().Err(err).Str("user_id", userID).Msg("verification poll failed")
		return
	}
	if !verified {
		return
	}
	switch c.state.Status {
	case StatusActive, StatusVerifying, StatusExpired:
		c.verifyLocked(c.base, c.state.LastAction)
	}
}

// CheckNow asks the backend once, independently of the automatic poll.
func (c *Coordinator) CheckNow(ctx context.Context) error {
	ctx = orBackground(ctx)
	c.mu.Lock()
	if c.closed {
		c.unlock()
		return ErrClosed
	}
	if c.state.Status != StatusActive && c.state.Status != StatusExpired {
		c.unlock()
		return ErrInvalidTransition
	}
	epoch := c.epoch
	userID := c.userID
	wasActive := c.state.Status == StatusActive
	st := c.state
	st.Status = StatusVerifying
	st.Message = ""
	st.Err = nil
	c.setLocked(st)
	c.unlock()

	reqCtx, done := c.bind(ctx)
	defer done()

	verified, err := c.api.CheckVerification(reqCtx, userID)

	c.mu.Lock()
	defer c.unlock()

	if c.closed || epoch != c.epoch {
		return nil
	}
	c.emitLocked(Event{Kind: EventCheck, Action: ActionCheck, Verified: verified, Err: err})
	if c.state.Status != StatusVerifying {
		// The automatic poll settled the flow first.
		return nil
	}
	if err == nil && verified {
		c.verifyLocked(reqCtx, ActionCheck)
		return nil
	}

	st = c.state
	st.Message = msgNotYet
	if err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("manual verification check failed")
		st.Message = msgCheckFailed
		st.Err = err
	}
	if st.Challenge.Remaining > 0 {
		st.Status = StatusActive
		c.setLocked(st)
		return nil
	}
	st.Status = StatusExpired
	c.setLocked(st)
	if wasActive {
		c.emitLocked(Event{Kind: EventExpired, Action: st.LastAction})
	}
	return nil
}

// Close tears the flow down: timers are cancelled and in-flight requests abandoned.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.stopTimersLocked()
	c.epoch++
	c.cancel()
}

func (c *Coordinator) verifyLocked(ctx context.Context, action Action) {
	if c.state.Status == StatusVerified {
		return
	}
	c.stopTimersLocked()

	if _, err := c.sessions.MarkVerified(context.WithoutCancel(ctx)); err != nil {
		c.log.Error().Err(err).Str("user_id", c.userID).Msg("failed to persist verified flag")
	}

	c.setLocked(State{
		Status:     StatusVerified,
		Challenge:  c.state.Challenge,
		Message:    msgVerified,
		LastAction: action,
	})
	c.emitLocked(Event{Kind: EventVerified, Action: action, Verified: true})
	c.log.Info().Str("user_id", c.userID).Msg("user verified")

	if sess, ok := c.sessions.Snapshot(); ok {
		u := sess.User
		c.pendingUser = &u
	}
}

func (c *Coordinator) stopTimersLocked() {
	if c.countdown != nil {
		c.countdown.Cancel()
		c.countdown = nil
	}
	if c.poll != nil {
		c.poll.Cancel()
		c.poll = nil
	}
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
		c.pollCtx = nil
	}
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// bind derives a request context that is also cancelled by Close.
func (c *Coordinator) bind(ctx context.Context) (context.Context, func()) {
	reqCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.base, cancel)
	return reqCtx, func() {
		stop()
		cancel()
	}
}

func (c *Coordinator) setLocked(st State) {
	c.state = st
	c.pendingStates = append(c.pendingStates, st)
}

func (c *Coordinator) emitLocked(ev Event) {
	ev.UserID = c.userID
	c.pendingEvents = append(c.pendingEvents, ev)
}

// unlock releases c.mu and then delivers queued notifications.
func (c *Coordinator) unlock() {
	states := c.pendingStates
	events := c.pendingEvents
	user := c.pendingUser
	c.pendingStates = nil
	c.pendingEvents = nil
	c.pendingUser = nil
	c.mu.Unlock()

	if c.onChange != nil {
		for _, st := range states {
			c.onChange(st)
		}
	}
	if c.observe != nil {
		for _, ev := range events {
			c.observe(ev)
		}
	}
	if user != nil && c.onVerified != nil {
		c.onVerified(*user)
	}
}
