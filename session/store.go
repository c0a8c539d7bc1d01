package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrIncompleteSession is returned by Persist when either half of the session is missing.
var ErrIncompleteSession = errors.New("session requires both access token and user")

// ErrNoSession is returned by MarkVerified when there is nothing to update.
var ErrNoSession = errors.New("no active session")

const defaultKeyPrefix = "portal"

// Store is the process-wide holder of the current session.
//
// Writers (Persist, Clear, MarkVerified) are serialised and replace the whole session
// value; readers take lock-free snapshots.
type Store struct {
	backend   Backend
	tokensKey string
	userKey   string
	log       zerolog.Logger

	mu      sync.Mutex
	current atomic.Pointer[Session]
	// stale is set when a clear could not reach the backend. Until a later
	// delete succeeds, Load treats the persisted records as logged out.
	stale bool
}

// NewStore returns a Store on backend. Records are kept under "<prefix>:tokens" and
// "<prefix>:user".
func NewStore(backend Backend, prefix string, logger zerolog.Logger) *Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Store{
		backend:   backend,
		tokensKey: prefix + ":tokens",
		userKey:   prefix + ":user",
		log:       logger,
	}
}

// Load reads the persisted session. Missing, partial or malformed records leave the
// store cleared and report no session.
func (s *Store) Load(ctx context.Context) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stale {
		if err := s.clearLocked(ctx); err != nil {
			s.log.Warn().Err(err).Msg("cleared session still present in backend")
		}
		return Session{}, false
	}

	sess, err := s.read(ctx)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			s.log.Warn().Err(err).Msg("discarding unreadable session")
		}
		s.clearLocked(ctx)
		return Session{}, false
	}

	s.current.Store(&sess)
	return sess, true
}

func (s *Store) read(ctx context.Context) (Session, error) {
	rawTokens, err := s.backend.Get(ctx, s.tokensKey)
	if err != nil {
		return Session{}, err
	}
	rawUser, err := s.backend.Get(ctx, s.userKey)
	if err != nil {
		return Session{}, err
	}

	tokens, err := DecodeTokens(rawTokens)
	if err != nil {
		return Session{}, err
	}
	user, err := DecodeUser(rawUser)
	if err != nil {
		return Session{}, err
	}

	sess := Session{Tokens: tokens, User: user}
	if !sess.Authenticated() {
		return Session{}, ErrIncompleteSession
	}
	return sess, nil
}

// Persist writes the token pair and user together and makes them the current session.
func (s *Store) Persist(ctx context.Context, tokens Tokens, user User) error {
	sess := Session{Tokens: tokens, User: user}
	if !sess.Authenticated() {
		return ErrIncompleteSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeLocked(ctx, sess)
}

func (s *Store) writeLocked(ctx context.Context, sess Session) error {
	rawTokens, err := EncodeTokens(sess.Tokens)
	if err != nil {
		return err
	}
	rawUser, err := EncodeUser(sess.User)
	if err != nil {
		return err
	}

	if err := s.backend.SetAll(ctx, map[string][]byte{
		s.tokensKey: rawTokens,
		s.userKey:   rawUser,
	}); err != nil {
		return err
	}

	s.stale = false
	s.current.Store(&sess)
	return nil
}

// Clear removes the session. Clearing an empty store is a no-op. The in-memory
// session is dropped even when the backend delete fails, and Load will not bring
// the persisted copy back.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.clearLocked(ctx)
}

func (s *Store) clearLocked(ctx context.Context) error {
	s.current.Store(nil)
	if err := s.backend.Delete(ctx, s.tokensKey, s.userKey); err != nil {
		s.stale = true
		return err
	}
	s.stale = false
	return nil
}

// Snapshot returns the current session in one atomic read.
func (s *Store) Snapshot() (Session, bool) {
	cur := s.current.Load()
	if cur == nil {
		return Session{}, false
	}
	return *cur, true
}

// IsAuthenticated reports whether a complete session is held.
func (s *Store) IsAuthenticated() bool {
	cur := s.current.Load()
	return cur != nil && cur.Authenticated()
}

// MarkVerified replaces the session with one whose user is verified. It reports whether
// the session changed; repeated calls are no-ops.
func (s *Store) MarkVerified(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if cur == nil {
		return false, ErrNoSession
	}
	if cur.User.Verified {
		return false, nil
	}

	next := *cur
	next.User.Verified = true
	if err := s.writeLocked(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}
