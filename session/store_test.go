package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newRedisBackendTest(t *testing.T) (*RedisBackend, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisBackend(rdb, 0), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func testTokens() Tokens {
	return Tokens{AccessToken: "access-1", RefreshToken: "refresh-1"}
}

func testUser() User {
	return User{ID: "u-1", Email: "pat@example.com", Name: "Pat", Role: RolePatient}
}

func backendsUnderTest(t *testing.T) map[string]Backend {
	t.Helper()
	rb, _, done := newRedisBackendTest(t)
	t.Cleanup(done)
	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"file":   NewFileBackend(filepath.Join(t.TempDir(), "session.json")),
		"redis":  rb,
	}
}

func TestPersistThenLoadAcrossBackends(t *testing.T) {
	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := NewStore(backend, "test", zerolog.Nop())
			if err := store.Persist(ctx, testTokens(), testUser()); err != nil {
				t.Fatalf("persist: %v", err)
			}

			reopened := NewStore(backend, "test", zerolog.Nop())
			sess, ok := reopened.Load(ctx)
			if !ok {
				t.Fatal("expected persisted session to load")
			}
			if sess.Tokens != testTokens() || sess.User != testUser() {
				t.Fatalf("loaded session mismatch: %+v", sess)
			}
			if !reopened.IsAuthenticated() {
				t.Fatal("expected reopened store to be authenticated")
			}
		})
	}
}

func TestPersistRejectsHalfSessions(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := NewStore(backend, "", zerolog.Nop())

	if err := store.Persist(ctx, Tokens{}, testUser()); !errors.Is(err, ErrIncompleteSession) {
		t.Fatalf("expected ErrIncompleteSession for missing token, got %v", err)
	}
	if err := store.Persist(ctx, testTokens(), User{}); !errors.Is(err, ErrIncompleteSession) {
		t.Fatalf("expected ErrIncompleteSession for missing user, got %v", err)
	}
	if store.IsAuthenticated() {
		t.Fatal("store must stay unauthenticated after rejected writes")
	}
	if _, err := backend.Get(ctx, "portal:tokens"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("no record may be written for a rejected session, got %v", err)
	}
}

func TestIsAuthenticatedRequiresBothHalves(t *testing.T) {
	cases := []struct {
		name string
		sess Session
		want bool
	}{
		{"empty", Session{}, false},
		{"token only", Session{Tokens: testTokens()}, false},
		{"user only", Session{User: testUser()}, false},
		{"both", Session{Tokens: testTokens(), User: testUser()}, true},
	}
	for _, tc := range cases {
		if got := tc.sess.Authenticated(); got != tc.want {
			t.Fatalf("%s: Authenticated() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestLoadClearsMalformedRecords(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	if err := backend.SetAll(ctx, map[string][]byte{
		"portal:tokens": {1, 0, 9},
		"portal:user":   {2},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store := NewStore(backend, "", zerolog.Nop())
	if _, ok := store.Load(ctx); ok {
		t.Fatal("malformed data must load as no session")
	}
	if _, err := backend.Get(ctx, "portal:tokens"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("malformed token record should be cleared, got %v", err)
	}
	if _, err := backend.Get(ctx, "portal:user"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("malformed user record should be cleared, got %v", err)
	}
}

func TestLoadClearsPartialRecords(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	raw, err := EncodeTokens(testTokens())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := backend.SetAll(ctx, map[string][]byte{"portal:tokens": raw}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store := NewStore(backend, "", zerolog.Nop())
	if _, ok := store.Load(ctx); ok {
		t.Fatal("tokens without user must load as no session")
	}
	if _, err := backend.Get(ctx, "portal:tokens"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("orphan token record should be removed, got %v", err)
	}
}

func TestLoadRecoversFromCorruptFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	store := NewStore(NewFileBackend(path), "", zerolog.Nop())
	if _, ok := store.Load(ctx); ok {
		t.Fatal("corrupt file must load as no session")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("corrupt file should be removed, stat err=%v", err)
	}
	if err := store.Persist(ctx, testTokens(), testUser()); err != nil {
		t.Fatalf("persist after recovery: %v", err)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := NewStore(backend, "", zerolog.Nop())
			if err := store.Persist(ctx, testTokens(), testUser()); err != nil {
				t.Fatalf("persist: %v", err)
			}
			if err := store.Clear(ctx); err != nil {
				t.Fatalf("first clear: %v", err)
			}
			if err := store.Clear(ctx); err != nil {
				t.Fatalf("second clear: %v", err)
			}
			if _, ok := store.Snapshot(); ok {
				t.Fatal("snapshot must be empty after clear")
			}
			if _, ok := NewStore(backend, "", zerolog.Nop()).Load(ctx); ok {
				t.Fatal("cleared session must not load")
			}
		})
	}
}

func TestMarkVerifiedReplacesWholeSessionOnce(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := NewStore(backend, "", zerolog.Nop())
	if err := store.Persist(ctx, testTokens(), testUser()); err != nil {
		t.Fatalf("persist: %v", err)
	}
	before, _ := store.Snapshot()

	changed, err := store.MarkVerified(ctx)
	if err != nil || !changed {
		t.Fatalf("first MarkVerified: changed=%v err=%v", changed, err)
	}
	once, _ := store.Snapshot()

	changed, err = store.MarkVerified(ctx)
	if err != nil || changed {
		t.Fatalf("second MarkVerified: changed=%v err=%v", changed, err)
	}
	twice, _ := store.Snapshot()

	if once != twice {
		t.Fatalf("second verification changed the session: %+v vs %+v", once, twice)
	}
	if !once.User.Verified || once.Tokens != before.Tokens || once.User.ID != before.User.ID {
		t.Fatalf("unexpected verified session: %+v", once)
	}

	reloaded, ok := NewStore(backend, "", zerolog.Nop()).Load(ctx)
	if !ok || !reloaded.User.Verified {
		t.Fatalf("verified flag must be persisted, got %+v ok=%v", reloaded, ok)
	}
}

func TestMarkVerifiedWithoutSession(t *testing.T) {
	store := NewStore(nil, "", zerolog.Nop())
	if _, err := store.MarkVerified(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestRedisBackendWritesBothRecordsWithTTL(t *testing.T) {
	backend, mr, done := newRedisBackendTest(t)
	defer done()
	backend.ttl = time.Hour

	ctx := context.Background()
	store := NewStore(backend, "kiosk", zerolog.Nop())
	if err := store.Persist(ctx, testTokens(), testUser()); err != nil {
		t.Fatalf("persist: %v", err)
	}

	for _, key := range []string{"kiosk:tokens", "kiosk:user"} {
		if !mr.Exists(key) {
			t.Fatalf("expected key %s to exist", key)
		}
		if ttl := mr.TTL(key); ttl != time.Hour {
			t.Fatalf("expected ttl 1h on %s, got %v", key, ttl)
		}
	}
}

func TestRedisBackendUnavailable(t *testing.T) {
	backend, mr, done := newRedisBackendTest(t)
	defer done()
	mr.Close()

	store := NewStore(backend, "", zerolog.Nop())
	if err := store.Persist(context.Background(), testTokens(), testUser()); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if store.IsAuthenticated() {
		t.Fatal("failed write must not change the snapshot")
	}
	if _, ok := store.Load(context.Background()); ok {
		t.Fatal("load from an unreachable backend must report no session")
	}
}

// flakyDelete fails deletes while broken is set.
type flakyDelete struct {
	Backend
	broken bool
}

func (f *flakyDelete) Delete(ctx context.Context, keys ...string) error {
	if f.broken {
		return ErrRedisUnavailable
	}
	return f.Backend.Delete(ctx, keys...)
}

func TestFailedClearDoesNotResurrectSession(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend()
	backend := &flakyDelete{Backend: inner}
	store := NewStore(backend, "", zerolog.Nop())
	if err := store.Persist(ctx, testTokens(), testUser()); err != nil {
		t.Fatalf("persist: %v", err)
	}

	backend.broken = true
	if err := store.Clear(ctx); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected the backend error, got %v", err)
	}
	if store.IsAuthenticated() {
		t.Fatal("snapshot must be dropped even when the delete fails")
	}
	if _, ok := store.Load(ctx); ok {
		t.Fatal("load brought back a session that was cleared")
	}

	backend.broken = false
	if _, ok := store.Load(ctx); ok {
		t.Fatal("load brought back a session that was cleared")
	}
	if _, err := inner.Get(ctx, "portal:tokens"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("pending delete should have been retried, got %v", err)
	}

	if err := store.Persist(ctx, testTokens(), testUser()); err != nil {
		t.Fatalf("persist after recovery: %v", err)
	}
	if _, ok := NewStore(backend, "", zerolog.Nop()).Load(ctx); !ok {
		t.Fatal("a fresh login must load again")
	}
}
