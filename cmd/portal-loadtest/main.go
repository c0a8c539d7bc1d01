package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/medportal/portalauth/internal"
	"github.com/medportal/portalauth/internal/stores"
)

// userState tracks the one code a user currently holds.
type userState struct {
	id   string
	code string
	mu   sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users requesting codes")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (issue + redeem)")
		digits      = flag.Int("digits", 6, "verification code length")
		ttl         = flag.Duration("ttl", 5*time.Minute, "code lifetime")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, PORTAL_DEV_REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "loadtest", "key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	client, closeRedis, err := openRedis(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer closeRedis()

	codes := stores.NewCodeStore(client, *prefix)
	states := make([]userState, *users)
	for i := range states {
		states[i].id = fmt.Sprintf("user-%d", i)
	}

	issueStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		code, err := issue(ctx, codes, st.id, *digits, *ttl)
		if err != nil {
			return err
		}
		st.code = code
		return nil
	})

	// Redeeming a code twice must fail, so a redeemed slot is cleared and counts
	// as a miss until the next issue.
	var misses atomic.Int64
	redeemStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand) error {
		st := &states[r.Intn(len(states))]
		st.mu.Lock()
		defer st.mu.Unlock()
		if st.code == "" {
			misses.Add(1)
			code, err := issue(ctx, codes, st.id, *digits, *ttl)
			if err != nil {
				return err
			}
			st.code = code
		}
		rec, err := codes.Consume(ctx, st.code)
		st.code = ""
		if err != nil {
			return err
		}
		if rec.UserID != st.id {
			return fmt.Errorf("code redeemed for %s, want %s", rec.UserID, st.id)
		}
		return nil
	})

	fmt.Printf("issue:  %s\nredeem: %s\n", issueStats, redeemStats)
	fmt.Printf("redeem phase reissued %d codes\n", misses.Load())
}

// issue draws codes until one is free in the shared code space.
func issue(ctx context.Context, codes *stores.CodeStore, userID string, digits int, ttl time.Duration) (string, error) {
	for {
		code, err := internal.NewOTP(digits)
		if err != nil {
			return "", err
		}
		err = codes.Issue(ctx, userID, code, ttl)
		if errors.Is(err, stores.ErrCodeCollision) {
			continue
		}
		return code, err
	}
}

// openRedis connects to addr, falling back to PORTAL_DEV_REDIS_ADDR and then to
// an in-process miniredis.
func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("PORTAL_DEV_REDIS_ADDR")
	}
	if addr != "" {
		fmt.Printf("redis %s\n", addr)
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	fmt.Printf("miniredis %s\n", mr.Addr())
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}
