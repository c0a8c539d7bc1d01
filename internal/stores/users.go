package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrUserRedisUnavailable = errors.New("user redis unavailable")
)

// UserRecord is an account held by the development backend.
type UserRecord struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Phone        string `json:"phone,omitempty"`
	PasswordHash string `json:"password_hash"`
	Verified     bool   `json:"verified"`
	TelegramChat int64  `json:"telegram_chat,omitempty"`
}

// UserStore keeps accounts in Redis: one JSON record per ID plus an email index.
type UserStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewUserStore(redisClient redis.UniversalClient, prefix string) *UserStore {
	if prefix == "" {
		prefix = "portal"
	}
	return &UserStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *UserStore) userKey(id string) string { return s.prefix + ":users:" + id }

func (s *UserStore) emailKey(email string) string {
	return s.prefix + ":users:email:" + NormalizeEmail(email)
}

// NormalizeEmail lowercases and trims an address for indexing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts u. The email index is claimed first so concurrent registrations of
// the same address cannot both succeed.
func (s *UserStore) Create(ctx context.Context, u *UserRecord) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}

	claimed, err := s.redis.SetNX(ctx, s.emailKey(u.Email), u.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUserRedisUnavailable, err)
	}
	if !claimed {
		return ErrUserExists
	}

	if err := s.redis.Set(ctx, s.userKey(u.ID), raw, 0).Err(); err != nil {
		s.redis.Del(ctx, s.emailKey(u.Email))
		return fmt.Errorf("%w: %v", ErrUserRedisUnavailable, err)
	}
	return nil
}

func (s *UserStore) ByID(ctx context.Context, id string) (*UserRecord, error) {
	raw, err := s.redis.Get(ctx, s.userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUserRedisUnavailable, err)
	}
	var u UserRecord
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserRedisUnavailable, err)
	}
	return &u, nil
}

func (s *UserStore) ByEmail(ctx context.Context, email string) (*UserRecord, error) {
	id, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUserRedisUnavailable, err)
	}
	return s.ByID(ctx, id)
}

// Update applies fn to the stored record under an optimistic WATCH transaction.
func (s *UserStore) Update(ctx context.Context, id string, fn func(*UserRecord)) (*UserRecord, error) {
	key := s.userKey(id)
	var out *UserRecord

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrUserNotFound
			}
			return err
		}
		var u UserRecord
		if err := json.Unmarshal(raw, &u); err != nil {
			return err
		}
		fn(&u)
		next, err := json.Marshal(&u)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		if err == nil {
			out = &u
		}
		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := s.redis.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, fmt.Errorf("%w: %v", ErrUserRedisUnavailable, err)
	}
	return nil, fmt.Errorf("%w: update contention", ErrUserRedisUnavailable)
}
