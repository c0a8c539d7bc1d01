package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medportal/portalauth/internal"
)

const (
	codeRecordVersionV1 = 1
)

var (
	ErrCodeNotFound         = errors.New("verification code not found")
	ErrCodeCollision        = errors.New("verification code already in use")
	ErrCodeRedisUnavailable = errors.New("verification code redis unavailable")
)

// issueCodeLua replaces the user's outstanding code with a new one.
// KEYS[1] = code key, KEYS[2] = user key
// ARGV[1] = record bytes, ARGV[2] = ttl ms, ARGV[3] = code key prefix, ARGV[4] = code hash
var issueCodeLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return {err='collision'}
end
local previous = redis.call('GET', KEYS[2])
if previous then
  redis.call('DEL', ARGV[3] .. previous)
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SET', KEYS[2], ARGV[4], 'PX', ARGV[2])
return 1
`)

// consumeCodeLua atomically reads and deletes a code record and the user's pointer to it.
// KEYS[1] = code key
// ARGV[1] = user key prefix, ARGV[2] = code hash
var consumeCodeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end
redis.call('DEL', KEYS[1])

local version = string.byte(data, 1)
if version ~= 1 then
  return {err='not_found'}
end
local userIDLen = string.byte(data, 10) * 256 + string.byte(data, 11)
local userID = string.sub(data, 12, 11 + userIDLen)
local userKey = ARGV[1] .. userID
if redis.call('GET', userKey) == ARGV[2] then
  redis.call('DEL', userKey)
end
return data
`)

// CodeRecord is an issued Telegram verification code.
type CodeRecord struct {
	UserID    string
	ExpiresAt int64
}

// CodeStore keeps one outstanding verification code per user. Codes are keyed by
// their SHA-256 digest; issuing a new code invalidates the previous one.
type CodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewCodeStore(redisClient redis.UniversalClient, prefix string) *CodeStore {
	if prefix == "" {
		prefix = "portal"
	}
	return &CodeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *CodeStore) codePrefix() string { return s.prefix + ":tgcode:" }
func (s *CodeStore) userPrefix() string { return s.prefix + ":tguser:" }

// Issue stores code for userID until ttl elapses.
func (s *CodeStore) Issue(ctx context.Context, userID, code string, ttl time.Duration) error {
	if userID == "" || code == "" || ttl <= 0 {
		return errors.New("invalid code issue")
	}

	encoded, err := encodeCodeRecord(&CodeRecord{
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	})
	if err != nil {
		return err
	}

	hash := internal.HashCode(code)
	err = issueCodeLua.Run(ctx, s.redis,
		[]string{s.codePrefix() + hash, s.userPrefix() + userID},
		encoded,
		ttl.Milliseconds(),
		s.codePrefix(),
		hash,
	).Err()
	if err != nil {
		if err.Error() == "collision" {
			return ErrCodeCollision
		}
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return nil
}

// Consume redeems code once and returns the user it was issued to.
func (s *CodeStore) Consume(ctx context.Context, code string) (*CodeRecord, error) {
	hash := internal.HashCode(code)
	result, err := consumeCodeLua.Run(ctx, s.redis,
		[]string{s.codePrefix() + hash},
		s.userPrefix(),
		hash,
	).Result()
	if err != nil {
		if err.Error() == "not_found" {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrCodeRedisUnavailable)
	}

	record, err := decodeCodeRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	if time.Now().Unix() > record.ExpiresAt {
		return nil, ErrCodeNotFound
	}
	return record, nil
}

// Revoke drops any outstanding code for userID.
func (s *CodeStore) Revoke(ctx context.Context, userID string) error {
	userKey := s.userPrefix() + userID
	hash, err := s.redis.Get(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	if err := s.redis.Del(ctx, s.codePrefix()+hash, userKey).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return nil
}

// Layout: version(1) expiresAt(8) userIDLen(2) userID.
func encodeCodeRecord(record *CodeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(codeRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("code record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)

	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*CodeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	record := &CodeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}
	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	return record, nil
}
