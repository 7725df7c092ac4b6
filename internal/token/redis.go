package token

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "qrattend:token:"
	// expiredGrace keeps a token's hash around past ExpiresAt so a late scan
	// reports ErrTokenExpired instead of ErrTokenNotFound.
	expiredGrace = 2 * time.Minute
)

// consumeScript checks and deletes a token hash in one server-side step.
// Returns 0 missing, 1 class mismatch, 2 expired (deleted), 3 consumed.
var consumeScript = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'class_id', 'expires_at')
if not f[1] then
  return 0
end
if f[1] ~= ARGV[1] then
  return 1
end
redis.call('DEL', KEYS[1])
if tonumber(ARGV[2]) > tonumber(f[2]) then
  return 2
end
return 3
`)

// RedisStore keeps each token as a hash with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store writing keys under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func (s *RedisStore) Insert(ctx context.Context, t Token) error {
	key := s.key(t.ID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "class_id", t.ClassID, "expires_at", t.ExpiresAt.UnixMilli())
		p.PExpireAt(ctx, key, t.ExpiresAt.Add(expiredGrace))
		return nil
	})
	return err
}

func (s *RedisStore) ValidateAndConsume(ctx context.Context, id, classID string, now time.Time) error {
	code, err := consumeScript.Run(ctx, s.client, []string{s.key(id)}, classID, now.UnixMilli()).Int()
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	switch code {
	case 0:
		return ErrTokenNotFound
	case 1:
		return ErrTokenClassMismatch
	case 2:
		return ErrTokenExpired
	case 3:
		return nil
	default:
		return fmt.Errorf("consume token: unexpected script result %d", code)
	}
}

// PurgeExpired is a no-op: Redis evicts token keys through their TTL.
func (s *RedisStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
