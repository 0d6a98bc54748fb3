package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const defaultKeyPrefix = "ratelimit:"

// casScript writes the new value and token only while the stored token
// still matches the expected one. A missing key matches the empty token.
// KEYS[1]: state key
// ARGV[1]: expected token ("" for create)
// ARGV[2]: new state bytes
// ARGV[3]: new token
// ARGV[4]: ttl in milliseconds (0 disables expiry)
// Returns 1 if the swap happened, 0 on token mismatch.
const casScript = `
local current = redis.call("hget", KEYS[1], "token")
if current == false then
	current = ""
end
if current ~= ARGV[1] then
	return 0
end
redis.call("hset", KEYS[1], "value", ARGV[2], "token", ARGV[3])
if tonumber(ARGV[4]) > 0 then
	redis.call("pexpire", KEYS[1], ARGV[4])
end
return 1
`

var redisCASScript = redis.NewScript(casScript)

// redisStore implements the Store interface using Redis. Each key is a
// hash holding the encoded state under "value" and the concurrency
// token under "token"; the Lua script makes the conditional write
// atomic, so one Redis can be shared by many processes.
type redisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// RedisStoreOption configures a Redis store.
type RedisStoreOption func(*redisStore)

// WithPrefix sets the key namespace prefix. Default is "ratelimit:".
func WithPrefix(prefix string) RedisStoreOption {
	return func(s *redisStore) {
		s.prefix = prefix
	}
}

// WithTTL sets a per-key expiry, refreshed on every write, so state for
// subjects that stop sending requests does not accumulate forever.
// Pick a TTL comfortably longer than the longest configured window.
// Default is no expiry.
func WithTTL(ttl time.Duration) RedisStoreOption {
	return func(s *redisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewRedisStore creates a new Redis rate limit state store.
// It expects a pre-configured redis.Cmdable (e.g. redis.Client or
// redis.ClusterClient).
func NewRedisStore(client redis.Cmdable, options ...RedisStoreOption) Store {
	s := &redisStore{
		client: client,
		prefix: defaultKeyPrefix,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Get implements the Store interface for Redis storage.
func (s *redisStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	res, err := s.client.HMGet(ctx, s.prefix+key, "value", "token").Result()
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("redis hmget failed")
		return nil, "", backendError(err)
	}
	if len(res) != 2 || res[0] == nil || res[1] == nil {
		// missing key, or a half-written record from something else
		return nil, "", nil
	}
	value, ok := res[0].(string)
	if !ok {
		return nil, "", backendError(fmt.Errorf("unexpected value type %T for key %s", res[0], key))
	}
	token, ok := res[1].(string)
	if !ok {
		return nil, "", backendError(fmt.Errorf("unexpected token type %T for key %s", res[1], key))
	}
	return []byte(value), token, nil
}

// CompareAndSwap implements the Store interface for Redis storage using
// a Lua script for atomicity.
func (s *redisStore) CompareAndSwap(ctx context.Context, key string, expectedToken string, value []byte) error {
	newToken := uuid.NewString()
	res, err := redisCASScript.Run(ctx, s.client, []string{s.prefix + key},
		expectedToken, string(value), newToken, s.ttl.Milliseconds()).Result()
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("redis cas script execution failed")
		return backendError(err)
	}

	swapped, ok := res.(int64)
	if !ok {
		log.Error().Str("key", key).Interface("result", res).Msg("redis cas script returned unexpected type")
		return backendError(fmt.Errorf("unexpected result type %T from cas script for key %s", res, key))
	}
	if swapped != 1 {
		log.Debug().Str("key", key).Msg("redis cas rejected, stored token changed")
		return ErrBackendConflict
	}
	return nil
}
