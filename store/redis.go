package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds every Redis call unless RedisConfig.Timeout is set.
const DefaultTimeout = 2 * time.Second

// RedisStore is the networked KV backend. Every call races a timeout and fails soft.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
	log     logrus.FieldLogger
}

// Ensure RedisStore implements KV interface
var _ KV = (*RedisStore)(nil)

// RedisConfig for creating a Redis store
type RedisConfig struct {
	Addr     string             // Redis address (e.g., "localhost:6379")
	URL      string             // Optional redis:// URL, takes precedence over Addr
	Password string             // Redis password (empty for no auth)
	DB       int                // Redis database number
	Timeout  time.Duration      // Per-call timeout (default: 2s)
	Logger   logrus.FieldLogger // Defaults to the standard logrus logger
}

// NewRedisStore creates a new Redis-backed store. The connection is lazy; use Ping to verify it.
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	opts := &redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	}
	if config.URL != "" {
		parsed, err := redis.ParseURL(config.URL)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}
	return NewRedisStoreFromClient(redis.NewClient(opts), config.Timeout, config.Logger), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, timeout time.Duration, log logrus.FieldLogger) *RedisStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisStore{client: client, timeout: timeout, log: log}
}

// do runs fn under the store timeout and reports whether it succeeded.
// redis.Nil counts as failure but is not logged.
func (s *RedisStore) do(ctx context.Context, op, key string, fn func(ctx context.Context) error) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	entry := s.log.WithFields(logrus.Fields{"op": op, "key": key, "latency": time.Since(start)})
	if err != nil && !errors.Is(err, redis.Nil) {
		entry.WithError(err).Warn("store call failed")
		return false
	}
	entry.Debug("store call")
	return err == nil
}

// Get retrieves the string value for key
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool) {
	var val string
	ok := s.do(ctx, "get", key, func(ctx context.Context) error {
		var err error
		val, err = s.client.Get(ctx, key).Result()
		return err
	})
	return val, ok
}

// Set stores value for key; ttl <= 0 keeps it forever
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	return s.do(ctx, "set", key, func(ctx context.Context) error {
		return s.client.Set(ctx, key, value, positive(ttl)).Err()
	})
}

// Delete removes keys and returns how many existed
func (s *RedisStore) Delete(ctx context.Context, keys ...string) int64 {
	if len(keys) == 0 {
		return 0
	}
	var n int64
	s.do(ctx, "del", keys[0], func(ctx context.Context) error {
		var err error
		n, err = s.client.Del(ctx, keys...).Result()
		return err
	})
	return n
}

// Incr increments key and sets ttl, in one transaction, when the counter has none
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) int64 {
	var n int64
	s.do(ctx, "incr", key, func(ctx context.Context) error {
		pipe := s.client.TxPipeline()
		incr := pipe.Incr(ctx, key)
		if ttl > 0 {
			// NX also heals a counter left without a ttl
			pipe.ExpireNX(ctx, key, ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		n = incr.Val()
		return nil
	})
	return n
}

// MGet returns len(keys) entries, nil where a key is missing
func (s *RedisStore) MGet(ctx context.Context, keys ...string) []*string {
	out := make([]*string, len(keys))
	if len(keys) == 0 {
		return out
	}
	s.do(ctx, "mget", keys[0], func(ctx context.Context) error {
		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		for i, v := range vals {
			if str, ok := v.(string); ok && i < len(out) {
				out[i] = &str
			}
		}
		return nil
	})
	return out
}

// MSet stores several keys with the same ttl in one round trip
func (s *RedisStore) MSet(ctx context.Context, values map[string]string, ttl time.Duration) bool {
	if len(values) == 0 {
		return true
	}
	return s.do(ctx, "mset", "", func(ctx context.Context) error {
		pipe := s.client.Pipeline()
		for k, v := range values {
			pipe.Set(ctx, k, v, positive(ttl))
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Expire sets a ttl on key
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	var ok bool
	s.do(ctx, "expire", key, func(ctx context.Context) error {
		var err error
		ok, err = s.client.Expire(ctx, key, ttl).Result()
		return err
	})
	return ok
}

// HGet reads one hash field
func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, bool) {
	var val string
	ok := s.do(ctx, "hget", key, func(ctx context.Context) error {
		var err error
		val, err = s.client.HGet(ctx, key, field).Result()
		return err
	})
	return val, ok
}

// HSet writes hash fields
func (s *RedisStore) HSet(ctx context.Context, key string, values map[string]string) bool {
	if len(values) == 0 {
		return true
	}
	args := make([]any, 0, len(values)*2)
	for k, v := range values {
		args = append(args, k, v)
	}
	return s.do(ctx, "hset", key, func(ctx context.Context) error {
		return s.client.HSet(ctx, key, args...).Err()
	})
}

// HGetAll reads a whole hash
func (s *RedisStore) HGetAll(ctx context.Context, key string) map[string]string {
	out := map[string]string{}
	s.do(ctx, "hgetall", key, func(ctx context.Context) error {
		vals, err := s.client.HGetAll(ctx, key).Result()
		if err == nil {
			out = vals
		}
		return err
	})
	return out
}

// HIncrBy increments a hash field
func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, n int64) int64 {
	var v int64
	s.do(ctx, "hincrby", key, func(ctx context.Context) error {
		var err error
		v, err = s.client.HIncrBy(ctx, key, field, n).Result()
		return err
	})
	return v
}

// LPush prepends values and returns the new length
func (s *RedisStore) LPush(ctx context.Context, key string, values ...string) int64 {
	if len(values) == 0 {
		return 0
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	var n int64
	s.do(ctx, "lpush", key, func(ctx context.Context) error {
		var err error
		n, err = s.client.LPush(ctx, key, args...).Result()
		return err
	})
	return n
}

// LTrim keeps elements start..stop
func (s *RedisStore) LTrim(ctx context.Context, key string, start, stop int64) bool {
	return s.do(ctx, "ltrim", key, func(ctx context.Context) error {
		return s.client.LTrim(ctx, key, start, stop).Err()
	})
}

// LRange reads elements start..stop
func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) []string {
	out := []string{}
	s.do(ctx, "lrange", key, func(ctx context.Context) error {
		vals, err := s.client.LRange(ctx, key, start, stop).Result()
		if err == nil {
			out = vals
		}
		return err
	})
	return out
}

// ZAdd adds member at score
func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) int64 {
	var n int64
	s.do(ctx, "zadd", key, func(ctx context.Context) error {
		var err error
		n, err = s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Result()
		return err
	})
	return n
}

// ZCount counts members with min <= score <= max
func (s *RedisStore) ZCount(ctx context.Context, key string, min, max float64) int64 {
	var n int64
	s.do(ctx, "zcount", key, func(ctx context.Context) error {
		var err error
		n, err = s.client.ZCount(ctx, key, score(min), score(max)).Result()
		return err
	})
	return n
}

// ZRemRangeByScore removes members with min <= score <= max
func (s *RedisStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) int64 {
	var n int64
	s.do(ctx, "zremrangebyscore", key, func(ctx context.Context) error {
		var err error
		n, err = s.client.ZRemRangeByScore(ctx, key, score(min), score(max)).Result()
		return err
	})
	return n
}

// WindowCount prunes and counts a sliding window in one pipeline
func (s *RedisStore) WindowCount(ctx context.Context, key string, windowStart float64) int64 {
	var n int64
	s.do(ctx, "window_count", key, func(ctx context.Context) error {
		pipe := s.client.Pipeline()
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+score(windowStart))
		count := pipe.ZCount(ctx, key, score(windowStart), "+inf")
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		n = count.Val()
		return nil
	})
	return n
}

// WindowHit prunes, counts, records and refreshes a sliding window in one pipeline
func (s *RedisStore) WindowHit(ctx context.Context, key, member string, at, windowStart float64, ttl time.Duration) int64 {
	var n int64
	s.do(ctx, "window_hit", key, func(ctx context.Context) error {
		pipe := s.client.Pipeline()
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+score(windowStart))
		count := pipe.ZCount(ctx, key, score(windowStart), "+inf")
		pipe.ZAdd(ctx, key, redis.Z{Score: at, Member: member})
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		n = count.Val()
		return nil
	})
	return n
}

// Clear removes all security:* keys from Redis and returns how many were deleted
func (s *RedisStore) Clear(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var n int64
	iter := s.client.Scan(ctx, 0, "security:*", 0).Iterator()
	for iter.Next(ctx) {
		deleted, err := s.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			s.log.WithError(err).WithField("key", iter.Val()).Warn("clear: delete failed")
			continue
		}
		n += deleted
	}
	if err := iter.Err(); err != nil {
		s.log.WithError(err).Warn("clear: scan failed")
	}
	return n
}

// Ping checks if Redis connection is alive
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func score(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func positive(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}
