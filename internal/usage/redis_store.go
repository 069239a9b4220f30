package usage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/voxdesk/voxdesk/internal/identity"
)

var redisIncrementScript = redis.NewScript(`
redis.call("HINCRBY", KEYS[1], "seconds", ARGV[1])
local calls = redis.call("HINCRBY", KEYS[1], "calls", 1)
redis.call("EXPIRE", KEYS[1], ARGV[2])
return calls
`)

var redisSightingScript = redis.NewScript(`
local seen = redis.call("HINCRBY", KEYS[1], "times_seen", 1)
redis.call("HSETNX", KEYS[1], "first_seen", ARGV[1])
redis.call("HSET", KEYS[1], "last_seen", ARGV[1])
return seen
`)

// RedisStore keeps counters in Redis hashes that expire after ttl.
// Fingerprint sightings never expire.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisStore{
		client: client,
		prefix: strings.TrimSpace(prefix),
		ttl:    ttl,
	}
}

// Increment adds to the counter hash in one script call.
func (s *RedisStore) Increment(ctx context.Context, key identity.Key, period string, seconds int64, _ time.Time) error {
	ttlSeconds := int64(s.ttl / time.Second)
	if errRun := redisIncrementScript.Run(ctx, s.client, []string{s.counterKey(period, key)}, seconds, ttlSeconds).Err(); errRun != nil {
		return fmt.Errorf("usage redis: increment: %w", errRun)
	}
	return nil
}

// Get reads the counter hash.
func (s *RedisStore) Get(ctx context.Context, key identity.Key, period string) (Counter, error) {
	out := Counter{Key: key, Period: period}
	values, errGet := s.client.HGetAll(ctx, s.counterKey(period, key)).Result()
	if errGet != nil {
		return out, fmt.Errorf("usage redis: get: %w", errGet)
	}
	out.Seconds = parseInt(values["seconds"])
	out.Calls = parseInt(values["calls"])
	return out, nil
}

// RecordSighting increments the fingerprint hash.
func (s *RedisStore) RecordSighting(ctx context.Context, fingerprint string, now time.Time) error {
	stamp := strconv.FormatInt(now.UTC().Unix(), 10)
	if errRun := redisSightingScript.Run(ctx, s.client, []string{s.sightingKey(fingerprint)}, stamp).Err(); errRun != nil {
		return fmt.Errorf("usage redis: sighting: %w", errRun)
	}
	return nil
}

// Sighting reads the fingerprint hash.
func (s *RedisStore) Sighting(ctx context.Context, fingerprint string) (Sighting, error) {
	values, errGet := s.client.HGetAll(ctx, s.sightingKey(fingerprint)).Result()
	if errGet != nil {
		return Sighting{}, fmt.Errorf("usage redis: get sighting: %w", errGet)
	}
	out := Sighting{Fingerprint: fingerprint, TimesSeen: parseInt(values["times_seen"])}
	if first := parseInt(values["first_seen"]); first > 0 {
		out.FirstSeenAt = time.Unix(first, 0).UTC()
	}
	if last := parseInt(values["last_seen"]); last > 0 {
		out.LastSeenAt = time.Unix(last, 0).UTC()
	}
	return out, nil
}

// List scans the counter hashes of a period.
func (s *RedisStore) List(ctx context.Context, filter ListFilter) ([]Counter, error) {
	typePattern := "*"
	if filter.IdentityType != "" {
		typePattern = string(filter.IdentityType)
	}
	match := s.join("usage", filter.Period, typePattern, "*")
	limit := normalizeLimit(filter.Limit)

	var out []Counter
	iter := s.client.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		key, ok := s.parseCounterKey(iter.Val())
		if !ok {
			continue
		}
		counter, errGet := s.Get(ctx, key, filter.Period)
		if errGet != nil {
			return nil, errGet
		}
		out = append(out, counter)
	}
	if errIter := iter.Err(); errIter != nil {
		return nil, fmt.Errorf("usage redis: scan: %w", errIter)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Calls != out[j].Calls {
			return out[i].Calls > out[j].Calls
		}
		return out[i].Key.String() < out[j].Key.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RedisStore) counterKey(period string, key identity.Key) string {
	return s.join("usage", period, string(key.Type), key.Value)
}

func (s *RedisStore) sightingKey(fingerprint string) string {
	return s.join("fingerprint", fingerprint)
}

// parseCounterKey recovers the identity key from a counter hash name.
func (s *RedisStore) parseCounterKey(redisKey string) (identity.Key, bool) {
	rest := redisKey
	if s.prefix != "" {
		var ok bool
		rest, ok = strings.CutPrefix(redisKey, s.prefix+":")
		if !ok {
			return identity.Key{}, false
		}
	}
	parts := strings.SplitN(rest, ":", 4)
	if len(parts) != 4 || parts[0] != "usage" {
		return identity.Key{}, false
	}
	return identity.Key{Type: identity.Type(parts[2]), Value: parts[3]}, true
}

func (s *RedisStore) join(parts ...string) string {
	key := strings.Join(parts, ":")
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func parseInt(raw string) int64 {
	if raw == "" {
		return 0
	}
	v, errParse := strconv.ParseInt(raw, 10, 64)
	if errParse != nil {
		return 0
	}
	return v
}
