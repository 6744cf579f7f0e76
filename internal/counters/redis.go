package counters

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"kiddoquest/internal/models"
)

// counterTTL keeps a day's hash around long enough for weekly reads
const counterTTL = 8 * 24 * time.Hour

// RedisStore keeps counters in one Redis hash per family and day
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a counter store on client
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "kiddoquest:counters"}
}

// NewRedisClient parses a redis:// URL
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (s *RedisStore) key(familyID, day string) string {
	return s.prefix + ":" + familyID + ":" + day
}

// Increment applies every delta with HINCRBY in one MULTI/EXEC
func (s *RedisStore) Increment(ctx context.Context, familyID, day string, deltas map[string]int64) error {
	names := sortedNames(deltas)
	if len(names) == 0 {
		return nil
	}
	key := s.key(familyID, day)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, name := range names {
			pipe.HIncrBy(ctx, key, name, deltas[name])
		}
		pipe.Expire(ctx, key, counterTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to increment counters: %w", err)
	}
	return nil
}

// Get returns the counters of a family on a day; missing counters are zero
func (s *RedisStore) Get(ctx context.Context, familyID, day string) (models.DailyCounters, error) {
	out := models.DailyCounters{FamilyID: familyID, Date: day}
	raw, err := s.client.HGetAll(ctx, s.key(familyID, day)).Result()
	if err != nil {
		return out, fmt.Errorf("failed to read counters: %w", err)
	}
	values := make(map[string]int64, len(raw))
	for name, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return out, fmt.Errorf("counter %s has non-integer value %q", name, v)
		}
		values[name] = n
	}
	fill(&out, values)
	return out, nil
}
