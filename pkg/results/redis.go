package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const recentKey = "results:recent"

// maxRecent caps the recent-results index.
const maxRecent = 100

// RedisStore caches records as JSON with a TTL.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

var _ Repository = (*RedisStore)(nil)

func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{redis: client, ttl: ttl}, nil
}

func resultKey(id string) string {
	return fmt.Sprintf("result:%s", id)
}

func (s *RedisStore) Save(ctx context.Context, rec *Record) error {
	prepare(rec)
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, resultKey(rec.ID), data, s.ttl)
	pipe.LPush(ctx, recentKey, rec.ID)
	pipe.LTrim(ctx, recentKey, 0, maxRecent-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save result %s: %w", rec.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Record, error) {
	data, err := s.redis.Get(ctx, resultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode result %s: %w", id, err)
	}
	return rec, nil
}

// List returns the newest records first. Expired entries are skipped.
func (s *RedisStore) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}
	ids, err := s.redis.LRange(ctx, recentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.redis.Close()
}
