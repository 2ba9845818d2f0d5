package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/vwap-ticker/internal/model"
)

// Latest stores the last published sample for each venue/pair.
type Latest struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewLatest creates a cache on client. A zero ttl keeps keys forever.
func NewLatest(client redis.Cmdable, prefix string, ttl time.Duration) *Latest {
	return &Latest{client: client, prefix: prefix, ttl: ttl}
}

// Connect parses a redis:// URL and verifies the server responds.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (l *Latest) key(v model.Venue, p model.Pair) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, v, p)
}

// Publish overwrites the cached sample for s's venue and pair.
func (l *Latest) Publish(ctx context.Context, s model.Sample) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}
	if err := l.client.Set(ctx, l.key(s.Venue, s.Pair), string(data), l.ttl).Err(); err != nil {
		return fmt.Errorf("set latest sample: %w", err)
	}
	return nil
}

// Get returns the cached sample for venue and pair. ok is false when none is cached.
func (l *Latest) Get(ctx context.Context, v model.Venue, p model.Pair) (s model.Sample, ok bool, err error) {
	data, err := l.client.Get(ctx, l.key(v, p)).Result()
	if errors.Is(err, redis.Nil) {
		return model.Sample{}, false, nil
	}
	if err != nil {
		return model.Sample{}, false, fmt.Errorf("get latest sample: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return model.Sample{}, false, fmt.Errorf("unmarshal sample: %w", err)
	}
	return s, true, nil
}

// All returns every cached sample, ordered by venue then pair.
func (l *Latest) All(ctx context.Context) ([]model.Sample, error) {
	keys := make([]string, 0, len(model.Venues)*len(model.Pairs))
	for _, v := range model.Venues {
		for _, p := range model.Pairs {
			keys = append(keys, l.key(v, p))
		}
	}

	values, err := l.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget latest samples: %w", err)
	}

	samples := make([]model.Sample, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// nil for missing keys
			continue
		}
		var s model.Sample
		if err := json.Unmarshal([]byte(str), &s); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", keys[i], err)
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// Ping verifies the Redis connection.
func (l *Latest) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}
