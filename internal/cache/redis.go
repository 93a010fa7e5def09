package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pavelanni/essayeval/internal/model"
)

const keyPrefix = "evaluation:"

// Redis is a ResultCache backed by a Redis server. Results are stored as JSON.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps client. A non-positive ttl selects DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func (c *Redis) Set(ctx context.Context, r *model.EvaluationResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+r.ID, data, c.ttl).Err()
}

func (c *Redis) Get(ctx context.Context, id string) (*model.EvaluationResult, error) {
	data, err := c.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var r model.EvaluationResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Redis) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, keyPrefix+id).Err()
}
