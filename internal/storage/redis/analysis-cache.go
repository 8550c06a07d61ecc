package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bricks-cloud/dkpii/internal/pii"
	"github.com/redis/go-redis/v9"
)

const analysisPrefix = "dkpii-analysis-"

type AnalysisCache struct {
	client *redis.Client
	wt     time.Duration
	rt     time.Duration
	ttl    time.Duration
}

func NewAnalysisCache(c *redis.Client, wt time.Duration, rt time.Duration, ttl time.Duration) *AnalysisCache {
	return &AnalysisCache{
		client: c,
		wt:     wt,
		rt:     rt,
		ttl:    ttl,
	}
}

func (c *AnalysisCache) Set(key string, result *pii.Result) error {
	bs, err := json.Marshal(result)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.wt)
	defer cancel()

	return c.client.Set(ctx, analysisPrefix+key, bs, c.ttl).Err()
}

// Get returns nil without an error when the key is not cached.
func (c *AnalysisCache) Get(key string) (*pii.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.rt)
	defer cancel()

	bs, err := c.client.Get(ctx, analysisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	r := &pii.Result{}
	if err := json.Unmarshal(bs, r); err != nil {
		return nil, err
	}

	return r, nil
}
