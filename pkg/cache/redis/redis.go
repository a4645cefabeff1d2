// Package redis backs the report cache with a shared redis instance, for
// deployments where several prradar replicas should see the same reports.
package redis

import (
	"context"
	"time"

	r "gopkg.in/redis.v5"
)

const prefix = "_PRRADAR_"

type Cache struct {
	client *r.Client
}

func NewRedisCache(url string) (*Cache, error) {
	opts, err := r.ParseURL(url)
	if err != nil {
		return nil, err
	}

	return &Cache{
		client: r.NewClient(opts),
	}, nil
}

func (c Cache) Get(_ context.Context, key string) ([]byte, error) {
	content, err := c.client.Get(prefix + key).Bytes()
	if err == r.Nil {
		return nil, nil
	}
	return content, err
}

func (c Cache) Set(_ context.Context, key string, content []byte, duration time.Duration) error {
	return c.client.Set(prefix+key, content, duration).Err()
}
