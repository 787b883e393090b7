package redis

import (
	"context"

	"github.com/juju/errors"
	goredis "github.com/redis/go-redis/v9"
)

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// KV keeps each key as a plain redis string without expiry.
type KV struct {
	client goredis.UniversalClient
	prefix string
}

func NewKV(opts Options) *KV {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &KV{client: client, prefix: opts.Prefix}
}

func (s *KV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Annotatef(err, "redis get %q", key)
	}
	return v, true, nil
}

func (s *KV) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return errors.Annotatef(err, "redis set %q", key)
	}
	return nil
}

func (s *KV) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *KV) Close() error { return s.client.Close() }
