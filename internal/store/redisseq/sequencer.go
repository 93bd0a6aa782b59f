// Package redisseq allocates token-number sequences with Redis INCR so several
// service instances share one counter per department and day.
package redisseq

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "token_seq:"
	defaultTTL    = 48 * time.Hour
)

type Sequencer struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type Options struct {
	Prefix string
	// TTL bounds how long a day's counter survives; it must exceed one day.
	TTL time.Duration
}

func New(client *redis.Client, opts Options) *Sequencer {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Sequencer{client: client, prefix: prefix, ttl: ttl}
}

func (s *Sequencer) Next(ctx context.Context, scope string) (int64, error) {
	key := s.prefix + scope
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
