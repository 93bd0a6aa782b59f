package redisseq

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSequencer(t *testing.T) (*Sequencer, *redis.Client) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is required for redis tests")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	prefix := "test:" + uuid.NewString() + ":"
	return New(client, Options{Prefix: prefix, TTL: time.Minute}), client
}

func TestNextIsScopedAndConcurrent(t *testing.T) {
	seq, client := setupSequencer(t)
	ctx := context.Background()

	const callers = 25
	var wg sync.WaitGroup
	values := make(chan int64, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, err := seq.Next(ctx, "GEN:20261017")
			if assert.NoError(t, err) {
				values <- next
			}
		}()
	}
	wg.Wait()
	close(values)

	seen := make(map[int64]bool)
	for value := range values {
		assert.False(t, seen[value], "duplicate %d", value)
		seen[value] = true
	}
	assert.Len(t, seen, callers)

	first, err := seq.Next(ctx, "CARD:20261017")
	require.NoError(t, err)
	assert.EqualValues(t, 1, first)

	ttl, err := client.TTL(ctx, seq.prefix+"GEN:20261017").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
