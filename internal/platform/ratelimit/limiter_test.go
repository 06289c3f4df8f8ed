package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "rl:login:1.2.3.4", Key(Login, "1.2.3.4"))
}

func TestLimiter_SlidingWindow(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		t.Skipf("skip: cannot connect to redis at %s: %v", addr, err)
	}
	defer client.Close()

	l := NewLimiter(client)
	ctx := context.Background()
	p := Policy{Name: "test", Limit: 3, Window: 2 * time.Second}
	subject := gofakeit.IPv4Address() + "-" + gofakeit.LetterN(6)
	defer client.Del(ctx, Key(p, subject))

	for i := 0; i < 3; i++ {
		ok, _, err := l.Allow(ctx, p, subject)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should pass", i+1)
	}
	ok, retryAfter, err := l.Allow(ctx, p, subject)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, retryAfter > 0 && retryAfter <= p.Window, "retryAfter=%v", retryAfter)

	// 其他主体不受影响
	ok, _, err = l.Allow(ctx, p, subject+"-other")
	require.NoError(t, err)
	assert.True(t, ok)
	client.Del(ctx, Key(p, subject+"-other"))
}
