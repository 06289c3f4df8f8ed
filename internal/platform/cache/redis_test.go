package cache

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient_Unreachable(t *testing.T) {
	// 127.0.0.1:1 上不会有 Redis
	client, err := NewRedisClient("127.0.0.1:1", "", 0)
	require.Error(t, err)
	assert.Nil(t, client)
}

func TestNewRedisClient(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client, err := NewRedisClient(addr, "", 15)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer client.Close()
	assert.Equal(t, 15, client.Options().DB)
}
