package redis

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Addr(t *testing.T) {
	assert.Equal(t, "localhost:6379", Options{Hosts: "localhost", Port: "6379"}.addr())
	assert.Equal(t, "a:6380", Options{Hosts: "a,b", Port: "6380"}.addr())
}

func TestAnalysisCache_Unreachable(t *testing.T) {
	c := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer c.Close()

	cache := NewAnalysisCache(c, 200*time.Millisecond, 200*time.Millisecond, time.Minute)

	_, err := cache.Get("missing")
	assert.NotNil(t, err)

	_, err = NewClient(Options{Hosts: "127.0.0.1", Port: "1", ReadTimeout: 200 * time.Millisecond})
	require.NotNil(t, err)
}
