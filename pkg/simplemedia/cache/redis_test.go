package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

func TestNewRedis_Defaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	c := NewRedis(client, 0, "")
	assert.Equal(t, DefaultTTL, c.ttl)
	assert.Equal(t, "simplemedia:asset:1700000000.ab", c.Key("1700000000.ab"))

	c = NewRedis(client, time.Minute, "p:")
	assert.Equal(t, "p:x", c.Key("x"))
}

func TestDial_InvalidURL(t *testing.T) {
	_, err := Dial(context.Background(), "not a url", 0)
	assert.Error(t, err)
}

func TestRedis_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := Dial(ctx, url, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	fileID := "test." + time.Now().Format("150405.000000000")
	_, err = c.Get(ctx, fileID)
	assert.ErrorIs(t, err, simplemedia.ErrCacheMiss)

	details := &simplemedia.AssetDetails{
		FileID:   fileID,
		Kind:     simplemedia.KindPhoto,
		Original: "http://h/p/a.jpg",
		Sizes:    simplemedia.Variants{100: "http://h/p/a_100x100.jpg"},
	}
	require.NoError(t, c.Set(ctx, details))

	got, err := c.Get(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, details.Sizes, got.Sizes)
	assert.Equal(t, details.Original, got.Original)

	require.NoError(t, c.Delete(ctx, fileID))
	_, err = c.Get(ctx, fileID)
	assert.ErrorIs(t, err, simplemedia.ErrCacheMiss)
}
