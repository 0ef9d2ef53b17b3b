package pricefeed

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only when REDIS_URL points at a disposable server.
func TestRedisSlotIntegration(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	s := NewRedisSlot(client, time.Minute)
	s.key = "bilancio:test:" + t.Name()
	require.NoError(t, s.Invalidate(ctx))

	_, err = s.Latest(ctx)
	require.ErrorIs(t, err, ErrFeedUnavailable)

	q := Quote{Rate: 50000, FetchedAt: time.Now().UTC().Truncate(time.Second), Source: "test"}
	require.NoError(t, s.Store(ctx, q))
	got, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, q.Rate, got.Rate)
	assert.True(t, q.FetchedAt.Equal(got.FetchedAt))

	require.NoError(t, s.Invalidate(ctx))
	_, err = s.Latest(ctx)
	assert.ErrorIs(t, err, ErrFeedUnavailable)
}
