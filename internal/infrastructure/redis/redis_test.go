package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/domain"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestDedupStoreMarksAndExpires(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewDedupStore(client)
	ctx := context.Background()

	seen, err := store.IsProcessed(ctx, "m-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.MarkProcessed(ctx, "m-1", time.Hour))
	seen, err = store.IsProcessed(ctx, "m-1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, time.Hour, mr.TTL(processedKeyPrefix+"m-1"))

	mr.FastForward(2 * time.Hour)
	seen, err = store.IsProcessed(ctx, "m-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestDedupStoreCountsRetries(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewDedupStore(client)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := store.IncrRetry(ctx, "m-2", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, time.Minute, mr.TTL(retryKeyPrefix+"m-2"))

	got, err := store.IncrRetry(ctx, "m-3", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestDedupStoreSurfacesConnectionErrors(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewDedupStore(client)
	mr.Close()

	_, err := store.IsProcessed(context.Background(), "m-1")
	assert.Error(t, err)
}

func TestRealtimePusherPublishesOnRecipientChannel(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, "realtime:vendor:v-1")
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pusher := NewRealtimePusher(client)
	require.NoError(t, pusher.Notify(ctx, "order:new", domain.RecipientVendor, "v-1", map[string]any{"orderId": "o-1"}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "realtime:vendor:v-1", msg.Channel)

	var got realtimeMessage
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, "order:new", got.Event)
	assert.Equal(t, domain.RecipientVendor, got.RecipientType)
	assert.Equal(t, map[string]any{"orderId": "o-1"}, got.Payload)
}

func TestNewClientFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), addr, "", 0)
	assert.Error(t, err)
}
