package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func TestInvalidationMessage_JSON(t *testing.T) {
	data, err := json.Marshal(&InvalidationMessage{EntitlementID: 7, Origin: "node-a"})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "entitlement_id")
	assert.Contains(t, raw, "origin")
	_, hasReason := raw["reason"]
	assert.False(t, hasReason, "empty reason should be omitted")
}

func TestDefaultChannel(t *testing.T) {
	_, client := setupTestRedis(t)

	assert.Equal(t, ChannelEntitlementInvalidations, NewPublisher(client, "").channel)
	assert.Equal(t, ChannelEntitlementInvalidations, NewSubscriber(client, "").channel)
	assert.Equal(t, "custom", NewSubscriber(client, "custom").channel)
}

func TestPublisherSubscriber(t *testing.T) {
	mr, client := setupTestRedis(t)

	publisher := NewPublisher(client, "")
	subscriber := NewSubscriber(client, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *InvalidationMessage, 1)
	done := make(chan error, 1)
	go func() {
		done <- subscriber.Subscribe(ctx, func(msg *InvalidationMessage) {
			received <- msg
		})
	}()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(ChannelEntitlementInvalidations)[ChannelEntitlementInvalidations] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, publisher.PublishInvalidation(ctx, &InvalidationMessage{EntitlementID: 99, Origin: "node-a", Reason: "allow_user"}))

	select {
	case msg := <-received:
		assert.Equal(t, int64(99), msg.EntitlementID)
		assert.Equal(t, "node-a", msg.Origin)
		assert.Equal(t, "allow_user", msg.Reason)
	case <-ctx.Done():
		t.Fatal("timeout waiting for invalidation")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
