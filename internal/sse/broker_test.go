package sse

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/classgate/access-server/internal/redis"
)

func TestBroker_Local(t *testing.T) {
	b := NewBroker(nil)
	defer b.Close()

	t.Run("delivers events to subscribers of the device", func(t *testing.T) {
		c1 := b.Subscribe("room-1")
		c2 := b.Subscribe("room-2")
		defer b.Unsubscribe(c1)
		defer b.Unsubscribe(c2)

		require.NoError(t, b.Publish(context.Background(), "room-1", Event{Type: "granted", Data: []byte(`{}`)}))

		select {
		case ev := <-c1.Events:
			assert.Equal(t, "granted", ev.Type)
		case <-time.After(time.Second):
			t.Fatal("expected event")
		}

		select {
		case <-c2.Events:
			t.Fatal("room-2 should not receive room-1 events")
		default:
		}
	})

	t.Run("unsubscribe closes Done once", func(t *testing.T) {
		c := b.Subscribe("room-1")
		b.Unsubscribe(c)
		b.Unsubscribe(c)

		_, open := <-c.Done
		assert.False(t, open)
		assert.Equal(t, 0, b.ClientCount("room-1"))
	})
}

func TestBroker_Redis(t *testing.T) {
	mini := miniredis.RunT(t)
	client := &redisclient.Client{Client: redis.NewClient(&redis.Options{Addr: mini.Addr()})}
	defer client.Close()

	b := NewBroker(client)
	defer b.Close()

	c := b.Subscribe("room-1")
	defer b.Unsubscribe(c)

	// The pub/sub subscription is established asynchronously.
	require.Eventually(t, func() bool {
		return len(mini.PubSubChannels("display:*")) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, b.Publish(context.Background(), "room-1", Event{Type: "waiting", Data: []byte(`{"a":1}`)}))

	select {
	case ev := <-c.Events:
		assert.Equal(t, "waiting", ev.Type)
		assert.JSONEq(t, `{"a":1}`, string(ev.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("expected event over redis")
	}
}
