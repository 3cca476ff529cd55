package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"product-rec-agent/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubPublishReachesWatchers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, "test", logger.NewNopLogger())
	go hub.Run(ctx)

	watcher := &Client{Hub: hub, SessionID: "s-1", Send: make(chan []byte, 4)}
	other := &Client{Hub: hub, SessionID: "s-2", Send: make(chan []byte, 4)}
	hub.register <- watcher
	hub.register <- other

	require.Eventually(t, func() bool { return hub.Watchers("s-1") == 1 && hub.Watchers("s-2") == 1 }, time.Second, time.Millisecond)

	require.NoError(t, hub.Publish(ctx, "s-1", "turn.completed", map[string]string{"content": "hi"}))

	select {
	case raw := <-watcher.Send:
		var msg struct {
			Type string            `json:"type"`
			Data map[string]string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "turn.completed", msg.Type)
		assert.Equal(t, "hi", msg.Data["content"])
	case <-time.After(time.Second):
		t.Fatal("watcher did not receive the event")
	}

	assert.Empty(t, other.Send)

	hub.unregister <- watcher
	require.Eventually(t, func() bool { return hub.Watchers("s-1") == 0 }, time.Second, time.Millisecond)

	_, open := <-watcher.Send
	assert.False(t, open)
}

func TestHubDeliverRacingUnregister(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, "test", logger.NewNopLogger())
	go hub.Run(ctx)

	for i := 0; i < 200; i++ {
		c := &Client{Hub: hub, SessionID: "s-1", Send: make(chan []byte, 1)}
		hub.register <- c
		require.Eventually(t, func() bool { return hub.Watchers("s-1") == 1 }, time.Second, time.Millisecond)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 10; j++ {
				hub.deliver("s-1", []byte(`{}`))
			}
		}()
		hub.unregister <- c

		// A send on a closed Send channel would crash the test binary here.
		<-done
		require.Eventually(t, func() bool { return hub.Watchers("s-1") == 0 }, time.Second, time.Millisecond)
	}
}

func TestHubDropsClientWithFullBuffer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, "test", logger.NewNopLogger())
	go hub.Run(ctx)

	slow := &Client{Hub: hub, SessionID: "s-1", Send: make(chan []byte, 1)}
	hub.register <- slow
	require.Eventually(t, func() bool { return hub.Watchers("s-1") == 1 }, time.Second, time.Millisecond)

	hub.deliver("s-1", []byte(`{"n":1}`))
	hub.deliver("s-1", []byte(`{"n":2}`))

	require.Eventually(t, func() bool { return hub.Watchers("s-1") == 0 }, time.Second, time.Millisecond)
}
