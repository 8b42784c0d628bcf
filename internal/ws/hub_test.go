package ws

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-exchange/internal/events"
	"otc-exchange/internal/pda"
)

func readMsg(t *testing.T, c *websocket.Conn) Msg {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, b, err := c.ReadMessage()
	require.NoError(t, err)
	var m Msg
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestHubRoutesEventsByTopic(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer c.Close()

	listing := pda.Address(sha256.Sum256([]byte("listing")))
	platform := pda.Address(sha256.Sum256([]byte("platform")))
	topic := ListingTopic(listing)

	require.NoError(t, c.WriteJSON(map[string]string{"action": "subscribe", "topic": topic}))
	ack := readMsg(t, c)
	assert.Equal(t, "subscribed", ack.Type)
	assert.Equal(t, 1, hub.Subscribers(topic))

	rec := events.New(events.KindSwapExecuted, platform, 10)
	rec.Listing = &listing
	rec.Platform = &platform
	hub.Emit(context.Background(), rec)

	m := readMsg(t, c)
	assert.Equal(t, "swap.executed", m.Type)
	assert.Equal(t, topic, m.Topic)

	require.NoError(t, c.WriteJSON(map[string]string{"action": "unsubscribe", "topic": topic}))
	assert.Equal(t, "unsubscribed", readMsg(t, c).Type)
	assert.Equal(t, 0, hub.Subscribers(topic))
}
