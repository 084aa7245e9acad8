package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmbot/dmbot/internal/core"
)

func dialHub(t *testing.T, hub *EventHub) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn, srv
}

func TestEventHubBroadcastsBotUpdates(t *testing.T) {
	hub := NewEventHub()
	conn, _ := dialHub(t, hub)

	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	hub.Publish(core.Event{Type: core.EventTargetSet, Data: map[string]any{"subreddit": "golang"}, Time: at})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Event string         `json:"event"`
		Type  string         `json:"type"`
		Data  map[string]any `json:"data"`
		Time  time.Time      `json:"time"`
	}
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, EventName, msg.Event)
	assert.Equal(t, core.EventTargetSet, msg.Type)
	assert.Equal(t, "golang", msg.Data["subreddit"])
	assert.True(t, at.Equal(msg.Time))
}

func TestEventHubDropsClientOnDisconnect(t *testing.T) {
	hub := NewEventHub()
	conn, _ := dialHub(t, hub)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventHubCloseRefusesNewClients(t *testing.T) {
	hub := NewEventHub()
	conn, srv := dialHub(t, hub)

	hub.Close()
	assert.Zero(t, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)

	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, srv.URL, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventHubPublishWithoutClients(t *testing.T) {
	hub := NewEventHub()
	assert.NotPanics(t, func() { hub.Publish(core.Event{Type: core.EventBotStarted}) })
}
