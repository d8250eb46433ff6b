package livefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srkrcodingclub/iconcoderz/go/internal/events"
)

func TestHubBroadcastsPublishedEvents(t *testing.T) {
	hub := NewHub(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, hub.Serve(w, r, "admin-1"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	event, err := events.New(uuid.New(), events.TypeCheckedIn, "r1", time.Now(), events.CheckedIn{RegistrationCode: "IC2K26-AB12"})
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), event))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got events.Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, events.TypeCheckedIn, got.Type)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubPublishWithoutClients(t *testing.T) {
	hub := NewHub(DefaultConfig())
	event, err := events.New(uuid.New(), events.TypeCheckedIn, "r1", time.Now(), struct{}{})
	require.NoError(t, err)

	for i := 0; i < 300; i++ {
		assert.NoError(t, hub.Publish(context.Background(), event))
	}
	assert.Len(t, hub.incoming, cap(hub.incoming))
}

func TestAllowOrigins(t *testing.T) {
	check := AllowOrigins([]string{"http://localhost:5173"})

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	assert.True(t, check(req), "no origin header")

	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.True(t, AllowOrigins([]string{"*"})(req))
}
