package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(hub *Hub, team string) *Client {
	return &Client{TeamID: team, Send: make(chan OutgoingMessage, 4), Hub: hub}
}

func TestHubBroadcastToTeams(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	a1, a2, b := newClient(hub, "A"), newClient(hub, "A"), newClient(hub, "B")
	hub.register <- a1
	hub.register <- a2
	hub.register <- b

	hub.BroadcastToTeams([]string{"A", "B"}, OutgoingMessage{Event: "room_state"})

	for _, c := range []*Client{a1, a2, b} {
		select {
		case m := <-c.Send:
			assert.Equal(t, "room_state", m.Event)
		case <-time.After(time.Second):
			t.Fatalf("client of team %s got nothing", c.TeamID)
		}
	}
}

func TestHubSendToTeam(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	a, b := newClient(hub, "A"), newClient(hub, "B")
	hub.register <- a
	hub.register <- b

	hub.SendToTeam("A", OutgoingMessage{Event: "private", Data: "hello A"})

	select {
	case m := <-a.Send:
		assert.Equal(t, "private", m.Event)
		assert.Equal(t, "hello A", m.Data)
	case <-time.After(time.Second):
		t.Fatal("A got nothing")
	}

	// a later broadcast to B only proves the first one skipped B
	hub.SendToTeam("B", OutgoingMessage{Event: "second"})
	m := <-b.Send
	assert.Equal(t, "second", m.Event)
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	c1, c2 := newClient(hub, "A"), newClient(hub, "A")
	hub.register <- c1
	hub.register <- c2
	assert.Eventually(t, func() bool { return hub.Connected("A") == 2 }, time.Second, 5*time.Millisecond)

	hub.unregister <- c1
	assert.Eventually(t, func() bool { return hub.Connected("A") == 1 }, time.Second, 5*time.Millisecond)
	_, open := <-c1.Send
	assert.False(t, open)

	hub.unregister <- c2
	assert.Eventually(t, func() bool { return hub.Connected("A") == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubDropsForSlowClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	slow := &Client{TeamID: "A", Send: make(chan OutgoingMessage, 1), Hub: hub}
	hub.register <- slow
	hub.SendToTeam("A", OutgoingMessage{Event: "one"})
	hub.SendToTeam("A", OutgoingMessage{Event: "two"})
	hub.SendToTeam("A", OutgoingMessage{Event: "three"})

	// the hub keeps serving even though the client never drained
	fast := newClient(hub, "B")
	hub.register <- fast
	hub.SendToTeam("B", OutgoingMessage{Event: "ok"})
	assert.Equal(t, "ok", (<-fast.Send).Event)
	assert.Equal(t, "one", (<-slow.Send).Event)
}

func TestServeWSRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	got := make(chan IncomingMessage, 1)
	hub.OnIncoming = func(m IncomingMessage) { got <- m }
	go hub.Run()
	defer hub.Close()

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("team", c.Query("team"))
		c.Set("room", "room-1")
	}, ServeWS(hub))
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?team=A"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "call", "data": map[string]any{}}))
	select {
	case m := <-got:
		assert.Equal(t, "A", m.From)
		assert.Equal(t, "room-1", m.Room)
		assert.Equal(t, "call", m.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("no incoming message")
	}

	require.Eventually(t, func() bool { return hub.Connected("A") == 1 }, time.Second, 5*time.Millisecond)
	hub.SendToTeam("A", OutgoingMessage{Event: "room_state", Data: map[string]any{"round": 1}})
	var out OutgoingMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&out))
	assert.Equal(t, "room_state", out.Event)
}

func TestServeWSRequiresTeam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	go hub.Run()
	defer hub.Close()

	r := gin.New()
	r.GET("/ws", ServeWS(hub))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ws", nil))
	assert.Equal(t, 401, w.Code)
}
