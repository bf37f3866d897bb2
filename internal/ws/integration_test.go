package ws

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T, g *Gateway) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		// Stand-in for the WS auth middleware.
		id, err := strconv.ParseUint(c.Query("uid"), 10, 64)
		if err != nil {
			c.AbortWithStatus(401)
			return
		}
		c.Set("user_id", uint(id))
	}, ServeWS(g, nil))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server, userID uint) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + fmt.Sprintf("/ws?uid=%d", userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &env))
	return env
}

func TestWebSocketEndToEnd(t *testing.T) {
	chats := &fakeChatStore{}
	g := newTestGateway(chats, &fakeRoomStore{allow: true}, &fakePresence{})
	registry := g.Registry()
	srv := newWSServer(t, g)

	conn1 := dialWS(t, srv, 1)
	require.Eventually(t, func() bool { return registry.IsUserOnline(1) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn1.WriteJSON(map[string]interface{}{"action": "join", "room_id": 42}))
	require.Eventually(t, func() bool { return len(registry.RoomParticipants(42)) == 1 }, 2*time.Second, 10*time.Millisecond)

	conn2 := dialWS(t, srv, 2)
	require.Eventually(t, func() bool { return registry.IsUserOnline(2) }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, conn2.WriteJSON(map[string]interface{}{"action": "join", "room_id": 42}))

	// Scenario: the first member is told about the newcomer.
	joined := readEnvelope(t, conn1)
	assert.Equal(t, "user_joined", joined["type"])
	assert.EqualValues(t, 2, joined["user_id"])

	// Scenario: a chat message reaches the rest of the room, not the sender.
	require.NoError(t, conn1.WriteJSON(map[string]interface{}{"action": "chat", "room_id": 42, "content": "hello room"}))

	chat := readEnvelope(t, conn2)
	assert.Equal(t, "chat", chat["type"])
	assert.EqualValues(t, 1, chat["sender_id"])
	assert.Equal(t, "hello room", chat["content"])
	require.Eventually(t, func() bool { return chats.savedCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Scenario: a disconnect cleans the room up.
	conn2.Close()
	require.Eventually(t, func() bool { return !registry.IsUserOnline(2) }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []uint{1}, registry.RoomParticipants(42))

	// A later broadcast reaches only the survivor. conn1's next inbound
	// frame being this one also proves it never saw its own chat message.
	require.NoError(t, registry.BroadcastToRoom(42, NewSystemEnvelope("room maintenance", 42).Encode(), 0))
	sys := readEnvelope(t, conn1)
	assert.Equal(t, "system", sys["type"])
}

func TestWebSocketMalformedFrameGetsErrorEnvelope(t *testing.T) {
	g := newTestGateway(&fakeChatStore{}, &fakeRoomStore{allow: true}, &fakePresence{})
	srv := newWSServer(t, g)

	conn := dialWS(t, srv, 1)
	require.Eventually(t, func() bool { return g.Registry().IsUserOnline(1) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	env := readEnvelope(t, conn)
	assert.Equal(t, "error", env["type"])
}

func TestWebSocketUnauthenticatedUpgradeRejected(t *testing.T) {
	g := newTestGateway(&fakeChatStore{}, &fakeRoomStore{allow: true}, &fakePresence{})
	srv := newWSServer(t, g)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?uid=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}
