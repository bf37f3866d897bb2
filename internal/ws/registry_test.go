package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn records everything sent to it and can be told to fail.
type mockConn struct {
	mu       sync.Mutex
	payloads [][]byte
	closed   bool
	failSend bool
}

func (m *mockConn) Send(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend || m.closed {
		return ErrClientDisconnected
	}
	m.payloads = append(m.payloads, payload)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.payloads))
	copy(out, m.payloads)
	return out
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) envelopes(t *testing.T) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, p := range m.sent() {
		var env map[string]interface{}
		require.NoError(t, json.Unmarshal(p, &env))
		out = append(out, env)
	}
	return out
}

// checkClosure asserts that every room participant is an online user whose
// room list contains that room, and that every online user's rooms are
// reflected back in the room index.
func checkClosure(t *testing.T, r *Registry) {
	t.Helper()
	r.mu.RLock()
	defer r.mu.RUnlock()

	for roomID, members := range r.roomConns {
		for userID, conn := range members {
			cur, online := r.conns[userID]
			assert.True(t, online, "room %d holds offline user %d", roomID, userID)
			assert.Equal(t, cur, conn, "room %d holds a stale connection for user %d", roomID, userID)
			_, subscribed := r.userRooms[userID][roomID]
			assert.True(t, subscribed, "room %d holds user %d who is not subscribed", roomID, userID)
		}
	}
	for userID, rooms := range r.userRooms {
		_, online := r.conns[userID]
		assert.True(t, online, "userRooms retains offline user %d", userID)
		for roomID := range rooms {
			_, ok := r.roomConns[roomID][userID]
			assert.True(t, ok, "user %d subscribed to room %d but missing from room index", userID, roomID)
		}
	}
}

func TestRegisterAndQueries(t *testing.T) {
	r := NewRegistry(nil)
	conn := &mockConn{}

	require.NoError(t, r.Register(1, conn))

	assert.True(t, r.IsUserOnline(1))
	assert.False(t, r.IsUserOnline(2))
	assert.ElementsMatch(t, []uint{1}, r.OnlineUsers())
	assert.Empty(t, r.RoomParticipants(42))
	checkClosure(t, r)
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	r := NewRegistry(nil)

	assert.ErrorIs(t, r.Register(0, &mockConn{}), ErrInvalidUserID)
	assert.ErrorIs(t, r.Register(1, nil), ErrNilConn)
	assert.ErrorIs(t, r.Register(1, &mockConn{}, 0), ErrInvalidRoomID)
	assert.False(t, r.IsUserOnline(1))
}

func TestRegisterWithInitialRoom(t *testing.T) {
	r := NewRegistry(nil)
	observer := &mockConn{}
	require.NoError(t, r.Register(1, observer, 42))

	joiner := &mockConn{}
	require.NoError(t, r.Register(2, joiner, 42))

	assert.ElementsMatch(t, []uint{1, 2}, r.RoomParticipants(42))

	envs := observer.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, "user_joined", envs[0]["type"])
	assert.EqualValues(t, 2, envs[0]["user_id"])

	// The joiner never sees its own notice.
	assert.Empty(t, joiner.sent())
	checkClosure(t, r)
}

func TestRegisterReplacesExistingConnection(t *testing.T) {
	r := NewRegistry(nil)
	old := &mockConn{}
	require.NoError(t, r.Register(1, old, 42))

	replacement := &mockConn{}
	require.NoError(t, r.Register(1, replacement))

	assert.True(t, r.IsUserOnline(1))
	// The replaced socket's subscriptions do not carry over.
	assert.Empty(t, r.RoomParticipants(42))
	assert.Empty(t, r.UserRooms(1))

	// The old connection is closed in the background.
	require.Eventually(t, old.isClosed, time.Second, 10*time.Millisecond)
	assert.False(t, replacement.isClosed())
	checkClosure(t, r)
}

func TestJoinIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	conn1, conn2 := &mockConn{}, &mockConn{}
	require.NoError(t, r.Register(1, conn1))
	require.NoError(t, r.Register(2, conn2))

	require.NoError(t, r.Join(1, 42, conn1))
	require.NoError(t, r.Join(2, 42, conn2))
	before := r.RoomParticipants(42)

	require.NoError(t, r.Join(2, 42, conn2))

	assert.ElementsMatch(t, before, r.RoomParticipants(42))
	// The duplicate join notifies nobody a second time.
	require.Len(t, conn1.envelopes(t), 1)
	checkClosure(t, r)
}

func TestJoinForStaleConnectionIsNoOp(t *testing.T) {
	r := NewRegistry(nil)
	old := &mockConn{}
	require.NoError(t, r.Register(1, old))
	replacement := &mockConn{}
	require.NoError(t, r.Register(1, replacement))

	require.NoError(t, r.Join(1, 42, old))

	assert.Empty(t, r.RoomParticipants(42))
	checkClosure(t, r)
}

func TestJoinRejectsInvalidInput(t *testing.T) {
	r := NewRegistry(nil)
	assert.ErrorIs(t, r.Join(0, 42, &mockConn{}), ErrInvalidUserID)
	assert.ErrorIs(t, r.Join(1, 0, &mockConn{}), ErrInvalidRoomID)
}

func TestLeaveNotifiesRemainingMembers(t *testing.T) {
	r := NewRegistry(nil)
	conn1, conn2 := &mockConn{}, &mockConn{}
	require.NoError(t, r.Register(1, conn1, 42))
	require.NoError(t, r.Register(2, conn2, 42))

	require.NoError(t, r.Leave(2, 42))

	assert.ElementsMatch(t, []uint{1}, r.RoomParticipants(42))

	envs := conn1.envelopes(t)
	require.Len(t, envs, 2) // user_joined then user_left
	assert.Equal(t, "user_left", envs[1]["type"])
	assert.EqualValues(t, 2, envs[1]["user_id"])

	// The leaver does not receive its own notice.
	for _, env := range conn2.envelopes(t) {
		assert.NotEqual(t, "user_left", env["type"])
	}
	checkClosure(t, r)
}

func TestLeaveRoomNotJoinedIsNoOp(t *testing.T) {
	r := NewRegistry(nil)
	conn := &mockConn{}
	require.NoError(t, r.Register(1, conn))

	require.NoError(t, r.Leave(1, 42))
	assert.Empty(t, conn.sent())
	checkClosure(t, r)
}

func TestDeregisterCleansEveryRoom(t *testing.T) {
	r := NewRegistry(nil)
	conn1, conn2 := &mockConn{}, &mockConn{}
	require.NoError(t, r.Register(1, conn1, 42))
	require.NoError(t, r.Register(2, conn2, 42))
	require.NoError(t, r.Join(2, 43, conn2))

	require.NoError(t, r.Deregister(2, conn2))

	assert.False(t, r.IsUserOnline(2))
	assert.ElementsMatch(t, []uint{1}, r.RoomParticipants(42))
	assert.Empty(t, r.RoomParticipants(43))
	assert.Empty(t, r.UserRooms(2))
	checkClosure(t, r)

	// A later broadcast reaches only the survivor.
	sentBefore := len(conn2.sent())
	require.NoError(t, r.BroadcastToRoom(42, []byte(`{"type":"system"}`), 0))
	assert.Len(t, conn2.sent(), sentBefore)
	assert.NotEmpty(t, conn1.sent())
}

func TestDeregisterUnknownUserIsNoOp(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Deregister(99, &mockConn{}))
	require.NoError(t, r.Deregister(99, nil))
}

func TestDeregisterStaleConnectionIsNoOp(t *testing.T) {
	r := NewRegistry(nil)
	old := &mockConn{}
	require.NoError(t, r.Register(1, old))
	replacement := &mockConn{}
	require.NoError(t, r.Register(1, replacement, 42))

	// The dead socket's late deregister must not evict the reconnect.
	require.NoError(t, r.Deregister(1, old))

	assert.True(t, r.IsUserOnline(1))
	assert.ElementsMatch(t, []uint{1}, r.RoomParticipants(42))
	checkClosure(t, r)
}

func TestBroadcastToRoomExcludesSender(t *testing.T) {
	r := NewRegistry(nil)
	conns := map[uint]*mockConn{}
	for userID := uint(1); userID <= 3; userID++ {
		conn := &mockConn{}
		conns[userID] = conn
		require.NoError(t, r.Register(userID, conn, 42))
	}

	payload := NewSystemEnvelope("hello", 42).Encode()
	require.NoError(t, r.BroadcastToRoom(42, payload, 1))

	for userID, conn := range conns {
		found := false
		for _, env := range conn.envelopes(t) {
			if env["type"] == "system" {
				found = true
			}
		}
		if userID == 1 {
			assert.False(t, found, "excluded user %d received the broadcast", userID)
		} else {
			assert.True(t, found, "user %d missed the broadcast", userID)
		}
	}
}

func TestBroadcastToMissingRoomIsNoOp(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.BroadcastToRoom(42, []byte(`{}`), 0))
	assert.ErrorIs(t, r.BroadcastToRoom(0, []byte(`{}`), 0), ErrInvalidRoomID)
}

func TestBroadcastIsolation(t *testing.T) {
	r := NewRegistry(nil)
	broken := &mockConn{failSend: true}
	healthy1, healthy2 := &mockConn{}, &mockConn{}
	require.NoError(t, r.Register(1, broken, 42))
	require.NoError(t, r.Register(2, healthy1, 42))
	require.NoError(t, r.Register(3, healthy2, 42))

	payload := NewSystemEnvelope("still here", 42).Encode()
	require.NoError(t, r.BroadcastToRoom(42, payload, 0))

	assert.Empty(t, broken.sent())
	lastOf := func(c *mockConn) map[string]interface{} {
		envs := c.envelopes(t)
		require.NotEmpty(t, envs)
		return envs[len(envs)-1]
	}
	assert.Equal(t, "system", lastOf(healthy1)["type"])
	assert.Equal(t, "system", lastOf(healthy2)["type"])
}

func TestBroadcastToAllWithExclusion(t *testing.T) {
	r := NewRegistry(nil)
	conns := map[uint]*mockConn{}
	for userID := uint(1); userID <= 100; userID++ {
		conn := &mockConn{}
		conns[userID] = conn
		roomID := uint(10)
		if userID > 50 {
			roomID = 20
		}
		require.NoError(t, r.Register(userID, conn, roomID))
	}
	// User 1 sits in both rooms.
	require.NoError(t, r.Join(1, 20, conns[1]))

	payload := NewSystemEnvelope("maintenance in 5 minutes", 0).Encode()
	r.BroadcastToAll(payload, 1)

	delivered := 0
	for userID, conn := range conns {
		got := false
		for _, env := range conn.envelopes(t) {
			if env["type"] == "system" {
				got = true
			}
		}
		if got {
			delivered++
		}
		if userID == 1 {
			assert.False(t, got, "excluded user received the global broadcast")
		}
	}
	assert.Equal(t, 99, delivered)
}

func TestSendSwallowsFailures(t *testing.T) {
	r := NewRegistry(nil)
	broken := &mockConn{failSend: true}

	// Neither a broken conn nor a nil conn may panic or propagate.
	r.Send(broken, []byte(`{}`))
	r.Send(nil, []byte(`{}`))
}

func TestMembershipClosureUnderSequences(t *testing.T) {
	r := NewRegistry(nil)
	conns := map[uint]*mockConn{}

	ops := []func(){
		func() { conns[1] = &mockConn{}; r.Register(1, conns[1], 10) },
		func() { conns[2] = &mockConn{}; r.Register(2, conns[2]) },
		func() { r.Join(2, 10, conns[2]) },
		func() { r.Join(2, 20, conns[2]) },
		func() { r.Leave(1, 10) },
		func() { conns[3] = &mockConn{}; r.Register(3, conns[3], 20) },
		func() { r.Deregister(2, conns[2]) },
		func() { conns[2] = &mockConn{}; r.Register(2, conns[2], 20) },
		func() { r.Deregister(1, conns[1]) },
		func() { r.Deregister(3, conns[3]) },
	}
	for i, op := range ops {
		op()
		t.Run(fmt.Sprintf("step_%d", i), func(t *testing.T) { checkClosure(t, r) })
	}
}

func TestConcurrentJoinAndDeregister(t *testing.T) {
	r := NewRegistry(nil)

	for i := 0; i < 200; i++ {
		conn := &mockConn{}
		require.NoError(t, r.Register(1, conn))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Join(1, 42, conn)
		}()
		go func() {
			defer wg.Done()
			r.Deregister(1, conn)
		}()
		wg.Wait()

		// The deregister may have lost the race with the join; finish the
		// disconnect and nothing stale may remain either way.
		require.NoError(t, r.Deregister(1, conn))
		assert.False(t, r.IsUserOnline(1))
		assert.Empty(t, r.RoomParticipants(42), "stale room entry after iteration %d", i)
		checkClosure(t, r)
	}
}

func TestConcurrentChurnStress(t *testing.T) {
	r := NewRegistry(nil)
	const users = 50
	const rounds = 20

	var wg sync.WaitGroup
	for u := uint(1); u <= users; u++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				conn := &mockConn{}
				if err := r.Register(userID, conn); err != nil {
					t.Errorf("register: %v", err)
				}
				r.Join(userID, userID%5+1, conn)
				r.BroadcastToRoom(userID%5+1, []byte(`{"type":"system"}`), userID)
				r.BroadcastToAll([]byte(`{"type":"system"}`), 0)
				r.Leave(userID, userID%5+1)
				r.Deregister(userID, conn)
			}
		}(u)
	}
	wg.Wait()

	assert.Empty(t, r.OnlineUsers())
	for roomID := uint(1); roomID <= 5; roomID++ {
		assert.Empty(t, r.RoomParticipants(roomID))
	}
	checkClosure(t, r)
}
