package ws

import (
	"errors"
	"log/slog"
	"sync"
)

var (
	ErrInvalidUserID = errors.New("invalid user id")
	ErrInvalidRoomID = errors.New("invalid room id")
	ErrNilConn       = errors.New("nil connection")
)

// Conn is the write side of one live socket. Send must not block: the
// websocket client backs it with a buffered channel and reports a full
// buffer as an error so a stalled peer never delays a broadcast.
type Conn interface {
	Send(payload []byte) error
	Close() error
}

// Registry is the in-memory source of truth for who is online and which
// rooms each connection is subscribed to. Room membership here is volatile
// and process-local; durable chat-room membership lives in postgres.
//
// The three maps are only ever mutated together under mu. roomConns is
// keyed by user ID inside each room so sender exclusion during a broadcast
// is a map lookup instead of a scan over everyone online.
type Registry struct {
	mu        sync.RWMutex
	conns     map[uint]Conn               // user ID -> active connection
	userRooms map[uint]map[uint]struct{}  // user ID -> subscribed rooms
	roomConns map[uint]map[uint]Conn      // room ID -> user ID -> connection
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:     make(map[uint]Conn),
		userRooms: make(map[uint]map[uint]struct{}),
		roomConns: make(map[uint]map[uint]Conn),
		logger:    logger,
	}
}

// Register stores conn as the sole connection for userID. If the user
// already has a connection it is closed and replaced; its room
// subscriptions are dropped, the new socket re-joins on its own.
// Any initialRooms are joined as if Join had been called for each.
func (r *Registry) Register(userID uint, conn Conn, initialRooms ...uint) error {
	if userID == 0 {
		return ErrInvalidUserID
	}
	if conn == nil {
		return ErrNilConn
	}
	for _, roomID := range initialRooms {
		if roomID == 0 {
			return ErrInvalidRoomID
		}
	}

	r.mu.Lock()
	if old, ok := r.conns[userID]; ok && old != conn {
		r.removeUserLocked(userID)
		// Close outside the lock; Close may touch the network.
		go func() {
			if err := old.Close(); err != nil {
				r.logger.Debug("closing replaced connection", "userID", userID, "error", err)
			}
		}()
		r.logger.Warn("duplicate registration, replacing connection", "userID", userID)
	}
	r.conns[userID] = conn

	type notice struct {
		roomID  uint
		targets []Conn
	}
	var notices []notice
	for _, roomID := range initialRooms {
		if r.joinLocked(userID, roomID, conn) {
			notices = append(notices, notice{roomID, r.roomTargetsLocked(roomID, userID)})
		}
	}
	r.mu.Unlock()

	r.logger.Info("connection registered", "userID", userID)
	for _, n := range notices {
		r.deliver(NewUserJoinedEnvelope(userID).Encode(), n.targets)
	}
	return nil
}

// Deregister removes the user and every room subscription it held. It is
// a no-op when the user is not registered, or when conn is non-nil and is
// not the currently registered connection, so a late deregister from a
// dead socket cannot evict a fresh reconnect.
func (r *Registry) Deregister(userID uint, conn Conn) error {
	if userID == 0 {
		return ErrInvalidUserID
	}

	r.mu.Lock()
	cur, ok := r.conns[userID]
	if !ok || (conn != nil && cur != conn) {
		r.mu.Unlock()
		return nil
	}
	r.removeUserLocked(userID)
	r.mu.Unlock()

	r.logger.Info("connection deregistered", "userID", userID)
	return nil
}

// Join subscribes the user's connection to a room and notifies the other
// members. Joining twice is idempotent and notifies nobody the second
// time. A join for a connection that is no longer the user's current one
// is ignored.
func (r *Registry) Join(userID, roomID uint, conn Conn) error {
	if userID == 0 {
		return ErrInvalidUserID
	}
	if roomID == 0 {
		return ErrInvalidRoomID
	}

	r.mu.Lock()
	if cur, ok := r.conns[userID]; !ok || (conn != nil && cur != conn) {
		r.mu.Unlock()
		return nil
	}
	joined := r.joinLocked(userID, roomID, r.conns[userID])
	var targets []Conn
	if joined {
		targets = r.roomTargetsLocked(roomID, userID)
	}
	r.mu.Unlock()

	if joined {
		r.logger.Debug("user joined room", "userID", userID, "roomID", roomID)
		r.deliver(NewUserJoinedEnvelope(userID).Encode(), targets)
	}
	return nil
}

// Leave removes the room subscription and notifies the remaining members.
// The leaver does not receive its own notice.
func (r *Registry) Leave(userID, roomID uint) error {
	if userID == 0 {
		return ErrInvalidUserID
	}
	if roomID == 0 {
		return ErrInvalidRoomID
	}

	r.mu.Lock()
	left := false
	if rooms, ok := r.userRooms[userID]; ok {
		if _, in := rooms[roomID]; in {
			delete(rooms, roomID)
			if len(rooms) == 0 {
				delete(r.userRooms, userID)
			}
			r.dropRoomConnLocked(roomID, userID)
			left = true
		}
	}
	var targets []Conn
	if left {
		targets = r.roomTargetsLocked(roomID, userID)
	}
	r.mu.Unlock()

	if left {
		r.logger.Debug("user left room", "userID", userID, "roomID", roomID)
		r.deliver(NewUserLeftEnvelope(userID).Encode(), targets)
	}
	return nil
}

// Send delivers one payload to one connection, best effort. A failed send
// is logged and swallowed; the caller never learns of it.
func (r *Registry) Send(conn Conn, payload []byte) {
	if conn == nil {
		return
	}
	if err := conn.Send(payload); err != nil {
		r.logger.Debug("send failed", "error", err)
	}
}

// BroadcastToRoom delivers payload to every connection subscribed to the
// room, skipping excludeUserID when non-zero. Connections that fail mid
// broadcast are skipped; the rest still receive the payload.
func (r *Registry) BroadcastToRoom(roomID uint, payload []byte, excludeUserID uint) error {
	if roomID == 0 {
		return ErrInvalidRoomID
	}

	r.mu.RLock()
	targets := r.roomTargetsLocked(roomID, excludeUserID)
	r.mu.RUnlock()

	r.deliver(payload, targets)
	return nil
}

// BroadcastToAll delivers payload to every registered connection, skipping
// excludeUserID when non-zero.
func (r *Registry) BroadcastToAll(payload []byte, excludeUserID uint) {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.conns))
	for userID, conn := range r.conns {
		if userID == excludeUserID {
			continue
		}
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	r.deliver(payload, targets)
}

// OnlineUsers returns the IDs of every registered user.
func (r *Registry) OnlineUsers() []uint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]uint, 0, len(r.conns))
	for userID := range r.conns {
		users = append(users, userID)
	}
	return users
}

// RoomParticipants returns the IDs of every user subscribed to the room.
func (r *Registry) RoomParticipants(roomID uint) []uint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.roomConns[roomID]
	users := make([]uint, 0, len(members))
	for userID := range members {
		users = append(users, userID)
	}
	return users
}

func (r *Registry) IsUserOnline(userID uint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// UserRooms returns the rooms the user is currently subscribed to.
func (r *Registry) UserRooms(userID uint) []uint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.userRooms[userID]
	rooms := make([]uint, 0, len(set))
	for roomID := range set {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// joinLocked records the subscription in both indexes. Caller holds mu.
// Reports whether the membership actually changed.
func (r *Registry) joinLocked(userID, roomID uint, conn Conn) bool {
	rooms := r.userRooms[userID]
	if rooms == nil {
		rooms = make(map[uint]struct{})
		r.userRooms[userID] = rooms
	}
	if _, in := rooms[roomID]; in {
		return false
	}
	rooms[roomID] = struct{}{}

	members := r.roomConns[roomID]
	if members == nil {
		members = make(map[uint]Conn)
		r.roomConns[roomID] = members
	}
	members[userID] = conn
	return true
}

// removeUserLocked drops the user from conns and from every room it was
// subscribed to, leaving no dangling room entries. Caller holds mu.
func (r *Registry) removeUserLocked(userID uint) {
	delete(r.conns, userID)
	for roomID := range r.userRooms[userID] {
		r.dropRoomConnLocked(roomID, userID)
	}
	delete(r.userRooms, userID)
}

func (r *Registry) dropRoomConnLocked(roomID, userID uint) {
	members := r.roomConns[roomID]
	if members == nil {
		return
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(r.roomConns, roomID)
	}
}

// roomTargetsLocked snapshots the room's connections minus the excluded
// user so delivery happens outside the lock. Caller holds mu.
func (r *Registry) roomTargetsLocked(roomID, excludeUserID uint) []Conn {
	members := r.roomConns[roomID]
	targets := make([]Conn, 0, len(members))
	for userID, conn := range members {
		if userID == excludeUserID {
			continue
		}
		targets = append(targets, conn)
	}
	return targets
}

// deliver fans payload out to each target independently. Send never
// blocks, so one broken or slow connection cannot hold the others up.
func (r *Registry) deliver(payload []byte, targets []Conn) {
	for _, conn := range targets {
		if err := conn.Send(payload); err != nil {
			r.logger.Debug("broadcast send failed", "error", err)
		}
	}
}
