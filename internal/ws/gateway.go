package ws

import (
	"context"
	"log/slog"
	"time"

	"campus-chat/internal/models"
)

const (
	ActionJoin   = "join"
	ActionLeave  = "leave"
	ActionChat   = "chat"
	ActionTyping = "typing"
	ActionRead   = "read"
)

// ChatStore persists chat traffic. Implemented by service.ChatService.
type ChatStore interface {
	SaveMessage(ctx context.Context, senderID, roomID uint, content, messageType string) (*models.Message, error)
	MarkRead(ctx context.Context, userID, roomID, messageID uint) error
}

// RoomStore answers durable membership questions. Implemented by
// repository.RoomRepository.
type RoomStore interface {
	IsMember(ctx context.Context, roomID, userID uint) (bool, error)
}

// PresenceTracker mirrors online state into a shared store so other
// instances can see it. Implemented by service.PresenceService.
type PresenceTracker interface {
	SetUserOnline(ctx context.Context, userID uint) error
	SetUserOffline(ctx context.Context, userID uint) error
}

// Gateway sits between the socket transport and the registry: it verifies
// durable membership before volatile joins, persists chat traffic before
// broadcasting it, and keeps shared presence in sync with registrations.
type Gateway struct {
	registry *Registry
	chats    ChatStore
	rooms    RoomStore
	presence PresenceTracker
	logger   *slog.Logger
}

func NewGateway(registry *Registry, chats ChatStore, rooms RoomStore, presence PresenceTracker, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		registry: registry,
		chats:    chats,
		rooms:    rooms,
		presence: presence,
		logger:   logger,
	}
}

func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Connect registers the client and flips shared presence to online.
func (g *Gateway) Connect(c *Client) error {
	if err := g.registry.Register(c.userID, c); err != nil {
		return err
	}
	if g.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.presence.SetUserOnline(ctx, c.userID); err != nil {
			g.logger.Error("failed to set user online", "userID", c.userID, "error", err)
		}
	}
	return nil
}

// Disconnect deregisters the client. Presence only flips to offline when
// the registry actually removed this connection; a stale disconnect from
// a replaced socket must not mark a reconnected user offline.
func (g *Gateway) Disconnect(c *Client) {
	wasCurrent := g.registry.IsUserOnline(c.userID)
	if err := g.registry.Deregister(c.userID, c); err != nil {
		g.logger.Error("deregister failed", "userID", c.userID, "error", err)
		return
	}
	stillOnline := g.registry.IsUserOnline(c.userID)
	if g.presence != nil && wasCurrent && !stillOnline {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.presence.SetUserOffline(ctx, c.userID); err != nil {
			g.logger.Error("failed to set user offline", "userID", c.userID, "error", err)
		}
	}
}

// HandleFrame dispatches one inbound frame. Protocol violations come back
// to the offending connection as error envelopes and are never fatal.
func (g *Gateway) HandleFrame(c *Client, frame *Frame) {
	switch frame.Action {
	case ActionJoin:
		g.handleJoin(c, frame)
	case ActionLeave:
		g.handleLeave(c, frame)
	case ActionChat:
		g.handleChat(c, frame)
	case ActionTyping:
		g.handleTyping(c, frame)
	case ActionRead:
		g.handleRead(c, frame)
	default:
		g.logger.Debug("unknown action", "userID", c.userID, "action", frame.Action)
		g.registry.Send(c, NewErrorEnvelope("unknown action").Encode())
	}
}

func (g *Gateway) handleJoin(c *Client, frame *Frame) {
	if frame.RoomID == 0 {
		g.registry.Send(c, NewErrorEnvelope("room_id is required").Encode())
		return
	}
	if g.rooms != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		member, err := g.rooms.IsMember(ctx, frame.RoomID, c.userID)
		if err != nil {
			g.logger.Error("membership lookup failed", "userID", c.userID, "roomID", frame.RoomID, "error", err)
			g.registry.Send(c, NewErrorEnvelope("could not verify room membership").Encode())
			return
		}
		if !member {
			g.registry.Send(c, NewErrorEnvelope("not a member of this room").Encode())
			return
		}
	}
	if err := g.registry.Join(c.userID, frame.RoomID, c); err != nil {
		g.registry.Send(c, NewErrorEnvelope(err.Error()).Encode())
	}
}

func (g *Gateway) handleLeave(c *Client, frame *Frame) {
	if frame.RoomID == 0 {
		g.registry.Send(c, NewErrorEnvelope("room_id is required").Encode())
		return
	}
	if err := g.registry.Leave(c.userID, frame.RoomID); err != nil {
		g.registry.Send(c, NewErrorEnvelope(err.Error()).Encode())
	}
}

// handleChat persists first and broadcasts only on a successful save, so
// subscribers never see a message that failed to store.
func (g *Gateway) handleChat(c *Client, frame *Frame) {
	if frame.RoomID == 0 || frame.Content == "" {
		g.registry.Send(c, NewErrorEnvelope("room_id and content are required").Encode())
		return
	}

	messageType := frame.MessageType
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := g.chats.SaveMessage(ctx, c.userID, frame.RoomID, frame.Content, messageType)
	if err != nil {
		g.logger.Error("failed to persist message", "userID", c.userID, "roomID", frame.RoomID, "error", err)
		g.registry.Send(c, NewErrorEnvelope("message could not be saved").Encode())
		return
	}

	env := NewChatEnvelope(msg.ID, msg.RoomID, msg.SenderID, msg.Sender.Name, msg.Content, msg.MessageType)
	env.Timestamp = msg.CreatedAt.UTC().Format(time.RFC3339)
	g.registry.BroadcastToRoom(frame.RoomID, env.Encode(), c.userID)
}

func (g *Gateway) handleTyping(c *Client, frame *Frame) {
	if frame.RoomID == 0 {
		g.registry.Send(c, NewErrorEnvelope("room_id is required").Encode())
		return
	}
	env := NewTypingEnvelope(c.userID, frame.RoomID, frame.IsTyping)
	g.registry.BroadcastToRoom(frame.RoomID, env.Encode(), c.userID)
}

func (g *Gateway) handleRead(c *Client, frame *Frame) {
	if frame.RoomID == 0 || frame.LastReadMessageID == 0 {
		g.registry.Send(c, NewErrorEnvelope("room_id and last_read_message_id are required").Encode())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.chats.MarkRead(ctx, c.userID, frame.RoomID, frame.LastReadMessageID); err != nil {
		g.logger.Error("failed to mark read", "userID", c.userID, "roomID", frame.RoomID, "error", err)
		g.registry.Send(c, NewErrorEnvelope("read position could not be saved").Encode())
		return
	}

	env := NewReadReceiptEnvelope(c.userID, frame.RoomID, frame.LastReadMessageID)
	g.registry.BroadcastToRoom(frame.RoomID, env.Encode(), c.userID)
}
