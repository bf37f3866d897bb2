package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Outbound buffer per client; a full buffer drops the client
	sendBufferSize = 256
)

var ErrClientDisconnected = errors.New("client disconnected")

// Frame is one inbound client message.
type Frame struct {
	Action            string `json:"action"`
	RoomID            uint   `json:"room_id"`
	Content           string `json:"content"`
	MessageType       string `json:"message_type"`
	IsTyping          bool   `json:"is_typing"`
	LastReadMessageID uint   `json:"last_read_message_id"`
}

// Client owns one websocket connection: a read pump parsing inbound
// frames and a write pump draining the buffered send channel. It is the
// Conn the registry holds for its user.
type Client struct {
	id      string
	userID  uint
	conn    *websocket.Conn
	gateway *Gateway
	send    chan []byte
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	closed int32
	wg     sync.WaitGroup
}

func NewClient(gateway *Gateway, conn *websocket.Conn, userID uint, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		id:      uuid.New().String(),
		userID:  userID,
		conn:    conn,
		gateway: gateway,
		send:    make(chan []byte, sendBufferSize),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) UserID() uint {
	return c.userID
}

// Send queues payload for the write pump without blocking. A full buffer
// means the peer has stopped draining; the client is dropped rather than
// letting it stall a broadcast.
func (c *Client) Send(payload []byte) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.ctx.Done():
		return ErrClientDisconnected
	default:
		c.logger.Warn("send buffer full, dropping client", "clientID", c.id, "userID", c.userID)
		c.close()
		return ErrClientDisconnected
	}
}

func (c *Client) Close() error {
	c.close()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.cancel()
	}
}

func (c *Client) readPump() {
	c.wg.Add(1)
	defer func() {
		c.wg.Done()
		c.close()
		c.gateway.Disconnect(c)
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("closing connection", "clientID", c.id, "error", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", "clientID", c.id, "userID", c.userID, "error", err)
			} else {
				c.logger.Debug("websocket closed", "clientID", c.id, "userID", c.userID)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.logger.Debug("malformed frame", "clientID", c.id, "userID", c.userID, "error", err)
			c.gateway.registry.Send(c, NewErrorEnvelope("malformed frame").Encode())
			continue
		}

		c.gateway.HandleFrame(c, &frame)
	}
}

func (c *Client) writePump() {
	c.wg.Add(1)
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		c.wg.Done()
		ticker.Stop()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if c.isClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.logger.Debug("write error", "clientID", c.id, "error", err)
				c.close()
				return
			}
			if _, err := w.Write(payload); err != nil {
				w.Close()
				c.close()
				return
			}

			// Drain queued payloads into separate frames while we hold
			// the writer's attention.
			n := len(c.send)
			for i := 0; i < n; i++ {
				queued := <-c.send
				w.Write([]byte{'\n'})
				w.Write(queued)
			}

			if err := w.Close(); err != nil {
				c.close()
				return
			}

		case <-ticker.C:
			if c.isClosed() {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed", "clientID", c.id, "error", err)
				c.close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}
