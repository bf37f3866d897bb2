package ws

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, implement proper origin checking
		return true
	},
}

// ServeWS upgrades an authenticated request to a websocket and hands the
// connection to the gateway. The WS auth middleware has already resolved
// the user identity into the gin context.
func ServeWS(gateway *Gateway, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		userID := c.GetUint("user_id")
		if userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error("websocket upgrade failed", "userID", userID, "error", err)
			return
		}

		client := NewClient(gateway, conn, userID, logger)
		if err := gateway.Connect(client); err != nil {
			logger.Error("registration failed", "userID", userID, "error", err)
			conn.Close()
			return
		}
		logger.Info("websocket connection established", "clientID", client.id, "userID", userID)

		go client.writePump()
		go client.readPump()
	}
}
