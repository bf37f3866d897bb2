package server

import (
	"log/slog"

	"campus-chat/internal/config"
	"campus-chat/internal/server/handlers"
	"campus-chat/internal/server/middleware"
	"campus-chat/internal/ws"

	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all the routes for the application
func SetupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	gateway *ws.Gateway,
	authHandler *handlers.AuthHandler,
	roomHandler *handlers.RoomHandler,
	messageHandler *handlers.MessageHandler,
	presenceHandler *handlers.PresenceHandler,
	uploadHandler *handlers.UploadHandler,
	logger *slog.Logger,
) {
	router.Use(middleware.LogAPI())
	router.Use(middleware.CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		auth := public.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}
	}

	// WebSocket endpoint authenticates via query token
	router.GET("/ws", middleware.WSAuth(cfg.JWT.Secret), ws.ServeWS(gateway, logger))

	// Protected routes (require JWT authentication)
	protected := router.Group("/api/v1")
	protected.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		rooms := protected.Group("/rooms")
		{
			rooms.POST("", roomHandler.CreateRoom)
			rooms.GET("", roomHandler.ListRooms)
			rooms.POST("/:room_id/join", roomHandler.JoinRoom)
			rooms.POST("/:room_id/leave", roomHandler.LeaveRoom)
			rooms.GET("/:room_id/members", roomHandler.Members)
			rooms.GET("/:room_id/messages", messageHandler.RoomHistory)
			rooms.GET("/:room_id/participants", presenceHandler.RoomParticipants)
		}

		protected.DELETE("/messages/:message_id", messageHandler.DeleteMessage)
		protected.GET("/presence", presenceHandler.OnlineUsers)

		if uploadHandler != nil {
			protected.POST("/uploads", uploadHandler.Upload)
		}
	}
}
