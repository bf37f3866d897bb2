package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campus-chat/internal/adapters/kafka"
	"campus-chat/internal/adapters/storage"
	"campus-chat/internal/config"
	"campus-chat/internal/database"
	"campus-chat/internal/repository"
	"campus-chat/internal/server/handlers"
	"campus-chat/internal/service"
	"campus-chat/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type App struct {
	cfg      *config.Config
	router   *gin.Engine
	db       *gorm.DB
	redis    *database.RedisClient
	producer *kafka.Producer
	logger   *slog.Logger
}

func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.NewPostgresConnection(&cfg.Database)
	if err != nil {
		return nil, err
	}

	redisClient, err := database.NewRedisConnection(&cfg.Redis)
	if err != nil {
		return nil, err
	}

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	if err != nil {
		// The broker is optional infrastructure; chat still works without
		// downstream consumers.
		logger.Warn("kafka unavailable, message events disabled", "error", err)
		producer = nil
	}

	minioClient, err := storage.NewMinioClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket)
	if err != nil {
		logger.Warn("minio unavailable, uploads disabled", "error", err)
		minioClient = nil
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// Services
	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.ExpirationTime)
	presenceService := service.NewPresenceService(redisClient, logger)
	var publisher service.EventPublisher
	if producer != nil {
		publisher = producer
	}
	chatService := service.NewChatService(messageRepo, roomRepo, userRepo, publisher, logger)

	// Realtime core
	registry := ws.NewRegistry(logger)
	gateway := ws.NewGateway(registry, chatService, roomRepo, presenceService, logger)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	roomHandler := handlers.NewRoomHandler(roomRepo)
	messageHandler := handlers.NewMessageHandler(chatService)
	presenceHandler := handlers.NewPresenceHandler(registry, presenceService)
	var uploadHandler *handlers.UploadHandler
	if minioClient != nil {
		uploadHandler = handlers.NewUploadHandler(minioClient)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	SetupRoutes(router, cfg, gateway, authHandler, roomHandler, messageHandler, presenceHandler, uploadHandler, logger)

	return &App{
		cfg:      cfg,
		router:   router,
		db:       db,
		redis:    redisClient,
		producer: producer,
		logger:   logger,
	}, nil
}

// Run serves until SIGINT/SIGTERM, then drains in-flight requests.
func (a *App) Run() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		a.logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("closing kafka producer", "error", err)
		}
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Error("closing redis", "error", err)
	}
	return nil
}
