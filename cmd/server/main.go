package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"incubator_messaging/internal/config"
	"incubator_messaging/internal/handler"
	"incubator_messaging/internal/hub"
	"incubator_messaging/internal/middleware"
	"incubator_messaging/internal/repository"
	"incubator_messaging/internal/service"
	"incubator_messaging/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger := logger.New(cfg.Log.Level)

	// Подключение к PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	// Подключение к Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	// Хаб сокет-уведомлений живет весь срок процесса
	hubCtx, stopHub := context.WithCancel(context.Background())
	eventHub := hub.New(cfg.Messaging.HubSendBuffer, appLogger)
	go eventHub.Run(hubCtx)

	// Инициализация репозиториев и сервисов
	repos := repository.NewRepositories(dbPool, rdb, appLogger)
	services := service.NewServices(repos, cfg, eventHub, appLogger)

	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	handlers := handler.NewHandlers(services, eventHub, cfg, appLogger)

	router := setupRouter(handlers, authMiddleware, cfg, appLogger)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout нулевой: SSE и websocket держат ответ открытым
		// дольше любого разумного таймаута.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Ожидание сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	stopHub()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler())

	// Health check
	router.GET("/health", handlers.Health.Check)

	// API v1
	v1 := router.Group("/api/v1")
	{
		protected := v1.Group("")
		protected.Use(authMiddleware.RequireAuth())
		{
			threads := protected.Group("/threads")
			threads.Use(middleware.RequireMessagingRole())
			{
				threads.GET("", handlers.Messaging.ListThreads)
				threads.POST("", handlers.Messaging.CreateOrAppend)
				threads.GET("/:id", handlers.Messaging.GetThread)
				threads.DELETE("/:id", handlers.Messaging.DeleteThread)
				threads.POST("/:id/messages", handlers.Messaging.PostMessage)
				threads.POST("/:id/read", handlers.Messaging.MarkRead)
				threads.POST("/:id/typing", handlers.Messaging.SetTyping)

				// SSE-стрим живых событий треда
				threads.GET("/:id/events", handlers.Stream.Events)
			}
		}
	}

	// WebSocket: персональный канал уведомлений, токен в query
	router.GET("/ws", handlers.WebSocket.Connect)

	return router
}
