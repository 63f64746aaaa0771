package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"realtime-service/internal/auth"
	"realtime-service/internal/config"
	"realtime-service/internal/db"
	"realtime-service/internal/handlers"
	"realtime-service/internal/logger"
	"realtime-service/internal/middleware"
	"realtime-service/internal/observability"
	"realtime-service/internal/presence"
	"realtime-service/internal/repositories"
	"realtime-service/internal/ws"
)

const serviceName = "realtime-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		zl.Fatal("failed to init tracing", zap.Error(err))
	}

	database, err := db.Connect(cfg.DatabaseDSN, zl)
	if err != nil {
		zl.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	var registry presence.Registry = presence.NewMemoryRegistry()
	if cfg.RedisURL != "" {
		redisClient, err := presence.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			zl.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		registry = presence.NewRedisRegistry(redisClient, "")
	}

	publisher := observability.NewPublisherOrNoop(cfg.AMQPURL, cfg.AMQPExchange, serviceName, zl)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	emitter := observability.NewEmitter(serviceName, zl)

	messageRepo := repositories.NewMessageRepo(database)
	notificationRepo := repositories.NewNotificationRepo(database)
	orderRepo := repositories.NewOrderRepo(database)

	validator := auth.NewJWTValidator(cfg.JWTSecret)
	hub := ws.NewHub(registry, zl)

	messageHandler := handlers.NewMessageHandler(messageRepo, notificationRepo, hub, emitter, zl)
	notificationHandler := handlers.NewNotificationHandler(notificationRepo, hub, emitter, zl)
	orderHandler := handlers.NewOrderHandler(orderRepo, hub, emitter, zl)
	wsHandler := ws.NewHandler(hub, validator, messageRepo, emitter, zl)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(handlers.RequestID())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", wsHandler.Handle)

	authMiddleware := middleware.AuthMiddleware(validator)

	router.GET("/notifications", authMiddleware, notificationHandler.List)
	router.PUT("/notifications/read-all", authMiddleware, notificationHandler.MarkAllRead)
	router.PUT("/notifications/:id/read", authMiddleware, notificationHandler.MarkRead)
	router.POST("/notifications", authMiddleware, notificationHandler.Create)

	router.GET("/messages/:userId", authMiddleware, messageHandler.GetConversation)
	router.POST("/messages/:userId", authMiddleware, messageHandler.SendMessage)
	router.PUT("/messages/:userId/read", authMiddleware, messageHandler.MarkRead)

	router.GET("/orders", authMiddleware, orderHandler.List)
	router.GET("/orders/:id", authMiddleware, orderHandler.Get)
	router.GET("/orders/:id/history", authMiddleware, orderHandler.History)
	router.PATCH("/orders/:id/status", authMiddleware, orderHandler.UpdateStatus)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("graceful shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		zl.Warn("tracing shutdown failed", zap.Error(err))
	}
	zl.Info("server stopped")
}
