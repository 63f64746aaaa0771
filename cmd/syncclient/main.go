package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"realtime-service/internal/apiclient"
	"realtime-service/internal/config"
	"realtime-service/internal/livesync"
	"realtime-service/internal/logger"
)

func main() {
	cfg, err := config.LoadClient()
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

	api := apiclient.New(cfg.Client.ServerURL, cfg.Client.Token)
	dialer := livesync.WebSocketDialer{URL: wsURL(cfg.Client.ServerURL), Token: cfg.Client.Token}
	manager := livesync.NewManager(dialer, livesync.ManagerOptions{
		MaxAttempts: cfg.Client.RetryAttempts,
		RetryDelay:  cfg.Client.RetryDelay,
		Logger:      zl,
	})

	session := livesync.NewSession(cfg.Client.UserID, manager, api, livesync.SessionOptions{
		Logger:          zl,
		RefetchDebounce: cfg.Client.RefetchDebounce,
		PageSize:        cfg.Client.PageSize,
		OnOrderChange: func(change livesync.OrderChange) {
			zl.Info("order status changed",
				zap.Int("order_id", change.OrderID),
				zap.String("from", string(change.Previous)),
				zap.String("to", string(change.Current)),
				zap.String("payment_status", change.PaymentStatus),
			)
		},
		OnConnectionLost: func() {
			zl.Error("push connection lost, restart the client to resume live updates")
		},
	})

	if err := session.Start(ctx); err != nil {
		zl.Error("initial sync incomplete", zap.Error(err))
		if _, ok := manager.Connection(); !ok {
			_ = session.Close()
			return
		}
	}
	zl.Info("sync session started",
		zap.Int("user_id", session.UserID()),
		zap.Int("unseen_notifications", session.Notifications.Unseen()),
		zap.Int("orders", len(session.Orders.List())),
	)

	<-ctx.Done()

	if err := session.Close(); err != nil {
		zl.Warn("session close failed", zap.Error(err))
	}
	zl.Info("sync session closed")
}

// wsURL maps the REST base url onto the push endpoint.
func wsURL(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		serverURL = "wss://" + strings.TrimPrefix(serverURL, "https://")
	case strings.HasPrefix(serverURL, "http://"):
		serverURL = "ws://" + strings.TrimPrefix(serverURL, "http://")
	}
	return strings.TrimRight(serverURL, "/") + "/ws"
}
