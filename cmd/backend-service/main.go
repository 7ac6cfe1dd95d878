package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/dapr-shop/internal/adapter/handler"
	"github.com/rl1809/dapr-shop/internal/app"
	"github.com/rl1809/dapr-shop/internal/config"
	"github.com/rl1809/dapr-shop/internal/core/domain"
	"github.com/rl1809/dapr-shop/internal/core/service"
	"github.com/rl1809/dapr-shop/internal/logging"
)

const serviceName = "backend-service"

func main() {
	cfg := config.Load(":3001")
	logger, err := logging.New(serviceName, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("backend-service failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	infra, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	inventory := service.NewInventoryService(infra.Store, infra.Publisher, logger, cfg.LowStockThreshold)
	orders := service.NewOrderService(infra.Store, inventory, infra.Publisher, logger, service.OrderOptions{
		AtomicReservation: cfg.AtomicReservation,
		StrictTransitions: cfg.StrictTransitions,
	})
	notifications := service.NewNotificationService(infra.Store,
		service.NewSimulatedSender(cfg.NotificationDelay, time.Now().UnixNano()),
		infra.Publisher, logger, service.NotificationOptions{History: cfg.NotificationHistory})

	if cfg.SeedDemoData {
		if err := inventory.Seed(ctx); err != nil {
			logger.Warn("seeding products failed", zap.Error(err))
		}
		if err := orders.Seed(ctx); err != nil {
			logger.Warn("seeding orders failed", zap.Error(err))
		}
	}

	for _, topic := range []string{domain.TopicOrderCreated, domain.TopicOrderStatusUpdated, domain.TopicInventoryAlert} {
		infra.Subscribe(topic, notifications.HandleEvent)
	}
	if err := infra.Start(ctx); err != nil {
		return err
	}

	httpHandler := handler.NewHTTPHandler(handler.Services{
		Inventory:     inventory,
		Orders:        orders,
		Notifications: notifications,
	}, logger, handler.Options{
		ServiceName: serviceName,
		PubSubName:  cfg.DaprPubSub,
		ValidateIDs: cfg.ValidatePathIDs,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Environment))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errc:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")
	return nil
}
