package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/dapr-shop/internal/adapter/catalog"
	"github.com/rl1809/dapr-shop/internal/adapter/handler"
	"github.com/rl1809/dapr-shop/internal/app"
	"github.com/rl1809/dapr-shop/internal/config"
	"github.com/rl1809/dapr-shop/internal/core/service"
	"github.com/rl1809/dapr-shop/internal/logging"
)

const serviceName = "order-service"

func main() {
	cfg := config.Load(":3002")
	logger, err := logging.New(serviceName, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("order-service failed", zap.Error(err))
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

	sidecar, err := infra.Sidecar()
	if err != nil {
		return err
	}
	remote := catalog.NewRemoteCatalog(sidecar, cfg.InventoryAppID, logger)
	orders := service.NewOrderService(infra.Store, remote, infra.Publisher, logger, service.OrderOptions{
		AtomicReservation: cfg.AtomicReservation,
		StrictTransitions: cfg.StrictTransitions,
	})
	if cfg.SeedDemoData {
		if err := orders.Seed(ctx); err != nil {
			logger.Warn("seeding orders failed", zap.Error(err))
		}
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLogger(logger)))
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(orders, logger))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	errc := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errc <- err
		}
	}()

	httpHandler := handler.NewHTTPHandler(handler.Services{Orders: orders}, logger, handler.Options{
		ServiceName: serviceName,
		ValidateIDs: cfg.ValidatePathIDs,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
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
		grpcServer.Stop()
		return err
	}

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")
	return nil
}
