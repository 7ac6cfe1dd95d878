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

	"github.com/rl1809/dapr-shop/internal/adapter/proxy"
	"github.com/rl1809/dapr-shop/internal/config"
	"github.com/rl1809/dapr-shop/internal/logging"
)

func main() {
	cfg := config.Load(":3000")
	logger, err := logging.New("frontend", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	frontend, err := proxy.New(proxy.Options{
		DaprURL:      cfg.DaprURL(),
		BackendAppID: cfg.BackendAppID,
		StaticDir:    cfg.StaticDir,
		Environment:  cfg.Environment,
	}, nil, logger)
	if err != nil {
		logger.Fatal("frontend setup failed", zap.Error(err))
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           frontend.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("frontend listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("dapr", cfg.DaprURL()),
			zap.String("backend", cfg.BackendAppID))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("frontend server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("frontend shutdown", zap.Error(err))
	}
	logger.Info("frontend stopped")
}
