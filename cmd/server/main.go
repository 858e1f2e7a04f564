package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/thitiwat-dev/go-shortlink/pkg/adapters/handler"
	"github.com/thitiwat-dev/go-shortlink/pkg/adapters/repository/postgres"
	"github.com/thitiwat-dev/go-shortlink/pkg/adapters/repository/sqlite"
	"github.com/thitiwat-dev/go-shortlink/pkg/config"
	"github.com/thitiwat-dev/go-shortlink/pkg/core/services"
	"github.com/thitiwat-dev/go-shortlink/pkg/ports"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	store, closeStore, err := openStore(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	service := services.NewLinkService(store, logger, services.Options{
		RequireCustomCode: cfg.RequireCustomCode,
		StoreTimeout:      cfg.StoreTimeout,
	})

	mux := handler.NewRouter(cfg, service, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "ownership", cfg.Ownership)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}

// openStore picks the storage adapter by URL scheme: postgres:// uses
// the lib/pq adapter, everything else (file:, libsql://, wss://) the
// sqlite/libsql one.
func openStore(dbURL string) (ports.LinkStore, func() error, error) {
	if strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://") {
		repo, err := postgres.NewPostgresRepository(dbURL)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	}

	repo, err := sqlite.NewSQLiteRepository(dbURL)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}
