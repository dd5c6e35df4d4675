package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/record-store/internal/adapter/handler"
	"github.com/rl1809/record-store/internal/adapter/musicbrainz"
	"github.com/rl1809/record-store/internal/config"
	"github.com/rl1809/record-store/internal/core/service"
	"github.com/rl1809/record-store/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	db, err := openStores(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	if db.sql != nil && cfg.Database.AutoMigrate {
		if err := db.sql.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return err
		}
		logger.Info("schema applied")
	}

	cacheRepo, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		_ = db.Close()
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	cache := service.NewCatalogCache(cacheRepo, logger.Named("cache"), m,
		service.WithSearchTTL(cfg.Cache.SearchTTL),
		service.WithTrackListTTL(cfg.Cache.TrackListTTL),
	)
	resolver := service.NewTrackListResolver(
		musicbrainz.NewClient(cfg.MusicBrainz, nil),
		cache,
		service.NewBreaker(cfg.Breaker),
		cfg.MusicBrainz.Timeout,
		logger.Named("resolver"),
		m,
	)
	orderService := service.NewOrderService(db.tx, db.catalog, db.orders, cache, logger.Named("orders"), m)
	catalogService := service.NewCatalogService(db.catalog, cache, resolver, logger.Named("catalog"))

	// gRPC
	grpcServer := grpc.NewServer()
	healthServer := handler.NewGRPCHandler(orderService, catalogService, logger.Named("grpc")).Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = closeCache()
		_ = db.Close()
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP
	httpHandler := handler.NewHTTPHandler(orderService, catalogService, logger.Named("http"), m)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(handler.DefaultMetricsHandler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	if err := closeCache(); err != nil {
		logger.Warn("close cache", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		logger.Warn("close database", zap.Error(err))
	}
	logger.Info("connections closed")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Database.Driver == config.DriverMemory {
		logger.Info("memory store has no schema to apply")
		return nil
	}

	db, err := openStores(cmd.Context(), cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.sql.EnsureSchema(cmd.Context()); err != nil {
		return err
	}
	logger.Info("schema applied", zap.String("driver", cfg.Database.Driver))
	return nil
}
