package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/rl1809/lesson-booking/internal/adapter/handler"
	"github.com/rl1809/lesson-booking/internal/adapter/messaging"
	"github.com/rl1809/lesson-booking/internal/adapter/storage"
	"github.com/rl1809/lesson-booking/internal/config"
	"github.com/rl1809/lesson-booking/internal/core/service"
	"github.com/rl1809/lesson-booking/internal/observability"
	"github.com/rl1809/lesson-booking/internal/port"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogFormat)
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		logger.Error("failed to set up tracing", zap.Error(err))
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Error("failed to shut down tracing", zap.Error(err))
		}
	}()

	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("store ready", zap.String("backend", cfg.StoreBackend))

	if cfg.SeedCatalog {
		n, err := store.SeedLessons(ctx, storage.DefaultLessons())
		if err != nil {
			return err
		}
		logger.Info("catalog seeded", zap.Int("lessons_written", n))
	}

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	bookingSvc := service.NewBookingService(store, store, store, publisher, logger.Named("booking"))
	catalogSvc := service.NewCatalogService(store, logger.Named("catalog"))

	httpHandler := handler.NewHTTPHandler(bookingSvc, catalogSvc, store, logger.Named("http"))
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.NewRouter(httpHandler, logger.Named("access"), cfg.StaticDir),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, handler.NewGRPCHealthHandler(config.ServiceName, store, logger.Named("grpc")))
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		return err
	})

	return g.Wait()
}

func newPublisher(cfg *config.Config, logger *zap.Logger) port.EventPublisher {
	if !cfg.KafkaEnabled() {
		return messaging.NoopPublisher{}
	}
	logger.Info("publishing order events",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaOrdersTopic),
	)
	return messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaOrdersTopic)
}
