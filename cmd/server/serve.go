package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/rl1809/general-store/internal/adapter/handler"
	"github.com/rl1809/general-store/internal/adapter/messaging"
	"github.com/rl1809/general-store/internal/adapter/storage"
	"github.com/rl1809/general-store/internal/config"
	"github.com/rl1809/general-store/internal/core/service"
	"github.com/rl1809/general-store/internal/port"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var seedPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, seedPath, logger)
		},
	}

	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML file with customers and products to insert before serving")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, seedPath string, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, err := openSeededStore(ctx, cfg.Database, seedPath, logger)
	if err != nil {
		return err
	}
	defer st.close()

	var (
		rdb   *redis.Client
		cache port.TransactionCache
		idem  port.IdempotencyStore
	)
	if cfg.Redis.Enabled {
		rdb, err = openRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer rdb.Close()

		redisAdapter := storage.NewRedisAdapter(rdb, cfg.Redis.CacheTTL, logger)
		cache, idem = redisAdapter, redisAdapter
	}

	publisher, closePublisher, err := openPublisher(cfg, rdb, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	var events service.EventQueue
	var dispatcher *service.EventDispatcher
	if publisher != nil {
		dispatcher = service.NewEventDispatcher(publisher, cfg.Events.QueueSize, logger)
		dispatcher.Start(cfg.Events.Workers)
		events = dispatcher
	}

	transactionService := service.NewTransactionService(st.db, cache, idem, events, logger)
	catalogService := service.NewCatalogService(st.db)

	// gRPC server
	var grpcServer *grpc.Server
	if cfg.GRPC.Enabled {
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLoggingInterceptor(logger)))
		handler.RegisterTransactionServer(grpcServer, handler.NewGRPCHandler(transactionService, logger))

		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPC.Addr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "error", err)
			}
		}()
	}

	// HTTP server
	gin.SetMode(gin.ReleaseMode)
	httpHandler := handler.NewHTTPHandler(transactionService, catalogService, logger)
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.NewRouter(httpHandler),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		logger.Info("shutting down...")
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down...")
	case err := <-serverErr:
		logger.Error("HTTP server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", "error", err)
	}
	logger.Info("HTTP server stopped")

	if grpcServer != nil {
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
	}

	// Close event queue and wait for workers
	if dispatcher != nil {
		dispatcher.Close()
		logger.Info("event workers stopped")
	}

	return nil
}

// openSeededStore opens the store and applies seedPath when set. An empty
// in-memory store cannot serve any transaction, so it is only warned about.
func openSeededStore(ctx context.Context, cfg config.DatabaseConfig, seedPath string, logger *slog.Logger) (*store, error) {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if seedPath == "" {
		if cfg.Driver == config.DriverMemory {
			logger.Warn("in-memory store has no customers or products, start with --seed to load some")
		}
		return st, nil
	}
	if _, err := applySeed(ctx, st.db, seedPath, logger); err != nil {
		st.close()
		return nil, err
	}
	return st, nil
}

// openPublisher returns a nil publisher for the "none" sink.
func openPublisher(cfg config.Config, rdb *redis.Client, logger *slog.Logger) (port.EventPublisher, func(), error) {
	noop := func() {}

	switch cfg.Events.Sink {
	case config.SinkRedis:
		return messaging.NewStreamPublisher(rdb, cfg.Events.Stream, cfg.Events.StreamMaxLen), noop, nil
	case config.SinkRabbitMQ:
		conn, ch, err := messaging.SetupConn(cfg.Events.AMQPURL, logger)
		if err != nil {
			return nil, noop, err
		}
		closeFn := func() {
			ch.Close()
			conn.Close()
		}
		return messaging.NewAMQPPublisher(ch), closeFn, nil
	case config.SinkLog:
		return messaging.NewLogPublisher(logger), noop, nil
	}
	return nil, noop, nil
}
