package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront-cache/internal/adapter/handler"
	"github.com/rl1809/storefront-cache/internal/adapter/messaging"
	"github.com/rl1809/storefront-cache/internal/adapter/storage"
	"github.com/rl1809/storefront-cache/internal/adapter/telemetry"
	"github.com/rl1809/storefront-cache/internal/config"
	"github.com/rl1809/storefront-cache/internal/core/service"
	"github.com/rl1809/storefront-cache/internal/logger"
	"github.com/rl1809/storefront-cache/internal/port"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zl.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		tp, err := telemetry.InitTracing(ctx, telemetry.Config{
			ServiceName:   cfg.App.Name,
			Environment:   cfg.App.Env,
			Endpoint:      cfg.Telemetry.CollectorEndpoint,
			Insecure:      cfg.Telemetry.Insecure,
			SamplingRatio: cfg.Telemetry.SamplingRatio,
		})
		if err != nil {
			zl.Fatal("Failed to init tracing", zap.Error(err))
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		MaxRetries:   cfg.Redis.MaxRetries,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		zl.Fatal("Failed to connect redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	zl.Info("Connected to redis", zap.String("addr", cfg.Redis.Addr))

	// Optional sinks. Interface values stay nil when a sink is disabled.
	var journal port.BalanceJournalRepository
	var publisher port.BalanceEventPublisher

	var db *sql.DB
	if cfg.MySQL.DSN != "" {
		db, err = openMySQL(ctx, cfg.MySQL)
		if err != nil {
			zl.Fatal("Failed to connect mysql", zap.Error(err))
		}
		mysqlJournal := storage.NewMySQLJournal(db)
		if err := mysqlJournal.EnsureSchema(ctx); err != nil {
			zl.Fatal("Failed to prepare balance journal", zap.Error(err))
		}
		journal = mysqlJournal
		zl.Info("Balance journal enabled")
	}

	var kafkaPublisher *messaging.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher = messaging.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		publisher = kafkaPublisher
		zl.Info("Balance event publishing enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	// Initialize service
	cache := storage.NewRedisProductCache(rdb, storage.WithKeyPrefix(cfg.Cache.KeyPrefix))
	cacheService := service.NewProductCacheService(cache, cache, service.Settings{
		TTL:                cfg.Cache.TTL,
		MinSessionIDLength: cfg.Cache.MinSessionIDLength,
		MaxBatchSize:       cfg.Cache.MaxBatchSize,
		EventQueueSize:     cfg.Cache.EventQueueSize,
	}, service.WithLogger(zl.Named("cache")))

	// Start event workers
	dispatcher := service.NewEventDispatcher(journal, publisher, zl.Named("dispatcher"))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(cacheService.Events(), cfg.App.Workers)
	}()
	zl.Info("Started event workers", zap.Int("workers", cfg.App.Workers))

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterProductCacheServer(grpcServer, handler.NewGRPCHandler(cacheService))

	lis, err := net.Listen("tcp", cfg.App.GRPCAddr)
	if err != nil {
		zl.Fatal("Failed to listen", zap.String("addr", cfg.App.GRPCAddr), zap.Error(err))
	}

	go func() {
		zl.Info("gRPC server listening", zap.String("addr", cfg.App.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			zl.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	httpHandler := handler.NewHTTPHandler(cacheService, journal, zl.Named("http"))
	httpServer := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           handler.NewRouter(httpHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		zl.Info("HTTP server listening", zap.String("addr", cfg.App.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Warn("HTTP server shutdown", zap.Error(err))
	}
	zl.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	zl.Info("gRPC server stopped")

	// Close the event queue and wait for workers to drain it
	cacheService.Close()
	wg.Wait()
	zl.Info("Event workers stopped")

	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			zl.Warn("Kafka writer close", zap.Error(err))
		}
	}
	if db != nil {
		db.Close()
	}
	rdb.Close()
	zl.Info("Connections closed")
}

func openMySQL(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := storage.OpenMySQL(cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
