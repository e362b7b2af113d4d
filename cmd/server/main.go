package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/adapter/auth"
	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/notify"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/logger"
	"github.com/rl1809/storefront/internal/port"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

// checkSchema migrates up when auto_migrate is set and otherwise refuses to
// start against an outdated schema.
func checkSchema(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	m, err := storage.NewMigrator(db, log.Named("migrate"))
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() { _ = m.Close() }()

	if cfg.AutoMigrate {
		return m.Up()
	}
	return m.EnsureCurrent()
}

type closer func() error

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cleanup []closer
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			if err := cleanup[i](); err != nil {
				log.Warn("cleanup failed", zap.Error(err))
			}
		}
	}()

	if err := checkSchema(ctx, cfg.Database, log); err != nil {
		return fmt.Errorf("schema check: %w", err)
	}

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	cleanup = append(cleanup, db.Close)
	log.Info("connected to mysql", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))

	mysqlAdapter := storage.NewMySQLAdapter(db)

	var otpStore port.OTPStore
	switch cfg.OTP.Store {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("connect redis: %w", err)
		}
		cleanup = append(cleanup, rdb.Close)
		otpStore = storage.NewRedisOTPStore(rdb)
		log.Info("otp store: redis", zap.String("addr", cfg.Redis.Addr()))
	default:
		mem := storage.NewMemoryOTPStore(time.Minute)
		cleanup = append(cleanup, mem.Close)
		otpStore = mem
		log.Info("otp store: memory")
	}

	var notifier port.Notifier
	if cfg.Kafka.Enabled {
		topics := notify.Topics{
			OrderCreated:       cfg.Kafka.TopicOrderCreated,
			OrderStatusUpdated: cfg.Kafka.TopicOrderStatusUpdated,
			OTPIssued:          cfg.Kafka.TopicOTPIssued,
		}
		if cfg.Kafka.AutoCreateTopics {
			if err := notify.CreateTopics(cfg.Kafka.Brokers[0], topics.All(), cfg.Kafka.Partitions); err != nil {
				log.Warn("failed to create kafka topics", zap.Error(err))
			}
		}
		kn := notify.NewKafkaNotifier(cfg.Kafka.Brokers, topics, log)
		cleanup = append(cleanup, kn.Close)
		notifier = kn
		log.Info("notifications: kafka", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		notifier = notify.NewLogNotifier(log)
		if cfg.App.IsProduction() {
			log.Warn("kafka is disabled; otp codes are only written to the log")
		} else {
			log.Info("notifications: log")
		}
	}

	tokens := auth.NewJWTIssuer(auth.JWTConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		Expiration: cfg.JWT.Expiration,
	})
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)

	dispatcher := service.NewDispatcher(notifier, mysqlAdapter, log, service.DispatcherConfig{
		Workers:        cfg.Order.DispatchWorkers,
		QueueSize:      cfg.Order.DispatchQueueSize,
		MaxRetries:     uint64(cfg.Order.DispatchRetries),
		InitialBackoff: cfg.Order.DispatchBackoff,
		AttemptTimeout: cfg.Order.DispatchTimeout,
	})
	dispatcher.Start()
	log.Info("started notification workers", zap.Int("workers", cfg.Order.DispatchWorkers))

	orderService := service.NewOrderService(mysqlAdapter, mysqlAdapter, dispatcher, log, cfg.Order.TxTimeout)
	otpService := service.NewOTPService(mysqlAdapter, otpStore, notifier, tokens, hasher, log, service.OTPConfig{
		TTL:         cfg.OTP.TTL,
		MaxAttempts: cfg.OTP.MaxAttempts,
	})
	authService := service.NewAuthService(mysqlAdapter, tokens, hasher, log)
	catalogService := service.NewCatalogService(mysqlAdapter, log)
	cartService := service.NewCartService(mysqlAdapter, mysqlAdapter)

	// gRPC
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.LoggingUnaryInterceptor(log.Named("grpc")),
		handler.AuthUnaryInterceptor(tokens),
	))
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(orderService, log))

	lis, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go func() {
		log.Info("gRPC server listening", zap.String("port", cfg.GRPC.Port))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP
	var limiter *handler.RateLimiter
	if cfg.HTTP.AuthRateLimitEnabled {
		limiter = handler.NewRateLimiter(cfg.HTTP.AuthRateLimitRequests, cfg.HTTP.AuthRateLimitWindow)
	}
	httpHandler := handler.NewHTTPHandler(handler.Services{
		Orders:  orderService,
		OTP:     otpService,
		Auth:    authService,
		Catalog: catalogService,
		Cart:    cartService,
		Tokens:  tokens,
	}, limiter)

	router, err := handler.NewRouter(httpHandler, log, cfg.HTTP.TrustedProxies)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("port", cfg.HTTP.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case runErr = <-serverErr:
		log.Error("HTTP server error", zap.Error(runErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	// Drain queued notifications before the notifier and pools close.
	dispatcher.Close()
	log.Info("notification workers stopped")

	return runErr
}
