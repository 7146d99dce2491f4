// PricingService 主程序
// 功能：Black-Scholes 欧式期权定价、希腊字母、批量定价与热力图
// 架构：DDD + gin HTTP + gRPC + Kafka (outbox)
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

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/blackscholes/internal/pricing/application"
	"github.com/wyfcoding/blackscholes/internal/pricing/domain"
	"github.com/wyfcoding/blackscholes/internal/pricing/infrastructure/messaging"
	"github.com/wyfcoding/blackscholes/internal/pricing/infrastructure/persistence/mysql"
	quotecache "github.com/wyfcoding/blackscholes/internal/pricing/infrastructure/persistence/redis"
	grpchandler "github.com/wyfcoding/blackscholes/internal/pricing/interfaces/grpc"
	httphandler "github.com/wyfcoding/blackscholes/internal/pricing/interfaces/http"
	requestconsumer "github.com/wyfcoding/blackscholes/internal/pricing/interfaces/messaging"
	"github.com/wyfcoding/blackscholes/pkg/cache"
	"github.com/wyfcoding/blackscholes/pkg/config"
	"github.com/wyfcoding/blackscholes/pkg/db"
	"github.com/wyfcoding/blackscholes/pkg/logger"
	"github.com/wyfcoding/blackscholes/pkg/metrics"
	"github.com/wyfcoding/blackscholes/pkg/mq"
	"github.com/wyfcoding/blackscholes/pkg/ratelimit"
	"github.com/wyfcoding/blackscholes/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

const historyCleanupInterval = time.Hour

func main() {
	// 1. 加载配置
	configPath := config.GetEnv("APP_CONFIG_PATH", "configs/pricing/config.toml")
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	loggerCfg := logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}
	if err := logger.Init(loggerCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger.Info(ctx, "Starting PricingService",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
		"config", configPath,
	)
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 3. 初始化追踪
	tracing.SetupPropagator()
	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(ctx, tracing.Config{
			ServiceName:  cfg.ServiceName,
			Version:      cfg.Version,
			Endpoint:     cfg.Tracing.CollectorEndpoint,
			SamplingRate: cfg.Tracing.SamplingRate,
		})
		if err != nil {
			logger.Error(ctx, "Failed to initialize tracer", "error", err)
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error(context.Background(), "Failed to shutdown tracer", "error", err)
				}
			}()
			logger.Info(ctx, "Tracer initialized", "endpoint", cfg.Tracing.CollectorEndpoint)
		}
	}

	// 4. 初始化指标
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.ServiceName)
	}

	checks := map[string]httphandler.HealthCheck{}

	// 5. 初始化数据库（可选）
	var (
		database *db.DB
		repo     domain.PricingRepository
	)
	if cfg.Database.Driver != "" {
		database, err = db.Init(db.Config{
			Driver:             cfg.Database.Driver,
			DSN:                cfg.Database.DSN,
			MaxOpenConns:       cfg.Database.MaxOpenConns,
			MaxIdleConns:       cfg.Database.MaxIdleConns,
			ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
			LogEnabled:         cfg.Database.LogEnabled,
			SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
		})
		if err != nil {
			logger.Fatal(ctx, "Failed to initialize database", "error", err)
		}
		defer database.Close()

		if cfg.Database.AutoMigrate {
			if err := mysql.AutoMigrate(database.DB); err != nil {
				logger.Fatal(ctx, "Failed to migrate pricing tables", "error", err)
			}
			if err := messaging.AutoMigrate(database.DB); err != nil {
				logger.Fatal(ctx, "Failed to migrate outbox table", "error", err)
			}
		}
		repo = mysql.NewPricingRepository(database.DB)
		checks["database"] = database.Ping
	}

	// 6. 初始化 Redis（可选）
	var (
		redisCache *cache.RedisCache
		quotes     domain.QuoteCache
	)
	if cfg.Redis.Enabled {
		redisCache, err = cache.New(cache.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxPoolSize:  cfg.Redis.MaxPoolSize,
			ConnTimeout:  cfg.Redis.ConnTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			logger.Fatal(ctx, "Failed to initialize Redis", "error", err)
		}
		defer redisCache.Close()
		if cfg.Pricing.CacheTTL > 0 {
			quotes = quotecache.NewQuoteCache(redisCache, time.Duration(cfg.Pricing.CacheTTL)*time.Second)
		}
		checks["redis"] = redisCache.Ping
	}

	// 7. 初始化限流器
	var limiter ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Backend == "redis" && redisCache != nil {
			limiter = ratelimit.NewRedisRateLimiter(redisCache.GetClient())
		} else {
			limiter = ratelimit.NewLocalRateLimiter()
		}
	}
	limit := ratelimit.PerSecond(cfg.RateLimit.Rate, cfg.RateLimit.Burst)

	// 8. 初始化 Kafka 与事件发布
	var (
		producer  *mq.KafkaProducer
		publisher domain.EventPublisher
		relay     *messaging.OutboxRelay
		consumer  *mq.KafkaConsumer
	)
	kafkaCfg := mq.KafkaConfig{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.GroupID,
		SessionTimeout:  cfg.Kafka.SessionTimeout,
		BreakerFailures: cfg.Kafka.BreakerFailures,
	}
	if cfg.Kafka.Enabled {
		producer = mq.NewProducer(kafkaCfg)
		defer producer.Close()
	}
	switch {
	case database != nil:
		publisher = messaging.NewOutboxEventPublisher(database.DB, cfg.Kafka.EventTopic)
		if producer != nil {
			relay = messaging.NewOutboxRelay(database.DB, producer, m, messaging.RelayOptions{
				BatchSize:    cfg.Pricing.OutboxBatchSize,
				PollInterval: time.Duration(cfg.Pricing.OutboxPollInterval) * time.Millisecond,
				Retention:    time.Duration(cfg.Pricing.OutboxRetentionHours) * time.Hour,
			})
		} else {
			logger.Warn(ctx, "Kafka disabled: events stay in the outbox table until a relay runs")
		}
	case producer != nil:
		publisher = messaging.NewKafkaEventPublisher(producer, cfg.Kafka.EventTopic)
	}

	// 9. 初始化应用服务
	app := application.NewPricingService(repo, quotes, publisher, m, application.Options{
		MaxBatchSize: cfg.Pricing.MaxBatchSize,
		Workers:      cfg.Pricing.Workers,
	})

	if producer != nil && cfg.Kafka.RequestTopic != "" {
		dlq := mq.NewDeadLetterQueue(producer, cfg.Kafka.DeadLetterTopic, m.RecordDeadLetter)
		consumer = mq.NewConsumer(kafkaCfg, cfg.Kafka.RequestTopic, dlq)
		defer consumer.Close()
	}

	// 10. 创建 HTTP 与 gRPC 服务器
	router := httphandler.NewRouter(httphandler.RouterOptions{
		ServiceName:  cfg.ServiceName,
		Handler:      httphandler.NewPricingHandler(app),
		Metrics:      m,
		MetricsPath:  cfg.Metrics.Path,
		AllowOrigins: cfg.HTTP.AllowOrigins,
		Limiter:      limiter,
		Limit:        limit,
		Checks:       checks,
	})
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	grpcServer, healthServer := grpchandler.NewServer(grpchandler.NewGRPCHandler(app), grpchandler.ServerOptions{
		Metrics:              m,
		Limiter:              limiter,
		Limit:                limit,
		MaxConcurrentStreams: uint32(cfg.GRPC.MaxConcurrentStreams),
		IdleTimeout:          time.Duration(cfg.GRPC.IdleTimeout) * time.Second,
	})

	// 11. 启动服务与后台任务
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info(gctx, "Starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		listener, err := net.Listen("tcp", cfg.GRPC.Addr())
		if err != nil {
			return fmt.Errorf("listen on gRPC address: %w", err)
		}
		logger.Info(gctx, "Starting gRPC server", "addr", cfg.GRPC.Addr())
		return grpcServer.Serve(listener)
	})

	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	if consumer != nil {
		c := requestconsumer.NewPricingRequestConsumer(app)
		g.Go(func() error {
			logger.Info(gctx, "Starting pricing request consumer", "topic", cfg.Kafka.RequestTopic)
			return c.Run(gctx, consumer)
		})
	}
	if database != nil && cfg.Pricing.HistoryRetentionDays > 0 {
		retention := time.Duration(cfg.Pricing.HistoryRetentionDays) * 24 * time.Hour
		g.Go(func() error {
			runHistoryCleanup(gctx, database, retention)
			return nil
		})
	}

	// 12. 优雅关停
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "Shutting down PricingService")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "HTTP server shutdown error", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(context.Background(), "PricingService exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info(context.Background(), "PricingService stopped")
}

// runHistoryCleanup 定期删除过期的定价历史
func runHistoryCleanup(ctx context.Context, database *db.DB, retention time.Duration) {
	ticker := time.NewTicker(historyCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := mysql.CleanupOldResults(ctx, database.DB, retention)
			if err != nil {
				logger.Error(ctx, "Failed to clean up pricing history", "error", err)
				continue
			}
			if n > 0 {
				logger.Info(ctx, "Pricing history cleaned up", "deleted", n)
			}
		}
	}
}
