// Package app 提供应用生命周期管理
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/cloudverse/broker/internal/config"
	"github.com/cloudverse/broker/internal/kafka"
	"github.com/cloudverse/broker/internal/provider"
	"github.com/cloudverse/broker/internal/publisher"
	"github.com/cloudverse/broker/internal/quota"
	"github.com/cloudverse/broker/internal/repository"
	"github.com/cloudverse/broker/internal/service"
	"github.com/cloudverse/broker/pkg/lock"
	"github.com/cloudverse/broker/pkg/logger"
)

// App 应用实例
type App struct {
	cfg *config.Config

	// 基础设施
	db  *gorm.DB
	rdb *redis.Client

	// HTTP (metrics + health)
	httpServer *http.Server

	// Kafka
	producer *kafka.Producer
	events   *publisher.EventPublisher

	// 资源提供者与配额
	registry *provider.Registry
	quotaMgr quota.Manager

	// 服务层
	orderSvc    service.OrderService
	paymentSvc  service.PaymentService
	refundSvc   service.RefundService
	deliverySvc service.DeliveryService

	// 仓储层
	orderRepo   repository.OrderRepository
	accountRepo repository.AccountRepository
	couponRepo  repository.CouponRepository
	paymentRepo repository.PaymentRepository

	// 生命周期
	ctx    context.Context
	cancel context.CancelFunc
}

// New 创建应用实例
// adapter 和 quotaMgr 由部署环境提供对应实现
func New(cfg *config.Config, adapter provider.Adapter, quotaMgr quota.Manager) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		cfg:      cfg,
		registry: provider.NewRegistry(adapter),
		quotaMgr: quotaMgr,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Run 启动应用
func (a *App) Run() error {
	logger.Info("starting service", zap.String("service", a.cfg.Service.Name))

	// 1. 初始化基础设施
	if err := a.initInfra(); err != nil {
		return fmt.Errorf("init infra: %w", err)
	}

	// 2. 初始化 Kafka
	if err := a.initKafka(); err != nil {
		return fmt.Errorf("init kafka: %w", err)
	}

	// 3. 初始化仓储层
	a.initRepositories()

	// 4. 初始化服务层
	a.initServices()

	// 5. 启动 HTTP 服务器 (metrics + health check)
	a.startHTTPServer()

	// 6. 等待关闭信号
	a.waitForShutdown()

	return nil
}

// initInfra 初始化数据库和 Redis
func (a *App) initInfra() error {
	db, err := OpenDatabase(&a.cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	a.db = db

	if err := AutoMigrate(a.db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("database migrated")

	if a.cfg.Redis.Enabled {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", a.cfg.Redis.Host, a.cfg.Redis.Port),
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
			PoolSize: a.cfg.Redis.PoolSize,
		})
		if err := a.rdb.Ping(a.ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("redis connected", zap.String("host", a.cfg.Redis.Host))
	}

	return nil
}

// initKafka 初始化 Kafka 生产者
func (a *App) initKafka() error {
	if !a.cfg.Kafka.Enabled {
		logger.Warn("kafka is disabled, event publishing is a no-op")
		a.events = publisher.NewEventPublisher(nil)
		return nil
	}

	producer, err := kafka.NewProducer(kafka.DefaultProducerConfig(a.cfg.Kafka.Brokers))
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}
	a.producer = producer
	a.events = publisher.NewEventPublisher(producer)
	return nil
}

// initRepositories 初始化仓储层
func (a *App) initRepositories() {
	a.orderRepo = repository.NewOrderRepository(a.db)
	a.accountRepo = repository.NewAccountRepository(a.db)
	a.couponRepo = repository.NewCouponRepository(a.db)
	a.paymentRepo = repository.NewPaymentRepository(a.db)
}

// initServices 初始化服务层
func (a *App) initServices() {
	var locker *lock.RedisLocker
	if a.rdb != nil {
		locker = lock.NewRedisLocker(a.rdb, a.cfg.Service.Name+":lock:",
			time.Duration(a.cfg.Delivery.LockExpirationSec)*time.Second)
	}

	a.paymentSvc = service.NewPaymentService(a.orderRepo, a.accountRepo, a.couponRepo, a.paymentRepo, a.events)
	a.refundSvc = service.NewRefundService(a.accountRepo, a.couponRepo, a.paymentRepo, a.events)
	a.deliverySvc = service.NewDeliveryService(a.orderRepo, a.registry, a.quotaMgr, locker, a.events,
		time.Duration(a.cfg.Delivery.ThrottleSec)*time.Second)
	a.orderSvc = service.NewOrderService(a.orderRepo, a.paymentRepo, a.paymentSvc, a.refundSvc, a.deliverySvc)
}

// OrderService 返回订单服务
func (a *App) OrderService() service.OrderService {
	return a.orderSvc
}

// DeliveryService 返回交付服务
func (a *App) DeliveryService() service.DeliveryService {
	return a.deliverySvc
}

// startHTTPServer 启动 HTTP 服务器 (metrics + health check)
func (a *App) startHTTPServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		status := map[string]string{"status": "ok"}
		if sqlDB, err := a.db.DB(); err != nil || sqlDB.Ping() != nil {
			status["status"] = "unhealthy"
			status["database"] = "down"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	})

	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Service.HTTPPort),
		Handler: mux,
	}

	go func() {
		logger.Info("http server listening", zap.Int("port", a.cfg.Service.HTTPPort))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http serve error", zap.Error(err))
		}
	}()
}

// waitForShutdown 等待关闭信号
func (a *App) waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	a.shutdown()
}

// shutdown 优雅关闭
func (a *App) shutdown() {
	a.cancel()

	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", zap.Error(err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			logger.Error("close kafka producer failed", zap.Error(err))
		}
	}

	if a.rdb != nil {
		_ = a.rdb.Close()
	}

	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	logger.Info("service stopped")
}

// OpenDatabase 连接数据库并配置连接池
func OpenDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	return db, nil
}
