package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/qs3c/plugin_go_server/config"
	"github.com/qs3c/plugin_go_server/internal/database"
	"github.com/qs3c/plugin_go_server/internal/pkg/cron"
	"github.com/qs3c/plugin_go_server/internal/pkg/logger"
	"github.com/qs3c/plugin_go_server/internal/pkg/metrics"
	"github.com/qs3c/plugin_go_server/internal/pkg/pubsub"
	"github.com/qs3c/plugin_go_server/internal/pkg/queue"
	"github.com/qs3c/plugin_go_server/internal/repository"
	"github.com/qs3c/plugin_go_server/internal/service"
	"github.com/qs3c/plugin_go_server/internal/worker"
)

var (
	configPath  = flag.String("config", "config/config.yaml", "Path to config file")
	metricsAddr = flag.String("metrics-addr", ":9091", "Listen address for worker metrics, empty to disable")
	pollTimeout = flag.Duration("poll-timeout", 5*time.Second, "Blocking pop timeout on the renewal queue")
)

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect database")
	}
	log.Info("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect redis")
	}
	log.Info("Redis connected")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)
	deps := service.Deps{Log: log, Metrics: m}

	// 初始化 Service，授权变更仍需通知 API 实例清缓存
	pluginRepo := repository.NewPluginRepository(db)
	planRepo := repository.NewPlanRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	billingRepo := repository.NewBillingRepository(db)
	publisher := pubsub.NewPublisher(rdb, cfg.Cache.InvalidationChannel)

	entitlementService := service.NewEntitlementService(repository.NewPluginTenantRepository(db), pluginRepo, nil, publisher, cfg, deps)
	subscriptionService := service.NewSubscriptionService(subRepo, planRepo, billingRepo, entitlementService, cfg, deps)
	billingService := service.NewBillingService(billingRepo, subRepo, planRepo, subscriptionService, cfg, deps)

	renewQueue := queue.NewQueue(rdb, cfg.Queue.RenewalQueue)
	processor := worker.NewProcessor(subscriptionService, billingService, renewQueue, cfg.Subscription.MaxRetries, log, m)
	scheduler := cron.NewScheduler(subscriptionService, billingService, renewQueue, cfg.Scheduler, log, m)

	// 创建 context 用于优雅关闭
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scheduler.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start scheduler")
	}

	var metricsSrv *http.Server
	if *metricsAddr != "" && cfg.Metrics.Enabled {
		gin.SetMode(gin.ReleaseMode)
		engine := gin.New()
		engine.GET(cfg.Metrics.Path, m.Handler())
		metricsSrv = &http.Server{Addr: *metricsAddr, Handler: engine, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	log.WithField("max_workers", cfg.Queue.MaxWorkers).Info("Worker started")

	// 启动 worker 循环
	var wg sync.WaitGroup
	for i := 0; i < cfg.Queue.MaxWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			processor.Consume(ctx, workerID, *pollTimeout)
		}(i)
	}

	<-ctx.Done()
	log.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	wg.Wait()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := rdb.Close(); err != nil {
		log.WithError(err).Warn("Failed to close redis")
	}
	log.Info("Worker shutdown complete")
}
