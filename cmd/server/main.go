package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/qs3c/plugin_go_server/config"
	"github.com/qs3c/plugin_go_server/internal/api"
	"github.com/qs3c/plugin_go_server/internal/api/handler"
	"github.com/qs3c/plugin_go_server/internal/database"
	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/pkg/cache"
	"github.com/qs3c/plugin_go_server/internal/pkg/logger"
	"github.com/qs3c/plugin_go_server/internal/pkg/metrics"
	"github.com/qs3c/plugin_go_server/internal/pkg/pubsub"
	"github.com/qs3c/plugin_go_server/internal/repository"
	"github.com/qs3c/plugin_go_server/internal/service"
)

var configPath = flag.String("config", "config/config.yaml", "Path to config file")

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

	// 初始化指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	deps := service.Deps{Log: log, Metrics: m}

	// 初始化 Repository
	pluginRepo := repository.NewPluginRepository(db)
	versionRepo := repository.NewVersionRepository(db)
	planRepo := repository.NewPlanRepository(db)
	ptRepo := repository.NewPluginTenantRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	billingRepo := repository.NewBillingRepository(db)
	instRepo := repository.NewInstallationRepository(db)

	// 初始化 Service
	entitlementCache := cache.New[*model.PluginTenant](cfg.Cache.Size, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	publisher := pubsub.NewPublisher(rdb, cfg.Cache.InvalidationChannel)

	pluginService := service.NewPluginService(pluginRepo, deps)
	versionService := service.NewVersionService(versionRepo, pluginRepo, deps)
	planService := service.NewPlanService(planRepo, pluginRepo, deps)
	entitlementService := service.NewEntitlementService(ptRepo, pluginRepo, entitlementCache, publisher, cfg, deps)
	subscriptionService := service.NewSubscriptionService(subRepo, planRepo, billingRepo, entitlementService, cfg, deps)
	billingService := service.NewBillingService(billingRepo, subRepo, planRepo, subscriptionService, cfg, deps)
	installationService := service.NewInstallationService(instRepo, pluginRepo, versionService, entitlementService, cfg, deps)

	// 初始化 Router
	router := api.NewRouter(api.Handlers{
		Plugin:       handler.NewPluginHandler(pluginService, versionService),
		Plan:         handler.NewPlanHandler(planService),
		Entitlement:  handler.NewEntitlementHandler(entitlementService),
		Subscription: handler.NewSubscriptionHandler(subscriptionService),
		Billing:      handler.NewBillingHandler(billingService),
		Installation: handler.NewInstallationHandler(installationService),
		Health:       handler.NewHealthHandler(db, rdb),
	}, entitlementService, m, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 其他实例修改授权后清除本地缓存
	subscriber := pubsub.NewSubscriber(rdb, cfg.Cache.InvalidationChannel)
	go func() {
		if err := subscriber.Subscribe(ctx, entitlementService.HandleInvalidation); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Invalidation subscriber stopped")
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	if err := rdb.Close(); err != nil {
		log.WithError(err).Warn("Failed to close redis")
	}
	log.Info("Server shutdown complete")
}
