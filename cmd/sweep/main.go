package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/plugin_go_server/config"
	"github.com/qs3c/plugin_go_server/internal/database"
	"github.com/qs3c/plugin_go_server/internal/pkg/cron"
	"github.com/qs3c/plugin_go_server/internal/pkg/logger"
	"github.com/qs3c/plugin_go_server/internal/pkg/metrics"
	"github.com/qs3c/plugin_go_server/internal/pkg/pubsub"
	"github.com/qs3c/plugin_go_server/internal/pkg/queue"
	"github.com/qs3c/plugin_go_server/internal/repository"
	"github.com/qs3c/plugin_go_server/internal/service"
)

var (
	configPath = flag.String("config", "", "Path to config file, falls back to CONFIG_PATH")
	dryRun     = flag.Bool("dry-run", true, "Only report what would be processed")
	jobs       = flag.String("job", "expire,overdue,renew", "Comma separated jobs to run: expire, overdue, renew")
)

const previewLimit = 500

func main() {
	flag.Parse()

	// 加载配置
	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect database")
	}
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect redis")
	}
	defer rdb.Close()

	deps := service.Deps{Log: log, Metrics: metrics.NewNop()}
	pluginRepo := repository.NewPluginRepository(db)
	planRepo := repository.NewPlanRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	billingRepo := repository.NewBillingRepository(db)
	publisher := pubsub.NewPublisher(rdb, cfg.Cache.InvalidationChannel)

	entitlementService := service.NewEntitlementService(repository.NewPluginTenantRepository(db), pluginRepo, nil, publisher, cfg, deps)
	subscriptionService := service.NewSubscriptionService(subRepo, planRepo, billingRepo, entitlementService, cfg, deps)
	billingService := service.NewBillingService(billingRepo, subRepo, planRepo, subscriptionService, cfg, deps)
	scheduler := cron.NewScheduler(subscriptionService, billingService,
		queue.NewQueue(rdb, cfg.Queue.RenewalQueue), cfg.Scheduler, log, deps.Metrics)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	now := time.Now().UTC()

	log.WithFields(logrus.Fields{"dry_run": *dryRun, "jobs": *jobs}).Info("Starting sweep")

	failed := false
	for _, job := range strings.Split(*jobs, ",") {
		job = strings.TrimSpace(job)
		if job == "" {
			continue
		}
		entry := log.WithField("job", job)

		if *dryRun {
			n, err := preview(job, now, subRepo, billingRepo, subscriptionService)
			if err != nil {
				entry.WithError(err).Error("Preview failed")
				failed = true
				continue
			}
			entry.WithField("candidates", n).Info("Would process")
			continue
		}

		n, err := scheduler.RunOnce(ctx, job)
		if err != nil {
			entry.WithError(err).Error("Job failed")
			failed = true
			continue
		}
		entry.WithField("processed", n).Info("Job finished")
	}

	if *dryRun {
		log.Info("Dry run, nothing was changed. Run with -dry-run=false to apply")
	}
	if failed {
		os.Exit(1)
	}
}

// preview 只统计待处理条数，不做任何修改
func preview(job string, now time.Time, subs *repository.SubscriptionRepository, bills *repository.BillingRepository, svc *service.SubscriptionService) (int, error) {
	switch job {
	case cron.JobExpire:
		due, err := subs.ListExpireDue(now, previewLimit)
		return len(due), err
	case cron.JobOverdue:
		due, err := bills.ListPendingPastDue(now, previewLimit)
		return len(due), err
	case cron.JobRenew:
		due, err := svc.ListRenewable(now)
		return len(due), err
	}
	return 0, fmt.Errorf("unknown job %q", job)
}
