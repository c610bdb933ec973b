package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/plugin_go_server/config"
	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/pkg/pubsub"
	"github.com/qs3c/plugin_go_server/internal/repository"
	"github.com/qs3c/plugin_go_server/internal/testutil"
)

// testEnv 共用一个内存库的全部服务，时钟固定在 now
type testEnv struct {
	db  *gorm.DB
	cfg *config.Config
	now time.Time

	plugins       *PluginService
	versions      *VersionService
	plans         *PlanService
	entitlements  *EntitlementService
	subscriptions *SubscriptionService
	billings      *BillingService
	installations *InstallationService
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func setupEnv(t *testing.T, publisher *pubsub.Publisher) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := config.Default()
	env := &testEnv{
		db:  db,
		cfg: cfg,
		now: time.Now().UTC().Truncate(time.Second),
	}
	deps := Deps{Log: quietLogger(), Now: func() time.Time { return env.now }}

	pluginRepo := repository.NewPluginRepository(db)
	versionRepo := repository.NewVersionRepository(db)
	planRepo := repository.NewPlanRepository(db)
	ptRepo := repository.NewPluginTenantRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	billingRepo := repository.NewBillingRepository(db)
	instRepo := repository.NewInstallationRepository(db)

	env.plugins = NewPluginService(pluginRepo, deps)
	env.versions = NewVersionService(versionRepo, pluginRepo, deps)
	env.plans = NewPlanService(planRepo, pluginRepo, deps)
	env.entitlements = NewEntitlementService(ptRepo, pluginRepo, nil, publisher, cfg, deps)
	env.subscriptions = NewSubscriptionService(subRepo, planRepo, billingRepo, env.entitlements, cfg, deps)
	env.billings = NewBillingService(billingRepo, subRepo, planRepo, env.subscriptions, cfg, deps)
	env.installations = NewInstallationService(instRepo, pluginRepo, env.versions, env.entitlements, cfg, deps)
	return env
}

func (e *testEnv) reloadEntitlement(t *testing.T, id int64) *model.PluginTenant {
	t.Helper()
	var pt model.PluginTenant
	if err := e.db.First(&pt, id).Error; err != nil {
		t.Fatalf("Failed to reload entitlement: %v", err)
	}
	return &pt
}

func (e *testEnv) reloadSubscription(t *testing.T, id int64) *model.PluginSubscription {
	t.Helper()
	var sub model.PluginSubscription
	if err := e.db.First(&sub, id).Error; err != nil {
		t.Fatalf("Failed to reload subscription: %v", err)
	}
	return &sub
}

var bg = context.Background()
