package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/plugin_go_server/config"
	"github.com/qs3c/plugin_go_server/internal/api/middleware"
	"github.com/qs3c/plugin_go_server/internal/pkg/logger"
	"github.com/qs3c/plugin_go_server/internal/pkg/response"
	"github.com/qs3c/plugin_go_server/internal/repository"
	"github.com/qs3c/plugin_go_server/internal/service"
	"github.com/qs3c/plugin_go_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testContext 共用一个内存库的全部 handler
type testContext struct {
	DB *gorm.DB

	plugins       *PluginHandler
	plans         *PlanHandler
	entitlements  *EntitlementHandler
	subscriptions *SubscriptionHandler
	billings      *BillingHandler
	installations *InstallationHandler
}

func setupHandlers(t *testing.T) *testContext {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := config.Default()
	deps := service.Deps{Log: logger.Discard()}

	pluginRepo := repository.NewPluginRepository(db)
	versionRepo := repository.NewVersionRepository(db)
	planRepo := repository.NewPlanRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	billingRepo := repository.NewBillingRepository(db)

	pluginService := service.NewPluginService(pluginRepo, deps)
	versionService := service.NewVersionService(versionRepo, pluginRepo, deps)
	planService := service.NewPlanService(planRepo, pluginRepo, deps)
	entitlementService := service.NewEntitlementService(repository.NewPluginTenantRepository(db), pluginRepo, nil, nil, cfg, deps)
	subscriptionService := service.NewSubscriptionService(subRepo, planRepo, billingRepo, entitlementService, cfg, deps)
	billingService := service.NewBillingService(billingRepo, subRepo, planRepo, subscriptionService, cfg, deps)
	installationService := service.NewInstallationService(repository.NewInstallationRepository(db), pluginRepo, versionService, entitlementService, cfg, deps)

	return &testContext{
		DB:            db,
		plugins:       NewPluginHandler(pluginService, versionService),
		plans:         NewPlanHandler(planService),
		entitlements:  NewEntitlementHandler(entitlementService),
		subscriptions: NewSubscriptionHandler(subscriptionService),
		billings:      NewBillingHandler(billingService),
		installations: NewInstallationHandler(installationService),
	}
}

// mockAuth 模拟认证中间件
func mockAuth(p service.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.PrincipalKey, p)
		c.Next()
	}
}

var tenantAdmin = service.Principal{UserID: 1, TenantID: 100, Roles: []string{"admin"}}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		data, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

// dataMap 取出 data 对象
func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return data
}
