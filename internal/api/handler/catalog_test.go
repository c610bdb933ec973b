package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/pkg/response"
	"github.com/qs3c/plugin_go_server/internal/testutil"
)

func catalogRouter(tc *testContext) *gin.Engine {
	r := gin.New()
	r.GET("/plugins", tc.plugins.List)
	r.GET("/plugins/:id", tc.plugins.Get)
	r.GET("/plugins/:id/versions", tc.plugins.ListVersions)
	r.GET("/plugins/:id/versions/latest", tc.plugins.LatestVersion)
	r.GET("/plugins/:id/versions/resolve", tc.plugins.ResolveVersion)
	r.GET("/plugins/:id/versions/:version_id/sources", tc.plugins.VersionSources)
	r.GET("/plugins/:id/plans", tc.plans.List)
	r.GET("/plans/:id", tc.plans.Get)
	r.GET("/plans/:id/compare", tc.plans.Compare)

	admin := r.Group("/admin", mockAuth(tenantAdmin))
	admin.POST("/plugins", tc.plugins.Create)
	admin.PUT("/plugins/:id/status", tc.plugins.SetStatus)
	admin.POST("/plugins/:id/versions", tc.plugins.PublishVersion)
	admin.POST("/plugins/:id/plans", tc.plans.Create)
	admin.PUT("/plans/:id/active", tc.plans.SetActive)
	return r
}

func TestPluginHandler_Create(t *testing.T) {
	tc := setupHandlers(t)
	r := catalogRouter(tc)

	w := performRequest(r, http.MethodPost, "/admin/plugins", map[string]interface{}{
		"name": "log-shipper",
		"type": "integration",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)

	data := dataMap(t, resp)
	assert.Equal(t, "log-shipper", data["name"])
	assert.Equal(t, model.PluginStatusActive, data["status"])
}

func TestPluginHandler_CreateMissingName(t *testing.T) {
	tc := setupHandlers(t)
	r := catalogRouter(tc)

	w := performRequest(r, http.MethodPost, "/admin/plugins", map[string]interface{}{"type": "integration"})
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestPluginHandler_CreateWithoutPrincipal(t *testing.T) {
	tc := setupHandlers(t)
	r := gin.New()
	r.POST("/plugins", tc.plugins.Create)

	w := performRequest(r, http.MethodPost, "/plugins", map[string]interface{}{"name": "x", "type": "y"})
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestPluginHandler_GetAndList(t *testing.T) {
	tc := setupHandlers(t)
	r := catalogRouter(tc)
	p := testutil.TestPlugin(t, tc.DB, testutil.WithPluginName("metrics-bridge"))
	testutil.TestPlugin(t, tc.DB, testutil.WithPluginStatus(model.PluginStatusInactive))

	t.Run("get", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, fmt.Sprintf("/plugins/%d", p.ID), nil)
		resp := parseResponse(t, w)
		require.Equal(t, response.CodeSuccess, resp.Code)
		assert.Equal(t, "metrics-bridge", dataMap(t, resp)["name"])
	})

	t.Run("not found", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, "/plugins/99999", nil)
		resp := parseResponse(t, w)
		assert.Equal(t, response.CodeResourceNotFound, resp.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, "/plugins/abc", nil)
		resp := parseResponse(t, w)
		assert.Equal(t, response.CodeParamError, resp.Code)
	})

	t.Run("list by status", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, "/plugins?status=active", nil)
		resp := parseResponse(t, w)
		require.Equal(t, response.CodeSuccess, resp.Code)
		data := dataMap(t, resp)
		assert.Equal(t, float64(1), data["total"])
		assert.Equal(t, float64(20), data["page_size"])
	})
}

func TestPluginHandler_SetStatus(t *testing.T) {
	tc := setupHandlers(t)
	r := catalogRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)

	w := performRequest(r, http.MethodPut, fmt.Sprintf("/admin/plugins/%d/status", p.ID), map[string]string{"status": "deprecated"})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, model.PluginStatusDeprecated, dataMap(t, resp)["status"])

	w = performRequest(r, http.MethodPut, fmt.Sprintf("/admin/plugins/%d/status", p.ID), map[string]string{"status": "gone"})
	resp = parseResponse(t, w)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestPluginHandler_PublishVersion(t *testing.T) {
	tc := setupHandlers(t)
	r := catalogRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)

	body := map[string]interface{}{
		"number": "1.2.0",
		"sources": []map[string]interface{}{
			{"os": "linux", "arch": "amd64", "url": "https://cdn.example.com/p-1.2.0-linux.tgz"},
		},
	}
	w := performRequest(r, http.MethodPost, fmt.Sprintf("/admin/plugins/%d/versions", p.ID), body)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataMap(t, resp)
	assert.Equal(t, "1.2.0", data["number"])
	assert.Equal(t, float64(p.ID), data["plugin_id"])

	t.Run("invalid number", func(t *testing.T) {
		bad := map[string]interface{}{
			"number":  "one.two",
			"sources": []map[string]interface{}{{"url": "https://cdn.example.com/x.tgz"}},
		}
		w := performRequest(r, http.MethodPost, fmt.Sprintf("/admin/plugins/%d/versions", p.ID), bad)
		resp := parseResponse(t, w)
		assert.Equal(t, response.CodeParamError, resp.Code)
	})

	t.Run("no sources", func(t *testing.T) {
		bad := map[string]interface{}{"number": "1.3.0"}
		w := performRequest(r, http.MethodPost, fmt.Sprintf("/admin/plugins/%d/versions", p.ID), bad)
		resp := parseResponse(t, w)
		assert.Equal(t, response.CodeParamError, resp.Code)
	})

	t.Run("deprecated plugin", func(t *testing.T) {
		old := testutil.TestPlugin(t, tc.DB, testutil.WithPluginStatus(model.PluginStatusDeprecated))
		w := performRequest(r, http.MethodPost, fmt.Sprintf("/admin/plugins/%d/versions", old.ID), body)
		resp := parseResponse(t, w)
		assert.Equal(t, response.CodeInvalidState, resp.Code)
	})
}

func TestPluginHandler_Versions(t *testing.T) {
	tc := setupHandlers(t)
	r := catalogRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)
	testutil.TestVersion(t, tc.DB, p.ID, "1.0.0")
	testutil.TestVersion(t, tc.DB, p.ID, "1.4.2")
	testutil.TestVersion(t, tc.DB, p.ID, "2.0.0-beta.1")

	t.Run("list newest first", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, fmt.Sprintf("/plugins/%d/versions", p.ID), nil)
		resp := parseResponse(t, w)
		require.Equal(t, response.CodeSuccess, resp.Code)
		items, ok := resp.Data.([]interface{})
		require.True(t, ok)
		require.Len(t, items, 3)
		assert.Equal(t, "2.0.0-beta.1", items[0].(map[string]interface{})["number"])
	})

	t.Run("latest stable", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, fmt.Sprintf("/plugins/%d/versions/latest", p.ID), nil)
		resp := parseResponse(t, w)
		require.Equal(t, response.CodeSuccess, resp.Code)
		assert.Equal(t, "1.4.2", dataMap(t, resp)["number"])
	})

	t.Run("latest with prerelease", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, fmt.Sprintf("/plugins/%d/versions/latest?prerelease=true", p.ID), nil)
		resp := parseResponse(t, w)
		require.Equal(t, response.CodeSuccess, resp.Code)
		assert.Equal(t, "2.0.0-beta.1", dataMap(t, resp)["number"])
	})

	t.Run("resolve caret range", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, fmt.Sprintf("/plugins/%d/versions/resolve?range=%%5E1.0.0", p.ID), nil)
		resp := parseResponse(t, w)
		require.Equal(t, response.CodeSuccess, resp.Code)
		assert.Equal(t, "1.4.2", dataMap(t, resp)["number"])
	})

	t.Run("resolve nothing matches", func(t *testing.T) {
		w := performRequest(r, http.MethodGet, fmt.Sprintf("/plugins/%d/versions/resolve?range=%%5E3.0.0", p.ID), nil)
		resp := parseResponse(t, w)
		assert.Equal(t, response.CodeResourceNotFound, resp.Code)
	})
}

func TestPluginHandler_VersionSources(t *testing.T) {
	tc := setupHandlers(t)
	r := catalogRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)
	other := testutil.TestPlugin(t, tc.DB)
	v := testutil.TestVersion(t, tc.DB, p.ID, "1.0.0")

	w := performRequest(r, http.MethodGet, fmt.Sprintf("/plugins/%d/versions/%d/sources", p.ID, v.ID), nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	items, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 1)

	w = performRequest(r, http.MethodGet, fmt.Sprintf("/plugins/%d/versions/%d/sources", other.ID, v.ID), nil)
	resp = parseResponse(t, w)
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestPlanHandler_CreateAndList(t *testing.T) {
	tc := setupHandlers(t)
	r := catalogRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)

	w := performRequest(r, http.MethodPost, fmt.Sprintf("/admin/plugins/%d/plans", p.ID), map[string]interface{}{
		"name":           "Pro",
		"type":           "PREMIUM",
		"price":          "29.90",
		"currency":       "USD",
		"billing_period": "MONTHLY",
		"trial_days":     14,
	})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataMap(t, resp)
	assert.Equal(t, "Pro", data["name"])
	planID := int64(data["id"].(float64))

	w = performRequest(r, http.MethodPut, fmt.Sprintf("/admin/plans/%d/active", planID), map[string]bool{"active": false})
	require.Equal(t, response.CodeSuccess, parseResponse(t, w).Code)

	w = performRequest(r, http.MethodGet, fmt.Sprintf("/plugins/%d/plans", p.ID), nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Empty(t, resp.Data)

	w = performRequest(r, http.MethodGet, fmt.Sprintf("/plugins/%d/plans?all=true", p.ID), nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	items, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 1)
}

func TestPlanHandler_CreateBadPeriod(t *testing.T) {
	tc := setupHandlers(t)
	r := catalogRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)

	w := performRequest(r, http.MethodPost, fmt.Sprintf("/admin/plugins/%d/plans", p.ID), map[string]interface{}{
		"name":           "Odd",
		"type":           "BASIC",
		"billing_period": "FORTNIGHTLY",
	})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}

func TestPlanHandler_Compare(t *testing.T) {
	tc := setupHandlers(t)
	r := catalogRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)
	monthly := testutil.TestPlan(t, tc.DB, p.ID, testutil.WithPrice("10.00", model.PeriodMonthly))
	yearly := testutil.TestPlan(t, tc.DB, p.ID, testutil.WithPrice("100.00", model.PeriodYearly))

	w := performRequest(r, http.MethodGet, fmt.Sprintf("/plans/%d/compare?with=%d", monthly.ID, yearly.ID), nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataMap(t, resp)
	assert.Equal(t, float64(monthly.ID), data["plan_a"])
	assert.Equal(t, float64(yearly.ID), data["plan_b"])
	assert.Equal(t, false, data["a_better_value"])

	w = performRequest(r, http.MethodGet, fmt.Sprintf("/plans/%d/compare", monthly.ID), nil)
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}
