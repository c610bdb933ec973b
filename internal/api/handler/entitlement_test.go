package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/plugin_go_server/internal/pkg/response"
	"github.com/qs3c/plugin_go_server/internal/testutil"
)

func entitlementRouter(tc *testContext) *gin.Engine {
	r := gin.New()
	r.Use(mockAuth(tenantAdmin))
	r.GET("/entitlements", tc.entitlements.ListMine)
	r.GET("/entitlements/:id", tc.entitlements.Get)
	r.POST("/entitlements/:id/access", tc.entitlements.CheckAccess)
	r.POST("/admin/entitlements", tc.entitlements.FindOrCreate)
	r.POST("/admin/entitlements/:id/actions/:action", tc.entitlements.Action)
	r.POST("/admin/entitlements/:id/allowed-users", tc.entitlements.AllowUser)
	r.DELETE("/admin/entitlements/:id/allowed-users/:user_id", tc.entitlements.RemoveAllowedUser)
	r.POST("/admin/entitlements/:id/denied-users", tc.entitlements.DenyUser)
	r.PUT("/admin/entitlements/:id/roles", tc.entitlements.SetRoles)
	r.PUT("/admin/entitlements/:id/quotas", tc.entitlements.SetQuotas)
	r.PATCH("/admin/entitlements/:id/flags", tc.entitlements.SetFlags)
	return r
}

func TestEntitlementHandler_FindOrCreate(t *testing.T) {
	tc := setupHandlers(t)
	r := entitlementRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)

	w := performRequest(r, http.MethodPost, "/admin/entitlements", map[string]interface{}{"plugin_id": p.ID})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	first := dataMap(t, resp)["entitlement_id"]
	require.NotZero(t, first)

	// 同一三元组返回同一条记录
	w = performRequest(r, http.MethodPost, "/admin/entitlements", map[string]interface{}{"plugin_id": p.ID})
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, first, dataMap(t, resp)["entitlement_id"])

	// 默认取令牌中的租户
	w = performRequest(r, http.MethodGet, fmt.Sprintf("/entitlements/%d", int64(first.(float64))), nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataMap(t, resp)
	assert.Equal(t, float64(tenantAdmin.TenantID), data["tenant_id"])
	assert.Equal(t, true, data["enabled"])
}

func TestEntitlementHandler_FindOrCreateErrors(t *testing.T) {
	tc := setupHandlers(t)
	r := entitlementRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)

	tests := []struct {
		name     string
		body     map[string]interface{}
		wantCode int
	}{
		{"missing plugin", map[string]interface{}{}, response.CodeParamError},
		{"bad scope", map[string]interface{}{"plugin_id": p.ID, "scope": "GLOBAL"}, response.CodeParamError},
		{"unknown plugin", map[string]interface{}{"plugin_id": 99999}, response.CodeResourceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(r, http.MethodPost, "/admin/entitlements", tt.body)
			assert.Equal(t, tt.wantCode, parseResponse(t, w).Code)
		})
	}
}

func TestEntitlementHandler_ListMine(t *testing.T) {
	tc := setupHandlers(t)
	r := entitlementRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)
	testutil.TestEntitlement(t, tc.DB, p.ID, tenantAdmin.TenantID)
	testutil.TestEntitlement(t, tc.DB, p.ID, tenantAdmin.TenantID, testutil.WithOrganization(7))
	testutil.TestEntitlement(t, tc.DB, p.ID, 999)

	w := performRequest(r, http.MethodGet, "/entitlements", nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	items, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 2)
}

func TestEntitlementHandler_CheckAccess(t *testing.T) {
	tc := setupHandlers(t)
	r := entitlementRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)
	pt := testutil.TestEntitlement(t, tc.DB, p.ID, tenantAdmin.TenantID,
		testutil.WithAllowedUsers(5), testutil.WithDeniedUsers(6))

	tests := []struct {
		name    string
		userID  int64
		allowed bool
	}{
		{"allowed user", 5, true},
		{"denied user", 6, false},
		{"not in whitelist", 7, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(r, http.MethodPost, fmt.Sprintf("/entitlements/%d/access", pt.ID), map[string]interface{}{"user_id": tt.userID})
			resp := parseResponse(t, w)
			require.Equal(t, response.CodeSuccess, resp.Code)
			assert.Equal(t, tt.allowed, dataMap(t, resp)["allowed"])
		})
	}
}

func TestEntitlementHandler_Actions(t *testing.T) {
	tc := setupHandlers(t)
	r := entitlementRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)
	pt := testutil.TestEntitlement(t, tc.DB, p.ID, tenantAdmin.TenantID)
	path := func(action string) string {
		return fmt.Sprintf("/admin/entitlements/%d/actions/%s", pt.ID, action)
	}

	w := performRequest(r, http.MethodPost, path("disable"), nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, false, dataMap(t, resp)["enabled"])

	w = performRequest(r, http.MethodPost, path("approve"), nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataMap(t, resp)
	assert.NotNil(t, data["approved_at"])
	assert.Equal(t, float64(tenantAdmin.UserID), data["approved_by"])

	w = performRequest(r, http.MethodPost, path("archive"), nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, true, dataMap(t, resp)["is_archived"])

	w = performRequest(r, http.MethodPost, path("restore"), nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, false, dataMap(t, resp)["is_archived"])

	w = performRequest(r, http.MethodPost, path("explode"), nil)
	assert.Equal(t, response.CodeResourceNotFound, parseResponse(t, w).Code)
}

func TestEntitlementHandler_UserLists(t *testing.T) {
	tc := setupHandlers(t)
	r := entitlementRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)
	pt := testutil.TestEntitlement(t, tc.DB, p.ID, tenantAdmin.TenantID)

	w := performRequest(r, http.MethodPost, fmt.Sprintf("/admin/entitlements/%d/allowed-users", pt.ID), map[string]int64{"user_id": 42})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, []interface{}{float64(42)}, dataMap(t, resp)["allowed_users"])

	w = performRequest(r, http.MethodDelete, fmt.Sprintf("/admin/entitlements/%d/allowed-users/42", pt.ID), nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Empty(t, dataMap(t, resp)["allowed_users"])

	w = performRequest(r, http.MethodDelete, fmt.Sprintf("/admin/entitlements/%d/allowed-users/zero", pt.ID), nil)
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)

	w = performRequest(r, http.MethodPost, fmt.Sprintf("/admin/entitlements/%d/denied-users", pt.ID), map[string]int64{})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}

func TestEntitlementHandler_SetQuotasAndFlags(t *testing.T) {
	tc := setupHandlers(t)
	r := entitlementRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)
	pt := testutil.TestEntitlement(t, tc.DB, p.ID, tenantAdmin.TenantID)

	w := performRequest(r, http.MethodPut, fmt.Sprintf("/admin/entitlements/%d/quotas", pt.ID), map[string]interface{}{
		"max_installations": 3,
		"max_active_users":  -1,
	})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataMap(t, resp)
	assert.Equal(t, float64(3), data["max_installations"])
	assert.Equal(t, float64(-1), data["max_active_users"])

	w = performRequest(r, http.MethodPut, fmt.Sprintf("/admin/entitlements/%d/quotas", pt.ID), map[string]interface{}{"max_installations": -5})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)

	w = performRequest(r, http.MethodPatch, fmt.Sprintf("/admin/entitlements/%d/flags", pt.ID), map[string]interface{}{"auto_install": true})
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data = dataMap(t, resp)
	assert.Equal(t, true, data["auto_install"])
	assert.Equal(t, false, data["is_mandatory"])

	w = performRequest(r, http.MethodPut, fmt.Sprintf("/admin/entitlements/%d/roles", pt.ID), map[string]interface{}{"roles": []string{"developer"}})
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, []interface{}{"developer"}, dataMap(t, resp)["allowed_roles"])
}
