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

func subscriptionRouter(tc *testContext) *gin.Engine {
	r := gin.New()
	r.Use(mockAuth(tenantAdmin))
	r.POST("/subscriptions", tc.subscriptions.Create)
	r.GET("/subscriptions", tc.subscriptions.List)
	r.GET("/subscriptions/:id", tc.subscriptions.Get)
	r.GET("/subscriptions/:id/quote", tc.subscriptions.Quote)
	r.POST("/subscriptions/:id/cancel", tc.subscriptions.Cancel)
	r.POST("/subscriptions/:id/renew", tc.subscriptions.Renew)
	r.POST("/subscriptions/:id/extend-trial", tc.subscriptions.ExtendTrial)
	r.POST("/subscriptions/:id/upgrade", tc.subscriptions.Upgrade)
	r.GET("/subscriptions/:id/billings", tc.billings.ListForSubscription)
	r.GET("/subscriptions/:id/billing-summary", tc.billings.Summary)
	r.POST("/admin/subscriptions/:id/suspend", tc.subscriptions.Suspend)
	r.POST("/admin/subscriptions/:id/activate", tc.subscriptions.Activate)
	r.POST("/admin/billings/:id/pay", tc.billings.MarkPaid)
	r.POST("/admin/billings/:id/refund", tc.billings.Refund)
	r.GET("/billings/:id", tc.billings.Get)
	return r
}

func TestSubscriptionHandler_CreateFree(t *testing.T) {
	tc := setupHandlers(t)
	r := subscriptionRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)
	pt := testutil.TestEntitlement(t, tc.DB, p.ID, tenantAdmin.TenantID)

	w := performRequest(r, http.MethodPost, "/subscriptions", map[string]interface{}{
		"kind":             "free",
		"plugin_tenant_id": pt.ID,
	})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataMap(t, resp)
	assert.Equal(t, model.SubActive, data["status"])
	assert.Equal(t, false, data["auto_renew"])
	assert.Nil(t, data["end_date"])
}

func TestSubscriptionHandler_CreateTrial(t *testing.T) {
	tc := setupHandlers(t)
	r := subscriptionRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)
	pt := testutil.TestEntitlement(t, tc.DB, p.ID, tenantAdmin.TenantID)
	plan := testutil.TestPlan(t, tc.DB, p.ID, testutil.WithTrialDays(7))

	w := performRequest(r, http.MethodPost, "/subscriptions", map[string]interface{}{
		"kind":             "trial",
		"plugin_tenant_id": pt.ID,
		"plan_id":          plan.ID,
	})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataMap(t, resp)
	assert.Equal(t, model.SubTrial, data["status"])
	assert.NotNil(t, data["trial_end_date"])

	id := int64(data["id"].(float64))
	w = performRequest(r, http.MethodPost, fmt.Sprintf("/subscriptions/%d/extend-trial", id), map[string]int{"days": 3})
	require.Equal(t, response.CodeSuccess, parseResponse(t, w).Code)

	w = performRequest(r, http.MethodPost, fmt.Sprintf("/subscriptions/%d/extend-trial", id), map[string]int{"days": 0})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}

func TestSubscriptionHandler_CreateErrors(t *testing.T) {
	tc := setupHandlers(t)
	r := subscriptionRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)
	pt := testutil.TestEntitlement(t, tc.DB, p.ID, tenantAdmin.TenantID)
	paidPlan := testutil.TestPlan(t, tc.DB, p.ID)

	tests := []struct {
		name     string
		body     map[string]interface{}
		wantCode int
	}{
		{"unknown kind", map[string]interface{}{"kind": "lifetime", "plugin_tenant_id": pt.ID}, response.CodeParamError},
		{"missing entitlement", map[string]interface{}{"kind": "free"}, response.CodeParamError},
		{"entitlement not found", map[string]interface{}{"kind": "free", "plugin_tenant_id": 99999}, response.CodeResourceNotFound},
		{"paid without plan", map[string]interface{}{"kind": "paid", "plugin_tenant_id": pt.ID}, response.CodeParamError},
		{"free on paid plan", map[string]interface{}{"kind": "free", "plugin_tenant_id": pt.ID, "plan_id": paidPlan.ID}, response.CodeParamError},
		{"user scope without subscriber", map[string]interface{}{"kind": "free", "plugin_tenant_id": pt.ID, "scope": "USER"}, response.CodeParamError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(r, http.MethodPost, "/subscriptions", tt.body)
			assert.Equal(t, tt.wantCode, parseResponse(t, w).Code)
		})
	}
}

func TestSubscriptionHandler_PaidLifecycle(t *testing.T) {
	tc := setupHandlers(t)
	r := subscriptionRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)
	pt := testutil.TestEntitlement(t, tc.DB, p.ID, tenantAdmin.TenantID)
	plan := testutil.TestPlan(t, tc.DB, p.ID, testutil.WithPrice("19.99", model.PeriodMonthly))

	w := performRequest(r, http.MethodPost, "/subscriptions", map[string]interface{}{
		"kind":             "paid",
		"plugin_tenant_id": pt.ID,
		"plan_id":          plan.ID,
	})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	sub := dataMap(t, resp)
	assert.Equal(t, model.SubPending, sub["status"])
	subID := int64(sub["id"].(float64))

	// 首期账单随订阅一起生成
	w = performRequest(r, http.MethodGet, fmt.Sprintf("/subscriptions/%d/billings", subID), nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	bills, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, bills, 1)
	bill := bills[0].(map[string]interface{})
	assert.Equal(t, model.BillingPending, bill["status"])
	assert.Equal(t, "19.99", bill["amount"])
	billID := int64(bill["id"].(float64))

	// 支付后订阅激活
	w = performRequest(r, http.MethodPost, fmt.Sprintf("/admin/billings/%d/pay", billID), nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, model.BillingPaid, dataMap(t, resp)["status"])

	w = performRequest(r, http.MethodGet, fmt.Sprintf("/subscriptions/%d", subID), nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, model.SubActive, dataMap(t, resp)["status"])

	// 重复支付属于非法状态变更
	w = performRequest(r, http.MethodPost, fmt.Sprintf("/admin/billings/%d/pay", billID), nil)
	assert.Equal(t, response.CodeInvalidState, parseResponse(t, w).Code)

	w = performRequest(r, http.MethodPost, fmt.Sprintf("/admin/billings/%d/refund", billID), nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, model.BillingRefunded, dataMap(t, resp)["status"])

	w = performRequest(r, http.MethodGet, fmt.Sprintf("/subscriptions/%d/billing-summary", subID), nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, float64(subID), dataMap(t, resp)["subscription_id"])
}

func TestSubscriptionHandler_GetNotFound(t *testing.T) {
	tc := setupHandlers(t)
	r := subscriptionRouter(tc)

	w := performRequest(r, http.MethodGet, "/subscriptions/99999", nil)
	assert.Equal(t, response.CodeResourceNotFound, parseResponse(t, w).Code)

	w = performRequest(r, http.MethodGet, "/billings/99999", nil)
	assert.Equal(t, response.CodeResourceNotFound, parseResponse(t, w).Code)
}

func TestSubscriptionHandler_List(t *testing.T) {
	tc := setupHandlers(t)
	r := subscriptionRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)
	mine := testutil.TestEntitlement(t, tc.DB, p.ID, tenantAdmin.TenantID)
	other := testutil.TestEntitlement(t, tc.DB, p.ID, 555)
	testutil.TestSubscription(t, tc.DB, mine)
	testutil.TestSubscription(t, tc.DB, mine, testutil.WithSubStatus(model.SubSuspended))
	testutil.TestSubscription(t, tc.DB, other)

	w := performRequest(r, http.MethodGet, "/subscriptions", nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, float64(2), dataMap(t, resp)["total"])

	w = performRequest(r, http.MethodGet, "/subscriptions?status=SUSPENDED", nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, float64(1), dataMap(t, resp)["total"])
}

func TestSubscriptionHandler_SuspendActivateCancel(t *testing.T) {
	tc := setupHandlers(t)
	r := subscriptionRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)
	pt := testutil.TestEntitlement(t, tc.DB, p.ID, tenantAdmin.TenantID)
	sub := testutil.TestSubscription(t, tc.DB, pt)

	w := performRequest(r, http.MethodPost, fmt.Sprintf("/admin/subscriptions/%d/suspend", sub.ID), map[string]string{"reason": "payment review"})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataMap(t, resp)
	assert.Equal(t, model.SubSuspended, data["status"])
	assert.Equal(t, "payment review", data["suspension_reason"])

	w = performRequest(r, http.MethodPost, fmt.Sprintf("/admin/subscriptions/%d/activate", sub.ID), nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, model.SubActive, dataMap(t, resp)["status"])

	w = performRequest(r, http.MethodPost, fmt.Sprintf("/subscriptions/%d/cancel", sub.ID), nil)
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data = dataMap(t, resp)
	assert.Equal(t, model.SubCancelled, data["status"])
	assert.NotNil(t, data["cancelled_at"])

	w = performRequest(r, http.MethodPost, fmt.Sprintf("/subscriptions/%d/cancel", sub.ID), map[string]string{"reason": "again"})
	assert.Equal(t, response.CodeInvalidState, parseResponse(t, w).Code)

	w = performRequest(r, http.MethodPost, fmt.Sprintf("/subscriptions/%d/renew", sub.ID), nil)
	assert.Equal(t, response.CodeInvalidState, parseResponse(t, w).Code)
}

func TestSubscriptionHandler_Quote(t *testing.T) {
	tc := setupHandlers(t)
	r := subscriptionRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)
	pt := testutil.TestEntitlement(t, tc.DB, p.ID, tenantAdmin.TenantID)
	plan := testutil.TestPlan(t, tc.DB, p.ID)
	sub := testutil.TestSubscription(t, tc.DB, pt, testutil.WithSubPlan(plan.ID))

	w := performRequest(r, http.MethodGet, fmt.Sprintf("/subscriptions/%d/quote", sub.ID), nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataMap(t, resp)
	assert.Equal(t, float64(sub.ID), data["subscription_id"])
	assert.NotNil(t, data["remaining_days"])
	assert.NotNil(t, data["renewal_price"])

	w = performRequest(r, http.MethodGet, fmt.Sprintf("/subscriptions/%d/quote?target_plan_id=x", sub.ID), nil)
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}

func TestSubscriptionHandler_Upgrade(t *testing.T) {
	tc := setupHandlers(t)
	r := subscriptionRouter(tc)
	p := testutil.TestPlugin(t, tc.DB)
	pt := testutil.TestEntitlement(t, tc.DB, p.ID, tenantAdmin.TenantID)
	basic := testutil.TestPlan(t, tc.DB, p.ID, testutil.WithPrice("10.00", model.PeriodMonthly))
	premium := testutil.TestPlan(t, tc.DB, p.ID, testutil.WithPrice("30.00", model.PeriodMonthly))
	sub := testutil.TestSubscription(t, tc.DB, pt, testutil.WithSubPlan(basic.ID))

	w := performRequest(r, http.MethodPost, fmt.Sprintf("/subscriptions/%d/upgrade", sub.ID), map[string]int64{"plan_id": premium.ID})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, float64(premium.ID), dataMap(t, resp)["plan_id"])

	w = performRequest(r, http.MethodPost, fmt.Sprintf("/subscriptions/%d/upgrade", sub.ID), map[string]int64{})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}
