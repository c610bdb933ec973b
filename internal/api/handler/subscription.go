package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/model/dto"
	"github.com/qs3c/plugin_go_server/internal/pkg/response"
	"github.com/qs3c/plugin_go_server/internal/service"
)

type SubscriptionHandler struct {
	subscriptionService *service.SubscriptionService
}

func NewSubscriptionHandler(subscriptionService *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionService: subscriptionService}
}

// Create 按 kind 创建免费、试用或付费订阅
// POST /api/v1/subscriptions
func (h *SubscriptionHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	in := service.NewSubscription{
		PluginTenantID: req.PluginTenantID,
		PlanID:         req.PlanID,
		Scope:          model.Scope(req.Scope),
		SubscriberID:   req.SubscriberID,
	}
	if req.StartDate != nil {
		in.StartDate = *req.StartDate
	}

	ctx := c.Request.Context()
	var (
		sub *model.PluginSubscription
		err error
	)
	switch req.Kind {
	case "free":
		sub, err = h.subscriptionService.CreateFreeSubscription(ctx, p, in)
	case "trial":
		sub, err = h.subscriptionService.CreateTrialSubscription(ctx, p, in)
	default:
		sub, err = h.subscriptionService.CreatePaidSubscription(ctx, p, in)
	}
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "订阅成功", sub)
}

// List 当前租户的订阅
// GET /api/v1/subscriptions?status=ACTIVE
func (h *SubscriptionHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	items, total, err := h.subscriptionService.ListByTenant(p.TenantID, c.Query("status"), page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessPage(c, total, page, pageSize, items)
}

// Get GET /api/v1/subscriptions/:id
func (h *SubscriptionHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "订阅")
	if !ok {
		return
	}
	sub, err := h.subscriptionService.GetOwned(p, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, sub)
}

// ownedID 解析路径中的订阅 ID，并确认订阅属于当前租户
func (h *SubscriptionHandler) ownedID(c *gin.Context) (int64, bool) {
	p, ok := principal(c)
	if !ok {
		return 0, false
	}
	id, ok := pathID(c, "id", "订阅")
	if !ok {
		return 0, false
	}
	if _, err := h.subscriptionService.GetOwned(p, id); err != nil {
		response.FromError(c, err)
		return 0, false
	}
	return id, true
}

// ListChildren GET /api/v1/subscriptions/:id/children
func (h *SubscriptionHandler) ListChildren(c *gin.Context) {
	id, ok := h.ownedID(c)
	if !ok {
		return
	}
	children, err := h.subscriptionService.ListChildren(id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, children)
}

// CreateChild 为组织/租户订阅下的成员开通席位
// POST /api/v1/subscriptions/:id/children
func (h *SubscriptionHandler) CreateChild(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "订阅")
	if !ok {
		return
	}

	var req dto.CreateChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	child, err := h.subscriptionService.CreateChildSubscription(c.Request.Context(), p, id, req.SubscriberID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, child)
}

// Activate POST /api/v1/admin/subscriptions/:id/activate
func (h *SubscriptionHandler) Activate(c *gin.Context) {
	id, ok := pathID(c, "id", "订阅")
	if !ok {
		return
	}
	sub, err := h.subscriptionService.Activate(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, sub)
}

// Suspend POST /api/v1/admin/subscriptions/:id/suspend
func (h *SubscriptionHandler) Suspend(c *gin.Context) {
	id, ok := pathID(c, "id", "订阅")
	if !ok {
		return
	}
	var req dto.ReasonRequest
	if !bindJSON(c, &req) {
		return
	}

	sub, err := h.subscriptionService.Suspend(c.Request.Context(), id, req.Reason)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, sub)
}

// Cancel cascade 为 true 时一并取消子订阅
// POST /api/v1/subscriptions/:id/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	id, ok := h.ownedID(c)
	if !ok {
		return
	}
	var req dto.CancelRequest
	if !bindJSON(c, &req) {
		return
	}

	sub, err := h.subscriptionService.Cancel(c.Request.Context(), id, req.Reason, req.Cascade)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "订阅已取消", sub)
}

// Renew POST /api/v1/subscriptions/:id/renew
func (h *SubscriptionHandler) Renew(c *gin.Context) {
	id, ok := h.ownedID(c)
	if !ok {
		return
	}
	var req dto.RenewRequest
	if !bindJSON(c, &req) {
		return
	}

	sub, err := h.subscriptionService.Renew(c.Request.Context(), id, req.EndDate)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, sub)
}

// ExtendTrial POST /api/v1/subscriptions/:id/extend-trial
func (h *SubscriptionHandler) ExtendTrial(c *gin.Context) {
	id, ok := h.ownedID(c)
	if !ok {
		return
	}
	var req dto.ExtendTrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	sub, err := h.subscriptionService.ExtendTrial(c.Request.Context(), id, req.Days)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, sub)
}

// Upgrade POST /api/v1/subscriptions/:id/upgrade
func (h *SubscriptionHandler) Upgrade(c *gin.Context) {
	h.changePlan(c, h.subscriptionService.UpgradeToPlan)
}

// Downgrade POST /api/v1/subscriptions/:id/downgrade
func (h *SubscriptionHandler) Downgrade(c *gin.Context) {
	h.changePlan(c, h.subscriptionService.DowngradeToPlan)
}

func (h *SubscriptionHandler) changePlan(c *gin.Context, op func(ctx context.Context, id, planID int64) (*model.PluginSubscription, error)) {
	id, ok := h.ownedID(c)
	if !ok {
		return
	}
	var req dto.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	sub, err := op(c.Request.Context(), id, req.PlanID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, sub)
}

// Quote 剩余天数、退款资格、续费价等派生数据，target_plan_id 可选
// GET /api/v1/subscriptions/:id/quote?target_plan_id=3
func (h *SubscriptionHandler) Quote(c *gin.Context) {
	id, ok := h.ownedID(c)
	if !ok {
		return
	}
	var target int64
	if raw := c.Query("target_plan_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			response.ParamError(c, "无效的目标套餐ID")
			return
		}
		target = v
	}

	q, err := h.subscriptionService.Quote(id, target)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, q)
}
