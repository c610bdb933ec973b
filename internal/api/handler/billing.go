package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/model/dto"
	"github.com/qs3c/plugin_go_server/internal/pkg/response"
	"github.com/qs3c/plugin_go_server/internal/service"
)

type BillingHandler struct {
	billingService *service.BillingService
}

func NewBillingHandler(billingService *service.BillingService) *BillingHandler {
	return &BillingHandler{billingService: billingService}
}

// CreateCycleBill 为订阅的下一周期出账
// POST /api/v1/admin/subscriptions/:id/billings
func (h *BillingHandler) CreateCycleBill(c *gin.Context) {
	id, ok := pathID(c, "id", "订阅")
	if !ok {
		return
	}
	var req dto.CreateCycleBillRequest
	if !bindJSON(c, &req) {
		return
	}

	bill, err := h.billingService.CreateCycleBill(id, req.PeriodStart)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, bill)
}

// ListForSubscription GET /api/v1/subscriptions/:id/billings
func (h *BillingHandler) ListForSubscription(c *gin.Context) {
	id, ok := h.ownedSubscription(c)
	if !ok {
		return
	}
	bills, err := h.billingService.ListForSubscription(id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, bills)
}

// Summary GET /api/v1/subscriptions/:id/billing-summary
func (h *BillingHandler) Summary(c *gin.Context) {
	id, ok := h.ownedSubscription(c)
	if !ok {
		return
	}
	summary, err := h.billingService.Summary(id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, summary)
}

// Get GET /api/v1/billings/:id
func (h *BillingHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "账单")
	if !ok {
		return
	}
	bill, err := h.billingService.GetOwned(p, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, bill)
}

func (h *BillingHandler) ownedSubscription(c *gin.Context) (int64, bool) {
	p, ok := principal(c)
	if !ok {
		return 0, false
	}
	id, ok := pathID(c, "id", "订阅")
	if !ok {
		return 0, false
	}
	if err := h.billingService.AuthorizeSubscription(p, id); err != nil {
		response.FromError(c, err)
		return 0, false
	}
	return id, true
}

// GetByReference 支付回调按业务单号查询
// GET /api/v1/admin/billings/by-reference/:reference
func (h *BillingHandler) GetByReference(c *gin.Context) {
	bill, err := h.billingService.GetByReference(c.Param("reference"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, bill)
}

// MarkPaid 首期账单支付后订阅随之激活
// POST /api/v1/admin/billings/:id/pay
func (h *BillingHandler) MarkPaid(c *gin.Context) {
	id, ok := pathID(c, "id", "账单")
	if !ok {
		return
	}
	bill, err := h.billingService.MarkPaid(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, bill)
}

// MarkFailed POST /api/v1/admin/billings/:id/fail
func (h *BillingHandler) MarkFailed(c *gin.Context) {
	h.update(c, h.billingService.MarkFailed)
}

// Refund POST /api/v1/admin/billings/:id/refund
func (h *BillingHandler) Refund(c *gin.Context) {
	h.update(c, h.billingService.Refund)
}

func (h *BillingHandler) update(c *gin.Context, op func(id int64) (*model.PluginBilling, error)) {
	id, ok := pathID(c, "id", "账单")
	if !ok {
		return
	}
	bill, err := op(id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, bill)
}
