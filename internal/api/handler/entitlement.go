package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/model/dto"
	"github.com/qs3c/plugin_go_server/internal/pkg/response"
	"github.com/qs3c/plugin_go_server/internal/service"
)

type EntitlementHandler struct {
	entitlementService *service.EntitlementService
}

func NewEntitlementHandler(entitlementService *service.EntitlementService) *EntitlementHandler {
	return &EntitlementHandler{entitlementService: entitlementService}
}

// FindOrCreate 租户默认取令牌中的租户
// POST /api/v1/admin/entitlements
func (h *EntitlementHandler) FindOrCreate(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req dto.FindOrCreateEntitlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	tenantID := req.TenantID
	if tenantID == 0 {
		tenantID = p.TenantID
	}

	pt, err := h.entitlementService.FindOrCreate(c.Request.Context(), p, req.PluginID, tenantID, req.OrganizationID, model.Scope(req.Scope))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, dto.FindOrCreateEntitlementResponse{EntitlementID: pt.ID})
}

// ListMine 当前租户的全部授权
// GET /api/v1/entitlements
func (h *EntitlementHandler) ListMine(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	items, err := h.entitlementService.ListByTenant(p.TenantID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, items)
}

// Get GET /api/v1/entitlements/:id
func (h *EntitlementHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "授权")
	if !ok {
		return
	}
	pt, err := h.entitlementService.GetOwned(c.Request.Context(), p, id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pt)
}

// CheckAccess 判断指定用户能否使用插件
// POST /api/v1/entitlements/:id/access
func (h *EntitlementHandler) CheckAccess(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "授权")
	if !ok {
		return
	}
	if _, err := h.entitlementService.GetOwned(c.Request.Context(), p, id); err != nil {
		response.FromError(c, err)
		return
	}

	var req dto.AccessCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	allowed, err := h.entitlementService.HasUserAccess(c.Request.Context(), id, req.UserID, req.Roles)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, dto.AccessCheckResponse{Allowed: allowed})
}

// Action 无请求体的状态变更：enable / disable / archive / restore / approve / revoke-approval
// POST /api/v1/admin/entitlements/:id/actions/:action
func (h *EntitlementHandler) Action(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "授权")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var (
		pt  *model.PluginTenant
		err error
	)
	switch c.Param("action") {
	case "enable":
		pt, err = h.entitlementService.Enable(ctx, id)
	case "disable":
		pt, err = h.entitlementService.Disable(ctx, id)
	case "archive":
		pt, err = h.entitlementService.Archive(ctx, id)
	case "restore":
		pt, err = h.entitlementService.Restore(ctx, id)
	case "approve":
		pt, err = h.entitlementService.Approve(ctx, id, p)
	case "revoke-approval":
		pt, err = h.entitlementService.RevokeApproval(ctx, id)
	default:
		response.NotFoundError(c, "未知操作")
		return
	}
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pt)
}

// AllowUser POST /api/v1/admin/entitlements/:id/allowed-users
func (h *EntitlementHandler) AllowUser(c *gin.Context) {
	h.userList(c, h.entitlementService.AllowUser)
}

// RemoveAllowedUser DELETE /api/v1/admin/entitlements/:id/allowed-users/:user_id
func (h *EntitlementHandler) RemoveAllowedUser(c *gin.Context) {
	h.userList(c, h.entitlementService.RemoveAllowedUser)
}

// DenyUser POST /api/v1/admin/entitlements/:id/denied-users
func (h *EntitlementHandler) DenyUser(c *gin.Context) {
	h.userList(c, h.entitlementService.DenyUser)
}

// RemoveDeniedUser DELETE /api/v1/admin/entitlements/:id/denied-users/:user_id
func (h *EntitlementHandler) RemoveDeniedUser(c *gin.Context) {
	h.userList(c, h.entitlementService.RemoveDeniedUser)
}

func (h *EntitlementHandler) userList(c *gin.Context, op func(ctx context.Context, id, userID int64) (*model.PluginTenant, error)) {
	id, ok := pathID(c, "id", "授权")
	if !ok {
		return
	}

	// 删除时用户 ID 在路径中，添加时在请求体中
	var req dto.UserRequest
	if c.Param("user_id") != "" {
		if req.UserID, ok = pathID(c, "user_id", "用户"); !ok {
			return
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	pt, err := op(c.Request.Context(), id, req.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pt)
}

// SetRoles PUT /api/v1/admin/entitlements/:id/roles
func (h *EntitlementHandler) SetRoles(c *gin.Context) {
	id, ok := pathID(c, "id", "授权")
	if !ok {
		return
	}

	var req dto.SetRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	pt, err := h.entitlementService.SetAllowedRoles(c.Request.Context(), id, req.Roles)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pt)
}

// SetQuotas PUT /api/v1/admin/entitlements/:id/quotas
func (h *EntitlementHandler) SetQuotas(c *gin.Context) {
	id, ok := pathID(c, "id", "授权")
	if !ok {
		return
	}

	var req dto.SetQuotasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	pt, err := h.entitlementService.SetQuotas(c.Request.Context(), id, req.MaxInstallations, req.MaxActiveUsers)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pt)
}

// SetFlags PATCH /api/v1/admin/entitlements/:id/flags
func (h *EntitlementHandler) SetFlags(c *gin.Context) {
	id, ok := pathID(c, "id", "授权")
	if !ok {
		return
	}

	var req dto.SetFlagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	pt, err := h.entitlementService.SetFlags(c.Request.Context(), id, service.Flags{
		AutoInstall:      req.AutoInstall,
		RequiresApproval: req.RequiresApproval,
		IsMandatory:      req.IsMandatory,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, pt)
}
