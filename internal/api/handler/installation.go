package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/model/dto"
	"github.com/qs3c/plugin_go_server/internal/pkg/response"
	"github.com/qs3c/plugin_go_server/internal/service"
)

type InstallationHandler struct {
	installationService *service.InstallationService
}

func NewInstallationHandler(installationService *service.InstallationService) *InstallationHandler {
	return &InstallationHandler{installationService: installationService}
}

// Install 开始安装，占用一个安装配额
// POST /api/v1/installations
func (h *InstallationHandler) Install(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req dto.InstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	inst, err := h.installationService.Install(c.Request.Context(), p, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, inst)
}

// List 当前租户（及组织）的安装记录，organization_id 缺省取令牌中的组织
// GET /api/v1/installations
func (h *InstallationHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	orgID := p.OrganizationID
	if raw := c.Query("organization_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			response.ParamError(c, "无效的组织ID")
			return
		}
		orgID = v
	}
	page, pageSize := pagination(c)

	items, total, err := h.installationService.ListForTenant(p.TenantID, orgID, page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessPage(c, total, page, pageSize, items)
}

// Get 带安装耗时与激活时长
// GET /api/v1/installations/:id
func (h *InstallationHandler) Get(c *gin.Context) {
	id, ok := h.ownedID(c)
	if !ok {
		return
	}
	detail, err := h.installationService.Detail(id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, detail)
}

// Complete 客户端回报安装结果
// POST /api/v1/installations/:id/complete
func (h *InstallationHandler) Complete(c *gin.Context) {
	id, ok := h.ownedID(c)
	if !ok {
		return
	}
	var req dto.CompleteInstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	inst, err := h.installationService.Complete(c.Request.Context(), id, req.Success, req.Message)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, inst)
}

// Activate POST /api/v1/installations/:id/activate
func (h *InstallationHandler) Activate(c *gin.Context) {
	h.transition(c, h.installationService.Activate)
}

// Deactivate POST /api/v1/installations/:id/deactivate
func (h *InstallationHandler) Deactivate(c *gin.Context) {
	h.transition(c, h.installationService.Deactivate)
}

// Uninstall DELETE /api/v1/installations/:id
func (h *InstallationHandler) Uninstall(c *gin.Context) {
	id, ok := h.ownedID(c)
	if !ok {
		return
	}
	inst, err := h.installationService.Uninstall(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "已卸载", inst)
}

func (h *InstallationHandler) transition(c *gin.Context, op func(id int64) (*model.Installation, error)) {
	id, ok := h.ownedID(c)
	if !ok {
		return
	}
	inst, err := op(id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, inst)
}

// ownedID 解析路径中的安装 ID，并确认记录属于当前租户
func (h *InstallationHandler) ownedID(c *gin.Context) (int64, bool) {
	p, ok := principal(c)
	if !ok {
		return 0, false
	}
	id, ok := pathID(c, "id", "安装")
	if !ok {
		return 0, false
	}
	if _, err := h.installationService.GetOwned(p, id); err != nil {
		response.FromError(c, err)
		return 0, false
	}
	return id, true
}
