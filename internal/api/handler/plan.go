package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/plugin_go_server/internal/model/dto"
	"github.com/qs3c/plugin_go_server/internal/pkg/response"
	"github.com/qs3c/plugin_go_server/internal/service"
)

type PlanHandler struct {
	planService *service.PlanService
}

func NewPlanHandler(planService *service.PlanService) *PlanHandler {
	return &PlanHandler{planService: planService}
}

// Create POST /api/v1/admin/plugins/:id/plans
func (h *PlanHandler) Create(c *gin.Context) {
	pluginID, ok := pathID(c, "id", "插件")
	if !ok {
		return
	}

	var req dto.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	p, err := h.planService.Create(pluginID, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "创建成功", p)
}

// List 默认只返回上架套餐
// GET /api/v1/plugins/:id/plans?all=true
func (h *PlanHandler) List(c *gin.Context) {
	pluginID, ok := pathID(c, "id", "插件")
	if !ok {
		return
	}
	plans, err := h.planService.List(pluginID, c.Query("all") != "true")
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, plans)
}

// Get GET /api/v1/plans/:id
func (h *PlanHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id", "套餐")
	if !ok {
		return
	}
	p, err := h.planService.Get(id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, p)
}

// Update PUT /api/v1/admin/plans/:id
func (h *PlanHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id", "套餐")
	if !ok {
		return
	}

	var req dto.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	p, err := h.planService.Update(id, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, p)
}

// SetActive PUT /api/v1/admin/plans/:id/active
func (h *PlanHandler) SetActive(c *gin.Context) {
	id, ok := pathID(c, "id", "套餐")
	if !ok {
		return
	}

	var req dto.SetPlanActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	p, err := h.planService.SetActive(id, req.Active)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, p)
}

// Compare GET /api/v1/plans/:id/compare?with=12
func (h *PlanHandler) Compare(c *gin.Context) {
	id, ok := pathID(c, "id", "套餐")
	if !ok {
		return
	}
	other, err := strconv.ParseInt(c.Query("with"), 10, 64)
	if err != nil || other <= 0 {
		response.ParamError(c, "无效的对比套餐ID")
		return
	}

	cmp, err := h.planService.Compare(id, other)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, cmp)
}
