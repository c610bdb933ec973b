package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/plugin_go_server/internal/model/dto"
	"github.com/qs3c/plugin_go_server/internal/pkg/response"
	"github.com/qs3c/plugin_go_server/internal/service"
)

type PluginHandler struct {
	pluginService  *service.PluginService
	versionService *service.VersionService
}

func NewPluginHandler(pluginService *service.PluginService, versionService *service.VersionService) *PluginHandler {
	return &PluginHandler{
		pluginService:  pluginService,
		versionService: versionService,
	}
}

// Create 创建插件
// POST /api/v1/admin/plugins
func (h *PluginHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req dto.CreatePluginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	plugin, err := h.pluginService.Create(&req, p.UserID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "创建成功", plugin)
}

// List 插件列表
// GET /api/v1/plugins?status=active
func (h *PluginHandler) List(c *gin.Context) {
	page, pageSize := pagination(c)
	items, total, err := h.pluginService.List(c.Query("status"), page, pageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessPage(c, total, page, pageSize, items)
}

// Get GET /api/v1/plugins/:id
func (h *PluginHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id", "插件")
	if !ok {
		return
	}
	plugin, err := h.pluginService.Get(id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, plugin)
}

// Update 修改插件元数据
// PUT /api/v1/admin/plugins/:id
func (h *PluginHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id", "插件")
	if !ok {
		return
	}

	var req dto.UpdatePluginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	plugin, err := h.pluginService.UpdateMetadata(id, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, plugin)
}

// SetStatus PUT /api/v1/admin/plugins/:id/status
func (h *PluginHandler) SetStatus(c *gin.Context) {
	id, ok := pathID(c, "id", "插件")
	if !ok {
		return
	}

	var req dto.SetPluginStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	plugin, err := h.pluginService.SetStatus(id, req.Status)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, plugin)
}

// PublishVersion 发布新版本
// POST /api/v1/admin/plugins/:id/versions
func (h *PluginHandler) PublishVersion(c *gin.Context) {
	id, ok := pathID(c, "id", "插件")
	if !ok {
		return
	}

	var req dto.PublishVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	version, err := h.versionService.Publish(id, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "发布成功", version)
}

// ListVersions 按版本号从新到旧
// GET /api/v1/plugins/:id/versions
func (h *PluginHandler) ListVersions(c *gin.Context) {
	id, ok := pathID(c, "id", "插件")
	if !ok {
		return
	}
	versions, err := h.versionService.ListVersions(id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, versions)
}

// LatestVersion GET /api/v1/plugins/:id/versions/latest?prerelease=true
func (h *PluginHandler) LatestVersion(c *gin.Context) {
	id, ok := pathID(c, "id", "插件")
	if !ok {
		return
	}
	version, err := h.versionService.Latest(id, c.Query("prerelease") == "true")
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, version)
}

// ResolveVersion 按范围与平台选出可安装的最高版本
// GET /api/v1/plugins/:id/versions/resolve?range=^1.2&os=linux&arch=amd64
func (h *PluginHandler) ResolveVersion(c *gin.Context) {
	id, ok := pathID(c, "id", "插件")
	if !ok {
		return
	}

	var q dto.ResolveVersionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	version, err := h.versionService.ResolveEligible(id, q.Range, q.OS, q.Arch)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, version)
}

// VersionSources 下载地址，需持有插件授权
// GET /api/v1/plugins/:id/versions/:version_id/sources?os=linux&arch=amd64
func (h *PluginHandler) VersionSources(c *gin.Context) {
	pluginID, ok := pathID(c, "id", "插件")
	if !ok {
		return
	}
	versionID, ok := pathID(c, "version_id", "版本")
	if !ok {
		return
	}

	version, err := h.versionService.Get(versionID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if version.PluginID != pluginID {
		response.NotFoundError(c, "版本不属于该插件")
		return
	}

	sources, err := h.versionService.SourcesFor(versionID, c.Query("os"), c.Query("arch"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, sources)
}
