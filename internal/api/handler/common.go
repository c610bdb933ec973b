package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/plugin_go_server/internal/api/middleware"
	"github.com/qs3c/plugin_go_server/internal/pkg/response"
	"github.com/qs3c/plugin_go_server/internal/service"
)

// pathID 解析路径中的数字 ID，失败时已写入响应
func pathID(c *gin.Context, name, label string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ParamError(c, "无效的"+label+"ID")
		return 0, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func principal(c *gin.Context) (service.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		response.AuthError(c, "")
	}
	return p, ok
}

// bindJSON 允许空请求体
func bindJSON(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		response.ParamError(c, err.Error())
		return false
	}
	return true
}
