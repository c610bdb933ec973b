package middleware

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
	"github.com/qs3c/plugin_go_server/internal/pkg/response"
)

const (
	EntitlementKey = "entitlement"
)

// AccessChecker 授权判定
type AccessChecker interface {
	GetByTriple(pluginID, tenantID, organizationID int64) (*model.PluginTenant, error)
	HasUserAccess(ctx context.Context, id, userID int64, roles []string) (bool, error)
}

// RequireEntitlement 调用方所在租户/组织必须持有路径参数 param 所指插件的授权，且本人可访问
func RequireEntitlement(checker AccessChecker, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		pluginID, err := strconv.ParseInt(c.Param(param), 10, 64)
		if err != nil {
			response.ParamError(c, "无效的插件ID")
			c.Abort()
			return
		}

		pt, err := checker.GetByTriple(pluginID, p.TenantID, p.OrganizationID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				response.PermissionError(c, "未获得该插件授权")
			} else {
				response.FromError(c, err)
			}
			c.Abort()
			return
		}

		allowed, err := checker.HasUserAccess(c.Request.Context(), pt.ID, p.UserID, p.Roles)
		if err != nil {
			response.FromError(c, err)
			c.Abort()
			return
		}
		if !allowed {
			response.PermissionError(c, "无权使用该插件")
			c.Abort()
			return
		}

		c.Set(EntitlementKey, pt)
		c.Next()
	}
}

// GetEntitlement RequireEntitlement 放入上下文的授权记录
func GetEntitlement(c *gin.Context) (*model.PluginTenant, bool) {
	v, exists := c.Get(EntitlementKey)
	if !exists {
		return nil, false
	}
	pt, ok := v.(*model.PluginTenant)
	return pt, ok
}
