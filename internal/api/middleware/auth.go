package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/plugin_go_server/internal/pkg/jwt"
	"github.com/qs3c/plugin_go_server/internal/pkg/response"
	"github.com/qs3c/plugin_go_server/internal/service"
)

const (
	PrincipalKey = "principal"
)

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return "", false
	}
	return tokenString, true
}

func principalFromClaims(claims *jwt.Claims) service.Principal {
	return service.Principal{
		UserID:         claims.UserID,
		TenantID:       claims.TenantID,
		OrganizationID: claims.OrganizationID,
		Roles:          claims.Roles,
	}
}

// Auth JWT 认证中间件，令牌必须携带租户
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			response.AuthError(c, "请提供认证信息")
			c.Abort()
			return
		}

		tokenString, ok := bearerToken(c)
		if !ok {
			response.AuthError(c, "认证格式错误")
			c.Abort()
			return
		}

		claims, err := jwt.ParseToken(tokenString, jwtSecret)
		if err != nil {
			response.AuthError(c, "认证失败或已过期")
			c.Abort()
			return
		}
		if claims.TenantID == 0 {
			response.AuthError(c, "令牌缺少租户信息")
			c.Abort()
			return
		}

		c.Set(PrincipalKey, principalFromClaims(claims))
		c.Next()
	}
}

// OptionalAuth 可选认证中间件（不强制要求登录）
func OptionalAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		if claims, err := jwt.ParseToken(tokenString, jwtSecret); err == nil {
			c.Set(PrincipalKey, principalFromClaims(claims))
		}
		c.Next()
	}
}

// GetPrincipal 从上下文获取调用方身份
func GetPrincipal(c *gin.Context) (service.Principal, bool) {
	v, exists := c.Get(PrincipalKey)
	if !exists {
		return service.Principal{}, false
	}
	p, ok := v.(service.Principal)
	return p, ok
}

// RequireRole 调用方至少具备其中一个角色
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}
		for _, have := range p.Roles {
			for _, want := range roles {
				if have == want {
					c.Next()
					return
				}
			}
		}
		response.PermissionError(c, "")
		c.Abort()
	}
}
