package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/plugin_go_server/config"
	"github.com/qs3c/plugin_go_server/internal/api/handler"
	"github.com/qs3c/plugin_go_server/internal/api/middleware"
	"github.com/qs3c/plugin_go_server/internal/pkg/metrics"
)

const adminRole = "admin"

// Handlers 路由用到的全部 handler
type Handlers struct {
	Plugin       *handler.PluginHandler
	Plan         *handler.PlanHandler
	Entitlement  *handler.EntitlementHandler
	Subscription *handler.SubscriptionHandler
	Billing      *handler.BillingHandler
	Installation *handler.InstallationHandler
	Health       *handler.HealthHandler
}

type Router struct {
	h       Handlers
	access  middleware.AccessChecker
	metrics *metrics.Metrics
	cfg     *config.Config
}

func NewRouter(h Handlers, access middleware.AccessChecker, m *metrics.Metrics, cfg *config.Config) *Router {
	return &Router{
		h:       h,
		access:  access,
		metrics: m,
		cfg:     cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))
	if r.metrics != nil {
		engine.Use(r.metrics.Middleware())
		if r.cfg.Metrics.Enabled {
			engine.GET(r.cfg.Metrics.Path, r.metrics.Handler())
		}
	}
	if r.h.Health != nil {
		engine.GET("/healthz", r.h.Health.Check)
	}

	secret := r.cfg.JWT.Secret
	api := engine.Group("/api/v1")

	// 公开接口 - 插件目录（可选认证）
	catalog := api.Group("")
	catalog.Use(middleware.OptionalAuth(secret))
	{
		catalog.GET("/plugins", r.h.Plugin.List)
		catalog.GET("/plugins/:id", r.h.Plugin.Get)
		catalog.GET("/plugins/:id/versions", r.h.Plugin.ListVersions)
		catalog.GET("/plugins/:id/versions/latest", r.h.Plugin.LatestVersion)
		catalog.GET("/plugins/:id/versions/resolve", r.h.Plugin.ResolveVersion)
		catalog.GET("/plugins/:id/plans", r.h.Plan.List)
		catalog.GET("/plans/:id", r.h.Plan.Get)
		catalog.GET("/plans/:id/compare", r.h.Plan.Compare)
	}

	authenticated := api.Group("")
	authenticated.Use(middleware.Auth(secret))
	{
		// 下载地址需持有插件授权
		authenticated.GET("/plugins/:id/versions/:version_id/sources",
			middleware.RequireEntitlement(r.access, "id"), r.h.Plugin.VersionSources)

		// 授权
		entitlements := authenticated.Group("/entitlements")
		{
			entitlements.GET("", r.h.Entitlement.ListMine)
			entitlements.GET("/:id", r.h.Entitlement.Get)
			entitlements.POST("/:id/access", r.h.Entitlement.CheckAccess)
		}

		// 订阅
		subscriptions := authenticated.Group("/subscriptions")
		{
			subscriptions.POST("", r.h.Subscription.Create)
			subscriptions.GET("", r.h.Subscription.List)
			subscriptions.GET("/:id", r.h.Subscription.Get)
			subscriptions.GET("/:id/quote", r.h.Subscription.Quote)
			subscriptions.GET("/:id/children", r.h.Subscription.ListChildren)
			subscriptions.POST("/:id/children", r.h.Subscription.CreateChild)
			subscriptions.POST("/:id/cancel", r.h.Subscription.Cancel)
			subscriptions.POST("/:id/renew", r.h.Subscription.Renew)
			subscriptions.POST("/:id/extend-trial", r.h.Subscription.ExtendTrial)
			subscriptions.POST("/:id/upgrade", r.h.Subscription.Upgrade)
			subscriptions.POST("/:id/downgrade", r.h.Subscription.Downgrade)
			subscriptions.GET("/:id/billings", r.h.Billing.ListForSubscription)
			subscriptions.GET("/:id/billing-summary", r.h.Billing.Summary)
		}

		authenticated.GET("/billings/:id", r.h.Billing.Get)

		// 安装
		installations := authenticated.Group("/installations")
		{
			installations.POST("", r.h.Installation.Install)
			installations.GET("", r.h.Installation.List)
			installations.GET("/:id", r.h.Installation.Get)
			installations.POST("/:id/complete", r.h.Installation.Complete)
			installations.POST("/:id/activate", r.h.Installation.Activate)
			installations.POST("/:id/deactivate", r.h.Installation.Deactivate)
			installations.DELETE("/:id", r.h.Installation.Uninstall)
		}
	}

	// 管理接口
	admin := api.Group("/admin")
	admin.Use(middleware.Auth(secret), middleware.RequireRole(adminRole))
	{
		admin.POST("/plugins", r.h.Plugin.Create)
		admin.PUT("/plugins/:id", r.h.Plugin.Update)
		admin.PUT("/plugins/:id/status", r.h.Plugin.SetStatus)
		admin.POST("/plugins/:id/versions", r.h.Plugin.PublishVersion)
		admin.POST("/plugins/:id/plans", r.h.Plan.Create)
		admin.PUT("/plans/:id", r.h.Plan.Update)
		admin.PUT("/plans/:id/active", r.h.Plan.SetActive)

		admin.POST("/entitlements", r.h.Entitlement.FindOrCreate)
		admin.POST("/entitlements/:id/actions/:action", r.h.Entitlement.Action)
		admin.POST("/entitlements/:id/allowed-users", r.h.Entitlement.AllowUser)
		admin.DELETE("/entitlements/:id/allowed-users/:user_id", r.h.Entitlement.RemoveAllowedUser)
		admin.POST("/entitlements/:id/denied-users", r.h.Entitlement.DenyUser)
		admin.DELETE("/entitlements/:id/denied-users/:user_id", r.h.Entitlement.RemoveDeniedUser)
		admin.PUT("/entitlements/:id/roles", r.h.Entitlement.SetRoles)
		admin.PUT("/entitlements/:id/quotas", r.h.Entitlement.SetQuotas)
		admin.PATCH("/entitlements/:id/flags", r.h.Entitlement.SetFlags)

		admin.POST("/subscriptions/:id/activate", r.h.Subscription.Activate)
		admin.POST("/subscriptions/:id/suspend", r.h.Subscription.Suspend)
		admin.POST("/subscriptions/:id/billings", r.h.Billing.CreateCycleBill)

		admin.GET("/billings/by-reference/:reference", r.h.Billing.GetByReference)
		admin.POST("/billings/:id/pay", r.h.Billing.MarkPaid)
		admin.POST("/billings/:id/fail", r.h.Billing.MarkFailed)
		admin.POST("/billings/:id/refund", r.h.Billing.Refund)
	}

	return engine
}
