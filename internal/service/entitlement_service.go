package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/plugin_go_server/config"
	"github.com/qs3c/plugin_go_server/internal/domain/entitlement"
	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
	"github.com/qs3c/plugin_go_server/internal/pkg/cache"
	"github.com/qs3c/plugin_go_server/internal/pkg/pubsub"
	"github.com/qs3c/plugin_go_server/internal/repository"
)

type EntitlementService struct {
	repo       *repository.PluginTenantRepository
	pluginRepo *repository.PluginRepository
	cache      *cache.Cache[*model.PluginTenant]
	publisher  *pubsub.Publisher
	origin     string
	cfg        *config.Config
	Deps
}

// NewEntitlementService publisher 可为 nil，此时只清除本进程缓存
func NewEntitlementService(
	repo *repository.PluginTenantRepository,
	pluginRepo *repository.PluginRepository,
	c *cache.Cache[*model.PluginTenant],
	publisher *pubsub.Publisher,
	cfg *config.Config,
	deps Deps,
) *EntitlementService {
	if c == nil {
		c = cache.New[*model.PluginTenant](cfg.Cache.Size, ttl(cfg.Cache.TTLSeconds))
	}
	return &EntitlementService{
		repo:       repo,
		pluginRepo: pluginRepo,
		cache:      c,
		publisher:  publisher,
		origin:     uuid.NewString(),
		cfg:        cfg,
		Deps:       deps.withDefaults(),
	}
}

// Origin 本进程发布失效消息时使用的标识
func (s *EntitlementService) Origin() string {
	return s.origin
}

// FindOrCreate 三元组已存在时返回原记录，scope 不同则更新；否则按默认值创建
func (s *EntitlementService) FindOrCreate(ctx context.Context, principal Principal, pluginID, tenantID, organizationID int64, scope model.Scope) (*model.PluginTenant, error) {
	if scope != "" && !scope.Valid() {
		return nil, fmt.Errorf("scope %q: %w", scope, apperr.ErrInvalidArgument)
	}
	if _, err := s.pluginRepo.GetByID(pluginID); err != nil {
		return nil, err
	}

	candidate := entitlement.New(pluginID, tenantID, organizationID, scope, principal.UserID, s.now())
	pt, created, err := s.repo.FindOrCreate(candidate)
	if err != nil {
		return nil, err
	}
	if created {
		s.Log.WithFields(logrus.Fields{
			"entitlement_id":  pt.ID,
			"plugin_id":       pluginID,
			"tenant_id":       tenantID,
			"organization_id": organizationID,
		}).Info("entitlement created")
		return pt, nil
	}

	if scope == "" || pt.Scope == scope {
		return pt, nil
	}
	return s.mutate(ctx, pt.ID, "scope", func(pt *model.PluginTenant) error {
		pt.Scope = scope
		return nil
	})
}

// Get 优先读本地缓存
func (s *EntitlementService) Get(ctx context.Context, id int64) (*model.PluginTenant, error) {
	pt, hit, err := s.cache.Get(ctx, id, func(context.Context) (*model.PluginTenant, error) {
		return s.repo.GetByID(id)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		s.Metrics.CacheResults.WithLabelValues("hit").Inc()
	} else {
		s.Metrics.CacheResults.WithLabelValues("miss").Inc()
	}
	return pt, nil
}

func (s *EntitlementService) GetByTriple(pluginID, tenantID, organizationID int64) (*model.PluginTenant, error) {
	return s.repo.GetByTriple(pluginID, tenantID, organizationID)
}

func (s *EntitlementService) ListByTenant(tenantID int64) ([]*model.PluginTenant, error) {
	return s.repo.ListByTenant(tenantID)
}

// GetOwned 只返回调用方租户下的授权记录
func (s *EntitlementService) GetOwned(ctx context.Context, principal Principal, id int64) (*model.PluginTenant, error) {
	pt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(principal, pt.TenantID, "plugin tenant", id); err != nil {
		return nil, err
	}
	return pt, nil
}

func (s *EntitlementService) HasUserAccess(ctx context.Context, id, userID int64, roles []string) (bool, error) {
	pt, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	ok := entitlement.HasUserAccess(pt, userID, roles)
	if ok {
		s.Metrics.EntitlementChecks.WithLabelValues("allow").Inc()
	} else {
		s.Metrics.EntitlementChecks.WithLabelValues("deny").Inc()
	}
	return ok, nil
}

// CheckAndIncrementInstallQuota 检查与自增在一条 SQL 内完成
func (s *EntitlementService) CheckAndIncrementInstallQuota(ctx context.Context, id int64) error {
	return s.incrementCounter(ctx, id, entitlement.ResourceInstallations, s.repo.IncrementInstallations)
}

func (s *EntitlementService) CheckAndIncrementActiveUsers(ctx context.Context, id int64) error {
	return s.incrementCounter(ctx, id, entitlement.ResourceActiveUsers, s.repo.IncrementActiveUsers)
}

func (s *EntitlementService) ReleaseInstallQuota(ctx context.Context, id int64) error {
	if err := s.repo.DecrementInstallations(id); err != nil {
		return err
	}
	s.cache.Invalidate(id)
	return nil
}

func (s *EntitlementService) ReleaseActiveUser(ctx context.Context, id int64) error {
	if err := s.repo.DecrementActiveUsers(id); err != nil {
		return err
	}
	s.cache.Invalidate(id)
	return nil
}

func (s *EntitlementService) incrementCounter(ctx context.Context, id int64, resource string, inc func(int64) error) error {
	err := inc(id)
	if err != nil {
		if errors.Is(err, apperr.ErrQuotaExceeded) {
			s.Metrics.QuotaRejections.WithLabelValues(resource).Inc()
			s.Log.WithFields(logrus.Fields{"entitlement_id": id, "resource": resource}).Info("quota exceeded")
		}
		return err
	}
	// 计数只影响本地读取，不广播
	s.cache.Invalidate(id)
	return nil
}

func (s *EntitlementService) Enable(ctx context.Context, id int64) (*model.PluginTenant, error) {
	return s.mutate(ctx, id, "enable", entitlement.Enable)
}

func (s *EntitlementService) Disable(ctx context.Context, id int64) (*model.PluginTenant, error) {
	return s.mutate(ctx, id, "disable", func(pt *model.PluginTenant) error {
		entitlement.Disable(pt)
		return nil
	})
}

func (s *EntitlementService) Archive(ctx context.Context, id int64) (*model.PluginTenant, error) {
	return s.mutate(ctx, id, "archive", func(pt *model.PluginTenant) error {
		entitlement.Archive(pt, s.now())
		return nil
	})
}

func (s *EntitlementService) Restore(ctx context.Context, id int64) (*model.PluginTenant, error) {
	return s.mutate(ctx, id, "restore", func(pt *model.PluginTenant) error {
		entitlement.Restore(pt)
		return nil
	})
}

func (s *EntitlementService) Approve(ctx context.Context, id int64, principal Principal) (*model.PluginTenant, error) {
	return s.mutate(ctx, id, "approve", func(pt *model.PluginTenant) error {
		return entitlement.Approve(pt, principal.UserID, s.now())
	})
}

func (s *EntitlementService) RevokeApproval(ctx context.Context, id int64) (*model.PluginTenant, error) {
	return s.mutate(ctx, id, "revoke_approval", func(pt *model.PluginTenant) error {
		entitlement.RevokeApproval(pt)
		return nil
	})
}

func (s *EntitlementService) AllowUser(ctx context.Context, id, userID int64) (*model.PluginTenant, error) {
	return s.mutate(ctx, id, "allow_user", func(pt *model.PluginTenant) error {
		entitlement.AllowUser(pt, userID)
		return nil
	})
}

func (s *EntitlementService) RemoveAllowedUser(ctx context.Context, id, userID int64) (*model.PluginTenant, error) {
	return s.mutate(ctx, id, "remove_allowed_user", func(pt *model.PluginTenant) error {
		entitlement.RemoveAllowedUser(pt, userID)
		return nil
	})
}

func (s *EntitlementService) DenyUser(ctx context.Context, id, userID int64) (*model.PluginTenant, error) {
	return s.mutate(ctx, id, "deny_user", func(pt *model.PluginTenant) error {
		entitlement.DenyUser(pt, userID)
		return nil
	})
}

func (s *EntitlementService) RemoveDeniedUser(ctx context.Context, id, userID int64) (*model.PluginTenant, error) {
	return s.mutate(ctx, id, "remove_denied_user", func(pt *model.PluginTenant) error {
		entitlement.RemoveDeniedUser(pt, userID)
		return nil
	})
}

func (s *EntitlementService) SetAllowedRoles(ctx context.Context, id int64, roles []string) (*model.PluginTenant, error) {
	return s.mutate(ctx, id, "set_allowed_roles", func(pt *model.PluginTenant) error {
		entitlement.SetAllowedRoles(pt, roles)
		return nil
	})
}

// SetQuotas nil 表示未配置，-1 表示不限，原样保存
func (s *EntitlementService) SetQuotas(ctx context.Context, id int64, maxInstallations, maxActiveUsers *int64) (*model.PluginTenant, error) {
	if !entitlement.ValidQuota(maxInstallations) || !entitlement.ValidQuota(maxActiveUsers) {
		return nil, fmt.Errorf("quota must be -1 or non-negative: %w", apperr.ErrInvalidArgument)
	}
	// 上限不能低于当前计数，检查随写入原子完成
	return s.mutateWith(ctx, id, "set_quotas", func(pt *model.PluginTenant) error {
		pt.MaxInstallations = maxInstallations
		pt.MaxActiveUsers = maxActiveUsers
		return nil
	}, s.repo.SaveQuotasVersioned)
}

// Flags 只更新非 nil 的开关
type Flags struct {
	AutoInstall      *bool
	RequiresApproval *bool
	IsMandatory      *bool
}

func (s *EntitlementService) SetFlags(ctx context.Context, id int64, flags Flags) (*model.PluginTenant, error) {
	return s.mutate(ctx, id, "set_flags", func(pt *model.PluginTenant) error {
		if flags.AutoInstall != nil {
			pt.AutoInstall = *flags.AutoInstall
		}
		if flags.RequiresApproval != nil {
			pt.RequiresApproval = *flags.RequiresApproval
		}
		if flags.IsMandatory != nil {
			pt.IsMandatory = *flags.IsMandatory
		}
		return nil
	})
}

// mutate 读取最新记录、应用变更并按版本号写回，冲突时重试
func (s *EntitlementService) mutate(ctx context.Context, id int64, reason string, apply func(*model.PluginTenant) error) (*model.PluginTenant, error) {
	return s.mutateWith(ctx, id, reason, apply, s.repo.SaveVersioned)
}

func (s *EntitlementService) mutateWith(ctx context.Context, id int64, reason string, apply func(*model.PluginTenant) error, save func(*model.PluginTenant) error) (*model.PluginTenant, error) {
	var result *model.PluginTenant
	err := retryOnConflict(s.cfg.Subscription.MaxRetries, func() {
		s.Metrics.OptimisticRetries.WithLabelValues("plugin_tenant").Inc()
	}, func() error {
		pt, err := s.repo.GetByID(id)
		if err != nil {
			return err
		}
		if err := apply(pt); err != nil {
			return err
		}
		if err := save(pt); err != nil {
			return err
		}
		result = pt
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			s.Log.WithFields(logrus.Fields{"entitlement_id": id, "reason": reason}).Warn("entitlement update gave up after retries")
		}
		return nil, err
	}

	s.invalidate(ctx, id, reason)
	return result, nil
}

// invalidate 清除本地缓存并通知其他进程
func (s *EntitlementService) invalidate(ctx context.Context, id int64, reason string) {
	s.cache.Invalidate(id)
	if s.publisher == nil {
		return
	}
	msg := &pubsub.InvalidationMessage{EntitlementID: id, Origin: s.origin, Reason: reason}
	if err := s.publisher.PublishInvalidation(ctx, msg); err != nil {
		s.Log.WithError(err).WithField("entitlement_id", id).Warn("failed to publish entitlement invalidation")
	}
}

// HandleInvalidation 处理其他进程发来的失效消息
func (s *EntitlementService) HandleInvalidation(msg *pubsub.InvalidationMessage) {
	if msg.Origin == s.origin {
		return
	}
	if msg.EntitlementID == 0 {
		s.cache.Purge()
		return
	}
	s.cache.Invalidate(msg.EntitlementID)
}
