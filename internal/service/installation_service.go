package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/plugin_go_server/config"
	"github.com/qs3c/plugin_go_server/internal/domain/installation"
	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/model/dto"
	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
	"github.com/qs3c/plugin_go_server/internal/repository"
)

type InstallationService struct {
	instRepo     *repository.InstallationRepository
	pluginRepo   *repository.PluginRepository
	versions     *VersionService
	entitlements *EntitlementService
	cfg          *config.Config
	Deps
}

func NewInstallationService(
	instRepo *repository.InstallationRepository,
	pluginRepo *repository.PluginRepository,
	versions *VersionService,
	entitlements *EntitlementService,
	cfg *config.Config,
	deps Deps,
) *InstallationService {
	return &InstallationService{
		instRepo:     instRepo,
		pluginRepo:   pluginRepo,
		versions:     versions,
		entitlements: entitlements,
		cfg:          cfg,
		Deps:         deps.withDefaults(),
	}
}

// Install 校验授权、解析版本、占用配额后创建 IN_PROGRESS 记录
func (s *InstallationService) Install(ctx context.Context, principal Principal, req *dto.InstallRequest) (*model.Installation, error) {
	plugin, err := s.pluginRepo.GetByID(req.PluginID)
	if err != nil {
		return nil, err
	}
	if plugin.Status != model.PluginStatusActive {
		return nil, fmt.Errorf("plugin %d is %s: %w", plugin.ID, plugin.Status, apperr.ErrInvalidArgument)
	}

	pt, err := s.entitlements.GetByTriple(plugin.ID, principal.TenantID, principal.OrganizationID)
	if err != nil {
		return nil, err
	}
	allowed, err := s.entitlements.HasUserAccess(ctx, pt.ID, principal.UserID, principal.Roles)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("user %d on entitlement %d: %w", principal.UserID, pt.ID, apperr.ErrAccessDenied)
	}
	if pt.RequiresApproval && pt.ApprovedAt == nil {
		return nil, fmt.Errorf("entitlement %d awaits approval: %w", pt.ID, apperr.ErrAccessDenied)
	}

	version, err := s.versions.ResolveEligible(plugin.ID, req.Range, req.OS, req.Arch)
	if err != nil {
		return nil, err
	}

	if err := s.entitlements.CheckAndIncrementInstallQuota(ctx, pt.ID); err != nil {
		return nil, err
	}
	inst := installation.New(plugin.ID, version.ID, principal.TenantID, principal.OrganizationID, principal.UserID)
	if err := s.instRepo.Create(inst); err != nil {
		s.releaseQuota(ctx, pt.ID)
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"installation_id": inst.ID,
		"plugin_id":       plugin.ID,
		"version":         version.Number,
		"tenant_id":       principal.TenantID,
	}).Info("installation started")
	return inst, nil
}

// Complete 安装结束回调，失败时归还配额
func (s *InstallationService) Complete(ctx context.Context, id int64, success bool, message string) (*model.Installation, error) {
	if success {
		inst, err := s.transition(id, "succeed", func(inst *model.Installation) error {
			return installation.Succeed(inst, s.now())
		})
		if err != nil {
			return nil, err
		}
		if err := s.versions.RecordDownload(inst.VersionID); err != nil {
			s.Log.WithError(err).WithField("version_id", inst.VersionID).Warn("failed to record download")
		}
		return inst, nil
	}

	inst, err := s.transition(id, "fail", func(inst *model.Installation) error {
		return installation.Fail(inst, message)
	})
	if err != nil {
		return nil, err
	}
	s.releaseFor(ctx, inst)
	return inst, nil
}

// Activate 重复激活会刷新 activatedAt
func (s *InstallationService) Activate(id int64) (*model.Installation, error) {
	return s.transition(id, "activate", func(inst *model.Installation) error {
		return installation.Activate(inst, s.now())
	})
}

func (s *InstallationService) Deactivate(id int64) (*model.Installation, error) {
	return s.transition(id, "deactivate", func(inst *model.Installation) error {
		return installation.Deactivate(inst, s.now())
	})
}

// Uninstall 离开 INSTALLED 时归还配额，FAILED 记录已在失败时归还
func (s *InstallationService) Uninstall(ctx context.Context, id int64) (*model.Installation, error) {
	var heldQuota bool
	inst, err := s.transition(id, "uninstall", func(inst *model.Installation) error {
		heldQuota = installation.HoldsQuota(inst.Status)
		return installation.Uninstall(inst, s.now())
	})
	if err != nil {
		return nil, err
	}
	if heldQuota {
		s.releaseFor(ctx, inst)
	}
	return inst, nil
}

func (s *InstallationService) Get(id int64) (*model.Installation, error) {
	return s.instRepo.GetByID(id)
}

// GetOwned 只返回调用方租户下的安装记录
func (s *InstallationService) GetOwned(principal Principal, id int64) (*model.Installation, error) {
	inst, err := s.instRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(principal, inst.TenantID, "installation", id); err != nil {
		return nil, err
	}
	return inst, nil
}

// Detail 附带安装耗时与激活时长
func (s *InstallationService) Detail(id int64) (*dto.InstallationDetail, error) {
	inst, err := s.instRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	detail := &dto.InstallationDetail{Installation: inst}
	if d, ok := installation.Duration(inst); ok {
		secs := d.Seconds()
		detail.InstallSeconds = &secs
	}
	if d, ok := installation.ActiveTime(inst, s.now()); ok {
		secs := d.Seconds()
		detail.ActiveSeconds = &secs
	}
	return detail, nil
}

// ListForTenant organizationID 小于 0 时返回租户下全部组织的记录
func (s *InstallationService) ListForTenant(tenantID, organizationID int64, page, pageSize int) ([]*model.Installation, int64, error) {
	return s.instRepo.ListByTenant(tenantID, organizationID, page, pageSize)
}

// transition 以读取时的状态为条件写回
func (s *InstallationService) transition(id int64, event string, apply func(*model.Installation) error) (*model.Installation, error) {
	var result *model.Installation
	var from string
	err := retryOnConflict(s.cfg.Subscription.MaxRetries, func() {
		s.Metrics.OptimisticRetries.WithLabelValues("installation").Inc()
	}, func() error {
		inst, err := s.instRepo.GetByID(id)
		if err != nil {
			return err
		}
		from = inst.Status
		if err := apply(inst); err != nil {
			return err
		}
		if err := s.instRepo.SaveFrom(inst, from); err != nil {
			return err
		}
		result = inst
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"installation_id": id,
		"from":            from,
		"to":              result.Status,
		"event":           event,
	}).Info("installation transition")
	return result, nil
}

func (s *InstallationService) releaseFor(ctx context.Context, inst *model.Installation) {
	pt, err := s.entitlements.GetByTriple(inst.PluginID, inst.TenantID, inst.OrganizationID)
	if err != nil {
		s.Log.WithError(err).WithField("installation_id", inst.ID).Error("failed to resolve entitlement for quota release")
		return
	}
	s.releaseQuota(ctx, pt.ID)
}

func (s *InstallationService) releaseQuota(ctx context.Context, entitlementID int64) {
	if err := s.entitlements.ReleaseInstallQuota(ctx, entitlementID); err != nil {
		s.Log.WithError(err).WithField("entitlement_id", entitlementID).Error("failed to release install quota")
	}
}
