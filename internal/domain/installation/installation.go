// Package installation 安装记录的状态机
package installation

import (
	"time"

	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
)

const entity = "installation"

// New 创建一条 IN_PROGRESS 安装记录
func New(pluginID, versionID, tenantID, organizationID, installedBy int64) *model.Installation {
	key := model.InstallationKey(pluginID, versionID, tenantID, organizationID, installedBy)
	return &model.Installation{
		PluginID:       pluginID,
		VersionID:      versionID,
		TenantID:       tenantID,
		OrganizationID: organizationID,
		InstalledBy:    installedBy,
		Status:         model.InstallInProgress,
		LiveKey:        &key,
	}
}

// Succeed IN_PROGRESS -> INSTALLED
func Succeed(inst *model.Installation, now time.Time) error {
	if inst.Status != model.InstallInProgress {
		return apperr.Transition(entity, "succeed", inst.Status)
	}
	inst.Status = model.InstallInstalled
	inst.InstalledAt = &now
	inst.ErrorMessage = ""
	return nil
}

// Fail IN_PROGRESS -> FAILED
func Fail(inst *model.Installation, message string) error {
	if inst.Status != model.InstallInProgress {
		return apperr.Transition(entity, "fail", inst.Status)
	}
	inst.Status = model.InstallFailed
	inst.ErrorMessage = message
	return nil
}

// Activate 仅 INSTALLED 可激活，重复激活会刷新 activatedAt
func Activate(inst *model.Installation, now time.Time) error {
	if inst.Status != model.InstallInstalled {
		return apperr.Transition(entity, "activate", inst.Status)
	}
	inst.IsActivated = true
	inst.ActivatedAt = &now
	inst.DeactivatedAt = nil
	return nil
}

// Deactivate 仅 INSTALLED 可停用
func Deactivate(inst *model.Installation, now time.Time) error {
	if inst.Status != model.InstallInstalled {
		return apperr.Transition(entity, "deactivate", inst.Status)
	}
	if !inst.IsActivated {
		return nil
	}
	inst.IsActivated = false
	inst.DeactivatedAt = &now
	return nil
}

// Uninstall INSTALLED|FAILED -> UNINSTALLED，终态
func Uninstall(inst *model.Installation, now time.Time) error {
	if inst.Status != model.InstallInstalled && inst.Status != model.InstallFailed {
		return apperr.Transition(entity, "uninstall", inst.Status)
	}
	if inst.IsActivated {
		inst.IsActivated = false
		inst.DeactivatedAt = &now
	}
	inst.Status = model.InstallUninstalled
	inst.UninstalledAt = &now
	inst.LiveKey = nil
	return nil
}

// HoldsQuota 记录是否占用租户安装配额
func HoldsQuota(status string) bool {
	return status == model.InstallInProgress || status == model.InstallInstalled
}

// Duration installedAt - createdAt，未安装时 ok 为 false
func Duration(inst *model.Installation) (time.Duration, bool) {
	if inst.InstalledAt == nil {
		return 0, false
	}
	return inst.InstalledAt.Sub(inst.CreatedAt), true
}

// ActiveTime (deactivatedAt 或 now) - activatedAt
func ActiveTime(inst *model.Installation, now time.Time) (time.Duration, bool) {
	if inst.ActivatedAt == nil {
		return 0, false
	}
	end := now
	if !inst.IsActivated && inst.DeactivatedAt != nil {
		end = *inst.DeactivatedAt
	}
	return end.Sub(*inst.ActivatedAt), true
}
