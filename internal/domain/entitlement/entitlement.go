// Package entitlement 租户插件授权记录上的纯函数：访问判定、配额与状态变更
package entitlement

import (
	"time"

	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
)

const (
	ResourceInstallations = "installations"
	ResourceActiveUsers   = "active_users"
)

// New 按默认值构造授权记录，创建人自动加入白名单并记为审批人
func New(pluginID, tenantID, organizationID int64, scope model.Scope, principal int64, now time.Time) *model.PluginTenant {
	if !scope.Valid() {
		scope = model.ScopeTenant
	}
	pt := &model.PluginTenant{
		PluginID:         pluginID,
		TenantID:         tenantID,
		OrganizationID:   organizationID,
		Scope:            scope,
		Enabled:          true,
		RequiresApproval: true,
		AllowedUsers:     model.Int64Array{},
		DeniedUsers:      model.Int64Array{},
		AllowedRoles:     model.StringArray{},
		Version:          1,
	}
	if principal > 0 {
		pt.AllowedUsers = pt.AllowedUsers.With(principal)
		pt.ApprovedBy = &principal
		pt.ApprovedAt = &now
	}
	return pt
}

// HasUserAccess 按固定优先级判定，先命中先返回
func HasUserAccess(pt *model.PluginTenant, userID int64, roles []string) bool {
	if !pt.Enabled || pt.IsArchived {
		return false
	}
	if pt.DeniedUsers.Contains(userID) {
		return false
	}
	if pt.AllowedUsers.Contains(userID) {
		return true
	}
	if len(pt.AllowedRoles) > 0 {
		for _, r := range roles {
			if pt.AllowedRoles.Contains(r) {
				return true
			}
		}
		return false
	}
	// 白名单非空但未命中且没有角色限制时拒绝
	return len(pt.AllowedUsers) == 0
}

// IsUnlimited NULL 或 -1 均视为不限
func IsUnlimited(max *int64) bool {
	return max == nil || *max == model.Unlimited
}

func hasCapacity(max *int64, current int64) bool {
	return IsUnlimited(max) || current < *max
}

func CanInstallMore(pt *model.PluginTenant) bool {
	return hasCapacity(pt.MaxInstallations, pt.CurrentInstallations)
}

func CanAddMoreUsers(pt *model.PluginTenant) bool {
	return hasCapacity(pt.MaxActiveUsers, pt.CurrentActiveUsers)
}

// IncrementInstallations 内存中检查并自增，持久化必须走仓储层的条件更新
func IncrementInstallations(pt *model.PluginTenant) error {
	if !CanInstallMore(pt) {
		return &apperr.QuotaExceededError{Resource: ResourceInstallations, Current: pt.CurrentInstallations, Limit: *pt.MaxInstallations}
	}
	pt.CurrentInstallations++
	return nil
}

func IncrementActiveUsers(pt *model.PluginTenant) error {
	if !CanAddMoreUsers(pt) {
		return &apperr.QuotaExceededError{Resource: ResourceActiveUsers, Current: pt.CurrentActiveUsers, Limit: *pt.MaxActiveUsers}
	}
	pt.CurrentActiveUsers++
	return nil
}

// DecrementInstallations 最低为 0，不报错
func DecrementInstallations(pt *model.PluginTenant) {
	if pt.CurrentInstallations > 0 {
		pt.CurrentInstallations--
	}
}

func DecrementActiveUsers(pt *model.PluginTenant) {
	if pt.CurrentActiveUsers > 0 {
		pt.CurrentActiveUsers--
	}
}

// ValidQuota 上限只能为 NULL、-1 或非负数
func ValidQuota(max *int64) bool {
	return max == nil || *max >= model.Unlimited
}

// Enable 已归档的记录不能启用
func Enable(pt *model.PluginTenant) error {
	if pt.IsArchived {
		return apperr.Transition("plugin tenant", "enable", "ARCHIVED")
	}
	pt.Enabled = true
	return nil
}

func Disable(pt *model.PluginTenant) {
	pt.Enabled = false
}

// Archive 归档并强制停用
func Archive(pt *model.PluginTenant, now time.Time) {
	pt.IsArchived = true
	pt.ArchivedAt = &now
	pt.Enabled = false
}

// Restore 取消归档，不会自动启用
func Restore(pt *model.PluginTenant) {
	pt.IsArchived = false
	pt.ArchivedAt = nil
}

// Approve 记录审批信息并启用
func Approve(pt *model.PluginTenant, by int64, now time.Time) error {
	if err := Enable(pt); err != nil {
		return err
	}
	pt.ApprovedBy = &by
	pt.ApprovedAt = &now
	return nil
}

// RevokeApproval 清除审批信息并停用
func RevokeApproval(pt *model.PluginTenant) {
	pt.ApprovedBy = nil
	pt.ApprovedAt = nil
	pt.Enabled = false
}

func AllowUser(pt *model.PluginTenant, userID int64) {
	pt.AllowedUsers = pt.AllowedUsers.With(userID)
}

func RemoveAllowedUser(pt *model.PluginTenant, userID int64) {
	pt.AllowedUsers = pt.AllowedUsers.Without(userID)
}

// DenyUser 加入黑名单，黑名单优先于白名单
func DenyUser(pt *model.PluginTenant, userID int64) {
	pt.DeniedUsers = pt.DeniedUsers.With(userID)
}

func RemoveDeniedUser(pt *model.PluginTenant, userID int64) {
	pt.DeniedUsers = pt.DeniedUsers.Without(userID)
}

func SetAllowedRoles(pt *model.PluginTenant, roles []string) {
	out := make(model.StringArray, 0, len(roles))
	for _, r := range roles {
		if r != "" && !out.Contains(r) {
			out = append(out, r)
		}
	}
	pt.AllowedRoles = out
}
