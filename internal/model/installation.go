package model

import (
	"fmt"
	"time"
)

// 安装状态
const (
	InstallInProgress  = "IN_PROGRESS"
	InstallInstalled   = "INSTALLED"
	InstallFailed      = "FAILED"
	InstallUninstalled = "UNINSTALLED"
)

type Installation struct {
	ID             int64      `gorm:"primaryKey" json:"id"`
	PluginID       int64      `gorm:"not null;index" json:"plugin_id"`
	VersionID      int64      `gorm:"not null;index" json:"version_id"`
	TenantID       int64      `gorm:"not null;index" json:"tenant_id"`
	OrganizationID int64      `gorm:"not null;default:0" json:"organization_id"` // 0 表示租户级
	InstalledBy    int64      `gorm:"not null;index" json:"installed_by"`
	Status         string     `gorm:"size:20;default:IN_PROGRESS;index" json:"status"`
	IsActivated    bool       `gorm:"default:false" json:"is_activated"`
	ActivatedAt    *time.Time `json:"activated_at,omitempty"`
	DeactivatedAt  *time.Time `json:"deactivated_at,omitempty"`
	InstalledAt    *time.Time `json:"installed_at,omitempty"`
	UninstalledAt  *time.Time `json:"uninstalled_at,omitempty"`
	ErrorMessage   string     `gorm:"type:text" json:"error_message,omitempty"`
	// 未卸载时为元组键，卸载后置空，保证同一元组只有一条有效记录
	LiveKey   *string   `gorm:"size:191;uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Installation) TableName() string {
	return "installations"
}

// InstallationKey 安装元组 (plugin, version, tenant, organization, installer)
func InstallationKey(pluginID, versionID, tenantID, organizationID, installedBy int64) string {
	return fmt.Sprintf("%d:%d:%d:%d:%d", pluginID, versionID, tenantID, organizationID, installedBy)
}
