package model

import (
	"time"
)

// PluginTenant 插件在租户（及可选组织）下的授权记录
type PluginTenant struct {
	ID             int64 `gorm:"primaryKey" json:"id"`
	PluginID       int64 `gorm:"not null;uniqueIndex:uk_plugin_tenant_org" json:"plugin_id"`
	TenantID       int64 `gorm:"not null;uniqueIndex:uk_plugin_tenant_org" json:"tenant_id"`
	OrganizationID int64 `gorm:"not null;default:0;uniqueIndex:uk_plugin_tenant_org" json:"organization_id"` // 0 表示租户级
	Scope          Scope `gorm:"size:20;default:TENANT" json:"scope"`

	Enabled          bool `gorm:"not null" json:"enabled"`
	AutoInstall      bool `gorm:"default:false" json:"auto_install"`
	RequiresApproval bool `gorm:"not null" json:"requires_approval"`
	IsMandatory      bool `gorm:"default:false" json:"is_mandatory"`
	IsArchived       bool `gorm:"default:false;index" json:"is_archived"`

	// NULL 表示未配置上限，-1 表示策略上不限
	MaxInstallations     *int64 `json:"max_installations"`
	MaxActiveUsers       *int64 `json:"max_active_users"`
	CurrentInstallations int64  `gorm:"not null;default:0" json:"current_installations"`
	CurrentActiveUsers   int64  `gorm:"not null;default:0" json:"current_active_users"`

	AllowedUsers Int64Array  `gorm:"type:json" json:"allowed_users"`
	DeniedUsers  Int64Array  `gorm:"type:json" json:"denied_users"`
	AllowedRoles StringArray `gorm:"type:json" json:"allowed_roles"`

	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	ApprovedBy *int64     `json:"approved_by,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`

	Version   int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PluginTenant) TableName() string {
	return "plugin_tenants"
}
