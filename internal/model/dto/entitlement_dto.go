package dto

// FindOrCreateEntitlementRequest organization_id 省略表示租户级
type FindOrCreateEntitlementRequest struct {
	PluginID       int64  `json:"plugin_id" binding:"required,min=1"`
	TenantID       int64  `json:"tenant_id" binding:"omitempty,min=1"`
	OrganizationID int64  `json:"organization_id" binding:"omitempty,min=0"`
	Scope          string `json:"scope" binding:"omitempty,oneof=USER ORGANIZATION TENANT"`
}

type FindOrCreateEntitlementResponse struct {
	EntitlementID int64 `json:"entitlement_id"`
}

type AccessCheckRequest struct {
	UserID int64    `json:"user_id" binding:"required,min=1"`
	Roles  []string `json:"roles"`
}

type AccessCheckResponse struct {
	Allowed bool `json:"allowed"`
}

type UserRequest struct {
	UserID int64 `json:"user_id" binding:"required,min=1"`
}

type SetRolesRequest struct {
	Roles []string `json:"roles" binding:"omitempty,dive,max=50"`
}

// SetQuotasRequest null 表示未配置，-1 表示不限
type SetQuotasRequest struct {
	MaxInstallations *int64 `json:"max_installations" binding:"omitempty,min=-1"`
	MaxActiveUsers   *int64 `json:"max_active_users" binding:"omitempty,min=-1"`
}

type SetFlagsRequest struct {
	AutoInstall      *bool `json:"auto_install,omitempty"`
	RequiresApproval *bool `json:"requires_approval,omitempty"`
	IsMandatory      *bool `json:"is_mandatory,omitempty"`
}
