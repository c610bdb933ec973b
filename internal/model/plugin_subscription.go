package model

import (
	"time"
)

// 订阅状态
const (
	SubPending   = "PENDING"
	SubActive    = "ACTIVE"
	SubTrial     = "TRIAL"
	SubSuspended = "SUSPENDED"
	SubCancelled = "CANCELLED"
	SubExpired   = "EXPIRED"
)

type PluginSubscription struct {
	ID             int64  `gorm:"primaryKey" json:"id"`
	PluginID       int64  `gorm:"not null;index" json:"plugin_id"`
	PluginTenantID int64  `gorm:"not null;index" json:"plugin_tenant_id"`
	TenantID       int64  `gorm:"not null;index" json:"tenant_id"`
	OrganizationID int64  `gorm:"not null;default:0" json:"organization_id"`
	PlanID         *int64 `gorm:"index" json:"plan_id,omitempty"`
	SubscriberID   *int64 `gorm:"index" json:"subscriber_id,omitempty"`
	ParentID       *int64 `gorm:"index" json:"parent_id,omitempty"`

	Status             string     `gorm:"size:20;default:PENDING;index" json:"status"`
	Scope              Scope      `gorm:"size:20;not null" json:"scope"`
	StartDate          time.Time  `gorm:"not null" json:"start_date"`
	EndDate            *time.Time `gorm:"index" json:"end_date,omitempty"`
	TrialEndDate       *time.Time `json:"trial_end_date,omitempty"`
	AutoRenew          bool       `gorm:"default:false;index" json:"auto_renew"`
	RenewalCount       int        `gorm:"default:0" json:"renewal_count"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `gorm:"type:text" json:"cancellation_reason,omitempty"`
	SuspensionReason   string     `gorm:"type:text" json:"suspension_reason,omitempty"`

	Version   int64     `gorm:"not null;default:1" json:"version"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PluginSubscription) TableName() string {
	return "plugin_subscriptions"
}

func (s *PluginSubscription) IsChild() bool {
	return s.ParentID != nil
}
