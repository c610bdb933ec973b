package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateSubscriptionRequest kind 决定订阅的初始状态
type CreateSubscriptionRequest struct {
	Kind           string     `json:"kind" binding:"required,oneof=free trial paid"`
	PluginTenantID int64      `json:"plugin_tenant_id" binding:"required,min=1"`
	PlanID         int64      `json:"plan_id" binding:"omitempty,min=1"`
	Scope          string     `json:"scope" binding:"omitempty,oneof=USER ORGANIZATION TENANT"`
	SubscriberID   int64      `json:"subscriber_id" binding:"omitempty,min=1"`
	StartDate      *time.Time `json:"start_date,omitempty"`
}

type CreateChildRequest struct {
	SubscriberID int64 `json:"subscriber_id" binding:"required,min=1"`
}

type ReasonRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=1000"`
}

type CancelRequest struct {
	Reason  string `json:"reason" binding:"omitempty,max=1000"`
	Cascade bool   `json:"cascade"`
}

// RenewRequest end_date 省略时顺延一个计费周期
type RenewRequest struct {
	EndDate *time.Time `json:"end_date,omitempty"`
}

type ExtendTrialRequest struct {
	Days int `json:"days" binding:"required,min=1,max=365"`
}

type ChangePlanRequest struct {
	PlanID int64 `json:"plan_id" binding:"required,min=1"`
}

// SubscriptionQuote 订阅的派生金额与天数
type SubscriptionQuote struct {
	SubscriptionID     int64            `json:"subscription_id"`
	RemainingDays      *int             `json:"remaining_days"` // null 表示不过期
	TotalPeriodDays    int              `json:"total_period_days"`
	UsagePercentage    decimal.Decimal  `json:"usage_percentage"`
	QualifiesForRefund bool             `json:"qualifies_for_refund"`
	CreditAmount       *decimal.Decimal `json:"credit_amount,omitempty"`
	RenewalPrice       *decimal.Decimal `json:"renewal_price,omitempty"`
	TargetPlanID       int64            `json:"target_plan_id,omitempty"`
	ProratedAmount     *decimal.Decimal `json:"prorated_amount,omitempty"`
}
