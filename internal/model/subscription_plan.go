package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 套餐类型
const (
	PlanFree       = "FREE"
	PlanBasic      = "BASIC"
	PlanPremium    = "PREMIUM"
	PlanEnterprise = "ENTERPRISE"
	PlanCustom     = "CUSTOM"
)

// 计费周期
const (
	PeriodDaily     = "DAILY"
	PeriodWeekly    = "WEEKLY"
	PeriodMonthly   = "MONTHLY"
	PeriodQuarterly = "QUARTERLY"
	PeriodYearly    = "YEARLY"
	PeriodOneTime   = "ONE_TIME"
)

type SubscriptionPlan struct {
	ID                 int64           `gorm:"primaryKey" json:"id"`
	PluginID           int64           `gorm:"not null;index" json:"plugin_id"`
	Name               string          `gorm:"size:100;not null" json:"name"`
	Type               string          `gorm:"size:20;not null" json:"type"`
	Price              decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Currency           string          `gorm:"size:3;default:USD" json:"currency"`
	BillingPeriod      string          `gorm:"size:20;not null" json:"billing_period"`
	Features           StringArray     `gorm:"type:json" json:"features"`
	TrialDays          int             `gorm:"default:0" json:"trial_days"`
	SetupFee           decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"setup_fee"`
	DiscountPercentage decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"discount_percentage"`
	IsActive           bool            `gorm:"not null" json:"is_active"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (SubscriptionPlan) TableName() string {
	return "subscription_plans"
}

func ValidPlanType(t string) bool {
	switch t {
	case PlanFree, PlanBasic, PlanPremium, PlanEnterprise, PlanCustom:
		return true
	}
	return false
}

func ValidBillingPeriod(p string) bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly, PeriodOneTime:
		return true
	}
	return false
}
