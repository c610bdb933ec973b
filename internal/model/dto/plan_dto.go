package dto

import "github.com/shopspring/decimal"

// CreatePlanRequest 创建套餐请求
type CreatePlanRequest struct {
	Name               string           `json:"name" binding:"required,max=100"`
	Type               string           `json:"type" binding:"required,oneof=FREE BASIC PREMIUM ENTERPRISE CUSTOM"`
	Price              decimal.Decimal  `json:"price"`
	Currency           string           `json:"currency" binding:"omitempty,len=3"`
	BillingPeriod      string           `json:"billing_period" binding:"required,oneof=DAILY WEEKLY MONTHLY QUARTERLY YEARLY ONE_TIME"`
	Features           []string         `json:"features" binding:"omitempty,dive,max=100"`
	TrialDays          int              `json:"trial_days" binding:"omitempty,min=0,max=365"`
	SetupFee           decimal.Decimal  `json:"setup_fee"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage,omitempty"`
}

type SetPlanActiveRequest struct {
	Active bool `json:"active"`
}

// PlanComparison 两个套餐按 30 天月折算后的比较结果
type PlanComparison struct {
	PlanA             int64            `json:"plan_a"`
	PlanB             int64            `json:"plan_b"`
	MonthlyA          decimal.Decimal  `json:"monthly_a"`
	MonthlyB          decimal.Decimal  `json:"monthly_b"`
	Comparison        int              `json:"comparison"`
	ABetterValue      bool             `json:"a_better_value"`
	AnnualSavings     *decimal.Decimal `json:"annual_savings,omitempty"`
	SavingsPercentage *decimal.Decimal `json:"savings_percentage,omitempty"`
}
