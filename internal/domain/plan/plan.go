// Package plan 订阅套餐的价格计算与比较
package plan

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
)

var (
	hundred      = decimal.NewFromInt(100)
	weeksInMonth = decimal.RequireFromString("4.33")
	daysInMonth  = decimal.NewFromInt(30)
)

// EffectivePrice price × (1 − discount/100)
func EffectivePrice(p *model.SubscriptionPlan) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(p.DiscountPercentage.Div(hundred))
	return p.Price.Mul(factor).Round(2)
}

// TotalPrice 折后价加一次性安装费
func TotalPrice(p *model.SubscriptionPlan) decimal.Decimal {
	return EffectivePrice(p).Add(p.SetupFee)
}

// MonthlyEquivalent 折算为 30 天月价
func MonthlyEquivalent(price decimal.Decimal, period string) decimal.Decimal {
	var m decimal.Decimal
	switch period {
	case model.PeriodDaily:
		m = price.Mul(daysInMonth)
	case model.PeriodWeekly:
		m = price.Mul(weeksInMonth)
	case model.PeriodQuarterly:
		m = price.Div(decimal.NewFromInt(3))
	case model.PeriodYearly:
		m = price.Div(decimal.NewFromInt(12))
	default:
		m = price
	}
	return m.Round(2)
}

// PlanMonthlyEquivalent 按套餐折后价折算月价
func PlanMonthlyEquivalent(p *model.SubscriptionPlan) decimal.Decimal {
	return MonthlyEquivalent(EffectivePrice(p), p.BillingPeriod)
}

// ComparePlans 按月价比较，a 更贵返回 1
func ComparePlans(a, b *model.SubscriptionPlan) int {
	return PlanMonthlyEquivalent(a).Cmp(PlanMonthlyEquivalent(b))
}

// IsBetterValue a 月价更低，或月价相同但功能更多
func IsBetterValue(a, b *model.SubscriptionPlan) bool {
	switch ComparePlans(a, b) {
	case -1:
		return true
	case 0:
		return len(a.Features) > len(b.Features)
	}
	return false
}

func yearlyAndMonthly(a, b *model.SubscriptionPlan) (yearly, monthly *model.SubscriptionPlan, err error) {
	switch {
	case a.BillingPeriod == model.PeriodYearly && b.BillingPeriod == model.PeriodMonthly:
		return a, b, nil
	case a.BillingPeriod == model.PeriodMonthly && b.BillingPeriod == model.PeriodYearly:
		return b, a, nil
	}
	return nil, nil, fmt.Errorf("savings need one yearly and one monthly plan, got %s and %s: %w",
		a.BillingPeriod, b.BillingPeriod, apperr.ErrInvalidArgument)
}

// AnnualSavings 月付一年的费用减去年付费用，参数顺序不限
func AnnualSavings(a, b *model.SubscriptionPlan) (decimal.Decimal, error) {
	yearly, monthly, err := yearlyAndMonthly(a, b)
	if err != nil {
		return decimal.Zero, err
	}
	return EffectivePrice(monthly).Mul(decimal.NewFromInt(12)).Sub(EffectivePrice(yearly)), nil
}

// SavingsPercentage 年付相对月付一年节省的百分比
func SavingsPercentage(a, b *model.SubscriptionPlan) (decimal.Decimal, error) {
	yearly, monthly, err := yearlyAndMonthly(a, b)
	if err != nil {
		return decimal.Zero, err
	}
	annualMonthly := EffectivePrice(monthly).Mul(decimal.NewFromInt(12))
	if annualMonthly.IsZero() {
		return decimal.Zero, nil
	}
	savings := annualMonthly.Sub(EffectivePrice(yearly))
	return savings.Div(annualMonthly).Mul(hundred).Round(2), nil
}

// AddPeriod 计算一个计费周期后的时间，ONE_TIME 没有结束时间
func AddPeriod(t time.Time, period string) (time.Time, bool) {
	switch period {
	case model.PeriodDaily:
		return t.AddDate(0, 0, 1), true
	case model.PeriodWeekly:
		return t.AddDate(0, 0, 7), true
	case model.PeriodMonthly:
		return t.AddDate(0, 1, 0), true
	case model.PeriodQuarterly:
		return t.AddDate(0, 3, 0), true
	case model.PeriodYearly:
		return t.AddDate(1, 0, 0), true
	}
	return time.Time{}, false
}

// Validate 校验套餐字段
func Validate(p *model.SubscriptionPlan) error {
	if p.Name == "" {
		return fmt.Errorf("plan name is required: %w", apperr.ErrInvalidArgument)
	}
	if !model.ValidPlanType(p.Type) {
		return fmt.Errorf("unknown plan type %q: %w", p.Type, apperr.ErrInvalidArgument)
	}
	if !model.ValidBillingPeriod(p.BillingPeriod) {
		return fmt.Errorf("unknown billing period %q: %w", p.BillingPeriod, apperr.ErrInvalidArgument)
	}
	if p.Price.IsNegative() || p.SetupFee.IsNegative() {
		return fmt.Errorf("prices must not be negative: %w", apperr.ErrInvalidArgument)
	}
	if p.DiscountPercentage.IsNegative() || p.DiscountPercentage.GreaterThan(hundred) {
		return fmt.Errorf("discount must be within [0,100]: %w", apperr.ErrInvalidArgument)
	}
	if p.TrialDays < 0 {
		return fmt.Errorf("trial days must not be negative: %w", apperr.ErrInvalidArgument)
	}
	if p.Type == model.PlanFree && !p.Price.IsZero() {
		return fmt.Errorf("free plan must have zero price: %w", apperr.ErrInvalidArgument)
	}
	return nil
}

// IsFree 免费套餐或折后总价为 0
func IsFree(p *model.SubscriptionPlan) bool {
	return p.Type == model.PlanFree || TotalPrice(p).IsZero()
}
