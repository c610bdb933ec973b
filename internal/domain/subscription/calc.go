package subscription

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/qs3c/plugin_go_server/internal/model"
)

const day = 24 * time.Hour

var hundred = decimal.NewFromInt(100)

// 不足一天按一天计
func ceilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + day - 1) / day)
}

// RemainingDays 距 endDate 的天数，无 endDate 时 bounded 为 false
func RemainingDays(s *model.PluginSubscription, now time.Time) (days int, bounded bool) {
	if s.EndDate == nil {
		return 0, false
	}
	return ceilDays(s.EndDate.Sub(now)), true
}

// TotalPeriodDays startDate 到 endDate 的天数
func TotalPeriodDays(s *model.PluginSubscription) int {
	if s.EndDate == nil {
		return 0
	}
	return ceilDays(s.EndDate.Sub(s.StartDate))
}

// UsedDays 已使用的整天数，限制在 [0, total]
func UsedDays(s *model.PluginSubscription, now time.Time) int {
	used := 0
	if now.After(s.StartDate) {
		used = int(now.Sub(s.StartDate) / day)
	}
	if total := TotalPeriodDays(s); s.EndDate != nil && used > total {
		used = total
	}
	return used
}

// 剩余天数占整个周期的比例，无界或周期为 0 时 ok 为 false
func remainingRatio(s *model.PluginSubscription, now time.Time) (remaining, total int, ok bool) {
	remaining, bounded := RemainingDays(s, now)
	total = TotalPeriodDays(s)
	if !bounded || total == 0 {
		return 0, 0, false
	}
	if remaining > total {
		remaining = total
	}
	return remaining, total, true
}

// ProratedAmount (newPrice − oldPrice) × remaining / total，不小于 0
func ProratedAmount(s *model.PluginSubscription, oldPrice, newPrice decimal.Decimal, now time.Time) decimal.Decimal {
	remaining, total, ok := remainingRatio(s, now)
	if !ok {
		return decimal.Zero
	}
	amount := newPrice.Sub(oldPrice).
		Mul(decimal.NewFromInt(int64(remaining))).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// CreditAmount 当前周期未使用部分折算的退款额
func CreditAmount(s *model.PluginSubscription, pricePerPeriod decimal.Decimal, now time.Time) decimal.Decimal {
	remaining, total, ok := remainingRatio(s, now)
	if !ok {
		return decimal.Zero
	}
	return pricePerPeriod.
		Mul(decimal.NewFromInt(int64(remaining))).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)
}

// UsagePercentage usedDays / total × 100，限制在 [0,100]
func UsagePercentage(s *model.PluginSubscription, now time.Time) decimal.Decimal {
	total := TotalPeriodDays(s)
	if total == 0 {
		return decimal.Zero
	}
	pct := decimal.NewFromInt(int64(UsedDays(s, now))).
		Div(decimal.NewFromInt(int64(total))).
		Mul(hundred).
		Round(2)
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// QualifiesForRefund ACTIVE/TRIAL 且开始后不超过 policyDays 天
func QualifiesForRefund(s *model.PluginSubscription, policyDays int, now time.Time) bool {
	if !statusIn(s, model.SubActive, model.SubTrial) {
		return false
	}
	since := 0
	if now.After(s.StartDate) {
		since = int(now.Sub(s.StartDate) / day)
	}
	return since <= policyDays
}

// MaxRenewalDiscountPct 续费折扣上限，配置只能调低
var MaxRenewalDiscountPct = decimal.NewFromInt(50)

// RenewalPrice basePrice × (1 − min(loyaltyPct × renewalCount, capPct, 50) / 100)
func RenewalPrice(s *model.PluginSubscription, basePrice, loyaltyPct, capPct decimal.Decimal) decimal.Decimal {
	if capPct.GreaterThan(MaxRenewalDiscountPct) {
		capPct = MaxRenewalDiscountPct
	}
	discount := loyaltyPct.Mul(decimal.NewFromInt(int64(s.RenewalCount)))
	if discount.GreaterThan(capPct) {
		discount = capPct
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return basePrice.Mul(decimal.NewFromInt(1).Sub(discount.Div(hundred))).Round(2)
}
