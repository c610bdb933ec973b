// Package billing 账单状态机与计费投影
package billing

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
)

const entity = "billing"

// 账单状态合法流转
var transitions = map[string][]string{
	model.BillingPending: {model.BillingPaid, model.BillingOverdue, model.BillingFailed},
	model.BillingOverdue: {model.BillingPaid, model.BillingFailed},
	model.BillingPaid:    {model.BillingRefunded},
}

// IsBillable 有套餐、未取消且不是子订阅
func IsBillable(s *model.PluginSubscription) bool {
	return s.PlanID != nil && s.Status != model.SubCancelled && s.ParentID == nil
}

// New 生成一条待支付账单
func New(subscriptionID int64, amount decimal.Decimal, currency string, periodStart time.Time, periodEnd *time.Time, now time.Time, dueDays int) *model.PluginBilling {
	if currency == "" {
		currency = "USD"
	}
	return &model.PluginBilling{
		SubscriptionID:     subscriptionID,
		Reference:          uuid.NewString(),
		Amount:             amount,
		Currency:           currency,
		BillingDate:        now,
		DueDate:            now.AddDate(0, 0, dueDays),
		Status:             model.BillingPending,
		BillingPeriodStart: periodStart,
		BillingPeriodEnd:   periodEnd,
	}
}

func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func transition(b *model.PluginBilling, to, action string) error {
	if !CanTransition(b.Status, to) {
		return apperr.Transition(entity, action, b.Status)
	}
	b.Status = to
	return nil
}

func MarkPaid(b *model.PluginBilling, now time.Time) error {
	if err := transition(b, model.BillingPaid, "pay"); err != nil {
		return err
	}
	b.PaidAt = &now
	return nil
}

func MarkOverdue(b *model.PluginBilling) error {
	return transition(b, model.BillingOverdue, "mark overdue")
}

func MarkFailed(b *model.PluginBilling) error {
	return transition(b, model.BillingFailed, "fail")
}

func Refund(b *model.PluginBilling) error {
	return transition(b, model.BillingRefunded, "refund")
}

// IsOverdue 仍待支付且已过到期日
func IsOverdue(b *model.PluginBilling, now time.Time) bool {
	return b.Status == model.BillingPending && now.After(b.DueDate)
}

// pendingByDueDate 按到期日升序的待支付账单，不修改入参
func pendingByDueDate(bills []model.PluginBilling) []model.PluginBilling {
	out := make([]model.PluginBilling, 0, len(bills))
	for _, b := range bills {
		if b.Status == model.BillingPending {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out
}

// NextBillingDate 最早一笔待支付账单的到期日
func NextBillingDate(bills []model.PluginBilling) (time.Time, bool) {
	pending := pendingByDueDate(bills)
	if len(pending) == 0 {
		return time.Time{}, false
	}
	return pending[0].DueDate, true
}

// IsBillingDue 是否存在已到期的待支付账单
func IsBillingDue(bills []model.PluginBilling, now time.Time) bool {
	next, ok := NextBillingDate(bills)
	return ok && !now.Before(next)
}
