package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 账单状态
const (
	BillingPending  = "PENDING"
	BillingPaid     = "PAID"
	BillingOverdue  = "OVERDUE"
	BillingFailed   = "FAILED"
	BillingRefunded = "REFUNDED"
)

type PluginBilling struct {
	ID                 int64           `gorm:"primaryKey" json:"id"`
	SubscriptionID     int64           `gorm:"not null;index" json:"subscription_id"`
	Reference          string          `gorm:"size:36;uniqueIndex" json:"reference"`
	Amount             decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency           string          `gorm:"size:3;default:USD" json:"currency"`
	BillingDate        time.Time       `gorm:"not null" json:"billing_date"`
	DueDate            time.Time       `gorm:"not null;index" json:"due_date"`
	Status             string          `gorm:"size:20;default:PENDING;index" json:"status"`
	BillingPeriodStart time.Time       `json:"billing_period_start"`
	BillingPeriodEnd   *time.Time      `json:"billing_period_end,omitempty"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	Description        string          `gorm:"size:255" json:"description,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (PluginBilling) TableName() string {
	return "plugin_billings"
}
