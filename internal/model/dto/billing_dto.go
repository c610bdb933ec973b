package dto

import "time"

type CreateCycleBillRequest struct {
	PeriodStart *time.Time `json:"period_start,omitempty"`
}

// BillingSummary 订阅的账单概览
type BillingSummary struct {
	SubscriptionID  int64      `json:"subscription_id"`
	NextBillingDate *time.Time `json:"next_billing_date,omitempty"`
	BillingDue      bool       `json:"billing_due"`
}
