package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/plugin_go_server/config"
	"github.com/qs3c/plugin_go_server/internal/domain/billing"
	"github.com/qs3c/plugin_go_server/internal/domain/plan"
	"github.com/qs3c/plugin_go_server/internal/domain/subscription"
	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/model/dto"
	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
	"github.com/qs3c/plugin_go_server/internal/repository"
)

type BillingService struct {
	billingRepo   *repository.BillingRepository
	subRepo       *repository.SubscriptionRepository
	planRepo      *repository.PlanRepository
	subscriptions *SubscriptionService
	cfg           *config.Config
	Deps
}

func NewBillingService(
	billingRepo *repository.BillingRepository,
	subRepo *repository.SubscriptionRepository,
	planRepo *repository.PlanRepository,
	subscriptions *SubscriptionService,
	cfg *config.Config,
	deps Deps,
) *BillingService {
	return &BillingService{
		billingRepo:   billingRepo,
		subRepo:       subRepo,
		planRepo:      planRepo,
		subscriptions: subscriptions,
		cfg:           cfg,
		Deps:          deps.withDefaults(),
	}
}

// CreateCycleBill 为下一计费周期出账，金额按续费价计算，周期默认从订阅当前结束日期开始
func (s *BillingService) CreateCycleBill(subscriptionID int64, periodStart *time.Time) (*model.PluginBilling, error) {
	sub, err := s.subRepo.GetByID(subscriptionID)
	if err != nil {
		return nil, err
	}
	if !billing.IsBillable(sub) {
		return nil, fmt.Errorf("subscription %d is not billable: %w", sub.ID, apperr.ErrInvalidArgument)
	}
	p, err := s.planRepo.GetByID(*sub.PlanID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	start := now
	switch {
	case periodStart != nil:
		start = periodStart.UTC()
	case sub.EndDate != nil:
		start = *sub.EndDate
	}
	var end *time.Time
	if e, ok := plan.AddPeriod(start, p.BillingPeriod); ok {
		end = &e
	}

	amount := subscription.RenewalPrice(sub, plan.EffectivePrice(p),
		decimal.NewFromFloat(s.cfg.Subscription.LoyaltyDiscountPct),
		decimal.NewFromFloat(s.cfg.Subscription.MaxRenewalDiscountPct))
	bill := billing.New(sub.ID, amount, p.Currency, start, end, now, s.cfg.Subscription.BillingDueDays)
	bill.Description = fmt.Sprintf("%s (%s)", p.Name, p.BillingPeriod)
	if err := s.billingRepo.Create(bill); err != nil {
		return nil, err
	}

	s.Metrics.BillingEvents.WithLabelValues(model.BillingPending).Inc()
	s.Log.WithFields(logrus.Fields{
		"billing_id":      bill.ID,
		"subscription_id": sub.ID,
		"amount":          bill.Amount.StringFixed(2),
	}).Info("billing created")
	return bill, nil
}

func (s *BillingService) Get(id int64) (*model.PluginBilling, error) {
	return s.billingRepo.GetByID(id)
}

// GetOwned 账单所属订阅不在调用方租户下时按不存在处理
func (s *BillingService) GetOwned(principal Principal, id int64) (*model.PluginBilling, error) {
	bill, err := s.billingRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if err := s.AuthorizeSubscription(principal, bill.SubscriptionID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("billing %d: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return bill, nil
}

// AuthorizeSubscription 订阅须属于调用方租户
func (s *BillingService) AuthorizeSubscription(principal Principal, subscriptionID int64) error {
	sub, err := s.subRepo.GetByID(subscriptionID)
	if err != nil {
		return err
	}
	return ownedBy(principal, sub.TenantID, "subscription", subscriptionID)
}

func (s *BillingService) GetByReference(ref string) (*model.PluginBilling, error) {
	return s.billingRepo.GetByReference(ref)
}

// MarkPaid 首期账单支付后激活 PENDING 订阅
func (s *BillingService) MarkPaid(ctx context.Context, id int64) (*model.PluginBilling, error) {
	bill, err := s.update(id, func(b *model.PluginBilling) error {
		return billing.MarkPaid(b, s.now())
	})
	if err != nil {
		return nil, err
	}

	sub, err := s.subRepo.GetByID(bill.SubscriptionID)
	if err != nil {
		return bill, err
	}
	if sub.Status == model.SubPending {
		if _, err := s.subscriptions.Activate(ctx, sub.ID); err != nil {
			return bill, err
		}
	}
	return bill, nil
}

func (s *BillingService) MarkFailed(id int64) (*model.PluginBilling, error) {
	return s.update(id, billing.MarkFailed)
}

func (s *BillingService) Refund(id int64) (*model.PluginBilling, error) {
	return s.update(id, billing.Refund)
}

// MarkOverdueDue 批量标记逾期账单，返回处理条数
func (s *BillingService) MarkOverdueDue(now time.Time) (int, error) {
	bills, err := s.billingRepo.ListPendingPastDue(now.UTC(), batchSize)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, b := range bills {
		if _, err := s.update(b.ID, billing.MarkOverdue); err != nil {
			// 并发支付后状态已变
			if errors.Is(err, apperr.ErrInvalidTransition) {
				continue
			}
			s.Log.WithError(err).WithField("billing_id", b.ID).Error("failed to mark billing overdue")
			continue
		}
		marked++
	}
	return marked, nil
}

func (s *BillingService) ListForSubscription(subscriptionID int64) ([]model.PluginBilling, error) {
	if _, err := s.subRepo.GetByID(subscriptionID); err != nil {
		return nil, err
	}
	return s.billingRepo.ListBySubscription(subscriptionID)
}

// Summary 下一次待支付日期及是否已到期
func (s *BillingService) Summary(subscriptionID int64) (*dto.BillingSummary, error) {
	bills, err := s.ListForSubscription(subscriptionID)
	if err != nil {
		return nil, err
	}
	summary := &dto.BillingSummary{
		SubscriptionID: subscriptionID,
		BillingDue:     billing.IsBillingDue(bills, s.now()),
	}
	if next, ok := billing.NextBillingDate(bills); ok {
		summary.NextBillingDate = &next
	}
	return summary, nil
}

// update 以读取时的状态为条件写回，并发修改时重新读取
func (s *BillingService) update(id int64, apply func(*model.PluginBilling) error) (*model.PluginBilling, error) {
	var result *model.PluginBilling
	var from string
	err := retryOnConflict(s.cfg.Subscription.MaxRetries, func() {
		s.Metrics.OptimisticRetries.WithLabelValues("billing").Inc()
	}, func() error {
		bill, err := s.billingRepo.GetByID(id)
		if err != nil {
			return err
		}
		from = bill.Status
		if err := apply(bill); err != nil {
			return err
		}
		if err := s.billingRepo.SaveFrom(bill, from); err != nil {
			return err
		}
		result = bill
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.BillingEvents.WithLabelValues(result.Status).Inc()
	s.Log.WithFields(logrus.Fields{
		"billing_id":      id,
		"subscription_id": result.SubscriptionID,
		"from":            from,
		"to":              result.Status,
	}).Info("billing transition")
	return result, nil
}
