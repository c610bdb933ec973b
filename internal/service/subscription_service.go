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

// 批量任务单次处理的上限
const batchSize = 500

type SubscriptionService struct {
	subRepo      *repository.SubscriptionRepository
	planRepo     *repository.PlanRepository
	billingRepo  *repository.BillingRepository
	entitlements *EntitlementService
	cfg          *config.Config
	Deps
}

func NewSubscriptionService(
	subRepo *repository.SubscriptionRepository,
	planRepo *repository.PlanRepository,
	billingRepo *repository.BillingRepository,
	entitlements *EntitlementService,
	cfg *config.Config,
	deps Deps,
) *SubscriptionService {
	return &SubscriptionService{
		subRepo:      subRepo,
		planRepo:     planRepo,
		billingRepo:  billingRepo,
		entitlements: entitlements,
		cfg:          cfg,
		Deps:         deps.withDefaults(),
	}
}

// NewSubscription 创建订阅的输入
type NewSubscription struct {
	PluginTenantID int64
	PlanID         int64 // 0 表示不绑定套餐
	Scope          model.Scope
	SubscriberID   int64 // USER 范围必填
	StartDate      time.Time
}

// prepare 校验授权记录、范围与套餐，返回待填充状态的订阅
func (s *SubscriptionService) prepare(ctx context.Context, principal Principal, in NewSubscription) (*model.PluginSubscription, *model.SubscriptionPlan, error) {
	pt, err := s.entitlements.GetOwned(ctx, principal, in.PluginTenantID)
	if err != nil {
		return nil, nil, err
	}

	scope := in.Scope
	if scope == "" {
		scope = pt.Scope
	}
	if !scope.Valid() {
		return nil, nil, fmt.Errorf("scope %q: %w", scope, apperr.ErrInvalidArgument)
	}
	if scope == model.ScopeUser && in.SubscriberID <= 0 {
		return nil, nil, fmt.Errorf("user scoped subscription needs a subscriber: %w", apperr.ErrInvalidArgument)
	}
	if scope == model.ScopeOrganization && pt.OrganizationID == 0 {
		return nil, nil, fmt.Errorf("entitlement %d has no organization: %w", pt.ID, apperr.ErrInvalidArgument)
	}

	var p *model.SubscriptionPlan
	if in.PlanID > 0 {
		p, err = s.planRepo.GetByID(in.PlanID)
		if err != nil {
			return nil, nil, err
		}
		if p.PluginID != pt.PluginID || !p.IsActive {
			return nil, nil, fmt.Errorf("plan %d is not offered for plugin %d: %w", p.ID, pt.PluginID, apperr.ErrInvalidArgument)
		}
	}

	start := in.StartDate.UTC()
	if in.StartDate.IsZero() {
		start = s.now()
	}
	sub := &model.PluginSubscription{
		PluginID:       pt.PluginID,
		PluginTenantID: pt.ID,
		TenantID:       pt.TenantID,
		OrganizationID: pt.OrganizationID,
		Scope:          scope,
		StartDate:      start,
		Version:        1,
		CreatedBy:      principal.UserID,
	}
	if p != nil {
		sub.PlanID = &p.ID
	}
	if scope == model.ScopeUser {
		subscriber := in.SubscriberID
		sub.SubscriberID = &subscriber
	}
	return sub, p, nil
}

// CreateFreeSubscription ACTIVE、不过期、不自动续费
func (s *SubscriptionService) CreateFreeSubscription(ctx context.Context, principal Principal, in NewSubscription) (*model.PluginSubscription, error) {
	sub, p, err := s.prepare(ctx, principal, in)
	if err != nil {
		return nil, err
	}
	if p != nil && !plan.IsFree(p) {
		return nil, fmt.Errorf("plan %d is not free: %w", p.ID, apperr.ErrInvalidArgument)
	}
	sub.Status = model.SubActive
	sub.AutoRenew = false

	return s.persistNew(ctx, sub, nil, "created_free")
}

// CreateTrialSubscription 试用天数取套餐配置，未配置时用默认值
func (s *SubscriptionService) CreateTrialSubscription(ctx context.Context, principal Principal, in NewSubscription) (*model.PluginSubscription, error) {
	sub, p, err := s.prepare(ctx, principal, in)
	if err != nil {
		return nil, err
	}
	days := s.cfg.Subscription.DefaultTrialDays
	if p != nil && p.TrialDays > 0 {
		days = p.TrialDays
	}
	if days <= 0 {
		return nil, fmt.Errorf("trial length must be positive: %w", apperr.ErrInvalidArgument)
	}

	trialEnd := sub.StartDate.AddDate(0, 0, days)
	end := trialEnd
	sub.Status = model.SubTrial
	sub.TrialEndDate = &trialEnd
	sub.EndDate = &end
	sub.AutoRenew = true

	return s.persistNew(ctx, sub, nil, "created_trial")
}

// CreatePaidSubscription PENDING，同时生成首期账单，支付后激活
func (s *SubscriptionService) CreatePaidSubscription(ctx context.Context, principal Principal, in NewSubscription) (*model.PluginSubscription, error) {
	if in.PlanID <= 0 {
		return nil, fmt.Errorf("paid subscription needs a plan: %w", apperr.ErrInvalidArgument)
	}
	sub, p, err := s.prepare(ctx, principal, in)
	if err != nil {
		return nil, err
	}
	if plan.IsFree(p) {
		return nil, fmt.Errorf("plan %d is free: %w", p.ID, apperr.ErrInvalidArgument)
	}

	sub.Status = model.SubPending
	if end, ok := plan.AddPeriod(sub.StartDate, p.BillingPeriod); ok {
		sub.EndDate = &end
		sub.AutoRenew = true
	}

	bill := billing.New(0, plan.TotalPrice(p), p.Currency, sub.StartDate, sub.EndDate, s.now(), s.cfg.Subscription.BillingDueDays)
	bill.Description = fmt.Sprintf("%s (%s)", p.Name, p.BillingPeriod)
	return s.persistNew(ctx, sub, bill, "created_paid")
}

func (s *SubscriptionService) persistNew(ctx context.Context, sub *model.PluginSubscription, firstBill *model.PluginBilling, event string) (*model.PluginSubscription, error) {
	if err := subscription.ValidateDates(sub); err != nil {
		return nil, err
	}

	var err error
	if firstBill != nil {
		err = s.subRepo.CreateWithFirstBill(sub, firstBill)
	} else {
		err = s.subRepo.Create(sub)
	}
	if err != nil {
		return nil, err
	}

	if sub.SubscriberID != nil {
		if _, err := s.entitlements.AllowUser(ctx, sub.PluginTenantID, *sub.SubscriberID); err != nil {
			return nil, err
		}
	}

	s.Metrics.SubscriptionEvents.WithLabelValues(event).Inc()
	s.Log.WithFields(logrus.Fields{
		"subscription_id": sub.ID,
		"entitlement_id":  sub.PluginTenantID,
		"status":          sub.Status,
		"scope":           sub.Scope,
	}).Info("subscription created")
	return sub, nil
}

// CreateChildSubscription 占用一个活跃用户名额，并把订阅用户加入白名单
func (s *SubscriptionService) CreateChildSubscription(ctx context.Context, principal Principal, parentID, subscriberID int64) (*model.PluginSubscription, error) {
	parent, err := s.GetOwned(principal, parentID)
	if err != nil {
		return nil, err
	}
	child, err := subscription.NewChild(parent, subscriberID, principal.UserID, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.entitlements.CheckAndIncrementActiveUsers(ctx, parent.PluginTenantID); err != nil {
		return nil, err
	}
	if err := s.subRepo.Create(child); err != nil {
		if rerr := s.entitlements.ReleaseActiveUser(ctx, parent.PluginTenantID); rerr != nil {
			s.Log.WithError(rerr).WithField("entitlement_id", parent.PluginTenantID).Error("failed to release active user slot")
		}
		return nil, err
	}
	if _, err := s.entitlements.AllowUser(ctx, parent.PluginTenantID, subscriberID); err != nil {
		return nil, err
	}

	s.Metrics.SubscriptionEvents.WithLabelValues("child_created").Inc()
	s.Log.WithFields(logrus.Fields{
		"subscription_id": child.ID,
		"parent_id":       parent.ID,
		"subscriber_id":   subscriberID,
	}).Info("child subscription created")
	return child, nil
}

func (s *SubscriptionService) Get(id int64) (*model.PluginSubscription, error) {
	return s.subRepo.GetByID(id)
}

// GetOwned 只返回调用方租户下的订阅
func (s *SubscriptionService) GetOwned(principal Principal, id int64) (*model.PluginSubscription, error) {
	sub, err := s.subRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(principal, sub.TenantID, "subscription", id); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SubscriptionService) ListChildren(parentID int64) ([]*model.PluginSubscription, error) {
	if _, err := s.subRepo.GetByID(parentID); err != nil {
		return nil, err
	}
	return s.subRepo.ListChildren(parentID)
}

func (s *SubscriptionService) ListByTenant(tenantID int64, status string, page, pageSize int) ([]*model.PluginSubscription, int64, error) {
	return s.subRepo.ListByTenant(tenantID, status, page, pageSize)
}

func (s *SubscriptionService) Activate(ctx context.Context, id int64) (*model.PluginSubscription, error) {
	return s.transition(ctx, id, "activate", subscription.Activate)
}

func (s *SubscriptionService) Suspend(ctx context.Context, id int64, reason string) (*model.PluginSubscription, error) {
	return s.transition(ctx, id, "suspend", func(sub *model.PluginSubscription) error {
		return subscription.Suspend(sub, reason)
	})
}

// Cancel cascade 为 true 时逐个取消子订阅，单个失败不回滚已完成的部分
func (s *SubscriptionService) Cancel(ctx context.Context, id int64, reason string, cascade bool) (*model.PluginSubscription, error) {
	sub, err := s.transition(ctx, id, "cancel", func(sub *model.PluginSubscription) error {
		return subscription.Cancel(sub, reason, s.now())
	})
	if err != nil {
		return nil, err
	}

	if err := s.revokeSubscriberAccess(ctx, sub); err != nil {
		return sub, err
	}
	if !cascade || sub.IsChild() {
		return sub, nil
	}

	children, err := s.subRepo.ListChildren(sub.ID)
	if err != nil {
		return sub, err
	}
	var errs []error
	for _, child := range children {
		if child.Status == model.SubCancelled {
			continue
		}
		if _, err := s.Cancel(ctx, child.ID, reason, false); err != nil {
			errs = append(errs, fmt.Errorf("child %d: %w", child.ID, err))
		}
	}
	return sub, errors.Join(errs...)
}

// revokeSubscriberAccess 同一授权记录下没有其他有效订阅授予该用户时才移出白名单
func (s *SubscriptionService) revokeSubscriberAccess(ctx context.Context, sub *model.PluginSubscription) error {
	if sub.SubscriberID == nil {
		return nil
	}
	others, err := s.subRepo.CountLiveGrants(sub.PluginTenantID, *sub.SubscriberID, sub.ID)
	if err != nil {
		return err
	}
	if others > 0 {
		return nil
	}
	_, err = s.entitlements.RemoveAllowedUser(ctx, sub.PluginTenantID, *sub.SubscriberID)
	return err
}

// Expire 由定时任务调用，无条件置为 EXPIRED，白名单保持不变以便续费后恢复
func (s *SubscriptionService) Expire(ctx context.Context, id int64) (*model.PluginSubscription, error) {
	return s.transition(ctx, id, "expire", func(sub *model.PluginSubscription) error {
		subscription.Expire(sub)
		return nil
	})
}

// RenewalBase 下一周期的起点；已过期且结束日期早于当前时间时从当前时间起算
func (s *SubscriptionService) RenewalBase(sub *model.PluginSubscription) time.Time {
	now := s.now()
	if sub.EndDate == nil {
		return now
	}
	if sub.Status == model.SubExpired && sub.EndDate.Before(now) {
		return now
	}
	return *sub.EndDate
}

// Renew newEndDate 为 nil 时从 RenewalBase 顺延一个计费周期
func (s *SubscriptionService) Renew(ctx context.Context, id int64, newEndDate *time.Time) (*model.PluginSubscription, error) {
	sub, err := s.transition(ctx, id, "renew", func(sub *model.PluginSubscription) error {
		if newEndDate != nil {
			return subscription.Renew(sub, newEndDate.UTC())
		}
		if !subscription.CanRenew(sub) {
			return apperr.Transition("subscription", "renew", sub.Status)
		}
		if sub.PlanID == nil {
			return fmt.Errorf("subscription %d has no plan to renew: %w", sub.ID, apperr.ErrInvalidArgument)
		}
		p, err := s.planRepo.GetByID(*sub.PlanID)
		if err != nil {
			return err
		}
		end, ok := plan.AddPeriod(s.RenewalBase(sub), p.BillingPeriod)
		if !ok {
			return fmt.Errorf("plan %d is billed once: %w", p.ID, apperr.ErrInvalidArgument)
		}
		return subscription.Renew(sub, end)
	})
	if err != nil {
		return nil, err
	}

	// 续费后的订阅重新授予订阅用户访问权
	if sub.SubscriberID != nil {
		if _, err := s.entitlements.AllowUser(ctx, sub.PluginTenantID, *sub.SubscriberID); err != nil {
			return sub, err
		}
	}
	return sub, nil
}

func (s *SubscriptionService) ExtendTrial(ctx context.Context, id int64, days int) (*model.PluginSubscription, error) {
	return s.transition(ctx, id, "extend_trial", func(sub *model.PluginSubscription) error {
		return subscription.ExtendTrial(sub, days, s.now())
	})
}

// UpgradeToPlan 目标套餐月均价格必须更高，差价按剩余天数生成账单
func (s *SubscriptionService) UpgradeToPlan(ctx context.Context, id, planID int64) (*model.PluginSubscription, error) {
	return s.changePlan(ctx, id, planID, 1)
}

// DowngradeToPlan 目标套餐月均价格必须更低
func (s *SubscriptionService) DowngradeToPlan(ctx context.Context, id, planID int64) (*model.PluginSubscription, error) {
	return s.changePlan(ctx, id, planID, -1)
}

func (s *SubscriptionService) changePlan(ctx context.Context, id, planID int64, direction int) (*model.PluginSubscription, error) {
	target, err := s.planRepo.GetByID(planID)
	if err != nil {
		return nil, err
	}

	event := "upgrade"
	if direction < 0 {
		event = "downgrade"
	}
	var prorated decimal.Decimal
	sub, err := s.transition(ctx, id, event, func(sub *model.PluginSubscription) error {
		if !subscription.CanChangePlan(sub) {
			return apperr.Transition("subscription", event, sub.Status)
		}
		current, err := s.planRepo.GetByID(*sub.PlanID)
		if err != nil {
			return err
		}
		if target.PluginID != sub.PluginID || !target.IsActive {
			return fmt.Errorf("plan %d is not offered for plugin %d: %w", target.ID, sub.PluginID, apperr.ErrInvalidArgument)
		}
		if plan.ComparePlans(target, current) != direction {
			return fmt.Errorf("plan %d is not a valid %s from plan %d: %w", target.ID, event, current.ID, apperr.ErrInvalidArgument)
		}
		prorated = subscription.ProratedAmount(sub, plan.EffectivePrice(current), plan.EffectivePrice(target), s.now())
		return subscription.ChangePlan(sub, target.ID)
	})
	if err != nil {
		return nil, err
	}

	if direction > 0 && prorated.IsPositive() && billing.IsBillable(sub) {
		now := s.now()
		bill := billing.New(sub.ID, prorated, target.Currency, now, sub.EndDate, now, s.cfg.Subscription.BillingDueDays)
		bill.Description = fmt.Sprintf("proration to %s", target.Name)
		if err := s.billingRepo.Create(bill); err != nil {
			return sub, err
		}
		s.Metrics.BillingEvents.WithLabelValues(model.BillingPending).Inc()
	}
	return sub, nil
}

// transition 读取、校验、按版本写回，冲突时基于最新状态重试
func (s *SubscriptionService) transition(ctx context.Context, id int64, event string, apply func(*model.PluginSubscription) error) (*model.PluginSubscription, error) {
	var result *model.PluginSubscription
	var from string
	err := retryOnConflict(s.cfg.Subscription.MaxRetries, func() {
		s.Metrics.OptimisticRetries.WithLabelValues("subscription").Inc()
	}, func() error {
		sub, err := s.subRepo.GetByID(id)
		if err != nil {
			return err
		}
		from = sub.Status
		if err := apply(sub); err != nil {
			return err
		}
		if err := subscription.ValidateDates(sub); err != nil {
			return err
		}
		if err := s.subRepo.SaveVersioned(sub); err != nil {
			return err
		}
		result = sub
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			s.Log.WithFields(logrus.Fields{"subscription_id": id, "event": event}).Warn("subscription update gave up after retries")
		}
		return nil, err
	}

	s.Metrics.SubscriptionEvents.WithLabelValues(event).Inc()
	s.Log.WithFields(logrus.Fields{
		"subscription_id": id,
		"from":            from,
		"to":              result.Status,
		"event":           event,
	}).Info("subscription transition")

	if result.IsChild() && holdsSlot(from) && !holdsSlot(result.Status) {
		if err := s.entitlements.ReleaseActiveUser(ctx, result.PluginTenantID); err != nil {
			return result, err
		}
	}
	return result, nil
}

// holdsSlot 子订阅在终态之前占用活跃用户名额
func holdsSlot(status string) bool {
	return status != model.SubCancelled && status != model.SubExpired
}

// Quote 计算剩余天数、使用比例、退款资格与续费价；targetPlanID 非 0 时附带差价
func (s *SubscriptionService) Quote(id, targetPlanID int64) (*dto.SubscriptionQuote, error) {
	sub, err := s.subRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	now := s.now()

	q := &dto.SubscriptionQuote{
		SubscriptionID:     sub.ID,
		TotalPeriodDays:    subscription.TotalPeriodDays(sub),
		UsagePercentage:    subscription.UsagePercentage(sub, now),
		QualifiesForRefund: subscription.QualifiesForRefund(sub, s.cfg.Subscription.RefundPolicyDays, now),
	}
	if days, bounded := subscription.RemainingDays(sub, now); bounded {
		q.RemainingDays = &days
	}

	if sub.PlanID == nil {
		if targetPlanID > 0 {
			return nil, fmt.Errorf("subscription %d has no plan to compare: %w", sub.ID, apperr.ErrInvalidArgument)
		}
		return q, nil
	}
	current, err := s.planRepo.GetByID(*sub.PlanID)
	if err != nil {
		return nil, err
	}
	price := plan.EffectivePrice(current)
	credit := subscription.CreditAmount(sub, price, now)
	renewal := subscription.RenewalPrice(sub, price,
		decimal.NewFromFloat(s.cfg.Subscription.LoyaltyDiscountPct),
		decimal.NewFromFloat(s.cfg.Subscription.MaxRenewalDiscountPct))
	q.CreditAmount = &credit
	q.RenewalPrice = &renewal

	if targetPlanID > 0 {
		target, err := s.planRepo.GetByID(targetPlanID)
		if err != nil {
			return nil, err
		}
		prorated := subscription.ProratedAmount(sub, price, plan.EffectivePrice(target), now)
		q.TargetPlanID = target.ID
		q.ProratedAmount = &prorated
	}
	return q, nil
}

// ExpireDue 批量过期结束日期已过的订阅，返回处理条数
func (s *SubscriptionService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	subs, err := s.subRepo.ListExpireDue(now.UTC(), batchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, sub := range subs {
		if _, err := s.Expire(ctx, sub.ID); err != nil {
			s.Log.WithError(err).WithField("subscription_id", sub.ID).Error("failed to expire subscription")
			continue
		}
		expired++
	}
	return expired, nil
}

// ListRenewable 结束日期落在 now + renewal_lead_hours 之前的自动续费订阅
func (s *SubscriptionService) ListRenewable(now time.Time) ([]*model.PluginSubscription, error) {
	lead := time.Duration(s.cfg.Subscription.RenewalLeadHours) * time.Hour
	return s.subRepo.ListRenewable(now.UTC().Add(lead), batchSize)
}
