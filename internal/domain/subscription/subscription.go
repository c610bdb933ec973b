// Package subscription 订阅状态机、父子订阅与周期计算
package subscription

import (
	"fmt"
	"time"

	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
)

const entity = "subscription"

func statusIn(s *model.PluginSubscription, statuses ...string) bool {
	for _, st := range statuses {
		if s.Status == st {
			return true
		}
	}
	return false
}

func CanActivate(s *model.PluginSubscription) bool {
	return statusIn(s, model.SubPending, model.SubSuspended, model.SubTrial)
}

func CanSuspend(s *model.PluginSubscription) bool {
	return statusIn(s, model.SubActive, model.SubTrial)
}

func CanCancel(s *model.PluginSubscription) bool {
	return s.Status != model.SubCancelled
}

func CanRenew(s *model.PluginSubscription) bool {
	return statusIn(s, model.SubActive, model.SubExpired) && s.AutoRenew
}

func CanExtendTrial(s *model.PluginSubscription, now time.Time) bool {
	return s.Status == model.SubTrial && s.TrialEndDate != nil && s.TrialEndDate.After(now) && !s.IsChild()
}

// CanChangePlan 子订阅继承父订阅套餐，不能自行变更
func CanChangePlan(s *model.PluginSubscription) bool {
	return s.Status == model.SubActive && s.PlanID != nil && !s.IsChild()
}

func CanHaveChildren(s *model.PluginSubscription) bool {
	return (s.Scope == model.ScopeTenant || s.Scope == model.ScopeOrganization) &&
		statusIn(s, model.SubActive, model.SubTrial, model.SubPending) &&
		!s.IsChild()
}

// Activate PENDING|SUSPENDED|TRIAL -> ACTIVE
func Activate(s *model.PluginSubscription) error {
	if !CanActivate(s) {
		return apperr.Transition(entity, "activate", s.Status)
	}
	s.Status = model.SubActive
	s.SuspensionReason = ""
	return nil
}

// Suspend ACTIVE|TRIAL -> SUSPENDED
func Suspend(s *model.PluginSubscription, reason string) error {
	if !CanSuspend(s) {
		return apperr.Transition(entity, "suspend", s.Status)
	}
	s.Status = model.SubSuspended
	s.SuspensionReason = reason
	return nil
}

// Cancel 除 CANCELLED 外均可取消，清空套餐并关闭自动续费
func Cancel(s *model.PluginSubscription, reason string, now time.Time) error {
	if !CanCancel(s) {
		return apperr.Transition(entity, "cancel", s.Status)
	}
	s.Status = model.SubCancelled
	s.PlanID = nil
	s.AutoRenew = false
	s.CancelledAt = &now
	s.CancellationReason = reason
	return nil
}

// Expire 无条件过期，由定时任务触发
func Expire(s *model.PluginSubscription) {
	s.Status = model.SubExpired
}

// Renew ACTIVE|EXPIRED 且开启自动续费 -> ACTIVE
func Renew(s *model.PluginSubscription, newEndDate time.Time) error {
	if !CanRenew(s) {
		return apperr.Transition(entity, "renew", s.Status)
	}
	if newEndDate.Before(s.StartDate) {
		return fmt.Errorf("end date %s before start date %s: %w",
			newEndDate.Format(time.RFC3339), s.StartDate.Format(time.RFC3339), apperr.ErrInvalidArgument)
	}
	s.Status = model.SubActive
	s.EndDate = &newEndDate
	s.RenewalCount++
	return nil
}

// ExtendTrial 延长试用期，结束日期随之顺延
func ExtendTrial(s *model.PluginSubscription, days int, now time.Time) error {
	if days <= 0 {
		return fmt.Errorf("trial extension must be positive, got %d: %w", days, apperr.ErrInvalidArgument)
	}
	if !CanExtendTrial(s, now) {
		return apperr.Transition(entity, "extend trial", s.Status)
	}
	trialEnd := s.TrialEndDate.AddDate(0, 0, days)
	s.TrialEndDate = &trialEnd
	if s.EndDate != nil && s.EndDate.Before(trialEnd) {
		end := trialEnd
		s.EndDate = &end
	}
	return nil
}

// ChangePlan 升级和降级共用的守卫与赋值
func ChangePlan(s *model.PluginSubscription, planID int64) error {
	if !CanChangePlan(s) {
		return apperr.Transition(entity, "change plan", s.Status)
	}
	if *s.PlanID == planID {
		return fmt.Errorf("subscription already on plan %d: %w", planID, apperr.ErrInvalidArgument)
	}
	s.PlanID = &planID
	return nil
}

// NewChild 由租户或组织订阅派生用户级子订阅
func NewChild(parent *model.PluginSubscription, subscriberID, createdBy int64, now time.Time) (*model.PluginSubscription, error) {
	if !CanHaveChildren(parent) {
		if parent.IsChild() {
			return nil, apperr.Transition(entity, "create child of child", parent.Status)
		}
		return nil, apperr.Transition(entity, "create child from "+string(parent.Scope), parent.Status)
	}
	if subscriberID <= 0 {
		return nil, fmt.Errorf("child subscription needs a subscriber: %w", apperr.ErrInvalidArgument)
	}
	parentID := parent.ID
	child := &model.PluginSubscription{
		PluginID:       parent.PluginID,
		PluginTenantID: parent.PluginTenantID,
		TenantID:       parent.TenantID,
		OrganizationID: parent.OrganizationID,
		PlanID:         copyInt64(parent.PlanID),
		SubscriberID:   &subscriberID,
		ParentID:       &parentID,
		Status:         model.SubActive,
		Scope:          model.ScopeUser,
		StartDate:      now,
		EndDate:        copyTime(parent.EndDate),
		TrialEndDate:   copyTime(parent.TrialEndDate),
		AutoRenew:      false,
		Version:        1,
		CreatedBy:      createdBy,
	}
	return child, nil
}

// IsActive 状态为 ACTIVE/TRIAL 且未到结束日期
func IsActive(s *model.PluginSubscription, now time.Time) bool {
	if !statusIn(s, model.SubActive, model.SubTrial) {
		return false
	}
	return s.EndDate == nil || s.EndDate.After(now)
}

// GrantsAccessToUser 按订阅范围判断用户是否获得使用权
func GrantsAccessToUser(s *model.PluginSubscription, userID, organizationID int64, now time.Time) bool {
	if !IsActive(s, now) {
		return false
	}
	switch s.Scope {
	case model.ScopeUser:
		return s.SubscriberID != nil && *s.SubscriberID == userID
	case model.ScopeOrganization:
		return organizationID != 0 && s.OrganizationID == organizationID
	case model.ScopeTenant:
		return true
	}
	return false
}

// ValidateDates endDate 不得早于 startDate
func ValidateDates(s *model.PluginSubscription) error {
	if s.EndDate != nil && s.EndDate.Before(s.StartDate) {
		return fmt.Errorf("end date before start date: %w", apperr.ErrInvalidArgument)
	}
	if s.TrialEndDate != nil && s.TrialEndDate.Before(s.StartDate) {
		return fmt.Errorf("trial end date before start date: %w", apperr.ErrInvalidArgument)
	}
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
