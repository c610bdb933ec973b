package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/qs3c/plugin_go_server/internal/domain/plan"
	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/model/dto"
	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
	"github.com/qs3c/plugin_go_server/internal/repository"
)

type PlanService struct {
	planRepo   *repository.PlanRepository
	pluginRepo *repository.PluginRepository
	Deps
}

func NewPlanService(planRepo *repository.PlanRepository, pluginRepo *repository.PluginRepository, deps Deps) *PlanService {
	return &PlanService{planRepo: planRepo, pluginRepo: pluginRepo, Deps: deps.withDefaults()}
}

func applyPlanRequest(p *model.SubscriptionPlan, req *dto.CreatePlanRequest) {
	p.Name = req.Name
	p.Type = req.Type
	p.Price = req.Price.Round(2)
	p.Currency = req.Currency
	if p.Currency == "" {
		p.Currency = "USD"
	}
	p.BillingPeriod = req.BillingPeriod
	p.Features = model.StringArray(req.Features)
	p.TrialDays = req.TrialDays
	p.SetupFee = req.SetupFee.Round(2)
	p.DiscountPercentage = decimal.Zero
	if req.DiscountPercentage != nil {
		p.DiscountPercentage = *req.DiscountPercentage
	}
}

func (s *PlanService) Create(pluginID int64, req *dto.CreatePlanRequest) (*model.SubscriptionPlan, error) {
	if _, err := s.pluginRepo.GetByID(pluginID); err != nil {
		return nil, err
	}

	p := &model.SubscriptionPlan{PluginID: pluginID, IsActive: true}
	applyPlanRequest(p, req)
	if err := plan.Validate(p); err != nil {
		return nil, err
	}
	if err := s.planRepo.Create(p); err != nil {
		return nil, err
	}

	s.Log.WithField("plan_id", p.ID).WithField("plugin_id", pluginID).Info("plan created")
	return p, nil
}

func (s *PlanService) Get(id int64) (*model.SubscriptionPlan, error) {
	return s.planRepo.GetByID(id)
}

func (s *PlanService) List(pluginID int64, activeOnly bool) ([]*model.SubscriptionPlan, error) {
	return s.planRepo.ListByPlugin(pluginID, activeOnly)
}

// Update 整体替换套餐定义，已有订阅按新价格续费
func (s *PlanService) Update(id int64, req *dto.CreatePlanRequest) (*model.SubscriptionPlan, error) {
	p, err := s.planRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	applyPlanRequest(p, req)
	if err := plan.Validate(p); err != nil {
		return nil, err
	}
	if err := s.planRepo.Update(p); err != nil {
		return nil, err
	}
	return p, nil
}

// SetActive 下架后不能再被新订阅选用
func (s *PlanService) SetActive(id int64, active bool) (*model.SubscriptionPlan, error) {
	if err := s.planRepo.SetActive(id, active); err != nil {
		return nil, err
	}
	return s.planRepo.GetByID(id)
}

// Compare 按月价比较两个套餐；一年付一月付时附带年度节省
func (s *PlanService) Compare(aID, bID int64) (*dto.PlanComparison, error) {
	a, err := s.planRepo.GetByID(aID)
	if err != nil {
		return nil, err
	}
	b, err := s.planRepo.GetByID(bID)
	if err != nil {
		return nil, err
	}
	if a.Currency != b.Currency {
		return nil, fmt.Errorf("plans are priced in %s and %s: %w", a.Currency, b.Currency, apperr.ErrInvalidArgument)
	}

	cmp := &dto.PlanComparison{
		PlanA:        a.ID,
		PlanB:        b.ID,
		MonthlyA:     plan.PlanMonthlyEquivalent(a),
		MonthlyB:     plan.PlanMonthlyEquivalent(b),
		Comparison:   plan.ComparePlans(a, b),
		ABetterValue: plan.IsBetterValue(a, b),
	}

	savings, err := plan.AnnualSavings(a, b)
	switch {
	case err == nil:
		pct, err := plan.SavingsPercentage(a, b)
		if err != nil {
			return nil, err
		}
		cmp.AnnualSavings = &savings
		cmp.SavingsPercentage = &pct
	case !errors.Is(err, apperr.ErrInvalidArgument):
		return nil, err
	}
	return cmp, nil
}
