package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/plugin_go_server/internal/model"
)

type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) Create(plan *model.SubscriptionPlan) error {
	return translate(r.db.Create(plan).Error, "plan", plan.Name)
}

func (r *PlanRepository) GetByID(id int64) (*model.SubscriptionPlan, error) {
	var plan model.SubscriptionPlan
	if err := r.db.Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, translate(err, "plan", id)
	}
	return &plan, nil
}

// ListByPlugin activeOnly 为 true 时只返回上架套餐
func (r *PlanRepository) ListByPlugin(pluginID int64, activeOnly bool) ([]*model.SubscriptionPlan, error) {
	var plans []*model.SubscriptionPlan
	query := r.db.Where("plugin_id = ?", pluginID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	err := query.Order("id ASC").Find(&plans).Error
	return plans, err
}

func (r *PlanRepository) Update(plan *model.SubscriptionPlan) error {
	return r.db.Save(plan).Error
}

func (r *PlanRepository) SetActive(id int64, active bool) error {
	res := r.db.Model(&model.SubscriptionPlan{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		_, err := r.GetByID(id)
		return err
	}
	return nil
}
