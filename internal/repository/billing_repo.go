package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/plugin_go_server/internal/model"
)

type BillingRepository struct {
	db *gorm.DB
}

func NewBillingRepository(db *gorm.DB) *BillingRepository {
	return &BillingRepository{db: db}
}

func (r *BillingRepository) Create(bill *model.PluginBilling) error {
	return translate(r.db.Create(bill).Error, "billing", bill.Reference)
}

func (r *BillingRepository) GetByID(id int64) (*model.PluginBilling, error) {
	var bill model.PluginBilling
	if err := r.db.Where("id = ?", id).First(&bill).Error; err != nil {
		return nil, translate(err, "billing", id)
	}
	return &bill, nil
}

func (r *BillingRepository) GetByReference(ref string) (*model.PluginBilling, error) {
	var bill model.PluginBilling
	if err := r.db.Where("reference = ?", ref).First(&bill).Error; err != nil {
		return nil, translate(err, "billing", ref)
	}
	return &bill, nil
}

// SaveFrom 仅当库中状态仍为 from 时写入
func (r *BillingRepository) SaveFrom(bill *model.PluginBilling, from string) error {
	res := r.db.Model(bill).Where("status = ?", from).
		Select("*").Omit("id", "created_at").
		Updates(bill)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return conflict("billing", bill.ID)
	}
	return nil
}

// ListBySubscription 按到期日升序
func (r *BillingRepository) ListBySubscription(subscriptionID int64) ([]model.PluginBilling, error) {
	var bills []model.PluginBilling
	err := r.db.Where("subscription_id = ?", subscriptionID).Order("due_date ASC, id ASC").Find(&bills).Error
	return bills, err
}

func (r *BillingRepository) CountBySubscription(subscriptionID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.PluginBilling{}).Where("subscription_id = ?", subscriptionID).Count(&count).Error
	return count, err
}

// ListPendingPastDue 到期日已过仍未支付的账单
func (r *BillingRepository) ListPendingPastDue(now time.Time, limit int) ([]*model.PluginBilling, error) {
	var bills []*model.PluginBilling
	err := r.db.Where("status = ? AND due_date < ?", model.BillingPending, now).
		Order("due_date ASC").Limit(limit).
		Find(&bills).Error
	return bills, err
}
