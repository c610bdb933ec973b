package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/plugin_go_server/internal/model"
)

// liveStatuses 仍可能授予访问权限的订阅状态
var liveStatuses = []string{model.SubActive, model.SubTrial, model.SubPending}

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(sub *model.PluginSubscription) error {
	if sub.Version == 0 {
		sub.Version = 1
	}
	return translate(r.db.Create(sub).Error, "subscription", sub.PluginTenantID)
}

// CreateWithFirstBill 订阅与首期账单在同一事务中写入
func (r *SubscriptionRepository) CreateWithFirstBill(sub *model.PluginSubscription, bill *model.PluginBilling) error {
	if sub.Version == 0 {
		sub.Version = 1
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return translate(err, "subscription", sub.PluginTenantID)
		}
		bill.SubscriptionID = sub.ID
		return translate(tx.Create(bill).Error, "billing", bill.Reference)
	})
}

func (r *SubscriptionRepository) GetByID(id int64) (*model.PluginSubscription, error) {
	var sub model.PluginSubscription
	if err := r.db.Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, translate(err, "subscription", id)
	}
	return &sub, nil
}

// SaveVersioned 版本号不一致时返回 ErrConflict，调用方重新读取后重试
func (r *SubscriptionRepository) SaveVersioned(sub *model.PluginSubscription) error {
	expected := sub.Version
	sub.Version = expected + 1

	res := r.db.Model(sub).Where("version = ?", expected).
		Select("*").Omit("id", "created_at").
		Updates(sub)
	if res.Error != nil {
		sub.Version = expected
		return res.Error
	}
	if res.RowsAffected == 0 {
		sub.Version = expected
		return conflict("subscription", sub.ID)
	}
	return nil
}

func (r *SubscriptionRepository) ListChildren(parentID int64) ([]*model.PluginSubscription, error) {
	var children []*model.PluginSubscription
	err := r.db.Where("parent_id = ?", parentID).Order("id ASC").Find(&children).Error
	return children, err
}

// CountLiveGrants 统计同一授权记录下、除 excludeID 外仍授予该用户的订阅数
func (r *SubscriptionRepository) CountLiveGrants(pluginTenantID, userID, excludeID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.PluginSubscription{}).
		Where("plugin_tenant_id = ? AND subscriber_id = ? AND id <> ?", pluginTenantID, userID, excludeID).
		Where("status IN ?", liveStatuses).
		Count(&count).Error
	return count, err
}

// ListExpireDue 结束日期已过且尚未终止的订阅
func (r *SubscriptionRepository) ListExpireDue(now time.Time, limit int) ([]*model.PluginSubscription, error) {
	var subs []*model.PluginSubscription
	err := r.db.Where("status IN ?", []string{model.SubActive, model.SubTrial, model.SubPending, model.SubSuspended}).
		Where("end_date IS NOT NULL AND end_date <= ?", now).
		Order("end_date ASC").Limit(limit).
		Find(&subs).Error
	return subs, err
}

// ListRenewable 在 before 之前到期、开启自动续费的顶层付费订阅
func (r *SubscriptionRepository) ListRenewable(before time.Time, limit int) ([]*model.PluginSubscription, error) {
	var subs []*model.PluginSubscription
	err := r.db.Where("status IN ?", []string{model.SubActive, model.SubExpired}).
		Where("auto_renew = ? AND parent_id IS NULL AND plan_id IS NOT NULL", true).
		Where("end_date IS NOT NULL AND end_date <= ?", before).
		Order("end_date ASC").Limit(limit).
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) ListByTenant(tenantID int64, status string, page, pageSize int) ([]*model.PluginSubscription, int64, error) {
	var subs []*model.PluginSubscription
	var total int64

	query := r.db.Model(&model.PluginSubscription{}).Where("tenant_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Scopes(paginate(page, pageSize)).Order("id DESC").Find(&subs).Error
	return subs, total, err
}
