package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/qs3c/plugin_go_server/internal/domain/entitlement"
	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
)

type PluginTenantRepository struct {
	db *gorm.DB
}

func NewPluginTenantRepository(db *gorm.DB) *PluginTenantRepository {
	return &PluginTenantRepository{db: db}
}

func (r *PluginTenantRepository) GetByID(id int64) (*model.PluginTenant, error) {
	var pt model.PluginTenant
	if err := r.db.Where("id = ?", id).First(&pt).Error; err != nil {
		return nil, translate(err, "plugin tenant", id)
	}
	return &pt, nil
}

func (r *PluginTenantRepository) GetByTriple(pluginID, tenantID, organizationID int64) (*model.PluginTenant, error) {
	var pt model.PluginTenant
	err := r.db.Where("plugin_id = ? AND tenant_id = ? AND organization_id = ?", pluginID, tenantID, organizationID).
		First(&pt).Error
	if err != nil {
		return nil, translate(err, "plugin tenant", fmt.Sprintf("%d/%d/%d", pluginID, tenantID, organizationID))
	}
	return &pt, nil
}

// FindOrCreate 三元组已存在时返回已有记录，created 为 false；
// 并发创建撞上唯一键时重新读取胜出的那一条
func (r *PluginTenantRepository) FindOrCreate(candidate *model.PluginTenant) (pt *model.PluginTenant, created bool, err error) {
	existing, err := r.GetByTriple(candidate.PluginID, candidate.TenantID, candidate.OrganizationID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, false, err
	}

	if err := r.db.Create(candidate).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, err := r.GetByTriple(candidate.PluginID, candidate.TenantID, candidate.OrganizationID)
			return existing, false, err
		}
		return nil, false, err
	}
	return candidate, true, nil
}

// SaveVersioned 乐观锁写入，计数列由原子更新维护，这里不覆盖
func (r *PluginTenantRepository) SaveVersioned(pt *model.PluginTenant) error {
	return r.saveVersioned(pt, r.db.Model(pt).Where("version = ?", pt.Version))
}

// SaveQuotasVersioned 同 SaveVersioned，但新上限低于当前计数时不写入并返回 ErrInvalidArgument
// 上限检查与写入在同一条 UPDATE 内完成
func (r *PluginTenantRepository) SaveQuotasVersioned(pt *model.PluginTenant) error {
	expected := pt.Version
	query := r.db.Model(pt).Where("version = ?", expected)
	if limit := pt.MaxInstallations; limit != nil && *limit != model.Unlimited {
		query = query.Where("current_installations <= ?", *limit)
	}
	if limit := pt.MaxActiveUsers; limit != nil && *limit != model.Unlimited {
		query = query.Where("current_active_users <= ?", *limit)
	}

	err := r.saveVersioned(pt, query)
	if !errors.Is(err, apperr.ErrConflict) {
		return err
	}
	current, gerr := r.GetByID(pt.ID)
	if gerr != nil {
		return gerr
	}
	if current.Version != expected {
		return err
	}
	return fmt.Errorf("quota below current usage (installations %d, active users %d): %w",
		current.CurrentInstallations, current.CurrentActiveUsers, apperr.ErrInvalidArgument)
}

func (r *PluginTenantRepository) saveVersioned(pt *model.PluginTenant, query *gorm.DB) error {
	expected := pt.Version
	pt.Version = expected + 1

	res := query.Select("*").Omit("id", "created_at", "current_installations", "current_active_users").
		Updates(pt)
	if res.Error != nil {
		pt.Version = expected
		return res.Error
	}
	if res.RowsAffected == 0 {
		pt.Version = expected
		return conflict("plugin tenant", pt.ID)
	}
	return nil
}

// IncrementInstallations 单条条件 UPDATE 完成检查与自增
func (r *PluginTenantRepository) IncrementInstallations(id int64) error {
	return r.increment(id, "current_installations", "max_installations", entitlement.ResourceInstallations)
}

func (r *PluginTenantRepository) IncrementActiveUsers(id int64) error {
	return r.increment(id, "current_active_users", "max_active_users", entitlement.ResourceActiveUsers)
}

func (r *PluginTenantRepository) DecrementInstallations(id int64) error {
	return r.decrement(id, "current_installations")
}

func (r *PluginTenantRepository) DecrementActiveUsers(id int64) error {
	return r.decrement(id, "current_active_users")
}

func (r *PluginTenantRepository) increment(id int64, counter, limit, resource string) error {
	cond := fmt.Sprintf("id = ? AND (%[2]s IS NULL OR %[2]s = ? OR %[1]s < %[2]s)", counter, limit)
	res := r.db.Model(&model.PluginTenant{}).Where(cond, id, model.Unlimited).
		UpdateColumn(counter, gorm.Expr(counter+" + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	pt, err := r.GetByID(id)
	if err != nil {
		return err
	}
	current, ceiling := pt.CurrentActiveUsers, pt.MaxActiveUsers
	if resource == entitlement.ResourceInstallations {
		current, ceiling = pt.CurrentInstallations, pt.MaxInstallations
	}
	if ceiling == nil || *ceiling == model.Unlimited {
		// 上限在两次读写之间被放开
		return conflict("plugin tenant", id)
	}
	return &apperr.QuotaExceededError{Resource: resource, Current: current, Limit: *ceiling}
}

func (r *PluginTenantRepository) decrement(id int64, counter string) error {
	expr := fmt.Sprintf("CASE WHEN %[1]s > 0 THEN %[1]s - 1 ELSE 0 END", counter)
	res := r.db.Model(&model.PluginTenant{}).Where("id = ?", id).UpdateColumn(counter, gorm.Expr(expr))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// MySQL 对未变化的行不计数，已为 0 时需要确认记录存在
		_, err := r.GetByID(id)
		return err
	}
	return nil
}

// ListByTenant 租户下的全部授权记录
func (r *PluginTenantRepository) ListByTenant(tenantID int64) ([]*model.PluginTenant, error) {
	var list []*model.PluginTenant
	err := r.db.Where("tenant_id = ?", tenantID).Order("id ASC").Find(&list).Error
	return list, err
}
