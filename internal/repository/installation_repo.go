package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/plugin_go_server/internal/model"
)

type InstallationRepository struct {
	db *gorm.DB
}

func NewInstallationRepository(db *gorm.DB) *InstallationRepository {
	return &InstallationRepository{db: db}
}

// Create 同一元组存在未卸载记录时返回 ErrInvalidArgument
func (r *InstallationRepository) Create(inst *model.Installation) error {
	key := ""
	if inst.LiveKey != nil {
		key = *inst.LiveKey
	}
	return translate(r.db.Create(inst).Error, "installation", key)
}

func (r *InstallationRepository) GetByID(id int64) (*model.Installation, error) {
	var inst model.Installation
	if err := r.db.Where("id = ?", id).First(&inst).Error; err != nil {
		return nil, translate(err, "installation", id)
	}
	return &inst, nil
}

// SaveFrom 仅当库中状态仍为 from 时写入，避免并发重复释放配额
func (r *InstallationRepository) SaveFrom(inst *model.Installation, from string) error {
	res := r.db.Model(inst).Where("status = ?", from).
		Select("*").Omit("id", "created_at").
		Updates(inst)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return conflict("installation", inst.ID)
	}
	return nil
}

// ListByTenant organizationID 小于 0 表示不按组织过滤
func (r *InstallationRepository) ListByTenant(tenantID, organizationID int64, page, pageSize int) ([]*model.Installation, int64, error) {
	var list []*model.Installation
	var total int64

	query := r.db.Model(&model.Installation{}).Where("tenant_id = ?", tenantID)
	if organizationID >= 0 {
		query = query.Where("organization_id = ?", organizationID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Scopes(paginate(page, pageSize)).Order("id DESC").Find(&list).Error
	return list, total, err
}
