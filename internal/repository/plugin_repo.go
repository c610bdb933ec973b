package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/plugin_go_server/internal/model"
)

type PluginRepository struct {
	db *gorm.DB
}

func NewPluginRepository(db *gorm.DB) *PluginRepository {
	return &PluginRepository{db: db}
}

func (r *PluginRepository) Create(plugin *model.Plugin) error {
	return translate(r.db.Create(plugin).Error, "plugin", plugin.Name)
}

func (r *PluginRepository) GetByID(id int64) (*model.Plugin, error) {
	var plugin model.Plugin
	if err := r.db.Where("id = ?", id).First(&plugin).Error; err != nil {
		return nil, translate(err, "plugin", id)
	}
	return &plugin, nil
}

func (r *PluginRepository) GetByName(name string) (*model.Plugin, error) {
	var plugin model.Plugin
	if err := r.db.Where("name = ?", name).First(&plugin).Error; err != nil {
		return nil, translate(err, "plugin", name)
	}
	return &plugin, nil
}

func (r *PluginRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	res := r.db.Model(&model.Plugin{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "plugin", id)
	}
	return nil
}

// List 按状态过滤，status 为空时返回全部
func (r *PluginRepository) List(status string, page, pageSize int) ([]*model.Plugin, int64, error) {
	var plugins []*model.Plugin
	var total int64

	query := r.db.Model(&model.Plugin{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Scopes(paginate(page, pageSize)).Order("id ASC").Find(&plugins).Error
	return plugins, total, err
}
