package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/plugin_go_server/internal/model"
)

type VersionRepository struct {
	db *gorm.DB
}

func NewVersionRepository(db *gorm.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

// Create 在同一事务中写入版本及其制品
func (r *VersionRepository) Create(version *model.PluginVersion) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(version).Error; err != nil {
			return err
		}
		for i := range version.Sources {
			version.Sources[i].VersionID = version.ID
			if err := tx.Create(&version.Sources[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return translate(err, "version", version.Number)
}

func (r *VersionRepository) GetByID(id int64) (*model.PluginVersion, error) {
	var version model.PluginVersion
	if err := r.db.Where("id = ?", id).First(&version).Error; err != nil {
		return nil, translate(err, "version", id)
	}
	sources, err := r.ListSources(id)
	if err != nil {
		return nil, err
	}
	version.Sources = sources
	return &version, nil
}

// ListByPlugin 返回插件的全部版本，已附带制品
func (r *VersionRepository) ListByPlugin(pluginID int64) ([]*model.PluginVersion, error) {
	var versions []*model.PluginVersion
	if err := r.db.Where("plugin_id = ?", pluginID).Find(&versions).Error; err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return versions, nil
	}

	ids := make([]int64, len(versions))
	for i, v := range versions {
		ids[i] = v.ID
	}
	var sources []model.PluginSource
	if err := r.db.Where("version_id IN ?", ids).Order("id ASC").Find(&sources).Error; err != nil {
		return nil, err
	}

	byVersion := make(map[int64][]model.PluginSource, len(versions))
	for _, s := range sources {
		byVersion[s.VersionID] = append(byVersion[s.VersionID], s)
	}
	for _, v := range versions {
		v.Sources = byVersion[v.ID]
	}
	return versions, nil
}

func (r *VersionRepository) ListSources(versionID int64) ([]model.PluginSource, error) {
	var sources []model.PluginSource
	err := r.db.Where("version_id = ?", versionID).Order("id ASC").Find(&sources).Error
	return sources, err
}

func (r *VersionRepository) IncrementDownloads(id int64) error {
	return r.db.Model(&model.PluginVersion{}).Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error
}
