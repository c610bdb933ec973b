package service

import (
	"fmt"
	"strings"

	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/model/dto"
	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
	"github.com/qs3c/plugin_go_server/internal/repository"
)

type PluginService struct {
	pluginRepo *repository.PluginRepository
	Deps
}

func NewPluginService(pluginRepo *repository.PluginRepository, deps Deps) *PluginService {
	return &PluginService{pluginRepo: pluginRepo, Deps: deps.withDefaults()}
}

// Create 插件名全局唯一
func (s *PluginService) Create(req *dto.CreatePluginRequest, createdBy int64) (*model.Plugin, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("plugin name is empty: %w", apperr.ErrInvalidArgument)
	}

	plugin := &model.Plugin{
		Name:        name,
		Type:        req.Type,
		Status:      model.PluginStatusActive,
		Author:      req.Author,
		Description: req.Description,
		Homepage:    req.Homepage,
		CreatedBy:   createdBy,
	}
	if err := s.pluginRepo.Create(plugin); err != nil {
		return nil, err
	}

	s.Log.WithField("plugin_id", plugin.ID).WithField("name", plugin.Name).Info("plugin created")
	return plugin, nil
}

func (s *PluginService) Get(id int64) (*model.Plugin, error) {
	return s.pluginRepo.GetByID(id)
}

// UpdateMetadata 只更新请求中给出的字段
func (s *PluginService) UpdateMetadata(id int64, req *dto.UpdatePluginRequest) (*model.Plugin, error) {
	fields := make(map[string]interface{})
	if req.Type != nil {
		fields["type"] = *req.Type
	}
	if req.Author != nil {
		fields["author"] = *req.Author
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.Homepage != nil {
		fields["homepage"] = *req.Homepage
	}
	if len(fields) == 0 {
		return s.pluginRepo.GetByID(id)
	}

	if err := s.pluginRepo.UpdateFields(id, fields); err != nil {
		return nil, err
	}
	return s.pluginRepo.GetByID(id)
}

func (s *PluginService) SetStatus(id int64, status string) (*model.Plugin, error) {
	if !model.ValidPluginStatus(status) {
		return nil, fmt.Errorf("plugin status %q: %w", status, apperr.ErrInvalidArgument)
	}
	if err := s.pluginRepo.UpdateFields(id, map[string]interface{}{"status": status}); err != nil {
		return nil, err
	}
	s.Log.WithField("plugin_id", id).WithField("status", status).Info("plugin status changed")
	return s.pluginRepo.GetByID(id)
}

func (s *PluginService) List(status string, page, pageSize int) ([]*model.Plugin, int64, error) {
	if status != "" && !model.ValidPluginStatus(status) {
		return nil, 0, fmt.Errorf("plugin status %q: %w", status, apperr.ErrInvalidArgument)
	}
	return s.pluginRepo.List(status, page, pageSize)
}
