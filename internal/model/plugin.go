package model

import (
	"time"
)

// 插件状态
const (
	PluginStatusActive     = "active"
	PluginStatusInactive   = "inactive"
	PluginStatusDeprecated = "deprecated"
)

type Plugin struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Type        string    `gorm:"size:50;not null" json:"type"`
	Status      string    `gorm:"size:20;default:active;index" json:"status"`
	Author      string    `gorm:"size:100" json:"author"`
	Description string    `gorm:"type:text" json:"description"`
	Homepage    string    `gorm:"size:500" json:"homepage,omitempty"`
	CreatedBy   int64     `gorm:"index" json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Plugin) TableName() string {
	return "plugins"
}

func ValidPluginStatus(status string) bool {
	switch status {
	case PluginStatusActive, PluginStatusInactive, PluginStatusDeprecated:
		return true
	}
	return false
}
