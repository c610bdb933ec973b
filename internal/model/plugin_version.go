package model

import (
	"time"
)

type PluginVersion struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	PluginID      int64     `gorm:"not null;uniqueIndex:uk_plugin_version" json:"plugin_id"`
	Number        string    `gorm:"size:100;not null;uniqueIndex:uk_plugin_version" json:"number"`
	ReleaseDate   time.Time `json:"release_date"`
	DownloadCount int64     `gorm:"default:0" json:"download_count"`
	ReleaseNotes  string    `gorm:"type:text" json:"release_notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`

	Sources []PluginSource `gorm:"-" json:"sources,omitempty"`
}

func (PluginVersion) TableName() string {
	return "plugin_versions"
}

// PluginSource 某个版本针对特定平台的制品，OS/Arch 为空表示通用
type PluginSource struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	VersionID int64     `gorm:"not null;index" json:"version_id"`
	OS        string    `gorm:"column:os;size:20" json:"os"`
	Arch      string    `gorm:"size:20" json:"arch"`
	URL       string    `gorm:"size:500;not null" json:"url"`
	Checksum  string    `gorm:"size:128" json:"checksum,omitempty"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (PluginSource) TableName() string {
	return "plugin_sources"
}

// Matches 判断制品是否适用于指定平台，参数为空表示不限
func (s PluginSource) Matches(os, arch string) bool {
	if os != "" && s.OS != "" && s.OS != os {
		return false
	}
	if arch != "" && s.Arch != "" && s.Arch != arch {
		return false
	}
	return true
}
