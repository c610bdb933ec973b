package dto

import "time"

// CreatePluginRequest 创建插件请求
type CreatePluginRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Type        string `json:"type" binding:"required,max=50"`
	Author      string `json:"author" binding:"omitempty,max=100"`
	Description string `json:"description" binding:"omitempty,max=5000"`
	Homepage    string `json:"homepage" binding:"omitempty,url,max=500"`
}

// UpdatePluginRequest 名称不可修改
type UpdatePluginRequest struct {
	Type        *string `json:"type,omitempty" binding:"omitempty,max=50"`
	Author      *string `json:"author,omitempty" binding:"omitempty,max=100"`
	Description *string `json:"description,omitempty" binding:"omitempty,max=5000"`
	Homepage    *string `json:"homepage,omitempty" binding:"omitempty,max=500"`
}

type SetPluginStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active inactive deprecated"`
}

// SourceInput 版本制品
type SourceInput struct {
	OS        string `json:"os" binding:"omitempty,max=20"`
	Arch      string `json:"arch" binding:"omitempty,max=20"`
	URL       string `json:"url" binding:"required,max=500"`
	Checksum  string `json:"checksum" binding:"omitempty,max=128"`
	SizeBytes int64  `json:"size_bytes" binding:"omitempty,min=0"`
}

// PublishVersionRequest 发布版本请求
type PublishVersionRequest struct {
	Number       string        `json:"number" binding:"required,max=100"`
	ReleaseDate  *time.Time    `json:"release_date,omitempty"`
	ReleaseNotes string        `json:"release_notes" binding:"omitempty,max=10000"`
	Sources      []SourceInput `json:"sources" binding:"required,min=1,dive"`
}

// ResolveVersionQuery 按范围与平台解析可安装版本
type ResolveVersionQuery struct {
	Range string `form:"range"`
	OS    string `form:"os"`
	Arch  string `form:"arch"`
}
