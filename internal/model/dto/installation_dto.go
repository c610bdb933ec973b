package dto

import "github.com/qs3c/plugin_go_server/internal/model"

// InstallRequest range 为空表示任意版本
type InstallRequest struct {
	PluginID int64  `json:"plugin_id" binding:"required,min=1"`
	Range    string `json:"range" binding:"omitempty,max=100"`
	OS       string `json:"os" binding:"omitempty,max=20"`
	Arch     string `json:"arch" binding:"omitempty,max=20"`
}

type CompleteInstallRequest struct {
	Success bool   `json:"success"`
	Message string `json:"message" binding:"omitempty,max=2000"`
}

// InstallationDetail 安装记录及耗时（秒）
type InstallationDetail struct {
	*model.Installation
	InstallSeconds *float64 `json:"install_seconds,omitempty"`
	ActiveSeconds  *float64 `json:"active_seconds,omitempty"`
}
