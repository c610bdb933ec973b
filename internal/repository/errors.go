package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
)

// translate 把 gorm 的错误翻译为统一的错误分类
func translate(err error, entity string, id interface{}) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s %v: %w", entity, id, apperr.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s %v already exists: %w", entity, id, apperr.ErrInvalidArgument)
	}
	return err
}

func conflict(entity string, id int64) error {
	return fmt.Errorf("%s %d was modified concurrently: %w", entity, id, apperr.ErrConflict)
}

// paginate 页码从 1 开始
func paginate(page, pageSize int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if page < 1 {
			page = 1
		}
		if pageSize < 1 || pageSize > 100 {
			pageSize = 20
		}
		return db.Offset((page - 1) * pageSize).Limit(pageSize)
	}
}
