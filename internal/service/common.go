package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
	"github.com/qs3c/plugin_go_server/internal/pkg/metrics"
)

// Principal 调用方身份，由 HTTP 层从令牌中取出后逐层传入
type Principal struct {
	UserID         int64
	TenantID       int64
	OrganizationID int64
	Roles          []string
}

// Deps 各服务共享的横切依赖
type Deps struct {
	Log     *logrus.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func (d Deps) now() time.Time {
	return d.Now().UTC()
}

// ownedBy 其他租户的记录按不存在处理
func ownedBy(p Principal, tenantID int64, entity string, id int64) error {
	if p.TenantID != tenantID {
		return fmt.Errorf("%s %d: %w", entity, id, apperr.ErrNotFound)
	}
	return nil
}

// retryOnConflict 版本冲突时重新执行 fn，最多 attempts 次
func retryOnConflict(attempts int, onRetry func(), fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if !errors.Is(err, apperr.ErrConflict) {
			return err
		}
		if i < attempts-1 && onRetry != nil {
			onRetry()
		}
	}
	return err
}

func ttl(seconds int) time.Duration {
	if seconds <= 0 {
		return time.Minute
	}
	return time.Duration(seconds) * time.Second
}
