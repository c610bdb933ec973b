package apperr

import (
	"errors"
	"fmt"
)

// 核心错误分类，各组件用 %w 包装后向上抛出，调用方用 errors.Is 判断
var (
	ErrInvalidVersionFormat = errors.New("版本号格式无效")
	ErrInvalidTransition    = errors.New("非法的状态变更")
	ErrQuotaExceeded        = errors.New("配额已用完")
	ErrInvalidArgument      = errors.New("参数无效")
	ErrNotFound             = errors.New("资源不存在")
	ErrAccessDenied         = errors.New("无权使用该插件")
	ErrConflict             = errors.New("数据已被并发修改，请重试")
)

// QuotaExceededError 记录超限的资源及当前用量
type QuotaExceededError struct {
	Resource string
	Current  int64
	Limit    int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded: %d/%d", e.Resource, e.Current, e.Limit)
}

func (e *QuotaExceededError) Unwrap() error {
	return ErrQuotaExceeded
}

// Transition 构造带上下文的非法状态变更错误
func Transition(entity, action, from string) error {
	return fmt.Errorf("%s: cannot %s from %s: %w", entity, action, from, ErrInvalidTransition)
}
