package model

import (
	"database/sql/driver"
	"encoding/json"
	"slices"
)

// Unlimited 配额显式设为不限（与 NULL 未配置区分保存）
const Unlimited int64 = -1

// Scope 授权范围
type Scope string

const (
	ScopeUser         Scope = "USER"
	ScopeOrganization Scope = "ORGANIZATION"
	ScopeTenant       Scope = "TENANT"
)

func (s Scope) Valid() bool {
	switch s {
	case ScopeUser, ScopeOrganization, ScopeTenant:
		return true
	}
	return false
}

// StringArray 用于 JSON 数组字段
type StringArray []string

func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	}
	return nil
}

func (s StringArray) Contains(item string) bool {
	return slices.Contains(s, item)
}

// Int64Array 用户 ID 列表
type Int64Array []int64

func (a Int64Array) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return json.Marshal(a)
}

func (a *Int64Array) Scan(value interface{}) error {
	if value == nil {
		*a = []int64{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	}
	return nil
}

func (a Int64Array) Contains(id int64) bool {
	return slices.Contains(a, id)
}

// With 返回追加后的新列表，已存在时原样返回
func (a Int64Array) With(id int64) Int64Array {
	if a.Contains(id) {
		return a
	}
	out := make(Int64Array, 0, len(a)+1)
	out = append(out, a...)
	return append(out, id)
}

// Without 返回移除指定 ID 后的新列表
func (a Int64Array) Without(id int64) Int64Array {
	out := make(Int64Array, 0, len(a))
	for _, v := range a {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
