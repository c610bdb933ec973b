package semver

import (
	"fmt"
	"strings"

	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
)

// RangeOp 版本范围的匹配方式
type RangeOp string

const (
	OpExact RangeOp = "="
	OpCaret RangeOp = "^"
	OpTilde RangeOp = "~"
	OpAny   RangeOp = "*"
)

// Range 表示 "1.2.3"、"^1.2.3"、"~1.2.3" 或 "*"
type Range struct {
	Op      RangeOp
	Version Version
}

// ParseRange 解析版本范围，空字符串等同于 "*"
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return Range{Op: OpAny}, nil
	}

	op := OpExact
	switch {
	case strings.HasPrefix(s, "^"):
		op = OpCaret
		s = s[1:]
	case strings.HasPrefix(s, "~"):
		op = OpTilde
		s = s[1:]
	case strings.HasPrefix(s, "="):
		s = s[1:]
	}

	v, err := Parse(s)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range: %v: %w", err, apperr.ErrInvalidArgument)
	}
	return Range{Op: op, Version: v}, nil
}

// Check 判断版本是否落在范围内
func (r Range) Check(v Version) bool {
	switch r.Op {
	case OpAny:
		return true
	case OpExact:
		return v.Compare(r.Version) == 0
	case OpCaret:
		// 同一主版本，且不低于目标版本
		return v.Major == r.Version.Major && v.Compare(r.Version) >= 0
	case OpTilde:
		// 同一主次版本，且不低于目标版本
		return v.Major == r.Version.Major && v.Minor == r.Version.Minor && v.Compare(r.Version) >= 0
	}
	return false
}

// AllowsPrerelease 只有精确匹配才会选中预发布版本
func (r Range) AllowsPrerelease() bool {
	return r.Op == OpExact && r.Version.Prerelease != ""
}

// SatisfiesRange 判断版本号字符串是否满足范围字符串
func SatisfiesRange(version, rng string) (bool, error) {
	v, err := Parse(version)
	if err != nil {
		return false, err
	}
	r, err := ParseRange(rng)
	if err != nil {
		return false, err
	}
	return r.Check(v), nil
}
