package semver

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
)

// MAJOR.MINOR.PATCH[-pre][+build]，不接受前导零和 v 前缀
var versionRe = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
	`(?:-([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?` +
	`(?:\+([0-9A-Za-z-]+(?:\.[0-9A-Za-z-]+)*))?$`)

// Version 解析后的语义化版本
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
	Build      string
}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

// Parse 解析版本号，格式错误返回 ErrInvalidVersionFormat
func Parse(s string) (Version, error) {
	m := versionRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Version{}, fmt.Errorf("%q: %w", s, apperr.ErrInvalidVersionFormat)
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, fmt.Errorf("%q: %w", s, apperr.ErrInvalidVersionFormat)
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return Version{}, fmt.Errorf("%q: %w", s, apperr.ErrInvalidVersionFormat)
	}
	patch, err := strconv.Atoi(m[3])
	if err != nil {
		return Version{}, fmt.Errorf("%q: %w", s, apperr.ErrInvalidVersionFormat)
	}
	return Version{Major: major, Minor: minor, Patch: patch, Prerelease: m[4], Build: m[5]}, nil
}

// MustParse 仅用于常量和测试
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate 写入前校验版本号
func Validate(s string) error {
	_, err := Parse(s)
	return err
}

// Compare returns -1, 0, or 1. Build metadata does not take part in precedence.
func (v Version) Compare(other Version) int {
	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := compareInt(v.Patch, other.Patch); c != 0 {
		return c
	}
	switch {
	case v.Prerelease == other.Prerelease:
		return 0
	case v.Prerelease == "":
		return 1
	case other.Prerelease == "":
		return -1
	}
	return strings.Compare(v.Prerelease, other.Prerelease)
}

func compareInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Compare 比较两个已校验的版本号字符串。
// 调用方保证输入合法，非法输入一律按 0.0.0 处理。
func Compare(v1, v2 string) int {
	a, _ := Parse(v1)
	b, _ := Parse(v2)
	return a.Compare(b)
}

// IsPrerelease 版本号字符串中包含 "-" 即视为预发布版本
func IsPrerelease(v string) bool {
	return strings.Contains(v, "-")
}

// Latest 返回最高的版本，列表为空时 ok 为 false
func Latest(versions []string) (latest string, ok bool) {
	for _, v := range versions {
		if !ok || Compare(v, latest) > 0 {
			latest = v
			ok = true
		}
	}
	return latest, ok
}

// SortDesc 按语义化版本从高到低排序（原地）
func SortDesc(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return Compare(versions[i], versions[j]) > 0
	})
}
