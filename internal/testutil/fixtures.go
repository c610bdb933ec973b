package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/qs3c/plugin_go_server/internal/model"
)

var seq int64

func nextSeq() int64 {
	return atomic.AddInt64(&seq, 1)
}

// Int64Ptr 便于构造可空配额
func Int64Ptr(v int64) *int64 {
	return &v
}

// TestPlugin 创建测试插件
func TestPlugin(t *testing.T, db *gorm.DB, opts ...func(*model.Plugin)) *model.Plugin {
	t.Helper()

	plugin := &model.Plugin{
		Name:   fmt.Sprintf("test-plugin-%d", nextSeq()),
		Type:   "integration",
		Status: model.PluginStatusActive,
		Author: "tester",
	}
	for _, opt := range opts {
		opt(plugin)
	}

	if err := db.Create(plugin).Error; err != nil {
		t.Fatalf("Failed to create test plugin: %v", err)
	}
	return plugin
}

// WithPluginName 设置插件名
func WithPluginName(name string) func(*model.Plugin) {
	return func(p *model.Plugin) {
		p.Name = name
	}
}

// WithPluginStatus 设置插件状态
func WithPluginStatus(status string) func(*model.Plugin) {
	return func(p *model.Plugin) {
		p.Status = status
	}
}

// TestVersion 创建测试版本，未指定制品时附带一个通用制品
func TestVersion(t *testing.T, db *gorm.DB, pluginID int64, number string, opts ...func(*model.PluginVersion)) *model.PluginVersion {
	t.Helper()

	version := &model.PluginVersion{
		PluginID:    pluginID,
		Number:      number,
		ReleaseDate: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(version)
	}
	if version.Sources == nil {
		version.Sources = []model.PluginSource{{URL: fmt.Sprintf("https://cdn.example.com/%d/%s.zip", pluginID, number)}}
	}

	if err := db.Create(version).Error; err != nil {
		t.Fatalf("Failed to create test version: %v", err)
	}
	for i := range version.Sources {
		version.Sources[i].VersionID = version.ID
		if err := db.Create(&version.Sources[i]).Error; err != nil {
			t.Fatalf("Failed to create test source: %v", err)
		}
	}
	return version
}

// WithSources 设置版本制品
func WithSources(sources ...model.PluginSource) func(*model.PluginVersion) {
	return func(v *model.PluginVersion) {
		v.Sources = sources
	}
}

// TestEntitlement 创建测试授权记录，默认启用、无限制
func TestEntitlement(t *testing.T, db *gorm.DB, pluginID, tenantID int64, opts ...func(*model.PluginTenant)) *model.PluginTenant {
	t.Helper()

	pt := &model.PluginTenant{
		PluginID:     pluginID,
		TenantID:     tenantID,
		Scope:        model.ScopeTenant,
		Enabled:      true,
		AllowedUsers: model.Int64Array{},
		DeniedUsers:  model.Int64Array{},
		AllowedRoles: model.StringArray{},
		Version:      1,
	}
	for _, opt := range opts {
		opt(pt)
	}

	if err := db.Create(pt).Error; err != nil {
		t.Fatalf("Failed to create test entitlement: %v", err)
	}
	return pt
}

// WithOrganization 设置组织
func WithOrganization(orgID int64) func(*model.PluginTenant) {
	return func(pt *model.PluginTenant) {
		pt.OrganizationID = orgID
		pt.Scope = model.ScopeOrganization
	}
}

// WithQuota 设置安装数与活跃用户上限
func WithQuota(maxInstallations, maxActiveUsers *int64) func(*model.PluginTenant) {
	return func(pt *model.PluginTenant) {
		pt.MaxInstallations = maxInstallations
		pt.MaxActiveUsers = maxActiveUsers
	}
}

// WithUsage 设置当前用量
func WithUsage(installations, activeUsers int64) func(*model.PluginTenant) {
	return func(pt *model.PluginTenant) {
		pt.CurrentInstallations = installations
		pt.CurrentActiveUsers = activeUsers
	}
}

// WithAllowedUsers 设置白名单
func WithAllowedUsers(ids ...int64) func(*model.PluginTenant) {
	return func(pt *model.PluginTenant) {
		pt.AllowedUsers = ids
	}
}

// WithDeniedUsers 设置黑名单
func WithDeniedUsers(ids ...int64) func(*model.PluginTenant) {
	return func(pt *model.PluginTenant) {
		pt.DeniedUsers = ids
	}
}

// WithAllowedRoles 设置允许的角色
func WithAllowedRoles(roles ...string) func(*model.PluginTenant) {
	return func(pt *model.PluginTenant) {
		pt.AllowedRoles = roles
	}
}

// WithDisabled 关闭授权
func WithDisabled() func(*model.PluginTenant) {
	return func(pt *model.PluginTenant) {
		pt.Enabled = false
	}
}

// TestPlan 创建测试套餐，默认 BASIC 月付 10.00
func TestPlan(t *testing.T, db *gorm.DB, pluginID int64, opts ...func(*model.SubscriptionPlan)) *model.SubscriptionPlan {
	t.Helper()

	plan := &model.SubscriptionPlan{
		PluginID:      pluginID,
		Name:          fmt.Sprintf("plan-%d", nextSeq()),
		Type:          model.PlanBasic,
		Price:         decimal.RequireFromString("10.00"),
		Currency:      "USD",
		BillingPeriod: model.PeriodMonthly,
		Features:      model.StringArray{},
		IsActive:      true,
	}
	for _, opt := range opts {
		opt(plan)
	}

	if err := db.Create(plan).Error; err != nil {
		t.Fatalf("Failed to create test plan: %v", err)
	}
	return plan
}

// WithPrice 设置价格与计费周期
func WithPrice(price string, period string) func(*model.SubscriptionPlan) {
	return func(p *model.SubscriptionPlan) {
		p.Price = decimal.RequireFromString(price)
		p.BillingPeriod = period
	}
}

// WithTrialDays 设置试用天数
func WithTrialDays(days int) func(*model.SubscriptionPlan) {
	return func(p *model.SubscriptionPlan) {
		p.TrialDays = days
	}
}

// WithPlanType 设置套餐类型
func WithPlanType(planType string) func(*model.SubscriptionPlan) {
	return func(p *model.SubscriptionPlan) {
		p.Type = planType
	}
}

// TestSubscription 在授权记录下创建订阅，默认 ACTIVE、租户级、一个月
func TestSubscription(t *testing.T, db *gorm.DB, pt *model.PluginTenant, opts ...func(*model.PluginSubscription)) *model.PluginSubscription {
	t.Helper()

	start := time.Now().UTC().Truncate(time.Second)
	end := start.AddDate(0, 1, 0)
	sub := &model.PluginSubscription{
		PluginID:       pt.PluginID,
		PluginTenantID: pt.ID,
		TenantID:       pt.TenantID,
		OrganizationID: pt.OrganizationID,
		Status:         model.SubActive,
		Scope:          model.ScopeTenant,
		StartDate:      start,
		EndDate:        &end,
		Version:        1,
	}
	for _, opt := range opts {
		opt(sub)
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}
	return sub
}

// WithSubStatus 设置订阅状态
func WithSubStatus(status string) func(*model.PluginSubscription) {
	return func(s *model.PluginSubscription) {
		s.Status = status
	}
}

// WithSubPlan 绑定套餐
func WithSubPlan(planID int64) func(*model.PluginSubscription) {
	return func(s *model.PluginSubscription) {
		s.PlanID = &planID
	}
}

// WithSubscriber 设置为用户级订阅
func WithSubscriber(userID int64) func(*model.PluginSubscription) {
	return func(s *model.PluginSubscription) {
		s.SubscriberID = &userID
		s.Scope = model.ScopeUser
	}
}

// WithParent 设置父订阅
func WithParent(parentID int64) func(*model.PluginSubscription) {
	return func(s *model.PluginSubscription) {
		s.ParentID = &parentID
		s.Scope = model.ScopeUser
	}
}

// WithDates 设置起止日期，end 为 nil 表示不过期
func WithDates(start time.Time, end *time.Time) func(*model.PluginSubscription) {
	return func(s *model.PluginSubscription) {
		s.StartDate = start
		s.EndDate = end
	}
}

// WithAutoRenew 设置自动续费
func WithAutoRenew(on bool) func(*model.PluginSubscription) {
	return func(s *model.PluginSubscription) {
		s.AutoRenew = on
	}
}

// TestBilling 创建测试账单，默认 PENDING，7 天后到期
func TestBilling(t *testing.T, db *gorm.DB, subscriptionID int64, opts ...func(*model.PluginBilling)) *model.PluginBilling {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	bill := &model.PluginBilling{
		SubscriptionID:     subscriptionID,
		Reference:          uuid.NewString(),
		Amount:             decimal.RequireFromString("10.00"),
		Currency:           "USD",
		BillingDate:        now,
		DueDate:            now.AddDate(0, 0, 7),
		Status:             model.BillingPending,
		BillingPeriodStart: now,
	}
	for _, opt := range opts {
		opt(bill)
	}

	if err := db.Create(bill).Error; err != nil {
		t.Fatalf("Failed to create test billing: %v", err)
	}
	return bill
}

// WithDueDate 设置到期日
func WithDueDate(due time.Time) func(*model.PluginBilling) {
	return func(b *model.PluginBilling) {
		b.DueDate = due
		if b.BillingDate.After(due) {
			b.BillingDate = due
		}
	}
}

// WithBillingStatus 设置账单状态
func WithBillingStatus(status string) func(*model.PluginBilling) {
	return func(b *model.PluginBilling) {
		b.Status = status
	}
}

// TestInstallation 创建测试安装记录，默认 INSTALLED
func TestInstallation(t *testing.T, db *gorm.DB, versionID, pluginID, tenantID int64, opts ...func(*model.Installation)) *model.Installation {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	inst := &model.Installation{
		PluginID:    pluginID,
		VersionID:   versionID,
		TenantID:    tenantID,
		InstalledBy: 1,
		Status:      model.InstallInstalled,
		InstalledAt: &now,
	}
	for _, opt := range opts {
		opt(inst)
	}

	if err := db.Create(inst).Error; err != nil {
		t.Fatalf("Failed to create test installation: %v", err)
	}
	return inst
}
