package entitlement

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
)

var now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func int64Ptr(v int64) *int64 { return &v }

func TestNew(t *testing.T) {
	pt := New(1, 2, 0, "", 42, now)

	assert.Equal(t, model.ScopeTenant, pt.Scope)
	assert.True(t, pt.Enabled)
	assert.True(t, pt.RequiresApproval)
	assert.False(t, pt.AutoInstall)
	assert.False(t, pt.IsMandatory)
	assert.Equal(t, model.Int64Array{42}, pt.AllowedUsers)
	require.NotNil(t, pt.ApprovedBy)
	assert.Equal(t, int64(42), *pt.ApprovedBy)
	assert.Equal(t, now, *pt.ApprovedAt)
}

func TestHasUserAccess(t *testing.T) {
	tests := []struct {
		name  string
		setup func(pt *model.PluginTenant)
		user  int64
		roles []string
		want  bool
	}{
		{"disabled", func(pt *model.PluginTenant) { pt.Enabled = false }, 1, nil, false},
		{"archived", func(pt *model.PluginTenant) { pt.IsArchived = true }, 1, nil, false},
		{"denied beats allowed", func(pt *model.PluginTenant) {
			pt.AllowedUsers = model.Int64Array{1}
			pt.DeniedUsers = model.Int64Array{1}
		}, 1, nil, false},
		{"allowed user", func(pt *model.PluginTenant) { pt.AllowedUsers = model.Int64Array{1} }, 1, nil, true},
		{"allowed user beats role mismatch", func(pt *model.PluginTenant) {
			pt.AllowedUsers = model.Int64Array{1}
			pt.AllowedRoles = model.StringArray{"admin"}
		}, 1, []string{"viewer"}, true},
		{"role match", func(pt *model.PluginTenant) { pt.AllowedRoles = model.StringArray{"admin"} }, 7, []string{"viewer", "admin"}, true},
		{"role mismatch", func(pt *model.PluginTenant) { pt.AllowedRoles = model.StringArray{"admin"} }, 7, []string{"viewer"}, false},
		{"not in allow list", func(pt *model.PluginTenant) { pt.AllowedUsers = model.Int64Array{1} }, 7, nil, false},
		{"open by default", func(pt *model.PluginTenant) {}, 7, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt := New(1, 2, 0, model.ScopeTenant, 0, now)
			tt.setup(pt)
			assert.Equal(t, tt.want, HasUserAccess(pt, tt.user, tt.roles))
		})
	}
}

func TestHasUserAccess_DeniedAlwaysWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids := rapid.SliceOf(rapid.Int64Range(1, 20))
		roles := rapid.SliceOf(rapid.SampledFrom([]string{"admin", "dev", "viewer"}))

		pt := New(1, 2, 0, model.ScopeTenant, 0, now)
		pt.AllowedUsers = ids.Draw(t, "allowed")
		pt.DeniedUsers = ids.Draw(t, "denied")
		pt.AllowedRoles = roles.Draw(t, "allowedRoles")
		user := rapid.Int64Range(1, 20).Draw(t, "user")
		userRoles := roles.Draw(t, "userRoles")

		if pt.DeniedUsers.Contains(user) && HasUserAccess(pt, user, userRoles) {
			t.Fatalf("denied user %d was granted access", user)
		}
	})
}

func TestQuota(t *testing.T) {
	t.Run("null is unlimited", func(t *testing.T) {
		pt := New(1, 2, 0, model.ScopeTenant, 0, now)
		pt.CurrentInstallations = 1_000_000
		assert.True(t, CanInstallMore(pt))
		assert.NoError(t, IncrementInstallations(pt))
	})

	t.Run("minus one is unlimited", func(t *testing.T) {
		pt := New(1, 2, 0, model.ScopeTenant, 0, now)
		pt.MaxActiveUsers = int64Ptr(model.Unlimited)
		pt.CurrentActiveUsers = 500
		assert.True(t, CanAddMoreUsers(pt))
	})

	t.Run("hard cap", func(t *testing.T) {
		pt := New(1, 2, 0, model.ScopeTenant, 0, now)
		pt.MaxInstallations = int64Ptr(2)
		require.NoError(t, IncrementInstallations(pt))
		require.NoError(t, IncrementInstallations(pt))

		err := IncrementInstallations(pt)
		assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)
		var qe *apperr.QuotaExceededError
		require.True(t, errors.As(err, &qe))
		assert.Equal(t, ResourceInstallations, qe.Resource)
		assert.Equal(t, int64(2), qe.Current)
		assert.Equal(t, int64(2), qe.Limit)
	})

	t.Run("zero cap blocks", func(t *testing.T) {
		pt := New(1, 2, 0, model.ScopeTenant, 0, now)
		pt.MaxActiveUsers = int64Ptr(0)
		assert.ErrorIs(t, IncrementActiveUsers(pt), apperr.ErrQuotaExceeded)
	})

	t.Run("decrement floors at zero", func(t *testing.T) {
		pt := New(1, 2, 0, model.ScopeTenant, 0, now)
		DecrementInstallations(pt)
		DecrementActiveUsers(pt)
		assert.Zero(t, pt.CurrentInstallations)
		assert.Zero(t, pt.CurrentActiveUsers)
	})
}

func TestQuota_Monotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pt := New(1, 2, 0, model.ScopeTenant, 0, now)
		limit := rapid.Int64Range(0, 10).Draw(t, "limit")
		pt.MaxInstallations = &limit

		ops := rapid.SliceOf(rapid.Bool()).Draw(t, "ops")
		for _, inc := range ops {
			if inc {
				_ = IncrementInstallations(pt)
			} else {
				DecrementInstallations(pt)
			}
			if pt.CurrentInstallations > limit || pt.CurrentInstallations < 0 {
				t.Fatalf("counter %d outside [0,%d]", pt.CurrentInstallations, limit)
			}
		}
	})
}

func TestValidQuota(t *testing.T) {
	assert.True(t, ValidQuota(nil))
	assert.True(t, ValidQuota(int64Ptr(-1)))
	assert.True(t, ValidQuota(int64Ptr(0)))
	assert.False(t, ValidQuota(int64Ptr(-2)))
}

func TestStateTransitions(t *testing.T) {
	pt := New(1, 2, 0, model.ScopeTenant, 0, now)

	Archive(pt, now)
	assert.True(t, pt.IsArchived)
	assert.False(t, pt.Enabled)
	assert.ErrorIs(t, Enable(pt), apperr.ErrInvalidTransition)
	assert.ErrorIs(t, Approve(pt, 9, now), apperr.ErrInvalidTransition)

	Restore(pt)
	assert.False(t, pt.IsArchived)
	assert.False(t, pt.Enabled, "restore must not re-enable")

	require.NoError(t, Approve(pt, 9, now))
	assert.True(t, pt.Enabled)
	assert.Equal(t, int64(9), *pt.ApprovedBy)

	RevokeApproval(pt)
	assert.False(t, pt.Enabled)
	assert.Nil(t, pt.ApprovedAt)
	assert.Nil(t, pt.ApprovedBy)

	Disable(pt)
	assert.False(t, pt.Enabled)
}

func TestListMutations(t *testing.T) {
	pt := New(1, 2, 0, model.ScopeTenant, 0, now)

	AllowUser(pt, 5)
	AllowUser(pt, 5)
	assert.Equal(t, model.Int64Array{5}, pt.AllowedUsers)

	DenyUser(pt, 5)
	assert.False(t, HasUserAccess(pt, 5, nil))
	RemoveDeniedUser(pt, 5)
	assert.True(t, HasUserAccess(pt, 5, nil))

	RemoveAllowedUser(pt, 5)
	assert.Empty(t, pt.AllowedUsers)

	SetAllowedRoles(pt, []string{"admin", "", "admin", "dev"})
	assert.Equal(t, model.StringArray{"admin", "dev"}, pt.AllowedRoles)
}
