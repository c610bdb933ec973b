package repository

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qs3c/plugin_go_server/internal/domain/entitlement"
	"github.com/qs3c/plugin_go_server/internal/model"
	"github.com/qs3c/plugin_go_server/internal/pkg/apperr"
	"github.com/qs3c/plugin_go_server/internal/testutil"
)

func TestPluginTenantRepository_FindOrCreate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPluginTenantRepository(db)
	plugin := testutil.TestPlugin(t, db)
	now := time.Now().UTC()

	first, created, err := repo.FindOrCreate(entitlement.New(plugin.ID, 10, 0, model.ScopeTenant, 7, now))
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, first.Enabled)
	assert.True(t, first.RequiresApproval)
	assert.Equal(t, model.Int64Array{7}, first.AllowedUsers)

	again, created, err := repo.FindOrCreate(entitlement.New(plugin.ID, 10, 0, model.ScopeTenant, 8, now))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, model.Int64Array{7}, again.AllowedUsers)

	// 组织不同视为不同三元组
	org, created, err := repo.FindOrCreate(entitlement.New(plugin.ID, 10, 4, model.ScopeOrganization, 7, now))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, org.ID)

	var count int64
	db.Model(&model.PluginTenant{}).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestPluginTenantRepository_FindOrCreate_Concurrent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPluginTenantRepository(db)
	plugin := testutil.TestPlugin(t, db)

	ids := make(chan int64, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			pt, _, err := repo.FindOrCreate(entitlement.New(plugin.ID, 1, 0, "", user, time.Now().UTC()))
			assert.NoError(t, err)
			if pt != nil {
				ids <- pt.ID
			}
		}(int64(i + 1))
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1)
}

func TestPluginTenantRepository_SaveVersioned(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPluginTenantRepository(db)
	pt := testutil.TestEntitlement(t, db, testutil.TestPlugin(t, db).ID, 1)

	stale, err := repo.GetByID(pt.ID)
	require.NoError(t, err)

	entitlement.AllowUser(pt, 42)
	require.NoError(t, repo.SaveVersioned(pt))
	assert.Equal(t, int64(2), pt.Version)

	entitlement.DenyUser(stale, 42)
	err = repo.SaveVersioned(stale)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, int64(1), stale.Version, "version is restored after a lost race")

	found, err := repo.GetByID(pt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Int64Array{42}, found.AllowedUsers)
	assert.Empty(t, found.DeniedUsers)
}

func TestPluginTenantRepository_SaveVersionedKeepsCounters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPluginTenantRepository(db)
	pt := testutil.TestEntitlement(t, db, testutil.TestPlugin(t, db).ID, 1)

	loaded, err := repo.GetByID(pt.ID)
	require.NoError(t, err)

	require.NoError(t, repo.IncrementInstallations(pt.ID))
	require.NoError(t, repo.IncrementActiveUsers(pt.ID))

	entitlement.SetAllowedRoles(loaded, []string{"admin"})
	require.NoError(t, repo.SaveVersioned(loaded))

	found, err := repo.GetByID(pt.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), found.CurrentInstallations)
	assert.Equal(t, int64(1), found.CurrentActiveUsers)
	assert.Equal(t, int64(2), found.Version, "counters never bump the version")
}

func TestPluginTenantRepository_SaveQuotasVersioned(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPluginTenantRepository(db)
	pt := testutil.TestEntitlement(t, db, testutil.TestPlugin(t, db).ID, 1, testutil.WithUsage(2, 0))

	stale, err := repo.GetByID(pt.ID)
	require.NoError(t, err)

	loaded, err := repo.GetByID(pt.ID)
	require.NoError(t, err)
	loaded.MaxInstallations = testutil.Int64Ptr(1)
	err = repo.SaveQuotasVersioned(loaded)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Equal(t, pt.Version, loaded.Version)

	loaded.MaxInstallations = testutil.Int64Ptr(2)
	require.NoError(t, repo.SaveQuotasVersioned(loaded))

	stale.MaxInstallations = testutil.Int64Ptr(model.Unlimited)
	err = repo.SaveQuotasVersioned(stale)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestPluginTenantRepository_QuotaTriState(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPluginTenantRepository(db)
	pluginID := testutil.TestPlugin(t, db).ID

	tests := []struct {
		name    string
		max     *int64
		allowed int
	}{
		{"not configured", nil, 10},
		{"unlimited", testutil.Int64Ptr(model.Unlimited), 10},
		{"hard cap", testutil.Int64Ptr(3), 3},
		{"zero cap", testutil.Int64Ptr(0), 0},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt := testutil.TestEntitlement(t, db, pluginID, int64(100+i), testutil.WithQuota(tt.max, nil))

			ok := 0
			for n := 0; n < 10; n++ {
				if err := repo.IncrementInstallations(pt.ID); err == nil {
					ok++
				} else {
					var qe *apperr.QuotaExceededError
					require.True(t, errors.As(err, &qe))
					assert.Equal(t, entitlement.ResourceInstallations, qe.Resource)
					assert.Equal(t, *tt.max, qe.Limit)
				}
			}
			assert.Equal(t, tt.allowed, ok)

			found, err := repo.GetByID(pt.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(tt.allowed), found.CurrentInstallations)
			assert.Equal(t, tt.max == nil, found.MaxInstallations == nil, "null and -1 are stored apart")
		})
	}
}

func TestPluginTenantRepository_ConcurrentIncrement(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPluginTenantRepository(db)
	pt := testutil.TestEntitlement(t, db, testutil.TestPlugin(t, db).ID, 1,
		testutil.WithQuota(nil, testutil.Int64Ptr(5)))

	var mu sync.Mutex
	granted, rejected := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.IncrementActiveUsers(pt.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				granted++
			} else if errors.Is(err, apperr.ErrQuotaExceeded) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, granted)
	assert.Equal(t, 15, rejected)
}

func TestPluginTenantRepository_DecrementFloorsAtZero(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPluginTenantRepository(db)
	pt := testutil.TestEntitlement(t, db, testutil.TestPlugin(t, db).ID, 1, testutil.WithUsage(1, 0))

	require.NoError(t, repo.DecrementInstallations(pt.ID))
	require.NoError(t, repo.DecrementInstallations(pt.ID))
	require.NoError(t, repo.DecrementActiveUsers(pt.ID))

	found, err := repo.GetByID(pt.ID)
	require.NoError(t, err)
	assert.Zero(t, found.CurrentInstallations)
	assert.Zero(t, found.CurrentActiveUsers)

	assert.ErrorIs(t, repo.DecrementInstallations(99999), apperr.ErrNotFound)
	assert.ErrorIs(t, repo.IncrementInstallations(99999), apperr.ErrNotFound)
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return db, mock
}

func TestPluginTenantRepository_IncrementSQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPluginTenantRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `plugin_tenants` SET `current_installations`=current_installations \\+ 1 " +
		"WHERE \\(?id = \\? AND \\(max_installations IS NULL OR max_installations = \\? OR current_installations < max_installations\\)").
		WithArgs(int64(9), model.Unlimited).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.IncrementInstallations(9))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPluginTenantRepository_IncrementSQL_Rejected(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPluginTenantRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `plugin_tenants` SET `current_active_users`=current_active_users \\+ 1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT \\* FROM `plugin_tenants` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "current_active_users", "max_active_users"}).
			AddRow(9, 2, 2))

	err := repo.IncrementActiveUsers(9)
	var qe *apperr.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, entitlement.ResourceActiveUsers, qe.Resource)
	assert.Equal(t, int64(2), qe.Current)
	assert.Equal(t, int64(2), qe.Limit)
	assert.NoError(t, mock.ExpectationsWereMet())
}
