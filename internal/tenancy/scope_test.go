package tenancy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suteetoe/authgate/internal/model"
	"github.com/suteetoe/authgate/internal/tenancy"
	"gorm.io/gorm"
)

func seedTenantUser(t *testing.T, db *gorm.DB, tenantID, email string) *model.User {
	t.Helper()
	user := &model.User{
		Email:           email,
		NormalizedEmail: model.NormalizeEmail(email),
		TenantID:        tenantID,
		IsActive:        true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestScopeFiltersReads(t *testing.T) {
	db := openTestDB(t)
	r := tenancy.NewRegistry(db)

	acme, err := r.Create(context.Background(), "acme", "Acme", "")
	require.NoError(t, err)
	globex, err := r.Create(context.Background(), "globex", "Globex", "")
	require.NoError(t, err)

	seedTenantUser(t, db, acme.ID, "ada@acme.test")
	seedTenantUser(t, db, acme.ID, "bob@acme.test")
	other := seedTenantUser(t, db, globex.ID, "carol@globex.test")

	ctx := tenancy.WithTenantID(context.Background(), acme.ID)

	var users []model.User
	require.NoError(t, db.WithContext(ctx).Find(&users).Error)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.Equal(t, acme.ID, u.TenantID)
	}

	// A direct primary-key lookup across the boundary is also filtered.
	var leaked model.User
	err = db.WithContext(ctx).Where("id = ?", other.ID).First(&leaked).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Without a tenant in context nothing is filtered.
	var all []model.User
	require.NoError(t, db.Find(&all).Error)
	assert.Len(t, all, 3)
}

func TestScopeStampsCreates(t *testing.T) {
	db := openTestDB(t)
	r := tenancy.NewRegistry(db)

	acme, err := r.Create(context.Background(), "acme", "Acme", "")
	require.NoError(t, err)
	globex, err := r.Create(context.Background(), "globex", "Globex", "")
	require.NoError(t, err)

	ctx := tenancy.WithTenantID(context.Background(), acme.ID)

	t.Run("UnsetTenantIsStamped", func(t *testing.T) {
		role := &model.Role{Name: "admin"}
		require.NoError(t, db.WithContext(ctx).Create(role).Error)
		assert.Equal(t, acme.ID, role.TenantID)
	})

	t.Run("ExplicitTenantIsKept", func(t *testing.T) {
		role := &model.Role{Name: "auditor", TenantID: globex.ID}
		require.NoError(t, db.WithContext(ctx).Create(role).Error)
		assert.Equal(t, globex.ID, role.TenantID)
	})

	t.Run("SliceCreateIsStamped", func(t *testing.T) {
		roles := []*model.Role{{Name: "viewer"}, {Name: "editor"}}
		require.NoError(t, db.WithContext(ctx).Create(&roles).Error)
		for _, role := range roles {
			assert.Equal(t, acme.ID, role.TenantID)
		}
	})
}

// Cross-tenant writes match zero rows. The caller observes not-found, never
// a forbidden error that would confirm the row exists.
func TestScopeBlocksCrossTenantWrites(t *testing.T) {
	db := openTestDB(t)
	r := tenancy.NewRegistry(db)

	acme, err := r.Create(context.Background(), "acme", "Acme", "")
	require.NoError(t, err)
	globex, err := r.Create(context.Background(), "globex", "Globex", "")
	require.NoError(t, err)

	victim := seedTenantUser(t, db, globex.ID, "carol@globex.test")

	ctx := tenancy.WithTenantID(context.Background(), acme.ID)

	t.Run("Update", func(t *testing.T) {
		result := db.WithContext(ctx).Model(&model.User{}).Where("id = ?", victim.ID).Update("first_name", "Hacked")
		require.NoError(t, result.Error)
		assert.Zero(t, result.RowsAffected)

		var reloaded model.User
		require.NoError(t, db.Where("id = ?", victim.ID).First(&reloaded).Error)
		assert.Empty(t, reloaded.FirstName)
	})

	t.Run("Delete", func(t *testing.T) {
		result := db.WithContext(ctx).Where("id = ?", victim.ID).Delete(&model.User{})
		require.NoError(t, result.Error)
		assert.Zero(t, result.RowsAffected)

		var count int64
		require.NoError(t, db.Model(&model.User{}).Where("id = ?", victim.ID).Count(&count).Error)
		assert.EqualValues(t, 1, count)
	})

	t.Run("SameTenantWriteSucceeds", func(t *testing.T) {
		mine := seedTenantUser(t, db, acme.ID, "ada@acme.test")
		result := db.WithContext(ctx).Model(&model.User{}).Where("id = ?", mine.ID).Update("first_name", "Ada")
		require.NoError(t, result.Error)
		assert.EqualValues(t, 1, result.RowsAffected)
	})
}

// Tenants themselves are not TenantOwned: registry operations must be
// unaffected by whatever tenant happens to be in context.
func TestScopeIgnoresUnownedModels(t *testing.T) {
	db := openTestDB(t)
	r := tenancy.NewRegistry(db)

	acme, err := r.Create(context.Background(), "acme", "Acme", "")
	require.NoError(t, err)
	_, err = r.Create(context.Background(), "globex", "Globex", "")
	require.NoError(t, err)

	ctx := tenancy.WithTenantID(context.Background(), acme.ID)
	tenants, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, tenants, 2)
}
