package bootstrap

import (
	"testing"

	"campusmarket/internal/config"
	"campusmarket/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupBootstrapDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Listing{}, &models.ListingImage{}))
	return db
}

func TestEnsureDevRootAdmin(t *testing.T) {
	db := setupBootstrapDB(t)
	cfg := &config.Config{
		Env:              "development",
		DevBootstrapRoot: true,
		DevRootPassword:  "RootPass123",
	}

	require.NoError(t, ensureDevRootAdmin(cfg, db))

	var root models.User
	require.NoError(t, db.First(&root, 1).Error)
	assert.Equal(t, "campus_root", root.Username)
	assert.Equal(t, "root@campusmarket.local", root.Email)
	assert.Equal(t, models.RoleAdmin, root.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(root.Password), []byte("RootPass123")))

	// re-running promotes a demoted root back to admin without duplicating it
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", 1).Update("role", models.RoleStudent).Error)
	require.NoError(t, ensureDevRootAdmin(cfg, db))

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(1), count)
	require.NoError(t, db.First(&root, 1).Error)
	assert.Equal(t, models.RoleAdmin, root.Role)
}

func TestEnsureDevRootAdmin_DisabledOutsideDevelopment(t *testing.T) {
	db := setupBootstrapDB(t)
	cfg := &config.Config{
		Env:              "production",
		DevBootstrapRoot: true,
		DevRootPassword:  "RootPass123",
	}

	require.NoError(t, ensureDevRootAdmin(cfg, db))

	var count int64
	db.Model(&models.User{}).Count(&count)
	assert.Zero(t, count)
}

func TestEnsureDevRootAdmin_MissingPassword(t *testing.T) {
	db := setupBootstrapDB(t)
	cfg := &config.Config{
		Env:              "development",
		DevBootstrapRoot: true,
	}

	err := ensureDevRootAdmin(cfg, db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEV_ROOT_PASSWORD")
}

func TestSeedDemoData(t *testing.T) {
	db := setupBootstrapDB(t)
	cfg := &config.Config{Env: "development"}

	require.NoError(t, seedDemoData(cfg, db))

	var users, listings int64
	db.Model(&models.User{}).Count(&users)
	db.Model(&models.Listing{}).Count(&listings)
	assert.Positive(t, users)
	assert.Positive(t, listings)

	// a populated database is left alone
	require.NoError(t, seedDemoData(cfg, db))
	var usersAfter int64
	db.Model(&models.User{}).Count(&usersAfter)
	assert.Equal(t, users, usersAfter)
}

func TestSeedDemoData_OnlyInDevelopment(t *testing.T) {
	db := setupBootstrapDB(t)

	require.NoError(t, seedDemoData(&config.Config{Env: "test"}, db))

	var users int64
	db.Model(&models.User{}).Count(&users)
	assert.Zero(t, users)
}
