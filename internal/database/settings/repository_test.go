package settings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/librarydesk/librarydesk/internal/database"
)

func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "settings.db"), logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db.DB)
}

func TestRepository_SetSetting_New(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.SetSetting(ctx, "loan_default_days", "21"))

	setting, err := repo.GetSetting(ctx, "loan_default_days")
	require.NoError(t, err)
	assert.Equal(t, "loan_default_days", setting.Key)
	assert.Equal(t, "21", setting.Value)
}

func TestRepository_SetSetting_Update(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.SetSetting(ctx, "loan_default_days", "21"))
	require.NoError(t, repo.SetSetting(ctx, "loan_default_days", "28"))

	setting, err := repo.GetSetting(ctx, "loan_default_days")
	require.NoError(t, err)
	assert.Equal(t, "28", setting.Value)
}

func TestRepository_SetSettings(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.SetSetting(ctx, "loan_extension_days", "3"))
	require.NoError(t, repo.SetSettings(ctx, map[string]string{
		"loan_default_days":   "10",
		"loan_extension_days": "5",
	}))

	days, err := repo.GetSetting(ctx, "loan_default_days")
	require.NoError(t, err)
	assert.Equal(t, "10", days.Value)

	ext, err := repo.GetSetting(ctx, "loan_extension_days")
	require.NoError(t, err)
	assert.Equal(t, "5", ext.Value)
}

func TestRepository_GetSetting_NotFound(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.GetSetting(context.Background(), "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestRepository_DeleteSetting(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.SetSetting(ctx, "loan_default_days", "21"))
	require.NoError(t, repo.DeleteSetting(ctx, "loan_default_days"))
	require.NoError(t, repo.DeleteSetting(ctx, "loan_default_days"))

	_, err := repo.GetSetting(ctx, "loan_default_days")
	assert.ErrorIs(t, err, database.ErrNotFound)
}
