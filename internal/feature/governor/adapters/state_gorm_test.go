package adapters

import (
	"context"
	"testing"
	"time"

	"stock_history/internal/feature/governor/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupTestDB prepares an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to initialize test database")

	err = db.AutoMigrate(&GovernorStateModel{})
	require.NoError(t, err, "failed to migrate table")

	return db
}

func TestNewStateRepository(t *testing.T) {
	db := setupTestDB(t)

	repo := NewStateRepository(db)

	assert.NotNil(t, repo, "repository is nil")
	assert.NotNil(t, repo.db, "database connection is nil")
}

func TestStateGorm_LoadEmpty(t *testing.T) {
	repo := NewStateRepository(setupTestDB(t))

	got, err := repo.Load(context.Background())

	require.NoError(t, err)
	assert.Nil(t, got, "nothing stored yet")
}

func TestStateGorm_SaveAndLoad(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStateRepository(db)
	ctx := context.Background()
	at := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

	first := entity.State{Date: "2025-03-10", DailyRequests: 1, Tickers: map[string]int{"AAPL": 1}, Tokens: 5, TokensUpdatedAt: at}
	require.NoError(t, repo.Save(ctx, first))

	second := entity.State{Date: "2025-03-10", DailyRequests: 2, Tickers: map[string]int{"AAPL": 1, "MSFT": 1}, Tokens: 4.3, TokensUpdatedAt: at.Add(time.Second)}
	require.NoError(t, repo.Save(ctx, second))

	var count int64
	require.NoError(t, db.Model(&GovernorStateModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "state is a single row")

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2025-03-10", got.Date)
	assert.Equal(t, 2, got.DailyRequests)
	assert.Equal(t, map[string]int{"AAPL": 1, "MSFT": 1}, got.Tickers)
	assert.InDelta(t, 4.3, got.Tokens, 1e-9)
	assert.True(t, got.TokensUpdatedAt.Equal(at.Add(time.Second)))
}
