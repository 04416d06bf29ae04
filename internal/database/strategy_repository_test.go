package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelhq/stratagem/internal/models"
	"github.com/kestrelhq/stratagem/internal/strategy"
)

func testStrategy() *models.Strategy {
	return &models.Strategy{
		ID:        uuid.New(),
		UserID:    "user-123",
		SessionID: uuid.New(),
		Name:      "ES Opening Range Breakout",
		Pattern:   strategy.PatternOpeningRangeBreakout,
		Rules: []strategy.StrategyRule{
			{Category: strategy.CategorySetup, Label: "Direction", Value: "long", Source: strategy.SourceUser},
			{Category: strategy.CategoryRisk, Label: "Stop Loss", Value: "8 ticks", Source: strategy.SourceUser},
		},
		CompletionScore: 100,
	}
}

func TestStrategyRepository_Create(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewStrategyRepository(mockPool)
	s := testStrategy()
	now := time.Now()

	mockPool.ExpectQuery(`INSERT INTO strategies`).
		WithArgs(s.ID, s.UserID, s.SessionID, s.Name, string(s.Pattern), pgxmock.AnyArg(), s.CompletionScore).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	require.NoError(t, repo.Create(context.Background(), s))
	assert.Equal(t, now, s.CreatedAt)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestStrategyRepository_GetByID(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewStrategyRepository(mockPool)
	s := testStrategy()
	rulesJSON, err := json.Marshal(s.Rules)
	require.NoError(t, err)
	now := time.Now()

	mockPool.ExpectQuery(`SELECT id, user_id, session_id, name, pattern, rules, completion_score, created_at`).
		WithArgs(s.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "session_id", "name", "pattern", "rules", "completion_score", "created_at"}).
			AddRow(s.ID, s.UserID, s.SessionID, s.Name, string(s.Pattern), rulesJSON, s.CompletionScore, now))

	got, err := repo.GetByID(context.Background(), s.ID)
	require.NoError(t, err)

	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, strategy.PatternOpeningRangeBreakout, got.Pattern)
	require.Len(t, got.Rules, 2)
	assert.Equal(t, "Direction", got.Rules[0].Label)
	assert.Equal(t, "8 ticks", got.Rules[1].Value)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestStrategyRepository_ListByUser(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewStrategyRepository(mockPool)
	s := testStrategy()
	rulesJSON, err := json.Marshal(s.Rules)
	require.NoError(t, err)

	mockPool.ExpectQuery(`SELECT id, user_id, session_id, name, pattern, rules, completion_score, created_at`).
		WithArgs("user-123").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "session_id", "name", "pattern", "rules", "completion_score", "created_at"}).
			AddRow(s.ID, s.UserID, s.SessionID, s.Name, string(s.Pattern), rulesJSON, s.CompletionScore, time.Now()))

	strategies, err := repo.ListByUser(context.Background(), "user-123")
	require.NoError(t, err)
	require.Len(t, strategies, 1)
	assert.Equal(t, "ES Opening Range Breakout", strategies[0].Name)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestStrategyRepository_Delete(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewStrategyRepository(mockPool)
	id := uuid.New()

	t.Run("owned row removed", func(t *testing.T) {
		mockPool.ExpectExec(`DELETE FROM strategies`).
			WithArgs(id, "user-123").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		removed, err := repo.Delete(context.Background(), id, "user-123")
		require.NoError(t, err)
		assert.True(t, removed)
	})

	t.Run("not owned", func(t *testing.T) {
		mockPool.ExpectExec(`DELETE FROM strategies`).
			WithArgs(id, "someone-else").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		removed, err := repo.Delete(context.Background(), id, "someone-else")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestWaitlistRepository_Create(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewWaitlistRepository(mockPool)
	entry := &models.WaitlistEntry{
		ID:                uuid.New(),
		SessionID:         uuid.New(),
		PatternIdentifier: "macd_histogram",
		Contact:           "trader@example.com",
	}
	now := time.Now()

	mockPool.ExpectQuery(`INSERT INTO pattern_waitlist`).
		WithArgs(entry.ID, entry.SessionID, entry.PatternIdentifier, entry.Contact).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	require.NoError(t, repo.Create(context.Background(), entry))
	assert.Equal(t, now, entry.CreatedAt)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestWaitlistRepository_CountByPattern(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewWaitlistRepository(mockPool)

	mockPool.ExpectQuery(`SELECT COUNT\(\*\) FROM pattern_waitlist`).
		WithArgs("macd_histogram").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	count, err := repo.CountByPattern(context.Background(), "macd_histogram")
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
