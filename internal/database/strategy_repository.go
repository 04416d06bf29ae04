package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/kestrelhq/stratagem/internal/models"
	"github.com/kestrelhq/stratagem/internal/strategy"
)

// StrategyRepository persists finalized strategies.
type StrategyRepository struct {
	pool Querier
}

func NewStrategyRepository(pool Querier) *StrategyRepository {
	return &StrategyRepository{pool: pool}
}

// Create inserts a finalized strategy. Rules are stored as JSONB.
func (r *StrategyRepository) Create(ctx context.Context, s *models.Strategy) error {
	rulesJSON, err := json.Marshal(s.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal strategy rules: %w", err)
	}

	query := `
		INSERT INTO strategies (id, user_id, session_id, name, pattern, rules, completion_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		s.ID,
		s.UserID,
		s.SessionID,
		s.Name,
		string(s.Pattern),
		rulesJSON,
		s.CompletionScore,
	).Scan(&s.CreatedAt)
}

// GetByID fetches one strategy.
func (r *StrategyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Strategy, error) {
	query := `
		SELECT id, user_id, session_id, name, pattern, rules, completion_score, created_at
		FROM strategies
		WHERE id = $1`

	var (
		s         models.Strategy
		pattern   string
		rulesJSON []byte
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.SessionID, &s.Name, &pattern, &rulesJSON, &s.CompletionScore, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Pattern = strategy.CanonicalPattern(pattern)
	if err := json.Unmarshal(rulesJSON, &s.Rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal strategy rules: %w", err)
	}
	return &s, nil
}

// ListByUser returns a user's strategies, newest first.
func (r *StrategyRepository) ListByUser(ctx context.Context, userID string) ([]models.Strategy, error) {
	query := `
		SELECT id, user_id, session_id, name, pattern, rules, completion_score, created_at
		FROM strategies
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var strategies []models.Strategy
	for rows.Next() {
		var (
			s         models.Strategy
			pattern   string
			rulesJSON []byte
		)
		if err := rows.Scan(&s.ID, &s.UserID, &s.SessionID, &s.Name, &pattern, &rulesJSON, &s.CompletionScore, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Pattern = strategy.CanonicalPattern(pattern)
		if err := json.Unmarshal(rulesJSON, &s.Rules); err != nil {
			return nil, fmt.Errorf("failed to unmarshal strategy rules: %w", err)
		}
		strategies = append(strategies, s)
	}
	return strategies, rows.Err()
}

// Delete removes a strategy owned by the given user. It reports whether a
// row was removed.
func (r *StrategyRepository) Delete(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM strategies WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
