package database

import (
	"context"

	"github.com/kestrelhq/stratagem/internal/models"
)

// WaitlistRepository records interest in unsupported patterns.
type WaitlistRepository struct {
	pool Querier
}

func NewWaitlistRepository(pool Querier) *WaitlistRepository {
	return &WaitlistRepository{pool: pool}
}

// Create inserts a waitlist entry.
func (r *WaitlistRepository) Create(ctx context.Context, entry *models.WaitlistEntry) error {
	query := `
		INSERT INTO pattern_waitlist (id, session_id, pattern_identifier, contact)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		entry.ID,
		entry.SessionID,
		entry.PatternIdentifier,
		entry.Contact,
	).Scan(&entry.CreatedAt)
}

// CountByPattern reports how many entries exist for a pattern identifier.
// The product team uses it to rank which pattern to formalize next.
func (r *WaitlistRepository) CountByPattern(ctx context.Context, identifier string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM pattern_waitlist WHERE pattern_identifier = $1`,
		identifier,
	).Scan(&count)
	return count, err
}
