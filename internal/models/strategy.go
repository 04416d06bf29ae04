package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kestrelhq/stratagem/internal/strategy"
)

// Strategy is a finalized, validated strategy persisted for a user. Only
// drafts that passed validation with zero blocking errors reach this table.
type Strategy struct {
	ID              uuid.UUID                 `json:"id" db:"id"`
	UserID          string                    `json:"user_id" db:"user_id"`
	SessionID       uuid.UUID                 `json:"session_id" db:"session_id"`
	Name            string                    `json:"name" db:"name"`
	Pattern         strategy.CanonicalPattern `json:"pattern" db:"pattern"`
	Rules           []strategy.StrategyRule   `json:"rules" db:"rules"`
	CompletionScore int                       `json:"completion_score" db:"completion_score"`
	CreatedAt       time.Time                 `json:"created_at" db:"created_at"`
}

// WaitlistEntry records interest in a pattern the system cannot formally
// validate yet.
type WaitlistEntry struct {
	ID                uuid.UUID `json:"id" db:"id"`
	SessionID         uuid.UUID `json:"session_id" db:"session_id"`
	PatternIdentifier string    `json:"pattern_identifier" db:"pattern_identifier"`
	Contact           string    `json:"contact,omitempty" db:"contact"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}
