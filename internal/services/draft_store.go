package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kestrelhq/stratagem/internal/database"
	"github.com/kestrelhq/stratagem/internal/models"
	"github.com/kestrelhq/stratagem/internal/strategy"
)

// ErrDraftNotFound indicates the session has no draft, either because it was
// never started or because its TTL expired.
type ErrDraftNotFound struct {
	SessionID uuid.UUID
}

func (e ErrDraftNotFound) Error() string {
	return fmt.Sprintf("no draft for session %s", e.SessionID)
}

// StrategyDraft is the full per-session working state: the conversation so
// far, the merged extracted config, and the accumulated rule set. Assistant
// message content is stored raw, delimiters and all, so a truncated session
// can be rebuilt by re-extracting.
type StrategyDraft struct {
	ID                uuid.UUID                 `json:"id"`
	UserID            string                    `json:"user_id"`
	Pattern           strategy.CanonicalPattern `json:"pattern"`
	PatternIdentifier string                    `json:"pattern_identifier,omitempty"`
	Config            *strategy.StrategyConfig  `json:"config,omitempty"`
	Rules             []strategy.StrategyRule   `json:"rules"`
	Messages          []models.ChatMessage      `json:"messages"`
	AssistantTurns    int                       `json:"assistant_turns"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
}

// RuleSet rebuilds a mutable rule set from the persisted rules.
func (d *StrategyDraft) RuleSet() (*strategy.RuleSet, error) {
	rs := strategy.NewRuleSet()
	if err := rs.UpsertAll(d.Rules); err != nil {
		return nil, fmt.Errorf("failed to rebuild rule set: %w", err)
	}
	return rs, nil
}

// ToSession projects the draft into the chat session shape the API returns.
// Assistant content is stripped of tagged blocks on the way out.
func (d *StrategyDraft) ToSession(extractor *strategy.Extractor) *models.ChatSession {
	session := &models.ChatSession{
		ID:        d.ID,
		UserID:    d.UserID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, msg := range d.Messages {
		if msg.Role == models.RoleAssistant {
			msg.Content = extractor.StripBlock(msg.Content)
		}
		session.Messages = append(session.Messages, msg)
	}
	return session
}

// DraftStore persists strategy drafts in Redis with a sliding TTL. Drafts are
// working state, not records; expiry is the abandonment path.
type DraftStore struct {
	redis  *database.RedisClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewDraftStore creates a store. A nil logger falls back to no-op.
func NewDraftStore(redisClient *database.RedisClient, ttl time.Duration, logger *zap.Logger) *DraftStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftStore{redis: redisClient, ttl: ttl, logger: logger}
}

func draftKey(id uuid.UUID) string {
	return "draft:session:" + id.String()
}

// Save writes the draft and resets its TTL.
func (s *DraftStore) Save(ctx context.Context, draft *StrategyDraft) error {
	draft.UpdatedAt = time.Now()
	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	if err := s.redis.Set(ctx, draftKey(draft.ID), data, s.ttl); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// Load fetches the draft for a session.
func (s *DraftStore) Load(ctx context.Context, sessionID uuid.UUID) (*StrategyDraft, error) {
	data, err := s.redis.Get(ctx, draftKey(sessionID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrDraftNotFound{SessionID: sessionID}
		}
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}

	var draft StrategyDraft
	if err := json.Unmarshal([]byte(data), &draft); err != nil {
		s.logger.Warn("corrupted draft in redis, treating as missing",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
		return nil, ErrDraftNotFound{SessionID: sessionID}
	}
	return &draft, nil
}

// Delete removes the draft. Deleting a missing draft is not an error.
func (s *DraftStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	return s.redis.Delete(ctx, draftKey(sessionID))
}
