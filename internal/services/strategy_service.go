package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrelhq/stratagem/internal/models"
	"github.com/kestrelhq/stratagem/internal/strategy"
)

// ErrDraftNotReady blocks finalization while required fields are missing or
// blocking errors remain.
type ErrDraftNotReady struct {
	State  strategy.DraftState
	Issues []strategy.ValidationIssue
}

func (e ErrDraftNotReady) Error() string {
	return fmt.Sprintf("draft is %s with %d open issues", e.State, len(e.Issues))
}

// ErrNotSessionOwner indicates a finalize attempt against someone else's session.
type ErrNotSessionOwner struct {
	SessionID uuid.UUID
}

func (e ErrNotSessionOwner) Error() string {
	return fmt.Sprintf("session %s belongs to a different user", e.SessionID)
}

// StrategyStore persists finalized strategies. database.StrategyRepository
// satisfies it.
type StrategyStore interface {
	Create(ctx context.Context, s *models.Strategy) error
}

// WaitlistStore records interest in unsupported patterns.
// database.WaitlistRepository satisfies it.
type WaitlistStore interface {
	Create(ctx context.Context, entry *models.WaitlistEntry) error
	CountByPattern(ctx context.Context, identifier string) (int64, error)
}

// StrategyService owns the exit paths of a chat session: saving a validated
// strategy, or capturing a waitlist entry for an unsupported pattern.
type StrategyService struct {
	drafts     *DraftStore
	strategies StrategyStore
	waitlist   WaitlistStore
	pipeline   *strategy.Pipeline
	logger     *zap.Logger
}

// NewStrategyService wires the finalization dependencies. A nil logger falls
// back to no-op.
func NewStrategyService(drafts *DraftStore, strategies StrategyStore, waitlist WaitlistStore, pipeline *strategy.Pipeline, logger *zap.Logger) *StrategyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StrategyService{
		drafts:     drafts,
		strategies: strategies,
		waitlist:   waitlist,
		pipeline:   pipeline,
		logger:     logger,
	}
}

// Finalize turns a complete, error-free draft into a persisted strategy and
// discards the draft. Warnings do not block; missing required fields and
// blocking errors do.
func (s *StrategyService) Finalize(ctx context.Context, sessionID uuid.UUID, userID, name string) (*models.Strategy, error) {
	if s.strategies == nil {
		return nil, fmt.Errorf("strategy storage is unavailable")
	}

	draft, err := s.drafts.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if draft.UserID != userID {
		return nil, ErrNotSessionOwner{SessionID: sessionID}
	}

	validation := s.pipeline.Evaluate(draft.Pattern, draft.Rules, false)
	if !validation.IsComplete {
		issues := append([]strategy.ValidationIssue{}, validation.RequiredMissing...)
		issues = append(issues, validation.Errors...)
		return nil, ErrDraftNotReady{State: validation.State, Issues: issues}
	}

	if strings.TrimSpace(name) == "" {
		name = defaultStrategyName(draft)
	}

	saved := &models.Strategy{
		ID:              uuid.New(),
		UserID:          userID,
		SessionID:       draft.ID,
		Name:            name,
		Pattern:         draft.Pattern,
		Rules:           draft.Rules,
		CompletionScore: validation.CompletionScore,
	}
	if err := s.strategies.Create(ctx, saved); err != nil {
		return nil, fmt.Errorf("failed to save strategy: %w", err)
	}

	if err := s.drafts.Delete(ctx, sessionID); err != nil {
		// The strategy is saved; a lingering draft only wastes its TTL.
		s.logger.Warn("failed to delete draft after finalize",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
	}

	s.logger.Info("strategy finalized",
		zap.String("strategy_id", saved.ID.String()),
		zap.String("pattern", string(saved.Pattern)),
		zap.Int("completion_score", saved.CompletionScore),
	)
	return saved, nil
}

// WaitlistResult is the response to a waitlist capture: the stored entry plus
// the two closest supported patterns to steer the user toward meanwhile.
type WaitlistResult struct {
	Entry        *models.WaitlistEntry       `json:"entry"`
	Alternatives []strategy.CanonicalPattern `json:"alternatives"`
	Interested   int64                       `json:"interested"`
}

// JoinWaitlist records interest in an unsupported pattern.
func (s *StrategyService) JoinWaitlist(ctx context.Context, sessionID uuid.UUID, identifier, contact string) (*WaitlistResult, error) {
	if s.waitlist == nil {
		return nil, fmt.Errorf("waitlist storage is unavailable")
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("pattern identifier is required")
	}
	if detected := strategy.DetectPattern(identifier); detected != strategy.PatternUnsupported {
		return nil, fmt.Errorf("pattern %q is already supported", identifier)
	}

	entry := &models.WaitlistEntry{
		ID:                uuid.New(),
		SessionID:         sessionID,
		PatternIdentifier: identifier,
		Contact:           contact,
	}
	if err := s.waitlist.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save waitlist entry: %w", err)
	}

	interested, err := s.waitlist.CountByPattern(ctx, identifier)
	if err != nil {
		s.logger.Warn("failed to count waitlist entries", zap.Error(err))
		interested = 0
	}

	s.logger.Info("waitlist entry captured",
		zap.String("pattern_identifier", identifier),
		zap.Int64("interested", interested),
	)
	return &WaitlistResult{
		Entry:        entry,
		Alternatives: strategy.SuggestAlternatives(identifier),
		Interested:   interested,
	}, nil
}

func defaultStrategyName(draft *StrategyDraft) string {
	parts := []string{}
	if rule, found := strategy.FindRule(draft.Rules, "Instrument"); found {
		parts = append(parts, rule.Value)
	}
	parts = append(parts, patternWords(draft.Pattern))
	parts = append(parts, time.Now().Format("Jan 2"))
	return strings.Join(parts, " ")
}

func patternWords(p strategy.CanonicalPattern) string {
	return strings.ReplaceAll(string(p), "_", " ")
}
