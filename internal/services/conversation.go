package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrelhq/stratagem/internal/ai/llm"
	"github.com/kestrelhq/stratagem/internal/config"
	"github.com/kestrelhq/stratagem/internal/models"
	"github.com/kestrelhq/stratagem/internal/prompt"
	"github.com/kestrelhq/stratagem/internal/strategy"
)

const sessionLockTTL = 30 * time.Second

// ErrSessionBusy indicates another turn is already being processed for the
// session. The client should retry after the in-flight turn settles.
type ErrSessionBusy struct {
	SessionID uuid.UUID
}

func (e ErrSessionBusy) Error() string {
	return fmt.Sprintf("session %s has a turn in flight", e.SessionID)
}

// ErrTurnLimitReached indicates the session hit its configured turn budget.
type ErrTurnLimitReached struct {
	SessionID uuid.UUID
	MaxTurns  int
}

func (e ErrTurnLimitReached) Error() string {
	return fmt.Sprintf("session %s reached the %d turn limit", e.SessionID, e.MaxTurns)
}

// ErrMessageNotFound indicates a truncation target that is not in the session.
type ErrMessageNotFound struct {
	MessageID uuid.UUID
}

func (e ErrMessageNotFound) Error() string {
	return fmt.Sprintf("message %s not found in session", e.MessageID)
}

// SessionLocker serializes turns per session. database.RedisClient satisfies it.
type SessionLocker interface {
	AcquireLock(ctx context.Context, key string, expiration time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
}

// DeltaSink receives clean display-text increments while an assistant turn
// streams. Partial tagged blocks never reach the sink.
type DeltaSink func(delta string)

// TurnResult is everything one assistant turn produced.
type TurnResult struct {
	Draft        *StrategyDraft              `json:"-"`
	Message      models.ChatMessage          `json:"message"`
	CleanText    string                      `json:"clean_text"`
	Extracted    bool                        `json:"extracted"`
	Validation   strategy.ValidationResult   `json:"validation"`
	Alternatives []strategy.CanonicalPattern `json:"alternatives,omitempty"`
}

// ConversationService drives the chat loop: it prompts the model, extracts
// tagged blocks from the streamed reply, merges them into the session draft,
// and re-runs the validation pipeline after every change.
type ConversationService struct {
	drafts    *DraftStore
	locks     SessionLocker
	client    llm.Client
	prompts   *prompt.Builder
	extractor *strategy.Extractor
	pipeline  *strategy.Pipeline
	chatCfg   config.ChatConfig
	aiCfg     config.AIConfig
	logger    *zap.Logger
}

// NewConversationService wires the chat loop dependencies. A nil logger falls
// back to no-op.
func NewConversationService(
	drafts *DraftStore,
	locks SessionLocker,
	client llm.Client,
	prompts *prompt.Builder,
	extractor *strategy.Extractor,
	pipeline *strategy.Pipeline,
	chatCfg config.ChatConfig,
	aiCfg config.AIConfig,
	logger *zap.Logger,
) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{
		drafts:    drafts,
		locks:     locks,
		client:    client,
		prompts:   prompts,
		extractor: extractor,
		pipeline:  pipeline,
		chatCfg:   chatCfg,
		aiCfg:     aiCfg,
		logger:    logger,
	}
}

// StartSession creates an empty draft for a new conversation.
func (s *ConversationService) StartSession(ctx context.Context, userID string) (*StrategyDraft, error) {
	now := time.Now()
	draft := &StrategyDraft{
		ID:        uuid.New(),
		UserID:    userID,
		Pattern:   strategy.PatternUnsupported,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.drafts.Save(ctx, draft); err != nil {
		return nil, err
	}
	s.logger.Info("chat session started",
		zap.String("session_id", draft.ID.String()),
		zap.String("user_id", userID),
	)
	return draft, nil
}

// Session loads the display projection of a session's conversation.
func (s *ConversationService) Session(ctx context.Context, sessionID uuid.UUID) (*models.ChatSession, error) {
	draft, err := s.drafts.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return draft.ToSession(s.extractor), nil
}

// ProcessMessage runs one full turn: append the user message, stream the
// assistant reply through the extractor, merge any extracted config into the
// draft, and re-validate. sink may be nil for non-streaming callers.
func (s *ConversationService) ProcessMessage(ctx context.Context, sessionID uuid.UUID, userText string, sink DeltaSink) (*TurnResult, error) {
	release, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	draft, err := s.drafts.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.chatCfg.MaxTurns > 0 && draft.AssistantTurns >= s.chatCfg.MaxTurns {
		return nil, ErrTurnLimitReached{SessionID: sessionID, MaxTurns: s.chatCfg.MaxTurns}
	}

	draft.Messages = append(draft.Messages, models.ChatMessage{
		ID:        uuid.New(),
		Role:      models.RoleUser,
		Content:   userText,
		CreatedAt: time.Now(),
	})

	raw, err := s.streamAssistantReply(ctx, draft, sink)
	if err != nil {
		return nil, err
	}

	return s.applyAssistantReply(ctx, draft, raw)
}

// ApplyAssistantTurn folds an assistant reply produced outside this service
// into the draft. The UI uses it when it owns the model stream itself.
func (s *ConversationService) ApplyAssistantTurn(ctx context.Context, sessionID uuid.UUID, raw string) (*TurnResult, error) {
	release, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	draft, err := s.drafts.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.chatCfg.MaxTurns > 0 && draft.AssistantTurns >= s.chatCfg.MaxTurns {
		return nil, ErrTurnLimitReached{SessionID: sessionID, MaxTurns: s.chatCfg.MaxTurns}
	}

	return s.applyAssistantReply(ctx, draft, raw)
}

// streamAssistantReply runs the model over the conversation and accumulates
// the raw reply, forwarding only clean text to the sink as it grows.
func (s *ConversationService) streamAssistantReply(ctx context.Context, draft *StrategyDraft, sink DeltaSink) (string, error) {
	systemPrompt, err := s.buildSystemPrompt(draft)
	if err != nil {
		return "", err
	}

	messages := make([]llm.Message, 0, len(draft.Messages)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	for _, msg := range draft.Messages {
		messages = append(messages, llm.Message{Role: llm.Role(msg.Role), Content: msg.Content})
	}

	events, err := s.client.Stream(ctx, &llm.CompletionRequest{
		Model:     s.aiCfg.Model,
		Messages:  messages,
		MaxTokens: s.aiCfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start completion stream: %w", err)
	}

	// Offsets are tracked against the untrimmed clean text; the trimmed
	// CleanText of TryExtractFromStream shifts once a block completes.
	var buffer string
	sentClean := 0
	started := false
	for event := range events {
		switch event.Type {
		case llm.StreamEventContentDelta:
			buffer += event.Delta
			if sink != nil {
				clean := s.extractor.StreamCleanText(buffer)
				// Hold back a possible half-received start delimiter so
				// fragments like "[ANIMA" never flash on screen.
				safe := len(clean) - delimiterHoldback(clean)
				if !started {
					// Leading whitespace is trimmed from the final display
					// text, so it never goes to the sink either.
					lead := len(clean) - len(strings.TrimLeft(clean, " \t\r\n"))
					if lead < safe {
						started = true
					} else {
						lead = safe
					}
					sentClean = lead
				}
				if safe > sentClean {
					sink(clean[sentClean:safe])
					sentClean = safe
				}
			}
		case llm.StreamEventError:
			return "", fmt.Errorf("completion stream failed: %w", event.Error)
		}
	}

	if sink != nil {
		clean := s.extractor.StreamCleanText(buffer)
		if !started {
			lead := len(clean) - len(strings.TrimLeft(clean, " \t\r\n"))
			if lead > sentClean {
				sentClean = lead
			}
		}
		end := len(strings.TrimRight(clean, " \t\r\n"))
		if end > sentClean {
			sink(clean[sentClean:end])
		}
	}

	return buffer, nil
}

// delimiterHoldback returns the length of the longest suffix of s that is a
// prefix of the block start delimiter.
func delimiterHoldback(s string) int {
	longest := len(strategy.BlockStartDelimiter) - 1
	if longest > len(s) {
		longest = len(s)
	}
	for n := longest; n > 0; n-- {
		if strings.HasSuffix(s, strategy.BlockStartDelimiter[:n]) {
			return n
		}
	}
	return 0
}

func (s *ConversationService) buildSystemPrompt(draft *StrategyDraft) (string, error) {
	promptCtx := prompt.Context{
		Pattern:    draft.Pattern,
		KnownRules: draft.Rules,
		FirstTurn:  draft.AssistantTurns == 0,
	}
	if draft.Pattern != strategy.PatternUnsupported {
		validation := s.pipeline.Evaluate(draft.Pattern, draft.Rules, promptCtx.FirstTurn)
		for _, issue := range validation.RequiredMissing {
			promptCtx.MissingLabels = append(promptCtx.MissingLabels, issue.Label)
		}
	}
	return s.prompts.BuildSystemPrompt(promptCtx)
}

// applyAssistantReply records the raw reply, folds any extracted config into
// the draft, applies safe defaults, and returns the validation snapshot.
func (s *ConversationService) applyAssistantReply(ctx context.Context, draft *StrategyDraft, raw string) (*TurnResult, error) {
	firstTurn := draft.AssistantTurns == 0

	message := models.ChatMessage{
		ID:        uuid.New(),
		Role:      models.RoleAssistant,
		Content:   raw,
		CreatedAt: time.Now(),
	}
	draft.Messages = append(draft.Messages, message)
	draft.AssistantTurns++

	extraction := s.extractor.TryExtractFromStream(raw)
	result := &TurnResult{
		Draft:     draft,
		Message:   message,
		CleanText: extraction.CleanText,
		Extracted: extraction.ExtractedSuccessfully,
	}

	if extraction.ExtractedSuccessfully {
		draft.Config = strategy.MergeConfig(draft.Config, extraction.Config)
		draft.PatternIdentifier = draft.Config.Type
		draft.Pattern = strategy.DetectPattern(draft.Config.Type)

		rs, err := draft.RuleSet()
		if err != nil {
			return nil, err
		}
		if err := rs.UpsertAll(strategy.ConfigToRules(draft.Config)); err != nil {
			return nil, fmt.Errorf("failed to apply extracted rules: %w", err)
		}
		draft.Rules = rs.Rules()
	}

	if draft.Pattern == strategy.PatternUnsupported && draft.PatternIdentifier != "" {
		result.Alternatives = strategy.SuggestAlternatives(draft.PatternIdentifier)
	}

	result.Validation = s.pipeline.Evaluate(draft.Pattern, draft.Rules, firstTurn)
	if len(result.Validation.Defaults) > 0 {
		if err := s.applyDefaults(draft, result.Validation.Defaults); err != nil {
			return nil, err
		}
	}

	if err := s.drafts.Save(ctx, draft); err != nil {
		return nil, err
	}

	s.logger.Info("assistant turn applied",
		zap.String("session_id", draft.ID.String()),
		zap.String("pattern", string(draft.Pattern)),
		zap.Bool("extracted", result.Extracted),
		zap.Int("completion_score", result.Validation.CompletionScore),
		zap.String("state", string(result.Validation.State)),
	)
	return result, nil
}

// applyDefaults persists engine defaults as editable rules so the user can
// see and override them.
func (s *ConversationService) applyDefaults(draft *StrategyDraft, defaults []strategy.StrategyRule) error {
	rs, err := draft.RuleSet()
	if err != nil {
		return err
	}
	if err := rs.UpsertAll(defaults); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}
	draft.Rules = rs.Rules()
	return nil
}

// UpdateRules applies direct user edits to the rule set and re-validates.
// Edits arrive from the structured rule editor, not from chat.
func (s *ConversationService) UpdateRules(ctx context.Context, sessionID uuid.UUID, updates []strategy.StrategyRule) (*TurnResult, error) {
	release, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	draft, err := s.drafts.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rs, err := draft.RuleSet()
	if err != nil {
		return nil, err
	}
	for i := range updates {
		// A direct edit is always the user speaking.
		updates[i].Source = strategy.SourceUser
		updates[i].IsDefaulted = false
	}
	if err := rs.UpsertAll(updates); err != nil {
		return nil, fmt.Errorf("invalid rule update: %w", err)
	}
	draft.Rules = rs.Rules()

	result := &TurnResult{
		Draft:      draft,
		Validation: s.pipeline.Evaluate(draft.Pattern, draft.Rules, false),
	}
	if err := s.drafts.Save(ctx, draft); err != nil {
		return nil, err
	}
	return result, nil
}

// Truncate removes the given message and everything after it, then rebuilds
// the draft config and rules by re-extracting the surviving assistant
// messages in order. Direct rule edits made after the cut point are lost.
func (s *ConversationService) Truncate(ctx context.Context, sessionID uuid.UUID, messageID uuid.UUID) (*TurnResult, error) {
	release, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	draft, err := s.drafts.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	cut := -1
	for i, msg := range draft.Messages {
		if msg.ID == messageID {
			cut = i
			break
		}
	}
	if cut < 0 {
		return nil, ErrMessageNotFound{MessageID: messageID}
	}
	draft.Messages = draft.Messages[:cut]

	if err := s.rebuildFromMessages(draft); err != nil {
		return nil, err
	}

	result := &TurnResult{
		Draft:      draft,
		Validation: s.pipeline.Evaluate(draft.Pattern, draft.Rules, draft.AssistantTurns <= 1),
	}
	if err := s.drafts.Save(ctx, draft); err != nil {
		return nil, err
	}

	s.logger.Info("session truncated",
		zap.String("session_id", draft.ID.String()),
		zap.Int("messages_remaining", len(draft.Messages)),
		zap.Int("rules_remaining", len(draft.Rules)),
	)
	return result, nil
}

// rebuildFromMessages replays the surviving assistant messages through the
// extractor to reconstruct config, pattern, and rules from scratch.
func (s *ConversationService) rebuildFromMessages(draft *StrategyDraft) error {
	draft.Config = nil
	draft.Pattern = strategy.PatternUnsupported
	draft.PatternIdentifier = ""
	draft.Rules = nil
	draft.AssistantTurns = 0

	rs := strategy.NewRuleSet()
	for _, msg := range draft.Messages {
		if msg.Role != models.RoleAssistant {
			continue
		}
		draft.AssistantTurns++

		extraction := s.extractor.TryExtractFromStream(msg.Content)
		if !extraction.ExtractedSuccessfully {
			continue
		}
		draft.Config = strategy.MergeConfig(draft.Config, extraction.Config)
		draft.PatternIdentifier = draft.Config.Type
		draft.Pattern = strategy.DetectPattern(draft.Config.Type)
		if err := rs.UpsertAll(strategy.ConfigToRules(draft.Config)); err != nil {
			return fmt.Errorf("failed to rebuild rules: %w", err)
		}
	}
	draft.Rules = rs.Rules()
	return nil
}

// Validation re-evaluates the current draft without changing it.
func (s *ConversationService) Validation(ctx context.Context, sessionID uuid.UUID) (strategy.ValidationResult, error) {
	draft, err := s.drafts.Load(ctx, sessionID)
	if err != nil {
		return strategy.ValidationResult{}, err
	}
	return s.pipeline.Evaluate(draft.Pattern, draft.Rules, draft.AssistantTurns <= 1), nil
}

// Abandon discards the session's draft.
func (s *ConversationService) Abandon(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.drafts.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info("session abandoned", zap.String("session_id", sessionID.String()))
	return nil
}

func (s *ConversationService) lockSession(ctx context.Context, sessionID uuid.UUID) (func(), error) {
	key := "chat:lock:" + sessionID.String()
	token, acquired, err := s.locks.AcquireLock(ctx, key, sessionLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !acquired {
		return nil, ErrSessionBusy{SessionID: sessionID}
	}
	return func() {
		if _, err := s.locks.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warn("failed to release session lock",
				zap.String("session_id", sessionID.String()),
				zap.Error(err),
			)
		}
	}, nil
}
