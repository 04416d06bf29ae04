// Package handlers contains the gin HTTP handlers for the strategy chat API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrelhq/stratagem/internal/middleware"
	"github.com/kestrelhq/stratagem/internal/services"
	"github.com/kestrelhq/stratagem/internal/strategy"
)

// ChatHandler exposes the conversation endpoints: session lifecycle, message
// turns, direct rule edits, truncation, and finalization.
type ChatHandler struct {
	conversations *services.ConversationService
	strategies    *services.StrategyService
	logger        *zap.Logger
}

func NewChatHandler(conversations *services.ConversationService, strategies *services.StrategyService, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		conversations: conversations,
		strategies:    strategies,
		logger:        logger,
	}
}

// CreateSession starts a fresh chat session for the authenticated user.
func (h *ChatHandler) CreateSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	draft, err := h.conversations.StartSession(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": draft.ID,
		"created_at": draft.CreatedAt,
	})
}

// GetSession returns the display projection of a session's conversation.
// Tagged blocks are stripped from assistant messages.
func (h *ChatHandler) GetSession(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	session, err := h.conversations.Session(c.Request.Context(), sessionID)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type postMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// PostMessage runs one conversation turn. Clients that accept
// text/event-stream get the clean reply streamed as SSE data events followed
// by a final result event; everyone else gets the turn result as JSON.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.GetHeader("Accept") == "text/event-stream" {
		h.postMessageStreaming(c, sessionID, req.Content)
		return
	}

	result, err := h.conversations.ProcessMessage(c.Request.Context(), sessionID, req.Content, nil)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ChatHandler) postMessageStreaming(c *gin.Context, sessionID uuid.UUID, content string) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	sink := func(delta string) {
		c.SSEvent("delta", delta)
		c.Writer.Flush()
	}

	result, err := h.conversations.ProcessMessage(c.Request.Context(), sessionID, content, sink)
	if err != nil {
		// Headers are already out; the error has to travel in-band.
		h.logger.Error("streaming turn failed",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
		middleware.RecordError(c, err)
		c.SSEvent("error", gin.H{"error": err.Error()})
		c.Writer.Flush()
		return
	}

	c.SSEvent("result", result)
	c.Writer.Flush()
}

type postTurnRequest struct {
	Content string `json:"content" binding:"required"`
}

// PostTurn applies an assistant reply the client streamed itself. No model
// call happens; the reply is extracted and merged like any other turn.
func (h *ChatHandler) PostTurn(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req postTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.conversations.ApplyAssistantTurn(c.Request.Context(), sessionID, req.Content)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type updateRulesRequest struct {
	Rules []strategy.StrategyRule `json:"rules" binding:"required"`
}

// UpdateRules applies direct edits from the structured rule editor.
func (h *ChatHandler) UpdateRules(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req updateRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.conversations.UpdateRules(c.Request.Context(), sessionID, req.Rules)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type truncateRequest struct {
	MessageID uuid.UUID `json:"message_id" binding:"required"`
}

// Truncate rewinds the conversation to just before the given message and
// rebuilds the draft from the surviving turns.
func (h *ChatHandler) Truncate(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	var req truncateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.conversations.Truncate(c.Request.Context(), sessionID, req.MessageID)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetValidation re-evaluates the draft without changing it.
func (h *ChatHandler) GetValidation(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	validation, err := h.conversations.Validation(c.Request.Context(), sessionID)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, validation)
}

// AbandonSession discards the session's draft.
func (h *ChatHandler) AbandonSession(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}

	if err := h.conversations.Abandon(c.Request.Context(), sessionID); err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "abandoned"})
}

type finalizeRequest struct {
	Name string `json:"name"`
}

// Finalize saves a complete, error-free draft as a named strategy.
func (h *ChatHandler) Finalize(c *gin.Context) {
	sessionID, ok := h.sessionID(c)
	if !ok {
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	// An absent or empty body means "pick a name for me".
	var req finalizeRequest
	_ = c.ShouldBindJSON(&req)

	saved, err := h.strategies.Finalize(c.Request.Context(), sessionID, userID, req.Name)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (h *ChatHandler) sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return uuid.Nil, false
	}
	return id, true
}

// serviceError maps typed service errors onto HTTP statuses.
func (h *ChatHandler) serviceError(c *gin.Context, err error) {
	var (
		notFound    services.ErrDraftNotFound
		busy        services.ErrSessionBusy
		turnLimit   services.ErrTurnLimitReached
		msgNotFound services.ErrMessageNotFound
		notReady    services.ErrDraftNotReady
		notOwner    services.ErrNotSessionOwner
		badCategory strategy.ErrInvalidCategory
	)
	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.As(err, &msgNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &busy):
		c.JSON(http.StatusConflict, gin.H{"error": "a turn is already in flight for this session"})
	case errors.As(err, &turnLimit):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.As(err, &notOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "session belongs to a different user"})
	case errors.As(err, &notReady):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "draft is not ready to finalize",
			"state":  notReady.State,
			"issues": notReady.Issues,
		})
	case errors.As(err, &badCategory):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("chat handler failure", zap.Error(err))
		middleware.RecordError(c, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
