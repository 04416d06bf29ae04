package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/kestrelhq/stratagem/internal/middleware"
	"github.com/kestrelhq/stratagem/internal/models"
)

// StrategyReader lists and fetches persisted strategies.
// database.StrategyRepository satisfies it.
type StrategyReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Strategy, error)
	ListByUser(ctx context.Context, userID string) ([]models.Strategy, error)
	Delete(ctx context.Context, id uuid.UUID, userID string) (bool, error)
}

// StrategiesHandler serves the saved-strategy endpoints.
type StrategiesHandler struct {
	repo   StrategyReader
	logger *zap.Logger
}

func NewStrategiesHandler(repo StrategyReader, logger *zap.Logger) *StrategiesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StrategiesHandler{repo: repo, logger: logger}
}

// unavailable rejects requests while Postgres is down. The chat endpoints
// keep working; only saved strategies need the database.
func (h *StrategiesHandler) unavailable(c *gin.Context) bool {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "strategy storage is unavailable"})
		return true
	}
	return false
}

// ListStrategies returns the authenticated user's saved strategies.
func (h *StrategiesHandler) ListStrategies(c *gin.Context) {
	if h.unavailable(c) {
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	strategies, err := h.repo.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list strategies", zap.Error(err))
		middleware.RecordError(c, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list strategies"})
		return
	}
	if strategies == nil {
		strategies = []models.Strategy{}
	}
	c.JSON(http.StatusOK, gin.H{"strategies": strategies})
}

// GetStrategy fetches one saved strategy. Ownership is enforced; strategies
// are private to their creator.
func (h *StrategiesHandler) GetStrategy(c *gin.Context) {
	if h.unavailable(c) {
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid strategy ID"})
		return
	}

	saved, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
			return
		}
		h.logger.Error("failed to load strategy", zap.Error(err))
		middleware.RecordError(c, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load strategy"})
		return
	}
	if saved.UserID != userID {
		// Do not reveal that the strategy exists.
		c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
		return
	}
	c.JSON(http.StatusOK, saved)
}

// DeleteStrategy removes one of the user's saved strategies.
func (h *StrategiesHandler) DeleteStrategy(c *gin.Context) {
	if h.unavailable(c) {
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid strategy ID"})
		return
	}

	deleted, err := h.repo.Delete(c.Request.Context(), id, userID)
	if err != nil {
		h.logger.Error("failed to delete strategy", zap.Error(err))
		middleware.RecordError(c, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete strategy"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
