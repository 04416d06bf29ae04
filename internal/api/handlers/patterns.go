package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrelhq/stratagem/internal/prompt"
	"github.com/kestrelhq/stratagem/internal/services"
	"github.com/kestrelhq/stratagem/internal/strategy"
)

// PatternsHandler serves the static pattern catalog and the waitlist for
// patterns the system cannot formally validate yet.
type PatternsHandler struct {
	strategies *services.StrategyService
	logger     *zap.Logger
}

func NewPatternsHandler(strategies *services.StrategyService, logger *zap.Logger) *PatternsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatternsHandler{strategies: strategies, logger: logger}
}

// PatternDescriptor is one catalog entry: the canonical identifier, its
// display name, and the full field schema with display metadata.
type PatternDescriptor struct {
	Identifier  strategy.CanonicalPattern     `json:"identifier"`
	DisplayName string                        `json:"display_name"`
	Fields      []strategy.FieldSpec          `json:"fields"`
	FieldMeta   map[string]strategy.FieldMeta `json:"field_meta"`
}

// ListPatterns returns the catalog of formally supported patterns.
func (h *PatternsHandler) ListPatterns(c *gin.Context) {
	supported := strategy.SupportedPatterns()
	catalog := make([]PatternDescriptor, 0, len(supported))
	for _, p := range supported {
		fields, _ := strategy.PatternSchema(p)
		meta, _ := strategy.PatternFieldMeta(p)
		catalog = append(catalog, PatternDescriptor{
			Identifier:  p,
			DisplayName: prompt.PatternDisplayName(p),
			Fields:      fields,
			FieldMeta:   meta,
		})
	}
	c.JSON(http.StatusOK, gin.H{"patterns": catalog})
}

// GetPattern returns one catalog entry. Case and separator variants of a
// supported identifier resolve; unknown identifiers get a 404 with the
// closest alternatives.
func (h *PatternsHandler) GetPattern(c *gin.Context) {
	identifier := c.Param("id")
	p := strategy.DetectPattern(identifier)
	if p == strategy.PatternUnsupported {
		c.JSON(http.StatusNotFound, gin.H{
			"error":        "unsupported pattern",
			"alternatives": strategy.SuggestAlternatives(identifier),
		})
		return
	}

	fields, _ := strategy.PatternSchema(p)
	meta, _ := strategy.PatternFieldMeta(p)
	c.JSON(http.StatusOK, PatternDescriptor{
		Identifier:  p,
		DisplayName: prompt.PatternDisplayName(p),
		Fields:      fields,
		FieldMeta:   meta,
	})
}

type joinWaitlistRequest struct {
	SessionID         uuid.UUID `json:"session_id" binding:"required"`
	PatternIdentifier string    `json:"pattern_identifier" binding:"required"`
	Contact           string    `json:"contact"`
}

// JoinWaitlist records interest in an unsupported pattern and returns the
// closest supported alternatives.
func (h *PatternsHandler) JoinWaitlist(c *gin.Context) {
	var req joinWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.strategies.JoinWaitlist(c.Request.Context(), req.SessionID, req.PatternIdentifier, req.Contact)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, result)
}
