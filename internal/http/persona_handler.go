package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-engine/internal/domain"
	"persona-engine/internal/repository"
	"persona-engine/internal/service"
)

// PersonaHandler expone el ancla de personalidad y sus metricas de coherencia.
type PersonaHandler struct {
	logger   *zap.Logger
	personas repository.PersonaRepository
	anchors  *service.AnchorManager
}

// NewPersonaHandler crea una instancia de PersonaHandler. personas puede ser nil.
func NewPersonaHandler(logger *zap.Logger, personas repository.PersonaRepository, anchors *service.AnchorManager) *PersonaHandler {
	return &PersonaHandler{
		logger:   logger,
		personas: personas,
		anchors:  anchors,
	}
}

// CreateAnchor maneja POST /personas/:persona_id/anchor.
// Con cuerpo guarda la definicion y recalcula; sin cuerpo recalcula desde el repositorio.
func (h *PersonaHandler) CreateAnchor(c *gin.Context) {
	personaID := c.Param("persona_id")
	ctx := c.Request.Context()

	var def domain.PersonaDefinition
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&def); err != nil {
			h.logger.Warn("invalid persona definition", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		def.ID = personaID
		def.UpdatedAt = time.Now().UTC()
		if h.personas != nil {
			if err := h.personas.Upsert(ctx, def); err != nil {
				h.logger.Error("save persona definition failed", zap.String("persona_id", personaID), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save persona"})
				return
			}
		}
	} else {
		if h.personas == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "persona definition is required"})
			return
		}
		stored, err := h.personas.LoadAnchorSource(ctx, personaID)
		if err != nil {
			h.logger.Error("load persona definition failed", zap.String("persona_id", personaID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load persona"})
			return
		}
		if stored == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "persona not found"})
			return
		}
		def = *stored
	}

	anchor, err := h.anchors.CreateAnchor(ctx, def)
	if err != nil {
		h.logger.Error("create anchor failed", zap.String("persona_id", personaID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create anchor"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"anchor": anchor})
}

// GetAnchor maneja GET /personas/:persona_id/anchor.
func (h *PersonaHandler) GetAnchor(c *gin.Context) {
	personaID := c.Param("persona_id")
	anchor, ok, err := h.anchors.Anchor(c.Request.Context(), personaID)
	if err != nil {
		h.logger.Error("get anchor failed", zap.String("persona_id", personaID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch anchor"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "anchor not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"anchor": anchor})
}

// GetConsistency maneja GET /personas/:persona_id/consistency.
func (h *PersonaHandler) GetConsistency(c *gin.Context) {
	personaID := c.Param("persona_id")
	metrics, ok := h.anchors.Metrics(c.Request.Context(), personaID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "metrics not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"metrics":             metrics,
		"needs_reinforcement": h.anchors.NeedsReinforcement(c.Request.Context(), personaID, 0),
	})
}
