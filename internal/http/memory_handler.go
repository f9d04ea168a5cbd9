package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"persona-engine/internal/domain"
	"persona-engine/internal/repository"
	"persona-engine/internal/service"
)

// MemoryHandler expone el almacenamiento y la recuperacion de recuerdos.
type MemoryHandler struct {
	logger   *zap.Logger
	memories *service.MemoryManager
}

// NewMemoryHandler crea una instancia de MemoryHandler con dependencias necesarias.
func NewMemoryHandler(logger *zap.Logger, memories *service.MemoryManager) *MemoryHandler {
	return &MemoryHandler{
		logger:   logger,
		memories: memories,
	}
}

// StoreMemory maneja POST /personas/:persona_id/memories.
func (h *MemoryHandler) StoreMemory(c *gin.Context) {
	var req struct {
		Content    string            `json:"content" binding:"required"`
		UserID     string            `json:"user_id"`
		Type       domain.MemoryType `json:"type"`
		Importance float64           `json:"importance"`
		Confidence float64           `json:"confidence"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid store memory request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	mem, err := h.memories.Store(c.Request.Context(), c.Param("persona_id"), req.Content, domain.MemoryMetadata{
		UserID:     req.UserID,
		Type:       req.Type,
		Importance: req.Importance,
		Confidence: req.Confidence,
	})
	if err != nil {
		if errors.Is(err, service.ErrEmptyContent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
			return
		}
		h.logger.Error("store memory failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store memory"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"memory": mem})
}

// ListMemories maneja GET /personas/:persona_id/memories.
func (h *MemoryHandler) ListMemories(c *gin.Context) {
	filter := repository.MemoryFilter{UserID: c.Query("user_id")}
	if t := c.Query("type"); t != "" {
		filter.Types = []domain.MemoryType{domain.MemoryType(t)}
	}
	list, err := h.memories.List(c.Request.Context(), c.Param("persona_id"), filter)
	if err != nil {
		h.logger.Error("list memories failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list memories"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": list})
}

// RecallMemories maneja POST /personas/:persona_id/memories/recall.
func (h *MemoryHandler) RecallMemories(c *gin.Context) {
	var req struct {
		Query string `json:"query" binding:"required"`
		service.RecallOptions
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid recall request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ranked, err := h.memories.Recall(c.Request.Context(), c.Param("persona_id"), req.Query, req.RecallOptions)
	if err != nil {
		h.logger.Error("recall failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not recall memories"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": ranked})
}

// ExtractMemories maneja POST /personas/:persona_id/memories/extract.
func (h *MemoryHandler) ExtractMemories(c *gin.Context) {
	var req struct {
		UserID         string `json:"user_id"`
		UserMessage    string `json:"user_message" binding:"required"`
		PersonaMessage string `json:"persona_message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid extract request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	stored, err := h.memories.Extract(c.Request.Context(), c.Param("persona_id"), req.UserID, req.UserMessage, req.PersonaMessage)
	if err != nil {
		if errors.Is(err, service.ErrCompletionNotConfigured) {
			c.JSON(http.StatusNotImplemented, gin.H{"error": "memory extraction not configured"})
			return
		}
		h.logger.Error("extract memories failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not extract memories"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": stored})
}

// TouchMemory maneja POST /memories/:memory_id/touch.
func (h *MemoryHandler) TouchMemory(c *gin.Context) {
	id, ok := h.memoryID(c)
	if !ok {
		return
	}
	mem, err := h.memories.Touch(c.Request.Context(), id)
	if err != nil {
		h.writeMemoryError(c, "touch", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memory": mem})
}

// ForgetMemory maneja DELETE /memories/:memory_id.
func (h *MemoryHandler) ForgetMemory(c *gin.Context) {
	id, ok := h.memoryID(c)
	if !ok {
		return
	}
	if err := h.memories.Forget(c.Request.Context(), id); err != nil {
		h.writeMemoryError(c, "forget", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *MemoryHandler) memoryID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("memory_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid memory id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *MemoryHandler) writeMemoryError(c *gin.Context, op string, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "memory not found"})
		return
	}
	h.logger.Error(op+" memory failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "could not " + op + " memory"})
}
