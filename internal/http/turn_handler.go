package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-engine/internal/domain"
	"persona-engine/internal/service"
)

// TurnHandler expone el pipeline por turno y la deteccion de emociones.
type TurnHandler struct {
	logger   *zap.Logger
	turns    *service.TurnService
	emotions *service.EmotionDetector
}

// NewTurnHandler crea una instancia de TurnHandler con dependencias necesarias.
func NewTurnHandler(logger *zap.Logger, turns *service.TurnService, emotions *service.EmotionDetector) *TurnHandler {
	return &TurnHandler{
		logger:   logger,
		turns:    turns,
		emotions: emotions,
	}
}

// ProcessTurn maneja POST /turns.
func (h *TurnHandler) ProcessTurn(c *gin.Context) {
	var req struct {
		PersonaID       string                 `json:"persona_id" binding:"required"`
		UserID          string                 `json:"user_id" binding:"required"`
		SessionID       string                 `json:"session_id"`
		Message         string                 `json:"message" binding:"required"`
		History         []domain.ChatTurn      `json:"history"`
		Mode            domain.InteractionMode `json:"mode"`
		DurationMinutes float64                `json:"duration_minutes"`
		UserInitiated   *bool                  `json:"user_initiated"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid turn request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	userInitiated := true
	if req.UserInitiated != nil {
		userInitiated = *req.UserInitiated
	}
	pc, err := h.turns.ProcessTurn(c.Request.Context(), domain.TurnInput{
		PersonaID:       req.PersonaID,
		UserID:          req.UserID,
		SessionID:       req.SessionID,
		Message:         req.Message,
		History:         req.History,
		Mode:            req.Mode,
		DurationMinutes: req.DurationMinutes,
		UserInitiated:   userInitiated,
	})
	if err != nil {
		h.logger.Error("process turn failed", zap.String("persona_id", req.PersonaID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not process turn"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"context": pc})
}

// RecordResponse maneja POST /turns/response.
func (h *TurnHandler) RecordResponse(c *gin.Context) {
	var req struct {
		PersonaID string `json:"persona_id" binding:"required"`
		Response  string `json:"response" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid response tracking request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	indicators, err := h.turns.RecordResponse(c.Request.Context(), req.PersonaID, req.Response)
	if err != nil {
		h.logger.Error("track response failed", zap.String("persona_id", req.PersonaID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not track response"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"drift_indicators": indicators})
}

// DetectEmotion maneja POST /emotions/detect.
func (h *TurnHandler) DetectEmotion(c *gin.Context) {
	var req struct {
		Text      string            `json:"text" binding:"required"`
		SessionID string            `json:"session_id"`
		History   []domain.ChatTurn `json:"history"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid detect request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.emotions.DetectAdvanced(c.Request.Context(), req.Text, req.SessionID, req.History)
	if err != nil {
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "request cancelled"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": res})
}

// GetSessionContext maneja GET /emotions/sessions/:session_id.
func (h *TurnHandler) GetSessionContext(c *gin.Context) {
	sessionID := c.Param("session_id")
	ec, ok := h.emotions.SessionContext(c.Request.Context(), sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session context not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"context": ec})
}
