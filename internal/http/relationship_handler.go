package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-engine/internal/domain"
	"persona-engine/internal/service"
)

// RelationshipHandler expone el arco de relacion persona-usuario.
type RelationshipHandler struct {
	logger        *zap.Logger
	relationships *service.RelationshipEngine
}

// NewRelationshipHandler crea una instancia de RelationshipHandler con dependencias necesarias.
func NewRelationshipHandler(logger *zap.Logger, relationships *service.RelationshipEngine) *RelationshipHandler {
	return &RelationshipHandler{
		logger:        logger,
		relationships: relationships,
	}
}

// GetRelationship maneja GET /relationships/:persona_id/:user_id.
func (h *RelationshipHandler) GetRelationship(c *gin.Context) {
	state, err := h.relationships.Relationship(c.Request.Context(), c.Param("persona_id"), c.Param("user_id"))
	if err != nil {
		h.logger.Error("get relationship failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch relationship"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"relationship": state})
}

// GetGuidance maneja GET /relationships/:persona_id/:user_id/guidance.
func (h *RelationshipHandler) GetGuidance(c *gin.Context) {
	state, err := h.relationships.Relationship(c.Request.Context(), c.Param("persona_id"), c.Param("user_id"))
	if err != nil {
		h.logger.Error("get relationship failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch relationship"})
		return
	}
	behavior, _ := h.relationships.Behavior(state.Stage)
	c.JSON(http.StatusOK, gin.H{
		"stage":    state.Stage,
		"behavior": behavior,
		"guidance": h.relationships.BuildGuidance(state),
	})
}

// RecordEvent maneja POST /relationships/:persona_id/:user_id/events.
func (h *RelationshipHandler) RecordEvent(c *gin.Context) {
	var ev domain.RelationshipEvent
	if err := c.ShouldBindJSON(&ev); err != nil || ev.Type == "" {
		h.logger.Warn("invalid relationship event", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	update, err := h.relationships.RecordEvent(c.Request.Context(), c.Param("persona_id"), c.Param("user_id"), ev)
	if errors.Is(err, service.ErrUnknownEvent) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type"})
		return
	}
	h.writeUpdate(c, "record event", update, err)
}

// RecordConversation maneja POST /relationships/:persona_id/:user_id/conversations.
func (h *RelationshipHandler) RecordConversation(c *gin.Context) {
	var in domain.Interaction
	if err := c.ShouldBindJSON(&in); err != nil {
		h.logger.Warn("invalid conversation payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	update, err := h.relationships.RecordConversation(c.Request.Context(), c.Param("persona_id"), c.Param("user_id"), in)
	h.writeUpdate(c, "record conversation", update, err)
}

// CheckMilestones maneja POST /relationships/:persona_id/:user_id/milestones.
func (h *RelationshipHandler) CheckMilestones(c *gin.Context) {
	var mc domain.MilestoneContext
	if err := c.ShouldBindJSON(&mc); err != nil {
		h.logger.Warn("invalid milestone context", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	update, err := h.relationships.CheckMilestones(c.Request.Context(), c.Param("persona_id"), c.Param("user_id"), mc)
	h.writeUpdate(c, "check milestones", update, err)
}

// AddSharedExperience maneja POST /relationships/:persona_id/:user_id/experiences.
func (h *RelationshipHandler) AddSharedExperience(c *gin.Context) {
	var req struct {
		Kind         string  `json:"kind"`
		Description  string  `json:"description" binding:"required"`
		Significance float64 `json:"significance"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid shared experience", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	update, err := h.relationships.AddSharedExperience(c.Request.Context(), c.Param("persona_id"), c.Param("user_id"), req.Kind, req.Description, req.Significance)
	h.writeUpdate(c, "add shared experience", update, err)
}

// UpdateUserProfile maneja PATCH /relationships/:persona_id/:user_id/profile.
func (h *RelationshipHandler) UpdateUserProfile(c *gin.Context) {
	var profile domain.UserProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		h.logger.Warn("invalid user profile", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	update, err := h.relationships.UpdateUserProfile(c.Request.Context(), c.Param("persona_id"), c.Param("user_id"), profile)
	h.writeUpdate(c, "update user profile", update, err)
}

func (h *RelationshipHandler) writeUpdate(c *gin.Context, op string, update domain.RelationshipUpdate, err error) {
	if err != nil {
		h.logger.Error(op+" failed",
			zap.String("persona_id", c.Param("persona_id")),
			zap.String("user_id", c.Param("user_id")),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not " + op})
		return
	}
	c.JSON(http.StatusOK, gin.H{"update": update})
}
