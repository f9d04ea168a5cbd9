package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter configura el router de Gin con middlewares y rutas del motor.
func NewRouter(
	logger *zap.Logger,
	turnH *TurnHandler,
	personaH *PersonaHandler,
	memoryH *MemoryHandler,
	relH *RelationshipHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.POST("/turns", turnH.ProcessTurn)
	r.POST("/turns/response", turnH.RecordResponse)
	r.POST("/emotions/detect", turnH.DetectEmotion)
	r.GET("/emotions/sessions/:session_id", turnH.GetSessionContext)

	personas := r.Group("/personas/:persona_id")
	personas.POST("/anchor", personaH.CreateAnchor)
	personas.GET("/anchor", personaH.GetAnchor)
	personas.GET("/consistency", personaH.GetConsistency)
	personas.POST("/memories", memoryH.StoreMemory)
	personas.GET("/memories", memoryH.ListMemories)
	personas.POST("/memories/recall", memoryH.RecallMemories)
	personas.POST("/memories/extract", memoryH.ExtractMemories)

	r.POST("/memories/:memory_id/touch", memoryH.TouchMemory)
	r.DELETE("/memories/:memory_id", memoryH.ForgetMemory)

	rel := r.Group("/relationships/:persona_id/:user_id")
	rel.GET("", relH.GetRelationship)
	rel.POST("/events", relH.RecordEvent)
	rel.POST("/conversations", relH.RecordConversation)
	rel.POST("/milestones", relH.CheckMilestones)
	rel.POST("/experiences", relH.AddSharedExperience)
	rel.PATCH("/profile", relH.UpdateUserProfile)
	rel.GET("/guidance", relH.GetGuidance)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
