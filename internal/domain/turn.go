package domain

// TurnInput es un mensaje entrante del usuario hacia una persona.
type TurnInput struct {
	PersonaID       string          `json:"persona_id"`
	UserID          string          `json:"user_id"`
	SessionID       string          `json:"session_id,omitempty"`
	Message         string          `json:"message"`
	History         []ChatTurn      `json:"history,omitempty"`
	Mode            InteractionMode `json:"mode,omitempty"`
	DurationMinutes float64         `json:"duration_minutes,omitempty"`
	UserInitiated   bool            `json:"user_initiated"`
}

// PromptContext es el bloque de contexto que consume la llamada de generacion.
type PromptContext struct {
	Emotion       AdvancedEmotionResult `json:"emotion"`
	Memories      []RecalledMemory      `json:"memories"`
	Reinforcement string                `json:"reinforcement,omitempty"`
	Guidance      string                `json:"guidance"`
	Relationship  RelationshipUpdate    `json:"relationship"`
	Block         string                `json:"block"`
}
