package domain

import (
	"time"

	"github.com/google/uuid"
)

// RelationshipStage es una etapa del arco persona-usuario. El orden es estricto.
type RelationshipStage string

const (
	StageStranger     RelationshipStage = "stranger"
	StageAcquaintance RelationshipStage = "acquaintance"
	StageFamiliar     RelationshipStage = "familiar"
	StageTrusted      RelationshipStage = "trusted"
	StageBonded       RelationshipStage = "bonded"
	StageSoulbound    RelationshipStage = "soulbound"
)

type MilestoneType string

const (
	MilestoneFirstConversation      MilestoneType = "first_conversation"
	MilestoneFirstLaugh             MilestoneType = "first_laugh"
	MilestoneFirstDeepTopic         MilestoneType = "first_deep_topic"
	MilestoneFirstWeek              MilestoneType = "first_week"
	MilestoneFirstMonth             MilestoneType = "first_month"
	MilestoneSharedSecret           MilestoneType = "shared_secret"
	MilestoneEmotionalSupport       MilestoneType = "emotional_support"
	MilestoneInsideJoke             MilestoneType = "inside_joke"
	MilestoneNicknameEarned         MilestoneType = "nickname_earned"
	MilestoneTrustMoment            MilestoneType = "trust_moment"
	MilestoneCelebration            MilestoneType = "celebration"
	MilestoneComfortInSilence       MilestoneType = "comfort_in_silence"
	MilestoneIntuitiveUnderstanding MilestoneType = "intuitive_understanding"
)

// StageMilestone es el tipo de hito que registra una transicion de etapa.
func StageMilestone(stage RelationshipStage) MilestoneType {
	return MilestoneType("stage_" + string(stage))
}

type AchievedMilestone struct {
	Type       MilestoneType `json:"type"`
	Message    string        `json:"message"`
	Boost      float64       `json:"boost"`
	AchievedAt time.Time     `json:"achieved_at"`
}

const (
	ExperienceShared     = "experience"
	ExperienceInsideJoke = "inside_joke"
)

type SharedExperience struct {
	ID           uuid.UUID `json:"id"`
	Kind         string    `json:"kind"`
	Description  string    `json:"description"`
	Significance float64   `json:"significance"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserProfile guarda preferencias inferidas del usuario dentro del vinculo.
type UserProfile struct {
	Nickname           string            `json:"nickname,omitempty"`
	Interests          []string          `json:"interests,omitempty"`
	Preferences        map[string]string `json:"preferences,omitempty"`
	CommunicationStyle string            `json:"communication_style,omitempty"`
	UpdatedAt          time.Time         `json:"updated_at,omitempty"`
}

// RelationshipState es el registro acumulado de una pareja (persona, usuario).
type RelationshipState struct {
	PersonaID          string              `json:"persona_id"`
	UserID             string              `json:"user_id"`
	Trust              float64             `json:"trust"`
	Rapport            float64             `json:"rapport"`
	EmotionalBond      float64             `json:"emotional_bond"`
	Familiarity        float64             `json:"familiarity"`
	Level              float64             `json:"level"`
	Stage              RelationshipStage   `json:"stage"`
	InteractionCount   int                 `json:"interaction_count"`
	MessageCount       int                 `json:"message_count"`
	AvgMessageLength   float64             `json:"avg_message_length"`
	TotalMinutes       float64             `json:"total_minutes"`
	FirstInteractionAt time.Time           `json:"first_interaction_at"`
	LastInteractionAt  time.Time           `json:"last_interaction_at"`
	Milestones         []AchievedMilestone `json:"milestones"`
	SharedExperiences  []SharedExperience  `json:"shared_experiences"`
	UserProfile        UserProfile         `json:"user_profile"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// HasMilestone indica si el hito ya fue otorgado.
func (s RelationshipState) HasMilestone(t MilestoneType) bool {
	for _, m := range s.Milestones {
		if m.Type == t {
			return true
		}
	}
	return false
}

// Clone devuelve una copia profunda para que el cache no comparta slices ni mapas.
func (s RelationshipState) Clone() RelationshipState {
	out := s
	out.Milestones = append([]AchievedMilestone(nil), s.Milestones...)
	out.SharedExperiences = append([]SharedExperience(nil), s.SharedExperiences...)
	out.UserProfile.Interests = append([]string(nil), s.UserProfile.Interests...)
	if s.UserProfile.Preferences != nil {
		out.UserProfile.Preferences = make(map[string]string, len(s.UserProfile.Preferences))
		for k, v := range s.UserProfile.Preferences {
			out.UserProfile.Preferences[k] = v
		}
	}
	return out
}

type RelationshipEventType string

const (
	EventPositiveInteraction RelationshipEventType = "positive_interaction"
	EventNegativeInteraction RelationshipEventType = "negative_interaction"
	EventDeepConversation    RelationshipEventType = "deep_conversation"
	EventSharedSecret        RelationshipEventType = "shared_secret"
	EventEmotionalSupport    RelationshipEventType = "emotional_support"
	EventHumor               RelationshipEventType = "humor"
	EventConflict            RelationshipEventType = "conflict"
	EventResolution          RelationshipEventType = "resolution"
	EventAbsence             RelationshipEventType = "absence"
)

type RelationshipEvent struct {
	Type       RelationshipEventType `json:"type"`
	Magnitude  float64               `json:"magnitude"`
	Note       string                `json:"note,omitempty"`
	OccurredAt time.Time             `json:"occurred_at,omitempty"`
}

type InteractionMode string

const (
	ModeChat  InteractionMode = "chat"
	ModeVoice InteractionMode = "voice"
	ModeVideo InteractionMode = "video"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

type ConversationDepth string

const (
	DepthSurface  ConversationDepth = "surface"
	DepthModerate ConversationDepth = "moderate"
	DepthDeep     ConversationDepth = "deep"
)

// Interaction describe una conversacion completa a registrar.
type Interaction struct {
	Mode             InteractionMode   `json:"mode"`
	DurationMinutes  float64           `json:"duration_minutes"`
	Sentiment        Sentiment         `json:"sentiment"`
	Depth            ConversationDepth `json:"depth"`
	EmotionalContent bool              `json:"emotional_content"`
	UserInitiated    bool              `json:"user_initiated"`
	MessageCount     int               `json:"message_count"`
	AvgMessageLength float64           `json:"avg_message_length"`
	Laughed          bool              `json:"laughed"`
	SharedSecret     bool              `json:"shared_secret"`
	SoughtSupport    bool              `json:"sought_support"`
	Celebrated       bool              `json:"celebrated"`
	OccurredAt       time.Time         `json:"occurred_at,omitempty"`
}

// MilestoneContext son las senales evaluadas por el catalogo de hitos.
type MilestoneContext struct {
	FirstConversation      bool    `json:"first_conversation"`
	DaysSinceFirst         float64 `json:"days_since_first"`
	Laughed                bool    `json:"laughed"`
	DeepTopic              bool    `json:"deep_topic"`
	SharedSecret           bool    `json:"shared_secret"`
	EmotionalSupport       bool    `json:"emotional_support"`
	InsideJoke             bool    `json:"inside_joke"`
	NicknameEarned         bool    `json:"nickname_earned"`
	TrustMoment            bool    `json:"trust_moment"`
	Celebration            bool    `json:"celebration"`
	ComfortableSilence     bool    `json:"comfortable_silence"`
	IntuitiveUnderstanding bool    `json:"intuitive_understanding"`
}

// StageBehavior es la guia de comportamiento fija de una etapa.
type StageBehavior struct {
	Stage             RelationshipStage `json:"stage" yaml:"stage"`
	GreetingStyle     string            `json:"greeting_style" yaml:"greeting_style"`
	AddressStyle      string            `json:"address_style" yaml:"address_style"`
	ConversationDepth string            `json:"conversation_depth" yaml:"conversation_depth"`
	Warmth            float64           `json:"warmth" yaml:"warmth"`
	Openness          float64           `json:"openness" yaml:"openness"`
	Playfulness       float64           `json:"playfulness" yaml:"playfulness"`
	Vulnerability     float64           `json:"vulnerability" yaml:"vulnerability"`
	ExamplePhrases    []string          `json:"example_phrases" yaml:"example_phrases"`
}

// RelationshipUpdate es el resultado de una mutacion del vinculo.
type RelationshipUpdate struct {
	State         RelationshipState   `json:"state"`
	PreviousStage RelationshipStage   `json:"previous_stage"`
	StageChanged  bool                `json:"stage_changed"`
	NewMilestones []AchievedMilestone `json:"new_milestones,omitempty"`
	Impact        float64             `json:"impact,omitempty"`
}
