package service

import (
	"math"

	"persona-engine/internal/domain"
)

const (
	baseInteractionImpact = 0.005
	maxInteractionImpact  = 0.02
	emotionalContentBoost = 1.3
	userInitiatedBoost    = 1.1
	maturityDamping       = 0.5

	absenceGraceDays    = 3.0
	absenceDaysPerUnit  = 14.0
	maxAbsenceMagnitude = 2.0
)

var modeMultipliers = map[domain.InteractionMode]float64{
	domain.ModeChat:  1.0,
	domain.ModeVoice: 1.5,
	domain.ModeVideo: 2.0,
}

var sentimentMultipliers = map[domain.Sentiment]float64{
	domain.SentimentPositive: 1.2,
	domain.SentimentNeutral:  1.0,
	domain.SentimentNegative: 0.8,
}

var depthMultipliers = map[domain.ConversationDepth]float64{
	domain.DepthSurface:  0.5,
	domain.DepthModerate: 1.0,
	domain.DepthDeep:     1.8,
}

// InteractionImpact calcula cuanto sube el vinculo por una conversacion.
// Decrece a medida que el nivel madura y nunca supera 0.02.
func InteractionImpact(in domain.Interaction, currentLevel float64) float64 {
	duration := in.DurationMinutes
	if duration < 0 {
		duration = 0
	}
	impact := baseInteractionImpact *
		multiplierOr(modeMultipliers, in.Mode) *
		(math.Log10(duration+1) * 0.1) *
		multiplierOr(sentimentMultipliers, in.Sentiment) *
		multiplierOr(depthMultipliers, in.Depth)
	if in.EmotionalContent {
		impact *= emotionalContentBoost
	}
	if in.UserInitiated {
		impact *= userInitiatedBoost
	}
	impact *= 1 - clamp01(currentLevel)*maturityDamping
	return clamp(impact, 0, maxInteractionImpact)
}

func multiplierOr[K comparable](table map[K]float64, key K) float64 {
	if v, ok := table[key]; ok {
		return v
	}
	return 1.0
}

// scoreDelta es el efecto por unidad de magnitud de un evento sobre cada puntaje.
type scoreDelta struct {
	trust, rapport, bond, familiarity float64
}

var eventDeltas = map[domain.RelationshipEventType]scoreDelta{
	domain.EventPositiveInteraction: {trust: 0.02, rapport: 0.05},
	domain.EventNegativeInteraction: {trust: -0.02, rapport: -0.05},
	domain.EventDeepConversation:    {trust: 0.02, bond: 0.05, familiarity: 0.03},
	domain.EventSharedSecret:        {trust: 0.08, bond: 0.05},
	domain.EventEmotionalSupport:    {trust: 0.05, bond: 0.08},
	domain.EventHumor:               {rapport: 0.04, familiarity: 0.02},
	domain.EventConflict:            {trust: -0.05, rapport: -0.05},
	domain.EventResolution:          {trust: 0.06, bond: 0.03},
	// La ausencia llega con magnitud negativa y no toca la confianza.
	domain.EventAbsence: {rapport: 0.03, familiarity: 0.05},
}

// eventMilestones son los hitos que un evento puede otorgar por primera vez.
var eventMilestones = map[domain.RelationshipEventType]domain.MilestoneType{
	domain.EventDeepConversation: domain.MilestoneFirstDeepTopic,
	domain.EventSharedSecret:     domain.MilestoneSharedSecret,
	domain.EventEmotionalSupport: domain.MilestoneEmotionalSupport,
	domain.EventHumor:            domain.MilestoneFirstLaugh,
	domain.EventResolution:       domain.MilestoneTrustMoment,
}

func applyDelta(s *domain.RelationshipState, d scoreDelta, magnitude float64) {
	s.Trust = clamp01(s.Trust + d.trust*magnitude)
	s.Rapport = clamp01(s.Rapport + d.rapport*magnitude)
	s.EmotionalBond = clamp01(s.EmotionalBond + d.bond*magnitude)
	s.Familiarity = clamp01(s.Familiarity + d.familiarity*magnitude)
}

func applyUniform(s *domain.RelationshipState, amount float64) {
	applyDelta(s, scoreDelta{trust: 1, rapport: 1, bond: 1, familiarity: 1}, amount)
}

// absenceMagnitude devuelve la magnitud (negativa) de una ausencia de days dias, o 0 si no corresponde.
func absenceMagnitude(days float64) float64 {
	if days < absenceGraceDays {
		return 0
	}
	return -math.Min(maxAbsenceMagnitude, days/absenceDaysPerUnit)
}

// compositeLevel pondera los cuatro puntajes: 0.3 confianza, 0.25 rapport, 0.25 vinculo, 0.2 familiaridad.
func compositeLevel(s domain.RelationshipState) float64 {
	return clamp01(0.3*s.Trust + 0.25*s.Rapport + 0.25*s.EmotionalBond + 0.2*s.Familiarity)
}
