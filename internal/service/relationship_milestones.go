package service

import (
	"fmt"
	"time"

	"persona-engine/internal/catalog"
	"persona-engine/internal/domain"
)

// milestoneSignal indica si el contexto dispara cada hito del catalogo.
func milestoneSignal(t domain.MilestoneType, mc domain.MilestoneContext) bool {
	switch t {
	case domain.MilestoneFirstConversation:
		return mc.FirstConversation
	case domain.MilestoneFirstLaugh:
		return mc.Laughed
	case domain.MilestoneFirstDeepTopic:
		return mc.DeepTopic
	case domain.MilestoneFirstWeek, domain.MilestoneFirstMonth:
		// El umbral de dias lo fija min_days del catalogo.
		return true
	case domain.MilestoneSharedSecret:
		return mc.SharedSecret
	case domain.MilestoneEmotionalSupport:
		return mc.EmotionalSupport
	case domain.MilestoneInsideJoke:
		return mc.InsideJoke
	case domain.MilestoneNicknameEarned:
		return mc.NicknameEarned
	case domain.MilestoneTrustMoment:
		return mc.TrustMoment
	case domain.MilestoneCelebration:
		return mc.Celebration
	case domain.MilestoneComfortInSilence:
		return mc.ComfortableSilence
	case domain.MilestoneIntuitiveUnderstanding:
		return mc.IntuitiveUnderstanding
	}
	return false
}

// milestoneEligible aplica las condiciones del catalogo: una sola vez, dias minimos y nivel minimo.
func milestoneEligible(m catalog.Milestone, s domain.RelationshipState, mc domain.MilestoneContext) bool {
	if s.HasMilestone(m.Type) {
		return false
	}
	if m.MinDays > 0 && mc.DaysSinceFirst < m.MinDays {
		return false
	}
	if m.MinLevel > 0 && compositeLevel(s) < m.MinLevel {
		return false
	}
	return milestoneSignal(m.Type, mc)
}

// grantMilestone registra el hito y suma su boost a los cuatro puntajes,
// de modo que el nivel compuesto sube exactamente el boost (salvo saturacion).
func grantMilestone(s *domain.RelationshipState, m catalog.Milestone, at time.Time) domain.AchievedMilestone {
	achieved := domain.AchievedMilestone{
		Type:       m.Type,
		Message:    m.Render(s.UserProfile.Nickname),
		Boost:      m.Boost,
		AchievedAt: at,
	}
	applyUniform(s, m.Boost)
	s.Milestones = append(s.Milestones, achieved)
	return achieved
}

func evaluateMilestones(c *catalog.Catalog, s *domain.RelationshipState, mc domain.MilestoneContext, at time.Time) []domain.AchievedMilestone {
	var out []domain.AchievedMilestone
	for _, m := range c.Milestones() {
		if !milestoneEligible(m, *s, mc) {
			continue
		}
		out = append(out, grantMilestone(s, m, at))
	}
	return out
}

// grantByType otorga un hito puntual si existe en el catalogo y todavia no fue logrado.
func grantByType(c *catalog.Catalog, s *domain.RelationshipState, t domain.MilestoneType, at time.Time) (domain.AchievedMilestone, bool) {
	m, ok := c.Milestone(t)
	if !ok || s.HasMilestone(t) {
		return domain.AchievedMilestone{}, false
	}
	if m.MinLevel > 0 && compositeLevel(*s) < m.MinLevel {
		return domain.AchievedMilestone{}, false
	}
	return grantMilestone(s, m, at), true
}

// stageIndex devuelve la posicion de la etapa; -1 si no existe.
func stageIndex(stages []catalog.Stage, stage domain.RelationshipStage) int {
	for i, st := range stages {
		if st.Stage == stage {
			return i
		}
	}
	return -1
}

// impliedStageIndex es la etapa cuyo rango de umbrales contiene level.
func impliedStageIndex(stages []catalog.Stage, level float64) int {
	idx := 0
	for i, st := range stages {
		if level >= st.Threshold {
			idx = i
		}
	}
	return idx
}

// advanceStage sube a lo sumo una etapa por llamada aunque el nivel justifique saltar mas.
// Nunca baja de etapa.
func advanceStage(stages []catalog.Stage, s *domain.RelationshipState, at time.Time) (domain.AchievedMilestone, bool) {
	current := stageIndex(stages, s.Stage)
	if current < 0 {
		current = 0
		s.Stage = stages[0].Stage
	}
	if impliedStageIndex(stages, s.Level) <= current || current+1 >= len(stages) {
		return domain.AchievedMilestone{}, false
	}
	s.Stage = stages[current+1].Stage
	achieved := domain.AchievedMilestone{
		Type:       domain.StageMilestone(s.Stage),
		Message:    fmt.Sprintf("Our relationship grew: we are now %s.", s.Stage),
		AchievedAt: at,
	}
	s.Milestones = append(s.Milestones, achieved)
	return achieved, true
}
