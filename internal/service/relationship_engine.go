package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"persona-engine/internal/catalog"
	"persona-engine/internal/domain"
	"persona-engine/internal/llm"
	"persona-engine/internal/repository"
	"persona-engine/internal/store"
)

const (
	initialTrust   = 0.1
	initialRapport = 0.1

	maxSharedExperiences = 20
)

// RelationshipEngine mantiene el arco persona-usuario: puntajes, etapa, hitos y perfil del usuario.
type RelationshipEngine struct {
	catalog   *catalog.Catalog
	repo      repository.RelationshipRepository
	cache     store.Store[domain.RelationshipState]
	completer llm.Completer
	locks     *store.KeyedMutex
	logger    *zap.Logger
	now       func() time.Time
}

// RelationshipEngineOptions agrupa dependencias. Repo nil deja el estado solo en cache;
// Completer nil desactiva InferUserProfile.
type RelationshipEngineOptions struct {
	Catalog   *catalog.Catalog
	Repo      repository.RelationshipRepository
	Cache     store.Store[domain.RelationshipState]
	Completer llm.Completer
	Logger    *zap.Logger
}

func NewRelationshipEngine(opts RelationshipEngineOptions) *RelationshipEngine {
	e := &RelationshipEngine{
		catalog:   opts.Catalog,
		repo:      opts.Repo,
		cache:     opts.Cache,
		completer: opts.Completer,
		locks:     store.NewKeyedMutex(),
		logger:    opts.Logger,
		now:       time.Now,
	}
	if e.catalog == nil {
		e.catalog = catalog.Default()
	}
	if e.cache == nil {
		e.cache = store.NewMemoryStore(domain.RelationshipState.Clone)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// NewRelationshipState es el registro de una pareja que nunca interactuo.
func NewRelationshipState(personaID, userID string, now time.Time) domain.RelationshipState {
	s := domain.RelationshipState{
		PersonaID:         personaID,
		UserID:            userID,
		Trust:             initialTrust,
		Rapport:           initialRapport,
		Stage:             domain.StageStranger,
		Milestones:        []domain.AchievedMilestone{},
		SharedExperiences: []domain.SharedExperience{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.Level = compositeLevel(s)
	return s
}

// StageForLevel mapea un nivel compuesto a la etapa cuyo umbral lo contiene.
func (e *RelationshipEngine) StageForLevel(level float64) domain.RelationshipStage {
	stages := e.catalog.Stages()
	return stages[impliedStageIndex(stages, level)].Stage
}

// Relationship devuelve el estado actual. Una pareja desconocida devuelve un registro
// nuevo en etapa stranger que no se persiste hasta la primera escritura.
func (e *RelationshipEngine) Relationship(ctx context.Context, personaID, userID string) (domain.RelationshipState, error) {
	return e.load(ctx, personaID, userID)
}

// RecordEvent aplica un evento tipado y revisa la transicion de etapa.
func (e *RelationshipEngine) RecordEvent(ctx context.Context, personaID, userID string, ev domain.RelationshipEvent) (domain.RelationshipUpdate, error) {
	delta, ok := eventDeltas[ev.Type]
	if !ok {
		return domain.RelationshipUpdate{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	magnitude := ev.Magnitude
	if magnitude == 0 {
		magnitude = 1
	}
	if ev.Type == domain.EventAbsence {
		magnitude = -math.Abs(magnitude)
	}
	at := e.at(ev.OccurredAt)

	return e.mutate(ctx, personaID, userID, at, func(s *domain.RelationshipState, u *domain.RelationshipUpdate) error {
		applyDelta(s, delta, magnitude)
		if t, ok := eventMilestones[ev.Type]; ok {
			if m, granted := grantByType(e.catalog, s, t, at); granted {
				u.NewMilestones = append(u.NewMilestones, m)
			}
		}
		return nil
	})
}

// RecordConversation registra una conversacion completa: ausencia previa si corresponde,
// impacto de la interaccion, contadores e hitos derivados.
func (e *RelationshipEngine) RecordConversation(ctx context.Context, personaID, userID string, in domain.Interaction) (domain.RelationshipUpdate, error) {
	at := e.at(in.OccurredAt)

	return e.mutate(ctx, personaID, userID, at, func(s *domain.RelationshipState, u *domain.RelationshipUpdate) error {
		first := s.InteractionCount == 0
		if !first && !s.LastInteractionAt.IsZero() {
			if m := absenceMagnitude(at.Sub(s.LastInteractionAt).Hours() / 24); m < 0 {
				applyDelta(s, eventDeltas[domain.EventAbsence], m)
				e.logger.Debug("relationship absence applied",
					zap.String("persona_id", personaID),
					zap.String("user_id", userID),
					zap.Float64("magnitude", m),
				)
			}
		}

		impact := InteractionImpact(in, compositeLevel(*s))
		applyUniform(s, impact)
		u.Impact = impact

		if first || s.FirstInteractionAt.IsZero() {
			s.FirstInteractionAt = at
		}
		s.InteractionCount++
		if in.MessageCount > 0 {
			total := float64(s.MessageCount) + float64(in.MessageCount)
			s.AvgMessageLength = (s.AvgMessageLength*float64(s.MessageCount) + in.AvgMessageLength*float64(in.MessageCount)) / total
			s.MessageCount += in.MessageCount
		}
		if in.DurationMinutes > 0 {
			s.TotalMinutes += in.DurationMinutes
		}
		s.LastInteractionAt = at

		u.NewMilestones = append(u.NewMilestones, evaluateMilestones(e.catalog, s, domain.MilestoneContext{
			FirstConversation: first,
			DaysSinceFirst:    at.Sub(s.FirstInteractionAt).Hours() / 24,
			Laughed:           in.Laughed,
			DeepTopic:         in.Depth == domain.DepthDeep,
			SharedSecret:      in.SharedSecret,
			EmotionalSupport:  in.SoughtSupport,
			Celebration:       in.Celebrated,
		}, at)...)
		return nil
	})
}

// CheckMilestones evalua el catalogo contra el contexto dado. Cada hito se otorga una sola vez.
func (e *RelationshipEngine) CheckMilestones(ctx context.Context, personaID, userID string, mc domain.MilestoneContext) (domain.RelationshipUpdate, error) {
	at := e.now()
	return e.mutate(ctx, personaID, userID, at, func(s *domain.RelationshipState, u *domain.RelationshipUpdate) error {
		if !s.FirstInteractionAt.IsZero() {
			mc.DaysSinceFirst = math.Max(mc.DaysSinceFirst, at.Sub(s.FirstInteractionAt).Hours()/24)
		}
		u.NewMilestones = evaluateMilestones(e.catalog, s, mc, at)
		return nil
	})
}

// AddSharedExperience guarda una experiencia o chiste interno. La lista se limita a 20,
// descartando la de menor significancia (la mas vieja en empate).
func (e *RelationshipEngine) AddSharedExperience(ctx context.Context, personaID, userID, kind, description string, significance float64) (domain.RelationshipUpdate, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return domain.RelationshipUpdate{}, fmt.Errorf("shared experience description is required")
	}
	if kind != domain.ExperienceInsideJoke {
		kind = domain.ExperienceShared
	}
	at := e.now()

	return e.mutate(ctx, personaID, userID, at, func(s *domain.RelationshipState, u *domain.RelationshipUpdate) error {
		s.SharedExperiences = append(s.SharedExperiences, domain.SharedExperience{
			ID:           uuid.New(),
			Kind:         kind,
			Description:  description,
			Significance: clamp01(significance),
			CreatedAt:    at,
		})
		s.SharedExperiences = pruneExperiences(s.SharedExperiences, maxSharedExperiences)
		if kind == domain.ExperienceInsideJoke {
			if m, granted := grantByType(e.catalog, s, domain.MilestoneInsideJoke, at); granted {
				u.NewMilestones = append(u.NewMilestones, m)
			}
		}
		return nil
	})
}

// UpdateUserProfile mezcla los campos no vacios en el perfil inferido del usuario.
// Un apodo nuevo otorga nickname_earned.
func (e *RelationshipEngine) UpdateUserProfile(ctx context.Context, personaID, userID string, profile domain.UserProfile) (domain.RelationshipUpdate, error) {
	at := e.now()
	return e.mutate(ctx, personaID, userID, at, func(s *domain.RelationshipState, u *domain.RelationshipUpdate) error {
		hadNickname := s.UserProfile.Nickname != ""
		mergeUserProfile(&s.UserProfile, profile, at)
		if !hadNickname && s.UserProfile.Nickname != "" {
			if m, granted := grantByType(e.catalog, s, domain.MilestoneNicknameEarned, at); granted {
				u.NewMilestones = append(u.NewMilestones, m)
			}
		}
		return nil
	})
}

// mutate serializa por pareja la secuencia leer-modificar-escribir, recalcula el nivel,
// revisa una transicion de etapa y persiste.
func (e *RelationshipEngine) mutate(
	ctx context.Context,
	personaID, userID string,
	at time.Time,
	fn func(s *domain.RelationshipState, u *domain.RelationshipUpdate) error,
) (domain.RelationshipUpdate, error) {
	if strings.TrimSpace(personaID) == "" || strings.TrimSpace(userID) == "" {
		return domain.RelationshipUpdate{}, fmt.Errorf("persona id and user id are required")
	}
	key := store.PairKey(personaID, userID)
	unlock := e.locks.Lock(key)
	defer unlock()

	s, err := e.load(ctx, personaID, userID)
	if err != nil {
		return domain.RelationshipUpdate{}, err
	}

	u := domain.RelationshipUpdate{PreviousStage: s.Stage}
	if err := fn(&s, &u); err != nil {
		return domain.RelationshipUpdate{}, err
	}

	s.Level = compositeLevel(s)
	if m, changed := advanceStage(e.catalog.Stages(), &s, at); changed {
		u.StageChanged = true
		u.NewMilestones = append(u.NewMilestones, m)
		e.logger.Info("relationship stage advanced",
			zap.String("persona_id", personaID),
			zap.String("user_id", userID),
			zap.String("from", string(u.PreviousStage)),
			zap.String("to", string(s.Stage)),
			zap.Float64("level", s.Level),
		)
	}
	s.UpdatedAt = at

	if e.repo != nil {
		if err := e.repo.SaveRelationship(ctx, s); err != nil {
			return domain.RelationshipUpdate{}, fmt.Errorf("save relationship: %w", err)
		}
	}
	if err := e.cache.Put(ctx, key, s); err != nil {
		e.logger.Warn("relationship cache write failed", zap.String("key", key), zap.Error(err))
	}
	u.State = s
	return u, nil
}

func (e *RelationshipEngine) load(ctx context.Context, personaID, userID string) (domain.RelationshipState, error) {
	key := store.PairKey(personaID, userID)
	s, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn("relationship cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return s, nil
	}

	if e.repo != nil {
		stored, err := e.repo.LoadRelationship(ctx, personaID, userID)
		if err != nil {
			return domain.RelationshipState{}, fmt.Errorf("load relationship: %w", err)
		}
		if stored != nil {
			if err := e.cache.Put(ctx, key, *stored); err != nil {
				e.logger.Warn("relationship cache write failed", zap.String("key", key), zap.Error(err))
			}
			return stored.Clone(), nil
		}
	}
	return NewRelationshipState(personaID, userID, e.now()), nil
}

func (e *RelationshipEngine) at(t time.Time) time.Time {
	if t.IsZero() {
		return e.now()
	}
	return t
}

func pruneExperiences(list []domain.SharedExperience, max int) []domain.SharedExperience {
	for len(list) > max {
		drop := 0
		for i := 1; i < len(list); i++ {
			if list[i].Significance < list[drop].Significance ||
				(list[i].Significance == list[drop].Significance && list[i].CreatedAt.Before(list[drop].CreatedAt)) {
				drop = i
			}
		}
		list = append(list[:drop], list[drop+1:]...)
	}
	return list
}

func mergeUserProfile(dst *domain.UserProfile, src domain.UserProfile, at time.Time) {
	if n := strings.TrimSpace(src.Nickname); n != "" {
		dst.Nickname = n
	}
	if st := strings.TrimSpace(src.CommunicationStyle); st != "" {
		dst.CommunicationStyle = st
	}
	dst.Interests = dedupeStrings(append(dst.Interests, src.Interests...))
	for k, v := range src.Preferences {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		if dst.Preferences == nil {
			dst.Preferences = make(map[string]string)
		}
		dst.Preferences[k] = v
	}
	dst.UpdatedAt = at
}
