package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"persona-engine/internal/domain"
)

const (
	positiveValence = 0.2
	negativeValence = -0.2

	emotionalIntensity = 0.34
	deepIntensity      = 0.6
	deepMessageRunes   = 280
	moderateMessage    = 80
)

var laughterRe = regexp.MustCompile(`(?i)\b(?:ha){2,}\b|\b(?:ja){2,}\b|\blol\b|\blmao\b|😂|🤣`)

// TurnService orquesta un turno: emocion y recuerdos en paralelo, refuerzo de ancla,
// registro en el arco de relacion y armado del bloque de contexto.
type TurnService struct {
	emotions      *EmotionDetector
	memories      *MemoryManager
	anchors       *AnchorManager
	relationships *RelationshipEngine
	recall        RecallOptions
	interval      int
	logger        *zap.Logger
	now           func() time.Time
}

func NewTurnService(
	emotions *EmotionDetector,
	memories *MemoryManager,
	anchors *AnchorManager,
	relationships *RelationshipEngine,
	reinforcementInterval int,
	logger *zap.Logger,
) *TurnService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TurnService{
		emotions:      emotions,
		memories:      memories,
		anchors:       anchors,
		relationships: relationships,
		interval:      reinforcementInterval,
		logger:        logger,
		now:           time.Now,
	}
}

// WithRecallOptions fija las opciones de Recall usadas en cada turno.
func (s *TurnService) WithRecallOptions(opts RecallOptions) *TurnService {
	s.recall = opts
	return s
}

// ProcessTurn corre el pipeline completo. Solo falla si el registro de la relacion falla
// o si ctx se cancela; la memoria y el modelo degradan a vacio.
func (s *TurnService) ProcessTurn(ctx context.Context, in domain.TurnInput) (domain.PromptContext, error) {
	if strings.TrimSpace(in.PersonaID) == "" || strings.TrimSpace(in.UserID) == "" {
		return domain.PromptContext{}, fmt.Errorf("persona id and user id are required")
	}

	var (
		emotion  domain.AdvancedEmotionResult
		memories []domain.RecalledMemory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.emotions.DetectAdvanced(gctx, in.Message, in.SessionID, in.History)
		if err != nil {
			return err
		}
		emotion = res
		return nil
	})
	if s.memories != nil {
		g.Go(func() error {
			opts := s.recall
			if opts.UserID == "" {
				opts.UserID = in.UserID
			}
			res, err := s.memories.Recall(gctx, in.PersonaID, in.Message, opts)
			if err != nil {
				s.logger.Warn("memory recall failed, continuing without memories",
					zap.String("persona_id", in.PersonaID),
					zap.Error(err),
				)
				return nil
			}
			memories = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.PromptContext{}, err
	}

	var reinforcement string
	if s.anchors != nil && s.anchors.NeedsReinforcement(ctx, in.PersonaID, s.interval) {
		reinforcement = s.anchors.BuildReinforcement(ctx, in.PersonaID)
	}

	update, err := s.relationships.RecordConversation(ctx, in.PersonaID, in.UserID, interactionFromTurn(in, emotion, s.now()))
	if err != nil {
		return domain.PromptContext{}, fmt.Errorf("record conversation: %w", err)
	}

	pc := domain.PromptContext{
		Emotion:       emotion,
		Memories:      memories,
		Reinforcement: reinforcement,
		Guidance:      s.relationships.BuildGuidance(update.State),
		Relationship:  update,
	}
	pc.Block = renderPromptBlock(pc, s.now())
	return pc, nil
}

// RecordResponse registra la respuesta generada para el seguimiento de deriva.
func (s *TurnService) RecordResponse(ctx context.Context, personaID, response string) ([]domain.DriftIndicator, error) {
	if s.anchors == nil {
		return nil, nil
	}
	return s.anchors.TrackMessage(ctx, personaID, response)
}

// interactionFromTurn traduce la emocion detectada a los multiplicadores del arco.
func interactionFromTurn(in domain.TurnInput, emo domain.AdvancedEmotionResult, now time.Time) domain.Interaction {
	mode := in.Mode
	if mode == "" {
		mode = domain.ModeChat
	}
	runes := utf8.RuneCountInString(in.Message)

	sentiment := domain.SentimentNeutral
	switch {
	case emo.VAD.Valence > positiveValence:
		sentiment = domain.SentimentPositive
	case emo.VAD.Valence < negativeValence:
		sentiment = domain.SentimentNegative
	}

	depth := domain.DepthSurface
	switch {
	case runes >= deepMessageRunes || (emo.Intensity >= deepIntensity && isReflectiveEmotion(emo.Emotion)):
		depth = domain.DepthDeep
	case runes >= moderateMessage || emo.Intensity >= emotionalIntensity:
		depth = domain.DepthModerate
	}

	return domain.Interaction{
		Mode:             mode,
		DurationMinutes:  in.DurationMinutes,
		Sentiment:        sentiment,
		Depth:            depth,
		EmotionalContent: emo.Emotion != domain.EmotionNeutral && emo.Intensity >= emotionalIntensity,
		UserInitiated:    in.UserInitiated,
		MessageCount:     1,
		AvgMessageLength: float64(runes),
		Laughed:          laughterRe.MatchString(in.Message),
		SoughtSupport:    (emo.Emotion == domain.EmotionSad || emo.Emotion == domain.EmotionConcerned) && emo.Intensity >= deepIntensity,
		OccurredAt:       now,
	}
}

func isReflectiveEmotion(e domain.EmotionState) bool {
	switch e {
	case domain.EmotionSad, domain.EmotionConcerned, domain.EmotionThoughtful:
		return true
	}
	return false
}
