package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"persona-engine/internal/domain"
	"persona-engine/internal/llm"
)

const maxGuidanceExperiences = 3

// Behavior devuelve la guia fija de una etapa. No modifica ningun estado.
func (e *RelationshipEngine) Behavior(stage domain.RelationshipStage) (domain.StageBehavior, bool) {
	return e.catalog.Behavior(stage)
}

// BuildGuidance arma el fragmento de prompt con la guia de comportamiento de la etapa actual.
func (e *RelationshipEngine) BuildGuidance(s domain.RelationshipState) string {
	b, ok := e.Behavior(s.Stage)
	if !ok {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Relationship stage: %s (level %.2f, %d conversations).\n", s.Stage, s.Level, s.InteractionCount)
	fmt.Fprintf(&sb, "Greeting style: %s.\n", b.GreetingStyle)
	address := b.AddressStyle
	if s.UserProfile.Nickname != "" {
		address = fmt.Sprintf("%s (they go by %q)", address, s.UserProfile.Nickname)
	}
	fmt.Fprintf(&sb, "Address the user: %s.\n", address)
	fmt.Fprintf(&sb, "Conversation depth: %s.\n", b.ConversationDepth)
	fmt.Fprintf(&sb, "Expression levels: warmth %.2f, openness %.2f, playfulness %.2f, vulnerability %.2f.\n",
		b.Warmth, b.Openness, b.Playfulness, b.Vulnerability)
	if len(b.ExamplePhrases) > 0 {
		sb.WriteString("Example phrases: ")
		sb.WriteString(quoteList(b.ExamplePhrases))
		sb.WriteString("\n")
	}
	if exps := topExperiences(s.SharedExperiences, maxGuidanceExperiences); len(exps) > 0 {
		sb.WriteString("Shared history:\n")
		for _, x := range exps {
			label := "experience"
			if x.Kind == domain.ExperienceInsideJoke {
				label = "inside joke"
			}
			fmt.Fprintf(&sb, "- %s: %s\n", label, x.Description)
		}
	}
	if len(s.UserProfile.Interests) > 0 {
		fmt.Fprintf(&sb, "User interests: %s.\n", strings.Join(s.UserProfile.Interests, ", "))
	}
	if s.UserProfile.CommunicationStyle != "" {
		fmt.Fprintf(&sb, "User communication style: %s.\n", s.UserProfile.CommunicationStyle)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func topExperiences(list []domain.SharedExperience, n int) []domain.SharedExperience {
	out := append([]domain.SharedExperience(nil), list...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Significance > out[j].Significance })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

const userProfilePrompt = `You keep notes about a user for a conversational persona.
From the recent messages, infer ONLY what the user clearly revealed about themselves.

Respond ONLY with JSON (omit unknown fields):
{"nickname": "<name they like to be called>", "interests": ["..."],
 "preferences": {"<topic>": "<preference>"}, "communication_style": "<short description>"}

Recent messages:
%s`

// InferUserProfile pide al modelo preferencias del usuario y las mezcla en el perfil.
// Una respuesta malformada deja el perfil sin cambios.
func (e *RelationshipEngine) InferUserProfile(ctx context.Context, personaID, userID string, history []domain.ChatTurn) (domain.RelationshipUpdate, error) {
	if e.completer == nil {
		return domain.RelationshipUpdate{}, ErrCompletionNotConfigured
	}

	raw, err := e.completer.Complete(ctx, fmt.Sprintf(userProfilePrompt, formatHistory(history)), llm.CompletionOptions{
		MaxTokens:   300,
		Temperature: 0.2,
	})
	if err == nil {
		var inferred domain.UserProfile
		if err = parseModelJSON(raw, userProfileSchema, &inferred); err == nil {
			return e.UpdateUserProfile(ctx, personaID, userID, inferred)
		}
	}

	e.logger.Warn("user profile inference failed, profile unchanged",
		zap.String("persona_id", personaID),
		zap.String("user_id", userID),
		zap.Error(err),
	)
	s, loadErr := e.Relationship(ctx, personaID, userID)
	if loadErr != nil {
		return domain.RelationshipUpdate{}, loadErr
	}
	return domain.RelationshipUpdate{State: s, PreviousStage: s.Stage}, nil
}
