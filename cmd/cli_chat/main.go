package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"persona-engine/internal/domain"
	"persona-engine/internal/llm"
	"persona-engine/internal/repository"
	"persona-engine/internal/service"
)

// cliConfig es el subconjunto de configuracion que usa el REPL; no necesita base de datos.
type cliConfig struct {
	LLMAPIKey             string `env:"LLM_API_KEY"`
	LLMBaseURL            string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel              string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	ReinforcementInterval int    `env:"REINFORCEMENT_INTERVAL" envDefault:"5"`
	Debug                 bool   `env:"CLI_DEBUG" envDefault:"false"`
}

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	var cfg cliConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(err)
	}

	logger := zap.NewNop()
	if cfg.Debug {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	var completer llm.Completer
	if cfg.LLMAPIKey != "" {
		completer = llm.NewChatClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)
	}

	emotions := service.NewEmotionDetector(nil, completer, logger)
	memories := service.NewMemoryManager(
		repository.NewInMemoryMemoryRepository(),
		service.NewInMemoryVectorIndex(),
		llm.NewHashEmbedder(256),
		completer,
		logger,
	)
	anchors := service.NewAnchorManager(service.AnchorManagerOptions{Logger: logger})
	relationships := service.NewRelationshipEngine(service.RelationshipEngineOptions{Completer: completer, Logger: logger})
	turns := service.NewTurnService(emotions, memories, anchors, relationships, cfg.ReinforcementInterval, logger).
		WithRecallOptions(service.RecallOptions{MinSimilarity: 0.2})

	fmt.Println("===== Persona Engine REPL =====")
	personaName := ask(reader, "Nombre de la persona: ", "Nova")
	archetype := ask(reader, "Arquetipo (mentor, companion, jester, sage, ...): ", "companion")
	userID := ask(reader, "Tu usuario: ", "cli-user")

	personaID := uuid.NewString()
	if _, err := anchors.CreateAnchor(ctx, domain.PersonaDefinition{
		ID:        personaID,
		Name:      personaName,
		Archetype: archetype,
	}); err != nil {
		log.Fatalf("crear ancla: %v", err)
	}
	sessionID := uuid.NewString()

	fmt.Println("Comandos: /remember <texto>, /event <tipo> [magnitud], /reply <texto>, /state, /quit")
	var history []domain.ChatTurn
	for {
		fmt.Print("\nTu: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return
		case line == "/state":
			printState(ctx, relationships, anchors, personaID, userID)
			continue
		case strings.HasPrefix(line, "/remember "):
			mem, err := memories.Store(ctx, personaID, strings.TrimPrefix(line, "/remember "), domain.MemoryMetadata{UserID: userID, Importance: 0.7})
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Printf("Recuerdo guardado (%s)\n", mem.ID)
			continue
		case strings.HasPrefix(line, "/event "):
			runEvent(ctx, relationships, personaID, userID, strings.Fields(strings.TrimPrefix(line, "/event ")))
			continue
		case strings.HasPrefix(line, "/reply "):
			trackReply(ctx, turns, personaID, strings.TrimPrefix(line, "/reply "))
			continue
		}

		pc, err := turns.ProcessTurn(ctx, domain.TurnInput{
			PersonaID:       personaID,
			UserID:          userID,
			SessionID:       sessionID,
			Message:         line,
			History:         history,
			Mode:            domain.ModeChat,
			DurationMinutes: 1,
			UserInitiated:   true,
		})
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		history = append(history, domain.ChatTurn{Role: "user", Content: line})

		fmt.Println("\n----- contexto -----")
		fmt.Println(pc.Block)
		fmt.Println("--------------------")

		if completer == nil {
			fmt.Println("(sin LLM configurado: usa /reply <texto> para registrar la respuesta de la persona)")
			continue
		}
		prompt := fmt.Sprintf("%s\n\nReply in character to the user.\nUSER: %s\n%s:", pc.Block, line, personaName)
		reply, err := completer.Complete(ctx, prompt, llm.CompletionOptions{MaxTokens: 300, Temperature: 0.8})
		if err != nil {
			fmt.Printf("error generando respuesta: %v\n", err)
			continue
		}
		fmt.Printf("%s: %s\n", personaName, reply)
		history = append(history, domain.ChatTurn{Role: "assistant", Content: reply})
		trackReply(ctx, turns, personaID, reply)

		if stored, err := memories.Extract(ctx, personaID, userID, line, reply); err == nil && len(stored) > 0 {
			fmt.Printf("(%d recuerdo(s) nuevo(s))\n", len(stored))
		}
	}
}

func ask(reader *bufio.Reader, prompt, fallback string) string {
	fmt.Print(prompt)
	v, _ := reader.ReadString('\n')
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}

func runEvent(ctx context.Context, rel *service.RelationshipEngine, personaID, userID string, args []string) {
	if len(args) == 0 {
		fmt.Println("uso: /event <tipo> [magnitud]")
		return
	}
	ev := domain.RelationshipEvent{Type: domain.RelationshipEventType(args[0]), Magnitude: 1}
	if len(args) > 1 {
		if m, err := strconv.ParseFloat(args[1], 64); err == nil {
			ev.Magnitude = m
		}
	}
	update, err := rel.RecordEvent(ctx, personaID, userID, ev)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("Nivel %.3f, etapa %s\n", update.State.Level, update.State.Stage)
	for _, m := range update.NewMilestones {
		fmt.Printf("* %s\n", m.Message)
	}
}

func trackReply(ctx context.Context, turns *service.TurnService, personaID, reply string) {
	indicators, err := turns.RecordResponse(ctx, personaID, reply)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for _, d := range indicators {
		fmt.Printf("[deriva %s/%s] %s\n", d.Type, d.Severity, d.Message)
	}
}

func printState(ctx context.Context, rel *service.RelationshipEngine, anchors *service.AnchorManager, personaID, userID string) {
	s, err := rel.Relationship(ctx, personaID, userID)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("Etapa: %s | nivel %.3f | trust %.3f rapport %.3f bond %.3f familiarity %.3f | conversaciones %d\n",
		s.Stage, s.Level, s.Trust, s.Rapport, s.EmotionalBond, s.Familiarity, s.InteractionCount)
	for _, m := range s.Milestones {
		fmt.Printf("  - %s (%s)\n", m.Type, m.AchievedAt.Format("2006-01-02 15:04"))
	}
	if met, ok := anchors.Metrics(ctx, personaID); ok {
		fmt.Printf("Coherencia: %.2f | mensajes desde refuerzo: %d | correcciones: %d\n",
			met.ConsistencyScore, met.MessagesSinceReinforcement, met.Corrections)
	}
}
