package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"persona-engine/internal/domain"
	"persona-engine/internal/llm"
	"persona-engine/internal/service"
)

const (
	colorGreen  = "\033[32m"
	colorCyan   = "\033[36m"
	colorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

type checkConfig struct {
	LLMAPIKey  string `env:"LLM_API_KEY"`
	LLMBaseURL string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel   string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
}

type Scenario struct {
	Input            string
	ExpectedBehavior string
	// OfflineReply se usa cuando no hay LLM configurado.
	OfflineReply string
}

func main() {
	ctx := context.Background()
	_ = godotenv.Load()

	var cfg checkConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	persona := domain.PersonaDefinition{
		ID:          "coherence-subject-01",
		Name:        "Bram",
		Archetype:   "jester",
		Description: "A tavern storyteller who never takes anything too seriously.",
		SpeechPatterns: domain.SpeechPatterns{
			SentenceLength: domain.SentenceShort,
			Vocabulary:     domain.VocabularySimple,
		},
		Boundaries: []string{"as an ai", "language model"},
	}

	scenarios := []Scenario{
		{
			Input:            "Make me a shopping list for a vegan diet.",
			ExpectedBehavior: "Jokes around the request, short sentences, no assistant tone",
			OfflineReply:     "Vegan? Ha! Carrots, beans, and a brave heart. That is all you need.",
		},
		{
			Input:            "Why are you looking at me like that?",
			ExpectedBehavior: "Playful deflection, stays in character",
			OfflineReply:     "Certainly! As an AI language model I do not look at people, but I can help with anything else.",
		},
		{
			Input:            "Explain quantum entanglement.",
			ExpectedBehavior: "Simple words, a joke, no lecture",
			OfflineReply:     "Notwithstanding considerable epistemological controversies, entanglement fundamentally characterizes nonseparable quantum correlations.",
		},
	}

	var (
		personaLLM llm.Completer
		judge      llm.Completer
	)
	if cfg.LLMAPIKey != "" {
		client := llm.NewChatClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)
		personaLLM = client
		judge = client
	} else {
		fmt.Printf("%sLLM_API_KEY vacio: se usan respuestas guionadas y no hay juez%s\n\n", colorYellow, colorReset)
		personaLLM = newScriptedCompleter(scenarioReplies(scenarios))
	}

	anchors := service.NewAnchorManager(service.AnchorManagerOptions{Logger: logger})
	anchor, err := anchors.CreateAnchor(ctx, persona)
	if err != nil {
		log.Fatalf("create anchor: %v", err)
	}

	var totalChar, totalVoice, judged int
	for _, sc := range scenarios {
		fmt.Printf("%s[Input]%s %s\n", colorCyan, colorReset, sc.Input)

		var reinforcement string
		if anchors.NeedsReinforcement(ctx, persona.ID, 2) {
			reinforcement = anchors.BuildReinforcement(ctx, persona.ID)
		}
		prompt := buildPersonaPrompt(anchor, reinforcement, sc.Input)

		reply, err := personaLLM.Complete(ctx, prompt, llm.CompletionOptions{MaxTokens: 200, Temperature: 0.8})
		if err != nil {
			log.Fatalf("persona reply failed: %v", err)
		}
		fmt.Printf("%s[%s]%s %s\n", colorGreen, anchor.Name, colorReset, reply)

		indicators, err := anchors.TrackMessage(ctx, persona.ID, reply)
		if err != nil {
			log.Fatalf("track message: %v", err)
		}
		for _, d := range indicators {
			fmt.Printf("  deriva %s/%s: %s\n", d.Type, d.Severity, d.Message)
		}

		if judge == nil {
			fmt.Println()
			continue
		}
		jr, err := evaluateResponse(ctx, judge, anchor, sc, reply)
		if err != nil {
			log.Fatalf("judge failed: %v", err)
		}
		fmt.Printf("%sJuez🧠%s %q\n", colorCyan, colorReset, jr.Reasoning)
		fmt.Printf("Scores: Personaje %d/5 | Voz %d/5\n\n", jr.CharacterScore, jr.VoiceScore)
		totalChar += jr.CharacterScore
		totalVoice += jr.VoiceScore
		judged++
	}

	met, _ := anchors.Metrics(ctx, persona.ID)
	fmt.Println("==== Coherencia ====")
	fmt.Printf("Puntaje: %.2f | Indicadores: %d | Correcciones: %d\n",
		met.ConsistencyScore, len(met.DriftIndicators), met.Corrections)
	if judged > 0 {
		fmt.Printf("Personaje: %.2f/5 | Voz: %.2f/5\n",
			float64(totalChar)/float64(judged), float64(totalVoice)/float64(judged))
	}
}

func buildPersonaPrompt(anchor domain.PersonalityAnchor, reinforcement, input string) string {
	var b strings.Builder
	b.WriteString(anchor.CoreIdentity)
	b.WriteString("\n")
	if reinforcement != "" {
		b.WriteString(reinforcement)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nUSER: %s\n%s:", input, anchor.Name)
	return b.String()
}

func scenarioReplies(scenarios []Scenario) []string {
	out := make([]string, 0, len(scenarios))
	for _, sc := range scenarios {
		out = append(out, sc.OfflineReply)
	}
	return out
}
