package main

import (
	"context"
	"strings"
	"testing"

	"persona-engine/internal/domain"
	"persona-engine/internal/llm"
)

func TestDetectAssistantTone(t *testing.T) {
	cases := []struct {
		text   string
		expect bool
	}{
		{"As an AI, I cannot look at you.", true},
		{"Certainly! Of course, that works.", true},
		{"Of course not, you goose.", false},
		{"Here’s a list of vegetables for you.", true},
		{"Ha! Carrots and beans. Brave heart.", false},
		{"Great question. Feel free to ask again.", true},
		{"I'm here to help with anything you need.", true},
		{"Bah, lists are for people with shelves.", false},
		{"certainly not", false},
		{"Certainly, great question, i hope this helps", true},
	}

	for _, tc := range cases {
		if got := detectAssistantTone(tc.text); got != tc.expect {
			t.Fatalf("detectAssistantTone(%q)=%v want %v", tc.text, got, tc.expect)
		}
	}
}

func TestJudgePromptIncludesHeuristicsAndRules(t *testing.T) {
	prompt := buildJudgePrompt(
		"You are Bram, a jester.",
		"Indicadores heurísticos: tono_asistente=true, frase_firma=false",
		"hola", "Certainly! How can I assist?", "sin tono de asistente",
	)

	needles := []string{
		"tono_asistente=true",
		"frase_firma=false",
		"Personaje máximo 2/5",
		"You are Bram, a jester.",
	}
	for _, n := range needles {
		if !strings.Contains(prompt, n) {
			t.Fatalf("prompt missing %q: %q", n, prompt)
		}
	}
}

func TestEvaluateResponseCapsAssistantTone(t *testing.T) {
	judge := &llm.MockClient{Response: "Claro:\n```json\n{\"reasoning\":\"ok\",\"character_score\":5,\"voice_score\":9}\n```"}
	anchor := domain.PersonalityAnchor{Name: "Bram", CoreIdentity: "You are Bram, a jester."}

	jr, err := evaluateResponse(context.Background(), judge, anchor, Scenario{Input: "hola"}, "As an AI I must decline.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jr.CharacterScore != 2 {
		t.Fatalf("expected character score capped at 2, got %d", jr.CharacterScore)
	}
	if jr.VoiceScore != 5 {
		t.Fatalf("expected voice score clamped to 5, got %d", jr.VoiceScore)
	}
	if judge.Calls() != 1 {
		t.Fatalf("expected one judge call, got %d", judge.Calls())
	}
}

func TestEvaluateResponseRejectsNonJSON(t *testing.T) {
	judge := &llm.MockClient{Response: "no tengo opinion"}
	_, err := evaluateResponse(context.Background(), judge, domain.PersonalityAnchor{}, Scenario{}, "hola")
	if err == nil {
		t.Fatal("expected error for non-json judge output")
	}
}

func TestScriptedCompleterExhausts(t *testing.T) {
	s := newScriptedCompleter([]string{"uno"})
	if r, err := s.Complete(context.Background(), "", llm.CompletionOptions{}); err != nil || r != "uno" {
		t.Fatalf("first reply = %q, %v", r, err)
	}
	if _, err := s.Complete(context.Background(), "", llm.CompletionOptions{}); err == nil {
		t.Fatal("expected exhaustion error")
	}
}
