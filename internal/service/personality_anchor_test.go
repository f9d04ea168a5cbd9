package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"persona-engine/internal/domain"
	"persona-engine/internal/store"
)

type fakePersonaRepo struct {
	defs  map[string]domain.PersonaDefinition
	err   error
	loads int
}

func (f *fakePersonaRepo) LoadAnchorSource(_ context.Context, personaID string) (*domain.PersonaDefinition, error) {
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	def, ok := f.defs[personaID]
	if !ok {
		return nil, nil
	}
	return &def, nil
}

func (f *fakePersonaRepo) Upsert(_ context.Context, def domain.PersonaDefinition) error {
	if f.defs == nil {
		f.defs = make(map[string]domain.PersonaDefinition)
	}
	f.defs[def.ID] = def
	return nil
}

// slowPersonaRepo tarda en devolver la definicion para que las cargas se solapen.
type slowPersonaRepo struct {
	def   domain.PersonaDefinition
	delay time.Duration
	loads atomic.Int32
}

func (r *slowPersonaRepo) LoadAnchorSource(_ context.Context, _ string) (*domain.PersonaDefinition, error) {
	r.loads.Add(1)
	time.Sleep(r.delay)
	def := r.def
	return &def, nil
}

func (r *slowPersonaRepo) Upsert(context.Context, domain.PersonaDefinition) error { return nil }

func simplePersona(id string) domain.PersonaDefinition {
	return domain.PersonaDefinition{
		ID:        id,
		Name:      "Mira",
		Archetype: "mentor",
		SpeechPatterns: domain.SpeechPatterns{
			Vocabulary: domain.VocabularySimple,
		},
	}
}

func TestCreateAnchor_MergesArchetypeAndDefinition(t *testing.T) {
	m := NewAnchorManager(AnchorManagerOptions{})
	def := simplePersona("p1")
	def.Boundaries = []string{"I refuse to help", "As an AI language model"}

	a, err := m.CreateAnchor(context.Background(), def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Archetype != "mentor" || a.SpeechPatterns.Vocabulary != domain.VocabularySimple {
		t.Fatalf("unexpected anchor: %+v", a)
	}
	if a.SpeechPatterns.SentenceLength != domain.SentenceMedium {
		t.Fatalf("expected archetype sentence length to fill the gap, got %q", a.SpeechPatterns.SentenceLength)
	}
	if a.EmotionalBaseline != domain.EmotionThoughtful {
		t.Fatalf("expected archetype baseline, got %s", a.EmotionalBaseline)
	}
	count := 0
	for _, b := range a.Boundaries {
		if strings.EqualFold(b, "as an ai language model") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected boundaries deduplicated case-insensitively, got %v", a.Boundaries)
	}
	if !strings.Contains(a.CoreIdentity, "Mira") {
		t.Fatalf("core identity missing name: %q", a.CoreIdentity)
	}

	met, ok := m.Metrics(context.Background(), "p1")
	if !ok || met.ConsistencyScore != 1 || met.MessagesSinceReinforcement != 0 {
		t.Fatalf("expected fresh metrics, got %+v", met)
	}
}

func TestCreateAnchor_RequiresID(t *testing.T) {
	m := NewAnchorManager(AnchorManagerOptions{})
	if _, err := m.CreateAnchor(context.Background(), domain.PersonaDefinition{Name: "x"}); err == nil {
		t.Fatal("expected error for empty persona id")
	}
}

func TestTrackMessage_VocabularyDriftDropsScore(t *testing.T) {
	ctx := context.Background()
	m := NewAnchorManager(AnchorManagerOptions{})
	if _, err := m.CreateAnchor(ctx, simplePersona("p1")); err != nil {
		t.Fatalf("create anchor: %v", err)
	}

	indicators, err := m.TrackMessage(ctx, "p1", "Wonderful beautiful happiness.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(indicators) != 1 {
		t.Fatalf("expected one indicator, got %+v", indicators)
	}
	if indicators[0].Type != domain.DriftVocabulary || indicators[0].Severity != domain.DriftMinor {
		t.Fatalf("unexpected indicator: %+v", indicators[0])
	}

	met, _ := m.Metrics(ctx, "p1")
	if !approx(met.ConsistencyScore, 0.9) {
		t.Fatalf("expected score 0.9, got %v", met.ConsistencyScore)
	}
	if met.MessagesSinceReinforcement != 1 || len(met.DriftIndicators) != 1 {
		t.Fatalf("unexpected metrics: %+v", met)
	}
}

func TestTrackMessage_ScoreStaysInBounds(t *testing.T) {
	ctx := context.Background()
	m := NewAnchorManager(AnchorManagerOptions{})
	if _, err := m.CreateAnchor(ctx, simplePersona("p1")); err != nil {
		t.Fatalf("create anchor: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := m.TrackMessage(ctx, "p1", "Yes. I get it."); err != nil {
			t.Fatalf("track: %v", err)
		}
	}
	met, _ := m.Metrics(ctx, "p1")
	if met.ConsistencyScore != 1 {
		t.Fatalf("clean replies must not push score above 1, got %v", met.ConsistencyScore)
	}

	for i := 0; i < 15; i++ {
		if _, err := m.TrackMessage(ctx, "p1", "Wonderful beautiful happiness."); err != nil {
			t.Fatalf("track: %v", err)
		}
	}
	met, _ = m.Metrics(ctx, "p1")
	if met.ConsistencyScore != 0 {
		t.Fatalf("expected score floored at 0, got %v", met.ConsistencyScore)
	}
}

func TestTrackMessage_BoundaryIsSevere(t *testing.T) {
	ctx := context.Background()
	m := NewAnchorManager(AnchorManagerOptions{})
	if _, err := m.CreateAnchor(ctx, simplePersona("p1")); err != nil {
		t.Fatalf("create anchor: %v", err)
	}
	indicators, err := m.TrackMessage(ctx, "p1", "Well, As An AI Language Model I can't say.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, d := range indicators {
		if d.Type == domain.DriftBoundary && d.Severity == domain.DriftSevere {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected severe boundary indicator, got %+v", indicators)
	}
}

func TestTrackMessage_UnknownPersonaIsNoop(t *testing.T) {
	ctx := context.Background()
	m := NewAnchorManager(AnchorManagerOptions{})
	indicators, err := m.TrackMessage(ctx, "ghost", "Wonderful beautiful happiness.")
	if err != nil || indicators != nil {
		t.Fatalf("expected no-op, got %v %v", indicators, err)
	}
	if _, ok := m.Metrics(ctx, "ghost"); ok {
		t.Fatal("no metrics should exist for an unknown persona")
	}
	if m.NeedsReinforcement(ctx, "ghost", 1) {
		t.Fatal("unknown persona never needs reinforcement")
	}
	if got := m.BuildReinforcement(ctx, "ghost"); got != "" {
		t.Fatalf("expected empty reinforcement, got %q", got)
	}
}

func TestReinforcementCycle(t *testing.T) {
	ctx := context.Background()
	m := NewAnchorManager(AnchorManagerOptions{})
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }
	if _, err := m.CreateAnchor(ctx, simplePersona("p1")); err != nil {
		t.Fatalf("create anchor: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := m.TrackMessage(ctx, "p1", "Yes. I get it."); err != nil {
			t.Fatalf("track: %v", err)
		}
	}
	if m.NeedsReinforcement(ctx, "p1", 3) {
		t.Fatal("two clean messages should not need reinforcement at interval 3")
	}
	if _, err := m.TrackMessage(ctx, "p1", "Yes."); err != nil {
		t.Fatalf("track: %v", err)
	}
	if !m.NeedsReinforcement(ctx, "p1", 3) {
		t.Fatal("expected reinforcement after three messages")
	}

	text := m.BuildReinforcement(ctx, "p1")
	if !strings.Contains(text, "Mira") || strings.Contains(text, "drifted") {
		t.Fatalf("unexpected reinforcement text: %q", text)
	}
	met, _ := m.Metrics(ctx, "p1")
	if met.MessagesSinceReinforcement != 0 || met.Corrections != 0 || !met.LastReinforcementAt.Equal(fixed) {
		t.Fatalf("unexpected metrics after reinforcement: %+v", met)
	}
}

func TestReinforcement_LowScoreCountsCorrection(t *testing.T) {
	ctx := context.Background()
	m := NewAnchorManager(AnchorManagerOptions{})
	if _, err := m.CreateAnchor(ctx, simplePersona("p1")); err != nil {
		t.Fatalf("create anchor: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := m.TrackMessage(ctx, "p1", "Wonderful beautiful happiness."); err != nil {
			t.Fatalf("track: %v", err)
		}
	}
	if !m.NeedsReinforcement(ctx, "p1", 100) {
		t.Fatal("score below 0.7 should need reinforcement regardless of interval")
	}
	text := m.BuildReinforcement(ctx, "p1")
	if !strings.Contains(text, "drifted") {
		t.Fatalf("expected drift notice, got %q", text)
	}
	met, _ := m.Metrics(ctx, "p1")
	if met.Corrections != 1 {
		t.Fatalf("expected one correction, got %d", met.Corrections)
	}
}

func TestAnchor_LazyLoadsFromSource(t *testing.T) {
	ctx := context.Background()
	repo := &fakePersonaRepo{defs: map[string]domain.PersonaDefinition{"p9": simplePersona("p9")}}
	m := NewAnchorManager(AnchorManagerOptions{Source: repo})

	a, ok, err := m.Anchor(ctx, "p9")
	if err != nil || !ok || a.PersonaID != "p9" {
		t.Fatalf("expected lazy anchor, got %+v %v %v", a, ok, err)
	}
	if _, _, err := m.Anchor(ctx, "p9"); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if repo.loads != 1 {
		t.Fatalf("expected one source load, got %d", repo.loads)
	}

	if _, ok, err := m.Anchor(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected not found without error, got %v %v", ok, err)
	}

	repo.err = errors.New("db down")
	if _, _, err := m.Anchor(ctx, "other"); err == nil {
		t.Fatal("expected source error to propagate")
	}
}

func TestTrackMessage_ConcurrentColdStartKeepsEveryMessage(t *testing.T) {
	ctx := context.Background()
	repo := &slowPersonaRepo{def: simplePersona("p1"), delay: 30 * time.Millisecond}
	m := NewAnchorManager(AnchorManagerOptions{Source: repo})

	const callers = 4
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.TrackMessage(ctx, "p1", "Good to see you."); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("track message: %v", err)
	}

	if n := repo.loads.Load(); n != 1 {
		t.Fatalf("expected one source load, got %d", n)
	}
	met, ok := m.Metrics(ctx, "p1")
	if !ok {
		t.Fatalf("expected metrics after tracking")
	}
	if met.MessagesSinceReinforcement != callers {
		t.Fatalf("expected %d tracked messages, got %d", callers, met.MessagesSinceReinforcement)
	}
}

func TestAnchor_LazyLoadKeepsExistingMetrics(t *testing.T) {
	ctx := context.Background()
	repo := &fakePersonaRepo{defs: map[string]domain.PersonaDefinition{"p1": simplePersona("p1")}}
	metrics := store.NewMemoryStore(domain.ConsistencyMetrics.Clone)
	prior := domain.NewConsistencyMetrics("p1")
	prior.MessagesSinceReinforcement = 3
	if err := metrics.Put(ctx, "p1", prior); err != nil {
		t.Fatalf("seed metrics: %v", err)
	}
	m := NewAnchorManager(AnchorManagerOptions{Source: repo, Metrics: metrics})

	if _, ok, err := m.Anchor(ctx, "p1"); err != nil || !ok {
		t.Fatalf("expected lazy anchor, got %v %v", ok, err)
	}
	met, _ := m.Metrics(ctx, "p1")
	if met.MessagesSinceReinforcement != 3 {
		t.Fatalf("lazy load must not reset metrics, got %d", met.MessagesSinceReinforcement)
	}
}
