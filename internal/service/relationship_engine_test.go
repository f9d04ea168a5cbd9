package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"persona-engine/internal/domain"
	"persona-engine/internal/llm"
)

type fakeRelationshipRepo struct {
	mu     sync.Mutex
	states map[string]domain.RelationshipState
	saves  int
	err    error
}

func newFakeRelationshipRepo() *fakeRelationshipRepo {
	return &fakeRelationshipRepo{states: make(map[string]domain.RelationshipState)}
}

func (f *fakeRelationshipRepo) LoadRelationship(_ context.Context, personaID, userID string) (*domain.RelationshipState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.states[personaID+"|"+userID]
	if !ok {
		return nil, nil
	}
	c := s.Clone()
	return &c, nil
}

func (f *fakeRelationshipRepo) SaveRelationship(_ context.Context, s domain.RelationshipState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saves++
	f.states[s.PersonaID+"|"+s.UserID] = s.Clone()
	return nil
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(opts RelationshipEngineOptions) (*RelationshipEngine, *clock) {
	c := &clock{t: time.Date(2024, 2, 1, 20, 0, 0, 0, time.UTC)}
	e := NewRelationshipEngine(opts)
	e.now = c.now
	return e, c
}

func milestoneTypes(list []domain.AchievedMilestone) []domain.MilestoneType {
	out := make([]domain.MilestoneType, 0, len(list))
	for _, m := range list {
		out = append(out, m.Type)
	}
	return out
}

func hasType(list []domain.AchievedMilestone, t domain.MilestoneType) bool {
	for _, m := range list {
		if m.Type == t {
			return true
		}
	}
	return false
}

func TestRelationship_FreshPairIsStranger(t *testing.T) {
	e, _ := newTestEngine(RelationshipEngineOptions{})
	s, err := e.Relationship(context.Background(), "p1", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Trust != 0.1 || s.Rapport != 0.1 || s.EmotionalBond != 0 || s.Familiarity != 0 {
		t.Fatalf("unexpected initial scores: %+v", s)
	}
	if s.Stage != domain.StageStranger || !approx(s.Level, 0.055) {
		t.Fatalf("unexpected stage/level: %s %v", s.Stage, s.Level)
	}
	if len(s.Milestones) != 0 {
		t.Fatalf("fresh pair should have no milestones, got %v", s.Milestones)
	}
}

func TestRecordEvent_PositiveInteraction(t *testing.T) {
	e, _ := newTestEngine(RelationshipEngineOptions{})
	u, err := e.RecordEvent(context.Background(), "p1", "u1", domain.RelationshipEvent{Type: domain.EventPositiveInteraction})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(u.State.Rapport, 0.15) || !approx(u.State.Trust, 0.12) {
		t.Fatalf("unexpected scores: %+v", u.State)
	}
	if u.State.Stage != domain.StageStranger || u.StageChanged || len(u.NewMilestones) != 0 {
		t.Fatalf("unexpected update: %+v", u)
	}
}

func TestRecordEvent_UnknownType(t *testing.T) {
	e, _ := newTestEngine(RelationshipEngineOptions{})
	_, err := e.RecordEvent(context.Background(), "p1", "u1", domain.RelationshipEvent{Type: "gift"})
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestRecordEvent_RequiresIDs(t *testing.T) {
	e, _ := newTestEngine(RelationshipEngineOptions{})
	if _, err := e.RecordEvent(context.Background(), "", "u1", domain.RelationshipEvent{Type: domain.EventHumor}); err == nil {
		t.Fatal("expected error for empty persona id")
	}
}

func TestRecordEvent_StageAdvancesOneStepAndNeverDemotes(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(RelationshipEngineOptions{})

	u, err := e.RecordEvent(ctx, "p1", "u1", domain.RelationshipEvent{Type: domain.EventSharedSecret, Magnitude: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.State.Level < 0.30 {
		t.Fatalf("level should justify familiar, got %v", u.State.Level)
	}
	if u.State.Stage != domain.StageAcquaintance || !u.StageChanged || u.PreviousStage != domain.StageStranger {
		t.Fatalf("expected a single step to acquaintance, got %+v", u)
	}
	if !hasType(u.NewMilestones, domain.MilestoneSharedSecret) || !hasType(u.NewMilestones, domain.StageMilestone(domain.StageAcquaintance)) {
		t.Fatalf("expected shared_secret and stage milestones, got %v", milestoneTypes(u.NewMilestones))
	}

	u, err = e.RecordEvent(ctx, "p1", "u1", domain.RelationshipEvent{Type: domain.EventHumor})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.State.Stage != domain.StageFamiliar {
		t.Fatalf("expected familiar on the next call, got %s", u.State.Stage)
	}

	u, err = e.RecordEvent(ctx, "p1", "u1", domain.RelationshipEvent{Type: domain.EventConflict, Magnitude: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.State.Stage != domain.StageFamiliar || u.StageChanged {
		t.Fatalf("stage must not demote, got %+v", u)
	}
	if u.State.Rapport != 0 || u.State.Trust >= 0.5 {
		t.Fatalf("conflict should clamp rapport at 0 and cut trust, got %+v", u.State)
	}
}

func TestRecordEvent_MilestonesFireOnce(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(RelationshipEngineOptions{})

	u, _ := e.RecordEvent(ctx, "p1", "u1", domain.RelationshipEvent{Type: domain.EventHumor})
	if !hasType(u.NewMilestones, domain.MilestoneFirstLaugh) {
		t.Fatalf("expected first_laugh, got %v", milestoneTypes(u.NewMilestones))
	}
	u, _ = e.RecordEvent(ctx, "p1", "u1", domain.RelationshipEvent{Type: domain.EventHumor})
	if hasType(u.NewMilestones, domain.MilestoneFirstLaugh) {
		t.Fatal("first_laugh fired twice")
	}
}

func TestRecordEvent_AbsenceIsAlwaysNegative(t *testing.T) {
	e, _ := newTestEngine(RelationshipEngineOptions{})
	u, err := e.RecordEvent(context.Background(), "p1", "u1", domain.RelationshipEvent{Type: domain.EventAbsence, Magnitude: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(u.State.Rapport, 0.04) || u.State.Familiarity != 0 || u.State.Trust != 0.1 {
		t.Fatalf("unexpected absence effect: %+v", u.State)
	}
}

func TestRecordConversation_FirstConversationAndCounters(t *testing.T) {
	e, c := newTestEngine(RelationshipEngineOptions{})
	u, err := e.RecordConversation(context.Background(), "p1", "u1", domain.Interaction{
		Mode:             domain.ModeChat,
		DurationMinutes:  10,
		Sentiment:        domain.SentimentPositive,
		Depth:            domain.DepthModerate,
		MessageCount:     4,
		AvgMessageLength: 50,
		Laughed:          true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	types := milestoneTypes(u.NewMilestones)
	if !hasType(u.NewMilestones, domain.MilestoneFirstConversation) || !hasType(u.NewMilestones, domain.MilestoneFirstLaugh) {
		t.Fatalf("expected first_conversation and first_laugh, got %v", types)
	}
	if u.Impact <= 0 || u.Impact > maxInteractionImpact {
		t.Fatalf("impact out of range: %v", u.Impact)
	}
	s := u.State
	if s.InteractionCount != 1 || s.MessageCount != 4 || s.AvgMessageLength != 50 || s.TotalMinutes != 10 {
		t.Fatalf("unexpected counters: %+v", s)
	}
	if !s.FirstInteractionAt.Equal(c.t) || !s.LastInteractionAt.Equal(c.t) {
		t.Fatalf("unexpected timestamps: %+v", s)
	}

	u, err = e.RecordConversation(context.Background(), "p1", "u1", domain.Interaction{MessageCount: 4, AvgMessageLength: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.State.InteractionCount != 2 || u.State.AvgMessageLength != 75 {
		t.Fatalf("unexpected running average: %+v", u.State)
	}
	if hasType(u.NewMilestones, domain.MilestoneFirstConversation) {
		t.Fatal("first_conversation fired twice")
	}
}

func TestRecordConversation_AppliesAbsenceAfterGap(t *testing.T) {
	ctx := context.Background()
	e, c := newTestEngine(RelationshipEngineOptions{})

	first, err := e.RecordConversation(ctx, "p1", "u1", domain.Interaction{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.advance(20 * 24 * time.Hour)
	second, err := e.RecordConversation(ctx, "p1", "u1", domain.Interaction{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Impact != 0 {
		t.Fatalf("zero-length conversation should have no impact, got %v", second.Impact)
	}
	if !hasType(second.NewMilestones, domain.MilestoneFirstWeek) {
		t.Fatalf("expected first_week after 20 days, got %v", milestoneTypes(second.NewMilestones))
	}
	want := first.State.Rapport - 0.03*20.0/14.0 + 0.02
	if math.Abs(second.State.Rapport-want) > 1e-9 {
		t.Fatalf("rapport after absence: got %v want %v", second.State.Rapport, want)
	}
	if second.State.Trust <= first.State.Trust {
		t.Fatalf("absence must not reduce trust: before %v after %v", first.State.Trust, second.State.Trust)
	}
}

func TestCheckMilestones_FirstWeekNeedsSevenDays(t *testing.T) {
	ctx := context.Background()
	e, c := newTestEngine(RelationshipEngineOptions{})
	if _, err := e.RecordConversation(ctx, "p1", "u1", domain.Interaction{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.advance(3 * 24 * time.Hour)
	u, err := e.CheckMilestones(ctx, "p1", "u1", domain.MilestoneContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasType(u.NewMilestones, domain.MilestoneFirstWeek) {
		t.Fatal("first_week granted before seven days")
	}

	c.advance(5 * 24 * time.Hour)
	u, _ = e.CheckMilestones(ctx, "p1", "u1", domain.MilestoneContext{})
	if !hasType(u.NewMilestones, domain.MilestoneFirstWeek) {
		t.Fatalf("expected first_week after eight days, got %v", milestoneTypes(u.NewMilestones))
	}

	u, _ = e.CheckMilestones(ctx, "p1", "u1", domain.MilestoneContext{})
	if len(u.NewMilestones) != 0 {
		t.Fatalf("milestones must not refire, got %v", milestoneTypes(u.NewMilestones))
	}
}

func TestCheckMilestones_MinLevelGates(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(RelationshipEngineOptions{})
	u, err := e.CheckMilestones(ctx, "p1", "u1", domain.MilestoneContext{ComfortableSilence: true, Celebration: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasType(u.NewMilestones, domain.MilestoneComfortInSilence) {
		t.Fatal("comfort_in_silence needs level 0.5")
	}
	if !hasType(u.NewMilestones, domain.MilestoneCelebration) {
		t.Fatalf("expected celebration, got %v", milestoneTypes(u.NewMilestones))
	}
	m := u.NewMilestones[0]
	if !strings.Contains(m.Message, "friend") {
		t.Fatalf("message should default the user name, got %q", m.Message)
	}
}

func TestAddSharedExperience_PrunesLowestSignificance(t *testing.T) {
	ctx := context.Background()
	e, c := newTestEngine(RelationshipEngineOptions{})

	if _, err := e.AddSharedExperience(ctx, "p1", "u1", domain.ExperienceShared, "minor chat about weather", 0.1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < maxSharedExperiences; i++ {
		c.advance(time.Minute)
		if _, err := e.AddSharedExperience(ctx, "p1", "u1", "", fmt.Sprintf("trip %d", i), 0.5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	s, _ := e.Relationship(ctx, "p1", "u1")
	if len(s.SharedExperiences) != maxSharedExperiences {
		t.Fatalf("expected %d experiences, got %d", maxSharedExperiences, len(s.SharedExperiences))
	}
	for _, x := range s.SharedExperiences {
		if x.Description == "minor chat about weather" {
			t.Fatal("lowest significance experience should be pruned")
		}
		if x.Kind != domain.ExperienceShared {
			t.Fatalf("unknown kind should default to experience, got %q", x.Kind)
		}
	}

	c.advance(time.Minute)
	if _, err := e.AddSharedExperience(ctx, "p1", "u1", domain.ExperienceShared, "trip 20", 0.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, _ = e.Relationship(ctx, "p1", "u1")
	for _, x := range s.SharedExperiences {
		if x.Description == "trip 0" {
			t.Fatal("oldest experience should be pruned on ties")
		}
	}
}

func TestAddSharedExperience_InsideJokeMilestone(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(RelationshipEngineOptions{})
	u, err := e.AddSharedExperience(ctx, "p1", "u1", domain.ExperienceInsideJoke, "the penguin incident", 0.8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasType(u.NewMilestones, domain.MilestoneInsideJoke) {
		t.Fatalf("expected inside_joke, got %v", milestoneTypes(u.NewMilestones))
	}
	u, _ = e.AddSharedExperience(ctx, "p1", "u1", domain.ExperienceInsideJoke, "the penguin sequel", 0.8)
	if hasType(u.NewMilestones, domain.MilestoneInsideJoke) {
		t.Fatal("inside_joke fired twice")
	}
	if _, err := e.AddSharedExperience(ctx, "p1", "u1", domain.ExperienceShared, "  ", 0.5); err == nil {
		t.Fatal("expected error for empty description")
	}
}

func TestUpdateUserProfile_NicknameMilestoneAndMerge(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(RelationshipEngineOptions{})

	u, err := e.UpdateUserProfile(ctx, "p1", "u1", domain.UserProfile{Interests: []string{"chess"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(u.NewMilestones) != 0 {
		t.Fatalf("no nickname, no milestone: %v", milestoneTypes(u.NewMilestones))
	}

	u, err = e.UpdateUserProfile(ctx, "p1", "u1", domain.UserProfile{
		Nickname:    "Sunny",
		Interests:   []string{"Chess", "jazz"},
		Preferences: map[string]string{"drink": "tea", " ": "x"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(u.NewMilestones) != 1 || u.NewMilestones[0].Type != domain.MilestoneNicknameEarned {
		t.Fatalf("expected nickname_earned, got %v", milestoneTypes(u.NewMilestones))
	}
	if !strings.Contains(u.NewMilestones[0].Message, "Sunny") {
		t.Fatalf("milestone message should use the nickname: %q", u.NewMilestones[0].Message)
	}
	p := u.State.UserProfile
	if len(p.Interests) != 2 || p.Preferences["drink"] != "tea" || len(p.Preferences) != 1 {
		t.Fatalf("unexpected merged profile: %+v", p)
	}
}

func TestRelationshipEngine_PersistsThroughRepository(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRelationshipRepo()
	e, _ := newTestEngine(RelationshipEngineOptions{Repo: repo})
	if _, err := e.RecordEvent(ctx, "p1", "u1", domain.RelationshipEvent{Type: domain.EventPositiveInteraction}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.saves != 1 {
		t.Fatalf("expected one save, got %d", repo.saves)
	}

	other, _ := newTestEngine(RelationshipEngineOptions{Repo: repo})
	s, err := other.Relationship(ctx, "p1", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(s.Rapport, 0.15) {
		t.Fatalf("state not loaded from repository: %+v", s)
	}

	repo.err = errors.New("db down")
	if _, err := other.RecordEvent(ctx, "p1", "u2", domain.RelationshipEvent{Type: domain.EventHumor}); err == nil {
		t.Fatal("expected repository error to propagate")
	}
}

func TestRelationshipEngine_ConcurrentEventsAreSerialized(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(RelationshipEngineOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.RecordEvent(ctx, "p1", "u1", domain.RelationshipEvent{Type: domain.EventPositiveInteraction, Magnitude: 0.1})
		}()
	}
	wg.Wait()

	s, _ := e.Relationship(ctx, "p1", "u1")
	if !approx(s.Rapport, 0.15) {
		t.Fatalf("lost updates: rapport %v, want 0.15", s.Rapport)
	}
}

func TestInteractionImpact(t *testing.T) {
	base := domain.Interaction{Mode: domain.ModeChat, DurationMinutes: 9, Sentiment: domain.SentimentNeutral, Depth: domain.DepthModerate}
	if got := InteractionImpact(base, 0); !approx(got, 0.005*0.1) {
		t.Fatalf("unexpected base impact: %v", got)
	}
	if got := InteractionImpact(base, 1); !approx(got, 0.005*0.1*0.5) {
		t.Fatalf("expected maturity damping to halve impact, got %v", got)
	}

	huge := domain.Interaction{
		Mode:             domain.ModeVideo,
		DurationMinutes:  1e9,
		Sentiment:        domain.SentimentPositive,
		Depth:            domain.DepthDeep,
		EmotionalContent: true,
		UserInitiated:    true,
	}
	if got := InteractionImpact(huge, 0); got != maxInteractionImpact {
		t.Fatalf("expected impact capped at %v, got %v", maxInteractionImpact, got)
	}
	if got := InteractionImpact(domain.Interaction{DurationMinutes: -5}, 0); got != 0 {
		t.Fatalf("negative duration should have no impact, got %v", got)
	}
}

func TestAbsenceMagnitude(t *testing.T) {
	cases := []struct {
		days float64
		want float64
	}{
		{days: 1, want: 0},
		{days: 2.9, want: 0},
		{days: 7, want: -0.5},
		{days: 28, want: -2},
		{days: 365, want: -2},
	}
	for _, c := range cases {
		if got := absenceMagnitude(c.days); !approx(got, c.want) {
			t.Fatalf("absenceMagnitude(%v) = %v, want %v", c.days, got, c.want)
		}
	}
}

func TestBuildGuidance(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(RelationshipEngineOptions{})
	if _, err := e.AddSharedExperience(ctx, "p1", "u1", domain.ExperienceInsideJoke, "the penguin incident", 0.9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, err := e.UpdateUserProfile(ctx, "p1", "u1", domain.UserProfile{Nickname: "Sunny", CommunicationStyle: "dry humor"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g := e.BuildGuidance(u.State)
	if u.State.Stage != domain.StageAcquaintance {
		t.Fatalf("milestone boosts should cross 0.10, got %s at %v", u.State.Stage, u.State.Level)
	}
	for _, want := range []string{"Relationship stage: acquaintance", "friendly and upbeat", `"Sunny"`, "inside joke: the penguin incident", "dry humor"} {
		if !strings.Contains(g, want) {
			t.Fatalf("guidance missing %q:\n%s", want, g)
		}
	}
}

func TestInferUserProfile(t *testing.T) {
	ctx := context.Background()

	e, _ := newTestEngine(RelationshipEngineOptions{})
	if _, err := e.InferUserProfile(ctx, "p1", "u1", nil); !errors.Is(err, ErrCompletionNotConfigured) {
		t.Fatalf("expected ErrCompletionNotConfigured, got %v", err)
	}

	mock := &llm.MockClient{Response: `{"nickname":"Max","interests":["climbing"]}`}
	e, _ = newTestEngine(RelationshipEngineOptions{Completer: mock})
	u, err := e.InferUserProfile(ctx, "p1", "u1", []domain.ChatTurn{{Role: "user", Content: "Call me Max, I climb every weekend"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.State.UserProfile.Nickname != "Max" || !hasType(u.NewMilestones, domain.MilestoneNicknameEarned) {
		t.Fatalf("expected inferred nickname, got %+v", u)
	}

	bad := &llm.MockClient{Response: `{"interests": "climbing"}`}
	e, _ = newTestEngine(RelationshipEngineOptions{Completer: bad})
	u, err = e.InferUserProfile(ctx, "p1", "u1", nil)
	if err != nil {
		t.Fatalf("malformed output should not fail: %v", err)
	}
	if len(u.State.UserProfile.Interests) != 0 || len(u.NewMilestones) != 0 {
		t.Fatalf("profile should stay unchanged, got %+v", u.State.UserProfile)
	}
}
