package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"persona-engine/internal/domain"
	"persona-engine/internal/llm"
	"persona-engine/internal/repository"
)

type memoryFixture struct {
	manager *MemoryManager
	repo    *repository.InMemoryMemoryRepository
	index   *InMemoryVectorIndex
	now     time.Time
}

func newMemoryFixture(completer llm.Completer) *memoryFixture {
	f := &memoryFixture{
		repo:  repository.NewInMemoryMemoryRepository(),
		index: NewInMemoryVectorIndex(),
		now:   time.Date(2024, 4, 10, 18, 0, 0, 0, time.UTC),
	}
	f.manager = NewMemoryManager(f.repo, f.index, llm.NewHashEmbedder(1024), completer, nil)
	f.manager.now = func() time.Time { return f.now }
	return f
}

func TestMemoryManager_StoreThenRecall(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(nil)

	stored, err := f.manager.Store(ctx, "p1", "  The user loves hiking in the mountains  ", domain.MemoryMetadata{UserID: "u1"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if stored.Content != "The user loves hiking in the mountains" {
		t.Fatalf("expected trimmed content, got %q", stored.Content)
	}
	if stored.Type != domain.MemoryFact || stored.Importance != 0.5 || stored.Confidence != 1 || stored.AccessCount != 1 {
		t.Fatalf("unexpected defaults: %+v", stored)
	}

	got, err := f.manager.Recall(ctx, "p1", "The user loves hiking in the mountains", RecallOptions{})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) != 1 || got[0].Memory.ID != stored.ID {
		t.Fatalf("expected the stored memory back, got %+v", got)
	}
	if math.Abs(got[0].Similarity-1) > 1e-5 {
		t.Fatalf("expected similarity ~1, got %v", got[0].Similarity)
	}
	if got[0].Retention != 1 {
		t.Fatalf("expected retention 1 for a fresh memory, got %v", got[0].Retention)
	}
	if len(got[0].Memory.Embedding.Slice()) != 0 {
		t.Fatal("recalled memories should not carry the embedding")
	}

	touched, err := f.repo.GetMemories(ctx, []uuid.UUID{stored.ID})
	if err != nil || len(touched) != 1 || touched[0].AccessCount != 2 {
		t.Fatalf("expected recall to touch the memory, got %+v %v", touched, err)
	}
}

func TestMemoryManager_RecallFiltersAndRanks(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(nil)

	for _, c := range []struct {
		content string
		user    string
	}{
		{"coffee without sugar every morning", "u1"},
		{"coffee with oat milk", "u1"},
		{"coffee without sugar every morning please", "u2"},
		{"quantum physics lectures", "u1"},
	} {
		if _, err := f.manager.Store(ctx, "p1", c.content, domain.MemoryMetadata{UserID: c.user}); err != nil {
			t.Fatalf("store: %v", err)
		}
	}
	if _, err := f.manager.Store(ctx, "p2", "coffee without sugar every morning", domain.MemoryMetadata{UserID: "u1"}); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := f.manager.Recall(ctx, "p1", "coffee without sugar every morning", RecallOptions{UserID: "u1", MinSimilarity: 0.3})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) == 0 || got[0].Memory.Content != "coffee without sugar every morning" {
		t.Fatalf("expected exact match first, got %+v", got)
	}
	for i, r := range got {
		if r.Memory.PersonaID != "p1" || r.Memory.UserID != "u1" {
			t.Fatalf("recall leaked another persona or user: %+v", r.Memory)
		}
		if strings.Contains(r.Memory.Content, "quantum") {
			t.Fatalf("unrelated memory recalled: %+v", r)
		}
		if i > 0 && r.Relevance > got[i-1].Relevance {
			t.Fatal("results not sorted by relevance")
		}
	}

	limited, err := f.manager.Recall(ctx, "p1", "coffee", RecallOptions{Limit: 1, MinSimilarity: -1})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit 1, got %d", len(limited))
	}
}

func TestMemoryManager_RecallSkipsDecayed(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(nil)
	if _, err := f.manager.Store(ctx, "p1", "a trivial detail about lunch", domain.MemoryMetadata{Importance: 0.1}); err != nil {
		t.Fatalf("store: %v", err)
	}
	f.now = f.now.Add(30 * 24 * time.Hour)

	got, err := f.manager.Recall(ctx, "p1", "a trivial detail about lunch", RecallOptions{})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("decayed memory should be excluded, got %+v", got)
	}

	got, err = f.manager.Recall(ctx, "p1", "a trivial detail about lunch", RecallOptions{IncludeDecayed: true})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) != 1 || got[0].Retention >= minRetention {
		t.Fatalf("expected decayed memory with low retention, got %+v", got)
	}
}

func TestMemoryManager_StoreRejectsEmpty(t *testing.T) {
	f := newMemoryFixture(nil)
	if _, err := f.manager.Store(context.Background(), "p1", "   ", domain.MemoryMetadata{}); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestMemoryManager_TouchAndForget(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(nil)
	mem, err := f.manager.Store(ctx, "p1", "plays the cello on sundays", domain.MemoryMetadata{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	f.now = f.now.Add(time.Hour)
	touched, err := f.manager.Touch(ctx, mem.ID)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if touched.AccessCount != 2 || !touched.LastAccessedAt.Equal(f.now) {
		t.Fatalf("unexpected touched memory: %+v", touched)
	}

	if err := f.manager.Forget(ctx, mem.ID); err != nil {
		t.Fatalf("forget: %v", err)
	}
	got, err := f.manager.Recall(ctx, "p1", "plays the cello on sundays", RecallOptions{})
	if err != nil || len(got) != 0 {
		t.Fatalf("forgotten memory recalled: %+v %v", got, err)
	}
	if _, err := f.manager.Touch(ctx, mem.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected pgx.ErrNoRows, got %v", err)
	}
	if err := f.manager.Forget(ctx, mem.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected pgx.ErrNoRows on second forget, got %v", err)
	}
}

func TestMemoryManager_ListIncludesRetention(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(nil)
	if _, err := f.manager.Store(ctx, "p1", "allergic to peanuts", domain.MemoryMetadata{Type: domain.MemoryFact, Importance: 0.9}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := f.manager.Store(ctx, "p1", "likes jazz", domain.MemoryMetadata{Type: domain.MemoryPreference, Importance: 0.4}); err != nil {
		t.Fatalf("store: %v", err)
	}

	all, err := f.manager.List(ctx, "p1", repository.MemoryFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].Memory.Content != "allergic to peanuts" || all[0].Retention != 1 {
		t.Fatalf("unexpected list: %+v", all)
	}

	prefs, err := f.manager.List(ctx, "p1", repository.MemoryFilter{Types: []domain.MemoryType{domain.MemoryPreference}})
	if err != nil || len(prefs) != 1 || prefs[0].Memory.Type != domain.MemoryPreference {
		t.Fatalf("unexpected filtered list: %+v %v", prefs, err)
	}
}

func TestMemoryManager_ExtractWithoutCompleter(t *testing.T) {
	f := newMemoryFixture(nil)
	if _, err := f.manager.Extract(context.Background(), "p1", "u1", "hi", "hello"); !errors.Is(err, ErrCompletionNotConfigured) {
		t.Fatalf("expected ErrCompletionNotConfigured, got %v", err)
	}
}

func TestMemoryManager_ExtractMalformedIsNoop(t *testing.T) {
	for _, mock := range []*llm.MockClient{
		{Response: "I could not find anything"},
		{Response: `{"memories":[{"content":"likes tea","type":"opinion","importance":0.5,"confidence":0.9}]}`},
		{Err: errors.New("timeout")},
	} {
		f := newMemoryFixture(mock)
		got, err := f.manager.Extract(context.Background(), "p1", "u1", "I like tea", "Nice!")
		if err != nil || got != nil {
			t.Fatalf("expected silent no-op, got %+v %v", got, err)
		}
		if list, _ := f.manager.List(context.Background(), "p1", repository.MemoryFilter{}); len(list) != 0 {
			t.Fatalf("nothing should be stored, got %d", len(list))
		}
	}
}

func TestMemoryManager_ExtractFiltersCandidates(t *testing.T) {
	var items []string
	items = append(items, `{"content":"cat","type":"fact","importance":0.5,"confidence":0.9}`)
	for i := 0; i < 6; i++ {
		items = append(items, fmt.Sprintf(`{"content":"works as a nurse %d","type":"fact","importance":0.7,"confidence":0.8}`, i))
	}
	mock := &llm.MockClient{Response: "```json\n{\"memories\":[" + strings.Join(items, ",") + "]}\n```"}
	f := newMemoryFixture(mock)

	got, err := f.manager.Extract(context.Background(), "p1", "u1", "I work as a nurse", "That must be demanding.")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) != maxExtractedCandidates {
		t.Fatalf("expected %d memories, got %d", maxExtractedCandidates, len(got))
	}
	for _, m := range got {
		if m.Content == "cat" {
			t.Fatal("short candidate should be dropped")
		}
		if m.UserID != "u1" || m.Importance != 0.7 || m.Confidence != 0.8 {
			t.Fatalf("metadata not carried: %+v", m)
		}
	}
	if !strings.Contains(mock.Prompts[0], "I work as a nurse") {
		t.Fatalf("prompt missing user message: %q", mock.Prompts[0])
	}
}

// countingEmbedder registra como se pidieron los embeddings.
type countingEmbedder struct {
	*llm.HashEmbedder
	single  int
	batches [][]string
	dims    int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.single++
	return c.HashEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, append([]string(nil), texts...))
	return c.HashEmbedder.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Dimensions() int {
	if c.dims != 0 {
		return c.dims
	}
	return c.HashEmbedder.Dimensions()
}

func TestMemoryManager_ExtractEmbedsCandidatesInOneBatch(t *testing.T) {
	mock := &llm.MockClient{Response: `{"memories":[
		{"content":"ok","type":"fact","importance":0.5,"confidence":0.9},
		{"content":"plays the cello","type":"skill","importance":0.6,"confidence":0.9},
		{"content":"prefers green tea","type":"preference","importance":0.4,"confidence":0.7}]}`}
	emb := &countingEmbedder{HashEmbedder: llm.NewHashEmbedder(512)}
	m := NewMemoryManager(repository.NewInMemoryMemoryRepository(), NewInMemoryVectorIndex(), emb, mock, nil)

	got, err := m.Extract(context.Background(), "p1", "u1", "I play the cello and love green tea", "Lovely!")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 memories, got %d", len(got))
	}
	if emb.single != 0 {
		t.Fatalf("expected no single embeds, got %d", emb.single)
	}
	if len(emb.batches) != 1 || len(emb.batches[0]) != 2 || emb.batches[0][0] != "plays the cello" {
		t.Fatalf("expected one batch with the surviving candidates, got %v", emb.batches)
	}

	ranked, err := m.Recall(context.Background(), "p1", "plays the cello", RecallOptions{})
	if err != nil || len(ranked) == 0 || ranked[0].Memory.Content != "plays the cello" {
		t.Fatalf("batch-embedded memory should be recallable, got %+v %v", ranked, err)
	}
}

func TestMemoryManager_StoreRejectsWrongDimensions(t *testing.T) {
	emb := &countingEmbedder{HashEmbedder: llm.NewHashEmbedder(64), dims: 1536}
	m := NewMemoryManager(repository.NewInMemoryMemoryRepository(), NewInMemoryVectorIndex(), emb, nil, nil)

	if _, err := m.Store(context.Background(), "p1", "The user has a cat", domain.MemoryMetadata{}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if list, _ := m.List(context.Background(), "p1", repository.MemoryFilter{}); len(list) != 0 {
		t.Fatalf("nothing should be stored, got %d", len(list))
	}
}

func TestMemoryManager_StoreScoreDefaultsAndExplicitZero(t *testing.T) {
	tests := []struct {
		name           string
		importance     float64
		confidence     float64
		wantImportance float64
		wantConfidence float64
	}{
		{name: "zero takes defaults", wantImportance: 0.5, wantConfidence: 1},
		{name: "negative is explicit zero", importance: -1, confidence: -1, wantImportance: 0, wantConfidence: 0},
		{name: "values are clamped", importance: 1.4, confidence: 0.3, wantImportance: 1, wantConfidence: 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMemoryFixture(nil)
			mem, err := f.manager.Store(context.Background(), "p1", "The user has a cat", domain.MemoryMetadata{
				Importance: tt.importance,
				Confidence: tt.confidence,
			})
			if err != nil {
				t.Fatalf("store: %v", err)
			}
			if mem.Importance != tt.wantImportance || mem.Confidence != tt.wantConfidence {
				t.Fatalf("expected %v/%v, got %v/%v", tt.wantImportance, tt.wantConfidence, mem.Importance, mem.Confidence)
			}
		})
	}
}
