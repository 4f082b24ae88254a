package cache

import (
	"fmt"
	"testing"
	"time"

	"mathforge/internal/state"
)

func baseRequest() state.Request {
	return state.Request{
		Grade:         "8",
		Topic:         "linear equations",
		MaterialType:  "worksheet",
		LanguageLevel: "standard",
		Difficulty:    "medium",
		NumExercises:  8,
	}
}

func TestExactHitAndMiss(t *testing.T) {
	c := New(Options{})
	req := baseRequest()

	if _, ok := c.Get(state.RoleDraft, req); ok {
		t.Fatal("empty cache must miss")
	}
	c.Put(state.RoleDraft, req, "draft output")

	got, ok := c.Get(state.RoleDraft, req)
	if !ok || got != "draft output" {
		t.Fatalf("expected exact hit, got %q ok=%v", got, ok)
	}
}

func TestPlanTierIgnoresDifficultyAndCount(t *testing.T) {
	c := New(Options{})
	req := baseRequest()
	c.Put(state.RolePlan, req, "the plan")

	variant := req
	variant.Difficulty = "hard"
	variant.NumExercises = 12

	got, ok := c.Get(state.RolePlan, variant)
	if !ok || got != "the plan" {
		t.Errorf("plan tier must reuse across difficulty change, got %q ok=%v", got, ok)
	}

	// The draft tier does depend on those fields.
	c.Put(state.RoleDraft, req, "the draft")
	if _, ok := c.Get(state.RoleDraft, variant); ok {
		t.Error("draft tier must miss when difficulty changes")
	}
}

func TestStructuredMismatchForcesMissDespiteIdenticalText(t *testing.T) {
	c := New(Options{})
	req := baseRequest()
	req.ExtraInstructions = "focus on word problems about trains"
	c.Put(state.RolePlan, req, "plan A")

	other := req
	other.Topic = "fractions"
	if _, ok := c.Get(state.RolePlan, other); ok {
		t.Error("structured-field mismatch must always miss")
	}
}

func TestNearDuplicateTextMatches(t *testing.T) {
	c := New(Options{Threshold: 0.5})
	req := baseRequest()
	req.ExtraInstructions = "please focus on word problems about trains and speed"
	c.Put(state.RolePlan, req, "plan A")

	near := req
	near.ExtraInstructions = "focus on word problems about trains and speed please"
	if got, ok := c.Get(state.RolePlan, near); !ok || got != "plan A" {
		t.Errorf("near-duplicate instructions should hit, got %q ok=%v", got, ok)
	}

	far := req
	far.ExtraInstructions = "only theory, no exercises at all"
	if _, ok := c.Get(state.RolePlan, far); ok {
		t.Error("dissimilar instructions must miss")
	}
}

func TestMaxAgeExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	c := New(Options{MaxAge: 10 * time.Minute, Now: clock})

	req := baseRequest()
	c.Put(state.RoleDraft, req, "fresh")

	if _, ok := c.Get(state.RoleDraft, req); !ok {
		t.Fatal("fresh entry must hit")
	}

	now = now.Add(11 * time.Minute)
	if _, ok := c.Get(state.RoleDraft, req); ok {
		t.Error("expired entry must miss")
	}
}

func TestCapacityEvictsLRU(t *testing.T) {
	c := New(Options{Capacity: 2})
	a, b, d := baseRequest(), baseRequest(), baseRequest()
	b.Topic = "fractions"
	d.Topic = "geometry"

	c.Put(state.RoleDraft, a, "A")
	c.Put(state.RoleDraft, b, "B")
	c.Get(state.RoleDraft, a) // A becomes most recent
	c.Put(state.RoleDraft, d, "D")

	if _, ok := c.Get(state.RoleDraft, b); ok {
		t.Error("least recently used entry should have been evicted")
	}
	if _, ok := c.Get(state.RoleDraft, a); !ok {
		t.Error("recently used entry should survive eviction")
	}
	if _, ok := c.Get(state.RoleDraft, d); !ok {
		t.Error("newest entry should survive eviction")
	}
}

func TestWholePipelineTierIsSeparate(t *testing.T) {
	c := New(Options{})
	req := baseRequest()

	c.PutResult(req, "full result")
	if _, ok := c.Get(state.RoleDraft, req); ok {
		t.Error("pipeline tier must not answer per-node lookups")
	}
	if got, ok := c.GetResult(req); !ok || got != "full result" {
		t.Errorf("pipeline tier lookup failed: %q ok=%v", got, ok)
	}
}

func TestStatsAndClear(t *testing.T) {
	c := New(Options{})
	req := baseRequest()
	c.Put(state.RolePlan, req, "plan")
	c.PutResult(req, "result")
	c.Get(state.RolePlan, req)
	c.Get(state.RoleDraft, req)

	s := c.Stats()
	if s.Entries != 2 || s.Hits != 1 || s.Misses != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if s.ByTier["plan"] != 1 || s.ByTier["pipeline"] != 1 {
		t.Errorf("unexpected tier breakdown: %+v", s.ByTier)
	}

	if n := c.Clear(); n != 2 {
		t.Errorf("Clear removed %d, want 2", n)
	}
	if _, ok := c.GetResult(req); ok {
		t.Error("cleared cache must miss")
	}
}

func TestDiceSimilarity(t *testing.T) {
	testCases := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"", "", 1, 1},
		{"something", "", 0, 0},
		{"focus on trains", "focus on trains", 1, 1},
		{"focus on word problems", "completely different text here", 0, 0.1},
		{"focus on word problems about trains", "focus on word problems about boats", 0.5, 0.99},
	}
	var sim DiceSimilarity
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%q~%q", tc.a, tc.b), func(t *testing.T) {
			got := sim.Score(tc.a, tc.b)
			if got < tc.min || got > tc.max {
				t.Errorf("score %v outside [%v, %v]", got, tc.min, tc.max)
			}
		})
	}
}

func TestEstimateTokensScalesWithOptions(t *testing.T) {
	plain := baseRequest()
	rich := plain
	rich.IncludeTheory = true
	rich.IncludeExamples = true
	rich.IncludeSolutions = true
	rich.NumExercises = 20

	a := EstimateTokens(plain)
	b := EstimateTokens(rich)
	if a.TotalTokens <= 0 {
		t.Fatalf("estimate must be positive, got %+v", a)
	}
	if b.TotalTokens <= a.TotalTokens {
		t.Errorf("richer request must cost more: %d vs %d", b.TotalTokens, a.TotalTokens)
	}
	if a.TotalTokens != a.InputTokens+a.OutputTokens {
		t.Errorf("total must be input+output: %+v", a)
	}
}
