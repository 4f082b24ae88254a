package display

import (
	"strings"
	"testing"

	"mathforge/internal/cache"
	"mathforge/internal/observe"
	"mathforge/internal/state"
)

func TestFormatEvent(t *testing.T) {
	step := state.StepRecord{Agent: state.RoleDraft, DurationMs: 420, RetryIndex: 1}
	out := FormatEvent(observe.Event{JobID: "ab12", Step: &step})
	if !strings.Contains(out, "draft") || !strings.Contains(out, "retry 1") {
		t.Errorf("unexpected step line: %q", out)
	}

	cached := state.StepRecord{Agent: state.RolePlan, Cached: true}
	out = FormatEvent(observe.Event{JobID: "ab12", Step: &cached})
	if !strings.Contains(out, "cached") {
		t.Errorf("cached flag missing: %q", out)
	}

	out = FormatEvent(observe.Event{JobID: "ab12", Terminal: true, Status: state.StatusFailed, Reason: "cancelled"})
	if !strings.Contains(out, "FAILED") || !strings.Contains(out, "cancelled") {
		t.Errorf("terminal line wrong: %q", out)
	}
}

func TestFormatResult(t *testing.T) {
	st := state.State{
		JobID:  "ab12",
		Status: state.StatusCompleted,
		Request: state.Request{
			Grade: "8", Topic: "fractions", MaterialType: "worksheet", Difficulty: "easy",
		},
		Verification: state.VerificationResult{Checked: 3, Correct: 3},
		ArtifactPath: "/tmp/out.pdf",
		TotalTokens:  1234,
	}
	out := FormatResult(st)
	for _, want := range []string{"ab12", "completed", "3 checked", "/tmp/out.pdf", "1234"} {
		if !strings.Contains(out, want) {
			t.Errorf("result missing %q:\n%s", want, out)
		}
	}
}

func TestFormatStatsAndEstimate(t *testing.T) {
	out := FormatStats(cache.Stats{Entries: 2, Hits: 5, ByTier: map[string]int{"plan": 2}})
	if !strings.Contains(out, "2 entries") || !strings.Contains(out, "plan: 2") {
		t.Errorf("stats wrong: %q", out)
	}
	est := FormatEstimate(cache.TokenEstimate{InputTokens: 10, OutputTokens: 20, TotalTokens: 30})
	if !strings.Contains(est, "30 total") {
		t.Errorf("estimate wrong: %q", est)
	}
}
