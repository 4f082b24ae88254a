package observe

import (
	"testing"
	"time"

	"mathforge/internal/state"
)

func step(agent state.Role) state.StepRecord {
	return state.StepRecord{Agent: agent, StartedAt: time.Now(), CompletedAt: time.Now()}
}

func TestRecordAndSteps(t *testing.T) {
	r := NewRecorder()
	r.Record("job1", step(state.RolePlan))
	r.Record("job1", step(state.RoleDraft))
	r.Record("other", step(state.RolePlan))

	got := r.Steps("job1")
	if len(got) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(got))
	}
	if got[0].Agent != state.RolePlan || got[1].Agent != state.RoleDraft {
		t.Errorf("steps out of order: %+v", got)
	}
}

func TestSubscribeReplaysAndStreams(t *testing.T) {
	r := NewRecorder()
	r.Record("job1", step(state.RolePlan))

	ch := r.Subscribe("job1")

	r.Record("job1", step(state.RoleDraft))
	r.Finish("job1", state.StatusCompleted, "")

	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	if len(events) != 3 {
		t.Fatalf("expected replay + live + terminal, got %d: %+v", len(events), events)
	}
	if events[0].Step == nil || events[0].Step.Agent != state.RolePlan {
		t.Errorf("first event should replay the plan step: %+v", events[0])
	}
	last := events[len(events)-1]
	if !last.Terminal || last.Status != state.StatusCompleted {
		t.Errorf("stream must end with the terminal event: %+v", last)
	}
}

func TestSubscribeAfterFinish(t *testing.T) {
	r := NewRecorder()
	r.Record("job1", step(state.RolePlan))
	r.Finish("job1", state.StatusFailed, "retry_budget_exhausted:draft")

	var events []Event
	for ev := range r.Subscribe("job1") {
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("expected full history + terminal, got %d", len(events))
	}
	if events[1].Reason != "retry_budget_exhausted:draft" {
		t.Errorf("terminal reason lost: %+v", events[1])
	}
}

func TestConcurrentRecorders(t *testing.T) {
	r := NewRecorder()
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func(id string) {
			for j := 0; j < 50; j++ {
				r.Record(id, step(state.RoleDraft))
			}
			r.Finish(id, state.StatusCompleted, "")
			done <- struct{}{}
		}(string(rune('a' + i)))
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	for _, id := range []string{"a", "b", "c", "d"} {
		if n := len(r.Steps(id)); n != 50 {
			t.Errorf("job %s: expected 50 steps, got %d", id, n)
		}
	}
}
