package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mathforge/internal/state"
)

type fakeProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(_ context.Context, _, _, _ string, _ Options) (string, Usage, error) {
	f.calls++
	if f.err != nil {
		return "", Usage{}, f.err
	}
	return f.text, Usage{InputTokens: 10, OutputTokens: 20}, nil
}

func TestFallbackOrdering(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("backend a down")}
	b := &fakeProvider{name: "b", text: "from b"}
	g, err := New([]Backend{{Provider: a}, {Provider: b}}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	g.SetRetryDelay(0)

	text, usage, err := g.Invoke(context.Background(), state.RoleDraft, "sys", "user", Options{})
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if text != "from b" {
		t.Errorf("expected fallback text, got %q", text)
	}
	if usage.OutputTokens != 20 {
		t.Errorf("expected usage from b, got %+v", usage)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("expected one failed + one succeeded attempt, got a=%d b=%d", a.calls, b.calls)
	}
}

func TestTransientRetriesPerBackend(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("flaky")}
	g, _ := New([]Backend{{Provider: a}}, nil, 2)
	g.SetRetryDelay(0)

	_, _, err := g.Invoke(context.Background(), state.RolePlan, "", "p", Options{})
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if a.calls != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", a.calls)
	}
}

func TestAggregatedErrorNamesEveryBackend(t *testing.T) {
	a := &fakeProvider{name: "alpha", err: errors.New("down")}
	b := &fakeProvider{name: "beta", err: errors.New("also down")}
	g, _ := New([]Backend{{Provider: a, Model: "m1"}, {Provider: b, Model: "m2"}}, nil, 0)
	g.SetRetryDelay(0)

	_, _, err := g.Invoke(context.Background(), state.RolePlan, "", "p", Options{})
	var gerr *Error
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if len(gerr.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(gerr.Attempts))
	}
	msg := gerr.Error()
	for _, want := range []string{"alpha", "beta", "m1", "m2"} {
		if !strings.Contains(msg, want) {
			t.Errorf("aggregated error missing %q: %s", want, msg)
		}
	}
}

func TestRoleRouting(t *testing.T) {
	def := &fakeProvider{name: "default", text: "default"}
	draft := &fakeProvider{name: "draft-only", text: "draft"}
	routes := map[state.Role][]Backend{
		state.RoleDraft: {{Provider: draft}},
	}
	g, _ := New([]Backend{{Provider: def}}, routes, 0)
	g.SetRetryDelay(0)

	text, _, err := g.Invoke(context.Background(), state.RoleDraft, "", "p", Options{})
	if err != nil || text != "draft" {
		t.Errorf("expected draft route, got %q err=%v", text, err)
	}
	text, _, err = g.Invoke(context.Background(), state.RolePlan, "", "p", Options{})
	if err != nil || text != "default" {
		t.Errorf("expected default route for plan, got %q err=%v", text, err)
	}
}

func TestCancelledContextSurfacesImmediately(t *testing.T) {
	a := &fakeProvider{name: "a", text: "x"}
	g, _ := New([]Backend{{Provider: a}}, nil, 2)
	g.SetRetryDelay(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := g.Invoke(ctx, state.RolePlan, "", "p", Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if a.calls != 0 {
		t.Errorf("expected no backend calls after cancel, got %d", a.calls)
	}
}
