package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}
	if c.Retry.DraftCeiling != 3 {
		t.Errorf("expected draft ceiling 3, got %d", c.Retry.DraftCeiling)
	}
	if c.Cache.SimilarityThreshold != 0.90 {
		t.Errorf("expected threshold 0.90, got %v", c.Cache.SimilarityThreshold)
	}
	if len(c.Gateway.Default) != 2 {
		t.Fatalf("expected 2 default backends, got %d", len(c.Gateway.Default))
	}
	if c.Gateway.Default[0].Backend != "gemini" {
		t.Errorf("expected gemini first, got %s", c.Gateway.Default[0].Backend)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load returned error for missing file: %v", err)
	}
	if c.Compiler.Bin != "pdflatex" {
		t.Errorf("expected default compiler bin, got %s", c.Compiler.Bin)
	}
}

func TestLoadOverridesAndRoleRouting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mathforge.yaml")
	configYAML := `
retry:
  draft_ceiling: 5
gateway:
  default:
    - backend: ollama
      model: phi4:latest
  roles:
    draft:
      - backend: gemini
        model: gemini-2.0-flash
      - backend: ollama
        model: phi4:latest
`
	if err := os.WriteFile(path, []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if c.Retry.DraftCeiling != 5 {
		t.Errorf("expected overridden ceiling 5, got %d", c.Retry.DraftCeiling)
	}

	draft := c.BackendsForRole("draft")
	if len(draft) != 2 || draft[0].Backend != "gemini" {
		t.Errorf("unexpected draft chain: %+v", draft)
	}
	plan := c.BackendsForRole("plan")
	if len(plan) != 1 || plan[0].Backend != "ollama" {
		t.Errorf("expected plan to fall back to default chain, got %+v", plan)
	}
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mathforge.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  similarity_threshold: 1.5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for threshold 1.5")
	}
}
