// Package config loads the pipeline configuration from mathforge.yaml.
//
// Everything the spec calls tunable lives here: retry ceilings, backoff,
// similarity threshold, compiler pool sizing, and which model backend
// serves which agent role. API keys come from the environment, never
// from the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigYAML = `# mathforge pipeline configuration
retry:
  draft_ceiling: 3
  compile_fix_ceiling: 3
  gateway_transient: 2
  backoff_base_ms: 500
  backoff_cap_ms: 8000

cache:
  capacity: 256
  max_age_minutes: 60
  similarity_threshold: 0.90

compiler:
  bin: pdflatex
  workers: 2
  queue_depth: 8
  timeout_seconds: 30

verification:
  epsilon: 1e-9
  require_full_coverage: false

gateway:
  default:
    - backend: gemini
      model: gemini-2.0-flash
    - backend: ollama
      model: phi4:latest
  roles: {}
`

// BackendRef names one gateway backend and the model it should serve.
type BackendRef struct {
	Backend string `yaml:"backend"` // gemini|ollama
	Model   string `yaml:"model"`
}

type RetryConfig struct {
	DraftCeiling      int `yaml:"draft_ceiling"`
	CompileFixCeiling int `yaml:"compile_fix_ceiling"`
	GatewayTransient  int `yaml:"gateway_transient"`
	BackoffBaseMs     int `yaml:"backoff_base_ms"`
	BackoffCapMs      int `yaml:"backoff_cap_ms"`
}

type CacheConfig struct {
	Capacity            int     `yaml:"capacity"`
	MaxAgeMinutes       int     `yaml:"max_age_minutes"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type CompilerConfig struct {
	Bin            string `yaml:"bin"`
	Workers        int    `yaml:"workers"`
	QueueDepth     int    `yaml:"queue_depth"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type VerificationConfig struct {
	Epsilon             float64 `yaml:"epsilon"`
	RequireFullCoverage bool    `yaml:"require_full_coverage"`
}

type GatewayConfig struct {
	Default []BackendRef            `yaml:"default"`
	Roles   map[string][]BackendRef `yaml:"roles"`
}

type Config struct {
	Retry        RetryConfig        `yaml:"retry"`
	Cache        CacheConfig        `yaml:"cache"`
	Compiler     CompilerConfig     `yaml:"compiler"`
	Verification VerificationConfig `yaml:"verification"`
	Gateway      GatewayConfig      `yaml:"gateway"`
}

// Default returns the built-in configuration.
func Default() (*Config, error) {
	var c Config
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &c); err != nil {
		return nil, fmt.Errorf("parse built-in config: %w", err)
	}
	return &c, nil
}

// Load reads path if it exists, layered over the built-in defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.Retry.DraftCeiling < 0 || c.Retry.CompileFixCeiling < 0 {
		return fmt.Errorf("retry ceilings must be >= 0")
	}
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %v", c.Cache.SimilarityThreshold)
	}
	if c.Compiler.Workers < 1 {
		return fmt.Errorf("compiler workers must be >= 1")
	}
	if len(c.Gateway.Default) == 0 {
		return fmt.Errorf("gateway.default must list at least one backend")
	}
	return nil
}

func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Retry.BackoffBaseMs) * time.Millisecond
}

func (c *Config) BackoffCap() time.Duration {
	return time.Duration(c.Retry.BackoffCapMs) * time.Millisecond
}

func (c *Config) CacheMaxAge() time.Duration {
	return time.Duration(c.Cache.MaxAgeMinutes) * time.Minute
}

func (c *Config) CompileTimeout() time.Duration {
	return time.Duration(c.Compiler.TimeoutSeconds) * time.Second
}

// BackendsForRole resolves the ordered backend list serving a role,
// falling back to the default chain.
func (c *Config) BackendsForRole(role string) []BackendRef {
	if refs, ok := c.Gateway.Roles[role]; ok && len(refs) > 0 {
		return refs
	}
	return c.Gateway.Default
}
