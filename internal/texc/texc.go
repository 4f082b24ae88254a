// Package texc wraps the external typesetting compiler as a pure
// function from source to artifact-or-errors, with a bounded worker
// pool, single-flight deduplication per source hash, and a content-hash
// result cache in front of the subprocess.
package texc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mathforge/internal/logger"
	"mathforge/internal/state"
)

// ErrQueueFull is returned when the compile queue is saturated beyond
// the configured depth; callers fail fast instead of piling up.
var ErrQueueFull = errors.New("texc: compile queue full")

// RunFunc executes the external compiler over texPath inside dir and
// returns its combined diagnostic output. Tests substitute this.
type RunFunc func(ctx context.Context, bin, dir, texPath string) ([]byte, error)

type Options struct {
	Bin        string
	Workers    int
	QueueDepth int
	Timeout    time.Duration
	Run        RunFunc // nil means the real subprocess runner
}

type Compiler struct {
	bin     string
	timeout time.Duration
	run     RunFunc

	workers chan struct{} // bounded pool
	queued  chan struct{} // workers + queue depth

	sf singleflight.Group

	mu    sync.Mutex
	cache map[string]state.CompileResult
}

func New(opts Options) *Compiler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueDepth < 0 {
		opts.QueueDepth = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	run := opts.Run
	if run == nil {
		run = runSubprocess
	}
	return &Compiler{
		bin:     opts.Bin,
		timeout: opts.Timeout,
		run:     run,
		workers: make(chan struct{}, opts.Workers),
		queued:  make(chan struct{}, opts.Workers+opts.QueueDepth),
		cache:   make(map[string]state.CompileResult),
	}
}

// SourceHash fingerprints document source for caching and deduplication.
func SourceHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:16])
}

// Compile typesets a complete document. Identical source is compiled at
// most once: concurrent callers share one in-flight run, and completed
// results are served from the content-hash cache.
func (c *Compiler) Compile(ctx context.Context, source string) (state.CompileResult, error) {
	hash := SourceHash(source)

	c.mu.Lock()
	if res, ok := c.cache[hash]; ok {
		c.mu.Unlock()
		return res, nil
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do(hash, func() (any, error) {
		res, err := c.compileOnce(ctx, hash, source)
		if err != nil {
			return state.CompileResult{}, err
		}
		c.mu.Lock()
		c.cache[hash] = res
		c.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return state.CompileResult{}, err
	}
	return v.(state.CompileResult), nil
}

func (c *Compiler) compileOnce(ctx context.Context, hash, source string) (state.CompileResult, error) {
	// Queue admission: fail fast when workers and queue are both full.
	select {
	case c.queued <- struct{}{}:
		defer func() { <-c.queued }()
	default:
		return state.CompileResult{}, ErrQueueFull
	}
	// Worker slot: queued callers wait here.
	select {
	case c.workers <- struct{}{}:
		defer func() { <-c.workers }()
	case <-ctx.Done():
		return state.CompileResult{}, ctx.Err()
	}

	dir, err := os.MkdirTemp("", "mathforge_texc_")
	if err != nil {
		return state.CompileResult{}, fmt.Errorf("texc: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	texPath := filepath.Join(dir, "document.tex")
	if err := os.WriteFile(texPath, []byte(source), 0644); err != nil {
		return state.CompileResult{}, fmt.Errorf("texc: write source: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, runErr := c.run(runCtx, c.bin, dir, texPath)

	var result state.CompileResult
	result.Errors = parseDiagnostics(string(output))

	artifact := filepath.Join(dir, "document.pdf")
	if runErr == nil {
		if _, statErr := os.Stat(artifact); statErr == nil {
			// Move the artifact out of the doomed temp dir.
			kept := filepath.Join(os.TempDir(), "mathforge_"+hash+".pdf")
			if data, readErr := os.ReadFile(artifact); readErr == nil {
				if writeErr := os.WriteFile(kept, data, 0644); writeErr == nil {
					result.ArtifactPath = kept
				}
			}
		}
		result.Success = true
		result.Errors = nil
		logger.Log.Printf("[Texc] compile ok (%s)", hash)
		return result, nil
	}

	// Non-zero exit with no parseable errors still yields a structured
	// error list the engine can route on.
	if len(result.Errors) == 0 {
		result.Errors = []state.CompileError{{Line: 0, Message: fmt.Sprintf("compiler failed: %v", runErr)}}
	}
	result.LogExcerpt = tail(string(output), 2000)
	logger.Log.Printf("[Texc] compile failed (%s): %d errors", hash, len(result.Errors))
	return result, nil
}

func runSubprocess(ctx context.Context, bin, dir, texPath string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin,
		"-interaction=nonstopmode",
		"-halt-on-error",
		"-output-directory", dir,
		texPath,
	)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// CacheLen reports the number of cached compile results.
func (c *Compiler) CacheLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}
