// Package pipeline drives agent nodes through the generation graph:
// plan, draft, math verification, compile check, and the repair cycles
// between them. The engine is a state machine with explicit transition
// functions; retry ceilings are plain counter checks per transition,
// never recursion.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"mathforge/internal/cache"
	"mathforge/internal/config"
	"mathforge/internal/curriculum"
	"mathforge/internal/gateway"
	"mathforge/internal/logger"
	"mathforge/internal/mathverify"
	"mathforge/internal/observe"
	"mathforge/internal/state"
	"mathforge/internal/texc"
)

// Invoker is the gateway surface the engine needs. Tests fake it.
type Invoker interface {
	Invoke(ctx context.Context, role state.Role, system, user string, opts gateway.Options) (string, gateway.Usage, error)
}

// Compiler is the typesetting surface the engine needs.
type Compiler interface {
	Compile(ctx context.Context, source string) (state.CompileResult, error)
}

// Verifier produces the verification ledger for document source.
type Verifier interface {
	Verify(source string) state.VerificationResult
}

// node is one position in the pipeline graph.
type node int

const (
	nodePlan node = iota
	nodeDraft
	nodeMathVerify
	nodeCompileCheck
	nodeCompileFix
	nodeQuality
	nodeLayout
	nodeDone
	nodeFailed
)

// rolePipeline tags whole-pipeline cache hits in the step log.
const rolePipeline state.Role = "pipeline"

type Engine struct {
	gw       Invoker
	compiler Compiler
	verifier Verifier
	cache    *cache.Cache
	recorder *observe.Recorder
	cfg      *config.Config

	// sleep implements retry backoff; tests replace it to skip delays.
	sleep func(ctx context.Context, d time.Duration)
}

func NewEngine(gw Invoker, compiler Compiler, verifier Verifier, c *cache.Cache, rec *observe.Recorder, cfg *config.Config) *Engine {
	return &Engine{
		gw:       gw,
		compiler: compiler,
		verifier: verifier,
		cache:    c,
		recorder: rec,
		cfg:      cfg,
		sleep: func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		},
	}
}

// SetSleep overrides the backoff delay function.
func (e *Engine) SetSleep(fn func(ctx context.Context, d time.Duration)) { e.sleep = fn }

// Run executes the graph for one state to a terminal status. The
// engine takes ownership of st until it returns; no other goroutine
// may touch it meanwhile. regenerate bypasses the whole-pipeline cache.
func (e *Engine) Run(ctx context.Context, st *state.State, regenerate bool) *state.State {
	st.Status = state.StatusRunning
	logger.Log.Printf("[Engine] job %s started (%s grade %s, %s)",
		st.JobID, st.Request.Topic, st.Request.Grade, st.Request.MaterialType)

	if !regenerate && e.serveFromPipelineCache(st) {
		return st
	}

	// Repair-edge backoff indexes, reset never; the counters on the
	// state are the budget, these pick the delay.
	var draftRepair, compileRepair string

	cur := nodePlan
	for cur != nodeDone && cur != nodeFailed {
		if ctx.Err() != nil {
			st.Fail(ReasonCancelled)
			cur = nodeFailed
			break
		}
		switch cur {
		case nodePlan:
			cur = e.runPlan(ctx, st)
		case nodeDraft:
			cur = e.runDraft(ctx, st, draftRepair)
			draftRepair = ""
		case nodeMathVerify:
			var report string
			cur, report = e.runMathVerify(ctx, st)
			draftRepair = report
		case nodeCompileCheck:
			var report string
			cur, report = e.runCompileCheck(ctx, st)
			compileRepair = report
		case nodeCompileFix:
			cur = e.runCompileFix(ctx, st, compileRepair)
			compileRepair = ""
		case nodeQuality:
			cur = e.runPolish(ctx, st, state.RoleQuality)
		case nodeLayout:
			cur = e.runPolish(ctx, st, state.RoleLayout)
		}
	}

	if st.Status == state.StatusFailed {
		logger.Log.Printf("[Engine] job %s failed: %s", st.JobID, st.FailReason)
		e.recorder.Finish(st.JobID, state.StatusFailed, st.FailReason)
		return st
	}

	st.Complete()
	e.storeInPipelineCache(st)
	logger.Log.Printf("[Engine] job %s completed: %d steps, %d tokens",
		st.JobID, len(st.Steps), st.TotalTokens)
	e.recorder.Finish(st.JobID, state.StatusCompleted, "")
	return st
}

// ---- nodes -----------------------------------------------------------

func (e *Engine) runPlan(ctx context.Context, st *state.State) node {
	bounds := curriculum.Lookup(st.Request.Grade, st.Request.Topic)
	st.CurriculumContext = bounds.FormatForPrompt()

	if plan, ok := e.cache.Get(state.RolePlan, st.Request); ok {
		st.Plan = plan
		e.recordCached(st, state.RolePlan, plan)
		return nodeDraft
	}

	text, ok := e.invoke(ctx, st, state.RolePlan, planSystem, buildPlanPrompt(st.Request, bounds), 0)
	if !ok {
		return nodeFailed
	}
	st.Plan = text
	e.cache.Put(state.RolePlan, st.Request, text)
	return nodeDraft
}

func (e *Engine) runDraft(ctx context.Context, st *state.State, repairReport string) node {
	retry := 0
	if repairReport != "" {
		retry = st.DraftRepairs
	} else if doc, ok := e.cache.Get(state.RoleDraft, st.Request); ok {
		st.DocumentSource = doc
		e.recordCached(st, state.RoleDraft, doc)
		return nodeMathVerify
	}

	text, ok := e.invoke(ctx, st, state.RoleDraft, draftSystem, buildDraftPrompt(st, repairReport), retry)
	if !ok {
		return nodeFailed
	}
	st.DocumentSource = stripMarkdownFences(text)
	if repairReport == "" {
		e.cache.Put(state.RoleDraft, st.Request, st.DocumentSource)
	}
	return nodeMathVerify
}

func (e *Engine) runMathVerify(ctx context.Context, st *state.State) (node, string) {
	// The ledger is recomputed in full on every pass; stale verdicts
	// must never survive a rewrite.
	started := time.Now()
	st.CurrentAgent = state.RoleMathVerify
	result := e.verifier.Verify(st.DocumentSource)
	st.Verification = result
	e.record(st, state.StepRecord{
		Agent:         state.RoleMathVerify,
		StartedAt:     started,
		CompletedAt:   time.Now(),
		DurationMs:    time.Since(started).Milliseconds(),
		OutputSummary: result.Summary,
		RetryIndex:    st.DraftRepairs,
	})

	passed := result.Incorrect == 0
	if e.cfg.Verification.RequireFullCoverage && result.Unverifiable > 0 {
		passed = false
	}
	if passed {
		return nodeCompileCheck, ""
	}

	if st.DraftRepairs >= e.cfg.Retry.DraftCeiling {
		st.Fail(reasonBudgetExhausted(state.RoleDraft))
		return nodeFailed, ""
	}
	// Consume a unit before re-invoking the repair node.
	st.DraftRepairs++
	e.backoff(ctx, st.DraftRepairs-1)
	logger.Log.Printf("[Engine] job %s: %d incorrect claims, draft repair %d/%d",
		st.JobID, result.Incorrect, st.DraftRepairs, e.cfg.Retry.DraftCeiling)
	return nodeDraft, mathverify.FormatErrorsForPrompt(result)
}

func (e *Engine) runCompileCheck(ctx context.Context, st *state.State) (node, string) {
	started := time.Now()
	st.CurrentAgent = state.RoleCompileCheck
	st.FullDocument = texc.WrapDocument(st.DocumentSource)

	result, err := e.compiler.Compile(ctx, st.FullDocument)
	if err != nil {
		// Queue saturation or an environment failure, not a document
		// problem; terminal for this job.
		st.Fail(reasonCompiler(err))
		return nodeFailed, ""
	}
	st.Compilation = result
	rec := state.StepRecord{
		Agent:       state.RoleCompileCheck,
		StartedAt:   started,
		CompletedAt: time.Now(),
		DurationMs:  time.Since(started).Milliseconds(),
		RetryIndex:  st.CompileFixRepairs,
	}
	if result.Success {
		st.ArtifactPath = result.ArtifactPath
		rec.OutputSummary = "compiled clean"
		e.record(st, rec)
		if !st.QualityDone {
			return nodeQuality, ""
		}
		if !st.LayoutDone {
			return nodeLayout, ""
		}
		return nodeDone, ""
	}

	rec.OutputSummary = fmt.Sprintf("%d compile errors", len(result.Errors))
	if len(result.Errors) > 0 {
		rec.Err = result.Errors[0].Message
	}
	e.record(st, rec)

	if st.CompileFixRepairs >= e.cfg.Retry.CompileFixCeiling {
		st.Fail(reasonBudgetExhausted(state.RoleCompileFix))
		return nodeFailed, ""
	}
	st.CompileFixRepairs++
	e.backoff(ctx, st.CompileFixRepairs-1)
	return nodeCompileFix, texc.FormatErrorsForPrompt(result)
}

func (e *Engine) runCompileFix(ctx context.Context, st *state.State, errorReport string) node {
	text, ok := e.invoke(ctx, st, state.RoleCompileFix, compileFixSystem, buildCompileFixPrompt(st, errorReport), st.CompileFixRepairs)
	if !ok {
		return nodeFailed
	}
	st.DocumentSource = stripMarkdownFences(text)
	// Every repair is re-verified; control never jumps to done.
	return nodeCompileCheck
}

// runPolish runs the quality or layout pass. The passes transform
// wording and layout only; if one touches mathematical content anyway,
// verification re-enters instead of silently trusting the pass.
func (e *Engine) runPolish(ctx context.Context, st *state.State, role state.Role) node {
	before := mathverify.ClaimSignature(st.DocumentSource)

	var system string
	if role == state.RoleQuality {
		system = qualitySystem
	} else {
		system = layoutSystem
	}
	text, ok := e.invoke(ctx, st, role, system, buildPolishPrompt(st), 0)
	if !ok {
		return nodeFailed
	}
	st.DocumentSource = stripMarkdownFences(text)

	if role == state.RoleQuality {
		st.QualityDone = true
	} else {
		st.LayoutDone = true
	}

	if mathverify.ClaimSignature(st.DocumentSource) != before {
		logger.Log.Printf("[Engine] job %s: %s pass altered math content, re-verifying", st.JobID, role)
		return nodeMathVerify
	}
	if role == state.RoleQuality && !st.LayoutDone {
		return nodeLayout
	}
	// The polished document must still compile.
	if st.Compilation.Success && st.FullDocument == texc.WrapDocument(st.DocumentSource) {
		return nodeDone
	}
	return nodeCompileCheck
}

// ---- helpers ---------------------------------------------------------

// invoke calls the gateway for one agent and records the step. A false
// return means the state is already terminal.
func (e *Engine) invoke(ctx context.Context, st *state.State, role state.Role, system, user string, retry int) (string, bool) {
	started := time.Now()
	st.CurrentAgent = role

	text, usage, err := e.gw.Invoke(ctx, role, system, user, gateway.Options{Temperature: 0.4})
	rec := state.StepRecord{
		Agent:        role,
		StartedAt:    started,
		CompletedAt:  time.Now(),
		DurationMs:   time.Since(started).Milliseconds(),
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		InputSummary: truncate(user, 200),
		RetryIndex:   retry,
	}
	if err != nil {
		rec.Err = err.Error()
		e.record(st, rec)
		if ctx.Err() != nil {
			st.Fail(ReasonCancelled)
		} else {
			st.Fail(reasonGateway(err))
		}
		return "", false
	}
	rec.OutputSummary = truncate(text, 200)
	e.record(st, rec)
	return text, true
}

func (e *Engine) record(st *state.State, rec state.StepRecord) {
	st.Steps = append(st.Steps, rec)
	e.recorder.Record(st.JobID, rec)
}

func (e *Engine) recordCached(st *state.State, role state.Role, output string) {
	now := time.Now()
	e.record(st, state.StepRecord{
		Agent:         role,
		StartedAt:     now,
		CompletedAt:   now,
		OutputSummary: truncate(output, 200),
		Cached:        true,
	})
	logger.Log.Printf("[Engine] job %s: %s served from cache", st.JobID, role)
}

func (e *Engine) backoff(ctx context.Context, retryIndex int) {
	d := e.cfg.BackoffBase() << retryIndex
	if limit := e.cfg.BackoffCap(); d > limit {
		d = limit
	}
	if d > 0 {
		e.sleep(ctx, d)
	}
}

func (e *Engine) serveFromPipelineCache(st *state.State) bool {
	data, ok := e.cache.GetResult(st.Request)
	if !ok {
		return false
	}
	prior, err := state.Unmarshal([]byte(data))
	if err != nil {
		return false
	}
	st.Plan = prior.Plan
	st.CurriculumContext = prior.CurriculumContext
	st.DocumentSource = prior.DocumentSource
	st.FullDocument = prior.FullDocument
	st.ArtifactPath = prior.ArtifactPath
	st.Verification = prior.Verification
	st.Compilation = prior.Compilation
	e.recordCached(st, rolePipeline, prior.DocumentSource)
	st.Complete()
	logger.Log.Printf("[Engine] job %s served whole-pipeline cache hit", st.JobID)
	e.recorder.Finish(st.JobID, state.StatusCompleted, "")
	return true
}

func (e *Engine) storeInPipelineCache(st *state.State) {
	data, err := st.Marshal()
	if err != nil {
		return
	}
	e.cache.PutResult(st.Request, string(data))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
