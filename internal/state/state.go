package state

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Role names every agent node in the pipeline.
type Role string

const (
	RolePlan         Role = "plan"
	RoleDraft        Role = "draft"
	RoleMathVerify   Role = "math_verify"
	RoleCompileCheck Role = "compile_check"
	RoleCompileFix   Role = "compile_fix"
	RoleQuality      Role = "quality"
	RoleLayout       Role = "layout"
)

// Request is the user's input to the pipeline. The engine does not
// interpret these fields; it routes them to agents and cache keys.
type Request struct {
	Grade             string `json:"grade"`
	Topic             string `json:"topic"`
	MaterialType      string `json:"material_type"`  // worksheet|chapter|exam
	LanguageLevel     string `json:"language_level"` // standard|b2|b1
	Difficulty        string `json:"difficulty"`     // easy|medium|hard
	NumExercises      int    `json:"num_exercises"`
	IncludeTheory     bool   `json:"include_theory"`
	IncludeExamples   bool   `json:"include_examples"`
	IncludeSolutions  bool   `json:"include_solutions"`
	ExtraInstructions string `json:"extra_instructions,omitempty"`
}

type Verdict string

const (
	VerdictCorrect      Verdict = "correct"
	VerdictIncorrect    Verdict = "incorrect"
	VerdictUnverifiable Verdict = "unverifiable"
)

// Claim is one mathematical assertion extracted from the document source.
type Claim struct {
	ID         string  `json:"id"`
	Expression string  `json:"expression"`
	Type       string  `json:"type"` // equation|solution
	Context    string  `json:"context,omitempty"`
	Verdict    Verdict `json:"verdict"`
	Expected   string  `json:"expected,omitempty"`
	Actual     string  `json:"actual,omitempty"`
	Detail     string  `json:"detail,omitempty"`
}

// VerificationResult is the full ledger from one verification pass.
// It is recomputed from scratch on every pass, never merged.
type VerificationResult struct {
	Checked      int     `json:"checked"`
	Correct      int     `json:"correct"`
	Incorrect    int     `json:"incorrect"`
	Unverifiable int     `json:"unverifiable"`
	Claims       []Claim `json:"claims,omitempty"`
	AllCorrect   bool    `json:"all_correct"`
	Summary      string  `json:"summary,omitempty"`
}

// IncorrectClaims returns the subset of the ledger that failed.
func (v VerificationResult) IncorrectClaims() []Claim {
	var out []Claim
	for _, c := range v.Claims {
		if c.Verdict == VerdictIncorrect {
			out = append(out, c)
		}
	}
	return out
}

// UnverifiableClaims returns fragments the verifier could not parse.
func (v VerificationResult) UnverifiableClaims() []Claim {
	var out []Claim
	for _, c := range v.Claims {
		if c.Verdict == VerdictUnverifiable {
			out = append(out, c)
		}
	}
	return out
}

type CompileError struct {
	Line    int    `json:"line"` // 0 when no line number was recoverable
	Message string `json:"message"`
}

type CompileResult struct {
	Success      bool           `json:"success"`
	ArtifactPath string         `json:"artifact_path,omitempty"`
	Errors       []CompileError `json:"errors,omitempty"`
	LogExcerpt   string         `json:"log_excerpt,omitempty"`
}

// StepRecord is the observability record for one agent invocation.
// Records are appended, never mutated or removed.
type StepRecord struct {
	Agent         Role      `json:"agent"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
	DurationMs    int64     `json:"duration_ms"`
	InputTokens   int       `json:"input_tokens,omitempty"`
	OutputTokens  int       `json:"output_tokens,omitempty"`
	InputSummary  string    `json:"input_summary,omitempty"`
	OutputSummary string    `json:"output_summary,omitempty"`
	Err           string    `json:"err,omitempty"`
	RetryIndex    int       `json:"retry_index"`
	Cached        bool      `json:"cached,omitempty"`
}

// State is the single record threaded through the pipeline graph.
// One goroutine owns it at a time; stages never run concurrently for
// the same state.
type State struct {
	JobID     string    `json:"job_id"`
	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`
	FailReason string   `json:"fail_reason,omitempty"`

	Request Request `json:"request"`

	// Set by the plan node.
	CurriculumContext string `json:"curriculum_context,omitempty"`
	Plan              string `json:"plan,omitempty"`

	// DocumentSource is the authoritative content; compiled artifacts
	// are derived and disposable.
	DocumentSource string `json:"document_source,omitempty"`
	FullDocument   string `json:"full_document,omitempty"`
	ArtifactPath   string `json:"artifact_path,omitempty"`

	Verification VerificationResult `json:"verification"`
	Compilation  CompileResult      `json:"compilation"`

	// Repair budgets, one counter per repair-capable node.
	DraftRepairs      int `json:"draft_repairs"`
	CompileFixRepairs int `json:"compile_fix_repairs"`

	// Quality/layout passes run at most once per job even when a
	// content mutation re-enters verification.
	QualityDone bool `json:"quality_done"`
	LayoutDone  bool `json:"layout_done"`

	Steps           []StepRecord `json:"steps"`
	TotalTokens     int          `json:"total_tokens"`
	TotalDurationMs int64        `json:"total_duration_ms"`
	CurrentAgent    Role         `json:"current_agent,omitempty"`
}

// New builds the initial state for a request.
func New(req Request) *State {
	return &State{
		JobID:     uuid.New().String()[:8],
		CreatedAt: time.Now(),
		Status:    StatusPending,
		Request:   req,
	}
}

// Fail marks the state terminal with a reason.
func (s *State) Fail(reason string) {
	s.Status = StatusFailed
	s.FailReason = reason
	s.CurrentAgent = ""
}

// Complete marks the state terminal and rolls up totals from the step log.
func (s *State) Complete() {
	var tokens int
	var dur int64
	for _, st := range s.Steps {
		tokens += st.InputTokens + st.OutputTokens
		dur += st.DurationMs
	}
	s.TotalTokens = tokens
	s.TotalDurationMs = dur
	s.Status = StatusCompleted
	s.CurrentAgent = ""
}

// Snapshot returns a deep copy safe to hand across goroutines.
func (s *State) Snapshot() State {
	cp := *s
	cp.Steps = append([]StepRecord(nil), s.Steps...)
	cp.Verification.Claims = append([]Claim(nil), s.Verification.Claims...)
	cp.Compilation.Errors = append([]CompileError(nil), s.Compilation.Errors...)
	return cp
}

// Marshal serializes a snapshot to a plain structured record.
func (s *State) Marshal() ([]byte, error) {
	snap := s.Snapshot()
	return json.Marshal(&snap)
}

// Unmarshal restores a state snapshot.
func Unmarshal(data []byte) (*State, error) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
