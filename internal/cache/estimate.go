package cache

import "mathforge/internal/state"

// TokenEstimate is a pre-generation cost estimate for a request.
type TokenEstimate struct {
	InputTokens  int `json:"estimated_input_tokens"`
	OutputTokens int `json:"estimated_output_tokens"`
	TotalTokens  int `json:"estimated_total_tokens"`
}

// agentPasses covers the planning, drafting, and polish passes a
// typical run makes before terminating.
const agentPasses = 3

// EstimateTokens predicts token usage before generation from the
// material type and content options.
func EstimateTokens(req state.Request) TokenEstimate {
	baseIn, baseOut := 2000, 3000
	switch req.MaterialType {
	case "chapter":
		baseIn, baseOut = 3000, 6000
	case "exam":
		baseIn, baseOut = 2000, 4000
	}

	multiplier := 1.0
	if req.IncludeTheory {
		multiplier += 0.3
	}
	if req.IncludeExamples {
		multiplier += 0.2
	}
	if req.IncludeSolutions {
		multiplier += 0.2
	}

	exerciseFactor := float64(req.NumExercises) / 10.0
	if exerciseFactor <= 0 {
		exerciseFactor = 1
	}

	in := int(float64(baseIn)*multiplier) * agentPasses
	out := int(float64(baseOut)*multiplier*exerciseFactor) * agentPasses
	return TokenEstimate{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
}
